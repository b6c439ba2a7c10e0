package pricing

import (
	"fmt"
	"math"
	"time"
)

// Quote evaluates the rules strictly in the given order against the base
// price and returns the final price together with the ordered breakdown.
//
// Quote is pure and deterministic: identical inputs always produce an
// identical price and breakdown, so it is safe to call for UI previews
// without committing anything. Inactive and inapplicable rules are skipped
// and leave no breakdown entry. The invariant
//
//	final = base + sum of EffectOnPrice over the breakdown
//
// always holds; the running price is floored at zero and all amounts are
// rounded to cents.
//
// A malformed rule aborts the quote with ErrRuleEvaluation. Price
// correctness is not best-effort: a booking must never be admitted with a
// silently skipped broken rule.
func Quote(basePrice float64, rules []Rule, interval Interval) (float64, []Applied, error) {
	price := round2(basePrice)
	var breakdown []Applied

	for _, rule := range rules {
		if !rule.IsActive {
			continue
		}
		if err := validateRule(rule); err != nil {
			return 0, nil, err
		}
		if !applies(rule, interval) {
			continue
		}

		after := apply(rule, price)
		breakdown = append(breakdown, Applied{
			RuleID:        rule.ID,
			RuleName:      rule.Name,
			RuleType:      rule.Type,
			Factor:        rule.Factor,
			EffectOnPrice: round2(after - price),
		})
		price = after
	}

	return price, breakdown, nil
}

func validateRule(rule Rule) error {
	switch rule.Type {
	case RuleDiscount:
		if rule.Factor <= 0 || rule.Factor > 100 {
			return fmt.Errorf("%w: rule %q: discount factor %.2f outside (0, 100]",
				ErrRuleEvaluation, rule.Name, rule.Factor)
		}
	case RuleTimeBased:
		if rule.StartMin >= rule.EndMin {
			return fmt.Errorf("%w: rule %q: inverted hour window", ErrRuleEvaluation, rule.Name)
		}
		if rule.Factor <= 0 {
			return factorError(rule)
		}
	case RuleDateBased:
		if rule.StartDate == nil || rule.EndDate == nil || rule.EndDate.Before(*rule.StartDate) {
			return fmt.Errorf("%w: rule %q: invalid date range", ErrRuleEvaluation, rule.Name)
		}
		if rule.Factor <= 0 {
			return factorError(rule)
		}
	case RuleDayBased, RuleDurationBased:
		if rule.Factor <= 0 {
			return factorError(rule)
		}
	default:
		return fmt.Errorf("%w: rule %q: unknown type %q", ErrRuleEvaluation, rule.Name, rule.Type)
	}
	return nil
}

func factorError(rule Rule) error {
	return fmt.Errorf("%w: rule %q: non-positive factor %.2f", ErrRuleEvaluation, rule.Name, rule.Factor)
}

func applies(rule Rule, interval Interval) bool {
	start := interval.Start.UTC()

	switch rule.Type {
	case RuleTimeBased:
		startMin := start.Hour()*60 + start.Minute()
		return startMin >= rule.StartMin && startMin < rule.EndMin
	case RuleDayBased:
		for _, day := range rule.Days {
			if start.Weekday() == day {
				return true
			}
		}
		return false
	case RuleDateBased:
		date := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
		return !date.Before(dateOnly(*rule.StartDate)) && !date.After(dateOnly(*rule.EndDate))
	case RuleDurationBased:
		return interval.Duration() >= rule.MinDuration
	case RuleDiscount:
		return true
	}
	return false
}

func apply(rule Rule, price float64) float64 {
	var after float64
	if rule.Type == RuleDiscount {
		after = price - price*rule.Factor/100
	} else {
		after = price * rule.Factor
	}
	if after < 0 {
		after = 0
	}
	return round2(after)
}

func dateOnly(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
