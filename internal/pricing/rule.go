package pricing

import (
	"net/http"
	"time"

	"github.com/nekogravitycat/parking-booking-backend/internal/pkg/apperror"
)

var ErrRuleEvaluation = apperror.New(http.StatusInternalServerError, "malformed price rule configuration")

// RuleType discriminates how a price rule's applicability and effect are
// evaluated.
type RuleType string

const (
	RuleTimeBased     RuleType = "time_based"
	RuleDayBased      RuleType = "day_based"
	RuleDateBased     RuleType = "date_based"
	RuleDurationBased RuleType = "duration_based"
	RuleDiscount      RuleType = "discount"
)

// ValidRuleTypes lists every accepted rule type, used by write-path
// validation.
var ValidRuleTypes = []RuleType{
	RuleTimeBased,
	RuleDayBased,
	RuleDateBased,
	RuleDurationBased,
	RuleDiscount,
}

// Rule is a single pricing rule owned by a parking. Multiplicative types
// scale the running price by Factor; discount subtracts Factor percent.
// Only the config fields matching Type are consulted.
type Rule struct {
	ID        string
	ParkingID string
	Name      string
	Type      RuleType
	Factor    float64
	IsActive  bool
	Priority  int

	// time_based: applies when the interval starts inside [StartMin, EndMin).
	StartMin int
	EndMin   int

	// day_based: applies when the interval starts on one of these weekdays.
	Days []time.Weekday

	// date_based: applies when the interval starts inside [StartDate, EndDate].
	StartDate *time.Time
	EndDate   *time.Time

	// duration_based: applies when the interval lasts at least MinDuration.
	MinDuration time.Duration

	CreatedAt time.Time
}

// Interval is the half-open [Start, End) booking window a quote is computed
// for.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Duration returns the interval's length.
func (iv Interval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// Applied is one frozen breakdown entry: the rule identity at the moment it
// was applied and the absolute price delta it caused. A booking's list of
// applied rules is an immutable point-in-time ledger; it is never recomputed
// from live rules.
type Applied struct {
	RuleID        string   `json:"rule_id"`
	RuleName      string   `json:"rule_name"`
	RuleType      RuleType `json:"rule_type"`
	Factor        float64  `json:"factor"`
	EffectOnPrice float64  `json:"effect_on_price"`
}
