package schedule

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRange      = errors.New("range start must be before end")
	ErrOverlappingRanges = errors.New("ranges must not overlap")
	ErrRangeOutOfDay     = errors.New("range must fit within a single day")
)

// MinutesPerDay is the number of wall-clock minutes in one calendar day.
const MinutesPerDay = 24 * 60

// Range is an open time window expressed in wall-clock minutes since
// midnight, half-open: [StartMin, EndMin).
type Range struct {
	StartMin int
	EndMin   int
}

// Weekly is the default recurring open-hour pattern. A weekday with no entry
// (or an empty slice) is closed on that day.
type Weekly map[time.Weekday][]Range

// Exception overrides the weekly pattern for a single calendar date.
// When Available is false the date is fully closed. When Available is true
// the Ranges replace the weekday pattern entirely; no merging happens.
type Exception struct {
	Date      string // civil date, formatted as DateLayout
	Available bool
	Ranges    []Range
}

// Exceptions is keyed by civil date string (DateLayout).
type Exceptions map[string]Exception

// DateLayout is the civil date key format used for exceptions.
const DateLayout = "2006-01-02"

// DateKey formats a timestamp's calendar date (UTC) as an exception key.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// Validate checks that ranges are well-formed: each start before its end,
// inside a single day, sorted, and mutually non-overlapping.
func Validate(ranges []Range) error {
	for i, r := range ranges {
		if r.StartMin >= r.EndMin {
			return fmt.Errorf("range %d (%d-%d): %w", i, r.StartMin, r.EndMin, ErrInvalidRange)
		}
		if r.StartMin < 0 || r.EndMin > MinutesPerDay {
			return fmt.Errorf("range %d (%d-%d): %w", i, r.StartMin, r.EndMin, ErrRangeOutOfDay)
		}
		if i > 0 && r.StartMin < ranges[i-1].EndMin {
			return fmt.Errorf("range %d starts before range %d ends: %w", i, i-1, ErrOverlappingRanges)
		}
	}
	return nil
}

// ValidateWeekly validates every day of a weekly pattern.
func ValidateWeekly(w Weekly) error {
	for day, ranges := range w {
		if err := Validate(ranges); err != nil {
			return fmt.Errorf("%s: %w", day, err)
		}
	}
	return nil
}
