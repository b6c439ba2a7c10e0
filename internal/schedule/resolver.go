package schedule

import "time"

// Resolve returns the open ranges for a single calendar date.
//
// An exception for the date wins over the weekly pattern: an unavailable
// exception closes the whole day, an available one replaces the weekday
// ranges verbatim. Without an exception the weekday pattern applies.
//
// Resolve is pure: it never mutates its inputs and always copies its result,
// so it is safe to call concurrently and repeatedly.
func Resolve(weekly Weekly, exceptions Exceptions, date time.Time) []Range {
	if exc, ok := exceptions[DateKey(date)]; ok {
		if !exc.Available {
			return nil
		}
		return copyRanges(exc.Ranges)
	}
	return copyRanges(weekly[date.UTC().Weekday()])
}

// Contains reports whether [startMin, endMin) lies fully inside one of the
// open ranges. A sub-interval spanning two adjacent ranges does not count.
func Contains(ranges []Range, startMin, endMin int) bool {
	for _, r := range ranges {
		if startMin >= r.StartMin && endMin <= r.EndMin {
			return true
		}
	}
	return false
}

// DaySlice is one calendar day's share of a timestamp interval, expressed in
// minutes since that day's midnight.
type DaySlice struct {
	Date     time.Time // midnight UTC of the day
	StartMin int
	EndMin   int // up to MinutesPerDay when the interval runs past midnight
}

// SplitDays cuts a half-open [start, end) interval at UTC midnights. Each
// slice must be checked against its own day's resolved ranges; an interval
// spanning midnight is only bookable if every slice fits its day.
func SplitDays(start, end time.Time) []DaySlice {
	start = start.UTC()
	end = end.UTC()
	if !start.Before(end) {
		return nil
	}

	var slices []DaySlice
	day := time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC)
	for day.Before(end) {
		next := day.AddDate(0, 0, 1)

		sliceStart := 0
		if start.After(day) {
			sliceStart = minutesIntoDay(start, day)
		}
		sliceEnd := MinutesPerDay
		if end.Before(next) {
			sliceEnd = minutesIntoDayCeil(end, day)
		}
		if sliceStart < sliceEnd {
			slices = append(slices, DaySlice{Date: day, StartMin: sliceStart, EndMin: sliceEnd})
		}
		day = next
	}
	return slices
}

// DayOpening pairs a calendar date with its resolved open ranges.
type DayOpening struct {
	Date   string  `json:"date"`
	Ranges []Range `json:"ranges"`
}

// OpenIntervals resolves every date in [from, to] (inclusive, calendar days)
// and returns the per-day openings in date order. Used by the display path;
// days that resolve to empty are included with nil ranges so callers can
// render closed days.
func OpenIntervals(weekly Weekly, exceptions Exceptions, from, to time.Time) []DayOpening {
	from = from.UTC()
	to = to.UTC()

	day := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	last := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)

	var openings []DayOpening
	for !day.After(last) {
		openings = append(openings, DayOpening{
			Date:   DateKey(day),
			Ranges: Resolve(weekly, exceptions, day),
		})
		day = day.AddDate(0, 0, 1)
	}
	return openings
}

// Slice starts truncate down and ends round up, so a slice always covers the
// real interval: sub-minute tails past a range end must fail Contains rather
// than slip inside it.
func minutesIntoDay(t, midnight time.Time) int {
	return int(t.Sub(midnight) / time.Minute)
}

func minutesIntoDayCeil(t, midnight time.Time) int {
	d := t.Sub(midnight)
	m := int(d / time.Minute)
	if d%time.Minute != 0 {
		m++
	}
	return m
}

func copyRanges(ranges []Range) []Range {
	if len(ranges) == 0 {
		return nil
	}
	out := make([]Range, len(ranges))
	copy(out, ranges)
	return out
}
