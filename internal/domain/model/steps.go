package model

import (
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"
)

// Range is an inclusive span of calendar dates. All dates are UTC.
type Range struct {
	Start civil.Date
	End   civil.Date
}

// Days returns the number of days between Start and End. A single-day range
// spans 0 days.
func (r Range) Days() int {
	return r.End.DaysSince(r.Start)
}

// Contains reports whether d falls inside the range, inclusive on both ends.
func (r Range) Contains(d civil.Date) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// Validate checks start <= end and end <= today.
func (r Range) Validate(today civil.Date) error {
	if r.Start.After(r.End) {
		return fmt.Errorf("%w: start date %s is after end date %s", ErrDateOutOfRange, r.Start, r.End)
	}
	if r.End.After(today) {
		return fmt.Errorf("%w: end date %s is in the future (today is %s UTC)", ErrDateOutOfRange, r.End, today)
	}
	return nil
}

func (r Range) String() string {
	return r.Start.String() + ".." + r.End.String()
}

// Today returns the current UTC calendar date.
func Today(now time.Time) civil.Date {
	return civil.DateOf(now.UTC())
}

// DayEpoch returns the unix timestamp of 00:00 UTC on d.
func DayEpoch(d civil.Date) int64 {
	return d.In(time.UTC).Unix()
}

// DateOfEpoch returns the UTC calendar date containing the unix timestamp.
func DateOfEpoch(epoch int64) civil.Date {
	return civil.DateOf(time.Unix(epoch, 0).UTC())
}

// Period is a named upstream query granularity.
type Period int

const (
	PeriodOneDay Period = iota
	PeriodOneWeek
	PeriodOneMonth
	PeriodThreeMonths
	PeriodSixMonths
	PeriodOneYear
)

// MaxPeriodDays is the widest span a single upstream call may cover.
const MaxPeriodDays = 364

// String returns the path token the upstream API expects.
func (p Period) String() string {
	switch p {
	case PeriodOneDay:
		return "1d"
	case PeriodOneWeek:
		return "1w"
	case PeriodOneMonth:
		return "1m"
	case PeriodThreeMonths:
		return "3m"
	case PeriodSixMonths:
		return "6m"
	case PeriodOneYear:
		return "1y"
	default:
		return "unknown"
	}
}

// PeriodFor returns the smallest period covering a span of the given number of days.
func PeriodFor(days int) (Period, error) {
	switch {
	case days < 0:
		return 0, fmt.Errorf("%w: negative span of %d days", ErrDateOutOfRange, days)
	case days == 0:
		return PeriodOneDay, nil
	case days <= 6:
		return PeriodOneWeek, nil
	case days <= 27:
		return PeriodOneMonth, nil
	case days <= 89:
		return PeriodThreeMonths, nil
	case days <= 179:
		return PeriodSixMonths, nil
	case days <= MaxPeriodDays:
		return PeriodOneYear, nil
	default:
		return 0, fmt.Errorf("%w: span of %d days exceeds one year", ErrDateOutOfRange, days)
	}
}

// StepCounts maps a calendar date to that day's step count.
type StepCounts map[civil.Date]uint32

// Dates returns the keys in ascending order.
func (s StepCounts) Dates() []civil.Date {
	dates := make([]civil.Date, 0, len(s))
	for d := range s {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// Last returns the latest date present. ok is false when s is empty.
func (s StepCounts) Last() (last civil.Date, ok bool) {
	for d := range s {
		if !ok || d.After(last) {
			last, ok = d, true
		}
	}
	return last, ok
}

// Merge copies every entry of other into s, overwriting existing dates.
func (s StepCounts) Merge(other StepCounts) {
	for d, n := range other {
		s[d] = n
	}
}

// Within returns the subset of s that falls inside r.
func (s StepCounts) Within(r Range) StepCounts {
	out := make(StepCounts, len(s))
	for d, n := range s {
		if r.Contains(d) {
			out[d] = n
		}
	}
	return out
}

// ContiguousFrom returns the longest run of consecutive dates in steps that
// begins exactly at start. The result is empty when start itself is missing
// and never contains a date past the first gap.
func ContiguousFrom(start civil.Date, steps StepCounts) StepCounts {
	out := make(StepCounts)
	for d := start; ; d = d.AddDays(1) {
		n, ok := steps[d]
		if !ok {
			return out
		}
		out[d] = n
	}
}

// StepFetch is the result of one upstream steps call. ResetIn is zero when the
// upstream did not report the rate-limit window.
type StepFetch struct {
	Steps   StepCounts
	ResetIn time.Duration
}
