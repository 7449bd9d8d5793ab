// Package period turns leaderboard period keywords and free-text date
// expressions into concrete time intervals in one fixed time zone.
//
// Intervals are closed: both Start and End are inclusive. Calendar math is
// done with time.Date so day boundaries stay correct across DST shifts.
package period

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownPeriod = errors.New("unknown period")
	ErrBadDate       = errors.New("unrecognized date")
	ErrInvertedRange = errors.New("range start is after range end")
)

// Scale is the granularity of an interval, used to pick leaderboard detail.
type Scale int

const (
	ScaleDay Scale = iota
	ScaleWeek
	ScaleMonth
)

func (s Scale) String() string {
	switch s {
	case ScaleDay:
		return "day"
	case ScaleWeek:
		return "week"
	default:
		return "month"
	}
}

// Interval is a closed [Start, End] window with a display label.
type Interval struct {
	Start time.Time
	End   time.Time
	Label string
	Scale Scale
}

// Contains reports whether t lies within the interval, bounds included.
func (iv Interval) Contains(t time.Time) bool {
	return !t.Before(iv.Start) && !t.After(iv.End)
}

// Period keywords.
const (
	Today     = "today"
	Yesterday = "yesterday"
	Week      = "week"
	LastWeek  = "last week"
	Month     = "month"
	LastMonth = "last month"
)

// Keywords lists the fixed period vocabulary in display order.
var Keywords = []string{Today, Yesterday, Week, LastWeek, Month, LastMonth}

// IsKeyword reports whether s names a fixed period.
func IsKeyword(s string) bool {
	s = normalize(s)
	for _, k := range Keywords {
		if s == k {
			return true
		}
	}
	return false
}

// Resolver computes intervals relative to "now" in a fixed location.
type Resolver struct {
	loc *time.Location
	now func() time.Time
}

// NewResolver creates a resolver. A nil now uses time.Now; a nil loc uses UTC.
func NewResolver(loc *time.Location, now func() time.Time) *Resolver {
	if loc == nil {
		loc = time.UTC
	}
	if now == nil {
		now = time.Now
	}
	return &Resolver{loc: loc, now: now}
}

// Location returns the resolver's fixed time zone.
func (r *Resolver) Location() *time.Location {
	return r.loc
}

// Now returns the current instant in the resolver's zone.
func (r *Resolver) Now() time.Time {
	return r.now().In(r.loc)
}

// Resolve accepts either a period keyword or a free-text date expression.
// An empty argument means today.
func (r *Resolver) Resolve(arg string) (Interval, error) {
	arg = normalize(arg)
	if arg == "" {
		return r.Period(Today)
	}
	if IsKeyword(arg) {
		return r.Period(arg)
	}
	return r.FreeText(arg)
}

// Period resolves one of the fixed keywords.
func (r *Resolver) Period(name string) (Interval, error) {
	now := r.Now()
	today := midnight(now)

	switch normalize(name) {
	case Today:
		return Interval{Start: today, End: now, Label: "Today", Scale: ScaleDay}, nil

	case Yesterday:
		start := addDays(today, -1)
		return Interval{Start: start, End: endOfDay(start), Label: "Yesterday", Scale: ScaleDay}, nil

	case Week:
		return Interval{Start: weekStart(today), End: now, Label: "This Week", Scale: ScaleWeek}, nil

	case LastWeek:
		thisWeek := weekStart(today)
		start := addDays(thisWeek, -7)
		end := thisWeek.Add(-time.Nanosecond)
		return Interval{
			Start: start,
			End:   end,
			Label: "Last Week (" + RangeLabel(start, end) + ")",
			Scale: ScaleWeek,
		}, nil

	case Month:
		start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		return Interval{Start: start, End: now, Label: start.Format("January 2006"), Scale: ScaleMonth}, nil

	case LastMonth:
		thisMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, r.loc)
		start := time.Date(now.Year(), now.Month()-1, 1, 0, 0, 0, 0, r.loc)
		return Interval{
			Start: start,
			End:   thisMonth.Add(-time.Nanosecond),
			Label: start.Format("January 2006"),
			Scale: ScaleMonth,
		}, nil
	}
	return Interval{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, name)
}

// Day returns the full calendar day containing t.
func (r *Resolver) Day(t time.Time) Interval {
	start := midnight(t.In(r.loc))
	return Interval{Start: start, End: endOfDay(start), Label: RangeLabel(start, start), Scale: ScaleDay}
}

// MonthOf returns the full calendar month containing t.
func (r *Resolver) MonthOf(t time.Time) Interval {
	t = t.In(r.loc)
	start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, r.loc)
	next := time.Date(t.Year(), t.Month()+1, 1, 0, 0, 0, 0, r.loc)
	return Interval{Start: start, End: next.Add(-time.Nanosecond), Label: start.Format("January 2006"), Scale: ScaleMonth}
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

func addDays(t time.Time, n int) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day()+n, 0, 0, 0, 0, t.Location())
}

// endOfDay returns the last representable instant of the day starting at
// start (23:59:59.999999999).
func endOfDay(start time.Time) time.Time {
	return addDays(start, 1).Add(-time.Nanosecond)
}

// weekStart returns midnight of the Monday on or before day.
func weekStart(day time.Time) time.Time {
	offset := (int(day.Weekday()) + 6) % 7
	return addDays(day, -offset)
}
