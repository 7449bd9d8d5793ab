package period

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	rangeSep    = regexp.MustCompile(`\s+to\s+`)
	numericDate = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?$`)
	namedDate   = regexp.MustCompile(`^([a-z]+)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+(\d{4}))?$`)
)

var monthNames = map[string]time.Month{
	"jan": time.January, "january": time.January,
	"feb": time.February, "february": time.February,
	"mar": time.March, "march": time.March,
	"apr": time.April, "april": time.April,
	"may": time.May,
	"jun": time.June, "june": time.June,
	"jul": time.July, "july": time.July,
	"aug": time.August, "august": time.August,
	"sep": time.September, "sept": time.September, "september": time.September,
	"oct": time.October, "october": time.October,
	"nov": time.November, "november": time.November,
	"dec": time.December, "december": time.December,
}

// dateToken is one parsed date before year inference.
type dateToken struct {
	month   time.Month
	day     int
	year    int
	hasYear bool
}

// FreeText resolves "<date>" or "<date> to <date>". A date is MM/DD,
// MM/DD/YYYY, or "<month> <day>[ <year>]".
//
// A date without a year resolves to the current year unless that lands in
// the future, in which case the previous year is used. For a range with no
// years on either end, an end that falls before the start is moved one year
// forward (e.g. "Dec 20 to Jan 5").
func (r *Resolver) FreeText(expr string) (Interval, error) {
	expr = normalize(expr)
	if expr == "" {
		return Interval{}, fmt.Errorf("%w: empty expression", ErrBadDate)
	}
	now := r.Now()

	parts := rangeSep.Split(expr, -1)
	switch len(parts) {
	case 1:
		tok, err := parseDateToken(parts[0])
		if err != nil {
			return Interval{}, err
		}
		day, err := r.resolveToken(tok, now)
		if err != nil {
			return Interval{}, err
		}
		return Interval{Start: day, End: endOfDay(day), Label: RangeLabel(day, day), Scale: ScaleDay}, nil

	case 2:
		from, err := parseDateToken(parts[0])
		if err != nil {
			return Interval{}, err
		}
		to, err := parseDateToken(parts[1])
		if err != nil {
			return Interval{}, err
		}
		start, err := r.resolveToken(from, now)
		if err != nil {
			return Interval{}, err
		}
		endDay, err := r.resolveToken(to, now)
		if err != nil {
			return Interval{}, err
		}
		if !from.hasYear && !to.hasYear && endDay.Before(start) {
			endDay = time.Date(endDay.Year()+1, endDay.Month(), endDay.Day(), 0, 0, 0, 0, r.loc)
		}
		if start.After(endDay) {
			return Interval{}, fmt.Errorf("%w: %s", ErrInvertedRange, expr)
		}
		return Interval{
			Start: start,
			End:   endOfDay(endDay),
			Label: RangeLabel(start, endDay),
			Scale: scaleForSpan(start, endDay),
		}, nil
	}
	return Interval{}, fmt.Errorf("%w: %q", ErrBadDate, expr)
}

func parseDateToken(s string) (dateToken, error) {
	s = strings.TrimSpace(s)
	if m := numericDate.FindStringSubmatch(s); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		tok := dateToken{month: time.Month(month), day: day}
		if m[3] != "" {
			tok.year, _ = strconv.Atoi(m[3])
			if len(m[3]) == 2 {
				tok.year += 2000
			}
			tok.hasYear = true
		}
		return tok, nil
	}
	if m := namedDate.FindStringSubmatch(s); m != nil {
		month, ok := monthNames[m[1]]
		if !ok {
			return dateToken{}, fmt.Errorf("%w: unknown month %q", ErrBadDate, m[1])
		}
		day, _ := strconv.Atoi(m[2])
		tok := dateToken{month: month, day: day}
		if m[3] != "" {
			tok.year, _ = strconv.Atoi(m[3])
			tok.hasYear = true
		}
		return tok, nil
	}
	return dateToken{}, fmt.Errorf("%w: %q", ErrBadDate, s)
}

// resolveToken applies backward-only year inference and validates the date.
// A yearless date resolves to its most recent occurrence on or before now,
// so "2/29" in a common year means the last leap day.
func (r *Resolver) resolveToken(tok dateToken, now time.Time) (time.Time, error) {
	if tok.hasYear {
		return r.date(tok.year, tok.month, tok.day)
	}
	var firstErr error
	for year := now.Year(); year >= now.Year()-maxLeapGap; year-- {
		t, err := r.date(year, tok.month, tok.day)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !t.After(now) {
			return t, nil
		}
	}
	return time.Time{}, firstErr
}

// maxLeapGap is the longest run of years without a February 29.
const maxLeapGap = 8

func (r *Resolver) date(year int, month time.Month, day int) (time.Time, error) {
	if month < time.January || month > time.December || day < 1 {
		return time.Time{}, fmt.Errorf("%w: %d/%d", ErrBadDate, month, day)
	}
	t := time.Date(year, month, day, 0, 0, 0, 0, r.loc)
	if t.Month() != month || t.Day() != day {
		return time.Time{}, fmt.Errorf("%w: %s %d does not exist in %d", ErrBadDate, month, day, year)
	}
	return t, nil
}

func scaleForSpan(start, endDay time.Time) Scale {
	days := 0
	for d := start; d.Before(endDay); d = addDays(d, 1) {
		days++
		if days > 7 {
			return ScaleMonth
		}
	}
	if days == 0 {
		return ScaleDay
	}
	return ScaleWeek
}

// RangeLabel renders a human label for the days start..end:
//
//	same day:        January 2, 2026
//	same month:      Jan 2–5, 2026
//	same year:       Jan 2 – Feb 5, 2026
//	different years: Dec 20, 2025 – Jan 5, 2026
func RangeLabel(start, end time.Time) string {
	switch {
	case start.Year() == end.Year() && start.YearDay() == end.YearDay():
		return start.Format("January 2, 2006")
	case start.Year() == end.Year() && start.Month() == end.Month():
		return fmt.Sprintf("%s %d–%d, %d", start.Format("Jan"), start.Day(), end.Day(), start.Year())
	case start.Year() == end.Year():
		return fmt.Sprintf("%s – %s, %d", start.Format("Jan 2"), end.Format("Jan 2"), start.Year())
	default:
		return fmt.Sprintf("%s – %s", start.Format("Jan 2, 2006"), end.Format("Jan 2, 2006"))
	}
}
