package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date abstraction (this system has no time-of-day)
// =============================================================================

// TimePoint is a calendar date. All comparisons and uniqueness checks go
// through DateKey; instants never matter.
type TimePoint struct {
	Time time.Time
}

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	if month < time.January || month > time.December {
		panic(fmt.Sprintf("schedule: month out of range: %d", month))
	}
	if day < 1 || day > LastDayOfMonth(year, month) {
		panic(fmt.Sprintf("schedule: day out of range: %d for %d-%02d", day, year, month))
	}
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func Today() TimePoint {
	now := time.Now()
	return NewTimePoint(now.Year(), now.Month(), now.Day())
}

// ParseDate parses a YYYY-MM-DD string, the only wire format for dates.
func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return TimePoint{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return TimePoint{Time: t}, nil
}

// DateKey returns the canonical YYYY-MM-DD key for this date.
func (tp TimePoint) DateKey() string { return tp.normalize().Format("2006-01-02") }

func (tp TimePoint) String() string { return tp.DateKey() }

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return tp.Before(other) || tp.Equal(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return tp.After(other) || tp.Equal(other) }

func (tp TimePoint) normalize() time.Time {
	return time.Date(tp.Time.Year(), tp.Time.Month(), tp.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint  { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }
func (tp TimePoint) AddWeeks(n int) TimePoint { return tp.AddDays(7 * n) }

// AddMonths preserves the day-of-month where valid and clamps it to the target
// month's length otherwise (Jan 31 + 1 month = Feb 28/29, never Mar 3).
func (tp TimePoint) AddMonths(n int) TimePoint {
	total := tp.Year()*12 + int(tp.Month()) - 1 + n
	year, month := total/12, time.Month(total%12+1)
	return NewTimePoint(year, month, ClampDayOfMonth(year, month, tp.Day()))
}

// AddYears preserves month/day, clamping Feb 29 to Feb 28 in non-leap years.
func (tp TimePoint) AddYears(n int) TimePoint {
	year := tp.Year() + n
	return NewTimePoint(year, tp.Month(), ClampDayOfMonth(year, tp.Month(), tp.Day()))
}

// Properties
func (tp TimePoint) Year() int             { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month     { return tp.Time.Month() }
func (tp TimePoint) Day() int              { return tp.Time.Day() }
func (tp TimePoint) Weekday() time.Weekday { return tp.normalize().Weekday() }
func (tp TimePoint) IsZero() bool          { return tp.Time.IsZero() }

// =============================================================================
// CALENDAR ARITHMETIC
// =============================================================================

// LastDayOfMonth returns the number of days in year/month, leap-year correct.
func LastDayOfMonth(year int, month time.Month) int {
	if month < time.January || month > time.December {
		panic(fmt.Sprintf("schedule: month out of range: %d", month))
	}
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// ClampDayOfMonth returns min(day, LastDayOfMonth(year, month)).
// day < 1 is a programmer error, not a clampable input.
func ClampDayOfMonth(year int, month time.Month, day int) int {
	if day < 1 {
		panic(fmt.Sprintf("schedule: day out of range: %d", day))
	}
	if last := LastDayOfMonth(year, month); day > last {
		return last
	}
	return day
}

// DaysBetween returns the signed number of days from from to to.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }

func EndOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month, LastDayOfMonth(year, month))
}

// monthIndex orders dates at month granularity: the generator's window is
// bounded by month, not by day.
func monthIndex(tp TimePoint) int { return tp.Year()*12 + int(tp.Month()) - 1 }
