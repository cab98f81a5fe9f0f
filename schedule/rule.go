package schedule

import (
	"fmt"
	"time"
)

// =============================================================================
// RECURRENCE RULE - Tagged variant, one case per kind
// =============================================================================

type Kind string

const (
	KindWeekly  Kind = "weekly"
	KindMonthly Kind = "monthly"
	KindYearly  Kind = "yearly"
	KindCustom  Kind = "custom"
)

// Recurrence computes occurrence dates for one rule kind. Each implementation
// carries only the parameters meaningful for its kind; absent parameters fall
// back to deriving the value from the anchor date.
//
// OccurrenceAfter returns the iteration-th occurrence strictly after anchor
// (1-based: the 1st repeat, the 2nd repeat, ...). The anchor itself is never
// re-emitted. iteration <= 0 is a programmer error.
type Recurrence interface {
	Kind() Kind
	OccurrenceAfter(anchor TimePoint, iteration int) TimePoint
}

// Rule ties a recurrence to its anchor and optional end date.
type Rule struct {
	Anchor TimePoint
	End    *TimePoint
	Recur  Recurrence
}

// OccurrenceAt returns the iteration-th occurrence of the rule.
func (r Rule) OccurrenceAt(iteration int) TimePoint {
	if iteration <= 0 {
		panic(fmt.Sprintf("schedule: iteration must be positive, got %d", iteration))
	}
	return r.Recur.OccurrenceAfter(r.Anchor, iteration)
}

// Validate checks rule invariants. Callers reject invalid rules at account
// creation time; the evaluator assumes rules that passed here.
func (r Rule) Validate() error {
	if r.Recur == nil {
		return &RuleError{Field: "kind", Reason: "recurrence is required"}
	}
	if r.Anchor.IsZero() {
		return &RuleError{Field: "anchor_date", Reason: "anchor date is required"}
	}
	if r.End != nil && r.End.Before(r.Anchor) {
		return &RuleError{Field: "end_date", Reason: "end date before anchor date"}
	}
	switch rec := r.Recur.(type) {
	case Weekly:
		if rec.DayOfWeek != nil && (*rec.DayOfWeek < time.Sunday || *rec.DayOfWeek > time.Saturday) {
			return &RuleError{Field: "day_of_week", Reason: "must be 0 (Sunday) through 6 (Saturday)"}
		}
	case Monthly:
		if err := validateDayOfMonth(rec.DayOfMonth); err != nil {
			return err
		}
	case Yearly:
		if rec.Month != nil && (*rec.Month < time.January || *rec.Month > time.December) {
			return &RuleError{Field: "month_of_year", Reason: "must be 1 through 12"}
		}
		if err := validateDayOfMonth(rec.DayOfMonth); err != nil {
			return err
		}
	case Custom:
		if err := validateDayOfMonth(rec.DayOfMonth); err != nil {
			return err
		}
	default:
		return &RuleError{Field: "kind", Reason: fmt.Sprintf("unknown recurrence kind %q", rec.Kind())}
	}
	return nil
}

func validateDayOfMonth(day *int) error {
	if day != nil && (*day < 1 || *day > 31) {
		return &RuleError{Field: "day_of_month", Reason: "must be 1 through 31"}
	}
	return nil
}

// =============================================================================
// KINDS
// =============================================================================

// Weekly repeats every week on DayOfWeek (anchor's weekday when nil).
type Weekly struct {
	DayOfWeek *time.Weekday
}

func (w Weekly) Kind() Kind { return KindWeekly }

func (w Weekly) OccurrenceAfter(anchor TimePoint, iteration int) TimePoint {
	target := anchor.Weekday()
	if w.DayOfWeek != nil {
		target = *w.DayOfWeek
	}
	// Next hit of the target weekday strictly after the anchor.
	diff := (int(target) - int(anchor.Weekday()) + 7) % 7
	if diff == 0 {
		diff = 7
	}
	return anchor.AddDays(diff).AddWeeks(iteration - 1)
}

// Monthly repeats every month on DayOfMonth (anchor's day when nil), clamped
// per target month. Clamping is not sticky: day 31 yields Feb 28 then Mar 31.
type Monthly struct {
	DayOfMonth *int
}

func (m Monthly) Kind() Kind { return KindMonthly }

func (m Monthly) OccurrenceAfter(anchor TimePoint, iteration int) TimePoint {
	day := anchor.Day()
	if m.DayOfMonth != nil {
		day = *m.DayOfMonth
	}
	return monthlySpacing(anchor, day, iteration)
}

// Yearly repeats every year on Month/DayOfMonth (anchor's when nil),
// re-clamped per year so Feb 29 rules land on Feb 28 in non-leap years.
type Yearly struct {
	Month      *time.Month
	DayOfMonth *int
}

func (y Yearly) Kind() Kind { return KindYearly }

func (y Yearly) OccurrenceAfter(anchor TimePoint, iteration int) TimePoint {
	month := anchor.Month()
	if y.Month != nil {
		month = *y.Month
	}
	day := anchor.Day()
	if y.DayOfMonth != nil {
		day = *y.DayOfMonth
	}
	year := anchor.Year()
	first := NewTimePoint(year, month, ClampDayOfMonth(year, month, day))
	years := iteration - 1
	if !first.After(anchor) {
		years++
	}
	target := year + years
	return NewTimePoint(target, month, ClampDayOfMonth(target, month, day))
}

// Custom repeats with monthly spacing. A separate type so a distinct spacing
// can slot in later without changing the wire shape; see DESIGN.md.
type Custom struct {
	DayOfMonth *int
}

func (c Custom) Kind() Kind { return KindCustom }

func (c Custom) OccurrenceAfter(anchor TimePoint, iteration int) TimePoint {
	day := anchor.Day()
	if c.DayOfMonth != nil {
		day = *c.DayOfMonth
	}
	return monthlySpacing(anchor, day, iteration)
}

// monthlySpacing is the shared month-stepping core: clamp the target day in
// the anchor's month, advance one month if that candidate is not strictly
// after the anchor, then step whole months, re-clamping per month.
func monthlySpacing(anchor TimePoint, day int, iteration int) TimePoint {
	year, month := anchor.Year(), anchor.Month()
	first := NewTimePoint(year, month, ClampDayOfMonth(year, month, day))
	months := iteration - 1
	if !first.After(anchor) {
		months++
	}
	total := year*12 + int(month) - 1 + months
	ty, tm := total/12, time.Month(total%12+1)
	return NewTimePoint(ty, tm, ClampDayOfMonth(ty, tm, day))
}
