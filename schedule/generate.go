package schedule

import (
	"github.com/sirupsen/logrus"
)

// =============================================================================
// DATE-SEQUENCE GENERATOR - Windowed due dates from a rule
// =============================================================================

// maxIterations bounds a single generation pass. A well-formed rule never
// gets near it (weekly over a 3-month horizon is ~13 occurrences); hitting
// it means a malformed rule, and the sequence is truncated rather than
// failing the whole pass.
const maxIterations = 1000

// Generator produces the bounded due-date sequence for a rule.
//
// The window runs from the first occurrence strictly after the rule's anchor
// through the end of the calendar month Horizon months after "today". The
// right edge tracks the current date, not the anchor, so accounts created in
// the past yield their full backlog plus upcoming occurrences. Month
// granularity bounds the final inclusion.
type Generator struct {
	Horizon int // months ahead of today
	Log     *logrus.Logger
	Now     func() TimePoint // defaults to Today
}

func NewGenerator(horizonMonths int, log *logrus.Logger) *Generator {
	return &Generator{Horizon: horizonMonths, Log: log}
}

// DueDates returns the rule's due dates inside the current window, in
// increasing date order. It is a pure function of the rule and today's date:
// calling it again at the same instant yields the same answer.
func (g *Generator) DueDates(rule Rule) []TimePoint {
	return g.DueDatesAt(rule, g.now())
}

// DueDatesAt is DueDates with an explicit "today", for deterministic callers.
func (g *Generator) DueDatesAt(rule Rule, today TimePoint) []TimePoint {
	edge := today.AddMonths(g.Horizon)
	edgeMonth := monthIndex(edge)

	var dates []TimePoint
	for i := 1; ; i++ {
		if i > maxIterations {
			if g.Log != nil {
				g.Log.WithFields(logrus.Fields{
					"kind":      rule.Recur.Kind(),
					"anchor":    rule.Anchor.DateKey(),
					"collected": len(dates),
				}).Warn("generation hit iteration ceiling, truncating sequence")
			}
			break
		}
		occ := rule.OccurrenceAt(i)
		if rule.End != nil && occ.After(*rule.End) {
			break
		}
		if monthIndex(occ) > edgeMonth {
			break
		}
		dates = append(dates, occ)
	}
	return dates
}

func (g *Generator) now() TimePoint {
	if g.Now != nil {
		return g.Now()
	}
	return Today()
}
