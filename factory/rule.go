/*
Package factory provides JSON to Go recurrence rule conversion.

PURPOSE:
  Converts JSON rule definitions into schedule.Rule values and back. Rules
  arrive as JSON from the API and are stored as JSON config on the account
  row, so this is the single place the wire shape is defined.

JSON SCHEMA:
  {
    "kind": "monthly",            // weekly | monthly | yearly | custom
    "anchor_date": "2025-01-15",  // YYYY-MM-DD
    "end_date": "2026-01-15",     // optional
    "day_of_week": 1,             // weekly: 0=Sunday..6=Saturday, optional
    "day_of_month": 31,           // monthly/yearly/custom: 1..31, optional
    "month_of_year": 2            // yearly: 1..12, optional
  }

  Absent kind-specific parameters fall back to deriving the value from the
  anchor date.

VALIDATION:
  ParseRule validates ranges and the end-after-anchor invariant and returns
  schedule.RuleError for violations. Rules that pass here are what the
  evaluator assumes.

SEE ALSO:
  - schedule/rule.go: the tagged variant this package constructs
  - store/sqlite: persists RuleJSON on the accounts table
*/
package factory

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/bill-engine/schedule"
)

// RuleJSON is the wire and storage representation of a recurrence rule.
type RuleJSON struct {
	Kind        string `json:"kind"`
	AnchorDate  string `json:"anchor_date"`
	EndDate     string `json:"end_date,omitempty"`
	DayOfWeek   *int   `json:"day_of_week,omitempty"`
	DayOfMonth  *int   `json:"day_of_month,omitempty"`
	MonthOfYear *int   `json:"month_of_year,omitempty"`
}

// ParseRule parses a JSON string into a validated schedule.Rule.
func ParseRule(jsonStr string) (schedule.Rule, error) {
	var rj RuleJSON
	if err := json.Unmarshal([]byte(jsonStr), &rj); err != nil {
		return schedule.Rule{}, fmt.Errorf("failed to parse rule JSON: %w", err)
	}
	return FromJSON(rj)
}

// FromJSON converts the JSON shape into the tagged variant.
func FromJSON(rj RuleJSON) (schedule.Rule, error) {
	anchor, err := schedule.ParseDate(rj.AnchorDate)
	if err != nil {
		return schedule.Rule{}, &schedule.RuleError{Field: "anchor_date", Reason: err.Error()}
	}

	rule := schedule.Rule{Anchor: anchor}
	if rj.EndDate != "" {
		end, err := schedule.ParseDate(rj.EndDate)
		if err != nil {
			return schedule.Rule{}, &schedule.RuleError{Field: "end_date", Reason: err.Error()}
		}
		rule.End = &end
	}

	switch schedule.Kind(rj.Kind) {
	case schedule.KindWeekly:
		var dow *time.Weekday
		if rj.DayOfWeek != nil {
			d := time.Weekday(*rj.DayOfWeek)
			dow = &d
		}
		rule.Recur = schedule.Weekly{DayOfWeek: dow}
	case schedule.KindMonthly:
		rule.Recur = schedule.Monthly{DayOfMonth: rj.DayOfMonth}
	case schedule.KindYearly:
		var month *time.Month
		if rj.MonthOfYear != nil {
			m := time.Month(*rj.MonthOfYear)
			month = &m
		}
		rule.Recur = schedule.Yearly{Month: month, DayOfMonth: rj.DayOfMonth}
	case schedule.KindCustom:
		rule.Recur = schedule.Custom{DayOfMonth: rj.DayOfMonth}
	default:
		return schedule.Rule{}, &schedule.RuleError{Field: "kind", Reason: fmt.Sprintf("unknown kind %q", rj.Kind)}
	}

	if err := rule.Validate(); err != nil {
		return schedule.Rule{}, err
	}
	return rule, nil
}

// ToJSON converts a rule back into its wire shape.
func ToJSON(rule schedule.Rule) RuleJSON {
	rj := RuleJSON{
		Kind:       string(rule.Recur.Kind()),
		AnchorDate: rule.Anchor.DateKey(),
	}
	if rule.End != nil {
		rj.EndDate = rule.End.DateKey()
	}
	switch rec := rule.Recur.(type) {
	case schedule.Weekly:
		if rec.DayOfWeek != nil {
			d := int(*rec.DayOfWeek)
			rj.DayOfWeek = &d
		}
	case schedule.Monthly:
		rj.DayOfMonth = rec.DayOfMonth
	case schedule.Yearly:
		if rec.Month != nil {
			m := int(*rec.Month)
			rj.MonthOfYear = &m
		}
		rj.DayOfMonth = rec.DayOfMonth
	case schedule.Custom:
		rj.DayOfMonth = rec.DayOfMonth
	}
	return rj
}

// Serialize renders a rule as its canonical JSON string for storage.
func Serialize(rule schedule.Rule) (string, error) {
	data, err := json.Marshal(ToJSON(rule))
	if err != nil {
		return "", fmt.Errorf("failed to serialize rule: %w", err)
	}
	return string(data), nil
}
