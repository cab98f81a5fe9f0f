/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  All calendar dates cross this boundary as YYYY-MM-DD strings. Amounts are
  decimal strings, never floats.

VALIDATION:
  Validation is done in handlers (rules via the factory package). DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/rule.go: RuleJSON type
*/
package api

import (
	"time"

	"github.com/warp/bill-engine/factory"
	"github.com/warp/bill-engine/schedule"
)

// AccountDTO represents an account in API responses.
type AccountDTO struct {
	ID     string           `json:"id"`
	Name   string           `json:"name"`
	Amount string           `json:"amount"`
	Rule   factory.RuleJSON `json:"rule"`
}

// CreateAccountRequest is the request to create or update an account.
type CreateAccountRequest struct {
	Name   string           `json:"name"`
	Amount string           `json:"amount"`
	Rule   factory.RuleJSON `json:"rule"`
}

// InstanceDTO represents a payment instance in API responses.
type InstanceDTO struct {
	ID        string  `json:"id"`
	AccountID string  `json:"account_id"`
	DueDate   string  `json:"due_date"`
	Amount    string  `json:"amount"`
	Paid      bool    `json:"paid"`
	PaidAt    *string `json:"paid_at,omitempty"`
	Note      string  `json:"note,omitempty"`
}

// UpdateInstanceRequest carries a user edit. Absent fields are unchanged.
type UpdateInstanceRequest struct {
	Amount *string `json:"amount,omitempty"`
	Paid   *bool   `json:"paid,omitempty"`
	Note   *string `json:"note,omitempty"`
}

// GenerateResponseDTO reports a reconciliation pass.
type GenerateResponseDTO struct {
	AccountID    string   `json:"account_id"`
	Created      int      `json:"created"`
	Skipped      int      `json:"skipped"`
	CreatedDates []string `json:"created_dates,omitempty"`
	SkippedDates []string `json:"skipped_dates,omitempty"`
}

// GenerateAllResponseDTO reports a generate-all pass.
type GenerateAllResponseDTO struct {
	Accounts int `json:"accounts"`
	Created  int `json:"created"`
	Skipped  int `json:"skipped"`
	Failed   int `json:"failed"`
}

// AuditEntryDTO represents one audit log entry.
type AuditEntryDTO struct {
	ID           string `json:"id"`
	At           string `json:"at"`
	Action       string `json:"action"`
	SubjectTable string `json:"subject_table"`
	SubjectID    string `json:"subject_id"`
	Details      string `json:"details"`
}

// ErrorDTO is the uniform error body.
type ErrorDTO struct {
	Error string `json:"error"`
}

// Converters

func accountToDTO(a schedule.Account) AccountDTO {
	return AccountDTO{
		ID:     a.ID,
		Name:   a.Name,
		Amount: a.Amount.String(),
		Rule:   factory.ToJSON(a.Rule),
	}
}

func instanceToDTO(inst schedule.Instance) InstanceDTO {
	dto := InstanceDTO{
		ID:        inst.ID,
		AccountID: inst.AccountID,
		DueDate:   inst.DueDate.DateKey(),
		Amount:    inst.Amount.String(),
		Paid:      inst.Paid,
		Note:      inst.Note,
	}
	if inst.PaidAt != nil {
		s := inst.PaidAt.UTC().Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

func resultToDTO(accountID string, res schedule.Result) GenerateResponseDTO {
	return GenerateResponseDTO{
		AccountID:    accountID,
		Created:      res.CreatedCount(),
		Skipped:      res.SkippedCount(),
		CreatedDates: dateKeys(res.Created),
		SkippedDates: dateKeys(res.Skipped),
	}
}

func dateKeys(dates []schedule.TimePoint) []string {
	if len(dates) == 0 {
		return nil
	}
	keys := make([]string, len(dates))
	for i, d := range dates {
		keys[i] = d.DateKey()
	}
	return keys
}

func auditToDTO(e schedule.AuditEntry) AuditEntryDTO {
	return AuditEntryDTO{
		ID:           e.ID,
		At:           e.At.UTC().Format(time.RFC3339),
		Action:       e.Action,
		SubjectTable: e.SubjectTable,
		SubjectID:    e.SubjectID,
		Details:      e.Details,
	}
}
