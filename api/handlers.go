/*
handlers.go - HTTP handler implementations

PURPOSE:
  Connects the HTTP surface to the schedule engine and the SQLite store.
  Handlers validate input, call the engine, and map engine errors onto
  status codes (schedule.IsClientError -> 400, schedule.IsNotFound -> 404).

DESTRUCTIVE OPERATIONS:
  Regenerate (delete-then-recreate) is a separate endpoint from generate.
  The split is deliberate: the engine never decides to destroy user edits,
  only an explicit client call to /regenerate does.

SEE ALSO:
  - server.go: route wiring
  - schedule/materialize.go: the orchestration these handlers call
*/
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/bill-engine/factory"
	"github.com/warp/bill-engine/schedule"
	"github.com/warp/bill-engine/store/sqlite"
)

// Handler holds dependencies for all HTTP handlers.
type Handler struct {
	Store *sqlite.Store
	Mat   *schedule.Materializer
	Log   *logrus.Logger
}

// NewHandler creates a handler backed by the given store.
func NewHandler(store *sqlite.Store, horizonMonths int, log *logrus.Logger) *Handler {
	return &Handler{
		Store: store,
		Mat: &schedule.Materializer{
			Accounts:  store,
			Store:     store,
			Audit:     store,
			Generator: schedule.NewGenerator(horizonMonths, log),
			Log:       log,
		},
		Log: log,
	}
}

// =============================================================================
// ACCOUNTS
// =============================================================================

// ListAccounts returns all accounts.
func (h *Handler) ListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]AccountDTO, 0, len(accounts))
	for _, a := range accounts {
		dtos = append(dtos, accountToDTO(a))
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

// CreateAccount validates the rule, saves the account and materializes its
// initial schedule.
func (h *Handler) CreateAccount(w http.ResponseWriter, r *http.Request) {
	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid request body"})
		return
	}

	account, err := h.accountFromRequest(uuid.NewString(), req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.Mat.GenerateFor(r.Context(), account.ID, schedule.ModeSkipExisting)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, struct {
		Account  AccountDTO          `json:"account"`
		Schedule GenerateResponseDTO `json:"schedule"`
	}{accountToDTO(account), resultToDTO(account.ID, res)})
}

// GetAccount returns one account.
func (h *Handler) GetAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.Store.GetAccount(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, accountToDTO(account))
}

// UpdateAccount replaces name/amount/rule, then runs a skip-existing pass so
// the schedule catches up with the edited rule. Existing instances (and any
// user edits on them) survive; only missing dates are added.
func (h *Handler) UpdateAccount(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	var req CreateAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid request body"})
		return
	}

	account, err := h.accountFromRequest(id, req)
	if err != nil {
		h.writeError(w, err)
		return
	}

	if err := h.Store.SaveAccount(r.Context(), account); err != nil {
		h.writeError(w, err)
		return
	}

	res, err := h.Mat.GenerateFor(r.Context(), id, schedule.ModeSkipExisting)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, struct {
		Account  AccountDTO          `json:"account"`
		Schedule GenerateResponseDTO `json:"schedule"`
	}{accountToDTO(account), resultToDTO(id, res)})
}

// DeleteAccount removes an account and, via cascade, its instances.
func (h *Handler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) accountFromRequest(id string, req CreateAccountRequest) (schedule.Account, error) {
	rule, err := factory.FromJSON(req.Rule)
	if err != nil {
		return schedule.Account{}, err
	}

	amount := decimal.Zero
	if req.Amount != "" {
		amount, err = decimal.NewFromString(req.Amount)
		if err != nil {
			return schedule.Account{}, &schedule.RuleError{Field: "amount", Reason: "not a decimal"}
		}
	}

	return schedule.Account{ID: id, Name: req.Name, Amount: amount, Rule: rule}, nil
}

// =============================================================================
// INSTANCES
// =============================================================================

// ListInstances returns an account's payment instances, ordered by due date.
func (h *Handler) ListInstances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := h.Store.GetAccount(r.Context(), id); err != nil {
		h.writeError(w, err)
		return
	}

	instances, err := h.Store.ListInstances(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]InstanceDTO, 0, len(instances))
	for _, inst := range instances {
		dtos = append(dtos, instanceToDTO(inst))
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

// UpdateInstance applies a user edit: amount, paid state (stamping or
// clearing paid_at), note.
func (h *Handler) UpdateInstance(w http.ResponseWriter, r *http.Request) {
	inst, err := h.Store.GetInstance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}

	var req UpdateInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "invalid request body"})
		return
	}

	if req.Amount != nil {
		amount, err := decimal.NewFromString(*req.Amount)
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, ErrorDTO{Error: "amount is not a decimal"})
			return
		}
		inst.Amount = amount
	}
	if req.Paid != nil {
		// Stamp only on the false->true transition; re-sending paid on an
		// already-paid instance must not rewrite the payment timestamp.
		switch {
		case *req.Paid && !inst.Paid:
			now := time.Now().UTC()
			inst.PaidAt = &now
		case !*req.Paid:
			inst.PaidAt = nil
		}
		inst.Paid = *req.Paid
	}
	if req.Note != nil {
		inst.Note = *req.Note
	}

	if err := h.Store.UpdateInstance(r.Context(), inst); err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, instanceToDTO(inst))
}

// DeleteInstance removes a single instance.
func (h *Handler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteInstance(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// SCHEDULE GENERATION
// =============================================================================

// Generate runs a skip-existing pass for one account.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Mat.GenerateFor(r.Context(), id, schedule.ModeSkipExisting)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resultToDTO(id, res))
}

// Regenerate deletes the account's whole schedule and rebuilds it.
// Destructive: every user edit on that account's instances is lost. The
// client confirms before calling.
func (h *Handler) Regenerate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.Mat.GenerateFor(r.Context(), id, schedule.ModeRegenerate)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, resultToDTO(id, res))
}

// GenerateAll runs a skip-existing pass over every account.
func (h *Handler) GenerateAll(w http.ResponseWriter, r *http.Request) {
	sum, err := h.Mat.GenerateAll(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, GenerateAllResponseDTO{
		Accounts: sum.Accounts,
		Created:  sum.Created,
		Skipped:  sum.Skipped,
		Failed:   sum.Failed,
	})
}

// =============================================================================
// AUDIT
// =============================================================================

// ListAudit returns recent audit entries, newest first.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Store.ListAuditEntries(r.Context(), 100)
	if err != nil {
		h.writeError(w, err)
		return
	}

	dtos := make([]AuditEntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, auditToDTO(e))
	}
	h.writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil && h.Log != nil {
		h.Log.WithError(err).Error("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case schedule.IsNotFound(err):
		status = http.StatusNotFound
	case schedule.IsClientError(err):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError && h.Log != nil {
		h.Log.WithError(err).Error("request failed")
	}
	h.writeJSON(w, status, ErrorDTO{Error: err.Error()})
}
