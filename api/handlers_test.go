package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/bill-engine/api"
	"github.com/warp/bill-engine/factory"
	"github.com/warp/bill-engine/schedule"
	"github.com/warp/bill-engine/store/sqlite"
)

// newTestStack spins up the full stack on a throwaway database, with "today"
// pinned so generated date assertions are stable. The store is returned too,
// for assertions below the HTTP surface.
func newTestStack(t *testing.T) (*httptest.Server, *sqlite.Store) {
	t.Helper()

	store, err := sqlite.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	gen := schedule.NewGenerator(3, logger)
	gen.Now = func() schedule.TimePoint {
		return schedule.NewTimePoint(2025, time.January, 20)
	}

	h := &api.Handler{
		Store: store,
		Mat: &schedule.Materializer{
			Accounts:  store,
			Store:     store,
			Audit:     store,
			Generator: gen,
			Log:       logger,
		},
		Log: logger,
	}

	server := httptest.NewServer(api.NewRouter(h))
	t.Cleanup(server.Close)
	return server, store
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	server, _ := newTestStack(t)
	return server
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func createMonthlyAccount(t *testing.T, baseURL string) string {
	t.Helper()

	day := 15
	resp, body := doJSON(t, http.MethodPost, baseURL+"/api/accounts", api.CreateAccountRequest{
		Name:   "electricity",
		Amount: "89.90",
		Rule: factory.RuleJSON{
			Kind:       "monthly",
			AnchorDate: "2025-01-15",
			DayOfMonth: &day,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		Account  api.AccountDTO          `json:"account"`
		Schedule api.GenerateResponseDTO `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(body, &created))
	require.NotEmpty(t, created.Account.ID)
	return created.Account.ID
}

func listInstances(t *testing.T, baseURL, accountID string) []api.InstanceDTO {
	t.Helper()

	resp, body := doJSON(t, http.MethodGet, fmt.Sprintf("%s/api/accounts/%s/instances", baseURL, accountID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var dtos []api.InstanceDTO
	require.NoError(t, json.Unmarshal(body, &dtos))
	return dtos
}

func TestCreateAccount_MaterializesInitialSchedule(t *testing.T) {
	server := newTestServer(t)

	day := 15
	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/accounts", api.CreateAccountRequest{
		Name:   "electricity",
		Amount: "89.90",
		Rule: factory.RuleJSON{
			Kind:       "monthly",
			AnchorDate: "2025-01-15",
			DayOfMonth: &day,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))

	var created struct {
		Account  api.AccountDTO          `json:"account"`
		Schedule api.GenerateResponseDTO `json:"schedule"`
	}
	require.NoError(t, json.Unmarshal(body, &created))

	assert.Equal(t, "electricity", created.Account.Name)
	assert.Equal(t, "89.9", created.Account.Amount)
	assert.Equal(t, 3, created.Schedule.Created)
	assert.Equal(t, []string{"2025-02-15", "2025-03-15", "2025-04-15"}, created.Schedule.CreatedDates)

	insts := listInstances(t, server.URL, created.Account.ID)
	require.Len(t, insts, 3)
	assert.Equal(t, "2025-02-15", insts[0].DueDate)
	assert.Equal(t, "89.9", insts[0].Amount)
	assert.False(t, insts[0].Paid)
}

func TestCreateAccount_InvalidRule(t *testing.T) {
	server := newTestServer(t)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/accounts", api.CreateAccountRequest{
		Name: "broken",
		Rule: factory.RuleJSON{Kind: "daily", AnchorDate: "2025-01-15"},
	})

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, string(body))
}

func TestGenerate_Idempotent(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)

	resp, body := doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/accounts/%s/generate", server.URL, accountID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res api.GenerateResponseDTO
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 0, res.Created)
	assert.Equal(t, 3, res.Skipped)
}

func TestUpdateInstance_PaidStampsTimestamp(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)
	insts := listInstances(t, server.URL, accountID)

	paid := true
	note := "paid online"
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{
		Paid: &paid,
		Note: &note,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var updated api.InstanceDTO
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.True(t, updated.Paid)
	require.NotNil(t, updated.PaidAt)
	assert.Equal(t, "paid online", updated.Note)

	// Unpaying clears the timestamp.
	unpaid := false
	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{
		Paid: &unpaid,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &updated))
	assert.False(t, updated.Paid)
	assert.Nil(t, updated.PaidAt)
}

func TestUpdateInstance_RepeatedPaidKeepsOriginalTimestamp(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)
	insts := listInstances(t, server.URL, accountID)

	paid := true
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{
		Paid: &paid,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var first api.InstanceDTO
	require.NoError(t, json.Unmarshal(body, &first))
	require.NotNil(t, first.PaidAt)

	// A later edit that re-sends paid=true (a client updating only the note
	// but echoing the full state) must not rewrite the payment timestamp.
	time.Sleep(1100 * time.Millisecond) // RFC3339 stamps have second precision
	note := "receipt filed"
	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{
		Paid: &paid,
		Note: &note,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var second api.InstanceDTO
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, "receipt filed", second.Note)
	require.NotNil(t, second.PaidAt)
	assert.Equal(t, *first.PaidAt, *second.PaidAt)
}

func TestGenerate_PreservesUserEdits(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)
	insts := listInstances(t, server.URL, accountID)

	paid := true
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{Paid: &paid})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/accounts/%s/generate", server.URL, accountID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	after := listInstances(t, server.URL, accountID)
	require.Len(t, after, 3)
	assert.True(t, after[0].Paid)
}

func TestRegenerate_DiscardsUserEdits(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)
	insts := listInstances(t, server.URL, accountID)

	paid := true
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{Paid: &paid})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = doJSON(t, http.MethodPost, fmt.Sprintf("%s/api/accounts/%s/regenerate", server.URL, accountID), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var res api.GenerateResponseDTO
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, 3, res.Created)

	after := listInstances(t, server.URL, accountID)
	require.Len(t, after, 3)
	for _, inst := range after {
		assert.False(t, inst.Paid)
		assert.NotEqual(t, insts[0].ID, inst.ID, "regenerate replaces instances wholesale")
	}
}

func TestDeleteAccount_CascadesToInstances(t *testing.T) {
	server, store := newTestStack(t)
	accountID := createMonthlyAccount(t, server.URL)

	before, err := store.ListInstances(context.Background(), accountID)
	require.NoError(t, err)
	require.Len(t, before, 3)

	resp, _ := doJSON(t, http.MethodDelete, server.URL+"/api/accounts/"+accountID, nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet, server.URL+"/api/accounts/"+accountID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// The instance rows themselves are gone, not just hidden behind the
	// account-existence check: the foreign key cascade did the deleting.
	after, err := store.ListInstances(context.Background(), accountID)
	require.NoError(t, err)
	assert.Empty(t, after)
}

func TestUpdateAccount_ReschedulesWithoutLosingEdits(t *testing.T) {
	server := newTestServer(t)
	accountID := createMonthlyAccount(t, server.URL)
	insts := listInstances(t, server.URL, accountID)

	paid := true
	resp, body := doJSON(t, http.MethodPut, server.URL+"/api/instances/"+insts[0].ID, api.UpdateInstanceRequest{Paid: &paid})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	// Switch the rule to day 20: new dates get added, old ones stay.
	day := 20
	resp, body = doJSON(t, http.MethodPut, server.URL+"/api/accounts/"+accountID, api.CreateAccountRequest{
		Name:   "electricity",
		Amount: "95.00",
		Rule: factory.RuleJSON{
			Kind:       "monthly",
			AnchorDate: "2025-01-15",
			DayOfMonth: &day,
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	after := listInstances(t, server.URL, accountID)
	require.Len(t, after, 7) // 3 original day-15 dates + Jan/Feb/Mar/Apr day-20
	assert.True(t, after[1].Paid, "existing edited instance survives a rule change")
}

func TestGenerateAll_AndAuditLog(t *testing.T) {
	server := newTestServer(t)
	createMonthlyAccount(t, server.URL)
	createMonthlyAccount(t, server.URL)

	resp, body := doJSON(t, http.MethodPost, server.URL+"/api/admin/generate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var sum api.GenerateAllResponseDTO
	require.NoError(t, json.Unmarshal(body, &sum))
	assert.Equal(t, 2, sum.Accounts)
	assert.Equal(t, 0, sum.Created)
	assert.Equal(t, 6, sum.Skipped)
	assert.Equal(t, 0, sum.Failed)

	resp, body = doJSON(t, http.MethodGet, server.URL+"/api/admin/audit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	var entries []api.AuditEntryDTO
	require.NoError(t, json.Unmarshal(body, &entries))
	// 2 creates + 2 generate-all passes
	require.Len(t, entries, 4)
	for _, e := range entries {
		assert.Equal(t, "generate", e.Action)
		assert.Equal(t, "payment_instances", e.SubjectTable)
	}
}

func TestInstance_NotFound(t *testing.T) {
	server := newTestServer(t)

	paid := true
	resp, _ := doJSON(t, http.MethodPut, server.URL+"/api/instances/ghost", api.UpdateInstanceRequest{Paid: &paid})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodDelete, server.URL+"/api/instances/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
