package graphql

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/budget-data-gateway/pkg/api"
	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/session"
)

const gqlTestTTL = 5 * time.Minute

// mockDriver programs every opened sqlmock database with setup.
type mockDriver struct {
	setup func(sqlmock.Sqlmock)
}

func (*mockDriver) Name() string { return "mock" }

func (d *mockDriver) Open(context.Context, gateway.Params) (*sql.DB, error) {
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}
	mock.MatchExpectationsInOrder(false)
	if d.setup != nil {
		d.setup(mock)
	}
	mock.ExpectClose()
	return db, nil
}

func newTestHandler(t *testing.T, setup func(sqlmock.Sqlmock)) (http.Handler, string) {
	t.Helper()
	gw := gateway.New(gateway.WithDriver(&mockDriver{setup: setup}), gateway.WithDefaultDriver("mock"))
	reg := session.NewRegistry(gw, session.Config{TTL: gqlTestTTL})
	t.Cleanup(func() { reg.Shutdown(context.Background()) })
	svc := api.NewService(gw, reg)

	sess, err := svc.Connect(context.Background(), gateway.Params{
		EndpointURL: "https://wh.example",
		AccessPath:  "/sql/1",
		Token:       "dapi-test",
	})
	require.NoError(t, err)

	h, err := NewHandler(svc)
	require.NoError(t, err)
	return h, sess.ID
}

type gqlResponse struct {
	Data   map[string]json.RawMessage `json:"data"`
	Errors []struct {
		Message    string         `json:"message"`
		Extensions map[string]any `json:"extensions"`
	} `json:"errors"`
}

func post(t *testing.T, h http.Handler, q string, vars map[string]any) gqlResponse {
	t.Helper()
	body, err := json.Marshal(map[string]any{"query": q, "variables": vars})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/graphql", strings.NewReader(string(body)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp gqlResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func TestSchemaParses(t *testing.T) {
	_, err := NewSchema(nil)
	require.NoError(t, err)
}

func TestQuery_Accounts(t *testing.T) {
	h, id := newTestHandler(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM accounts WHERE status = ? ORDER BY id")).
			WithArgs("active").
			WillReturnRows(sqlmock.NewRows([]string{"id", "status"}).AddRow("acc-1000", "active"))
	})

	resp := post(t, h, `query($s: String!) { accounts(sessionId: $s, status: "active") }`, map[string]any{"s": id})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `[{"id":"acc-1000","status":"active"}]`, string(resp.Data["accounts"]))
}

func TestQuery_TransactionsRange(t *testing.T) {
	h, id := newTestHandler(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM transactions WHERE date <= ? AND date >= ? ORDER BY date DESC, id")).
			WithArgs("2024-02-29", "2024-02-01").
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("txn-0004"))
	})

	resp := post(t, h, `query($s: String!) {
		transactions(sessionId: $s, startDate: "2024-02-01", endDate: "2024-02-29")
	}`, map[string]any{"s": id})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `[{"id":"txn-0004"}]`, string(resp.Data["transactions"]))
}

func TestQuery_BudgetEntries(t *testing.T) {
	h, id := newTestHandler(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM budget_entries WHERE project_id = ? ORDER BY fiscal_year, id")).
			WithArgs("prj-002").
			WillReturnRows(sqlmock.NewRows([]string{"id"}))
	})

	resp := post(t, h, `query($s: String!) { budgetEntries(sessionId: $s, projectId: "prj-002") }`, map[string]any{"s": id})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `[]`, string(resp.Data["budgetEntries"]))
}

func TestQuery_ExpiredSession(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, `{ vendors(sessionId: "gone") }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Contains(t, resp.Errors[0].Message, "gone")
	assert.Equal(t, "SESSION_EXPIRED", resp.Errors[0].Extensions["code"])
}

func TestQuery_QueryFailure(t *testing.T) {
	h, id := newTestHandler(t, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT").WillReturnError(assert.AnError)
	})

	resp := post(t, h, `query($s: String!) { projects(sessionId: $s) }`, map[string]any{"s": id})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "QUERY_FAILED", resp.Errors[0].Extensions["code"])
}

func TestQuery_Status(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	resp := post(t, h, `{ status { status activeConnections serverTime } }`, nil)
	require.Empty(t, resp.Errors)

	var st struct {
		Status            string `json:"status"`
		ActiveConnections int    `json:"activeConnections"`
		ServerTime        string `json:"serverTime"`
	}
	require.NoError(t, json.Unmarshal(resp.Data["status"], &st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.ActiveConnections)
	_, err := time.Parse(time.RFC3339, st.ServerTime)
	assert.NoError(t, err)
}
