package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/budget-data-gateway/pkg/auth"
	httpmw "github.com/txn2/budget-data-gateway/pkg/http"
	"github.com/txn2/budget-data-gateway/pkg/query"
	"github.com/txn2/budget-data-gateway/pkg/session"
	"github.com/txn2/budget-data-gateway/pkg/session/postgres"
)

func doRequest(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, http.NoBody)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func connectBody() string {
	return fmt.Sprintf(`{"endpointUrl":%q,"accessPath":%q,"token":%q}`, apiTestEndpoint, apiTestPath, apiTestToken)
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.True(t, body.Error)
	assert.NotEmpty(t, body.Message)
	return body
}

func connectHTTP(t *testing.T, h http.Handler) string {
	t.Helper()
	w := doRequest(t, h, http.MethodPost, "/connect", connectBody())
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp connectResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.SessionID)
	return resp.SessionID
}

func TestHandler_ExampleScenario(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 as test")).
			WillReturnRows(sqlmock.NewRows([]string{"test"}).AddRow(int64(1)))
	})
	h := NewHandler(env.svc, nil)

	id := connectHTTP(t, h)

	w := doRequest(t, h, http.MethodPost, "/query", fmt.Sprintf(`{"sessionId":%q,"statement":"SELECT 1 as test"}`, id))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp struct {
		Success bool             `json:"success"`
		Data    []map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, []map[string]any{{"test": float64(1)}}, resp.Data)

	w = doRequest(t, h, http.MethodPost, "/disconnect", fmt.Sprintf(`{"sessionId":%q}`, id))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
}

func TestHandler_ConnectBearerToken(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)

	body := fmt.Sprintf(`{"endpointUrl":%q,"accessPath":%q}`, apiTestEndpoint, apiTestPath)
	req := httptest.NewRequest(http.MethodPost, "/connect", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+apiTestToken)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, env.registry.Len())
}

func TestHandler_ConnectErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		openErr error
		status  int
		message string
	}{
		{
			name:    "missing endpoint",
			body:    `{"accessPath":"/sql/1","token":"t"}`,
			status:  http.StatusBadRequest,
			message: "endpointUrl",
		},
		{
			name:    "missing token",
			body:    fmt.Sprintf(`{"endpointUrl":%q}`, apiTestEndpoint),
			status:  http.StatusBadRequest,
			message: "token",
		},
		{
			name:    "invalid json",
			body:    `{"endpointUrl":`,
			status:  http.StatusBadRequest,
			message: "invalid JSON",
		},
		{
			name:    "connection refused",
			body:    connectBody(),
			openErr: errors.New("dial tcp: connection refused"),
			status:  http.StatusBadGateway,
			message: "connection refused",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, apiTestTTL, nil)
			env.driver.openErr = tt.openErr
			h := NewHandler(env.svc, nil)

			w := doRequest(t, h, http.MethodPost, "/connect", tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.Contains(t, decodeError(t, w).Message, tt.message)
		})
	}
}

func TestHandler_Test(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, expectProbe)
	h := NewHandler(env.svc, nil)

	w := doRequest(t, h, http.MethodPost, "/test", connectBody())
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"success":true}`, w.Body.String())
	assert.Equal(t, 0, env.registry.Len())
}

func TestHandler_QueryErrors(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery("SELECT nope").WillReturnError(errors.New("syntax error"))
	})
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	t.Run("statement failure is 422", func(t *testing.T) {
		w := doRequest(t, h, http.MethodPost, "/query", fmt.Sprintf(`{"sessionId":%q,"statement":"SELECT nope"}`, id))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
		assert.Contains(t, decodeError(t, w).Message, "syntax error")
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		w := doRequest(t, h, http.MethodPost, "/query", `{"sessionId":"gone","statement":"SELECT 1"}`)
		assert.Equal(t, http.StatusNotFound, w.Code)
		decodeError(t, w)
	})

	t.Run("missing statement is 400", func(t *testing.T) {
		w := doRequest(t, h, http.MethodPost, "/query", fmt.Sprintf(`{"sessionId":%q}`, id))
		assert.Equal(t, http.StatusBadRequest, w.Code)
		decodeError(t, w)
	})
}

func TestHandler_QueryAfterEviction(t *testing.T) {
	env := newTestEnv(t, 50*time.Millisecond, nil)
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	require.Eventually(t, func() bool { return env.registry.Len() == 0 }, apiTestWait, apiTestTick)

	w := doRequest(t, h, http.MethodPost, "/query", fmt.Sprintf(`{"sessionId":%q,"statement":"SELECT 1"}`, id))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w).Message, id)
}

func TestHandler_DisconnectTwice(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)
	body := fmt.Sprintf(`{"sessionId":%q}`, id)

	for range 2 {
		w := doRequest(t, h, http.MethodPost, "/disconnect", body)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"success":true}`, w.Body.String())
	}

	w := doRequest(t, h, http.MethodPost, "/disconnect", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	decodeError(t, w)
}

func TestHandler_Entity(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, func(mock sqlmock.Sqlmock) {
		mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM budget_entries WHERE fiscal_year = ? AND project_id = ? ORDER BY fiscal_year, id")).
			WithArgs("2024", "prj-001").
			WillReturnRows(sqlmock.NewRows([]string{"id", "project_id"}).AddRow("bud-001", "prj-001"))
	})
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	w := doRequest(t, h, http.MethodGet, "/budget-entries?sessionId="+id+"&project_id=prj-001&fiscal_year=2024", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `[{"id":"bud-001","project_id":"prj-001"}]`, w.Body.String())
}

func TestHandler_EntityErrors(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{name: "unknown entity", target: "/invoices?sessionId=" + id, status: http.StatusNotFound},
		{name: "unknown filter", target: "/accounts?sessionId=" + id + "&owner=x", status: http.StatusBadRequest},
		{name: "missing session", target: "/accounts", status: http.StatusBadRequest},
		{name: "expired session", target: "/vendors?sessionId=gone", status: http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doRequest(t, h, http.MethodGet, tt.target, "")
			assert.Equal(t, tt.status, w.Code)
			decodeError(t, w)
		})
	}
}

func TestHandler_Status(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	w := doRequest(t, h, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	assert.Equal(t, "ok", st.Status)
	assert.Equal(t, 1, st.ActiveConnections)
	assert.False(t, st.ServerTime.IsZero())
	assert.Equal(t, apiTestTTL.Milliseconds(), st.SessionTTLMS)
	assert.Empty(t, st.Sessions)

	w = doRequest(t, h, http.MethodGet, "/status?sessions=true", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, id, st.Sessions[0].ID)
	assert.NotContains(t, w.Body.String(), apiTestToken)
}

func TestHandler_GetSession(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)
	id := connectHTTP(t, h)

	w := doRequest(t, h, http.MethodGet, "/sessions/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), id)
	assert.NotContains(t, w.Body.String(), apiTestToken)

	w = doRequest(t, h, http.MethodGet, "/sessions/unknown", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandler_AuthMiddleware(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	deny := func(http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		})
	}
	h := NewHandler(env.svc, deny)

	w := doRequest(t, h, http.MethodGet, "/status", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// roleHeader carries test caller roles, comma separated.
const roleHeader = "X-Test-Roles"

// headerCaller authenticates every request with the roles in roleHeader.
func headerCaller(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caller := &auth.Caller{ID: "tester", AuthType: "apikey"}
		if v := r.Header.Get(roleHeader); v != "" {
			caller.Roles = strings.Split(v, ",")
		}
		next.ServeHTTP(w, r.WithContext(auth.WithCaller(r.Context(), caller)))
	})
}

func doAs(h http.Handler, target, roles string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, http.NoBody)
	req.Header.Set(roleHeader, roles)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHandler_AdminRoutesRequireRole(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	log := &stubEventLog{events: []postgres.StoredEvent{}}
	env.svc.events = log
	h := NewHandler(env.svc, headerCaller, WithAdminMiddleware(httpmw.RequireRole("admin")))
	id := connectHTTP(t, h)

	tests := []struct {
		name   string
		target string
		roles  string
		status int
	}{
		{"status reader", "/status", "reader", http.StatusOK},
		{"session list reader", "/status?sessions=true", "reader", http.StatusForbidden},
		{"session list admin", "/status?sessions=true", "reader,admin", http.StatusOK},
		{"events reader", "/sessions/" + id + "/events", "reader", http.StatusForbidden},
		{"events admin", "/sessions/" + id + "/events", "admin", http.StatusOK},
		{"session reader", "/sessions/" + id, "reader", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doAs(h, tt.target, tt.roles)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := doAs(h, "/status?sessions=true", "admin")
	var st Status
	require.NoError(t, json.NewDecoder(w.Body).Decode(&st))
	require.Len(t, st.Sessions, 1)
	assert.Equal(t, id, st.Sessions[0].ID)
}

func TestHandler_SessionEvents(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	occurred := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	log := &stubEventLog{events: []postgres.StoredEvent{{
		ID: "evt-1",
		Event: session.Event{
			SessionID:  "abc",
			Kind:       session.EventEvicted,
			Driver:     "databricks",
			Endpoint:   apiTestEndpoint,
			OccurredAt: occurred,
		},
	}}}
	env.svc.events = log
	h := NewHandler(env.svc, nil)

	w := doRequest(t, h, http.MethodGet, "/sessions/abc/events?kind=evicted&since=2024-03-01T00:00:00Z&limit=5", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got []map[string]any
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	require.Len(t, got, 1)
	assert.Equal(t, "evt-1", got[0]["id"])
	assert.Equal(t, "abc", got[0]["sessionId"])
	assert.Equal(t, "evicted", got[0]["kind"])

	assert.Equal(t, "abc", log.filter.SessionID)
	assert.Equal(t, session.EventEvicted, log.filter.Kind)
	require.NotNil(t, log.filter.Since)
	assert.Equal(t, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), log.filter.Since.UTC())
	assert.Equal(t, 5, log.filter.Limit)

	w = doRequest(t, h, http.MethodGet, "/sessions/abc/events?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doRequest(t, h, http.MethodGet, "/sessions/abc/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandler_SessionEventsDisabled(t *testing.T) {
	env := newTestEnv(t, apiTestTTL, nil)
	h := NewHandler(env.svc, nil)

	w := doRequest(t, h, http.MethodGet, "/sessions/abc/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, decodeError(t, w).Message, "not enabled")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{&query.ConfigError{Field: "token"}, http.StatusBadRequest},
		{fmt.Errorf("building: %w", query.ErrInvalidFilter), http.StatusBadRequest},
		{&query.ConnectionError{Cause: errors.New("refused")}, http.StatusBadGateway},
		{&query.SessionExpiredError{SessionID: "x"}, http.StatusNotFound},
		{&query.QueryError{Cause: errors.New("bad")}, http.StatusUnprocessableEntity},
		{ErrEventsDisabled, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.status, StatusFor(tt.err))
		})
	}
}
