package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
	"github.com/txn2/budget-data-gateway/pkg/session"
)

const (
	// maxBodyBytes caps request bodies.
	maxBodyBytes = 1 << 20

	bearerPrefix = "Bearer "

	// sessionIDParam is the query parameter naming the session on entity reads.
	sessionIDParam = "sessionId"
)

// Handler serves the session facade REST endpoints.
type Handler struct {
	mux         *http.ServeMux
	svc         *Service
	authMiddle  func(http.Handler) http.Handler
	adminMiddle func(http.Handler) http.Handler
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAdminMiddleware guards the session listing on /status and the event
// history. It runs after authMiddle.
func WithAdminMiddleware(mw func(http.Handler) http.Handler) HandlerOption {
	return func(h *Handler) {
		h.adminMiddle = mw
	}
}

// NewHandler creates the facade handler. authMiddle, when non-nil, wraps
// every route.
func NewHandler(svc *Service, authMiddle func(http.Handler) http.Handler, opts ...HandlerOption) *Handler {
	h := &Handler{
		mux:        http.NewServeMux(),
		svc:        svc,
		authMiddle: authMiddle,
	}
	for _, opt := range opts {
		opt(h)
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authMiddle != nil {
		h.authMiddle(h.mux).ServeHTTP(w, r)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) admin(next http.HandlerFunc) http.Handler {
	if h.adminMiddle == nil {
		return next
	}
	return h.adminMiddle(next)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("POST /connect", h.connect)
	h.mux.HandleFunc("POST /test", h.test)
	h.mux.HandleFunc("POST /query", h.query)
	h.mux.HandleFunc("POST /disconnect", h.disconnect)
	h.mux.HandleFunc("GET /status", h.status)
	h.mux.HandleFunc("GET /sessions/{id}", h.getSession)
	h.mux.Handle("GET /sessions/{id}/events", h.admin(h.sessionEvents))
	h.mux.HandleFunc("GET /{entity}", h.entity)
}

// connectResponse is returned by POST /connect.
type connectResponse struct {
	Success   bool      `json:"success" example:"true"`
	SessionID string    `json:"sessionId" example:"0b7f3c9e-6a55-4d8e-9a51-0f3b1e2d4c6a"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// successResponse is returned by POST /test and POST /disconnect.
type successResponse struct {
	Success bool `json:"success" example:"true"`
}

// queryRequest is the body of POST /query.
type queryRequest struct {
	SessionID string            `json:"sessionId"`
	Statement string            `json:"statement,omitempty"`
	Logical   query.Logical     `json:"logical,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// queryResponse is returned by POST /query.
type queryResponse struct {
	Success bool           `json:"success" example:"true"`
	Data    []query.Record `json:"data"`
	Columns []string       `json:"columns"`
	Count   int            `json:"count"`
}

// disconnectRequest is the body of POST /disconnect.
type disconnectRequest struct {
	SessionID string `json:"sessionId"`
}

// connect handles POST /connect.
//
// @Summary      Open a warehouse session
// @Description  Opens an authenticated warehouse session and returns its ID. The token may be sent in the body or as Authorization: Bearer.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body      gateway.Params   true  "Connection parameters"
// @Success      200   {object}  connectResponse
// @Failure      400   {object}  errorResponse
// @Failure      502   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /connect [post]
func (h *Handler) connect(w http.ResponseWriter, r *http.Request) {
	p, err := decodeParams(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	sess, err := h.svc.Connect(r.Context(), p)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, connectResponse{Success: true, SessionID: sess.ID, ExpiresAt: sess.ExpiresAt})
}

// test handles POST /test.
//
// @Summary      Test warehouse connectivity
// @Description  Opens a temporary session, runs SELECT 1 AS test and closes it.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body      gateway.Params   true  "Connection parameters"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Failure      502   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /test [post]
func (h *Handler) test(w http.ResponseWriter, r *http.Request) {
	p, err := decodeParams(w, r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.svc.Test(r.Context(), p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// query handles POST /query.
//
// @Summary      Run a statement
// @Description  Runs a raw statement verbatim, or a logical query with equality filters, on an open session.
// @Tags         Queries
// @Accept       json
// @Produce      json
// @Param        body  body      queryRequest  true  "Session and statement"
// @Success      200   {object}  queryResponse
// @Failure      400   {object}  errorResponse
// @Failure      404   {object}  errorResponse
// @Failure      422   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /query [post]
func (h *Handler) query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	res, err := h.svc.Run(r.Context(), req.SessionID, query.Request{
		Statement: req.Statement,
		Logical:   req.Logical,
		Filters:   req.Filters,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{
		Success: true,
		Data:    res.Records,
		Columns: res.Columns,
		Count:   res.Count,
	})
}

// disconnect handles POST /disconnect.
//
// @Summary      Close a session
// @Description  Closes the session. Closing an unknown or already closed session succeeds.
// @Tags         Sessions
// @Accept       json
// @Produce      json
// @Param        body  body      disconnectRequest  true  "Session to close"
// @Success      200   {object}  successResponse
// @Failure      400   {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /disconnect [post]
func (h *Handler) disconnect(w http.ResponseWriter, r *http.Request) {
	var req disconnectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := h.svc.Disconnect(r.Context(), req.SessionID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// status handles GET /status.
//
// @Summary      Facade status
// @Description  Reports liveness, the session TTL and the number of open sessions. Pass sessions=true to list them; listing requires the admin role when auth is enabled.
// @Tags         System
// @Produce      json
// @Param        sessions  query     bool  false  "Include open sessions"
// @Success      200       {object}  Status
// @Router       /status [get]
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("sessions") == "true" {
		h.admin(h.statusWithSessions).ServeHTTP(w, r)
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Status(false))
}

func (h *Handler) statusWithSessions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.Status(true))
}

// getSession handles GET /sessions/{id}.
//
// @Summary      Get a session
// @Tags         Sessions
// @Produce      json
// @Param        id   path      string  true  "Session ID"
// @Success      200  {object}  session.Session
// @Failure      404  {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /sessions/{id} [get]
func (h *Handler) getSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.svc.Session(r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// sessionEvents handles GET /sessions/{id}/events.
//
// @Summary      Session event history
// @Description  Lists recorded lifecycle events of a session, newest first. Closed and expired sessions are included. Requires the admin role when auth is enabled.
// @Tags         Sessions
// @Produce      json
// @Param        id     path      string  true   "Session ID"
// @Param        kind   query     string  false  "opened, closed, evicted or close_failed"
// @Param        since  query     string  false  "RFC 3339 lower bound"
// @Param        limit  query     int     false  "Maximum events (default and cap 1000)"
// @Success      200    {array}   postgres.StoredEvent
// @Failure      400    {object}  errorResponse
// @Failure      403    {object}  errorResponse
// @Failure      404    {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /sessions/{id}/events [get]
func (h *Handler) sessionEvents(w http.ResponseWriter, r *http.Request) {
	params := r.URL.Query()

	var since *time.Time
	if v := params.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, &query.ConfigError{Field: "since"})
			return
		}
		since = &t
	}
	var limit int
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, &query.ConfigError{Field: "limit"})
			return
		}
		limit = n
	}

	events, err := h.svc.Events(r.Context(), r.PathValue("id"), session.EventKind(params.Get("kind")), since, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// entity handles GET /{entity}.
//
// @Summary      Read an entity
// @Description  Runs the logical query for the entity on the session. Remaining query parameters are equality filters.
// @Tags         Queries
// @Produce      json
// @Param        entity     path      string  true  "accounts, transactions, projects, budget-entries, vendors or kpis"
// @Param        sessionId  query     string  true  "Session ID"
// @Success      200        {array}   object
// @Failure      400        {object}  errorResponse
// @Failure      404        {object}  errorResponse
// @Failure      422        {object}  errorResponse
// @Security     ApiKeyAuth
// @Router       /{entity} [get]
func (h *Handler) entity(w http.ResponseWriter, r *http.Request) {
	l, err := query.Parse(r.PathValue("entity"))
	if err != nil {
		writeMessage(w, http.StatusNotFound, err.Error())
		return
	}

	params := r.URL.Query()
	sessionID := params.Get(sessionIDParam)
	filters := make(map[string]string, len(params))
	for k, v := range params {
		if k == sessionIDParam || len(v) == 0 {
			continue
		}
		filters[k] = v[0]
	}

	res, err := h.svc.Fetch(r.Context(), sessionID, l, filters)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res.Records)
}

// decodeParams reads connection parameters, taking the token from the
// Authorization header when the body has none.
func decodeParams(w http.ResponseWriter, r *http.Request) (gateway.Params, error) {
	var p gateway.Params
	if err := decodeBody(w, r, &p); err != nil {
		return p, err
	}
	if p.Token == "" {
		if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, bearerPrefix) {
			p.Token = strings.TrimPrefix(authz, bearerPrefix)
		}
	}
	return p, nil
}

// decodeBody decodes a JSON body. Malformed bodies are configuration errors.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return &query.ConfigError{Field: fmt.Sprintf("body (exceeds %d bytes)", maxErr.Limit)}
		}
		return &query.ConfigError{Field: "body (invalid JSON)"}
	}
	return nil
}
