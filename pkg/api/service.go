// Package api implements the session facade: the operations that pair the
// connection gateway with the session registry, and their HTTP surface.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
	"github.com/txn2/budget-data-gateway/pkg/session"
	"github.com/txn2/budget-data-gateway/pkg/session/postgres"
)

// Warehouse is the connection gateway as seen by the facade.
type Warehouse interface {
	OpenSession(ctx context.Context, p gateway.Params) (*gateway.Handle, error)
	Execute(ctx context.Context, h *gateway.Handle, stmt query.Statement) (*query.Result, error)
	CloseSession(ctx context.Context, h *gateway.Handle) error
	Probe(ctx context.Context, p gateway.Params) error
}

// Registry is the session registry as seen by the facade.
type Registry interface {
	Create(h *gateway.Handle, p gateway.Params, ttl time.Duration) (session.Session, error)
	Get(id string) (session.Session, error)
	With(ctx context.Context, id string, fn func(*gateway.Handle) error) error
	Close(ctx context.Context, id string) session.CloseResult
	Len() int
	List() []session.Session
	TTL() time.Duration
}

// EventLog reads recorded session lifecycle events.
type EventLog interface {
	Query(ctx context.Context, f postgres.Filter) ([]postgres.StoredEvent, error)
}

// maxEventLimit caps the events returned by one Events call.
const maxEventLimit = 1000

// Status is the facade health summary returned by /status.
type Status struct {
	Status            string            `json:"status"`
	ActiveConnections int               `json:"activeConnections"`
	ServerTime        time.Time         `json:"serverTime"`
	SessionTTLMS      int64             `json:"sessionTtlMs"`
	Drivers           []string          `json:"drivers,omitempty"`
	Sessions          []session.Session `json:"sessions,omitempty"`
}

// Service implements the facade operations. Every transport (HTTP, GraphQL,
// MCP) delegates to it.
type Service struct {
	warehouse Warehouse
	registry  Registry
	drivers   []string
	events    EventLog
	now       func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithDrivers lists the driver names reported by Status.
func WithDrivers(names ...string) ServiceOption {
	return func(s *Service) {
		s.drivers = names
	}
}

// WithEventLog enables the session event history.
func WithEventLog(l EventLog) ServiceOption {
	return func(s *Service) {
		s.events = l
	}
}

// NewService creates the facade service.
func NewService(w Warehouse, r Registry, opts ...ServiceOption) *Service {
	s := &Service{
		warehouse: w,
		registry:  r,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect opens a warehouse session and registers it.
func (s *Service) Connect(ctx context.Context, p gateway.Params) (session.Session, error) {
	h, err := s.warehouse.OpenSession(ctx, p)
	if err != nil {
		slog.Warn("api: connect failed", "params", p.Redacted(), "error", err)
		return session.Session{}, err
	}
	sess, err := s.registry.Create(h, p, 0)
	if err != nil {
		if cerr := s.warehouse.CloseSession(ctx, h); cerr != nil {
			slog.Warn("api: releasing unregistered session failed", "error", cerr)
		}
		return session.Session{}, err
	}
	return sess, nil
}

// Test opens a temporary session, runs a probe statement and closes it.
func (s *Service) Test(ctx context.Context, p gateway.Params) error {
	if err := s.warehouse.Probe(ctx, p); err != nil {
		slog.Warn("api: connection test failed", "params", p.Redacted(), "error", err)
		return err
	}
	return nil
}

// Query runs a raw statement on the session. The statement is passed
// through verbatim.
func (s *Service) Query(ctx context.Context, sessionID, statement string) (*query.Result, error) {
	if strings.TrimSpace(statement) == "" {
		return nil, &query.ConfigError{Field: "statement"}
	}
	return s.execute(ctx, sessionID, query.Raw(statement))
}

// Fetch runs a logical query with equality filters on the session.
func (s *Service) Fetch(ctx context.Context, sessionID string, l query.Logical, filters map[string]string) (*query.Result, error) {
	stmt, err := l.Build(filters)
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, sessionID, stmt)
}

// Run executes a request that names either a raw statement or a logical query.
func (s *Service) Run(ctx context.Context, sessionID string, req query.Request) (*query.Result, error) {
	stmt, err := req.Build()
	if err != nil {
		return nil, err
	}
	return s.execute(ctx, sessionID, stmt)
}

func (s *Service) execute(ctx context.Context, sessionID string, stmt query.Statement) (*query.Result, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, &query.ConfigError{Field: "sessionId"}
	}
	var res *query.Result
	err := s.registry.With(ctx, sessionID, func(h *gateway.Handle) error {
		var execErr error
		res, execErr = s.warehouse.Execute(ctx, h, stmt)
		return execErr
	})
	if err != nil {
		slog.Debug("api: statement failed", "session_id", sessionID, "error", err)
		return nil, err
	}
	return res, nil
}

// Disconnect closes the session. Unknown and already closed sessions are
// not an error.
func (s *Service) Disconnect(ctx context.Context, sessionID string) (session.CloseResult, error) {
	if strings.TrimSpace(sessionID) == "" {
		return session.AlreadyClosed, &query.ConfigError{Field: "sessionId"}
	}
	return s.registry.Close(ctx, sessionID), nil
}

// Session returns the public view of an open session.
func (s *Service) Session(sessionID string) (session.Session, error) {
	return s.registry.Get(sessionID)
}

// Status reports liveness and the number of open sessions. withSessions
// includes the session list.
func (s *Service) Status(withSessions bool) Status {
	st := Status{
		Status:            "ok",
		ActiveConnections: s.registry.Len(),
		ServerTime:        s.now().UTC(),
		SessionTTLMS:      s.registry.TTL().Milliseconds(),
		Drivers:           s.drivers,
	}
	if withSessions {
		st.Sessions = s.registry.List()
	}
	return st
}

// Events returns recorded lifecycle events of the session, newest first.
// Events outlive the session, so closed and expired sessions are readable.
func (s *Service) Events(ctx context.Context, sessionID string, kind session.EventKind, since *time.Time, limit int) ([]postgres.StoredEvent, error) {
	if s.events == nil {
		return nil, ErrEventsDisabled
	}
	if strings.TrimSpace(sessionID) == "" {
		return nil, &query.ConfigError{Field: "sessionId"}
	}
	if limit <= 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}
	events, err := s.events.Query(ctx, postgres.Filter{
		SessionID: sessionID,
		Kind:      kind,
		Since:     since,
		Limit:     limit,
	})
	if err != nil {
		slog.Warn("api: reading session events failed", "session_id", sessionID, "error", err)
		return nil, fmt.Errorf("reading session events: %w", err)
	}
	return events, nil
}
