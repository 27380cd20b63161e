// Package dataservice is the client-side data access layer. It routes every
// logical read to the active data source (fixtures, the warehouse session
// facade or a generic REST API) and degrades to fixture data on any backend
// failure, raising the UsingMockFallback flag instead of returning an error.
package dataservice

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/fixture"
	"github.com/txn2/budget-data-gateway/pkg/gatewayclient"
	"github.com/txn2/budget-data-gateway/pkg/metrics"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

const defaultHTTPTimeout = 30 * time.Second

// Source names where a result came from.
type Source string

// Result sources. SourceFixture means fixtures were configured;
// SourceFallback means they replaced a failed backend read.
const (
	SourceFixture         Source = "fixture"
	SourceRemoteWarehouse Source = "remote_warehouse"
	SourceGenericAPI      Source = "generic_api"
	SourceFallback        Source = "fallback"
)

// Result is the outcome of a read. It always carries usable records.
type Result struct {
	Records []query.Record `json:"data"`
	Columns []string       `json:"columns"`
	Count   int            `json:"count"`
	Source  Source         `json:"source"`

	// Cause is the backend failure behind a fallback read.
	Cause error `json:"-"`
}

// TokenSource supplies the warehouse credential when the remote warehouse
// config carries none.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// Token implements TokenSource.
func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Store persists the active configuration.
type Store interface {
	Load() (*Config, error)
	Save(cfg Config) error
}

// Service is the client data service.
type Service struct {
	mu     sync.RWMutex
	cfg    Config
	active backend

	provider   *fixture.Provider
	httpClient *http.Client
	tokens     TokenSource
	store      Store
	initial    *Config

	fallback atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

// WithConfig sets the initial configuration, overriding any stored one.
func WithConfig(cfg Config) Option {
	return func(s *Service) { s.initial = &cfg }
}

// WithStore loads the initial configuration from st and persists every
// Configure call to it.
func WithStore(st Store) Option {
	return func(s *Service) { s.store = st }
}

// WithHTTPClient sets the HTTP client for remote and generic API backends.
func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) {
		if hc != nil {
			s.httpClient = hc
		}
	}
}

// WithTokenSource sets the fallback warehouse credential source.
func WithTokenSource(ts TokenSource) Option {
	return func(s *Service) { s.tokens = ts }
}

// WithProvider sets the fixture provider.
func WithProvider(p *fixture.Provider) Option {
	return func(s *Service) {
		if p != nil {
			s.provider = p
		}
	}
}

// New creates the service. It starts on fixtures unless an initial or
// stored configuration exists. A stored remote warehouse configuration does
// not open a session until the first read.
func New(opts ...Option) (*Service, error) {
	s := &Service{
		provider:   fixture.NewProvider(),
		httpClient: &http.Client{Timeout: defaultHTTPTimeout},
	}
	for _, opt := range opts {
		opt(s)
	}

	cfg := FixtureDefault()
	switch {
	case s.initial != nil:
		cfg = *s.initial
	case s.store != nil:
		stored, err := s.store.Load()
		if err != nil {
			return nil, fmt.Errorf("loading data source config: %w", err)
		}
		if stored != nil {
			cfg = *stored
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	b, err := s.newBackend(cfg)
	if err != nil {
		return nil, err
	}
	s.cfg = cfg
	s.active = b
	return s, nil
}

func (s *Service) newBackend(cfg Config) (backend, error) {
	switch cfg.Kind {
	case KindRemoteWarehouse:
		rw := *cfg.RemoteWarehouse
		client, err := gatewayclient.New(rw.GatewayURL,
			gatewayclient.WithHTTPClient(s.httpClient),
			gatewayclient.WithAPIKey(rw.GatewayAPIKey),
		)
		if err != nil {
			return nil, err
		}
		return &remoteBackend{cfg: rw, client: client, tokens: s.tokens}, nil
	case KindGenericAPI:
		return &genericBackend{cfg: *cfg.GenericAPI, client: s.httpClient}, nil
	default:
		var delay time.Duration
		if cfg.Fixture != nil {
			delay = cfg.Fixture.SimulatedDelay
		}
		return &fixtureBackend{provider: s.provider, delay: delay}, nil
	}
}

// Configure replaces the active configuration. It waits for in-flight reads,
// releases the previous backend (disconnecting a held remote session), then
// activates cfg and persists it when a store is set. An invalid cfg leaves
// the active configuration untouched.
func (s *Service) Configure(ctx context.Context, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	next, err := s.newBackend(cfg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev := s.active
	if err := prev.release(ctx); err != nil {
		slog.Warn("releasing previous data source", "kind", prev.kind(), "error", err)
	}
	s.active = next
	s.cfg = cfg
	s.mu.Unlock()

	slog.Info("data source configured", "kind", cfg.Kind)

	if s.store != nil {
		if err := s.store.Save(cfg); err != nil {
			return fmt.Errorf("saving data source config: %w", err)
		}
	}
	return nil
}

// Active returns the active configuration.
func (s *Service) Active() Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// UsingMockFallback reports whether the last backend read fell back to
// fixture data.
func (s *Service) UsingMockFallback() bool {
	return s.fallback.Load()
}

// Fetch reads l from the active backend. It never fails: a backend error
// yields fixture records with Source set to SourceFallback.
func (s *Service) Fetch(ctx context.Context, l query.Logical, filters map[string]string) Result {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b := s.active
	recs, err := b.fetch(ctx, l, filters)
	if err == nil {
		s.fallback.Store(false)
		return newResult(recs, Source(b.kind()), nil)
	}

	if b.kind() == KindFixture {
		slog.Error("fixture read failed", "logical", l, "error", err)
		return newResult([]query.Record{}, SourceFixture, err)
	}

	slog.Warn("data source read failed, using fixture data", "kind", b.kind(), "logical", l, "error", err)
	metrics.FallbackReads.WithLabelValues(string(b.kind())).Inc()
	s.fallback.Store(true)

	fb, ferr := s.provider.Result(l, filters)
	if ferr != nil {
		return newResult([]query.Record{}, SourceFallback, err)
	}
	return Result{
		Records: fb.Records,
		Columns: fb.Columns,
		Count:   fb.Count,
		Source:  SourceFallback,
		Cause:   err,
	}
}

// ErrNotRemote is returned by operations that need a remote warehouse source.
var ErrNotRemote = fmt.Errorf("%w: active data source is not a remote warehouse", query.ErrConfig)

// Check verifies that the active source answers. Fixtures always pass. A
// remote warehouse is tested through the facade without holding a session.
// Check does not touch the fallback flag.
func (s *Service) Check(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active.check(ctx)
}

// Query runs a raw statement on the remote warehouse session. There is no
// fixture fallback for raw statements.
func (s *Service) Query(ctx context.Context, statement string) (Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rb, ok := s.active.(*remoteBackend)
	if !ok {
		return Result{}, ErrNotRemote
	}
	res, err := rb.query(ctx, statement)
	if err != nil {
		return Result{}, err
	}
	out := newResult(res.Records, SourceRemoteWarehouse, nil)
	if len(res.Columns) > 0 {
		out.Columns = res.Columns
	}
	return out, nil
}

// GatewayStatus is the status of the facade behind a remote source.
type GatewayStatus struct {
	URL    string                `json:"url"`
	Facade *gatewayclient.Status `json:"facade"`
}

// GatewayStatus reads the status of the facade the remote source talks to.
func (s *Service) GatewayStatus(ctx context.Context) (*GatewayStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rb, ok := s.active.(*remoteBackend)
	if !ok {
		return nil, ErrNotRemote
	}
	st, err := rb.client.Status(ctx)
	if err != nil {
		return nil, err
	}
	return &GatewayStatus{URL: rb.client.BaseURL(), Facade: st}, nil
}

// Accounts reads accounts.
func (s *Service) Accounts(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.Accounts, filters)
}

// Transactions reads transactions.
func (s *Service) Transactions(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.Transactions, filters)
}

// Projects reads projects.
func (s *Service) Projects(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.Projects, filters)
}

// BudgetEntries reads budget entries.
func (s *Service) BudgetEntries(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.BudgetEntries, filters)
}

// Vendors reads vendors.
func (s *Service) Vendors(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.Vendors, filters)
}

// KPIs reads KPIs.
func (s *Service) KPIs(ctx context.Context, filters map[string]string) Result {
	return s.Fetch(ctx, query.KPIs, filters)
}

// Close releases the active backend and reverts to fixtures; Active reports
// the fixture default afterwards. The persisted configuration is kept, so a
// new Service built on the same store resumes the previous source.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.active.release(ctx)
	s.active = &fixtureBackend{provider: s.provider}
	s.cfg = FixtureDefault()
	return err
}

func newResult(recs []query.Record, src Source, cause error) Result {
	if recs == nil {
		recs = []query.Record{}
	}
	return Result{
		Records: recs,
		Columns: columns(recs),
		Count:   len(recs),
		Source:  src,
		Cause:   cause,
	}
}

// columns returns the keys of the first record, sorted.
func columns(recs []query.Record) []string {
	if len(recs) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(recs[0]))
	for k := range recs[0] {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
