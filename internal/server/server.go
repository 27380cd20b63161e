// Package server wires the session facade, its HTTP surfaces and the
// optional session event store into one HTTP server.
//
//	@title						Budget Data Gateway API
//	@version					1.0
//	@description				Session-scoped query gateway to hosted analytical SQL warehouses.
//	@license.name				Apache 2.0
//	@BasePath					/
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	_ "github.com/txn2/budget-data-gateway/internal/apidocs" // register swagger docs
	"github.com/txn2/budget-data-gateway/pkg/api"
	"github.com/txn2/budget-data-gateway/pkg/api/graphql"
	"github.com/txn2/budget-data-gateway/pkg/auth"
	"github.com/txn2/budget-data-gateway/pkg/config"
	"github.com/txn2/budget-data-gateway/pkg/database/migrate"
	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/gateway/databricks"
	"github.com/txn2/budget-data-gateway/pkg/gateway/trino"
	"github.com/txn2/budget-data-gateway/pkg/health"
	httpmw "github.com/txn2/budget-data-gateway/pkg/http"
	"github.com/txn2/budget-data-gateway/pkg/mcptools"
	"github.com/txn2/budget-data-gateway/pkg/session"
	"github.com/txn2/budget-data-gateway/pkg/session/postgres"
)

// Build information, set with -ldflags.
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

const eventCleanupInterval = time.Hour

// Server is the gateway HTTP server.
type Server struct {
	cfg      *config.Config
	handler  http.Handler
	registry *session.Registry
	checker  *health.Checker
	events   *postgres.Store
	db       *sql.DB
	ownsDB   bool
}

// Option configures a Server.
type Option func(*options)

type options struct {
	drivers []gateway.Driver
	db      *sql.DB
}

// WithDrivers replaces the built-in warehouse drivers.
func WithDrivers(drivers ...gateway.Driver) Option {
	return func(o *options) { o.drivers = drivers }
}

// WithDB uses db for the session event store instead of opening
// cfg.Database.DSN. Migrations are not run on a supplied handle.
func WithDB(db *sql.DB) Option {
	return func(o *options) { o.db = db }
}

// New builds the server from cfg.
func New(cfg *config.Config, opts ...Option) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	if len(o.drivers) == 0 {
		o.drivers = []gateway.Driver{databricks.New(), trino.New(cfg.Session.TrinoUser)}
	}

	s := &Server{cfg: cfg, checker: health.NewChecker()}
	if err := s.openEventStore(o.db); err != nil {
		return nil, err
	}

	gwOpts := []gateway.Option{gateway.WithDefaultDriver(cfg.Session.DefaultDriver)}
	for _, d := range o.drivers {
		gwOpts = append(gwOpts, gateway.WithDriver(d))
	}
	gw := gateway.New(gwOpts...)

	regCfg := session.Config{TTL: cfg.Session.IdleTimeout()}
	if s.events != nil {
		regCfg.Recorder = s.events
	}
	s.registry = session.NewRegistry(gw, regCfg)
	svcOpts := []api.ServiceOption{api.WithDrivers(gw.Drivers()...)}
	if s.events != nil {
		svcOpts = append(svcOpts, api.WithEventLog(s.events))
	}
	svc := api.NewService(gw, s.registry, svcOpts...)

	authMiddle, err := buildAuth(cfg.Auth)
	if err != nil {
		s.registry.Shutdown(context.Background())
		s.closeEventStore()
		return nil, err
	}

	handler, err := s.routes(svc, authMiddle)
	if err != nil {
		s.registry.Shutdown(context.Background())
		s.closeEventStore()
		return nil, err
	}
	s.handler = handler
	return s, nil
}

func (s *Server) openEventStore(db *sql.DB) error {
	if db == nil && s.cfg.Database.DSN == "" {
		return nil
	}
	if db == nil {
		var err error
		db, err = sql.Open("postgres", s.cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("opening event database: %w", err)
		}
		db.SetMaxOpenConns(s.cfg.Database.MaxOpenConns)
		if err := migrate.Run(db); err != nil {
			_ = db.Close()
			return fmt.Errorf("migrating event database: %w", err)
		}
		s.ownsDB = true
	}

	s.db = db
	s.events = postgres.New(db, postgres.Config{RetentionDays: s.cfg.Database.RetentionDays})
	s.events.StartCleanupRoutine(eventCleanupInterval)
	s.checker.AddCheck("session_events", db.PingContext)
	return nil
}

func (s *Server) closeEventStore() {
	if s.events != nil {
		_ = s.events.Close()
	}
	if s.ownsDB && s.db != nil {
		_ = s.db.Close()
	}
}

// buildAuth returns the caller authentication middleware, or nil when auth
// is disabled.
func buildAuth(cfg config.AuthConfig) (func(http.Handler) http.Handler, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	var authenticators []auth.Authenticator
	if len(cfg.APIKeys) > 0 {
		a, err := auth.NewAPIKeyAuthenticator(cfg.APIKeys)
		if err != nil {
			return nil, fmt.Errorf("configuring api keys: %w", err)
		}
		authenticators = append(authenticators, a)
	}
	if cfg.JWT.Issuer != "" {
		a, err := auth.NewJWTAuthenticator(auth.JWTConfig{
			Issuer:        cfg.JWT.Issuer,
			SigningKey:    []byte(cfg.JWT.SigningKey),
			RoleClaimPath: cfg.JWT.RoleClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("configuring jwt: %w", err)
		}
		authenticators = append(authenticators, a)
	}

	chain := auth.NewChainedAuthenticator(auth.ChainedAuthConfig{AllowAnonymous: cfg.AllowAnonymous}, authenticators...)
	return httpmw.AuthMiddleware(chain), nil
}

func (s *Server) routes(svc *api.Service, authMiddle func(http.Handler) http.Handler) (http.Handler, error) {
	protect := func(h http.Handler) http.Handler {
		if authMiddle == nil {
			return h
		}
		return authMiddle(h)
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", s.checker.LivenessHandler())
	mux.Handle("GET /readyz", s.checker.ReadinessHandler())

	if s.cfg.Metrics.Enabled {
		mux.Handle("GET "+s.cfg.Metrics.Path, promhttp.Handler())
	}
	if s.cfg.Docs.Enabled {
		mux.Handle("GET /docs/", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))
	}

	gql, err := graphql.NewHandler(svc)
	if err != nil {
		return nil, fmt.Errorf("building graphql schema: %w", err)
	}
	mux.Handle("POST /graphql", protect(gql))

	if s.cfg.MCP.Enabled {
		var mcpOpts []mcptools.Option
		if authMiddle != nil {
			mcpOpts = append(mcpOpts, mcptools.WithoutSessionList())
		}
		mcpServer := mcptools.NewServer(s.cfg.Server.Name, Version, svc, mcpOpts...)
		mux.Handle(s.cfg.MCP.Path, protect(mcptools.NewHandler(mcpServer)))
	}

	var apiOpts []api.HandlerOption
	if authMiddle != nil {
		apiOpts = append(apiOpts, api.WithAdminMiddleware(httpmw.RequireRole(s.cfg.Auth.AdminRole)))
	}
	mux.Handle("/", api.NewHandler(svc, authMiddle, apiOpts...))

	return httpmw.Chain(mux,
		httpmw.RequestLogger(slog.Default()),
		httpmw.CORS(s.cfg.Server.AllowedOrigins),
	), nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.handler }

// Checker returns the readiness checker.
func (s *Server) Checker() *health.Checker { return s.checker }

// Registry returns the session registry.
func (s *Server) Registry() *session.Registry { return s.registry }

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully: readiness drains, in-flight requests finish, and every open
// warehouse session is closed.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.checker.SetReady()
	slog.Info("budget gateway listening",
		"address", ln.Addr().String(),
		"version", Version,
		"session_ttl", s.registry.TTL().String(),
	)

	var serveErr error
	select {
	case serveErr = <-errCh:
	case <-ctx.Done():
	}

	s.checker.SetDraining()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	s.Close(shutdownCtx)

	if serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
		return fmt.Errorf("serving http: %w", serveErr)
	}
	return nil
}

// ListenAndServe listens on the configured address and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Server.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Close closes every open session and the event store.
func (s *Server) Close(ctx context.Context) {
	n := s.registry.Len()
	s.registry.Shutdown(ctx)
	s.closeEventStore()
	slog.Info("budget gateway stopped", "sessions_closed", n)
}
