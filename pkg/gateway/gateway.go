// Package gateway talks to remote SQL warehouses. It opens authenticated
// sessions, executes single statements end to end, and tears sessions down.
// It performs no caching, no retries and no statement rewriting.
package gateway

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/metrics"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

// DefaultDriver is used when Params.Driver is empty.
const DefaultDriver = "databricks"

// probeStatement is executed by Probe.
const probeStatement = "SELECT 1 AS test"

// Driver opens a database handle for one warehouse flavor. Open must not
// perform network I/O beyond what the flavor needs to build the handle; the
// gateway pins and pings a connection afterwards.
type Driver interface {
	Name() string
	Open(ctx context.Context, p Params) (*sql.DB, error)
}

// Handle owns the client (database handle) and the logical session (one
// pinned connection) of an open warehouse session.
type Handle struct {
	driver string
	db     *sql.DB
	conn   *sql.Conn
}

// Driver returns the driver name the handle was opened with.
func (h *Handle) Driver() string {
	return h.driver
}

// Gateway is the connection gateway. It is safe for concurrent use; each
// Handle must only be used by one caller at a time.
type Gateway struct {
	drivers       map[string]Driver
	defaultDriver string
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithDriver registers a driver under its Name.
func WithDriver(d Driver) Option {
	return func(g *Gateway) {
		g.drivers[d.Name()] = d
	}
}

// WithDefaultDriver sets the driver used when Params.Driver is empty.
func WithDefaultDriver(name string) Option {
	return func(g *Gateway) {
		if name != "" {
			g.defaultDriver = name
		}
	}
}

// New creates a gateway.
func New(opts ...Option) *Gateway {
	g := &Gateway{
		drivers:       make(map[string]Driver),
		defaultDriver: DefaultDriver,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Drivers returns the registered driver names, sorted.
func (g *Gateway) Drivers() []string {
	names := make([]string, 0, len(g.drivers))
	for n := range g.drivers {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (g *Gateway) driverFor(p Params) (Driver, error) {
	name := p.Driver
	if name == "" {
		name = g.defaultDriver
	}
	d, ok := g.drivers[name]
	if !ok {
		return nil, &query.ConfigError{Field: fmt.Sprintf("driver (unknown %q)", name)}
	}
	return d, nil
}

// OpenSession connects to the warehouse and opens a logical session,
// optionally scoped to p.Catalog and p.Schema. Missing parameters fail with
// a ConfigError before any network attempt; every other failure is a
// ConnectionError and leaves nothing open.
func (g *Gateway) OpenSession(ctx context.Context, p Params) (*Handle, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	d, err := g.driverFor(p)
	if err != nil {
		return nil, err
	}

	db, err := d.Open(ctx, p)
	if err != nil {
		metrics.ConnectFailures.Inc()
		if errors.Is(err, query.ErrConfig) {
			return nil, err
		}
		return nil, &query.ConnectionError{Cause: fmt.Errorf("opening %s client: %w", d.Name(), err)}
	}
	// One session per handle: no multiplexing over pooled connections.
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		metrics.ConnectFailures.Inc()
		_ = db.Close()
		return nil, &query.ConnectionError{Cause: fmt.Errorf("opening %s session: %w", d.Name(), err)}
	}
	if err := conn.PingContext(ctx); err != nil {
		metrics.ConnectFailures.Inc()
		_ = conn.Close()
		_ = db.Close()
		return nil, &query.ConnectionError{Cause: fmt.Errorf("pinging %s session: %w", d.Name(), err)}
	}

	slog.Debug("gateway: session opened", "driver", d.Name(), "catalog", p.Catalog, "schema", p.Schema)
	return &Handle{driver: d.Name(), db: db, conn: conn}, nil
}

// Execute submits one statement on the session, reads the full result set
// and releases the statement before returning, on success and on failure.
func (*Gateway) Execute(ctx context.Context, h *Handle, stmt query.Statement) (*query.Result, error) {
	if h == nil || h.conn == nil {
		return nil, &query.QueryError{Cause: errors.New("no open session")}
	}
	start := time.Now()
	res, err := execute(ctx, h.conn, stmt)
	metrics.QueryDuration.WithLabelValues(h.driver).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.QueryErrors.WithLabelValues(h.driver).Inc()
		return nil, &query.QueryError{Cause: err}
	}
	return res, nil
}

func execute(ctx context.Context, conn *sql.Conn, stmt query.Statement) (*query.Result, error) {
	rows, err := conn.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("executing statement: %w", err)
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("reading columns: %w", err)
	}

	records := make([]query.Record, 0)
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		rec := make(query.Record, len(cols))
		for i, c := range cols {
			rec[c] = normalize(vals[i])
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating rows: %w", err)
	}

	return &query.Result{Columns: cols, Records: records, Count: len(records)}, nil
}

// normalize converts driver values into JSON-friendly ones.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}

// CloseSession closes the logical session, then the client. Both steps are
// always attempted; their errors are joined.
func (*Gateway) CloseSession(_ context.Context, h *Handle) error {
	if h == nil {
		return nil
	}
	var connErr, dbErr error
	if h.conn != nil {
		if err := h.conn.Close(); err != nil {
			connErr = fmt.Errorf("closing session: %w", err)
		}
	}
	if h.db != nil {
		if err := h.db.Close(); err != nil {
			dbErr = fmt.Errorf("closing client: %w", err)
		}
	}
	return errors.Join(connErr, dbErr)
}

// Probe opens a temporary session, runs a trivial statement and closes it.
// Teardown errors are logged, not returned: the probe already succeeded.
func (g *Gateway) Probe(ctx context.Context, p Params) error {
	h, err := g.OpenSession(ctx, p)
	if err != nil {
		return err
	}
	defer func() {
		if err := g.CloseSession(ctx, h); err != nil {
			slog.Warn("gateway: probe teardown failed", "driver", h.driver, "error", err)
		}
	}()

	if _, err := g.Execute(ctx, h, query.Raw(probeStatement)); err != nil {
		return err
	}
	return nil
}
