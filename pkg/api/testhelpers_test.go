package api

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/session"
)

const (
	apiTestDriver   = "mock"
	apiTestEndpoint = "https://adb-1.azuredatabricks.net"
	apiTestPath     = "/sql/1.0/warehouses/abc"
	apiTestToken    = "dapi-secret"
	apiTestTTL      = 5 * time.Minute
	apiTestWait     = 2 * time.Second
	apiTestTick     = 10 * time.Millisecond
)

// mockDriver opens a fresh sqlmock database per session and lets the test
// program its expectations.
type mockDriver struct {
	mu      sync.Mutex
	setup   func(sqlmock.Sqlmock)
	openErr error
	mocks   []sqlmock.Sqlmock
}

func (*mockDriver) Name() string { return apiTestDriver }

func (d *mockDriver) Open(_ context.Context, _ gateway.Params) (*sql.DB, error) {
	if d.openErr != nil {
		return nil, d.openErr
	}
	db, mock, err := sqlmock.New()
	if err != nil {
		return nil, err
	}
	mock.MatchExpectationsInOrder(false)
	if d.setup != nil {
		d.setup(mock)
	}
	mock.ExpectClose()

	d.mu.Lock()
	d.mocks = append(d.mocks, mock)
	d.mu.Unlock()
	return db, nil
}

func (d *mockDriver) opened() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.mocks)
}

type testEnv struct {
	svc      *Service
	registry *session.Registry
	driver   *mockDriver
}

func newTestEnv(t *testing.T, ttl time.Duration, setup func(sqlmock.Sqlmock)) *testEnv {
	t.Helper()
	drv := &mockDriver{setup: setup}
	gw := gateway.New(gateway.WithDriver(drv), gateway.WithDefaultDriver(apiTestDriver))
	reg := session.NewRegistry(gw, session.Config{TTL: ttl})
	t.Cleanup(func() { reg.Shutdown(context.Background()) })

	return &testEnv{
		svc:      NewService(gw, reg, WithDrivers(gw.Drivers()...)),
		registry: reg,
		driver:   drv,
	}
}

func testParams() gateway.Params {
	return gateway.Params{
		EndpointURL: apiTestEndpoint,
		AccessPath:  apiTestPath,
		Token:       apiTestToken,
	}
}

func (e *testEnv) connect(t *testing.T) string {
	t.Helper()
	sess, err := e.svc.Connect(context.Background(), testParams())
	require.NoError(t, err)
	return sess.ID
}
