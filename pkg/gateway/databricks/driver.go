// Package databricks provides the Databricks SQL warehouse driver for the
// connection gateway.
package databricks

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"

	dbsql "github.com/databricks/databricks-sql-go"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

const (
	// Name is the driver name used in gateway.Params.Driver.
	Name = "databricks"

	defaultPort = 443
)

// Driver opens Databricks SQL warehouse handles using an access token.
type Driver struct{}

// New creates a Databricks driver.
func New() *Driver {
	return &Driver{}
}

// Name returns the driver name.
func (*Driver) Name() string {
	return Name
}

// Open builds a database handle for the warehouse at p.EndpointURL and
// p.AccessPath. No connection is made until the gateway pins one.
func (*Driver) Open(_ context.Context, p gateway.Params) (*sql.DB, error) {
	if strings.TrimSpace(p.AccessPath) == "" {
		return nil, &query.ConfigError{Field: "accessPath"}
	}
	u, port, err := p.Endpoint(defaultPort)
	if err != nil {
		return nil, err
	}

	c, err := newConnector(u.Hostname(), port, p)
	if err != nil {
		return nil, fmt.Errorf("creating databricks connector: %w", err)
	}
	return sql.OpenDB(c), nil
}

// newConnector sets the initial namespace only when a catalog or schema is
// given, so the warehouse defaults apply otherwise.
func newConnector(host string, port int, p gateway.Params) (driver.Connector, error) {
	if p.Catalog == "" && p.Schema == "" {
		return dbsql.NewConnector(
			dbsql.WithServerHostname(host),
			dbsql.WithPort(port),
			dbsql.WithHTTPPath(p.AccessPath),
			dbsql.WithAccessToken(p.Token),
		)
	}
	return dbsql.NewConnector(
		dbsql.WithServerHostname(host),
		dbsql.WithPort(port),
		dbsql.WithHTTPPath(p.AccessPath),
		dbsql.WithAccessToken(p.Token),
		dbsql.WithInitialNamespace(p.Catalog, p.Schema),
	)
}

// Verify interface compliance.
var _ gateway.Driver = (*Driver)(nil)
