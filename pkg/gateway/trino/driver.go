// Package trino provides the Trino warehouse driver for the connection
// gateway. Sessions authenticate with a JWT access token.
package trino

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"

	trinogo "github.com/trinodb/trino-go-client/trino"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
)

const (
	// Name is the driver name used in gateway.Params.Driver.
	Name = "trino"

	defaultPort = 443
	defaultUser = "budget-gateway"
	source      = "budget-gateway"
)

// Driver opens Trino handles through the trino database/sql driver.
type Driver struct {
	user string
}

// New creates a Trino driver. user is the Trino principal reported in the
// server URI; the access token carries the actual identity.
func New(user string) *Driver {
	if user == "" {
		user = defaultUser
	}
	return &Driver{user: user}
}

// Name returns the driver name.
func (*Driver) Name() string {
	return Name
}

// Open builds a database handle. p.AccessPath is unused by Trino.
func (d *Driver) Open(_ context.Context, p gateway.Params) (*sql.DB, error) {
	dsn, err := d.DSN(p)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open("trino", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening trino handle: %w", err)
	}
	return db, nil
}

// DSN renders the trino driver DSN for p.
func (d *Driver) DSN(p gateway.Params) (string, error) {
	u, port, err := p.Endpoint(defaultPort)
	if err != nil {
		return "", err
	}
	server := url.URL{
		Scheme: u.Scheme,
		User:   url.User(d.user),
		Host:   fmt.Sprintf("%s:%d", u.Hostname(), port),
	}

	cfg := &trinogo.Config{
		ServerURI:   server.String(),
		Source:      source,
		Catalog:     p.Catalog,
		Schema:      p.Schema,
		AccessToken: p.Token,
	}
	dsn, err := cfg.FormatDSN()
	if err != nil {
		return "", fmt.Errorf("formatting trino dsn: %w", err)
	}
	return dsn, nil
}

// Verify interface compliance.
var _ gateway.Driver = (*Driver)(nil)
