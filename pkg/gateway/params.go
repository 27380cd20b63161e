package gateway

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

// Params describes how to reach and authenticate against a warehouse.
type Params struct {
	// Driver selects the warehouse flavor. Empty means the gateway default.
	Driver string `json:"driver,omitempty" yaml:"driver,omitempty"`

	// EndpointURL is the warehouse host, with or without scheme and port.
	EndpointURL string `json:"endpointUrl" yaml:"endpoint_url"`

	// AccessPath is the HTTP path of the SQL endpoint (Databricks http_path).
	AccessPath string `json:"accessPath" yaml:"access_path"`

	// Catalog and Schema optionally scope the session.
	Catalog string `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Schema  string `json:"schema,omitempty" yaml:"schema,omitempty"`

	// Token is the bearer credential. It is never serialized back out.
	Token string `json:"token,omitempty" yaml:"-"`
}

// Validate fails fast on missing parameters, before any network attempt.
func (p Params) Validate() error {
	if strings.TrimSpace(p.EndpointURL) == "" {
		return &query.ConfigError{Field: "endpointUrl"}
	}
	if strings.TrimSpace(p.Token) == "" {
		return &query.ConfigError{Field: "token"}
	}
	return nil
}

// Endpoint parses EndpointURL, defaulting the scheme to https and the port
// to defaultPort when absent.
func (p Params) Endpoint(defaultPort int) (*url.URL, int, error) {
	raw := strings.TrimSpace(p.EndpointURL)
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("parsing endpoint %q: %w", p.EndpointURL, err)
	}
	if u.Hostname() == "" {
		return nil, 0, &query.ConfigError{Field: "endpointUrl"}
	}
	port := defaultPort
	if ps := u.Port(); ps != "" {
		port, err = strconv.Atoi(ps)
		if err != nil {
			return nil, 0, fmt.Errorf("parsing endpoint port %q: %w", ps, err)
		}
	}
	return u, port, nil
}

// Redacted returns a copy safe for logging and status output.
func (p Params) Redacted() Params {
	p.Token = ""
	return p
}
