package dataservice

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

// Kind discriminates the active data source.
type Kind string

// Data source kinds.
const (
	KindFixture         Kind = "fixture"
	KindRemoteWarehouse Kind = "remote_warehouse"
	KindGenericAPI      Kind = "generic_api"
)

// Config is the data source configuration. Exactly one variant, selected by
// Kind, is active; the others are ignored.
type Config struct {
	Kind            Kind                   `json:"kind" yaml:"kind"`
	Fixture         *FixtureConfig         `json:"fixture,omitempty" yaml:"fixture,omitempty"`
	RemoteWarehouse *RemoteWarehouseConfig `json:"remoteWarehouse,omitempty" yaml:"remote_warehouse,omitempty"`
	GenericAPI      *GenericAPIConfig      `json:"genericApi,omitempty" yaml:"generic_api,omitempty"`
}

// FixtureConfig serves the built-in fixtures.
type FixtureConfig struct {
	// SimulatedDelay is slept before every read to exercise loading states.
	SimulatedDelay time.Duration `json:"simulatedDelay,omitempty" yaml:"simulated_delay,omitempty"`
}

// RemoteWarehouseConfig reads through the session facade.
type RemoteWarehouseConfig struct {
	GatewayURL      string `json:"gatewayUrl" yaml:"gateway_url"`
	GatewayAPIKey   string `json:"gatewayApiKey,omitempty" yaml:"gateway_api_key,omitempty"`
	Driver          string `json:"driver,omitempty" yaml:"driver,omitempty"`
	EndpointURL     string `json:"endpointUrl" yaml:"endpoint_url"`
	AccessPath      string `json:"accessPath,omitempty" yaml:"access_path,omitempty"`
	Catalog         string `json:"catalog,omitempty" yaml:"catalog,omitempty"`
	Schema          string `json:"schema,omitempty" yaml:"schema,omitempty"`
	CredentialToken string `json:"credentialToken,omitempty" yaml:"credential_token,omitempty"`
}

// GenericAPIConfig reads from a REST API exposing GET {baseUrl}/{entity}.
type GenericAPIConfig struct {
	BaseURL string            `json:"baseUrl" yaml:"base_url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	APIKey  string            `json:"apiKey,omitempty" yaml:"api_key,omitempty"`
}

// FixtureDefault is the configuration a new service starts with.
func FixtureDefault() Config {
	return Config{Kind: KindFixture, Fixture: &FixtureConfig{}}
}

// Validate checks the active variant.
func (c Config) Validate() error {
	switch c.Kind {
	case KindFixture:
		if c.Fixture != nil && c.Fixture.SimulatedDelay < 0 {
			return &query.ConfigError{Field: "fixture.simulatedDelay"}
		}
		return nil
	case KindRemoteWarehouse:
		rw := c.RemoteWarehouse
		if rw == nil {
			return &query.ConfigError{Field: "remoteWarehouse"}
		}
		if err := validateURL("remoteWarehouse.gatewayUrl", rw.GatewayURL); err != nil {
			return err
		}
		if strings.TrimSpace(rw.EndpointURL) == "" {
			return &query.ConfigError{Field: "remoteWarehouse.endpointUrl"}
		}
		return nil
	case KindGenericAPI:
		if c.GenericAPI == nil {
			return &query.ConfigError{Field: "genericApi"}
		}
		return validateURL("genericApi.baseUrl", c.GenericAPI.BaseURL)
	case "":
		return &query.ConfigError{Field: "kind"}
	default:
		return fmt.Errorf("%w: unknown data source kind %q", query.ErrConfig, c.Kind)
	}
}

func validateURL(field, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return &query.ConfigError{Field: field}
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s must be an http(s) url", query.ErrConfig, field)
	}
	return nil
}

// Redacted returns a copy with credentials masked, for display.
func (c Config) Redacted() Config {
	out := c
	if c.RemoteWarehouse != nil {
		rw := *c.RemoteWarehouse
		rw.CredentialToken = mask(rw.CredentialToken)
		rw.GatewayAPIKey = mask(rw.GatewayAPIKey)
		out.RemoteWarehouse = &rw
	}
	if c.GenericAPI != nil {
		ga := *c.GenericAPI
		ga.APIKey = mask(ga.APIKey)
		out.GenericAPI = &ga
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

// params converts the remote warehouse config to connection parameters.
func (rw *RemoteWarehouseConfig) params(token string) gateway.Params {
	return gateway.Params{
		Driver:      rw.Driver,
		EndpointURL: rw.EndpointURL,
		AccessPath:  rw.AccessPath,
		Catalog:     rw.Catalog,
		Schema:      rw.Schema,
		Token:       token,
	}
}
