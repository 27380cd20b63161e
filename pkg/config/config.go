// Package config loads the gateway server configuration.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/txn2/budget-data-gateway/pkg/auth"
)

// Environment variables that override the YAML file.
const (
	EnvIdleTimeoutMS  = "SESSION_IDLE_TIMEOUT_MS"
	EnvAllowedOrigins = "ALLOWED_ORIGINS"
	EnvPort           = "PORT"
)

// Defaults.
const (
	DefaultIdleTimeoutMS   = 1800000
	DefaultAddress         = ":8080"
	DefaultDriver          = "databricks"
	DefaultTrinoUser       = "budget-gateway"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 2 * time.Minute
	DefaultShutdownTimeout = 25 * time.Second
	DefaultMaxOpenConns    = 10
	DefaultRetentionDays   = 30
	DefaultMetricsPath     = "/metrics"
	DefaultMCPPath         = "/mcp"
	DefaultAdminRole       = "admin"
)

// Config holds the complete gateway configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	MCP      MCPConfig      `yaml:"mcp"`
	Docs     DocsConfig     `yaml:"docs"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Name            string        `yaml:"name"`
	Address         string        `yaml:"address"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// SessionConfig configures the session registry.
type SessionConfig struct {
	IdleTimeoutMS int64  `yaml:"idle_timeout_ms"`
	DefaultDriver string `yaml:"default_driver"`

	// TrinoUser is the X-Trino-User sent on trino sessions.
	TrinoUser string `yaml:"trino_user"`
}

// IdleTimeout returns the session TTL.
func (s SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutMS) * time.Millisecond
}

// AuthConfig configures facade caller authentication.
type AuthConfig struct {
	Enabled        bool          `yaml:"enabled"`
	AllowAnonymous bool          `yaml:"allow_anonymous"`
	APIKeys        []auth.APIKey `yaml:"api_keys"`
	JWT            JWTConfig     `yaml:"jwt"`
	// AdminRole is required for the session listing and event history.
	AdminRole string `yaml:"admin_role"`
}

// JWTConfig configures HMAC JWT validation.
type JWTConfig struct {
	Issuer     string `yaml:"issuer"`
	SigningKey string `yaml:"signing_key"`
	RoleClaim  string `yaml:"role_claim"`
}

// DatabaseConfig configures the session event store. An empty DSN disables
// it.
type DatabaseConfig struct {
	DSN           string `yaml:"dsn"`
	MaxOpenConns  int    `yaml:"max_open_conns"`
	RetentionDays int    `yaml:"retention_days"`
}

// MetricsConfig configures the prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// MCPConfig configures the MCP tool endpoint.
type MCPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DocsConfig configures the swagger UI.
type DocsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads the configuration from path, expands ${VAR} references,
// applies environment overrides and defaults. An empty path yields the
// defaults plus environment overrides.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		// #nosec G304 -- path is from CLI args, controlled by admin
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		data = []byte(expandEnvVars(string(data)))
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config: %w", err)
		}
	}

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars expands ${VAR} patterns in the string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		return os.Getenv(match[2 : len(match)-1])
	})
}

// applyEnv applies the environment overrides.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvIdleTimeoutMS); ok && v != "" {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil || ms <= 0 {
			return fmt.Errorf("%s: invalid value %q", EnvIdleTimeoutMS, v)
		}
		cfg.Session.IdleTimeoutMS = ms
	}
	if v, ok := lookup(EnvAllowedOrigins); ok && v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return fmt.Errorf("%s: invalid port %q", EnvPort, v)
		}
		cfg.Server.Address = ":" + v
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// applyDefaults applies default values to the config.
func applyDefaults(cfg *Config) {
	if cfg.Server.Name == "" {
		cfg.Server.Name = "budget-data-gateway"
	}
	if cfg.Server.Address == "" {
		cfg.Server.Address = DefaultAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Session.IdleTimeoutMS == 0 {
		cfg.Session.IdleTimeoutMS = DefaultIdleTimeoutMS
	}
	if cfg.Session.DefaultDriver == "" {
		cfg.Session.DefaultDriver = DefaultDriver
	}
	if cfg.Session.TrinoUser == "" {
		cfg.Session.TrinoUser = DefaultTrinoUser
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultMaxOpenConns
	}
	if cfg.Database.RetentionDays == 0 {
		cfg.Database.RetentionDays = DefaultRetentionDays
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = DefaultMetricsPath
	}
	if cfg.MCP.Path == "" {
		cfg.MCP.Path = DefaultMCPPath
	}
	if cfg.Auth.AdminRole == "" {
		cfg.Auth.AdminRole = DefaultAdminRole
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	var errs []string

	if c.Session.IdleTimeoutMS <= 0 {
		errs = append(errs, "session.idle_timeout_ms must be positive")
	}
	if c.Database.MaxOpenConns < 0 {
		errs = append(errs, "database.max_open_conns must not be negative")
	}
	if c.Database.RetentionDays < 0 {
		errs = append(errs, "database.retention_days must not be negative")
	}

	if c.Auth.Enabled {
		if len(c.Auth.APIKeys) == 0 && c.Auth.JWT.Issuer == "" && !c.Auth.AllowAnonymous {
			errs = append(errs, "auth requires api_keys or jwt when enabled")
		}
		for i, k := range c.Auth.APIKeys {
			if k.Name == "" {
				errs = append(errs, fmt.Sprintf("auth.api_keys[%d].name is required", i))
			}
			if k.Key == "" && k.KeyHash == "" {
				errs = append(errs, fmt.Sprintf("auth.api_keys[%d] requires key or key_hash", i))
			}
		}
		if c.Auth.JWT.Issuer != "" && c.Auth.JWT.SigningKey == "" {
			errs = append(errs, "auth.jwt.signing_key is required when auth.jwt.issuer is set")
		}
	}

	for name, path := range map[string]string{"metrics.path": c.Metrics.Path, "mcp.path": c.MCP.Path} {
		if !strings.HasPrefix(path, "/") {
			errs = append(errs, name+" must start with /")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors: %s", strings.Join(errs, "; "))
	}
	return nil
}
