// Package auth authenticates callers of the session facade. Callers present
// either a facade API key or an HMAC-signed JWT; both are independent of the
// warehouse credentials carried in connect requests.
package auth

import "context"

// contextKey is a private type for context keys.
type contextKey int

const (
	callerContextKey contextKey = iota
	tokenContextKey
)

// Caller is an authenticated facade caller.
type Caller struct {
	ID       string         `json:"id"`
	Name     string         `json:"name,omitempty"`
	Roles    []string       `json:"roles,omitempty"`
	Claims   map[string]any `json:"claims,omitempty"`
	AuthType string         `json:"auth_type"` // "apikey", "jwt", "anonymous"
}

// HasRole reports whether the caller has role.
func (c *Caller) HasRole(role string) bool {
	for _, r := range c.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// WithCaller adds the caller to the context.
func WithCaller(ctx context.Context, c *Caller) context.Context {
	return context.WithValue(ctx, callerContextKey, c)
}

// GetCaller retrieves the caller from the context.
func GetCaller(ctx context.Context) *Caller {
	if c, ok := ctx.Value(callerContextKey).(*Caller); ok {
		return c
	}
	return nil
}

// WithToken adds the raw caller credential to the context.
func WithToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenContextKey, token)
}

// GetToken retrieves the raw caller credential from the context.
func GetToken(ctx context.Context) string {
	if t, ok := ctx.Value(tokenContextKey).(string); ok {
		return t
	}
	return ""
}
