package auth

import (
	"context"
	"errors"
)

// ErrUnauthenticated is returned when no authenticator accepts the credential.
var ErrUnauthenticated = errors.New("authentication failed")

// Authenticator validates the credential in the context.
type Authenticator interface {
	Authenticate(ctx context.Context) (*Caller, error)
}

// ChainedAuthenticator tries multiple authenticators in order.
type ChainedAuthenticator struct {
	authenticators []Authenticator
	allowAnonymous bool
}

// ChainedAuthConfig configures the chained authenticator.
type ChainedAuthConfig struct {
	AllowAnonymous bool
}

// NewChainedAuthenticator creates a new chained authenticator.
func NewChainedAuthenticator(cfg ChainedAuthConfig, authenticators ...Authenticator) *ChainedAuthenticator {
	return &ChainedAuthenticator{
		authenticators: authenticators,
		allowAnonymous: cfg.AllowAnonymous,
	}
}

// Authenticate returns the first caller accepted by an authenticator. The
// last error is wrapped when all of them reject the credential.
func (c *ChainedAuthenticator) Authenticate(ctx context.Context) (*Caller, error) {
	var lastErr error
	for _, a := range c.authenticators {
		caller, err := a.Authenticate(ctx)
		if err == nil && caller != nil {
			return caller, nil
		}
		if err != nil {
			lastErr = err
		}
	}

	if c.allowAnonymous {
		return &Caller{ID: "anonymous", AuthType: "anonymous"}, nil
	}
	if lastErr != nil {
		return nil, errors.Join(ErrUnauthenticated, lastErr)
	}
	return nil, ErrUnauthenticated
}

// Verify interface compliance.
var _ Authenticator = (*ChainedAuthenticator)(nil)
