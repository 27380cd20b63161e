package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// APIKey is a facade API key entry. Either KeyHash (bcrypt) or Key
// (plaintext, for development) must be set.
type APIKey struct {
	Name    string   `yaml:"name"`
	Key     string   `yaml:"key,omitempty"`
	KeyHash string   `yaml:"key_hash,omitempty"`
	Roles   []string `yaml:"roles,omitempty"`
}

// APIKeyAuthenticator authenticates using API keys.
type APIKeyAuthenticator struct {
	keys []APIKey
}

// NewAPIKeyAuthenticator creates a new API key authenticator.
func NewAPIKeyAuthenticator(keys []APIKey) (*APIKeyAuthenticator, error) {
	for i, k := range keys {
		if k.Name == "" {
			return nil, fmt.Errorf("api key %d: name is required", i)
		}
		if k.Key == "" && k.KeyHash == "" {
			return nil, fmt.Errorf("api key %q: key or key_hash is required", k.Name)
		}
		if k.KeyHash != "" {
			if _, err := bcrypt.Cost([]byte(k.KeyHash)); err != nil {
				return nil, fmt.Errorf("api key %q: invalid key_hash: %w", k.Name, err)
			}
		}
	}
	return &APIKeyAuthenticator{keys: keys}, nil
}

// Authenticate validates the API key in the context.
func (a *APIKeyAuthenticator) Authenticate(ctx context.Context) (*Caller, error) {
	token := GetToken(ctx)
	if token == "" {
		return nil, errors.New("no API key found in context")
	}

	for i := range a.keys {
		k := &a.keys[i]
		if !k.matches(token) {
			continue
		}
		return &Caller{
			ID:       "apikey:" + k.Name,
			Name:     k.Name,
			Roles:    k.Roles,
			AuthType: "apikey",
		}, nil
	}
	return nil, errors.New("invalid API key")
}

func (k *APIKey) matches(token string) bool {
	if k.KeyHash != "" {
		return bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(token)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(k.Key), []byte(token)) == 1
}

// HashKey returns the bcrypt hash to store as key_hash for key.
func HashKey(key string) (string, error) {
	if key == "" {
		return "", errors.New("key is empty")
	}
	h, err := bcrypt.GenerateFromPassword([]byte(key), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing key: %w", err)
	}
	return string(h), nil
}

// Verify interface compliance.
var _ Authenticator = (*APIKeyAuthenticator)(nil)
