package query

import (
	"errors"
	"fmt"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	// ErrConfig is returned when a required parameter is missing. It is raised
	// before any network attempt.
	ErrConfig = errors.New("configuration error")

	// ErrConnection is returned when opening a connection or session fails.
	ErrConnection = errors.New("connection error")

	// ErrSessionExpired is returned for a session ID the registry does not hold.
	ErrSessionExpired = errors.New("session expired or not found")

	// ErrQuery is returned when the remote statement fails.
	ErrQuery = errors.New("query error")

	// ErrInvalidFilter is returned for filter keys a logical query does not accept.
	ErrInvalidFilter = errors.New("invalid filter")
)

// ConfigError names the missing parameter.
type ConfigError struct {
	Field string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("missing required parameter: %s", e.Field)
}

// Is matches ErrConfig.
func (*ConfigError) Is(target error) bool { return target == ErrConfig }

// ConnectionError wraps a transport, auth or scope failure.
type ConnectionError struct {
	Cause error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Cause }

// Is matches ErrConnection.
func (*ConnectionError) Is(target error) bool { return target == ErrConnection }

// SessionExpiredError reports an operation against an unknown session.
type SessionExpiredError struct {
	SessionID string
}

func (e *SessionExpiredError) Error() string {
	return fmt.Sprintf("session %q expired or not found", e.SessionID)
}

// Is matches ErrSessionExpired.
func (*SessionExpiredError) Is(target error) bool { return target == ErrSessionExpired }

// QueryError wraps a failure of the statement itself.
type QueryError struct {
	Cause error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query failed: %v", e.Cause)
}

// Unwrap returns the underlying cause.
func (e *QueryError) Unwrap() error { return e.Cause }

// Is matches ErrQuery.
func (*QueryError) Is(target error) bool { return target == ErrQuery }
