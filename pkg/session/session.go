// Package session provides the session registry of the query gateway. The
// registry maps opaque session IDs to live warehouse sessions, evicts them on
// a fixed TTL and guarantees each session is torn down exactly once.
package session

import (
	"context"
	"time"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
)

// DefaultTTL is used when neither the registry nor Create specify one.
const DefaultTTL = 30 * time.Minute

// Status is the lifecycle state of a session.
type Status string

// Session statuses. Transitions are open -> closing -> closed only.
const (
	StatusOpen    Status = "open"
	StatusClosing Status = "closing"
	StatusClosed  Status = "closed"
)

// Session is the public view of a registry entry. It never carries the
// warehouse handles or the credential.
type Session struct {
	// ID is the opaque session identifier. IDs are never reused.
	ID string `json:"sessionId"`

	// Driver, Endpoint, Catalog and Schema describe where the session points.
	Driver   string `json:"driver"`
	Endpoint string `json:"endpointUrl"`
	Catalog  string `json:"catalog,omitempty"`
	Schema   string `json:"schema,omitempty"`

	// CreatedAt is when the session was registered.
	CreatedAt time.Time `json:"createdAt"`

	// TTL is the fixed lifetime from CreatedAt; activity does not extend it.
	TTL time.Duration `json:"-"`

	// ExpiresAt is CreatedAt + TTL.
	ExpiresAt time.Time `json:"expiresAt"`

	// Status is the lifecycle state.
	Status Status `json:"status"`
}

// CloseResult reports what Close did.
type CloseResult int

// Close outcomes.
const (
	// Closed means this call tore the session down.
	Closed CloseResult = iota
	// AlreadyClosed means the session was unknown, closing or closed.
	AlreadyClosed
)

func (r CloseResult) String() string {
	if r == Closed {
		return "closed"
	}
	return "already_closed"
}

// Reason records why a session was closed.
type Reason string

// Close reasons.
const (
	ReasonDisconnect Reason = "disconnect"
	ReasonEvicted    Reason = "evicted"
	ReasonShutdown   Reason = "shutdown"
)

// Teardown closes the remote side of a session. The connection gateway
// implements it.
type Teardown interface {
	CloseSession(ctx context.Context, h *gateway.Handle) error
}

// EventKind classifies lifecycle events.
type EventKind string

// Lifecycle event kinds.
const (
	EventOpened      EventKind = "opened"
	EventClosed      EventKind = "closed"
	EventEvicted     EventKind = "evicted"
	EventCloseFailed EventKind = "close_failed"
)

// Event is a session lifecycle record.
type Event struct {
	SessionID  string    `json:"sessionId"`
	Kind       EventKind `json:"kind"`
	Driver     string    `json:"driver"`
	Endpoint   string    `json:"endpoint"`
	Catalog    string    `json:"catalog,omitempty"`
	Schema     string    `json:"schema,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// EventRecorder persists lifecycle events. Errors are logged by the
// registry and never affect session handling.
type EventRecorder interface {
	Record(ctx context.Context, evt Event) error
}
