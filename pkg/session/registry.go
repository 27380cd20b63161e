package session

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/metrics"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

const (
	eventBuffer   = 256
	recordTimeout = 5 * time.Second
	evictTimeout  = 30 * time.Second
)

type entry struct {
	session Session
	handle  *gateway.Handle
	timer   *time.Timer

	// use admits one With caller at a time; the pinned connection is not
	// safe for concurrent statements.
	use chan struct{}
}

// Config configures a Registry.
type Config struct {
	// TTL is the default session lifetime. Zero means DefaultTTL.
	TTL time.Duration

	// Recorder receives lifecycle events. Optional.
	Recorder EventRecorder
}

// Registry holds the live warehouse sessions. It is the only owner of the
// session handles; callers reach a handle through With.
type Registry struct {
	mu       sync.Mutex
	entries  map[string]*entry
	teardown Teardown
	ttl      time.Duration

	newID func() string
	now   func() time.Time

	recorder EventRecorder
	events   chan Event
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewRegistry creates a registry that tears sessions down with td.
func NewRegistry(td Teardown, cfg Config) *Registry {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	r := &Registry{
		entries:  make(map[string]*entry),
		teardown: td,
		ttl:      cfg.TTL,
		newID:    uuid.NewString,
		now:      time.Now,
		recorder: cfg.Recorder,
	}
	if r.recorder != nil {
		ctx, cancel := context.WithCancel(context.Background())
		r.events = make(chan Event, eventBuffer)
		r.cancel = cancel
		r.done = make(chan struct{})
		go r.recordLoop(ctx)
	}
	return r
}

// TTL returns the default session lifetime.
func (r *Registry) TTL() time.Duration {
	return r.ttl
}

// Create registers an open session for h and arms its eviction timer. A
// zero ttl uses the registry default. Create performs no I/O.
func (r *Registry) Create(h *gateway.Handle, p gateway.Params, ttl time.Duration) (Session, error) {
	if h == nil {
		return Session{}, &query.ConfigError{Field: "handle"}
	}
	if ttl <= 0 {
		ttl = r.ttl
	}

	r.mu.Lock()
	id := r.newID()
	for r.entries[id] != nil {
		id = r.newID()
	}
	now := r.now()
	sess := Session{
		ID:        id,
		Driver:    h.Driver(),
		Endpoint:  p.EndpointURL,
		Catalog:   p.Catalog,
		Schema:    p.Schema,
		CreatedAt: now,
		TTL:       ttl,
		ExpiresAt: now.Add(ttl),
		Status:    StatusOpen,
	}
	e := &entry{session: sess, handle: h, use: make(chan struct{}, 1)}
	e.timer = time.AfterFunc(ttl, func() { r.evict(id) })
	r.entries[id] = e
	r.mu.Unlock()

	metrics.SessionsOpen.Inc()
	metrics.SessionsOpened.Inc()
	slog.Info("session: opened", "session_id", id, "driver", sess.Driver, "ttl", ttl)
	r.emit(sess, EventOpened, "")
	return sess, nil
}

// Get returns the session if it is open. It does not extend the TTL.
func (r *Registry) Get(id string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok || e.session.Status != StatusOpen {
		return Session{}, &query.SessionExpiredError{SessionID: id}
	}
	return e.session, nil
}

// With lends the handle of an open session to fn. Calls on the same session
// run one at a time; a caller waiting its turn gives up when ctx is done. The
// handle must not be retained after fn returns. A session closed while fn
// runs is torn down under it; the in-flight statement then fails on its own.
func (r *Registry) With(ctx context.Context, id string, fn func(*gateway.Handle) error) error {
	e, _, err := r.open(id)
	if err != nil {
		return err
	}

	select {
	case e.use <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-e.use }()

	// The session may have closed while this caller waited.
	_, h, err := r.open(id)
	if err != nil {
		return err
	}
	return fn(h)
}

// open returns the entry and handle of an open session.
func (r *Registry) open(id string) (*entry, *gateway.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[id]
	if !ok || e.session.Status != StatusOpen {
		return nil, nil, &query.SessionExpiredError{SessionID: id}
	}
	return e, e.handle, nil
}

// Close tears the session down and removes it. It is idempotent: an
// unknown, closing or closed session yields AlreadyClosed. Teardown errors
// are logged and the entry is removed regardless.
func (r *Registry) Close(ctx context.Context, id string) CloseResult {
	return r.close(ctx, id, ReasonDisconnect)
}

func (r *Registry) evict(id string) {
	ctx, cancel := context.WithTimeout(context.Background(), evictTimeout)
	defer cancel()
	if r.close(ctx, id, ReasonEvicted) == Closed {
		slog.Info("session: evicted", "session_id", id)
	}
}

func (r *Registry) close(ctx context.Context, id string, reason Reason) CloseResult {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok || e.session.Status != StatusOpen {
		r.mu.Unlock()
		return AlreadyClosed
	}
	e.session.Status = StatusClosing
	if e.timer != nil {
		e.timer.Stop()
	}
	h := e.handle
	sess := e.session
	r.mu.Unlock()

	err := r.teardown.CloseSession(ctx, h)

	r.mu.Lock()
	e.session.Status = StatusClosed
	e.handle = nil
	delete(r.entries, id)
	r.mu.Unlock()

	metrics.SessionsOpen.Dec()
	metrics.SessionsClosed.WithLabelValues(string(reason)).Inc()

	if err != nil {
		metrics.SessionCloseFailures.Inc()
		slog.Warn("session: teardown failed", "session_id", id, "reason", reason, "error", err)
		r.emit(sess, EventCloseFailed, err.Error())
	}
	if reason == ReasonEvicted {
		r.emit(sess, EventEvicted, "")
	} else {
		r.emit(sess, EventClosed, string(reason))
	}
	return Closed
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, e := range r.entries {
		if e.session.Status == StatusOpen {
			n++
		}
	}
	return n
}

// List returns the open sessions, oldest first.
func (r *Registry) List() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.entries))
	for _, e := range r.entries {
		if e.session.Status == StatusOpen {
			out = append(out, e.session)
		}
	}
	r.mu.Unlock()

	slices.SortFunc(out, func(a, b Session) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}

// CloseAll tears down every open session. It returns the number closed.
func (r *Registry) CloseAll(ctx context.Context) int {
	r.mu.Lock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	closed := 0
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if r.close(ctx, id, ReasonShutdown) == Closed {
				mu.Lock()
				closed++
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return closed
}

// Shutdown closes every session and stops the event recorder, flushing
// events already queued.
func (r *Registry) Shutdown(ctx context.Context) {
	n := r.CloseAll(ctx)
	slog.Info("session: registry shut down", "closed", n)

	if r.cancel != nil {
		r.cancel()
		<-r.done
		r.cancel = nil
	}
}

func (r *Registry) emit(s Session, kind EventKind, detail string) {
	if r.events == nil {
		return
	}
	evt := Event{
		SessionID:  s.ID,
		Kind:       kind,
		Driver:     s.Driver,
		Endpoint:   s.Endpoint,
		Catalog:    s.Catalog,
		Schema:     s.Schema,
		Detail:     detail,
		OccurredAt: r.now(),
	}
	select {
	case r.events <- evt:
	default:
		slog.Warn("session: event buffer full, dropping event", "session_id", s.ID, "kind", kind)
	}
}

func (r *Registry) recordLoop(ctx context.Context) {
	defer close(r.done)
	for {
		select {
		case evt := <-r.events:
			r.record(evt)
		case <-ctx.Done():
			for {
				select {
				case evt := <-r.events:
					r.record(evt)
				default:
					return
				}
			}
		}
	}
}

func (r *Registry) record(evt Event) {
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	if err := r.recorder.Record(ctx, evt); err != nil {
		slog.Warn("session: recording event failed", "session_id", evt.SessionID, "kind", evt.Kind, "error", err)
	}
}
