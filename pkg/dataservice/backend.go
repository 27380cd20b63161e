package dataservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/budget-data-gateway/pkg/fixture"
	"github.com/txn2/budget-data-gateway/pkg/gatewayclient"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

// backend is one active data source.
type backend interface {
	kind() Kind
	fetch(ctx context.Context, l query.Logical, filters map[string]string) ([]query.Record, error)
	check(ctx context.Context) error
	release(ctx context.Context) error
}

// fixtureBackend reads the fixture provider.
type fixtureBackend struct {
	provider *fixture.Provider
	delay    time.Duration
}

func (*fixtureBackend) kind() Kind { return KindFixture }

func (b *fixtureBackend) fetch(ctx context.Context, l query.Logical, filters map[string]string) ([]query.Record, error) {
	if b.delay > 0 {
		t := time.NewTimer(b.delay)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return b.provider.Query(l, filters)
}

func (*fixtureBackend) check(context.Context) error { return nil }

func (*fixtureBackend) release(context.Context) error { return nil }

// maxAPIResponseBytes caps generic API response bodies.
const maxAPIResponseBytes = 32 << 20

// genericTemplate expands to the generic API entity read.
var genericTemplate = uritemplate.MustNew("{+base}/{entity}{?filters*}")

// genericBackend reads a REST API.
type genericBackend struct {
	cfg    GenericAPIConfig
	client *http.Client
}

func (*genericBackend) kind() Kind { return KindGenericAPI }

func (b *genericBackend) fetch(ctx context.Context, l query.Logical, filters map[string]string) ([]query.Record, error) {
	values := uritemplate.Values{}
	values.Set("base", uritemplate.String(strings.TrimRight(b.cfg.BaseURL, "/")))
	values.Set("entity", uritemplate.String(l.Path()))
	if kv := sortedKV(filters); len(kv) > 0 {
		values.Set("filters", uritemplate.KV(kv...))
	}
	target, err := genericTemplate.Expand(values)
	if err != nil {
		return nil, fmt.Errorf("expanding api url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range b.cfg.Headers {
		req.Header.Set(k, v)
	}
	if b.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.cfg.APIKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, &query.ConnectionError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &query.ConnectionError{Cause: fmt.Errorf("api returned status %d", resp.StatusCode)}
	}

	var recs []query.Record
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxAPIResponseBytes)).Decode(&recs); err != nil {
		return nil, &query.QueryError{Cause: fmt.Errorf("decoding api response: %w", err)}
	}
	return recs, nil
}

// check reads accounts, the one entity every generic API must serve.
func (b *genericBackend) check(ctx context.Context) error {
	_, err := b.fetch(ctx, query.Accounts, nil)
	return err
}

func (*genericBackend) release(context.Context) error { return nil }

// remoteBackend reads through the session facade, opening a session lazily
// on first use.
type remoteBackend struct {
	cfg    RemoteWarehouseConfig
	client *gatewayclient.Client
	tokens TokenSource

	mu        sync.Mutex
	sessionID string
	released  bool
}

var errReleased = errors.New("data source released")

func (*remoteBackend) kind() Kind { return KindRemoteWarehouse }

// session returns the held session ID, connecting when none is held.
func (b *remoteBackend) session(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.released {
		return "", &query.ConnectionError{Cause: errReleased}
	}
	if b.sessionID != "" {
		return b.sessionID, nil
	}

	token, err := b.token(ctx)
	if err != nil {
		return "", err
	}
	id, err := b.client.Connect(ctx, b.cfg.params(token))
	if err != nil {
		return "", err
	}
	b.sessionID = id
	slog.Debug("opened remote warehouse session", "session_id", id)
	return id, nil
}

// token returns the configured credential, asking the token source when
// the config carries none.
func (b *remoteBackend) token(ctx context.Context) (string, error) {
	if b.cfg.CredentialToken != "" || b.tokens == nil {
		return b.cfg.CredentialToken, nil
	}
	t, err := b.tokens.Token(ctx)
	if err != nil {
		return "", &query.ConnectionError{Cause: fmt.Errorf("obtaining credential token: %w", err)}
	}
	return t, nil
}

// forget drops id when it is still the held session.
func (b *remoteBackend) forget(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sessionID == id {
		b.sessionID = ""
	}
}

func (b *remoteBackend) fetch(ctx context.Context, l query.Logical, filters map[string]string) ([]query.Record, error) {
	id, err := b.session(ctx)
	if err != nil {
		return nil, err
	}
	recs, err := b.client.Fetch(ctx, id, l, filters)
	if errors.Is(err, query.ErrSessionExpired) {
		b.forget(id)
	}
	return recs, err
}

// check runs the facade connection test. No session is opened or held.
func (b *remoteBackend) check(ctx context.Context) error {
	token, err := b.token(ctx)
	if err != nil {
		return err
	}
	return b.client.Test(ctx, b.cfg.params(token))
}

// query runs a raw statement on the held session.
func (b *remoteBackend) query(ctx context.Context, statement string) (*query.Result, error) {
	id, err := b.session(ctx)
	if err != nil {
		return nil, err
	}
	res, err := b.client.Query(ctx, id, statement)
	if errors.Is(err, query.ErrSessionExpired) {
		b.forget(id)
	}
	return res, err
}

// release disconnects the held session. Later calls are no-ops.
func (b *remoteBackend) release(ctx context.Context) error {
	b.mu.Lock()
	id := b.sessionID
	already := b.released
	b.sessionID = ""
	b.released = true
	b.mu.Unlock()

	if already || id == "" {
		return nil
	}
	if err := b.client.Disconnect(ctx, id); err != nil {
		return fmt.Errorf("disconnecting session %s: %w", id, err)
	}
	slog.Debug("closed remote warehouse session", "session_id", id)
	return nil
}

func sortedKV(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	kv := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		kv = append(kv, k, m[k])
	}
	return kv
}
