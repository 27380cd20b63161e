// Package gatewayclient is an HTTP client for the session facade. Facade
// error responses are mapped back onto the query error taxonomy so callers
// can branch with errors.Is.
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/yosida95/uritemplate/v3"

	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

const (
	defaultTimeout = 60 * time.Second

	// maxResponseBytes caps response bodies read from the facade.
	maxResponseBytes = 32 << 20

	apiKeyHeader = "X-API-Key"
)

// entityTemplate expands to the GET /{entity} read.
var entityTemplate = uritemplate.MustNew("{+base}/{entity}{?sessionId,filters*}")

// Client calls the session facade.
type Client struct {
	baseURL    string
	httpClient *http.Client
	apiKey     string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithAPIKey sets the facade caller credential sent as X-API-Key.
func WithAPIKey(key string) Option {
	return func(c *Client) { c.apiKey = key }
}

// New creates a client for the facade at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, &query.ConfigError{Field: "gatewayUrl"}
	}
	u, err := url.Parse(base)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid gateway url %q", query.ErrConfig, baseURL)
	}

	c := &Client{
		baseURL:    base,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the facade base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Status is the body of GET /status.
type Status struct {
	Status            string    `json:"status"`
	ActiveConnections int       `json:"activeConnections"`
	ServerTime        time.Time `json:"serverTime"`
	SessionTTLMS      int64     `json:"sessionTtlMs"`
}

// SessionTTL returns the facade idle timeout.
func (s Status) SessionTTL() time.Duration {
	return time.Duration(s.SessionTTLMS) * time.Millisecond
}

type connectResponse struct {
	SessionID string `json:"sessionId"`
}

type queryResponse struct {
	Data    []query.Record `json:"data"`
	Columns []string       `json:"columns"`
	Count   int            `json:"count"`
}

type errorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// Connect opens a warehouse session and returns its ID.
func (c *Client) Connect(ctx context.Context, p gateway.Params) (string, error) {
	var resp connectResponse
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/connect", p, &resp, ""); err != nil {
		return "", err
	}
	if resp.SessionID == "" {
		return "", &query.ConnectionError{Cause: errors.New("gateway returned no session id")}
	}
	return resp.SessionID, nil
}

// Test probes warehouse connectivity without opening a session.
func (c *Client) Test(ctx context.Context, p gateway.Params) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/test", p, nil, "")
}

// Query runs a raw statement on a session.
func (c *Client) Query(ctx context.Context, sessionID, statement string) (*query.Result, error) {
	var resp queryResponse
	body := map[string]string{"sessionId": sessionID, "statement": statement}
	if err := c.do(ctx, http.MethodPost, c.baseURL+"/query", body, &resp, sessionID); err != nil {
		return nil, err
	}
	return &query.Result{Records: resp.Data, Columns: resp.Columns, Count: resp.Count}, nil
}

// Fetch reads a logical entity with equality filters.
func (c *Client) Fetch(ctx context.Context, sessionID string, l query.Logical, filters map[string]string) ([]query.Record, error) {
	values := uritemplate.Values{}
	values.Set("base", uritemplate.String(c.baseURL))
	values.Set("entity", uritemplate.String(l.Path()))
	values.Set("sessionId", uritemplate.String(sessionID))
	if kv := sortedKV(filters); len(kv) > 0 {
		values.Set("filters", uritemplate.KV(kv...))
	}
	target, err := entityTemplate.Expand(values)
	if err != nil {
		return nil, fmt.Errorf("expanding entity url: %w", err)
	}

	var records []query.Record
	if err := c.do(ctx, http.MethodGet, target, nil, &records, sessionID); err != nil {
		return nil, err
	}
	return records, nil
}

// Disconnect closes a session. Unknown sessions succeed.
func (c *Client) Disconnect(ctx context.Context, sessionID string) error {
	return c.do(ctx, http.MethodPost, c.baseURL+"/disconnect", map[string]string{"sessionId": sessionID}, nil, sessionID)
}

// Status reads the facade status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	var st Status
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/status", nil, &st, ""); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *Client) do(ctx context.Context, method, target string, in, out any, sessionID string) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set(apiKeyHeader, c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &query.ConnectionError{Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &query.ConnectionError{Cause: fmt.Errorf("reading response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(resp.StatusCode, data, sessionID)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &query.ConnectionError{Cause: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

// statusError maps a facade error response onto the error taxonomy.
func statusError(status int, body []byte, sessionID string) error {
	var er errorResponse
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &er) == nil && er.Message != "" {
		msg = er.Message
	}
	if msg == "" {
		msg = http.StatusText(status)
	}

	switch status {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", query.ErrConfig, msg)
	case http.StatusNotFound:
		return &query.SessionExpiredError{SessionID: sessionID}
	case http.StatusUnprocessableEntity:
		return &query.QueryError{Cause: errors.New(msg)}
	default:
		return &query.ConnectionError{Cause: fmt.Errorf("gateway returned %d: %s", status, msg)}
	}
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
