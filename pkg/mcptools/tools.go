// Package mcptools registers the session facade operations as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/txn2/budget-data-gateway/pkg/api"
	"github.com/txn2/budget-data-gateway/pkg/gateway"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

// Tool names.
const (
	ToolConnect    = "warehouse_connect"
	ToolQuery      = "warehouse_query"
	ToolFetch      = "warehouse_fetch"
	ToolDisconnect = "warehouse_disconnect"
	ToolStatus     = "warehouse_status"
)

// connectInput is the input of warehouse_connect.
type connectInput struct {
	Driver      string `json:"driver,omitempty" jsonschema:"warehouse driver: databricks (default) or trino"`
	EndpointURL string `json:"endpointUrl" jsonschema:"warehouse host, with or without https://"`
	AccessPath  string `json:"accessPath,omitempty" jsonschema:"HTTP path of the SQL warehouse"`
	Catalog     string `json:"catalog,omitempty" jsonschema:"initial catalog"`
	Schema      string `json:"schema,omitempty" jsonschema:"initial schema"`
	Token       string `json:"token" jsonschema:"warehouse access token"`
}

type connectOutput struct {
	SessionID string `json:"sessionId"`
	ExpiresAt string `json:"expiresAt"`
}

// queryInput is the input of warehouse_query.
type queryInput struct {
	SessionID string `json:"sessionId" jsonschema:"session returned by warehouse_connect"`
	Statement string `json:"statement" jsonschema:"SQL statement, run verbatim"`
}

// fetchInput is the input of warehouse_fetch.
type fetchInput struct {
	SessionID string            `json:"sessionId" jsonschema:"session returned by warehouse_connect"`
	Entity    string            `json:"entity" jsonschema:"accounts, transactions, projects, budget_entries, vendors or kpis"`
	Filters   map[string]string `json:"filters,omitempty" jsonschema:"equality filters keyed by column"`
}

// disconnectInput is the input of warehouse_disconnect.
type disconnectInput struct {
	SessionID string `json:"sessionId" jsonschema:"session to close"`
}

type statusInput struct{}

// Option configures the warehouse tools.
type Option func(*tools)

// WithoutSessionList drops the session list from warehouse_status.
func WithoutSessionList() Option {
	return func(t *tools) { t.hideSessions = true }
}

// Register adds the warehouse tools to server.
func Register(server *mcp.Server, svc *api.Service, opts ...Option) {
	t := &tools{svc: svc}
	for _, opt := range opts {
		opt(t)
	}

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolConnect,
		Description: "Open a warehouse session. Returns a sessionId that expires after the idle timeout.",
	}, t.connect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolQuery,
		Description: "Run a SQL statement on an open warehouse session and return the rows.",
	}, t.query)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolFetch,
		Description: "Read a budgeting entity (accounts, transactions, projects, budget_entries, vendors, kpis) with optional equality filters.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.fetch)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolDisconnect,
		Description: "Close a warehouse session. Closing an unknown session succeeds.",
	}, t.disconnect)

	mcp.AddTool(server, &mcp.Tool{
		Name:        ToolStatus,
		Description: "Report gateway status and the number of open warehouse sessions.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, t.status)
}

// NewServer creates an MCP server carrying the warehouse tools.
func NewServer(name, version string, svc *api.Service, opts ...Option) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{Name: name, Version: version}, nil)
	Register(server, svc, opts...)
	return server
}

// NewHandler serves server over streamable HTTP.
func NewHandler(server *mcp.Server) http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
}

type tools struct {
	svc          *api.Service
	hideSessions bool
}

func (t *tools) connect(ctx context.Context, _ *mcp.CallToolRequest, in connectInput) (*mcp.CallToolResult, any, error) {
	sess, err := t.svc.Connect(ctx, gateway.Params{
		Driver:      in.Driver,
		EndpointURL: in.EndpointURL,
		AccessPath:  in.AccessPath,
		Catalog:     in.Catalog,
		Schema:      in.Schema,
		Token:       in.Token,
	})
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(connectOutput{SessionID: sess.ID, ExpiresAt: sess.ExpiresAt.UTC().Format(time.RFC3339)})
}

func (t *tools) query(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, any, error) {
	res, err := t.svc.Query(ctx, in.SessionID, in.Statement)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(res)
}

func (t *tools) fetch(ctx context.Context, _ *mcp.CallToolRequest, in fetchInput) (*mcp.CallToolResult, any, error) {
	l, err := query.Parse(in.Entity)
	if err != nil {
		return errorResult(err), nil, nil
	}
	res, err := t.svc.Fetch(ctx, in.SessionID, l, in.Filters)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(res)
}

func (t *tools) disconnect(ctx context.Context, _ *mcp.CallToolRequest, in disconnectInput) (*mcp.CallToolResult, any, error) {
	res, err := t.svc.Disconnect(ctx, in.SessionID)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return jsonResult(map[string]string{"result": res.String()})
}

func (t *tools) status(_ context.Context, _ *mcp.CallToolRequest, _ statusInput) (*mcp.CallToolResult, any, error) {
	return jsonResult(t.svc.Status(!t.hideSessions))
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err), nil, nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
	}, nil, nil
}

// errorResult reports a failure in the tool result; MCP tool errors are not
// protocol errors.
func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: "Error: " + err.Error()}},
		IsError: true,
	}
}
