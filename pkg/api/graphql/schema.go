// Package graphql exposes the logical entity reads of the session facade
// as a GraphQL schema.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	gql "github.com/graph-gophers/graphql-go"
	"github.com/graph-gophers/graphql-go/relay"

	"github.com/txn2/budget-data-gateway/pkg/api"
	"github.com/txn2/budget-data-gateway/pkg/query"
)

// Schema is the GraphQL SDL served at /graphql.
const Schema = `
schema {
	query: Query
}

"Arbitrary JSON value; rows are attribute bags keyed by column name."
scalar JSON

type Status {
	status: String!
	activeConnections: Int!
	serverTime: String!
}

type Query {
	status: Status!
	accounts(sessionId: String!, id: String, type: String, status: String): [JSON!]!
	transactions(sessionId: String!, id: String, accountId: String, projectId: String, vendorId: String, category: String, startDate: String, endDate: String): [JSON!]!
	projects(sessionId: String!, id: String, status: String, owner: String): [JSON!]!
	budgetEntries(sessionId: String!, id: String, projectId: String, accountId: String, fiscalYear: String, period: String): [JSON!]!
	vendors(sessionId: String!, id: String, category: String, status: String): [JSON!]!
	kpis(sessionId: String!, id: String, period: String): [JSON!]!
}
`

// JSON is the scalar carrying one record.
type JSON struct {
	Value any
}

// ImplementsGraphQLType maps JSON to the schema scalar.
func (JSON) ImplementsGraphQLType(name string) bool {
	return name == "JSON"
}

// UnmarshalGraphQL accepts any input value.
func (j *JSON) UnmarshalGraphQL(input any) error {
	j.Value = input
	return nil
}

// MarshalJSON renders the wrapped value.
func (j JSON) MarshalJSON() ([]byte, error) {
	return json.Marshal(j.Value)
}

// NewSchema parses the schema against a resolver backed by svc.
func NewSchema(svc *api.Service) (*gql.Schema, error) {
	return gql.ParseSchema(Schema, &Resolver{svc: svc})
}

// NewHandler returns the GraphQL HTTP handler.
func NewHandler(svc *api.Service) (http.Handler, error) {
	schema, err := NewSchema(svc)
	if err != nil {
		return nil, err
	}
	return &relay.Handler{Schema: schema}, nil
}

// Resolver is the root query resolver.
type Resolver struct {
	svc *api.Service
}

// statusResolver resolves the Status type.
type statusResolver struct {
	st api.Status
}

func (s statusResolver) Status() string           { return s.st.Status }
func (s statusResolver) ActiveConnections() int32 { return int32(s.st.ActiveConnections) } //nolint:gosec // session count
func (s statusResolver) ServerTime() string       { return s.st.ServerTime.Format(time.RFC3339) }

// Status resolves Query.status.
func (r *Resolver) Status() statusResolver {
	return statusResolver{st: r.svc.Status(false)}
}

type accountsArgs struct {
	SessionID string
	ID        *string
	Type      *string
	Status    *string
}

// Accounts resolves Query.accounts.
func (r *Resolver) Accounts(ctx context.Context, args accountsArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.Accounts, filters{
		"id": args.ID, "type": args.Type, "status": args.Status,
	})
}

type transactionsArgs struct {
	SessionID string
	ID        *string
	AccountID *string
	ProjectID *string
	VendorID  *string
	Category  *string
	StartDate *string
	EndDate   *string
}

// Transactions resolves Query.transactions.
func (r *Resolver) Transactions(ctx context.Context, args transactionsArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.Transactions, filters{
		"id":         args.ID,
		"account_id": args.AccountID,
		"project_id": args.ProjectID,
		"vendor_id":  args.VendorID,
		"category":   args.Category,
		"start_date": args.StartDate,
		"end_date":   args.EndDate,
	})
}

type projectsArgs struct {
	SessionID string
	ID        *string
	Status    *string
	Owner     *string
}

// Projects resolves Query.projects.
func (r *Resolver) Projects(ctx context.Context, args projectsArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.Projects, filters{
		"id": args.ID, "status": args.Status, "owner": args.Owner,
	})
}

type budgetEntriesArgs struct {
	SessionID  string
	ID         *string
	ProjectID  *string
	AccountID  *string
	FiscalYear *string
	Period     *string
}

// BudgetEntries resolves Query.budgetEntries.
func (r *Resolver) BudgetEntries(ctx context.Context, args budgetEntriesArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.BudgetEntries, filters{
		"id":          args.ID,
		"project_id":  args.ProjectID,
		"account_id":  args.AccountID,
		"fiscal_year": args.FiscalYear,
		"period":      args.Period,
	})
}

type vendorsArgs struct {
	SessionID string
	ID        *string
	Category  *string
	Status    *string
}

// Vendors resolves Query.vendors.
func (r *Resolver) Vendors(ctx context.Context, args vendorsArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.Vendors, filters{
		"id": args.ID, "category": args.Category, "status": args.Status,
	})
}

type kpisArgs struct {
	SessionID string
	ID        *string
	Period    *string
}

// Kpis resolves Query.kpis.
func (r *Resolver) Kpis(ctx context.Context, args kpisArgs) ([]JSON, error) {
	return r.fetch(ctx, args.SessionID, query.KPIs, filters{"id": args.ID, "period": args.Period})
}

// filters holds optional filter arguments keyed by column.
type filters map[string]*string

func (f filters) values() map[string]string {
	out := make(map[string]string, len(f))
	for k, v := range f {
		if v != nil {
			out[k] = *v
		}
	}
	return out
}

func (r *Resolver) fetch(ctx context.Context, sessionID string, l query.Logical, f filters) ([]JSON, error) {
	res, err := r.svc.Fetch(ctx, sessionID, l, f.values())
	if err != nil {
		return nil, wrapError(err)
	}
	out := make([]JSON, len(res.Records))
	for i, rec := range res.Records {
		out[i] = JSON{Value: rec}
	}
	return out, nil
}

// resolverError adds the facade error code to the GraphQL error extensions.
type resolverError struct {
	err  error
	code string
}

func (e *resolverError) Error() string { return e.err.Error() }

func (e *resolverError) Unwrap() error { return e.err }

// Extensions implements the graphql-go ResolverError interface.
func (e *resolverError) Extensions() map[string]any {
	return map[string]any{"code": e.code}
}

func wrapError(err error) error {
	code := "INTERNAL"
	switch {
	case errors.Is(err, query.ErrConfig), errors.Is(err, query.ErrInvalidFilter):
		code = "BAD_REQUEST"
	case errors.Is(err, query.ErrConnection):
		code = "CONNECTION_FAILED"
	case errors.Is(err, query.ErrSessionExpired):
		code = "SESSION_EXPIRED"
	case errors.Is(err, query.ErrQuery):
		code = "QUERY_FAILED"
	}
	return &resolverError{err: err, code: code}
}
