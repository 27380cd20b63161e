// Package query defines the records, logical queries and error taxonomy shared
// by the connection gateway, the session facade and the client data service.
//
//nolint:revive // package contains related DTO types
package query

// Record is a single row as an attribute bag. Records pass through the
// gateway unopinionated: keys are column names, values are whatever the
// backend produced.
type Record map[string]any

// Clone returns a shallow copy of the record.
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Statement is a SQL statement with positional arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Raw wraps a caller-supplied statement that is passed through verbatim.
func Raw(sql string) Statement {
	return Statement{SQL: sql}
}

// Result is the ordered result set of a statement.
type Result struct {
	Columns []string `json:"columns"`
	Records []Record `json:"data"`
	Count   int      `json:"count"`
}

// Request carries either a raw statement or a logical query with filters.
type Request struct {
	Statement string            `json:"statement,omitempty"`
	Logical   Logical           `json:"logical,omitempty"`
	Filters   map[string]string `json:"filters,omitempty"`
}

// Build resolves the request into an executable statement. A raw statement
// wins over a logical query.
func (r Request) Build() (Statement, error) {
	if r.Statement != "" {
		return Raw(r.Statement), nil
	}
	if r.Logical == "" {
		return Statement{}, &ConfigError{Field: "statement"}
	}
	return r.Logical.Build(r.Filters)
}
