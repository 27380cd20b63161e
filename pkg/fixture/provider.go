// Package fixture supplies deterministic canned records for every logical
// query. It is the default backend of the client data service and the base
// case every other backend falls back to.
package fixture

import (
	"fmt"
	"slices"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

// Provider serves fixture records. It holds no mutable state and is safe for
// concurrent use.
type Provider struct {
	tables map[query.Logical][]query.Record
}

// NewProvider creates a provider loaded with the built-in fixtures.
func NewProvider() *Provider {
	return &Provider{
		tables: map[query.Logical][]query.Record{
			query.Accounts:      accounts,
			query.Transactions:  transactions(),
			query.Projects:      projects,
			query.BudgetEntries: budgetEntries(),
			query.Vendors:       vendors,
			query.KPIs:          kpis(),
		},
	}
}

// Query returns copies of the fixture records for l that match filters.
// Filters the logical query does not accept match nothing, mirroring the
// warehouse path which rejects them.
func (p *Provider) Query(l query.Logical, filters map[string]string) ([]query.Record, error) {
	rows, ok := p.tables[l]
	if !ok {
		return nil, fmt.Errorf("no fixtures for logical query %q", l)
	}
	if err := l.ValidateFilters(filters); err != nil {
		return []query.Record{}, nil
	}

	out := make([]query.Record, 0, len(rows))
	for _, r := range rows {
		if l.Match(r, filters) {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

// Result wraps Query output in a query.Result.
func (p *Provider) Result(l query.Logical, filters map[string]string) (*query.Result, error) {
	recs, err := p.Query(l, filters)
	if err != nil {
		return nil, err
	}
	return &query.Result{
		Columns: columnsOf(recs),
		Records: recs,
		Count:   len(recs),
	}, nil
}

// columnsOf returns the keys of the first record, sorted.
func columnsOf(recs []query.Record) []string {
	if len(recs) == 0 {
		return []string{}
	}
	cols := make([]string, 0, len(recs[0]))
	for k := range recs[0] {
		cols = append(cols, k)
	}
	slices.Sort(cols)
	return cols
}
