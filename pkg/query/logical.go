package query

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Logical names one of the fixed entity reads supported by every backend.
type Logical string

// Logical queries.
const (
	Accounts      Logical = "accounts"
	Transactions  Logical = "transactions"
	Projects      Logical = "projects"
	BudgetEntries Logical = "budget_entries"
	Vendors       Logical = "vendors"
	KPIs          Logical = "kpis"
)

type filterOp int

const (
	opEq filterOp = iota
	opGte
	opLte
)

// filterSpec maps a filter key to the column it constrains.
type filterSpec struct {
	column string
	op     filterOp
}

type definition struct {
	table   string
	orderBy []string
	filters map[string]filterSpec
}

func eqFilters(cols ...string) map[string]filterSpec {
	m := make(map[string]filterSpec, len(cols))
	for _, c := range cols {
		m[c] = filterSpec{column: c, op: opEq}
	}
	return m
}

var definitions = map[Logical]definition{
	Accounts: {
		table:   "accounts",
		orderBy: []string{"id"},
		filters: eqFilters("id", "type", "status"),
	},
	Transactions: {
		table:   "transactions",
		orderBy: []string{"date DESC", "id"},
		filters: func() map[string]filterSpec {
			m := eqFilters("id", "account_id", "project_id", "vendor_id", "category")
			m["start_date"] = filterSpec{column: "date", op: opGte}
			m["end_date"] = filterSpec{column: "date", op: opLte}
			return m
		}(),
	},
	Projects: {
		table:   "projects",
		orderBy: []string{"id"},
		filters: eqFilters("id", "status", "owner"),
	},
	BudgetEntries: {
		table:   "budget_entries",
		orderBy: []string{"fiscal_year", "id"},
		filters: eqFilters("id", "project_id", "account_id", "fiscal_year", "period"),
	},
	Vendors: {
		table:   "vendors",
		orderBy: []string{"name"},
		filters: eqFilters("id", "category", "status"),
	},
	KPIs: {
		table:   "kpis",
		orderBy: []string{"id"},
		filters: eqFilters("id", "period"),
	},
}

// All returns every logical query in a stable order.
func All() []Logical {
	return []Logical{Accounts, Transactions, Projects, BudgetEntries, Vendors, KPIs}
}

// Parse resolves a logical query from its name. Hyphenated, snake and camel
// case spellings are accepted ("budget-entries", "budget_entries",
// "budgetEntries").
func Parse(name string) (Logical, error) {
	norm := normalizeName(name)
	for _, l := range All() {
		if normalizeName(string(l)) == norm {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown logical query %q", name)
}

func normalizeName(s string) string {
	return strings.ToLower(strings.NewReplacer("-", "", "_", "").Replace(s))
}

// Valid reports whether l is a known logical query.
func (l Logical) Valid() bool {
	_, ok := definitions[l]
	return ok
}

// Table returns the warehouse table backing the logical query.
func (l Logical) Table() string {
	return definitions[l].table
}

// Path returns the HTTP path segment for the logical query.
func (l Logical) Path() string {
	return strings.ReplaceAll(string(l), "_", "-")
}

// Filters returns the accepted filter keys, sorted.
func (l Logical) Filters() []string {
	def := definitions[l]
	keys := make([]string, 0, len(def.filters))
	for k := range def.filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ValidateFilters rejects filter keys the logical query does not accept.
func (l Logical) ValidateFilters(filters map[string]string) error {
	def, ok := definitions[l]
	if !ok {
		return fmt.Errorf("unknown logical query %q", l)
	}
	for k := range filters {
		if _, ok := def.filters[k]; !ok {
			return fmt.Errorf("%w: %q is not accepted by %s", ErrInvalidFilter, k, l)
		}
	}
	return nil
}

// Build renders the logical query as a parameterized statement. Filter
// values are always bound as arguments, never interpolated.
func (l Logical) Build(filters map[string]string) (Statement, error) {
	if err := l.ValidateFilters(filters); err != nil {
		return Statement{}, err
	}
	def := definitions[l]

	qb := sq.Select("*").From(def.table)
	for _, key := range sortedKeys(filters) {
		spec := def.filters[key]
		val := filters[key]
		switch spec.op {
		case opGte:
			qb = qb.Where(sq.GtOrEq{spec.column: val})
		case opLte:
			qb = qb.Where(sq.LtOrEq{spec.column: val})
		default:
			qb = qb.Where(sq.Eq{spec.column: val})
		}
	}
	qb = qb.OrderBy(def.orderBy...)

	sql, args, err := qb.ToSql()
	if err != nil {
		return Statement{}, fmt.Errorf("building %s statement: %w", l, err)
	}
	return Statement{SQL: sql, Args: args}, nil
}

// Match reports whether rec satisfies filters under the same semantics Build
// gives the warehouse: equality on the string form of the attribute, and
// lexical bounds for range filters (dates are ISO-8601).
func (l Logical) Match(rec Record, filters map[string]string) bool {
	def := definitions[l]
	for key, want := range filters {
		spec, ok := def.filters[key]
		if !ok {
			return false
		}
		raw, ok := rec[spec.column]
		if !ok || raw == nil {
			return false
		}
		got := fmt.Sprint(raw)
		switch spec.op {
		case opGte:
			if got < want {
				return false
			}
		case opLte:
			if got > want {
				return false
			}
		default:
			if got != want {
				return false
			}
		}
	}
	return true
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
