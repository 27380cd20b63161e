package fixture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

func TestProvider_EveryLogicalQueryHasFixtures(t *testing.T) {
	p := NewProvider()
	for _, l := range query.All() {
		t.Run(string(l), func(t *testing.T) {
			recs, err := p.Query(l, nil)
			require.NoError(t, err)
			assert.NotEmpty(t, recs)
			for _, r := range recs {
				assert.NotEmpty(t, r["id"], "every fixture record carries an id")
			}
		})
	}
}

func TestProvider_Deterministic(t *testing.T) {
	a, err := NewProvider().Query(query.Transactions, nil)
	require.NoError(t, err)
	b, err := NewProvider().Query(query.Transactions, nil)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestProvider_EqualityFilters(t *testing.T) {
	p := NewProvider()

	recs, err := p.Query(query.Accounts, map[string]string{"type": "expense"})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	recs, err = p.Query(query.Accounts, map[string]string{"type": "expense", "status": "active"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	recs, err = p.Query(query.BudgetEntries, map[string]string{"fiscal_year": "2024", "project_id": "prj-001"})
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestProvider_DateRange(t *testing.T) {
	recs, err := NewProvider().Query(query.Transactions, map[string]string{
		"start_date": "2024-02-01",
		"end_date":   "2024-02-29",
	})
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "txn-0004", recs[0]["id"])
	assert.Equal(t, "txn-0003", recs[1]["id"])
}

func TestProvider_UnknownFilterMatchesNothing(t *testing.T) {
	recs, err := NewProvider().Query(query.Vendors, map[string]string{"colour": "blue"})
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestProvider_UnknownLogical(t *testing.T) {
	_, err := NewProvider().Query(query.Logical("ledgers"), nil)
	assert.Error(t, err)
}

func TestProvider_ReturnsCopies(t *testing.T) {
	p := NewProvider()
	recs, err := p.Query(query.Projects, map[string]string{"id": "prj-001"})
	require.NoError(t, err)
	require.Len(t, recs, 1)
	recs[0]["name"] = "mutated"

	again, err := p.Query(query.Projects, map[string]string{"id": "prj-001"})
	require.NoError(t, err)
	assert.Equal(t, "Warehouse Migration", again[0]["name"])
}

func TestProvider_KPIsDerivedExactly(t *testing.T) {
	recs, err := NewProvider().Query(query.KPIs, nil)
	require.NoError(t, err)

	byID := make(map[string]query.Record, len(recs))
	for _, r := range recs {
		byID[r["id"].(string)] = r
	}
	assert.InDelta(t, 282750.75, byID["kpi-total-budget"]["value"], 0.001)
	assert.InDelta(t, 144246.39, byID["kpi-total-spend"]["value"], 0.001)
	assert.InDelta(t, 138504.36, byID["kpi-variance"]["value"], 0.001)
	assert.InDelta(t, 51.0, byID["kpi-utilization"]["value"], 0.001)
	assert.Equal(t, 2, byID["kpi-active-projects"]["value"])
}

func TestProvider_Result(t *testing.T) {
	res, err := NewProvider().Result(query.Vendors, map[string]string{"category": "software"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Count)
	assert.Equal(t, []string{"category", "id", "name", "payment_terms", "status"}, res.Columns)

	empty, err := NewProvider().Result(query.Vendors, map[string]string{"category": "none"})
	require.NoError(t, err)
	assert.Equal(t, 0, empty.Count)
	assert.Empty(t, empty.Columns)
}
