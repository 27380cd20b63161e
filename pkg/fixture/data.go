package fixture

import (
	"github.com/shopspring/decimal"

	"github.com/txn2/budget-data-gateway/pkg/query"
)

// fiscalYear is the period every canned record belongs to.
const fiscalYear = 2024

var accounts = []query.Record{
	{"id": "acc-1000", "code": "1000", "name": "Operating Cash", "type": "asset", "status": "active", "currency": "USD"},
	{"id": "acc-2000", "code": "2000", "name": "Accounts Payable", "type": "liability", "status": "active", "currency": "USD"},
	{"id": "acc-5100", "code": "5100", "name": "Salaries", "type": "expense", "status": "active", "currency": "USD"},
	{"id": "acc-5200", "code": "5200", "name": "Software Licenses", "type": "expense", "status": "active", "currency": "USD"},
	{"id": "acc-5300", "code": "5300", "name": "Travel", "type": "expense", "status": "inactive", "currency": "USD"},
}

var projects = []query.Record{
	{"id": "prj-001", "name": "Warehouse Migration", "owner": "finance-eng", "status": "active", "start_date": "2024-01-15", "end_date": "2024-09-30"},
	{"id": "prj-002", "name": "Budget Portal", "owner": "product", "status": "active", "start_date": "2024-02-01", "end_date": "2024-12-15"},
	{"id": "prj-003", "name": "Vendor Consolidation", "owner": "procurement", "status": "planned", "start_date": "2024-07-01", "end_date": "2025-03-31"},
	{"id": "prj-004", "name": "Legacy ERP Sunset", "owner": "finance-eng", "status": "completed", "start_date": "2023-03-01", "end_date": "2024-01-31"},
}

var vendors = []query.Record{
	{"id": "ven-01", "name": "Acme Cloud", "category": "software", "status": "active", "payment_terms": "net30"},
	{"id": "ven-02", "name": "Blue Sky Travel", "category": "travel", "status": "active", "payment_terms": "net15"},
	{"id": "ven-04", "name": "Contoso Licensing", "category": "software", "status": "inactive", "payment_terms": "net30"},
	{"id": "ven-03", "name": "Northwind Staffing", "category": "services", "status": "active", "payment_terms": "net45"},
}

// Amounts are kept as decimal strings and converted when records are built so
// totals in KPIs are exact.
type budgetRow struct {
	id, projectID, accountID, period, amount, notes string
}

var budgetRows = []budgetRow{
	{"bud-001", "prj-001", "acc-5100", "Q1", "120000.00", "Migration team salaries"},
	{"bud-002", "prj-001", "acc-5200", "Q1", "18000.00", "Warehouse licenses"},
	{"bud-003", "prj-002", "acc-5100", "Q2", "95000.00", "Portal engineering"},
	{"bud-004", "prj-002", "acc-5200", "Q2", "7500.50", "UI component licenses"},
	{"bud-005", "prj-003", "acc-5300", "Q3", "12250.25", "Vendor site visits"},
	{"bud-006", "prj-004", "acc-5100", "Q1", "30000.00", "Decommission support"},
}

type transactionRow struct {
	id, date, accountID, projectID, vendorID, category, description, amount string
}

var transactionRows = []transactionRow{
	{"txn-0007", "2024-04-18", "acc-5200", "prj-002", "ven-01", "software", "Hosting credits", "1875.25"},
	{"txn-0006", "2024-04-02", "acc-5100", "prj-002", "ven-03", "payroll", "Portal sprint team", "41000.00"},
	{"txn-0005", "2024-03-12", "acc-5300", "prj-003", "ven-02", "travel", "Supplier workshop", "3120.40"},
	{"txn-0004", "2024-02-28", "acc-5200", "prj-002", "ven-04", "software", "Component library", "2499.99"},
	{"txn-0003", "2024-02-15", "acc-5100", "prj-001", "ven-03", "payroll", "February contractors", "39250.75"},
	{"txn-0002", "2024-01-31", "acc-5200", "prj-001", "ven-01", "software", "Warehouse seats", "6000.00"},
	{"txn-0001", "2024-01-20", "acc-5100", "prj-001", "ven-03", "payroll", "January contractors", "38500.00"},
	{"txn-0008", "2024-01-10", "acc-5100", "prj-004", "ven-03", "payroll", "ERP wind-down", "12000.00"},
}

func budgetEntries() []query.Record {
	out := make([]query.Record, 0, len(budgetRows))
	for _, r := range budgetRows {
		out = append(out, query.Record{
			"id":          r.id,
			"project_id":  r.projectID,
			"account_id":  r.accountID,
			"fiscal_year": fiscalYear,
			"period":      r.period,
			"amount":      decimal.RequireFromString(r.amount).InexactFloat64(),
			"notes":       r.notes,
		})
	}
	return out
}

func transactions() []query.Record {
	out := make([]query.Record, 0, len(transactionRows))
	for _, r := range transactionRows {
		out = append(out, query.Record{
			"id":          r.id,
			"date":        r.date,
			"account_id":  r.accountID,
			"project_id":  r.projectID,
			"vendor_id":   r.vendorID,
			"category":    r.category,
			"description": r.description,
			"amount":      decimal.RequireFromString(r.amount).InexactFloat64(),
		})
	}
	return out
}

// kpis derives headline figures from the budget and transaction fixtures.
func kpis() []query.Record {
	budget := decimal.Zero
	for _, r := range budgetRows {
		budget = budget.Add(decimal.RequireFromString(r.amount))
	}
	spend := decimal.Zero
	for _, r := range transactionRows {
		spend = spend.Add(decimal.RequireFromString(r.amount))
	}
	variance := budget.Sub(spend)
	utilization := decimal.Zero
	if !budget.IsZero() {
		utilization = spend.Div(budget).Mul(decimal.NewFromInt(100)).Round(1)
	}
	active := 0
	for _, p := range projects {
		if p["status"] == "active" {
			active++
		}
	}

	period := "FY2024"
	return []query.Record{
		{"id": "kpi-total-budget", "name": "Total Budget", "value": budget.InexactFloat64(), "unit": "USD", "period": period},
		{"id": "kpi-total-spend", "name": "Total Spend", "value": spend.InexactFloat64(), "unit": "USD", "period": period},
		{"id": "kpi-variance", "name": "Budget Variance", "value": variance.InexactFloat64(), "unit": "USD", "period": period},
		{"id": "kpi-utilization", "name": "Budget Utilization", "value": utilization.InexactFloat64(), "unit": "percent", "period": period},
		{"id": "kpi-active-projects", "name": "Active Projects", "value": active, "unit": "count", "period": period},
	}
}
