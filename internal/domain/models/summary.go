package models

import "time"

// StockSummaryQuery selects the records a stock summary is computed over.
type StockSummaryQuery struct {
	Product         string `form:"product"`
	Unit            Unit   `form:"unit"`
	IncludeInactive bool   `form:"includeInactive"`
}

// Filter converts the query into a repository filter.
func (q StockSummaryQuery) Filter() StockFilter {
	return StockFilter{Product: q.Product, Unit: q.Unit, IncludeInactive: q.IncludeInactive}
}

// StockSummary aggregates counters across stock records.
type StockSummary struct {
	Records        int      `json:"records"`
	OpeningStock   Quantity `json:"openingStock"`
	TotalPurchases Quantity `json:"totalPurchases"`
	TotalSales     Quantity `json:"totalSales"`
	ClosingStock   Quantity `json:"closingStock"`
	StockGiven     Quantity `json:"stockGiven"`
	StockDelivered Quantity `json:"stockDelivered"`
	SalesReturns   Quantity `json:"salesReturns"`
	StockAvailable Quantity `json:"stockAvailable"`
	LowStockCount  int      `json:"lowStockCount"`
	ExpiredCount   int      `json:"expiredCount"`
}

// AgentSummaryQuery filters per-agent aggregation. Zero values disable a filter.
// From and To are calendar days in UTC; both ends are inclusive.
type AgentSummaryQuery struct {
	AgentID string      `form:"agentId"`
	Status  AgentStatus `form:"status"`
	From    *time.Time  `form:"from" time_format:"2006-01-02" time_utc:"1"`
	To      *time.Time  `form:"to" time_format:"2006-01-02" time_utc:"1"`
}

// Matches applies the query to one sub-ledger.
func (q AgentSummaryQuery) Matches(a AgentStock) bool {
	if q.AgentID != "" && a.AgentID != q.AgentID {
		return false
	}
	if q.Status != "" && a.Status != q.Status {
		return false
	}
	if q.From != nil && a.LastUpdated.Before(*q.From) {
		return false
	}
	if q.To != nil && !a.LastUpdated.Before(q.To.AddDate(0, 0, 1)) {
		return false
	}
	return true
}

// AgentProductLine is one agent's position on one product.
type AgentProductLine struct {
	StockID        string      `json:"stockId"`
	Product        string      `json:"product"`
	Unit           Unit        `json:"unit"`
	StockAllocated Quantity    `json:"stockAllocated"`
	StockDelivered Quantity    `json:"stockDelivered"`
	StockReturned  Quantity    `json:"stockReturned"`
	StockInHand    Quantity    `json:"stockInHand"`
	Status         AgentStatus `json:"status"`
	LastUpdated    time.Time   `json:"lastUpdated"`
}

// AgentSummary aggregates one agent's sub-ledgers across products.
type AgentSummary struct {
	AgentID        string             `json:"agentId"`
	AgentName      string             `json:"agentName"`
	Products       int                `json:"products"`
	StockAllocated Quantity           `json:"stockAllocated"`
	StockDelivered Quantity           `json:"stockDelivered"`
	StockReturned  Quantity           `json:"stockReturned"`
	StockInHand    Quantity           `json:"stockInHand"`
	Lines          []AgentProductLine `json:"lines"`
}

// AgentSummaryReport is the per-agent breakdown plus grand totals.
type AgentSummaryReport struct {
	Agents         []AgentSummary `json:"agents"`
	StockAllocated Quantity       `json:"stockAllocated"`
	StockDelivered Quantity       `json:"stockDelivered"`
	StockReturned  Quantity       `json:"stockReturned"`
	StockInHand    Quantity       `json:"stockInHand"`
}
