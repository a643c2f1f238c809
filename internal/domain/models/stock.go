package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Quantity is an exact stock quantity. Units such as kg or liters carry fractions,
// so counters never use floating point.
type Quantity = decimal.Decimal

// Qty builds a whole Quantity.
func Qty(v int64) Quantity {
	return decimal.NewFromInt(v)
}

// StockRecord is the per product+unit inventory ledger document.
type StockRecord struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Product    string             `bson:"product" json:"product"`
	ProductKey string             `bson:"productKey" json:"-"`
	Unit       Unit               `bson:"unit" json:"unit"`

	OpeningStock   Quantity `bson:"openingStock" json:"openingStock"`
	TotalPurchases Quantity `bson:"totalPurchases" json:"totalPurchases"`
	TotalSales     Quantity `bson:"totalSales" json:"totalSales"`
	StockGiven     Quantity `bson:"stockGiven" json:"stockGiven"`
	StockDelivered Quantity `bson:"stockDelivered" json:"stockDelivered"`
	SalesReturns   Quantity `bson:"salesReturns" json:"salesReturns"`

	// Derived. Written only by Recompute.
	ClosingStock   Quantity `bson:"closingStock" json:"closingStock"`
	StockAvailable Quantity `bson:"stockAvailable" json:"stockAvailable"`
	IsLowStock     bool     `bson:"isLowStock" json:"isLowStock"`
	IsExpired      bool     `bson:"isExpired" json:"isExpired"`

	MinimumStock Quantity   `bson:"minimumStock" json:"minimumStock"`
	ExpiryDate   *time.Time `bson:"expiryDate,omitempty" json:"expiryDate,omitempty"`

	AgentStocks []AgentStock `bson:"agentStocks" json:"agentStocks"`
	Movements   []Movement   `bson:"movements" json:"movements,omitempty"`

	IsActive  bool      `bson:"isActive" json:"isActive"`
	Version   int64     `bson:"version" json:"version"`
	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// NewStockRecord returns an empty active record for the product+unit pair.
func NewStockRecord(product string, unit Unit, now time.Time) *StockRecord {
	rec := &StockRecord{
		ID:          primitive.NewObjectID(),
		Product:     strings.TrimSpace(product),
		ProductKey:  ProductKey(product),
		Unit:        unit.Normalize(),
		AgentStocks: []AgentStock{},
		Movements:   []Movement{},
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	rec.Recompute(now)
	return rec
}

// ProductKey normalizes a free-text product name for case-insensitive lookups.
func ProductKey(product string) string {
	return strings.ToLower(strings.Join(strings.Fields(product), " "))
}

// DerivedFields is the set of values computed from the authoritative counters.
type DerivedFields struct {
	ClosingStock   Quantity
	StockAvailable Quantity
	IsLowStock     bool
	IsExpired      bool
}

// Derive computes derived fields without touching the record.
// Order matters: closing stock feeds availability and the low-stock flag.
func (r *StockRecord) Derive(now time.Time) DerivedFields {
	closing := r.OpeningStock.Add(r.TotalPurchases).Sub(r.TotalSales)
	return DerivedFields{
		ClosingStock:   closing,
		StockAvailable: closing.Sub(r.StockGiven),
		IsLowStock:     closing.LessThanOrEqual(r.MinimumStock),
		IsExpired:      r.ExpiryDate != nil && now.After(*r.ExpiryDate),
	}
}

// Recompute overwrites the derived fields from the authoritative counters.
func (r *StockRecord) Recompute(now time.Time) {
	d := r.Derive(now)
	r.ClosingStock = d.ClosingStock
	r.StockAvailable = d.StockAvailable
	r.IsLowStock = d.IsLowStock
	r.IsExpired = d.IsExpired
}

// AgentIndex returns the position of the agent's sub-ledger or -1.
func (r *StockRecord) AgentIndex(agentID string) int {
	for i := range r.AgentStocks {
		if r.AgentStocks[i].AgentID == agentID {
			return i
		}
	}
	return -1
}

// Agent returns the agent's sub-ledger.
func (r *StockRecord) Agent(agentID string) (*AgentStock, bool) {
	idx := r.AgentIndex(agentID)
	if idx < 0 {
		return nil, false
	}
	return &r.AgentStocks[idx], true
}

// TotalAllocated sums stockAllocated over all sub-ledgers.
func (r *StockRecord) TotalAllocated() Quantity {
	total := decimal.Zero
	for _, a := range r.AgentStocks {
		total = total.Add(a.StockAllocated)
	}
	return total
}

// Clone returns a deep copy so callers can mutate a candidate state safely.
func (r *StockRecord) Clone() *StockRecord {
	if r == nil {
		return nil
	}
	cp := *r
	if r.ExpiryDate != nil {
		exp := *r.ExpiryDate
		cp.ExpiryDate = &exp
	}
	cp.AgentStocks = append([]AgentStock(nil), r.AgentStocks...)
	cp.Movements = append([]Movement(nil), r.Movements...)
	return &cp
}

// StockFilter narrows list queries.
type StockFilter struct {
	Product         string
	Unit            Unit
	LowStockOnly    bool
	ExpiredOnly     bool
	IncludeInactive bool
	AgentID         string
	// AsOf is the instant ExpiredOnly is judged at. Zero falls back to the
	// stored isExpired flag.
	AsOf time.Time
}

func (f StockFilter) expired(r *StockRecord) bool {
	if f.AsOf.IsZero() {
		return r.IsExpired
	}
	return r.ExpiryDate != nil && f.AsOf.After(*r.ExpiryDate)
}

// Matches applies the filter to an in-memory record.
func (f StockFilter) Matches(r *StockRecord) bool {
	if r == nil {
		return false
	}
	if !f.IncludeInactive && !r.IsActive {
		return false
	}
	if f.Product != "" && !strings.Contains(r.ProductKey, ProductKey(f.Product)) {
		return false
	}
	if f.Unit != "" && r.Unit != f.Unit.Normalize() {
		return false
	}
	if f.LowStockOnly && !r.IsLowStock {
		return false
	}
	if f.ExpiredOnly && !f.expired(r) {
		return false
	}
	if f.AgentID != "" && r.AgentIndex(f.AgentID) < 0 {
		return false
	}
	return true
}
