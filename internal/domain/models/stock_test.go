package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	tests := []struct {
		name      string
		rec       StockRecord
		closing   int64
		available int64
		low       bool
		expired   bool
	}{
		{
			name:      "reference scenario",
			rec:       StockRecord{OpeningStock: Qty(100), TotalPurchases: Qty(50), TotalSales: Qty(30), MinimumStock: Qty(20)},
			closing:   120,
			available: 120,
		},
		{
			name:      "given to agents reduces availability only",
			rec:       StockRecord{OpeningStock: Qty(100), StockGiven: Qty(40), MinimumStock: Qty(20)},
			closing:   100,
			available: 60,
		},
		{
			name:    "closing equal to minimum is low",
			rec:     StockRecord{OpeningStock: Qty(20), MinimumStock: Qty(20)},
			closing: 20, available: 20, low: true,
		},
		{
			name:    "zero values tolerate missing fields",
			rec:     StockRecord{},
			closing: 0, available: 0, low: true,
		},
		{
			name:    "expired yesterday",
			rec:     StockRecord{OpeningStock: Qty(5), ExpiryDate: &past},
			closing: 5, available: 5, expired: true,
		},
		{
			name:    "not yet expired",
			rec:     StockRecord{OpeningStock: Qty(5), ExpiryDate: &future},
			closing: 5, available: 5,
		},
		{
			name:    "oversold",
			rec:     StockRecord{OpeningStock: Qty(2), TotalSales: Qty(5)},
			closing: -3, available: -3, low: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := tt.rec.Derive(now)
			assert.True(t, Qty(tt.closing).Equal(d.ClosingStock), "closing %s", d.ClosingStock)
			assert.True(t, Qty(tt.available).Equal(d.StockAvailable), "available %s", d.StockAvailable)
			assert.Equal(t, tt.low, d.IsLowStock)
			assert.Equal(t, tt.expired, d.IsExpired)
		})
	}
}

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name      string
		delivered int64
		inHand    int64
		want      AgentStatus
	}{
		{"fresh allocation", 0, 10, AgentStatusActive},
		{"partial delivery", 4, 6, AgentStatusInProgress},
		{"everything delivered", 10, 0, AgentStatusCompleted},
		{"nothing allocated", 0, 0, AgentStatusActive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := AgentStock{StockDelivered: Qty(tt.delivered), StockInHand: Qty(tt.inHand)}
			assert.Equal(t, tt.want, a.NextStatus())
		})
	}
}

func TestAgentStockBalanceAndReturnable(t *testing.T) {
	a := AgentStock{StockAllocated: Qty(40), StockDelivered: Qty(25), StockReturned: Qty(5), StockInHand: Qty(20)}
	assert.True(t, a.Balanced())
	assert.True(t, Qty(35).Equal(a.Returnable()))

	a.StockInHand = Qty(19)
	assert.False(t, a.Balanced())

	over := AgentStock{StockAllocated: Qty(5), StockReturned: Qty(7)}
	assert.True(t, over.Returnable().IsZero())
}

func TestCloneIsDeep(t *testing.T) {
	exp := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := NewStockRecord("Rice", UnitKg, exp)
	rec.ExpiryDate = &exp
	rec.AgentStocks = append(rec.AgentStocks, AgentStock{AgentID: "A", StockInHand: Qty(1)})
	rec.Movements = append(rec.Movements, Movement{Type: MovementPurchase, Quantity: Qty(1)})

	cp := rec.Clone()
	cp.AgentStocks[0].StockInHand = Qty(9)
	cp.Movements[0].Quantity = Qty(9)
	*cp.ExpiryDate = exp.Add(time.Hour)

	assert.True(t, Qty(1).Equal(rec.AgentStocks[0].StockInHand))
	assert.True(t, Qty(1).Equal(rec.Movements[0].Quantity))
	assert.Equal(t, exp, *rec.ExpiryDate)
}

func TestProductKeyAndUnits(t *testing.T) {
	assert.Equal(t, "palm oil", ProductKey("  Palm \t OIL "))
	assert.True(t, Unit(" KG ").Valid())
	assert.Equal(t, UnitLiters, Unit("Liters").Normalize())
	assert.False(t, Unit("sack").Valid())
	assert.Len(t, Units(), 11)
}

func TestStockFilterMatches(t *testing.T) {
	rec := NewStockRecord("Palm Oil", UnitLiter, time.Now())
	rec.AgentStocks = append(rec.AgentStocks, AgentStock{AgentID: "A"})
	rec.IsLowStock = true

	assert.True(t, StockFilter{Product: "palm"}.Matches(rec))
	assert.True(t, StockFilter{Unit: "L", LowStockOnly: true, AgentID: "A"}.Matches(rec))
	assert.False(t, StockFilter{ExpiredOnly: true}.Matches(rec))
	assert.False(t, StockFilter{AgentID: "B"}.Matches(rec))

	rec.IsActive = false
	assert.False(t, StockFilter{}.Matches(rec))
	assert.True(t, StockFilter{IncludeInactive: true}.Matches(rec))
}

func TestSignedQuantity(t *testing.T) {
	for _, kind := range []MovementType{MovementSale, MovementPurchaseReturn, MovementAgentAllocation} {
		assert.True(t, Qty(-3).Equal(Movement{Type: kind, Quantity: Qty(3)}.SignedQuantity()), kind)
	}
	for _, kind := range []MovementType{MovementPurchase, MovementSaleReturn, MovementAgentReturn} {
		assert.True(t, Qty(3).Equal(Movement{Type: kind, Quantity: Qty(3)}.SignedQuantity()), kind)
	}
	assert.True(t, Qty(-2).Equal(Movement{Type: MovementManualAdjustment, Quantity: Qty(-2)}.SignedQuantity()))
}

func TestAgentSummaryQueryMatches(t *testing.T) {
	day := func(d int) time.Time { return time.Date(2025, 5, d, 0, 0, 0, 0, time.UTC) }
	from, to := day(2), day(4)
	q := AgentSummaryQuery{AgentID: "A", Status: AgentStatusActive, From: &from, To: &to}

	require.True(t, q.Matches(AgentStock{AgentID: "A", Status: AgentStatusActive, LastUpdated: day(3)}))
	assert.False(t, q.Matches(AgentStock{AgentID: "B", Status: AgentStatusActive, LastUpdated: day(3)}))
	assert.False(t, q.Matches(AgentStock{AgentID: "A", Status: AgentStatusCompleted, LastUpdated: day(3)}))
	assert.False(t, q.Matches(AgentStock{AgentID: "A", Status: AgentStatusActive, LastUpdated: day(1)}))
	assert.False(t, q.Matches(AgentStock{AgentID: "A", Status: AgentStatusActive, LastUpdated: day(5)}))
	assert.True(t, AgentSummaryQuery{}.Matches(AgentStock{}))
}

func TestAgentSummaryQueryToIncludesWholeDay(t *testing.T) {
	day := time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC)
	q := AgentSummaryQuery{From: &day, To: &day}

	assert.True(t, q.Matches(AgentStock{LastUpdated: day}))
	assert.True(t, q.Matches(AgentStock{LastUpdated: day.Add(8 * time.Hour)}))
	assert.True(t, q.Matches(AgentStock{LastUpdated: day.Add(24*time.Hour - time.Nanosecond)}))
	assert.False(t, q.Matches(AgentStock{LastUpdated: day.Add(24 * time.Hour)}))
	assert.False(t, q.Matches(AgentStock{LastUpdated: day.Add(-time.Minute)}))
}

func TestStockFilterExpiredAsOf(t *testing.T) {
	now := time.Date(2025, 5, 3, 12, 0, 0, 0, time.UTC)
	expiry := now.Add(-time.Hour)
	rec := NewStockRecord("Milk", UnitLiter, now.Add(-48*time.Hour))
	rec.ExpiryDate = &expiry

	assert.False(t, StockFilter{ExpiredOnly: true}.Matches(rec), "stored flag is still false")
	assert.True(t, StockFilter{ExpiredOnly: true, AsOf: now}.Matches(rec))
	assert.False(t, StockFilter{ExpiredOnly: true, AsOf: expiry.Add(-time.Minute)}.Matches(rec))

	rec.ExpiryDate = nil
	assert.False(t, StockFilter{ExpiredOnly: true, AsOf: now}.Matches(rec))
}
