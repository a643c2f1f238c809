// Package repository defines the persistence contract for stock records.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/mamadbah2/stockledger/internal/domain/models"
)

var (
	// ErrNotFound indicates no record matched.
	ErrNotFound = errors.New("stock record not found")
	// ErrVersionConflict indicates the record changed since it was read.
	ErrVersionConflict = errors.New("stock record version conflict")
	// ErrDuplicate indicates a record for the product+unit pair already exists.
	ErrDuplicate = errors.New("stock record already exists")
)

// StockRepository stores one document per product+unit pair.
type StockRepository interface {
	Create(ctx context.Context, rec *models.StockRecord) error
	FindByID(ctx context.Context, id string) (*models.StockRecord, error)
	FindByProduct(ctx context.Context, product string, unit models.Unit) (*models.StockRecord, error)
	// List returns matching records without their movement log.
	List(ctx context.Context, filter models.StockFilter) ([]models.StockRecord, error)
	// Apply atomically applies m if the stored version still equals version and
	// returns the updated record.
	Apply(ctx context.Context, id string, version int64, m Mutation) (*models.StockRecord, error)
}

// Counters holds signed deltas for the authoritative record counters.
type Counters struct {
	OpeningStock   models.Quantity
	TotalPurchases models.Quantity
	TotalSales     models.Quantity
	StockGiven     models.Quantity
	StockDelivered models.Quantity
	SalesReturns   models.Quantity
}

// AgentChange targets one agent sub-ledger. When Create is set the sub-ledger is
// appended as given and the deltas are ignored.
type AgentChange struct {
	AgentID   string
	AgentName string
	Create    *models.AgentStock

	Allocated models.Quantity
	Delivered models.Quantity
	Returned  models.Quantity
	InHand    models.Quantity
	Status    models.AgentStatus
}

// Settings are caller-editable, non-counter fields.
type Settings struct {
	MinimumStock *models.Quantity
	ExpiryDate   *time.Time
	ClearExpiry  bool
	IsActive     *bool
}

// Mutation is one atomic change to a stock record: counter increments, an
// optional agent sub-ledger change, settings, the recomputed derived fields and
// at most one movement.
type Mutation struct {
	Counters Counters
	Agent    *AgentChange
	Settings *Settings
	Movement *models.Movement
	Derived  models.DerivedFields
	At       time.Time
}

// Preview applies the mutation to a copy of rec, recomputes derived fields on the
// copy, stores them in m.Derived and returns the candidate state.
func (m *Mutation) Preview(rec *models.StockRecord) *models.StockRecord {
	cand := rec.Clone()
	m.applyAuthoritative(cand)
	if a := m.Agent; a != nil && a.Create == nil && a.Status == "" {
		if agent, ok := cand.Agent(a.AgentID); ok {
			a.Status = agent.NextStatus()
			agent.Status = a.Status
		}
	}
	m.Derived = cand.Derive(m.At)
	m.applyDerived(cand)
	if m.Movement != nil {
		cand.Movements = append(cand.Movements, *m.Movement)
	}
	cand.Version++
	return cand
}

// ApplyTo mutates rec in place using the already computed m.Derived.
// Stores without server-side update operators use it.
func (m Mutation) ApplyTo(rec *models.StockRecord) {
	m.applyAuthoritative(rec)
	m.applyDerived(rec)
	if m.Movement != nil {
		rec.Movements = append(rec.Movements, *m.Movement)
	}
	rec.Version++
}

func (m Mutation) applyAuthoritative(rec *models.StockRecord) {
	c := m.Counters
	rec.OpeningStock = rec.OpeningStock.Add(c.OpeningStock)
	rec.TotalPurchases = rec.TotalPurchases.Add(c.TotalPurchases)
	rec.TotalSales = rec.TotalSales.Add(c.TotalSales)
	rec.StockGiven = rec.StockGiven.Add(c.StockGiven)
	rec.StockDelivered = rec.StockDelivered.Add(c.StockDelivered)
	rec.SalesReturns = rec.SalesReturns.Add(c.SalesReturns)

	if s := m.Settings; s != nil {
		if s.MinimumStock != nil {
			rec.MinimumStock = *s.MinimumStock
		}
		if s.ClearExpiry {
			rec.ExpiryDate = nil
		} else if s.ExpiryDate != nil {
			exp := *s.ExpiryDate
			rec.ExpiryDate = &exp
		}
		if s.IsActive != nil {
			rec.IsActive = *s.IsActive
		}
	}

	if a := m.Agent; a != nil {
		if a.Create != nil {
			rec.AgentStocks = append(rec.AgentStocks, *a.Create)
		} else if agent, ok := rec.Agent(a.AgentID); ok {
			agent.StockAllocated = agent.StockAllocated.Add(a.Allocated)
			agent.StockDelivered = agent.StockDelivered.Add(a.Delivered)
			agent.StockReturned = agent.StockReturned.Add(a.Returned)
			agent.StockInHand = agent.StockInHand.Add(a.InHand)
			if a.Status != "" {
				agent.Status = a.Status
			}
			if a.AgentName != "" {
				agent.AgentName = a.AgentName
			}
			agent.LastUpdated = m.At
		}
	}
	rec.UpdatedAt = m.At
}

func (m Mutation) applyDerived(rec *models.StockRecord) {
	rec.ClosingStock = m.Derived.ClosingStock
	rec.StockAvailable = m.Derived.StockAvailable
	rec.IsLowStock = m.Derived.IsLowStock
	rec.IsExpired = m.Derived.IsExpired
}
