// Package memory is an in-process StockRepository used for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository"
)

// Repository keeps stock records in a map guarded by a RWMutex.
type Repository struct {
	mu        sync.RWMutex
	byID      map[string]*models.StockRecord
	byProduct map[string]string
}

// NewRepository returns an empty in-memory store.
func NewRepository() *Repository {
	return &Repository{
		byID:      make(map[string]*models.StockRecord),
		byProduct: make(map[string]string),
	}
}

func productIndexKey(product string, unit models.Unit) string {
	return models.ProductKey(product) + "|" + string(unit.Normalize())
}

// Create stores a new record, rejecting a second record for the same product+unit.
func (r *Repository) Create(_ context.Context, rec *models.StockRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := productIndexKey(rec.Product, rec.Unit)
	if _, exists := r.byProduct[key]; exists {
		return repository.ErrDuplicate
	}
	id := rec.ID.Hex()
	if _, exists := r.byID[id]; exists {
		return repository.ErrDuplicate
	}

	r.byID[id] = rec.Clone()
	r.byProduct[key] = id
	return nil
}

// FindByID returns a copy of the record.
func (r *Repository) FindByID(_ context.Context, id string) (*models.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return rec.Clone(), nil
}

// FindByProduct looks the record up by case-insensitive product name and unit.
func (r *Repository) FindByProduct(_ context.Context, product string, unit models.Unit) (*models.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byProduct[productIndexKey(product, unit)]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return r.byID[id].Clone(), nil
}

// List returns matching records ordered by product, without movements.
func (r *Repository) List(_ context.Context, filter models.StockFilter) ([]models.StockRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.StockRecord, 0, len(r.byID))
	for _, rec := range r.byID {
		if !filter.Matches(rec) {
			continue
		}
		cp := rec.Clone()
		cp.Movements = nil
		out = append(out, *cp)
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductKey == out[j].ProductKey {
			return out[i].Unit < out[j].Unit
		}
		return out[i].ProductKey < out[j].ProductKey
	})
	return out, nil
}

// Apply performs the compare-and-swap on version under the write lock.
func (r *Repository) Apply(_ context.Context, id string, version int64, m repository.Mutation) (*models.StockRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok || rec.Version != version {
		return nil, repository.ErrVersionConflict
	}
	if m.Agent != nil && m.Agent.Create == nil && rec.AgentIndex(m.Agent.AgentID) < 0 {
		return nil, repository.ErrVersionConflict
	}

	m.ApplyTo(rec)
	return rec.Clone(), nil
}
