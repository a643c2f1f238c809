// Package stock implements the inventory ledger and agent allocation engine.
//
// Every mutating call is one read-modify-write on a single stock record: the
// record is locked by id, loaded, validated, turned into a repository.Mutation
// and applied with a compare-and-swap on the record version. A lost race reloads
// and re-plans; after maxRetries the caller gets CONCURRENT_MODIFICATION.
package stock

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/cache"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/lock"
	"github.com/mamadbah2/stockledger/internal/repository"
)

const defaultMaxRetries = 5

// MovementObserver is told about every committed movement.
type MovementObserver interface {
	MovementRecorded(ctx context.Context, rec *models.StockRecord, mv models.Movement)
}

// Engine mutates stock records consistently.
type Engine struct {
	repo       repository.StockRepository
	locker     lock.Locker
	cache      cache.SummaryCache
	observers  []MovementObserver
	maxRetries int
	now        func() time.Time
	logger     *zap.Logger
}

// Option customizes an Engine.
type Option func(*Engine)

// WithLocker replaces the default in-process keyed mutex.
func WithLocker(l lock.Locker) Option {
	return func(e *Engine) {
		if l != nil {
			e.locker = l
		}
	}
}

// WithSummaryCache sets the cache invalidated after every mutation.
func WithSummaryCache(c cache.SummaryCache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}

// WithMovementObserver registers an observer for committed movements.
func WithMovementObserver(o MovementObserver) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// WithMaxRetries bounds the optimistic retry loop.
func WithMaxRetries(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxRetries = n
		}
	}
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// NewEngine wires a new engine instance.
func NewEngine(repo repository.StockRepository, logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		repo:       repo,
		locker:     lock.NewKeyedMutex(),
		cache:      cache.NoopCache{},
		maxRetries: defaultMaxRetries,
		now:        time.Now,
		logger:     logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// planFunc inspects the current record and returns the mutation to apply.
// A nil mutation means there is nothing to change.
type planFunc func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error)

// mutate runs plan under the record lock and notifies the cache and observers
// once the lock is released.
func (e *Engine) mutate(ctx context.Context, id string, plan planFunc) (*models.StockRecord, *repository.Mutation, error) {
	rec, m, err := e.commit(ctx, id, plan)
	if err != nil || m == nil {
		return rec, m, err
	}
	e.afterCommit(ctx, rec, m.Movement)
	return rec, m, nil
}

func (e *Engine) commit(ctx context.Context, id string, plan planFunc) (*models.StockRecord, *repository.Mutation, error) {
	unlock, err := e.locker.Lock(ctx, id)
	if err != nil {
		return nil, nil, apperror.NewConcurrentModification("stock", id, 0).WithCause(err)
	}
	defer unlock()

	for attempt := 1; attempt <= e.maxRetries; attempt++ {
		rec, err := e.load(ctx, id)
		if err != nil {
			return nil, nil, err
		}

		now := e.now().UTC()
		m, err := plan(rec, now)
		if err != nil {
			return nil, nil, err
		}
		if m == nil {
			return rec, nil, nil
		}

		m.At = now
		cand := m.Preview(rec)
		if err := checkInvariants(cand); err != nil {
			e.logger.Error("refusing mutation that breaks ledger invariants", zap.String("stock_id", id), zap.Error(err))
			return nil, nil, apperror.NewInternal(err)
		}

		updated, err := e.repo.Apply(ctx, id, rec.Version, *m)
		if errors.Is(err, repository.ErrVersionConflict) {
			e.logger.Debug("stock version conflict, retrying", zap.String("stock_id", id), zap.Int("attempt", attempt))
			continue
		}
		if err != nil {
			return nil, nil, apperror.NewInternal(fmt.Errorf("apply stock mutation: %w", err))
		}

		return updated, m, nil
	}

	e.logger.Warn("stock update retries exhausted", zap.String("stock_id", id), zap.Int("attempts", e.maxRetries))
	return nil, nil, apperror.NewConcurrentModification("stock", id, e.maxRetries)
}

func (e *Engine) load(ctx context.Context, id string) (*models.StockRecord, error) {
	rec, err := e.repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NewNotFound("stock", id)
	}
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("load stock %s: %w", id, err))
	}
	return rec, nil
}

// read loads a record for display. Time-dependent flags are derived against
// the current clock; the stored values only move on the next commit or sweep.
func (e *Engine) read(ctx context.Context, id string) (*models.StockRecord, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	rec.Recompute(e.now())
	return rec, nil
}

func (e *Engine) afterCommit(ctx context.Context, rec *models.StockRecord, mv *models.Movement) {
	e.invalidate(ctx)
	if mv == nil {
		return
	}
	for _, o := range e.observers {
		o.MovementRecorded(ctx, rec, *mv)
	}
}

func (e *Engine) invalidate(ctx context.Context) {
	if err := e.cache.Invalidate(ctx); err != nil {
		e.logger.Warn("failed to invalidate summary cache", zap.Error(err))
	}
}

// checkInvariants verifies the candidate state before it is written.
func checkInvariants(rec *models.StockRecord) error {
	counters := map[string]models.Quantity{
		"openingStock":   rec.OpeningStock,
		"totalPurchases": rec.TotalPurchases,
		"totalSales":     rec.TotalSales,
		"stockGiven":     rec.StockGiven,
		"stockDelivered": rec.StockDelivered,
		"salesReturns":   rec.SalesReturns,
	}
	for name, v := range counters {
		if v.IsNegative() {
			return fmt.Errorf("%s would become negative (%s)", name, v.String())
		}
	}
	if !rec.TotalAllocated().Equal(rec.StockGiven) {
		return fmt.Errorf("stockGiven %s does not match allocated total %s", rec.StockGiven.String(), rec.TotalAllocated().String())
	}
	for _, a := range rec.AgentStocks {
		if !a.Balanced() {
			return fmt.Errorf("agent %s sub-ledger out of balance (in hand %s)", a.AgentID, a.StockInHand.String())
		}
	}
	return nil
}

func validateQuantity(q models.Quantity) error {
	if !q.IsPositive() {
		return apperror.NewInvalidQuantity("quantity must be greater than zero", q)
	}
	return nil
}

func validateProduct(product string, unit models.Unit) error {
	if strings.TrimSpace(product) == "" {
		return apperror.NewValidation("product is required")
	}
	if !unit.Valid() {
		return apperror.NewValidation(fmt.Sprintf("unsupported unit %q", unit)).WithDetail("unit", string(unit))
	}
	return nil
}

// ensureRecord returns the record for product+unit, creating an empty one on miss.
func (e *Engine) ensureRecord(ctx context.Context, product string, unit models.Unit) (*models.StockRecord, bool, error) {
	rec, err := e.repo.FindByProduct(ctx, product, unit)
	if err == nil {
		return rec, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, apperror.NewInternal(fmt.Errorf("find stock %s/%s: %w", product, unit, err))
	}

	rec = models.NewStockRecord(product, unit, e.now().UTC())
	err = e.repo.Create(ctx, rec)
	if errors.Is(err, repository.ErrDuplicate) {
		// Lost the creation race; use the winner's record.
		rec, err = e.repo.FindByProduct(ctx, product, unit)
		if err != nil {
			return nil, false, apperror.NewInternal(fmt.Errorf("reload stock %s/%s: %w", product, unit, err))
		}
		return rec, false, nil
	}
	if err != nil {
		return nil, false, apperror.NewInternal(fmt.Errorf("create stock %s/%s: %w", product, unit, err))
	}

	e.logger.Info("stock record created",
		zap.String("stock_id", rec.ID.Hex()),
		zap.String("product", rec.Product),
		zap.String("unit", string(rec.Unit)))
	return rec, true, nil
}

// NewStock describes an explicitly created stock record.
type NewStock struct {
	Product      string
	Unit         models.Unit
	OpeningStock models.Quantity
	MinimumStock models.Quantity
	ExpiryDate   *time.Time
	Notes        string
}

// CreateStock seeds a record with an opening balance.
func (e *Engine) CreateStock(ctx context.Context, in NewStock) (*models.StockRecord, error) {
	if err := validateProduct(in.Product, in.Unit); err != nil {
		return nil, err
	}
	if in.OpeningStock.IsNegative() {
		return nil, apperror.NewInvalidQuantity("opening stock must not be negative", in.OpeningStock)
	}
	if in.MinimumStock.IsNegative() {
		return nil, apperror.NewInvalidQuantity("minimum stock must not be negative", in.MinimumStock)
	}

	now := e.now().UTC()
	rec := models.NewStockRecord(in.Product, in.Unit, now)
	rec.OpeningStock = in.OpeningStock
	rec.MinimumStock = in.MinimumStock
	rec.ExpiryDate = in.ExpiryDate
	if in.OpeningStock.IsPositive() {
		rec.Movements = append(rec.Movements, models.Movement{
			Type:           models.MovementManualAdjustment,
			Quantity:       in.OpeningStock,
			Reference:      "opening stock",
			ReferenceModel: models.ReferenceManual,
			Notes:          in.Notes,
			CreatedAt:      now,
		})
	}
	rec.Recompute(now)

	if err := e.repo.Create(ctx, rec); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, apperror.NewDuplicate("stock", "product and unit", rec.Product+"/"+string(rec.Unit))
		}
		return nil, apperror.NewInternal(fmt.Errorf("create stock: %w", err))
	}

	e.invalidate(ctx)
	if len(rec.Movements) > 0 {
		for _, o := range e.observers {
			o.MovementRecorded(ctx, rec, rec.Movements[0])
		}
	}
	return rec, nil
}

// GetStock loads one record with its movement log.
func (e *Engine) GetStock(ctx context.Context, id string) (*models.StockRecord, error) {
	return e.read(ctx, id)
}

// FindStock looks a record up by case-insensitive product name and unit.
func (e *Engine) FindStock(ctx context.Context, product string, unit models.Unit) (*models.StockRecord, error) {
	rec, err := e.repo.FindByProduct(ctx, product, unit)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, apperror.NewStockNotFound(product, string(unit))
	}
	if err != nil {
		return nil, apperror.NewInternal(err)
	}
	rec.Recompute(e.now())
	return rec, nil
}

// ListStocks returns records matching filter, without movements. Expiry is
// judged against filter.AsOf, which defaults to the engine clock.
func (e *Engine) ListStocks(ctx context.Context, filter models.StockFilter) ([]models.StockRecord, error) {
	if filter.AsOf.IsZero() {
		filter.AsOf = e.now()
	}
	recs, err := e.repo.List(ctx, filter)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("list stocks: %w", err))
	}
	for i := range recs {
		recs[i].Recompute(filter.AsOf)
	}
	return recs, nil
}

// ListMovements returns the movement log in chronological order, optionally
// narrowed to one movement type.
func (e *Engine) ListMovements(ctx context.Context, id string, kind models.MovementType) ([]models.Movement, error) {
	rec, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if kind == "" {
		return rec.Movements, nil
	}
	out := make([]models.Movement, 0, len(rec.Movements))
	for _, mv := range rec.Movements {
		if mv.Type == kind {
			out = append(out, mv)
		}
	}
	return out, nil
}

// RefreshDerived recomputes time-dependent flags such as isExpired.
func (e *Engine) RefreshDerived(ctx context.Context, id string) (*models.StockRecord, error) {
	rec, _, err := e.mutate(ctx, id, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		d := rec.Derive(now)
		if d.IsExpired == rec.IsExpired && d.IsLowStock == rec.IsLowStock &&
			d.ClosingStock.Equal(rec.ClosingStock) && d.StockAvailable.Equal(rec.StockAvailable) {
			return nil, nil
		}
		return &repository.Mutation{}, nil
	})
	return rec, err
}

func minQty(a, b models.Quantity) models.Quantity {
	return decimal.Min(a, b)
}
