package stock

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository"
)

// LineInput is one product line coming from a sale or purchase document.
type LineInput struct {
	Product  string
	Unit     models.Unit
	Quantity models.Quantity
	Ref      models.DocumentRef
}

// Result is returned by the document-driven operations.
type Result struct {
	Record   *models.StockRecord
	Created  bool
	Warnings []string
}

// RecordPurchase adds purchased quantity, creating the record on first use.
func (e *Engine) RecordPurchase(ctx context.Context, in LineInput) (*Result, error) {
	return e.recordLine(ctx, in, true, func(_ *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		return &repository.Mutation{
			Counters: repository.Counters{TotalPurchases: in.Quantity},
			Movement: movement(models.MovementPurchase, in.Quantity, in.Ref, models.ReferencePurchase, now),
		}, nil
	})
}

// RecordSale adds sold quantity. A shortfall never blocks the sale; it comes
// back as a warning.
func (e *Engine) RecordSale(ctx context.Context, in LineInput) (*Result, error) {
	res, err := e.recordLine(ctx, in, true, func(_ *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		return &repository.Mutation{
			Counters: repository.Counters{TotalSales: in.Quantity},
			Movement: movement(models.MovementSale, in.Quantity, in.Ref, models.ReferenceSale, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.warnIfShort(res, in)
	return res, nil
}

// RecordSaleReturn takes returned goods back. The part of the return not
// covered by recorded sales is booked as opening stock, which also seeds
// records that did not exist yet.
func (e *Engine) RecordSaleReturn(ctx context.Context, in LineInput) (*Result, error) {
	return e.recordLine(ctx, in, true, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		fromSales := minQty(in.Quantity, rec.TotalSales)
		return &repository.Mutation{
			Counters: repository.Counters{
				TotalSales:   fromSales.Neg(),
				OpeningStock: in.Quantity.Sub(fromSales),
				SalesReturns: in.Quantity,
			},
			Movement: movement(models.MovementSaleReturn, in.Quantity, in.Ref, models.ReferenceSale, now),
		}, nil
	})
}

// RecordPurchaseReturn sends goods back to a vendor. Quantity beyond recorded
// purchases is taken from opening stock; beyond that it is rejected.
func (e *Engine) RecordPurchaseReturn(ctx context.Context, in LineInput) (*Result, error) {
	res, err := e.recordLine(ctx, in, false, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		limit := rec.OpeningStock.Add(rec.TotalPurchases)
		if in.Quantity.GreaterThan(limit) {
			return nil, apperror.NewInvalidQuantity(
				fmt.Sprintf("cannot return %s %s of %s, only %s recorded", in.Quantity.String(), rec.Unit, rec.Product, limit.String()),
				in.Quantity).WithDetail("limit", limit.String())
		}
		fromPurchases := minQty(in.Quantity, rec.TotalPurchases)
		return &repository.Mutation{
			Counters: repository.Counters{
				TotalPurchases: fromPurchases.Neg(),
				OpeningStock:   in.Quantity.Sub(fromPurchases).Neg(),
			},
			Movement: movement(models.MovementPurchaseReturn, in.Quantity, in.Ref, models.ReferencePurchase, now),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	e.warnIfShort(res, in)
	return res, nil
}

func (e *Engine) recordLine(ctx context.Context, in LineInput, createOnMiss bool, plan planFunc) (*Result, error) {
	if err := validateProduct(in.Product, in.Unit); err != nil {
		return nil, err
	}
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}

	var (
		rec     *models.StockRecord
		created bool
		err     error
	)
	if createOnMiss {
		rec, created, err = e.ensureRecord(ctx, in.Product, in.Unit)
	} else {
		rec, err = e.FindStock(ctx, in.Product, in.Unit)
	}
	if err != nil {
		return nil, err
	}

	updated, _, err := e.mutate(ctx, rec.ID.Hex(), plan)
	if err != nil {
		return nil, err
	}
	return &Result{Record: updated, Created: created}, nil
}

func (e *Engine) warnIfShort(res *Result, in LineInput) {
	if res == nil || res.Record == nil || !res.Record.StockAvailable.IsNegative() {
		return
	}
	msg := fmt.Sprintf("%s (%s) is short by %s after %s",
		res.Record.Product, res.Record.Unit, res.Record.StockAvailable.Neg().String(), in.Ref.Reference)
	res.Warnings = append(res.Warnings, msg)
	e.logger.Warn("stock available went negative",
		zap.String("stock_id", res.Record.ID.Hex()),
		zap.String("product", res.Record.Product),
		zap.String("available", res.Record.StockAvailable.String()),
		zap.String("reference", in.Ref.Reference))
}

func movement(kind models.MovementType, qty models.Quantity, ref models.DocumentRef, model string, now time.Time) *models.Movement {
	if ref.ReferenceModel != "" {
		model = ref.ReferenceModel
	}
	return &models.Movement{
		Type:           kind,
		Quantity:       qty,
		Reference:      ref.Reference,
		ReferenceID:    ref.ReferenceID,
		ReferenceModel: model,
		Notes:          ref.Notes,
		CreatedAt:      now,
	}
}

// AdjustStock applies a signed manual correction to opening stock.
func (e *Engine) AdjustStock(ctx context.Context, id string, delta models.Quantity, ref models.DocumentRef) (*models.StockRecord, error) {
	if delta.IsZero() {
		return nil, apperror.NewInvalidQuantity("adjustment must not be zero", delta)
	}
	rec, _, err := e.mutate(ctx, id, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		if rec.OpeningStock.Add(delta).IsNegative() {
			return nil, apperror.NewInvalidQuantity(
				fmt.Sprintf("adjustment would make opening stock negative (current %s)", rec.OpeningStock.String()),
				delta)
		}
		return &repository.Mutation{
			Counters: repository.Counters{OpeningStock: delta},
			Movement: movement(models.MovementManualAdjustment, delta, ref, models.ReferenceManual, now),
		}, nil
	})
	return rec, err
}

// StockUpdate carries the editable fields of a record. Counters other than
// opening stock and all derived values are not part of it.
type StockUpdate struct {
	OpeningStock *models.Quantity
	MinimumStock *models.Quantity
	ExpiryDate   *time.Time
	ClearExpiry  bool
	IsActive     *bool
	Notes        string
}

// UpdateStock applies settings. An opening stock change is logged as a manual
// adjustment; derived fields are always recomputed.
func (e *Engine) UpdateStock(ctx context.Context, id string, upd StockUpdate) (*models.StockRecord, error) {
	if upd.OpeningStock != nil && upd.OpeningStock.IsNegative() {
		return nil, apperror.NewInvalidQuantity("opening stock must not be negative", *upd.OpeningStock)
	}
	if upd.MinimumStock != nil && upd.MinimumStock.IsNegative() {
		return nil, apperror.NewInvalidQuantity("minimum stock must not be negative", *upd.MinimumStock)
	}

	rec, _, err := e.mutate(ctx, id, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		m := &repository.Mutation{
			Settings: &repository.Settings{
				MinimumStock: upd.MinimumStock,
				ExpiryDate:   upd.ExpiryDate,
				ClearExpiry:  upd.ClearExpiry,
				IsActive:     upd.IsActive,
			},
		}
		if upd.OpeningStock != nil {
			delta := upd.OpeningStock.Sub(rec.OpeningStock)
			if !delta.IsZero() {
				m.Counters.OpeningStock = delta
				m.Movement = movement(models.MovementManualAdjustment, delta, models.DocumentRef{
					Reference: "opening stock updated",
					Notes:     upd.Notes,
				}, models.ReferenceManual, now)
			}
		}
		return m, nil
	})
	return rec, err
}

// Deactivate soft-deletes a record. Movements and sub-ledgers are kept.
func (e *Engine) Deactivate(ctx context.Context, id string) (*models.StockRecord, error) {
	inactive := false
	rec, _, err := e.mutate(ctx, id, func(rec *models.StockRecord, _ time.Time) (*repository.Mutation, error) {
		if !rec.IsActive {
			return nil, nil
		}
		return &repository.Mutation{Settings: &repository.Settings{IsActive: &inactive}}, nil
	})
	if err == nil {
		e.logger.Info("stock record deactivated", zap.String("stock_id", id))
	}
	return rec, err
}
