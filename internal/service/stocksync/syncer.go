// Package stocksync applies persisted sale and purchase documents to the stock
// ledger. Stock consistency is best-effort relative to the sales ledger: a line
// that cannot be applied is reported as a warning and never fails the document.
package stocksync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/service/stock"
)

// DocumentKind says how a document moves stock.
type DocumentKind string

const (
	KindSale           DocumentKind = "sale"
	KindPurchase       DocumentKind = "purchase"
	KindSaleReturn     DocumentKind = "sale_return"
	KindPurchaseReturn DocumentKind = "purchase_return"
)

// Valid reports whether k is a known document kind.
func (k DocumentKind) Valid() bool {
	switch k {
	case KindSale, KindPurchase, KindSaleReturn, KindPurchaseReturn:
		return true
	}
	return false
}

// Line is one product line of a document.
type Line struct {
	Product  string          `json:"product" binding:"required"`
	Unit     models.Unit     `json:"unit" binding:"required,stockunit"`
	Quantity models.Quantity `json:"quantity"`
}

// Document is a sale, purchase or return as persisted by the sales ledger.
type Document struct {
	Kind        DocumentKind `json:"kind" binding:"required"`
	Reference   string       `json:"reference" binding:"required"`
	ReferenceID string       `json:"referenceId"`
	Notes       string       `json:"notes"`
	Lines       []Line       `json:"lines" binding:"required,min=1,dive"`
}

// LineResult is the outcome for one line.
type LineResult struct {
	Product  string              `json:"product"`
	Unit     models.Unit         `json:"unit"`
	Applied  bool                `json:"applied"`
	Created  bool                `json:"created,omitempty"`
	Stock    *models.StockRecord `json:"stock,omitempty"`
	Code     string              `json:"code,omitempty"`
	Warnings []string            `json:"warnings,omitempty"`
}

// Result is delivered once every line was attempted.
type Result struct {
	Kind      DocumentKind `json:"kind"`
	Reference string       `json:"reference"`
	Lines     []LineResult `json:"lines"`
	Warnings  []string     `json:"warnings"`
}

// Ledger is the part of the engine a sync needs.
type Ledger interface {
	RecordPurchase(ctx context.Context, in stock.LineInput) (*stock.Result, error)
	RecordSale(ctx context.Context, in stock.LineInput) (*stock.Result, error)
	RecordSaleReturn(ctx context.Context, in stock.LineInput) (*stock.Result, error)
	RecordPurchaseReturn(ctx context.Context, in stock.LineInput) (*stock.Result, error)
}

// Syncer runs document syncs off the caller's goroutine.
type Syncer struct {
	ledger  Ledger
	timeout time.Duration
	logger  *zap.Logger
}

// NewSyncer builds a Syncer. Each sync gets at most timeout to finish.
func NewSyncer(ledger Ledger, timeout time.Duration, logger *zap.Logger) *Syncer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Syncer{ledger: ledger, timeout: timeout, logger: logger}
}

// Dispatch starts applying doc and returns a channel that receives exactly one
// Result. The sync outlives cancellation of ctx so that a dropped request does
// not leave a document half applied.
func (s *Syncer) Dispatch(ctx context.Context, doc Document) <-chan Result {
	out := make(chan Result, 1)
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)

	go func() {
		defer cancel()
		defer close(out)
		out <- s.apply(ctx, doc)
	}()
	return out
}

// Sync dispatches doc and waits for its result.
func (s *Syncer) Sync(ctx context.Context, doc Document) Result {
	return <-s.Dispatch(ctx, doc)
}

func (s *Syncer) apply(ctx context.Context, doc Document) Result {
	res := Result{Kind: doc.Kind, Reference: doc.Reference, Lines: make([]LineResult, 0, len(doc.Lines)), Warnings: []string{}}

	record, model, ok := s.operation(doc.Kind)
	if !ok {
		msg := fmt.Sprintf("unsupported document kind %q", doc.Kind)
		res.Warnings = append(res.Warnings, msg)
		s.logger.Warn("stock sync skipped", zap.String("reference", doc.Reference), zap.String("kind", string(doc.Kind)))
		return res
	}

	for _, line := range doc.Lines {
		lr := LineResult{Product: strings.TrimSpace(line.Product), Unit: line.Unit.Normalize()}
		out, err := record(ctx, stock.LineInput{
			Product:  line.Product,
			Unit:     line.Unit.Normalize(),
			Quantity: line.Quantity,
			Ref: models.DocumentRef{
				Reference:      doc.Reference,
				ReferenceID:    doc.ReferenceID,
				ReferenceModel: model,
				Notes:          doc.Notes,
			},
		})
		if err != nil {
			lr.Code = apperror.CodeInternal
			msg := err.Error()
			if appErr, ok := apperror.AsAppError(err); ok {
				lr.Code = appErr.Code
				msg = appErr.Message
			}
			warning := fmt.Sprintf("stock not updated for %s (%s): %s", lr.Product, lr.Unit, msg)
			lr.Warnings = append(lr.Warnings, warning)
			res.Warnings = append(res.Warnings, warning)
			s.logger.Warn("stock sync line failed",
				zap.String("reference", doc.Reference),
				zap.String("kind", string(doc.Kind)),
				zap.String("product", lr.Product),
				zap.Error(err))
			res.Lines = append(res.Lines, lr)
			continue
		}

		lr.Applied = true
		lr.Created = out.Created
		lr.Stock = out.Record
		lr.Warnings = out.Warnings
		res.Warnings = append(res.Warnings, out.Warnings...)
		res.Lines = append(res.Lines, lr)
	}

	s.logger.Info("stock sync finished",
		zap.String("reference", doc.Reference),
		zap.String("kind", string(doc.Kind)),
		zap.Int("lines", len(doc.Lines)),
		zap.Int("warnings", len(res.Warnings)))
	return res
}

type recordFunc func(ctx context.Context, in stock.LineInput) (*stock.Result, error)

func (s *Syncer) operation(kind DocumentKind) (recordFunc, string, bool) {
	switch kind {
	case KindSale:
		return s.ledger.RecordSale, models.ReferenceSale, true
	case KindSaleReturn:
		return s.ledger.RecordSaleReturn, models.ReferenceSale, true
	case KindPurchase:
		return s.ledger.RecordPurchase, models.ReferencePurchase, true
	case KindPurchaseReturn:
		return s.ledger.RecordPurchaseReturn, models.ReferencePurchase, true
	}
	return nil, "", false
}
