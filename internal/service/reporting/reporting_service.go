package reporting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/domain/models"
)

const (
	dateLayout    = "2006-01-02"
	maxAlertLines = 25
)

// StockSource is the engine surface the reports need.
type StockSource interface {
	ListStocks(ctx context.Context, filter models.StockFilter) ([]models.StockRecord, error)
	RefreshDerived(ctx context.Context, id string) (*models.StockRecord, error)
}

// Service builds stock alerts for operators.
type Service struct {
	stocks StockSource
	logger *zap.Logger
}

// NewService wires a new reporting service instance.
func NewService(stocks StockSource, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{stocks: stocks, logger: logger}
}

// RefreshAll recomputes time-dependent flags on every active record and returns
// how many records were visited. A failing record is logged and skipped.
func (s *Service) RefreshAll(ctx context.Context) (int, error) {
	recs, err := s.stocks.ListStocks(ctx, models.StockFilter{})
	if err != nil {
		return 0, fmt.Errorf("list stocks for refresh: %w", err)
	}

	visited := 0
	for _, rec := range recs {
		if err := ctx.Err(); err != nil {
			return visited, err
		}
		if _, err := s.stocks.RefreshDerived(ctx, rec.ID.Hex()); err != nil {
			s.logger.Warn("failed to refresh stock record", zap.String("stock_id", rec.ID.Hex()), zap.Error(err))
			continue
		}
		visited++
	}
	return visited, nil
}

// BuildStockAlert collects low-stock and expired records.
func (s *Service) BuildStockAlert(ctx context.Context, now time.Time) (models.StockAlert, error) {
	alert := models.StockAlert{GeneratedAt: now}

	low, err := s.stocks.ListStocks(ctx, models.StockFilter{LowStockOnly: true})
	if err != nil {
		return alert, fmt.Errorf("load low stock records: %w", err)
	}
	expired, err := s.stocks.ListStocks(ctx, models.StockFilter{ExpiredOnly: true})
	if err != nil {
		return alert, fmt.Errorf("load expired records: %w", err)
	}

	alert.LowStock = low
	alert.Expired = expired
	return alert, nil
}

// FormatStockAlert renders the alert as a short text message.
func FormatStockAlert(alert models.StockAlert) string {
	if alert.Empty() {
		return fmt.Sprintf("Stock check %s: nothing to report.", alert.GeneratedAt.Format(dateLayout))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Stock check %s\n", alert.GeneratedAt.Format(dateLayout))

	if len(alert.LowStock) > 0 {
		fmt.Fprintf(&b, "\nLow stock (%d):\n", len(alert.LowStock))
		for i, r := range alert.LowStock {
			if i == maxAlertLines {
				fmt.Fprintf(&b, "- ... and %d more\n", len(alert.LowStock)-maxAlertLines)
				break
			}
			fmt.Fprintf(&b, "- %s: %s %s left (min %s)\n", r.Product, r.ClosingStock.String(), r.Unit, r.MinimumStock.String())
		}
	}

	if len(alert.Expired) > 0 {
		fmt.Fprintf(&b, "\nExpired (%d):\n", len(alert.Expired))
		for i, r := range alert.Expired {
			if i == maxAlertLines {
				fmt.Fprintf(&b, "- ... and %d more\n", len(alert.Expired)-maxAlertLines)
				break
			}
			expiry := "unknown"
			if r.ExpiryDate != nil {
				expiry = r.ExpiryDate.Format(dateLayout)
			}
			fmt.Fprintf(&b, "- %s: %s %s, expired %s\n", r.Product, r.ClosingStock.String(), r.Unit, expiry)
		}
	}

	return strings.TrimRight(b.String(), "\n")
}
