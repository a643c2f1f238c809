// Package summary computes read-only aggregations over stock records for
// dashboards and delivery screens. Results are cached until the next mutation.
package summary

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/cache"
	"github.com/mamadbah2/stockledger/internal/domain/models"
)

// StockLister is the read side of the engine used for aggregation.
type StockLister interface {
	ListStocks(ctx context.Context, filter models.StockFilter) ([]models.StockRecord, error)
}

// Service aggregates stock records.
type Service struct {
	stocks StockLister
	cache  cache.SummaryCache
	logger *zap.Logger
}

// NewService wires a summary service. A nil cache disables caching.
func NewService(stocks StockLister, c cache.SummaryCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c == nil {
		c = cache.NoopCache{}
	}
	return &Service{stocks: stocks, cache: c, logger: logger}
}

// StockSummary totals counters across the selected records.
func (s *Service) StockSummary(ctx context.Context, q models.StockSummaryQuery) (*models.StockSummary, error) {
	key := cache.Key("stock", map[string]string{
		"product":         models.ProductKey(q.Product),
		"unit":            string(q.Unit.Normalize()),
		"includeInactive": strconv.FormatBool(q.IncludeInactive),
	})

	var out models.StockSummary
	if s.cached(ctx, key, &out) {
		return &out, nil
	}
	gen, cacheable := s.generation(ctx)

	recs, err := s.stocks.ListStocks(ctx, q.Filter())
	if err != nil {
		return nil, fmt.Errorf("list stocks for summary: %w", err)
	}
	out = AggregateStock(recs)

	if cacheable {
		s.store(ctx, key, out, gen)
	}
	return &out, nil
}

// AgentSummary totals sub-ledgers per agent across products.
func (s *Service) AgentSummary(ctx context.Context, q models.AgentSummaryQuery) (*models.AgentSummaryReport, error) {
	key := cache.Key("agents", map[string]string{
		"agentId": q.AgentID,
		"status":  string(q.Status),
		"from":    formatDate(q.From),
		"to":      formatDate(q.To),
	})

	var out models.AgentSummaryReport
	if s.cached(ctx, key, &out) {
		return &out, nil
	}
	gen, cacheable := s.generation(ctx)

	recs, err := s.stocks.ListStocks(ctx, models.StockFilter{AgentID: q.AgentID})
	if err != nil {
		return nil, fmt.Errorf("list stocks for agent summary: %w", err)
	}
	out = AggregateAgents(recs, q)

	if cacheable {
		s.store(ctx, key, out, gen)
	}
	return &out, nil
}

// AggregateStock sums counters over recs. Zero-valued fields count as zero.
func AggregateStock(recs []models.StockRecord) models.StockSummary {
	sum := models.StockSummary{
		OpeningStock:   decimal.Zero,
		TotalPurchases: decimal.Zero,
		TotalSales:     decimal.Zero,
		ClosingStock:   decimal.Zero,
		StockGiven:     decimal.Zero,
		StockDelivered: decimal.Zero,
		SalesReturns:   decimal.Zero,
		StockAvailable: decimal.Zero,
	}
	for _, r := range recs {
		sum.Records++
		sum.OpeningStock = sum.OpeningStock.Add(r.OpeningStock)
		sum.TotalPurchases = sum.TotalPurchases.Add(r.TotalPurchases)
		sum.TotalSales = sum.TotalSales.Add(r.TotalSales)
		sum.ClosingStock = sum.ClosingStock.Add(r.ClosingStock)
		sum.StockGiven = sum.StockGiven.Add(r.StockGiven)
		sum.StockDelivered = sum.StockDelivered.Add(r.StockDelivered)
		sum.SalesReturns = sum.SalesReturns.Add(r.SalesReturns)
		sum.StockAvailable = sum.StockAvailable.Add(r.StockAvailable)
		if r.IsLowStock {
			sum.LowStockCount++
		}
		if r.IsExpired {
			sum.ExpiredCount++
		}
	}
	return sum
}

// AggregateAgents groups matching sub-ledgers by agent, ordered by agent id.
func AggregateAgents(recs []models.StockRecord, q models.AgentSummaryQuery) models.AgentSummaryReport {
	byAgent := make(map[string]*models.AgentSummary)
	report := models.AgentSummaryReport{
		Agents:         []models.AgentSummary{},
		StockAllocated: decimal.Zero,
		StockDelivered: decimal.Zero,
		StockReturned:  decimal.Zero,
		StockInHand:    decimal.Zero,
	}

	for _, r := range recs {
		for _, a := range r.AgentStocks {
			if !q.Matches(a) {
				continue
			}
			agg, ok := byAgent[a.AgentID]
			if !ok {
				agg = &models.AgentSummary{
					AgentID:        a.AgentID,
					StockAllocated: decimal.Zero,
					StockDelivered: decimal.Zero,
					StockReturned:  decimal.Zero,
					StockInHand:    decimal.Zero,
				}
				byAgent[a.AgentID] = agg
			}
			if a.AgentName != "" {
				agg.AgentName = a.AgentName
			}
			agg.Products++
			agg.StockAllocated = agg.StockAllocated.Add(a.StockAllocated)
			agg.StockDelivered = agg.StockDelivered.Add(a.StockDelivered)
			agg.StockReturned = agg.StockReturned.Add(a.StockReturned)
			agg.StockInHand = agg.StockInHand.Add(a.StockInHand)
			agg.Lines = append(agg.Lines, models.AgentProductLine{
				StockID:        r.ID.Hex(),
				Product:        r.Product,
				Unit:           r.Unit,
				StockAllocated: a.StockAllocated,
				StockDelivered: a.StockDelivered,
				StockReturned:  a.StockReturned,
				StockInHand:    a.StockInHand,
				Status:         a.Status,
				LastUpdated:    a.LastUpdated,
			})

			report.StockAllocated = report.StockAllocated.Add(a.StockAllocated)
			report.StockDelivered = report.StockDelivered.Add(a.StockDelivered)
			report.StockReturned = report.StockReturned.Add(a.StockReturned)
			report.StockInHand = report.StockInHand.Add(a.StockInHand)
		}
	}

	ids := make([]string, 0, len(byAgent))
	for id := range byAgent {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		report.Agents = append(report.Agents, *byAgent[id])
	}
	return report
}

func (s *Service) cached(ctx context.Context, key string, dst any) bool {
	raw, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.logger.Warn("summary cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.logger.Warn("discarding undecodable summary cache entry", zap.String("key", key), zap.Error(err))
		return false
	}
	s.logger.Debug("summary cache hit", zap.String("key", key))
	return true
}

// generation must be read before the records are listed.
func (s *Service) generation(ctx context.Context) (int64, bool) {
	gen, err := s.cache.Generation(ctx)
	if err != nil {
		s.logger.Warn("summary cache generation unavailable, result not cached", zap.Error(err))
		return 0, false
	}
	return gen, true
}

func (s *Service) store(ctx context.Context, key string, v any, generation int64) {
	raw, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("failed to encode summary for cache", zap.String("key", key), zap.Error(err))
		return
	}
	if err := s.cache.Set(ctx, key, raw, generation); err != nil {
		s.logger.Warn("summary cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format("2006-01-02")
}
