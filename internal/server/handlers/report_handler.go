package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/service/stocksync"
	"github.com/mamadbah2/stockledger/internal/service/summary"
)

// ReportHandler serves summaries and the document sync endpoint.
type ReportHandler struct {
	summaries *summary.Service
	syncer    *stocksync.Syncer
	logger    *zap.Logger
}

// NewReportHandler constructs the HTTP handler adapter.
func NewReportHandler(summaries *summary.Service, syncer *stocksync.Syncer, logger *zap.Logger) *ReportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportHandler{summaries: summaries, syncer: syncer, logger: logger}
}

// StockSummary aggregates counters over the selected records.
func (h *ReportHandler) StockSummary(c *gin.Context) {
	var q models.StockSummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	out, err := h.summaries.StockSummary(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// AgentSummary aggregates sub-ledgers per agent.
func (h *ReportHandler) AgentSummary(c *gin.Context) {
	var q models.AgentSummaryQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}
	if q.Status != "" && !q.Status.Valid() {
		_ = c.Error(apperror.NewValidation("unknown agent status").WithDetail("status", q.Status))
		return
	}

	out, err := h.summaries.AgentSummary(c.Request.Context(), q)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Sync applies a sale, purchase or return document to the ledger. Line
// failures do not fail the request; they come back as warnings.
func (h *ReportHandler) Sync(c *gin.Context) {
	var doc stocksync.Document
	if err := c.ShouldBindJSON(&doc); err != nil {
		h.logger.Warn("invalid sync payload", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}
	if !doc.Kind.Valid() {
		_ = c.Error(apperror.NewValidation("unknown document kind").WithDetail("kind", doc.Kind))
		return
	}

	c.JSON(http.StatusOK, h.syncer.Sync(c.Request.Context(), doc))
}

// Pinger reports backend health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Health answers liveness checks. When a pinger is given, its failure turns
// the answer into a 503.
func Health(p Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if p != nil {
			if err := p.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
