package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/service/stock"
)

// StockHandler exposes stock records and their agent sub-ledgers over HTTP.
type StockHandler struct {
	engine *stock.Engine
	logger *zap.Logger
}

// NewStockHandler constructs the HTTP handler adapter.
func NewStockHandler(engine *stock.Engine, logger *zap.Logger) *StockHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StockHandler{engine: engine, logger: logger}
}

type createStockRequest struct {
	Product      string          `json:"product" binding:"required"`
	Unit         models.Unit     `json:"unit" binding:"required,stockunit"`
	OpeningStock models.Quantity `json:"openingStock"`
	MinimumStock models.Quantity `json:"minimumStock"`
	ExpiryDate   *time.Time      `json:"expiryDate"`
	Notes        string          `json:"notes"`
}

// updateStockRequest only names editable fields. Counters and derived values
// sent by the client are dropped by the decoder.
type updateStockRequest struct {
	OpeningStock *models.Quantity `json:"openingStock"`
	MinimumStock *models.Quantity `json:"minimumStock"`
	ExpiryDate   *time.Time       `json:"expiryDate"`
	ClearExpiry  bool             `json:"clearExpiry"`
	IsActive     *bool            `json:"isActive"`
	Notes        string           `json:"notes"`
}

type adjustRequest struct {
	Quantity  models.Quantity `json:"quantity"`
	Reference string          `json:"reference"`
	Notes     string          `json:"notes"`
}

type listStocksQuery struct {
	Product         string      `form:"product"`
	Unit            models.Unit `form:"unit"`
	LowStock        bool        `form:"lowStock"`
	Expired         bool        `form:"expired"`
	IncludeInactive bool        `form:"includeInactive"`
	AgentID         string      `form:"agentId"`
}

func (q listStocksQuery) filter() models.StockFilter {
	return models.StockFilter{
		Product:         q.Product,
		Unit:            q.Unit,
		LowStockOnly:    q.LowStock,
		ExpiredOnly:     q.Expired,
		IncludeInactive: q.IncludeInactive,
		AgentID:         q.AgentID,
	}
}

// Create seeds a new stock record.
func (h *StockHandler) Create(c *gin.Context) {
	var req createStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid stock payload", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	rec, err := h.engine.CreateStock(c.Request.Context(), stock.NewStock{
		Product:      req.Product,
		Unit:         req.Unit,
		OpeningStock: req.OpeningStock,
		MinimumStock: req.MinimumStock,
		ExpiryDate:   req.ExpiryDate,
		Notes:        req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, rec)
}

// List returns stock records matching the query string.
func (h *StockHandler) List(c *gin.Context) {
	var q listStocksQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	recs, err := h.engine.ListStocks(c.Request.Context(), q.filter())
	if err != nil {
		_ = c.Error(err)
		return
	}
	if recs == nil {
		recs = []models.StockRecord{}
	}
	c.JSON(http.StatusOK, gin.H{"items": recs, "count": len(recs)})
}

// Get returns one record.
func (h *StockHandler) Get(c *gin.Context) {
	rec, err := h.engine.GetStock(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Update changes a record's settings.
func (h *StockHandler) Update(c *gin.Context) {
	var req updateStockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid stock update payload", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}

	rec, err := h.engine.UpdateStock(c.Request.Context(), c.Param("id"), stock.StockUpdate{
		OpeningStock: req.OpeningStock,
		MinimumStock: req.MinimumStock,
		ExpiryDate:   req.ExpiryDate,
		ClearExpiry:  req.ClearExpiry,
		IsActive:     req.IsActive,
		Notes:        req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Delete deactivates a record. History is kept.
func (h *StockHandler) Delete(c *gin.Context) {
	rec, err := h.engine.Deactivate(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Adjust applies a signed manual correction to opening stock.
func (h *StockHandler) Adjust(c *gin.Context) {
	var req adjustRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	rec, err := h.engine.AdjustStock(c.Request.Context(), c.Param("id"), req.Quantity, models.DocumentRef{
		Reference: req.Reference,
		Notes:     req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Refresh recomputes the derived flags of a record.
func (h *StockHandler) Refresh(c *gin.Context) {
	rec, err := h.engine.RefreshDerived(c.Request.Context(), c.Param("id"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// Movements lists the audit trail, optionally narrowed with ?type=.
func (h *StockHandler) Movements(c *gin.Context) {
	kind := models.MovementType(c.Query("type"))

	mvs, err := h.engine.ListMovements(c.Request.Context(), c.Param("id"), kind)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if mvs == nil {
		mvs = []models.Movement{}
	}
	c.JSON(http.StatusOK, gin.H{"items": mvs, "count": len(mvs)})
}
