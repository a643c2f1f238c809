package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/service/stock"
)

type allocationItem struct {
	AgentID   string          `json:"agentId" binding:"required"`
	AgentName string          `json:"agentName"`
	Quantity  models.Quantity `json:"quantity"`
	Notes     string          `json:"notes"`
}

func (a allocationItem) toAllocation() stock.AgentAllocation {
	return stock.AgentAllocation{AgentID: a.AgentID, AgentName: a.AgentName, Quantity: a.Quantity, Notes: a.Notes}
}

// allocationRequest is either a single allocation or a batch under
// "allocations".
type allocationRequest struct {
	AgentID     string           `json:"agentId"`
	AgentName   string           `json:"agentName"`
	Quantity    models.Quantity  `json:"quantity"`
	Notes       string           `json:"notes"`
	Allocations []allocationItem `json:"allocations" binding:"omitempty,dive"`
}

type deliveryRequest struct {
	Quantity models.Quantity `json:"quantity"`
}

type agentReturnRequest struct {
	Quantity models.Quantity `json:"quantity"`
	Notes    string          `json:"notes"`
}

// batchStatus is 200 when every allocation went through, 207 when some did
// and 422 when none did.
func batchStatus(res *stock.BatchResult) int {
	switch {
	case res.Failed == 0:
		return http.StatusOK
	case res.Allocated == 0:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusMultiStatus
	}
}

func renderAgent(c *gin.Context, status int, res *stock.AgentResult) {
	c.JSON(status, gin.H{"stock": res.Record, "agent": res.Agent})
}

// Allocate hands stock to one agent, or to several when the body carries an
// allocations array.
func (h *StockHandler) Allocate(c *gin.Context) {
	var req allocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Warn("invalid allocation payload", zap.Error(err))
		_ = c.Error(bindError(err))
		return
	}
	ctx := c.Request.Context()
	stockID := c.Param("id")

	if len(req.Allocations) > 0 {
		items := make([]stock.AgentAllocation, 0, len(req.Allocations))
		for _, it := range req.Allocations {
			items = append(items, it.toAllocation())
		}
		res, err := h.engine.AllocateBatch(ctx, stockID, items)
		if err != nil {
			_ = c.Error(err)
			return
		}
		c.JSON(batchStatus(res), res)
		return
	}

	if req.AgentID == "" {
		_ = c.Error(apperror.NewValidation("agentId or allocations is required"))
		return
	}

	res, err := h.engine.AllocateToAgent(ctx, stockID, stock.AgentAllocation{
		AgentID:   req.AgentID,
		AgentName: req.AgentName,
		Quantity:  req.Quantity,
		Notes:     req.Notes,
	})
	if err != nil {
		_ = c.Error(err)
		return
	}
	renderAgent(c, http.StatusOK, res)
}

// GetAgent returns one agent's sub-ledger on a record.
func (h *StockHandler) GetAgent(c *gin.Context) {
	res, err := h.engine.GetAgentStock(c.Request.Context(), c.Param("id"), c.Param("agentId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	renderAgent(c, http.StatusOK, res)
}

// Deliver records a delivery made by the agent.
func (h *StockHandler) Deliver(c *gin.Context) {
	var req deliveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.engine.RecordAgentDelivery(c.Request.Context(), c.Param("id"), c.Param("agentId"), req.Quantity)
	if err != nil {
		_ = c.Error(err)
		return
	}
	renderAgent(c, http.StatusOK, res)
}

// Complete closes the agent's delivery round.
func (h *StockHandler) Complete(c *gin.Context) {
	res, err := h.engine.CompleteAgentDelivery(c.Request.Context(), c.Param("id"), c.Param("agentId"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	renderAgent(c, http.StatusOK, res)
}

// Return takes undelivered stock back from the agent.
func (h *StockHandler) Return(c *gin.Context) {
	var req agentReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(bindError(err))
		return
	}

	res, err := h.engine.RecordAgentReturn(c.Request.Context(), c.Param("id"), c.Param("agentId"), req.Quantity, req.Notes)
	if err != nil {
		_ = c.Error(err)
		return
	}
	renderAgent(c, http.StatusOK, res)
}
