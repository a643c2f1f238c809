package stock

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/apperror"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository"
)

// AgentAllocation hands quantity of one stock record to a delivery agent.
type AgentAllocation struct {
	AgentID   string
	AgentName string
	Quantity  models.Quantity
	Notes     string
}

// AgentResult is the state after an agent operation, for before/after display.
type AgentResult struct {
	Record *models.StockRecord
	Agent  models.AgentStock
}

// BatchItemResult reports the outcome of one allocation inside a batch.
type BatchItemResult struct {
	AgentID string             `json:"agentId"`
	Success bool               `json:"success"`
	Code    string             `json:"code,omitempty"`
	Error   string             `json:"error,omitempty"`
	Agent   *models.AgentStock `json:"agent,omitempty"`
}

// BatchResult is the outcome of AllocateBatch.
type BatchResult struct {
	Record    *models.StockRecord `json:"stock"`
	Results   []BatchItemResult   `json:"results"`
	Allocated int                 `json:"allocated"`
	Failed    int                 `json:"failed"`
}

// AllocateToAgent moves available stock into the agent's sub-ledger, creating
// the sub-ledger on first allocation.
func (e *Engine) AllocateToAgent(ctx context.Context, stockID string, in AgentAllocation) (*AgentResult, error) {
	if err := validateAgentID(in.AgentID); err != nil {
		return nil, err
	}
	if err := validateQuantity(in.Quantity); err != nil {
		return nil, err
	}

	rec, _, err := e.mutate(ctx, stockID, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		if !rec.IsActive {
			return nil, apperror.NewValidation(fmt.Sprintf("stock %s (%s) is inactive", rec.Product, rec.Unit)).
				WithDetail("stockId", stockID)
		}
		if in.Quantity.GreaterThan(rec.StockAvailable) {
			return nil, apperror.NewInsufficientStock(rec.Product, string(rec.Unit), in.Quantity, rec.StockAvailable)
		}

		change := &repository.AgentChange{AgentID: in.AgentID, AgentName: in.AgentName}
		if _, ok := rec.Agent(in.AgentID); ok {
			change.Allocated = in.Quantity
			change.InHand = in.Quantity
		} else {
			created := models.AgentStock{
				AgentID:        in.AgentID,
				AgentName:      in.AgentName,
				StockAllocated: in.Quantity,
				StockDelivered: decimal.Zero,
				StockReturned:  decimal.Zero,
				StockInHand:    in.Quantity,
				LastUpdated:    now,
			}
			created.Status = created.NextStatus()
			change.Create = &created
		}

		return &repository.Mutation{
			Counters: repository.Counters{StockGiven: in.Quantity},
			Agent:    change,
			Movement: &models.Movement{
				Type:           models.MovementAgentAllocation,
				Quantity:       in.Quantity,
				Reference:      agentReference(in.AgentID, in.AgentName),
				ReferenceID:    in.AgentID,
				ReferenceModel: models.ReferenceAgent,
				AgentID:        in.AgentID,
				Notes:          in.Notes,
				CreatedAt:      now,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("stock allocated to agent",
		zap.String("stock_id", stockID),
		zap.String("agent_id", in.AgentID),
		zap.String("quantity", in.Quantity.String()),
		zap.String("available", rec.StockAvailable.String()))
	return agentResult(rec, in.AgentID)
}

// AllocateBatch admits the batch only when its total fits into stockAvailable,
// then allocates to each agent in order. A failing agent does not stop the rest.
func (e *Engine) AllocateBatch(ctx context.Context, stockID string, items []AgentAllocation) (*BatchResult, error) {
	if len(items) == 0 {
		return nil, apperror.NewValidation("at least one allocation is required")
	}
	total := decimal.Zero
	for i, it := range items {
		if err := validateAgentID(it.AgentID); err != nil {
			return nil, err.WithDetail("index", i)
		}
		if err := validateQuantity(it.Quantity); err != nil {
			return nil, err
		}
		total = total.Add(it.Quantity)
	}

	rec, err := e.load(ctx, stockID)
	if err != nil {
		return nil, err
	}
	if !rec.IsActive {
		return nil, apperror.NewValidation(fmt.Sprintf("stock %s (%s) is inactive", rec.Product, rec.Unit)).
			WithDetail("stockId", stockID)
	}
	if total.GreaterThan(rec.StockAvailable) {
		return nil, apperror.NewInsufficientStock(rec.Product, string(rec.Unit), total, rec.StockAvailable).
			WithDetail("batch", len(items))
	}

	out := &BatchResult{Record: rec, Results: make([]BatchItemResult, 0, len(items))}
	for _, it := range items {
		res, err := e.AllocateToAgent(ctx, stockID, it)
		if err != nil {
			item := BatchItemResult{AgentID: it.AgentID, Error: err.Error(), Code: apperror.CodeInternal}
			if appErr, ok := apperror.AsAppError(err); ok {
				item.Code = appErr.Code
				item.Error = appErr.Message
			}
			out.Results = append(out.Results, item)
			out.Failed++
			e.logger.Warn("batch allocation item failed",
				zap.String("stock_id", stockID),
				zap.String("agent_id", it.AgentID),
				zap.Error(err))
			continue
		}
		agent := res.Agent
		out.Results = append(out.Results, BatchItemResult{AgentID: it.AgentID, Success: true, Agent: &agent})
		out.Record = res.Record
		out.Allocated++
	}
	return out, nil
}

// RecordAgentDelivery books stock the agent handed over to customers.
func (e *Engine) RecordAgentDelivery(ctx context.Context, stockID, agentID string, qty models.Quantity) (*AgentResult, error) {
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}

	rec, _, err := e.mutate(ctx, stockID, func(rec *models.StockRecord, _ time.Time) (*repository.Mutation, error) {
		agent, ok := rec.Agent(agentID)
		if !ok {
			return nil, apperror.NewNotFound("agent stock", agentID).WithDetail("stockId", stockID)
		}
		if qty.GreaterThan(agent.StockInHand) {
			return nil, apperror.NewExceedsStockInHand(agentID, string(rec.Unit), qty, agent.StockInHand)
		}
		return &repository.Mutation{
			Counters: repository.Counters{StockDelivered: qty},
			Agent: &repository.AgentChange{
				AgentID:   agentID,
				Delivered: qty,
				InHand:    qty.Neg(),
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return agentResult(rec, agentID)
}

// CompleteAgentDelivery delivers everything the agent still holds and closes
// the round.
func (e *Engine) CompleteAgentDelivery(ctx context.Context, stockID, agentID string) (*AgentResult, error) {
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}

	rec, _, err := e.mutate(ctx, stockID, func(rec *models.StockRecord, _ time.Time) (*repository.Mutation, error) {
		agent, ok := rec.Agent(agentID)
		if !ok {
			return nil, apperror.NewNotFound("agent stock", agentID).WithDetail("stockId", stockID)
		}
		remaining := agent.StockInHand
		if remaining.IsZero() && agent.Status == models.AgentStatusCompleted {
			return nil, nil
		}
		return &repository.Mutation{
			Counters: repository.Counters{StockDelivered: remaining},
			Agent: &repository.AgentChange{
				AgentID:   agentID,
				Delivered: remaining,
				InHand:    remaining.Neg(),
				Status:    models.AgentStatusCompleted,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return agentResult(rec, agentID)
}

// RecordAgentReturn takes stock back from an agent. An agent can never return
// more than was allocated to it.
func (e *Engine) RecordAgentReturn(ctx context.Context, stockID, agentID string, qty models.Quantity, notes string) (*AgentResult, error) {
	if err := validateAgentID(agentID); err != nil {
		return nil, err
	}
	if err := validateQuantity(qty); err != nil {
		return nil, err
	}

	rec, _, err := e.mutate(ctx, stockID, func(rec *models.StockRecord, now time.Time) (*repository.Mutation, error) {
		agent, ok := rec.Agent(agentID)
		if !ok {
			return nil, apperror.NewNotFound("agent stock", agentID).WithDetail("stockId", stockID)
		}
		if limit := agent.Returnable(); qty.GreaterThan(limit) {
			return nil, apperror.NewExceedsStockInHand(agentID, string(rec.Unit), qty, limit)
		}
		return &repository.Mutation{
			Counters: repository.Counters{SalesReturns: qty},
			Agent: &repository.AgentChange{
				AgentID:  agentID,
				Returned: qty,
				InHand:   qty,
			},
			Movement: &models.Movement{
				Type:           models.MovementSaleReturn,
				Quantity:       qty,
				Reference:      agentReference(agentID, agent.AgentName),
				ReferenceID:    agentID,
				ReferenceModel: models.ReferenceAgent,
				AgentID:        agentID,
				Notes:          notes,
				CreatedAt:      now,
			},
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return agentResult(rec, agentID)
}

// GetAgentStock returns one agent's sub-ledger.
func (e *Engine) GetAgentStock(ctx context.Context, stockID, agentID string) (*AgentResult, error) {
	rec, err := e.read(ctx, stockID)
	if err != nil {
		return nil, err
	}
	return agentResult(rec, agentID)
}

func agentResult(rec *models.StockRecord, agentID string) (*AgentResult, error) {
	agent, ok := rec.Agent(agentID)
	if !ok {
		return nil, apperror.NewNotFound("agent stock", agentID).WithDetail("stockId", rec.ID.Hex())
	}
	return &AgentResult{Record: rec, Agent: *agent}, nil
}

func validateAgentID(agentID string) *apperror.AppError {
	if strings.TrimSpace(agentID) == "" {
		return apperror.NewValidation("agentId is required")
	}
	return nil
}

func agentReference(agentID, agentName string) string {
	if agentName == "" {
		return "agent " + agentID
	}
	return "agent " + agentName
}
