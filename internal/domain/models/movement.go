package models

import "time"

// MovementType classifies an entry in the movement log.
type MovementType string

const (
	MovementPurchase         MovementType = "purchase"
	MovementSale             MovementType = "sale"
	MovementPurchaseReturn   MovementType = "purchase_return"
	MovementSaleReturn       MovementType = "sale_return"
	MovementAgentAllocation  MovementType = "agent_allocation"
	MovementAgentReturn      MovementType = "agent_return"
	MovementManualAdjustment MovementType = "manual_adjustment"
)

// Reference models used in Movement.ReferenceModel.
const (
	ReferenceSale     = "Sale"
	ReferencePurchase = "Purchase"
	ReferenceAgent    = "Agent"
	ReferenceManual   = "Manual"
)

// Movement is an immutable audit entry. Quantity is the magnitude of the change,
// except for manual adjustments where the sign carries the direction.
type Movement struct {
	Type           MovementType `bson:"type" json:"type"`
	Quantity       Quantity     `bson:"quantity" json:"quantity"`
	Reference      string       `bson:"reference,omitempty" json:"reference,omitempty"`
	ReferenceID    string       `bson:"referenceId,omitempty" json:"referenceId,omitempty"`
	ReferenceModel string       `bson:"referenceModel,omitempty" json:"referenceModel,omitempty"`
	AgentID        string       `bson:"agentId,omitempty" json:"agentId,omitempty"`
	Notes          string       `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time    `bson:"createdAt" json:"createdAt"`
}

// SignedQuantity returns the quantity as seen by customer-facing summaries,
// where outgoing stock is negative.
func (m Movement) SignedQuantity() Quantity {
	switch m.Type {
	case MovementSale, MovementPurchaseReturn, MovementAgentAllocation:
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// DocumentRef identifies the sale/purchase/agent event behind a stock change.
type DocumentRef struct {
	Reference      string `json:"reference"`
	ReferenceID    string `json:"referenceId,omitempty"`
	ReferenceModel string `json:"referenceModel,omitempty"`
	Notes          string `json:"notes,omitempty"`
}
