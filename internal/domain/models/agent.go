package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgentStatus tracks where an agent is in a delivery round.
type AgentStatus string

const (
	AgentStatusActive     AgentStatus = "Active"
	AgentStatusInProgress AgentStatus = "In Progress"
	AgentStatusCompleted  AgentStatus = "Completed"
)

// Valid reports whether the status is one of the known states.
func (s AgentStatus) Valid() bool {
	switch s {
	case AgentStatusActive, AgentStatusInProgress, AgentStatusCompleted:
		return true
	}
	return false
}

// AgentStock is the per-agent sub-ledger embedded in a StockRecord.
type AgentStock struct {
	AgentID        string      `bson:"agentId" json:"agentId"`
	AgentName      string      `bson:"agentName" json:"agentName"`
	StockAllocated Quantity    `bson:"stockAllocated" json:"stockAllocated"`
	StockDelivered Quantity    `bson:"stockDelivered" json:"stockDelivered"`
	StockReturned  Quantity    `bson:"stockReturned" json:"stockReturned"`
	StockInHand    Quantity    `bson:"stockInHand" json:"stockInHand"`
	Status         AgentStatus `bson:"status" json:"status"`
	LastUpdated    time.Time   `bson:"lastUpdated" json:"lastUpdated"`
}

// NextStatus derives the state machine position from the counters.
// Completed is reached only when nothing is left in hand after a delivery;
// any later increase of stock in hand reopens the round.
func (a AgentStock) NextStatus() AgentStatus {
	if !a.StockInHand.IsPositive() {
		if a.StockDelivered.IsPositive() {
			return AgentStatusCompleted
		}
		return AgentStatusActive
	}
	if a.StockDelivered.IsPositive() {
		return AgentStatusInProgress
	}
	return AgentStatusActive
}

// Returnable is how much more the agent may hand back.
func (a AgentStock) Returnable() Quantity {
	left := a.StockAllocated.Sub(a.StockReturned)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}

// Balanced reports whether stockInHand matches allocated - delivered + returned.
func (a AgentStock) Balanced() bool {
	expected := a.StockAllocated.Sub(a.StockDelivered).Add(a.StockReturned)
	return a.StockInHand.Equal(expected) && !a.StockInHand.IsNegative()
}
