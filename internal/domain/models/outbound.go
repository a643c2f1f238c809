package models

import "time"

// StockAlert lists records that need attention from the stock manager.
type StockAlert struct {
	GeneratedAt time.Time     `json:"generatedAt"`
	LowStock    []StockRecord `json:"lowStock"`
	Expired     []StockRecord `json:"expired"`
}

// Empty reports whether the alert has nothing to say.
func (a StockAlert) Empty() bool {
	return len(a.LowStock) == 0 && len(a.Expired) == 0
}

// OutboundMessageRequest represents a text notification pushed to an operator.
type OutboundMessageRequest struct {
	To         string `json:"to" binding:"required"`
	Message    string `json:"message" binding:"required"`
	PreviewURL bool   `json:"preview_url"`
}
