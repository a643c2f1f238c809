// Package apperror carries the stock ledger's error taxonomy with enough detail
// to render a user-facing message and pick an HTTP status.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
)

// Error codes.
const (
	CodeNotFound               = "NOT_FOUND"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeExceedsStockInHand     = "EXCEEDS_STOCK_IN_HAND"
	CodeInvalidQuantity        = "INVALID_QUANTITY"
	CodeConcurrentModification = "CONCURRENT_MODIFICATION"
	CodeValidation             = "VALIDATION_ERROR"
	CodeDuplicate              = "DUPLICATE_ENTRY"
	CodeInternal               = "INTERNAL_ERROR"
)

// AppError is the structured error returned by the engine and the HTTP layer.
type AppError struct {
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	HTTPStatus int            `json:"-"`
	Err        error          `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches on code so errors.Is(err, apperror.ErrInsufficientStock) works
// regardless of details.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail adds a key-value pair to error details.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// Sentinels for errors.Is.
var (
	ErrNotFound               = &AppError{Code: CodeNotFound}
	ErrInsufficientStock      = &AppError{Code: CodeInsufficientStock}
	ErrExceedsStockInHand     = &AppError{Code: CodeExceedsStockInHand}
	ErrInvalidQuantity        = &AppError{Code: CodeInvalidQuantity}
	ErrConcurrentModification = &AppError{Code: CodeConcurrentModification}
	ErrValidation             = &AppError{Code: CodeValidation}
	ErrDuplicate              = &AppError{Code: CodeDuplicate}
)

// NewNotFound creates a not found error (404).
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewStockNotFound reports a product+unit pair with no stock record.
func NewStockNotFound(product, unit string) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("no stock record for %s (%s)", product, unit),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"product": product, "unit": unit},
	}
}

// NewInsufficientStock reports an allocation larger than the available stock.
func NewInsufficientStock(product, unit string, requested, available decimal.Decimal) *AppError {
	return &AppError{
		Code: CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock for %s: available %s %s, requested %s %s",
			product, available.String(), unit, requested.String(), unit),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"product":   product,
			"unit":      unit,
			"requested": requested.String(),
			"available": available.String(),
		},
	}
}

// NewExceedsStockInHand reports a delivery or return larger than the agent may move.
func NewExceedsStockInHand(agentID, unit string, requested, limit decimal.Decimal) *AppError {
	return &AppError{
		Code: CodeExceedsStockInHand,
		Message: fmt.Sprintf("agent %s can move at most %s %s, requested %s %s",
			agentID, limit.String(), unit, requested.String(), unit),
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"agentId":   agentID,
			"unit":      unit,
			"requested": requested.String(),
			"limit":     limit.String(),
		},
	}
}

// NewInvalidQuantity reports a zero, negative or out-of-range quantity.
func NewInvalidQuantity(message string, quantity decimal.Decimal) *AppError {
	return &AppError{
		Code:       CodeInvalidQuantity,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
		Details:    map[string]any{"quantity": quantity.String()},
	}
}

// NewConcurrentModification is returned once optimistic retries are exhausted.
func NewConcurrentModification(entity string, id any, attempts int) *AppError {
	return &AppError{
		Code:       CodeConcurrentModification,
		Message:    "record was modified concurrently, please retry",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "id": id, "attempts": attempts},
	}
}

// NewValidation creates a validation error (400).
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewDuplicate creates a duplicate entry error (409).
func NewDuplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:       CodeDuplicate,
		Message:    fmt.Sprintf("%s with this %s already exists", entity, field),
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"entity": entity, "field": field, "value": value},
	}
}

// NewInternal hides the cause from clients.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// AsAppError extracts AppError from error chain.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error.
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok && appErr.HTTPStatus != 0 {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsNotFound checks if error is CodeNotFound.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
