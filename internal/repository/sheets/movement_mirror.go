package sheets

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"google.golang.org/api/option"
	sheetsapi "google.golang.org/api/sheets/v4"

	"github.com/mamadbah2/stockledger/internal/config"
	"github.com/mamadbah2/stockledger/internal/domain/models"
)

const (
	movementsRange = "Movements!A:I"
	dateTimeLayout = "2006-01-02 15:04:05"
)

// RowAppender appends one row to a sheet range.
type RowAppender interface {
	AppendRow(ctx context.Context, sheetRange string, values []interface{}) error
}

// GoogleSheetAppender implements RowAppender using the official Google Sheets API.
type GoogleSheetAppender struct {
	service       *sheetsapi.Service
	spreadsheetID string
}

// NewGoogleSheetAppender builds a Google Sheets backed appender.
func NewGoogleSheetAppender(ctx context.Context, cfg config.SheetsConfig) (*GoogleSheetAppender, error) {
	service, err := sheetsapi.NewService(ctx, option.WithCredentialsFile(cfg.CredentialsPath), option.WithScopes(sheetsapi.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sheets client: %w", err)
	}
	return &GoogleSheetAppender{service: service, spreadsheetID: cfg.SpreadsheetID}, nil
}

// AppendRow appends the provided values to the supplied sheet range.
func (a *GoogleSheetAppender) AppendRow(ctx context.Context, sheetRange string, values []interface{}) error {
	if sheetRange == "" {
		return fmt.Errorf("sheetRange must not be empty")
	}

	payload := &sheetsapi.ValueRange{Values: [][]interface{}{values}}
	call := a.service.Spreadsheets.Values.Append(a.spreadsheetID, sheetRange, payload).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx)

	if _, err := call.Do(); err != nil {
		return fmt.Errorf("append row into range %s: %w", sheetRange, err)
	}
	return nil
}

// MovementMirror copies every committed movement into a spreadsheet so the
// back office can audit stock without database access. Failures are logged only.
type MovementMirror struct {
	appender RowAppender
	timeout  time.Duration
	logger   *zap.Logger
}

// NewMovementMirror wires a mirror on top of an appender.
func NewMovementMirror(appender RowAppender, logger *zap.Logger) *MovementMirror {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MovementMirror{appender: appender, timeout: 10 * time.Second, logger: logger}
}

// MovementRecorded appends the movement as one row.
func (m *MovementMirror) MovementRecorded(ctx context.Context, rec *models.StockRecord, mv models.Movement) {
	if m == nil || m.appender == nil || rec == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.timeout)
	defer cancel()

	values := []interface{}{
		mv.CreatedAt.Format(dateTimeLayout),
		rec.ID.Hex(),
		rec.Product,
		string(rec.Unit),
		string(mv.Type),
		mv.SignedQuantity().String(),
		mv.Reference,
		mv.AgentID,
		mv.Notes,
	}
	if err := m.appender.AppendRow(ctx, movementsRange, values); err != nil {
		m.logger.Warn("failed to mirror movement",
			zap.String("stock_id", rec.ID.Hex()),
			zap.String("type", string(mv.Type)),
			zap.Error(err))
		return
	}
	m.logger.Debug("movement mirrored", zap.String("stock_id", rec.ID.Hex()), zap.String("type", string(mv.Type)))
}
