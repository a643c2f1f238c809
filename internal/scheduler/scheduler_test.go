package scheduler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mamadbah2/stockledger/internal/config"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/repository/memory"
	"github.com/mamadbah2/stockledger/internal/service/reporting"
	"github.com/mamadbah2/stockledger/internal/service/stock"
)

type captureMessenger struct {
	sent []models.OutboundMessageRequest
}

func (c *captureMessenger) SendOutbound(_ context.Context, req models.OutboundMessageRequest) error {
	c.sent = append(c.sent, req)
	return nil
}

func newTestScheduler(t *testing.T, msg *captureMessenger) (*Scheduler, *stock.Engine) {
	t.Helper()
	e := stock.NewEngine(memory.NewRepository(), nil)
	s, err := NewScheduler(config.AlertsConfig{CronSchedule: "0 7 * * *", Timezone: "UTC"}, "224600", reporting.NewService(e, nil), msg, nil)
	require.NoError(t, err)
	return s, e
}

func TestRunSweepSendsAlert(t *testing.T) {
	msg := &captureMessenger{}
	s, e := newTestScheduler(t, msg)

	_, err := e.CreateStock(context.Background(), stock.NewStock{Product: "Sugar", Unit: models.UnitKg, OpeningStock: models.Qty(1), MinimumStock: models.Qty(5)})
	require.NoError(t, err)

	s.RunSweep(context.Background())
	require.Len(t, msg.sent, 1)
	assert.Equal(t, "224600", msg.sent[0].To)
	assert.Contains(t, msg.sent[0].Message, "Sugar")
}

func TestRunSweepStaysQuietWhenHealthy(t *testing.T) {
	msg := &captureMessenger{}
	s, e := newTestScheduler(t, msg)

	_, err := e.CreateStock(context.Background(), stock.NewStock{Product: "Rice", Unit: models.UnitKg, OpeningStock: models.Qty(100), MinimumStock: models.Qty(5)})
	require.NoError(t, err)

	s.RunSweep(context.Background())
	assert.Empty(t, msg.sent)
}

func TestSchedulerConfigErrors(t *testing.T) {
	_, err := NewScheduler(config.AlertsConfig{CronSchedule: "0 7 * * *", Timezone: "Mars/Olympus"}, "", nil, nil, nil)
	assert.Error(t, err)

	s, err := NewScheduler(config.AlertsConfig{CronSchedule: "not a cron", Timezone: "UTC"}, "", nil, nil, nil)
	require.NoError(t, err)
	assert.Error(t, s.Start())

	ok, err := NewScheduler(config.AlertsConfig{CronSchedule: "0 7 * * *", Timezone: "UTC"}, "", nil, nil, nil)
	require.NoError(t, err)
	require.NoError(t, ok.Start())
	ok.Stop()
}
