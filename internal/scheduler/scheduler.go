package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/config"
	"github.com/mamadbah2/stockledger/internal/domain/models"
	"github.com/mamadbah2/stockledger/internal/service/reporting"
	"github.com/mamadbah2/stockledger/internal/service/whatsapp"
)

// Scheduler runs the daily stock sweep.
type Scheduler struct {
	cron         *cron.Cron
	schedule     string
	reportingSvc *reporting.Service
	messagingSvc whatsapp.MessagingService
	alertTo      string
	now          func() time.Time
	logger       *zap.Logger
}

// NewScheduler creates a scheduler evaluating cfg.CronSchedule in cfg.Timezone.
func NewScheduler(cfg config.AlertsConfig, alertTo string, reportingSvc *reporting.Service, messagingSvc whatsapp.MessagingService, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %s: %w", cfg.Timezone, err)
	}

	c := cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cron.DiscardLogger), cron.SkipIfStillRunning(cron.DiscardLogger)),
	)

	return &Scheduler{
		cron:         c,
		schedule:     cfg.CronSchedule,
		reportingSvc: reportingSvc,
		messagingSvc: messagingSvc,
		alertTo:      alertTo,
		now:          func() time.Time { return time.Now().In(loc) },
		logger:       logger,
	}, nil
}

// Start registers the sweep and starts the cron loop.
func (s *Scheduler) Start() error {
	s.logger.Info("starting scheduler", zap.String("schedule", s.schedule))

	if _, err := s.cron.AddFunc(s.schedule, func() { s.RunSweep(context.Background()) }); err != nil {
		return fmt.Errorf("schedule stock sweep %q: %w", s.schedule, err)
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler and waits for a running sweep.
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	<-s.cron.Stop().Done()
}

// RunSweep refreshes derived flags and sends the stock alert.
func (s *Scheduler) RunSweep(ctx context.Context) {
	s.logger.Info("running stock sweep")
	ctx, cancel := context.WithTimeout(ctx, 2*time.Minute)
	defer cancel()

	refreshed, err := s.reportingSvc.RefreshAll(ctx)
	if err != nil {
		s.logger.Error("failed to refresh stock records", zap.Error(err))
	}

	alert, err := s.reportingSvc.BuildStockAlert(ctx, s.now())
	if err != nil {
		s.logger.Error("failed to build stock alert", zap.Error(err))
		return
	}
	if alert.Empty() {
		s.logger.Info("stock sweep finished, nothing to report", zap.Int("refreshed", refreshed))
		return
	}

	req := models.OutboundMessageRequest{
		To:      s.alertTo,
		Message: reporting.FormatStockAlert(alert),
	}

	if err := s.messagingSvc.SendOutbound(ctx, req); err != nil {
		s.logger.Error("failed to send stock alert", zap.Error(err))
	} else {
		s.logger.Info("stock alert sent",
			zap.Int("refreshed", refreshed),
			zap.Int("low_stock", len(alert.LowStock)),
			zap.Int("expired", len(alert.Expired)))
	}
}
