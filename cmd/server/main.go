package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/cache"
	"github.com/mamadbah2/stockledger/internal/config"
	"github.com/mamadbah2/stockledger/internal/lock"
	"github.com/mamadbah2/stockledger/internal/repository"
	"github.com/mamadbah2/stockledger/internal/repository/memory"
	"github.com/mamadbah2/stockledger/internal/repository/mongodb"
	"github.com/mamadbah2/stockledger/internal/repository/sheets"
	"github.com/mamadbah2/stockledger/internal/scheduler"
	"github.com/mamadbah2/stockledger/internal/server/handlers"
	"github.com/mamadbah2/stockledger/internal/server/router"
	reportingsvc "github.com/mamadbah2/stockledger/internal/service/reporting"
	stocksvc "github.com/mamadbah2/stockledger/internal/service/stock"
	"github.com/mamadbah2/stockledger/internal/service/stocksync"
	summarysvc "github.com/mamadbah2/stockledger/internal/service/summary"
	whatsappsvc "github.com/mamadbah2/stockledger/internal/service/whatsapp"
	whatsappclient "github.com/mamadbah2/stockledger/pkg/clients/whatsapp"
	"github.com/mamadbah2/stockledger/pkg/logger"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		panic(err)
	}

	baseLogger := logger.Must(logger.New(cfg.Log.Level))
	defer func() { _ = baseLogger.Sync() }()

	zap.ReplaceGlobals(baseLogger)

	var (
		repo   repository.StockRepository
		pinger handlers.Pinger
	)
	switch cfg.Storage.Backend {
	case config.StoreMemory:
		repo = memory.NewRepository()
		baseLogger.Warn("using in-memory stock repository, data is lost on restart")
	default:
		mongoRepo, err := mongodb.NewStockRepository(context.Background(), cfg.MongoDB.URI, cfg.MongoDB.DBName, cfg.MongoDB.StockCollection, baseLogger.Named("repo.mongodb"))
		if err != nil {
			baseLogger.Fatal("failed to init mongodb repository", zap.Error(err))
		}
		defer func() {
			if err := mongoRepo.Close(context.Background()); err != nil {
				baseLogger.Error("failed to close mongodb connection", zap.Error(err))
			}
		}()
		repo = mongoRepo
		pinger = mongoRepo
	}

	var rdb *redis.Client
	if cfg.Cache.Backend == config.BackendRedis || cfg.Lock.Backend == config.BackendRedis {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			cancel()
			baseLogger.Fatal("failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		cancel()
		defer func() { _ = rdb.Close() }()
	}

	var summaryCache cache.SummaryCache
	switch cfg.Cache.Backend {
	case config.BackendRedis:
		summaryCache = cache.NewRedisCache(rdb, "stockledger:summary", cfg.Cache.TTL)
	case config.BackendNone:
		summaryCache = cache.NoopCache{}
	default:
		summaryCache = cache.NewMemoryCache(cfg.Cache.TTL)
	}

	var locker lock.Locker
	if cfg.Lock.Backend == config.BackendRedis {
		locker = lock.NewRedisLocker(rdb, cfg.Lock.TTL, baseLogger.Named("lock.redis"))
	} else {
		locker = lock.NewKeyedMutex()
	}

	opts := []stocksvc.Option{
		stocksvc.WithLocker(locker),
		stocksvc.WithSummaryCache(summaryCache),
		stocksvc.WithMaxRetries(cfg.Engine.MaxRetries),
	}
	if cfg.Sheets.Enabled() {
		appender, err := sheets.NewGoogleSheetAppender(context.Background(), cfg.Sheets)
		if err != nil {
			baseLogger.Fatal("failed to init sheets appender", zap.Error(err))
		}
		opts = append(opts, stocksvc.WithMovementObserver(sheets.NewMovementMirror(appender, baseLogger.Named("repo.sheets"))))
		baseLogger.Info("movement mirror enabled", zap.String("spreadsheet_id", cfg.Sheets.SpreadsheetID))
	}

	engine := stocksvc.NewEngine(repo, baseLogger.Named("svc.stock"), opts...)
	summarySvc := summarysvc.NewService(engine, summaryCache, baseLogger.Named("svc.summary"))
	syncer := stocksync.NewSyncer(engine, 30*time.Second, baseLogger.Named("svc.stocksync"))
	reportingSvc := reportingsvc.NewService(engine, baseLogger.Named("svc.reporting"))

	var messagingSvc whatsappsvc.MessagingService
	if cfg.WhatsApp.Enabled() {
		whatsClient := whatsappclient.NewClient(cfg.WhatsApp)
		messagingSvc = whatsappsvc.NewMetaWhatsAppService(cfg.WhatsApp, whatsClient, baseLogger.Named("svc.whatsapp"))
	} else {
		baseLogger.Warn("whatsapp credentials missing, stock alerts are only logged")
		messagingSvc = whatsappsvc.NewLogMessenger(baseLogger.Named("svc.alerts"))
	}

	sched, err := scheduler.NewScheduler(cfg.Alerts, cfg.WhatsApp.AlertTo, reportingSvc, messagingSvc, baseLogger.Named("scheduler"))
	if err != nil {
		baseLogger.Fatal("failed to init scheduler", zap.Error(err))
	}
	if err := sched.Start(); err != nil {
		baseLogger.Fatal("failed to start scheduler", zap.Error(err))
	}
	defer sched.Stop()

	httpEngine := router.New(router.Handlers{
		Stocks:  handlers.NewStockHandler(engine, baseLogger.Named("handlers.stock")),
		Reports: handlers.NewReportHandler(summarySvc, syncer, baseLogger.Named("handlers.reports")),
		Health:  pinger,
	}, baseLogger.Named("router"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      httpEngine,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 45 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		baseLogger.Info("server starting", zap.String("port", cfg.Server.Port), zap.String("storage", cfg.Storage.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			baseLogger.Fatal("http server crashed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	baseLogger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		baseLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
