package router

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mamadbah2/stockledger/internal/server/handlers"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// Handlers groups the adapters mounted on the engine.
type Handlers struct {
	Stocks  *handlers.StockHandler
	Reports *handlers.ReportHandler
	Health  handlers.Pinger
}

// New wires the Gin engine with required routes and middlewares.
func New(h Handlers, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	handlers.RegisterValidators()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestIDMiddleware())
	r.Use(zapLoggerMiddleware(logger))
	r.Use(handlers.ErrorMiddleware(logger))

	r.GET("/healthz", handlers.Health(h.Health))

	api := r.Group("/api")

	stocks := api.Group("/stocks")
	stocks.GET("", h.Stocks.List)
	stocks.POST("", h.Stocks.Create)
	stocks.GET("/:id", h.Stocks.Get)
	stocks.PUT("/:id", h.Stocks.Update)
	stocks.DELETE("/:id", h.Stocks.Delete)
	stocks.POST("/:id/adjust", h.Stocks.Adjust)
	stocks.POST("/:id/refresh", h.Stocks.Refresh)
	stocks.GET("/:id/movements", h.Stocks.Movements)
	stocks.POST("/:id/allocations", h.Stocks.Allocate)
	stocks.GET("/:id/agents/:agentId", h.Stocks.GetAgent)
	stocks.POST("/:id/agents/:agentId/deliveries", h.Stocks.Deliver)
	stocks.POST("/:id/agents/:agentId/complete", h.Stocks.Complete)
	stocks.POST("/:id/agents/:agentId/returns", h.Stocks.Return)

	reports := api.Group("/stock")
	reports.POST("/sync", h.Reports.Sync)
	reports.GET("/summary", h.Reports.StockSummary)
	reports.GET("/agents/summary", h.Reports.AgentSummary)

	if logger != nil {
		logger.Info("router initialized")
	}

	return r
}

// requestIDMiddleware propagates the caller's request id or mints one.
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("request_id", c.GetString(requestIDKey)),
		}
		if c.Writer.Status() >= 500 {
			logger.Error("request completed", fields...)
			return
		}
		logger.Info("request completed", fields...)
	}
}
