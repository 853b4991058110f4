package alarms

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/engine"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/lifecycle"
	"github.com/oshokin/warehouse-alarms/internal/logger"
)

// Feed is the alarm state the handlers read and mutate.
type Feed interface {
	Active() []alarm.Alarm
	Resolved() []lifecycle.ResolvedAlarm
	Status() engine.Status
	Acknowledge(ctx context.Context, id string) (alarm.Alarm, error)
	Resolve(ctx context.Context, id string) (alarm.Alarm, error)
}

// Trigger starts a cycle on demand.
type Trigger interface {
	TriggerNow(ctx context.Context) error
}

// HistoryFetcher reads the backing-store history.
type HistoryFetcher interface {
	FetchHistory(ctx context.Context, baseURL, path string) ([]gateway.RawAlarm, error)
}

// Dependencies holds all handler dependencies.
type Dependencies struct {
	// Feed is required.
	Feed Feed
	// Trigger enables the refresh endpoint.
	Trigger Trigger
	// History enables the history endpoints.
	History HistoryFetcher
	// Sources are used to look up history endpoints.
	Sources []config.SourceConfig
	// Gatherer backs the metrics endpoint. Defaults to the global registry.
	Gatherer prometheus.Gatherer
	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

// NewServer creates an echo instance with all routes registered.
func NewServer(ctx context.Context, deps *Dependencies) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = ErrorHandler

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:      true,
		LogStatus:   true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			logger.DebugKV(ctx, "http request",
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"latency", v.Latency.String(),
			)

			return nil
		},
	}))

	RegisterRoutes(e, NewHandler(deps))

	return e
}

// RegisterRoutes registers all routes on e.
func RegisterRoutes(e *echo.Echo, h *Handler) {
	e.GET("/health", h.HandleHealth)
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{})))

	api := e.Group("/api")
	api.GET("/status", h.HandleStatus)

	group := api.Group("/alarms")
	group.GET("", h.HandleActive)
	group.GET("/resolved", h.HandleResolved)
	group.GET("/history/:source", h.HandleHistory)
	group.GET("/history/:source/export.xlsx", h.HandleHistoryExport)
	group.POST("/refresh", h.HandleRefresh)
	group.POST("/:id/ack", h.HandleAcknowledge)
	group.POST("/:id/resolve", h.HandleResolve)

	api.GET("/alarms.msgpack", h.HandleActiveMsgpack)
}
