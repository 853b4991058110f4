package alarms

import (
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/engine"
	"github.com/oshokin/warehouse-alarms/internal/lifecycle"
	"github.com/oshokin/warehouse-alarms/internal/scheduler"
	"github.com/oshokin/warehouse-alarms/internal/source"
)

// Feed ordering accepted by the order query parameter.
const (
	OrderSeverity = "severity"
	OrderSource   = "source"
)

const contentTypeMsgpack = "application/msgpack"

// response is the success envelope.
type response struct {
	// Success is always true here, failures go through ErrorHandler.
	Success bool `json:"success" msgpack:"success"`
	// Data is the payload.
	Data any `json:"data" msgpack:"data"`
	// Error is the last cycle error, the data is still the last good feed.
	Error string `json:"error,omitempty" msgpack:"error,omitempty"`
	// Status describes the cycle the data came from.
	Status *engine.Status `json:"status,omitempty" msgpack:"-"`
}

// Handler serves the alarm endpoints.
type Handler struct {
	feed     Feed
	trigger  Trigger
	history  HistoryFetcher
	sources  map[string]config.SourceConfig
	gatherer prometheus.Gatherer
	now      func() time.Time
}

// NewHandler creates a handler.
func NewHandler(deps *Dependencies) *Handler {
	h := &Handler{
		feed:     deps.Feed,
		trigger:  deps.Trigger,
		history:  deps.History,
		sources:  make(map[string]config.SourceConfig, len(deps.Sources)),
		gatherer: deps.Gatherer,
		now:      deps.Now,
	}

	for _, s := range deps.Sources {
		h.sources[s.ID] = s
	}

	if h.gatherer == nil {
		h.gatherer = prometheus.DefaultGatherer
	}

	if h.now == nil {
		h.now = time.Now
	}

	return h
}

// HandleActive returns the active feed, optionally filtered by component.
func (h *Handler) HandleActive(c echo.Context) error {
	alarms, status, err := h.activeFeed(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response{
		Success: true,
		Data:    alarms,
		Error:   status.Error,
		Status:  &status,
	})
}

// HandleActiveMsgpack returns the active feed encoded as MessagePack.
func (h *Handler) HandleActiveMsgpack(c echo.Context) error {
	alarms, status, err := h.activeFeed(c)
	if err != nil {
		return err
	}

	data, err := msgpack.Marshal(response{Success: true, Data: alarms, Error: status.Error})
	if err != nil {
		return newInternalError("failed to encode msgpack", err)
	}

	return c.Blob(http.StatusOK, contentTypeMsgpack, data)
}

// HandleResolved returns the resolved history.
func (h *Handler) HandleResolved(c echo.Context) error {
	return c.JSON(http.StatusOK, response{Success: true, Data: h.feed.Resolved()})
}

// HandleHistory proxies the backing-store history of one source.
func (h *Handler) HandleHistory(c echo.Context) error {
	history, err := h.fetchHistory(c)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, response{Success: true, Data: history})
}

// HandleHistoryExport renders the backing-store history of one source as XLSX.
func (h *Handler) HandleHistoryExport(c echo.Context) error {
	history, err := h.fetchHistory(c)
	if err != nil {
		return err
	}

	data, err := BuildHistoryXLSX(c.Param("source"), history)
	if err != nil {
		return newInternalError("failed to render xlsx", err)
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="`+c.Param("source")+`-history.xlsx"`)

	return c.Blob(http.StatusOK, contentTypeXLSX, data)
}

// HandleAcknowledge acknowledges an active alarm.
func (h *Handler) HandleAcknowledge(c echo.Context) error {
	id, err := alarmID(c)
	if err != nil {
		return err
	}

	acknowledged, err := h.feed.Acknowledge(c.Request().Context(), id)
	if err != nil {
		return actionError(id, err)
	}

	return c.JSON(http.StatusOK, response{Success: true, Data: acknowledged})
}

// HandleResolve resolves an active alarm by operator action.
func (h *Handler) HandleResolve(c echo.Context) error {
	id, err := alarmID(c)
	if err != nil {
		return err
	}

	resolved, err := h.feed.Resolve(c.Request().Context(), id)
	if err != nil {
		return actionError(id, err)
	}

	return c.JSON(http.StatusOK, response{Success: true, Data: resolved})
}

// HandleRefresh runs a cycle now and returns the new feed.
func (h *Handler) HandleRefresh(c echo.Context) error {
	if h.trigger == nil {
		return newNotFoundError("endpoint", c.Path())
	}

	if err := h.trigger.TriggerNow(c.Request().Context()); err != nil {
		if errors.Is(err, scheduler.ErrCycleInFlight) {
			return newConflictError("a polling cycle is already in flight")
		}

		return newInternalError("refresh failed", err)
	}

	return h.HandleActive(c)
}

// HandleStatus returns the latest cycle status.
func (h *Handler) HandleStatus(c echo.Context) error {
	return c.JSON(http.StatusOK, response{Success: true, Data: h.feed.Status()})
}

// HandleHealth reports whether the pipeline produced a usable feed.
func (h *Handler) HandleHealth(c echo.Context) error {
	if !h.feed.Status().Healthy() {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
	}

	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// activeFeed applies the component filter and the requested order.
func (h *Handler) activeFeed(c echo.Context) ([]alarm.Alarm, engine.Status, error) {
	order := c.QueryParam("order")
	if order == "" {
		order = OrderSeverity
	}

	if order != OrderSeverity && order != OrderSource {
		return nil, engine.Status{}, newBadRequestError("order must be severity or source")
	}

	status := h.feed.Status()
	alarms := alarm.FilterByComponent(h.feed.Active(), c.QueryParam("component"))

	if order == OrderSeverity {
		alarms = append([]alarm.Alarm(nil), alarms...)
		alarm.SortBySeverity(alarms)
	}

	return alarms, status, nil
}

// fetchHistory looks up the source and reads its history.
func (h *Handler) fetchHistory(c echo.Context) ([]alarm.Alarm, error) {
	sourceID := c.Param("source")

	cfg, ok := h.sources[sourceID]
	if !ok || cfg.HistoryPath == "" || h.history == nil {
		return nil, newNotFoundError("history", sourceID)
	}

	raw, err := h.history.FetchHistory(c.Request().Context(), cfg.BaseURL, cfg.HistoryPath)
	if err != nil {
		return nil, newBadGatewayError("history unavailable", err)
	}

	return source.NormalizeHistory(cfg, raw, h.now()), nil
}

func alarmID(c echo.Context) (string, error) {
	id, err := url.PathUnescape(c.Param("id"))
	if err != nil || id == "" {
		return "", newBadRequestError("invalid alarm id")
	}

	return id, nil
}

func actionError(id string, err error) error {
	if errors.Is(err, lifecycle.ErrNotFound) {
		return newNotFoundError("alarm", id)
	}

	return newInternalError("action failed", err)
}
