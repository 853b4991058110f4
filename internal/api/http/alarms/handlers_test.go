package alarms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"
	"github.com/xuri/excelize/v2"

	"github.com/oshokin/warehouse-alarms/internal/config"
	"github.com/oshokin/warehouse-alarms/internal/domain/alarm"
	"github.com/oshokin/warehouse-alarms/internal/engine"
	"github.com/oshokin/warehouse-alarms/internal/gateway"
	"github.com/oshokin/warehouse-alarms/internal/lifecycle"
	"github.com/oshokin/warehouse-alarms/internal/scheduler"
)

var (
	errStore   = errors.New("store down")
	errBackend = errors.New("backend down")
)

var fixedNow = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// fakeFeed serves a fixed feed through a real tracker.
type fakeFeed struct {
	tracker *lifecycle.Tracker
	status  engine.Status
}

func newFakeFeed(alarms ...alarm.Alarm) *fakeFeed {
	tracker := lifecycle.New()
	tracker.Reconcile(context.Background(), alarms)

	return &fakeFeed{
		tracker: tracker,
		status:  engine.Status{CycleID: "c-1", Completed: true, Sources: []engine.SourceStatus{{ID: "ct"}}},
	}
}

func (f *fakeFeed) Active() []alarm.Alarm               { return f.tracker.Active() }
func (f *fakeFeed) Resolved() []lifecycle.ResolvedAlarm { return f.tracker.Resolved() }
func (f *fakeFeed) Status() engine.Status               { return f.status }

func (f *fakeFeed) Acknowledge(ctx context.Context, id string) (alarm.Alarm, error) {
	return f.tracker.Acknowledge(ctx, id)
}

func (f *fakeFeed) Resolve(ctx context.Context, id string) (alarm.Alarm, error) {
	return f.tracker.Resolve(ctx, id)
}

// fakeTrigger returns a canned error and counts calls.
type fakeTrigger struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (f *fakeTrigger) TriggerNow(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++

	return f.err
}

// fakeHistory returns canned history.
type fakeHistory struct {
	entries []gateway.RawAlarm
	err     error
}

func (f *fakeHistory) FetchHistory(context.Context, string, string) ([]gateway.RawAlarm, error) {
	return f.entries, f.err
}

func sampleAlarms() []alarm.Alarm {
	return []alarm.Alarm{
		{ID: "ct:ct_defecto_seta", Component: "Carro de transferencia", Severity: alarm.SeverityWarning},
		{ID: "tr1:E1", Component: "Transelevador 1", Severity: alarm.SeverityInfo},
		{ID: "ct:ct_defecto_telemetro", Component: "Carro de transferencia", Severity: alarm.SeverityCritical},
	}
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   json.RawMessage `json:"error"`
}

func newTestServer(feed Feed, trigger Trigger, history HistoryFetcher) *echo.Echo {
	return NewServer(context.Background(), &Dependencies{
		Feed:    feed,
		Trigger: trigger,
		History: history,
		Sources: []config.SourceConfig{
			{ID: "tr1", Name: "Transelevador 1", Component: "Transelevador 1", Severity: "warning", HistoryPath: "/api/tr1/history"},
			{ID: "ct", Name: "Carro de transferencia"},
		},
		Gatherer: prometheus.NewRegistry(),
		Now:      func() time.Time { return fixedNow },
	})
}

func do(t *testing.T, e *echo.Echo, method, target string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	return rec
}

func decodeAlarms(t *testing.T, rec *httptest.ResponseRecorder) []alarm.Alarm {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.True(t, env.Success)

	var alarms []alarm.Alarm
	require.NoError(t, json.Unmarshal(env.Data, &alarms))

	return alarms
}

func alarmIDs(alarms []alarm.Alarm) []string {
	ids := make([]string, 0, len(alarms))
	for _, a := range alarms {
		ids = append(ids, a.ID)
	}

	return ids
}

// TestHandleActive covers ordering and component filtering.
func TestHandleActive(t *testing.T) {
	t.Parallel()

	e := newTestServer(newFakeFeed(sampleAlarms()...), nil, nil)

	rec := do(t, e, http.MethodGet, "/api/alarms")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"ct:ct_defecto_telemetro", "ct:ct_defecto_seta", "tr1:E1"}, alarmIDs(decodeAlarms(t, rec)))

	rec = do(t, e, http.MethodGet, "/api/alarms?order=source")
	require.Equal(t, []string{"ct:ct_defecto_seta", "tr1:E1", "ct:ct_defecto_telemetro"}, alarmIDs(decodeAlarms(t, rec)))

	rec = do(t, e, http.MethodGet, "/api/alarms?component=Transelevador%201")
	require.Equal(t, []string{"tr1:E1"}, alarmIDs(decodeAlarms(t, rec)))

	rec = do(t, e, http.MethodGet, "/api/alarms?order=random")
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

// TestHandleActive_ReportsCycleError keeps serving the last feed with the error.
func TestHandleActive_ReportsCycleError(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed(sampleAlarms()...)
	feed.status.Error = "fetch: aggregate: context deadline exceeded"

	rec := do(t, newTestServer(feed, nil, nil), http.MethodGet, "/api/alarms")
	require.Equal(t, http.StatusOK, rec.Code)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	require.JSONEq(t, `"fetch: aggregate: context deadline exceeded"`, string(env.Error))
	require.Len(t, decodeAlarms(t, rec), 3)
}

// TestHandleActiveMsgpack encodes the same feed as MessagePack.
func TestHandleActiveMsgpack(t *testing.T) {
	t.Parallel()

	rec := do(t, newTestServer(newFakeFeed(sampleAlarms()...), nil, nil), http.MethodGet, "/api/alarms.msgpack?order=source")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, contentTypeMsgpack, rec.Header().Get(echo.HeaderContentType))

	var decoded struct {
		Success bool          `msgpack:"success"`
		Data    []alarm.Alarm `msgpack:"data"`
	}
	require.NoError(t, msgpack.Unmarshal(rec.Body.Bytes(), &decoded))
	require.True(t, decoded.Success)
	require.Equal(t, []string{"ct:ct_defecto_seta", "tr1:E1", "ct:ct_defecto_telemetro"}, alarmIDs(decoded.Data))
}

// TestActions covers acknowledge, resolve and unknown ids.
func TestActions(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed(sampleAlarms()...)
	e := newTestServer(feed, nil, nil)

	rec := do(t, e, http.MethodPost, "/api/alarms/ct:ct_defecto_seta/ack")
	require.Equal(t, http.StatusOK, rec.Code)

	got, err := feed.tracker.Get("ct:ct_defecto_seta")
	require.NoError(t, err)
	require.True(t, got.Acknowledged)

	rec = do(t, e, http.MethodPost, "/api/alarms/tr1%3AE1/resolve")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, feed.Active(), 2)

	rec = do(t, e, http.MethodGet, "/api/alarms/resolved")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"manual":true`)

	rec = do(t, e, http.MethodPost, "/api/alarms/nope/ack")
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "NOT_FOUND")

	failing := &fakeFeed{tracker: lifecycle.New(lifecycle.WithBackend(failingBackend{}))}
	failing.tracker.Reconcile(context.Background(), sampleAlarms())

	rec = do(t, newTestServer(failing, nil, nil), http.MethodPost, "/api/alarms/tr1:E1/ack")
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

type failingBackend struct{}

func (failingBackend) Acknowledge(context.Context, string) error { return errBackend }
func (failingBackend) Resolve(context.Context, string) error     { return errBackend }

// TestHandleRefresh maps an in-flight cycle to 409.
func TestHandleRefresh(t *testing.T) {
	t.Parallel()

	trigger := new(fakeTrigger)
	e := newTestServer(newFakeFeed(sampleAlarms()...), trigger, nil)

	rec := do(t, e, http.MethodPost, "/api/alarms/refresh")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, decodeAlarms(t, rec), 3)

	trigger.err = scheduler.ErrCycleInFlight
	rec = do(t, e, http.MethodPost, "/api/alarms/refresh")
	require.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, newTestServer(newFakeFeed(), nil, nil), http.MethodPost, "/api/alarms/refresh")
	require.Equal(t, http.StatusNotFound, rec.Code)
}

// TestHandleHistory normalizes store history and exports it.
func TestHandleHistory(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{entries: []gateway.RawAlarm{
		{"id": "E1", "message": "Fallo de motor", "timestamp": "2025-02-28T08:30:00Z", "active": false},
		{"id": "E2", "message": "Sobrecarga"},
	}}
	e := newTestServer(newFakeFeed(), nil, history)

	rec := do(t, e, http.MethodGet, "/api/alarms/history/tr1")
	require.Equal(t, http.StatusOK, rec.Code)

	alarms := decodeAlarms(t, rec)
	require.Equal(t, []string{"tr1:E1", "tr1:E2"}, alarmIDs(alarms))
	require.True(t, alarms[1].Timestamp.Equal(fixedNow))

	rec = do(t, e, http.MethodGet, "/api/alarms/history/tr1/export.xlsx")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, contentTypeXLSX, rec.Header().Get(echo.HeaderContentType))

	workbook, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)

	cell, err := workbook.GetCellValue(historySheet, "A4")
	require.NoError(t, err)
	require.Equal(t, "tr1:E1", cell)

	cell, err = workbook.GetCellValue(historySheet, "E5")
	require.NoError(t, err)
	require.Equal(t, "Sobrecarga", cell)
	require.NoError(t, workbook.Close())

	// Sources without a history endpoint and unknown sources.
	require.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/api/alarms/history/ct").Code)
	require.Equal(t, http.StatusNotFound, do(t, e, http.MethodGet, "/api/alarms/history/zz").Code)

	history.err = errStore
	require.Equal(t, http.StatusBadGateway, do(t, e, http.MethodGet, "/api/alarms/history/tr1").Code)
}

// TestOperationalEndpoints covers status, health and metrics.
func TestOperationalEndpoints(t *testing.T) {
	t.Parallel()

	feed := newFakeFeed()
	e := newTestServer(feed, nil, nil)

	rec := do(t, e, http.MethodGet, "/api/status")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"cycle_id":"c-1"`)

	require.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/health").Code)
	require.Equal(t, http.StatusOK, do(t, e, http.MethodGet, "/metrics").Code)

	unhealthy := newFakeFeed()
	unhealthy.status = engine.Status{}
	require.Equal(t, http.StatusServiceUnavailable, do(t, newTestServer(unhealthy, nil, nil), http.MethodGet, "/health").Code)
}
