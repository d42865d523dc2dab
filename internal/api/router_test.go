package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/printfarm/internal/api/middleware"
	"github.com/orrn/printfarm/internal/config"
	"github.com/orrn/printfarm/internal/core"
	"github.com/orrn/printfarm/internal/db"
	"github.com/orrn/printfarm/internal/live"
	"github.com/orrn/printfarm/internal/logging"
	"github.com/orrn/printfarm/internal/notify"
)

func init() {
	gin.SetMode(gin.TestMode)
	logging.Discard()
}

type testServer struct {
	t      *testing.T
	store  *db.Store
	router *gin.Engine
}

func newTestServer(t *testing.T, limiter gin.HandlerFunc) *testServer {
	t.Helper()
	return newTestServerWithAuth(t, limiter, false)
}

func newTestServerWithAuth(t *testing.T, limiter gin.HandlerFunc, authEnabled bool) *testServer {
	t.Helper()
	ctx := context.Background()

	conn, err := db.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	store := db.NewStore(conn)

	cfg := config.Default()
	hub := live.NewHub()
	hub.Start()
	t.Cleanup(hub.Stop)

	auth, err := middleware.NewAuthMiddleware(ctx, store, authEnabled)
	require.NoError(t, err)

	router := NewRouter(Services{
		Config:         cfg,
		Store:          store,
		Registry:       core.NewRegistry(store),
		Queue:          core.NewQueue(store, core.NewStoreApprovals(store), nil),
		Jobs:           core.NewJobs(store, nil, cfg.Jobs.EstimatedTimeBuffer),
		Tracker:        core.NewTracker(store, nil, nil).UseBroadcaster(hub),
		Hub:            hub,
		Webhooks:       notify.NewWebhookSink(store, time.Second),
		Auth:           auth,
		MetricsLimiter: limiter,
	})
	return &testServer{t: t, store: store, router: router}
}

func (s *testServer) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), v), w.Body.String())
}

func (s *testServer) approvedModel(userID int64) int64 {
	s.t.Helper()
	ctx := context.Background()
	m := &db.CustomerModel{UserID: userID, OriginalName: "bracket.stl"}
	require.NoError(s.t, s.store.CustomerModels.CreateCustomerModel(ctx, m))
	require.NoError(s.t, s.store.CustomerModels.UpdateCustomerModelStatus(ctx, m.ID, "approved"))
	return m.ID
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	w := s.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPrinterEndpoints(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPost, "/api/v1/printers", gin.H{"name": "Bay 1"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, "/api/v1/printers", gin.H{
		"name":         "Bay 1",
		"model":        "Prusa MK4",
		"capabilities": gin.H{"material": []string{"PLA", "PETG"}, "build_height": 250},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var printer db.Printer
	decode(t, w, &printer)
	assert.Equal(t, "available", printer.Status)

	w = s.do(http.MethodPost, "/api/v1/printers/compatible", gin.H{"material": "PETG", "build_height": 200})
	require.Equal(t, http.StatusOK, w.Code)
	var found []db.Printer
	decode(t, w, &found)
	require.Len(t, found, 1)
	assert.Equal(t, printer.ID, found[0].ID)

	w = s.do(http.MethodPut, "/api/v1/printers/1/status", gin.H{"status": "busy"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/api/v1/printers/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	var apiErr struct{ Error string }
	decode(t, w, &apiErr)
	assert.Equal(t, "printer_not_found", apiErr.Error)

	w = s.do(http.MethodGet, "/api/v1/printers/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestQueueToJobFlow(t *testing.T) {
	s := newTestServer(t, nil)
	model := s.approvedModel(7)

	w := s.do(http.MethodPost, "/api/v1/queue", gin.H{"model_id": model, "user_id": 8})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = s.do(http.MethodPost, "/api/v1/queue", gin.H{
		"model_id":       model,
		"user_id":        7,
		"priority":       8,
		"print_settings": gin.H{"estimated_print_time_hours": 2},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry db.QueueEntry
	decode(t, w, &entry)

	w = s.do(http.MethodPost, "/api/v1/printers", gin.H{"name": "Bay 1", "model": "MK4"})
	require.Equal(t, http.StatusCreated, w.Code)
	var printer db.Printer
	decode(t, w, &printer)

	w = s.do(http.MethodPost, "/api/v1/jobs", gin.H{"queue_id": entry.ID, "printer_id": printer.ID})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var job db.PrintJob
	decode(t, w, &job)
	assert.Equal(t, "pending", job.Status)

	w = s.do(http.MethodPost, "/api/v1/jobs", gin.H{"queue_id": entry.ID, "printer_id": printer.ID})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodPut, "/api/v1/jobs/"+itoa(job.ID)+"/status", gin.H{"status": "completed"})
	assert.Equal(t, http.StatusConflict, w.Code)

	for _, status := range []string{"preparing", "printing", "completed"} {
		w = s.do(http.MethodPut, "/api/v1/jobs/"+itoa(job.ID)+"/status", gin.H{"status": status})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	decode(t, w, &job)
	assert.Equal(t, 100.0, job.Progress)

	w = s.do(http.MethodGet, "/api/v1/printers/"+itoa(printer.ID), nil)
	decode(t, w, &printer)
	assert.Equal(t, "available", printer.Status)
	assert.Nil(t, printer.CurrentJobID)

	w = s.do(http.MethodGet, "/api/v1/queue/"+itoa(entry.ID)+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var history []db.QueueHistoryEvent
	decode(t, w, &history)
	assert.Len(t, history, 2)

	w = s.do(http.MethodDelete, "/api/v1/queue/"+itoa(entry.ID), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestUpdatePriorityClampsEveryValue(t *testing.T) {
	s := newTestServer(t, nil)
	model := s.approvedModel(7)

	w := s.do(http.MethodPost, "/api/v1/queue", gin.H{"model_id": model, "user_id": 7, "priority": 5})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var entry db.QueueEntry
	decode(t, w, &entry)

	cases := []struct {
		in   int
		want int
	}{
		{0, core.MinPriority},
		{-5, core.MinPriority},
		{42, core.MaxPriority},
		{3, 3},
	}
	for _, tc := range cases {
		w = s.do(http.MethodPut, "/api/v1/queue/"+itoa(entry.ID)+"/priority", gin.H{"priority": tc.in})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		decode(t, w, &entry)
		assert.Equal(t, tc.want, entry.Priority, "priority %d", tc.in)
	}

	w = s.do(http.MethodPut, "/api/v1/queue/"+itoa(entry.ID)+"/priority", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatusEndpoints(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	limiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		RedisClient: client,
		Limit:       2,
		Window:      time.Minute,
	})

	s := newTestServer(t, limiter)
	model := s.approvedModel(7)
	w := s.do(http.MethodPost, "/api/v1/queue", gin.H{"model_id": model, "user_id": 7})
	require.Equal(t, http.StatusCreated, w.Code)
	var entry db.QueueEntry
	decode(t, w, &entry)

	w = s.do(http.MethodPost, "/api/v1/status", gin.H{
		"order_id":                 1001,
		"product_id":               1,
		"queue_id":                 entry.ID,
		"total_print_time_seconds": 3600,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record db.StatusRecord
	decode(t, w, &record)
	base := "/api/v1/status/" + itoa(record.ID)

	w = s.do(http.MethodPut, base+"/status", gin.H{"status": "printing", "progress": 10})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPost, base+"/metrics", gin.H{"fan_speed_percentage": 140})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodPost, base+"/metrics", gin.H{
		"current_layer":                50,
		"total_layers":                 100,
		"print_time_remaining_seconds": 1800,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	w = s.do(http.MethodPost, base+"/metrics", gin.H{"hotend_temp": 215})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	w = s.do(http.MethodGet, base+"/live", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snap core.LiveStatus
	decode(t, w, &snap)
	assert.Equal(t, 50.0, snap.Progress)
	assert.Equal(t, "printing", snap.Status)

	w = s.do(http.MethodPost, base+"/messages", gin.H{"message": "Swapped spool", "type": "bogus"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, base+"/messages", gin.H{"message": "Swapped spool"})
	assert.Equal(t, http.StatusCreated, w.Code)

	w = s.do(http.MethodPut, base+"/status", gin.H{"status": "completed"})
	require.Equal(t, http.StatusOK, w.Code)
	w = s.do(http.MethodPost, base+"/reset", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = s.do(http.MethodGet, base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detailed core.DetailedStatus
	decode(t, w, &detailed)
	assert.Equal(t, 100.0, detailed.Record.ProgressPercentage)
	assert.NotEmpty(t, detailed.Updates)

	w = s.do(http.MethodGet, "/api/v1/status/order/1001", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var byOrder []db.StatusRecord
	decode(t, w, &byOrder)
	assert.Len(t, byOrder, 1)

	w = s.do(http.MethodGet, "/api/v1/status/completed", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var completed []db.StatusRecord
	decode(t, w, &completed)
	assert.Len(t, completed, 1)
}

func TestSettingsWebhooksAndPreferences(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(http.MethodPut, "/api/v1/settings", gin.H{"estimated_time_buffer": -5})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPut, "/api/v1/settings", gin.H{"estimated_time_buffer": 25})
	require.Equal(t, http.StatusOK, w.Code)
	var settings struct {
		EstimatedTimeBuffer float64 `json:"estimated_time_buffer"`
	}
	decode(t, w, &settings)
	assert.Equal(t, 25.0, settings.EstimatedTimeBuffer)

	w = s.do(http.MethodPost, "/api/v1/webhooks", gin.H{"name": "ops", "url": "http://example.com/hook", "events": []string{"printer.exploded"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = s.do(http.MethodPost, "/api/v1/webhooks", gin.H{"name": "ops", "url": "http://example.com/hook", "secret": "x", "events": []string{notify.EventJobStatusChanged}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	w = s.do(http.MethodGet, "/api/v1/webhooks", nil)
	var hooks []map[string]interface{}
	decode(t, w, &hooks)
	require.Len(t, hooks, 1)
	assert.Equal(t, true, hooks[0]["has_secret"])
	assert.NotContains(t, hooks[0], "secret")

	w = s.do(http.MethodGet, "/api/v1/preferences/7", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var prefs db.NotificationPreferences
	decode(t, w, &prefs)
	assert.Equal(t, 25, prefs.ProgressInterval)

	w = s.do(http.MethodPut, "/api/v1/preferences/7", gin.H{"progress_interval": 50, "notify_on_progress": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = s.do(http.MethodGet, "/api/v1/preferences/7", nil)
	decode(t, w, &prefs)
	assert.Equal(t, 50, prefs.ProgressInterval)
	assert.True(t, prefs.NotifyOnProgress)
	assert.True(t, prefs.NotifyOnStart)

	w = s.do(http.MethodPut, "/api/v1/preferences/7", gin.H{"progress_interval": 101})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMutatingRoutesRequireAuth(t *testing.T) {
	s := newTestServerWithAuth(t, nil, true)

	w := s.do(http.MethodPut, "/api/v1/preferences/7", gin.H{"notify_on_start": false})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodGet, "/api/v1/live", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(http.MethodPost, "/api/v1/printers", gin.H{"name": "Bay 1", "model": "MK4"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = s.do(http.MethodGet, "/api/v1/preferences/7", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(http.MethodPost, "/api/v1/auth/setup", gin.H{"password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var login middleware.LoginResponse
	decode(t, w, &login)
	require.NotEmpty(t, login.Token)

	req := httptest.NewRequest(http.MethodPut, "/api/v1/preferences/7", bytes.NewBufferString(`{"notify_on_start":false}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+login.Token)
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var prefs db.NotificationPreferences
	decode(t, w, &prefs)
	assert.False(t, prefs.NotifyOnStart)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
