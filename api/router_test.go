package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quantforge/hft/config"
	"github.com/quantforge/hft/engine"
	"github.com/quantforge/hft/models"
	"github.com/quantforge/hft/notifications"
	"github.com/quantforge/hft/realtime"
	"github.com/quantforge/hft/risk"
	"github.com/quantforge/hft/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStore struct {
	store.DataStore
	statuses map[string]models.EngineStatus
	notifs   map[string][]models.Notification
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[string]models.EngineStatus), notifs: make(map[string][]models.Notification)}
}

func (s *fakeStore) SaveEngineStatus(tenant string, status models.EngineStatus) error {
	s.statuses[tenant] = status
	return nil
}

func (s *fakeStore) GetEngineStatus(tenant string, engineType models.EngineType, symbol string) (*models.EngineStatus, error) {
	st, ok := s.statuses[tenant]
	if !ok {
		return nil, assertNotFoundErr
	}
	return &st, nil
}

func (s *fakeStore) GetAllEngineStatuses(tenant string) ([]models.EngineStatus, error) {
	if st, ok := s.statuses[tenant]; ok {
		return []models.EngineStatus{st}, nil
	}
	return nil, nil
}

func (s *fakeStore) GetHFTExecutionLogs(tenant string, limit int) ([]store.ExecutionLogEntry, error) {
	return []store.ExecutionLogEntry{}, nil
}

func (s *fakeStore) SaveResearchLog(tenant string, result models.ResearchResult) error { return nil }
func (s *fakeStore) LogActivity(tenant, action, detail string) error                   { return nil }

func (s *fakeStore) SaveNotification(tenant string, n models.Notification) error {
	s.notifs[tenant] = append(s.notifs[tenant], n)
	return nil
}
func (s *fakeStore) GetNotifications(tenant string, limit, offset int) ([]models.Notification, error) {
	return s.notifs[tenant], nil
}
func (s *fakeStore) MarkNotificationRead(tenant, id string) error { return nil }
func (s *fakeStore) MarkAllNotificationsRead(tenant string) error {
	for i := range s.notifs[tenant] {
		s.notifs[tenant][i].IsRead = true
	}
	return nil
}

var assertNotFoundErr = assertErr("not found")

type assertErr string

func (e assertErr) Error() string { return string(e) }

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("TRADING_MODE", "dry_run")
	t.Setenv("API_KEY", "test-key")
	cfg, err := config.Load()
	require.NoError(t, err)
	return cfg
}

func newTestRouter(t *testing.T) (http.Handler, *engine.Manager) {
	t.Helper()
	riskMgr := risk.NewManager()
	t.Cleanup(riskMgr.Stop)
	bus := realtime.NewEventBus()
	fs := newFakeStore()
	manager := engine.NewManager(nil, riskMgr, fs, bus)
	notifier := notifications.NewManager(fs, bus)
	cfg := testConfig(t)
	return NewRouter(cfg, manager, fs, notifier, bus), manager
}

func authedRequest(method, path string, body interface{}) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("X-API-Key", "test-key")
	req.Header.Set("X-Tenant-ID", "alice")
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestRouter_HealthIsUnauthenticated(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRouter_ProtectedRouteRejectsMissingAPIKey(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hft/status", nil)
	req.Header.Set("X-Tenant-ID", "alice")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_ProtectedRouteRejectsMissingTenant(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/hft/status", nil)
	req.Header.Set("X-API-Key", "test-key")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_HFTStatus_NoEngineReportsFalse(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodGet, "/api/hft/status", nil))

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.False(t, body["hasEngine"].(bool))
}

func TestRouter_CreateEngineThenStartThenStatus(t *testing.T) {
	r, _ := newTestRouter(t)

	createBody := map[string]interface{}{
		"strategy": "market_making",
		"config": models.EngineConfig{
			Symbol: "BTC/USDT", QuoteSize: 0.01, AdversePct: 0.01, CancelMs: 1000,
			MaxPos: 1, MaxTradesPerDay: 100, Enabled: true,
		},
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/engine/create", createBody))
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/hft/start", map[string]interface{}{"symbol": "BTC/USDT", "interval_ms": 50}))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodGet, "/api/hft/status", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body["hasEngine"].(bool))
	assert.True(t, body["running"].(bool))
}

func TestRouter_CreateEngineRejectsInvalidConfig(t *testing.T) {
	r, _ := newTestRouter(t)
	body := map[string]interface{}{
		"strategy": "market_making",
		"config":   models.EngineConfig{Symbol: ""},
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/engine/create", body))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRouter_AutoTradeToggle_UnknownTenantReturnsNotFound(t *testing.T) {
	r, _ := newTestRouter(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPost, "/api/auto-trade/toggle", map[string]bool{"enabled": true}))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRouter_NotificationsRoundTrip(t *testing.T) {
	r, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodGet, "/api/notifications/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, authedRequest(http.MethodPut, "/api/notifications/read-all", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
