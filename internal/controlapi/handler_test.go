package controlapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"

	"sousvide_simulator/internal/device"
	"sousvide_simulator/internal/faults"
	"sousvide_simulator/internal/logger"
	"sousvide_simulator/internal/models"
	"sousvide_simulator/internal/physics"
)

// mockSessions records broadcast and disconnect calls from the handlers.
type mockSessions struct {
	mu          sync.Mutex
	broadcasts  int
	disconnects int
	lastCode    int
	count       int
}

func (m *mockSessions) BroadcastState() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.broadcasts++
}

func (m *mockSessions) DisconnectAll(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.disconnects++
	m.lastCode = code
	m.count = 0
}

func (m *mockSessions) SessionCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count
}

// mockMessages returns canned log entries.
type mockMessages struct {
	entries   []models.MessageLogEntry
	lastLimit int
	lastDir   string
}

func (m *mockMessages) Append(_ context.Context, e models.MessageLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func (m *mockMessages) Tail(_ context.Context, limit int, direction string) ([]models.MessageLogEntry, error) {
	m.lastLimit = limit
	m.lastDir = direction
	return m.entries, nil
}

type testEnv struct {
	dev      *device.Device
	injector *faults.Injector
	sessions *mockSessions
	messages *mockMessages
	router   *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	state := models.NewCookerState("anova sim-0000000000", "pro", "3.3.01", 22.0)
	dev := device.New(state,
		device.Limits{MinTempCelsius: 40, MaxTempCelsius: 100, MinTimerSeconds: 60, MaxTimerSeconds: 359940},
		physics.Params{AmbientTemp: 22, HeatingRate: 1, CoolingRate: 0.5, TempTolerance: 0.5},
		1.0,
	)
	sessions := &mockSessions{count: 2}
	injector := faults.New(dev, sessions, nil)
	messages := &mockMessages{}
	h := NewHandler(dev, injector, sessions, messages, logger.Get(logger.ErrorLevel))

	return &testEnv{
		dev:      dev,
		injector: injector,
		sessions: sessions,
		messages: messages,
		router:   h.InitRoutes(),
	}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("unmarshal %q: %v", w.Body.String(), err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp struct {
		Error string `json:"error"`
	}
	decode(t, w, &resp)
	return resp.Error
}

func TestReset(t *testing.T) {
	env := newTestEnv(t)
	if err := env.dev.Start(65.0, models.UnitCelsius, 3600); err != nil {
		t.Fatalf("start: %v", err)
	}

	w := env.do(t, http.MethodPost, "/reset", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status      string  `json:"status"`
		State       string  `json:"state"`
		Temperature float64 `json:"temperature"`
	}
	decode(t, w, &resp)
	if resp.Status != "reset" || resp.State != "IDLE" || resp.Temperature != 22.0 {
		t.Fatalf("response: %+v", resp)
	}
	// Reset is silent; protocol clients poll or wait for the next interval.
	if env.sessions.broadcasts != 0 {
		t.Fatalf("reset broadcast %d times", env.sessions.broadcasts)
	}
}

func TestSetState(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/set-state", gin.H{
		"state":           "cooking",
		"temperature":     64.5,
		"timer":           3600,
		"timer_remaining": 1800,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status         string  `json:"status"`
		State          string  `json:"state"`
		Temperature    float64 `json:"temperature"`
		TimerRemaining int     `json:"timer_remaining"`
	}
	decode(t, w, &resp)
	// Lowercase input is accepted and normalized.
	if resp.Status != "updated" || resp.State != "COOKING" {
		t.Fatalf("response: %+v", resp)
	}
	if resp.Temperature != 64.5 || resp.TimerRemaining != 1800 {
		t.Fatalf("response: %+v", resp)
	}

	snap := env.dev.Snapshot()
	if snap.Job.Mode != "COOKING" {
		t.Fatalf("mode = %q, want mirrored", snap.Job.Mode)
	}
	if env.sessions.broadcasts != 1 {
		t.Fatalf("broadcasts = %d, want 1", env.sessions.broadcasts)
	}
}

func TestSetState_Errors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/set-state", gin.H{"state": "MELTING"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_STATE" {
		t.Fatalf("code = %q", code)
	}

	req := httptest.NewRequest(http.MethodPost, "/set-state", strings.NewReader("{broken"))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_JSON" {
		t.Fatalf("code = %q", code)
	}
	if env.sessions.broadcasts != 0 {
		t.Fatal("failed update must not broadcast")
	}
}

func TestSetOffline(t *testing.T) {
	env := newTestEnv(t)

	// Body defaults to offline=true.
	w := env.do(t, http.MethodPost, "/set-offline", gin.H{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status              string `json:"status"`
		ClientsDisconnected bool   `json:"clients_disconnected"`
	}
	decode(t, w, &resp)
	if resp.Status != "offline" || !resp.ClientsDisconnected {
		t.Fatalf("response: %+v", resp)
	}
	if env.dev.Online() {
		t.Fatal("device still online")
	}
	if env.sessions.disconnects != 1 || env.sessions.lastCode != faults.CloseOffline {
		t.Fatalf("disconnects = %d, code = %d", env.sessions.disconnects, env.sessions.lastCode)
	}

	offline := false
	w = env.do(t, http.MethodPost, "/set-offline", gin.H{"offline": offline})
	decode(t, w, &resp)
	if resp.Status != "online" {
		t.Fatalf("response: %+v", resp)
	}
	if !env.dev.Online() {
		t.Fatal("device not back online")
	}
	// Going online never force-closes anything.
	if env.sessions.disconnects != 1 {
		t.Fatalf("disconnects = %d", env.sessions.disconnects)
	}
}

func TestSetTimeScale(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/set-time-scale", gin.H{"time_scale": 60.0})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if env.dev.TimeScale() != 60.0 {
		t.Fatalf("scale = %v", env.dev.TimeScale())
	}

	cases := []struct {
		name     string
		body     gin.H
		wantCode string
	}{
		{"missing", gin.H{}, "MISSING_TIME_SCALE"},
		{"zero", gin.H{"time_scale": 0}, "INVALID_TIME_SCALE"},
		{"negative", gin.H{"time_scale": -5}, "INVALID_TIME_SCALE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/set-time-scale", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if code := errorCode(t, w); code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
	if env.dev.TimeScale() != 60.0 {
		t.Fatalf("rejected updates changed the scale: %v", env.dev.TimeScale())
	}
}

func TestGetState(t *testing.T) {
	env := newTestEnv(t)
	if err := env.dev.Start(65.0, models.UnitCelsius, 3600); err != nil {
		t.Fatalf("start: %v", err)
	}

	w := env.do(t, http.MethodGet, "/state", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		CookerID string `json:"cooker_id"`
		Job      struct {
			Mode              string  `json:"mode"`
			TargetTemperature float64 `json:"target_temperature"`
		} `json:"job"`
		JobStatus struct {
			State string `json:"state"`
		} `json:"job_status"`
		TimeScale float64 `json:"time_scale"`
	}
	decode(t, w, &resp)
	if resp.CookerID != "anova sim-0000000000" {
		t.Fatalf("cooker_id = %q", resp.CookerID)
	}
	if resp.JobStatus.State != "PREHEATING" || resp.Job.Mode != "PREHEATING" {
		t.Fatalf("state/mode = %q/%q", resp.JobStatus.State, resp.Job.Mode)
	}
	if resp.Job.TargetTemperature != 65.0 || resp.TimeScale != 1.0 {
		t.Fatalf("response: %+v", resp)
	}
}

func TestTriggerAndClearError(t *testing.T) {
	env := newTestEnv(t)

	rate := 0.5
	w := env.do(t, http.MethodPost, "/trigger-error", gin.H{
		"error_type":   "intermittent_failure",
		"duration":     30.0,
		"failure_rate": rate,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var resp struct {
		Status      string  `json:"status"`
		ErrorType   string  `json:"error_type"`
		FailureRate float64 `json:"failure_rate"`
	}
	decode(t, w, &resp)
	if resp.Status != "triggered" || resp.ErrorType != "intermittent_failure" || resp.FailureRate != 0.5 {
		t.Fatalf("response: %+v", resp)
	}
	if !env.injector.IsActive(faults.IntermittentFailure) {
		t.Fatal("fault not active")
	}

	w = env.do(t, http.MethodPost, "/clear-error", gin.H{"error_type": "intermittent_failure"})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env.injector.IsActive(faults.IntermittentFailure) {
		t.Fatal("fault still active")
	}
}

func TestTriggerError_Validation(t *testing.T) {
	env := newTestEnv(t)

	cases := []struct {
		name     string
		body     gin.H
		wantCode string
	}{
		{"missing_type", gin.H{}, "MISSING_ERROR_TYPE"},
		{"unknown_type", gin.H{"error_type": "volcano"}, "INVALID_ERROR_TYPE"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/trigger-error", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d", w.Code)
			}
			if code := errorCode(t, w); code != tc.wantCode {
				t.Fatalf("code = %q, want %q", code, tc.wantCode)
			}
		})
	}
}

func TestGetErrors(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/errors", nil)
	var resp struct {
		ActiveErrors []string `json:"active_errors"`
		Errors       []struct {
			ErrorType string  `json:"error_type"`
			LatencyMS int     `json:"latency_ms"`
			Duration  float64 `json:"duration"`
		} `json:"errors"`
	}
	decode(t, w, &resp)
	if len(resp.ActiveErrors) != 0 {
		t.Fatalf("active = %v", resp.ActiveErrors)
	}

	ms := 750
	if _, err := env.injector.Trigger(faults.NetworkLatency, 60, faults.Params{LatencyMS: &ms}); err != nil {
		t.Fatalf("trigger: %v", err)
	}

	w = env.do(t, http.MethodGet, "/errors", nil)
	decode(t, w, &resp)
	if len(resp.ActiveErrors) != 1 || resp.ActiveErrors[0] != "network_latency" {
		t.Fatalf("active = %v", resp.ActiveErrors)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].LatencyMS != 750 || resp.Errors[0].Duration != 60 {
		t.Fatalf("errors = %+v", resp.Errors)
	}
}

func TestGetMessages(t *testing.T) {
	env := newTestEnv(t)
	env.messages.entries = []models.MessageLogEntry{
		{Direction: models.DirectionInbound, Raw: `{"command":"CMD_APC_START"}`, Command: "CMD_APC_START"},
		{Direction: models.DirectionOutbound, Raw: `{"command":"RESPONSE"}`, Command: "RESPONSE"},
	}

	w := env.do(t, http.MethodGet, "/messages", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Count    int                      `json:"count"`
		Messages []models.MessageLogEntry `json:"messages"`
	}
	decode(t, w, &resp)
	if resp.Count != 2 || len(resp.Messages) != 2 {
		t.Fatalf("response: %+v", resp)
	}
	if env.messages.lastLimit != defaultMessageLimit {
		t.Fatalf("default limit = %d", env.messages.lastLimit)
	}

	w = env.do(t, http.MethodGet, "/messages?limit=5&direction=inbound", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if env.messages.lastLimit != 5 || env.messages.lastDir != "inbound" {
		t.Fatalf("limit/dir = %d/%q", env.messages.lastLimit, env.messages.lastDir)
	}

	w = env.do(t, http.MethodGet, "/messages?limit=abc", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", w.Code)
	}
	if code := errorCode(t, w); code != "INVALID_LIMIT" {
		t.Fatalf("code = %q", code)
	}
}

func TestControlHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Status           string `json:"status"`
		Service          string `json:"service"`
		SimulatorState   string `json:"simulator_state"`
		ClientsConnected int    `json:"clients_connected"`
	}
	decode(t, w, &resp)
	if resp.Status != "ok" || resp.Service != "control-api" {
		t.Fatalf("response: %+v", resp)
	}
	if resp.SimulatorState != "IDLE" || resp.ClientsConnected != 2 {
		t.Fatalf("response: %+v", resp)
	}
}
