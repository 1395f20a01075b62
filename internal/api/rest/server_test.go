package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/api/websocket"
	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/counter"
	"github.com/KevinKickass/OpenRigCore/internal/display"
	"github.com/KevinKickass/OpenRigCore/internal/interfaces"
	"github.com/KevinKickass/OpenRigCore/internal/machine"
	"github.com/KevinKickass/OpenRigCore/internal/types"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeLifecycle struct {
	cfg      *config.Config
	counters *counter.Bank

	mu       sync.Mutex
	commands []display.Event
	shutdown chan struct{}
}

func newFakeLifecycle(t *testing.T) *fakeLifecycle {
	t.Helper()
	bank, err := counter.NewBank(counter.NewMemoryBackend(), zap.NewNop(), counter.Defaults()...)
	require.NoError(t, err)
	return &fakeLifecycle{cfg: config.Default(), counters: bank, shutdown: make(chan struct{})}
}

func (f *fakeLifecycle) Config() *config.Config  { return f.cfg }
func (f *fakeLifecycle) Counters() *counter.Bank { return f.counters }
func (f *fakeLifecycle) Controls() []string      { return []string{"reset", "start"} }

func (f *fakeLifecycle) Snapshot() *engine.Snapshot {
	return &engine.Snapshot{
		Status:      machine.Status{Mode: machine.ModeAuto, Running: true},
		Iteration:   7,
		RetryBudget: 3,
	}
}

func (f *fakeLifecycle) Command(control string, action display.Action) error {
	if control != "start" && control != "reset" {
		return display.ErrUnknownControl
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commands = append(f.commands, display.Event{Control: control, Action: action})
	return nil
}

func (f *fakeLifecycle) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{State: "RUNNING", IOBackend: "memory"}
}

func (f *fakeLifecycle) Shutdown(context.Context) error {
	close(f.shutdown)
	return nil
}

func (f *fakeLifecycle) events() []display.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]display.Event(nil), f.commands...)
}

func newTestServer(t *testing.T, operators ...config.OperatorConfig) (*Server, *fakeLifecycle) {
	t.Helper()
	svc, err := auth.NewAuthService(config.AuthConfig{
		AccessTokenTTL: time.Hour,
		Operators:      operators,
	}, zap.NewNop())
	require.NoError(t, err)

	lm := newFakeLifecycle(t)
	hub := websocket.NewHub(zap.NewNop(), svc)
	return NewServer(lm, zap.NewNop(), hub, svc), lm
}

func do(t *testing.T, s *Server, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return out
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var out types.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	return string(out.Error.Code)
}

func operatorHash(t *testing.T, password string) string {
	t.Helper()
	hasher := auth.NewPasswordHasher(auth.HashParams{
		Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	hash, err := hasher.HashPassword(password)
	require.NoError(t, err)
	return hash
}

func TestHealth(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", decode(t, w)["status"])
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestMachineStatusAndCommand(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/machine/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 7, body["iteration"])
	assert.Equal(t, true, body["running"])

	w = do(t, s, http.MethodPost, "/api/v1/machine/command", "", map[string]string{"control": "start"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/machine/command", "", map[string]string{"control": "reset", "action": "released"})
	assert.Equal(t, http.StatusAccepted, w.Code)

	assert.Equal(t, []display.Event{
		{Control: "start", Action: display.Pressed},
		{Control: "reset", Action: display.Released},
	}, lm.events())

	w = do(t, s, http.MethodPost, "/api/v1/machine/command", "", map[string]string{"control": "start", "action": "hold"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.CodeInvalidAction), errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/v1/machine/command", "", map[string]string{"control": "warp"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, string(types.CodeCommandRejected), errorCode(t, w))

	w = do(t, s, http.MethodGet, "/api/v1/machine/controls", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"reset", "start"}, decode(t, w)["controls"])
}

func TestCounters(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/counters", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	list := decode(t, w)["counters"].([]any)
	assert.Len(t, list, len(counter.Defaults()))

	w = do(t, s, http.MethodPut, "/api/v1/counters/upper_strap_feed", "", map[string]int64{"value": 1000})
	require.Equal(t, http.StatusOK, w.Code)
	// Clamped to the counter's maximum.
	assert.EqualValues(t, 350, decode(t, w)["value"])
	assert.EqualValues(t, 350, lm.counters.Value(counter.UpperStrapFeed))

	w = do(t, s, http.MethodPut, "/api/v1/counters/nope", "", map[string]int64{"value": 1})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.CodeUnknownCounter), errorCode(t, w))

	w = do(t, s, http.MethodPut, "/api/v1/counters/longtime", "", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSystemEndpoints(t *testing.T) {
	s, lm := newTestServer(t)

	w := do(t, s, http.MethodGet, "/api/v1/system/status", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "RUNNING", decode(t, w)["state"])

	w = do(t, s, http.MethodPost, "/api/v1/system/shutdown", "", nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	select {
	case <-lm.shutdown:
	case <-time.After(2 * time.Second):
		t.Fatal("shutdown not triggered")
	}
}

func TestLoginAndPermissions(t *testing.T) {
	s, _ := newTestServer(t, config.OperatorConfig{
		Username:     "anna",
		PasswordHash: operatorHash(t, "secret"),
		Role:         "operator",
	})

	w := do(t, s, http.MethodGet, "/api/v1/machine/status", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(t, s, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "anna", Password: "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, string(types.CodeInvalidCredentials), errorCode(t, w))

	w = do(t, s, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "anna", Password: "secret"})
	require.Equal(t, http.StatusOK, w.Code)
	var login LoginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &login))
	assert.Equal(t, "Bearer", login.TokenType)
	assert.Greater(t, login.ExpiresIn, 0)

	w = do(t, s, http.MethodGet, "/api/v1/auth/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "anna", decode(t, w)["username"])

	w = do(t, s, http.MethodGet, "/api/v1/machine/status", login.AccessToken, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// Setting counters needs a technician, shutting down an admin.
	w = do(t, s, http.MethodPut, "/api/v1/counters/longtime", login.AccessToken, map[string]int64{"value": 0})
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = do(t, s, http.MethodPost, "/api/v1/system/shutdown", login.AccessToken, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestLoginWhenAuthDisabled(t *testing.T) {
	s, _ := newTestServer(t)
	w := do(t, s, http.MethodPost, "/api/v1/auth/login", "", LoginRequest{Username: "x", Password: "y"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, string(types.CodeAuthDisabled), errorCode(t, w))
}
