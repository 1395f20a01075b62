package websocket

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KevinKickass/OpenRigCore/internal/auth"
	"github.com/KevinKickass/OpenRigCore/internal/config"
	"github.com/KevinKickass/OpenRigCore/internal/telemetry"
	"github.com/KevinKickass/OpenRigCore/internal/workflow/streaming"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func startHub(t *testing.T, svc *auth.AuthService) (*Hub, string) {
	t.Helper()
	hub := NewHub(zap.NewNop(), svc)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func openService(t *testing.T) *auth.AuthService {
	t.Helper()
	svc, err := auth.NewAuthService(config.AuthConfig{AccessTokenTTL: time.Hour}, zap.NewNop())
	require.NoError(t, err)
	return svc
}

func TestBroadcastReachesClient(t *testing.T) {
	hub, url := startHub(t, openService(t))
	conn := dial(t, url)
	require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	events := make(chan *streaming.Event, 1)
	rec := telemetry.Log(telemetry.KeyCycleTotal, 3)
	events <- &streaming.Event{Type: streaming.EventTelemetry, Timestamp: time.Now(), Record: &rec}
	close(events)
	hub.Forward(context.Background(), events)

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "telemetry", msg["type"])
	data := msg["data"].(map[string]any)
	assert.Equal(t, "CYCLE_TOTAL", data["key"])
}

func TestCommandOverSocket(t *testing.T) {
	hub, url := startHub(t, openService(t))
	var got []string
	hub.SetCommandHandler(func(control, action string) error {
		if control == "bogus" {
			return errors.New("unknown control")
		}
		got = append(got, control+"/"+action)
		return nil
	})
	conn := dial(t, url)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeCommand, Control: "start", Action: "pressed"}))
	var msg struct {
		Type MessageType       `json:"type"`
		Data CommandResultData `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, MessageTypeCommandResult, msg.Type)
	assert.Empty(t, msg.Data.Error)
	assert.Equal(t, []string{"start/pressed"}, got)

	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeCommand, Control: "bogus"}))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "unknown control", msg.Data.Error)
}

func TestAuthRequiredWhenOperatorsConfigured(t *testing.T) {
	hash, err := auth.NewPasswordHasher(auth.HashParams{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 8, KeyLength: 16}).HashPassword("pw")
	require.NoError(t, err)
	svc, err := auth.NewAuthService(config.AuthConfig{
		AccessTokenTTL: time.Hour,
		Operators:      []config.OperatorConfig{{Username: "olaf", PasswordHash: hash, Role: "operator"}},
	}, zap.NewNop())
	require.NoError(t, err)
	hub, url := startHub(t, svc)

	t.Run("rejects non-auth first message", func(t *testing.T) {
		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeCommand, Control: "start"}))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeAuthFailed, msg.Type)
		assert.Equal(t, 0, hub.GetClientCount())
	})

	t.Run("accepts valid token", func(t *testing.T) {
		token, _, err := svc.Login("olaf", "pw", "")
		require.NoError(t, err)

		conn := dial(t, url)
		require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeAuth, Token: token}))
		var msg Message
		require.NoError(t, conn.ReadJSON(&msg))
		assert.Equal(t, MessageTypeAuthSuccess, msg.Type)
		require.Eventually(t, func() bool { return hub.GetClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	})
}
