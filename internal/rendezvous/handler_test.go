package rendezvous

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := NewHub(logger)
	handler := NewHandler(hub, logger)

	mux := http.NewServeMux()
	handler.Routes(mux)

	// Полный стек middleware как в production-обвязке сервера:
	// upgrade должен проходить сквозь логирование и recovery
	var root http.Handler = mux
	root = LoggingMiddleware(logger, "/healthz")(root)
	root = RecoveryMiddleware(logger)(root)

	srv := httptest.NewServer(root)
	t.Cleanup(srv.Close)
	return srv, hub
}

func dialPeer(t *testing.T, srv *httptest.Server, roomID, peerID string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	user, _ := json.Marshal(map[string]string{"name": peerID})
	require.NoError(t, conn.WriteJSON(frame{
		Type:    frameJoin,
		RoomID:  roomID,
		PeerID:  peerID,
		Payload: user,
	}))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var f frame
	require.NoError(t, conn.ReadJSON(&f))
	return f
}

func TestHandler_JoinAndWelcome(t *testing.T) {
	srv, hub := newTestServer(t)

	alice := dialPeer(t, srv, "room-1", "alice")

	welcome := readFrame(t, alice)
	require.Equal(t, frameWelcome, welcome.Type)

	var payload welcomePayload
	require.NoError(t, json.Unmarshal(welcome.Payload, &payload))
	assert.Empty(t, payload.Peers)

	// Второй участник видит первого в welcome
	bob := dialPeer(t, srv, "room-1", "bob")
	welcome = readFrame(t, bob)
	require.Equal(t, frameWelcome, welcome.Type)
	require.NoError(t, json.Unmarshal(welcome.Payload, &payload))
	require.Len(t, payload.Peers, 1)
	assert.Equal(t, "alice", payload.Peers[0].PeerID)

	// Первый получает уведомление о втором
	joined := readFrame(t, alice)
	assert.Equal(t, framePeerJoined, joined.Type)
	assert.Equal(t, "bob", joined.PeerID)

	assert.Equal(t, 2, hub.PeerCount("room-1"))
}

func TestHandler_BroadcastExcludesSender(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialPeer(t, srv, "room-1", "alice")
	readFrame(t, alice) // welcome
	bob := dialPeer(t, srv, "room-1", "bob")
	readFrame(t, bob)   // welcome
	readFrame(t, alice) // peer_joined bob

	payload, _ := json.Marshal(map[string]string{"v": "hello"})
	require.NoError(t, bob.WriteJSON(frame{Type: frameBroadcast, Payload: payload}))

	got := readFrame(t, alice)
	assert.Equal(t, frameBroadcast, got.Type)
	// Сервер проставляет настоящего отправителя
	assert.Equal(t, "bob", got.PeerID)
	assert.Equal(t, "room-1", got.RoomID)
	assert.JSONEq(t, string(payload), string(got.Payload))
}

func TestHandler_DirectRouting(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialPeer(t, srv, "room-1", "alice")
	readFrame(t, alice)
	bob := dialPeer(t, srv, "room-1", "bob")
	readFrame(t, bob)
	readFrame(t, alice)
	carol := dialPeer(t, srv, "room-1", "carol")
	readFrame(t, carol)
	readFrame(t, alice)
	readFrame(t, bob)

	payload, _ := json.Marshal(map[string]string{"v": "secret"})
	require.NoError(t, carol.WriteJSON(frame{Type: frameDirect, Target: "alice", Payload: payload}))

	got := readFrame(t, alice)
	assert.Equal(t, frameDirect, got.Type)
	assert.Equal(t, "carol", got.PeerID)

	// Боб ничего не получает
	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var f frame
	assert.Error(t, bob.ReadJSON(&f))
}

func TestHandler_PeerLeft(t *testing.T) {
	srv, hub := newTestServer(t)

	alice := dialPeer(t, srv, "room-1", "alice")
	readFrame(t, alice)
	bob := dialPeer(t, srv, "room-1", "bob")
	readFrame(t, bob)
	readFrame(t, alice)

	require.NoError(t, bob.Close())

	left := readFrame(t, alice)
	assert.Equal(t, framePeerLeft, left.Type)
	assert.Equal(t, "bob", left.PeerID)

	assert.Eventually(t, func() bool {
		return hub.PeerCount("room-1") == 1
	}, time.Second, 10*time.Millisecond)
}

func TestHandler_RoomIsolation(t *testing.T) {
	srv, _ := newTestServer(t)

	alice := dialPeer(t, srv, "room-1", "alice")
	readFrame(t, alice)
	bob := dialPeer(t, srv, "room-2", "bob")
	readFrame(t, bob)

	payload, _ := json.Marshal(map[string]string{"v": "x"})
	require.NoError(t, bob.WriteJSON(frame{Type: frameBroadcast, Payload: payload}))

	// Сообщение из другой комнаты не доходит
	require.NoError(t, alice.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var f frame
	assert.Error(t, alice.ReadJSON(&f))
}

func TestHandler_RejectsInvalidJoin(t *testing.T) {
	srv, _ := newTestServer(t)
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	tests := []struct {
		name string
		join frame
	}{
		{name: "wrong first frame", join: frame{Type: frameBroadcast, RoomID: "room-1", PeerID: "x"}},
		{name: "invalid room id", join: frame{Type: frameJoin, RoomID: "bad room!", PeerID: "x"}},
		{name: "missing peer id", join: frame{Type: frameJoin, RoomID: "room-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
			require.NoError(t, err)
			defer conn.Close()

			require.NoError(t, conn.WriteJSON(tt.join))

			// Сервер закрывает соединение без welcome
			require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
			var f frame
			assert.Error(t, conn.ReadJSON(&f))
		})
	}
}

func TestHandler_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body["status"])
}
