package rendezvous

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggingMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	logged := buf.String()
	assert.Contains(t, logged, "HTTP request")
	assert.Contains(t, logged, "path=/ws")
	assert.Contains(t, logged, "status=418")
}

func TestLoggingMiddleware_SkipsPaths(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := LoggingMiddleware(logger, "/healthz")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Empty(t, buf.String())
}

func TestLoggingMiddleware_WebsocketUpgrade(t *testing.T) {
	var mu sync.Mutex
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(writerFunc(func(p []byte) (int, error) {
		mu.Lock()
		defer mu.Unlock()
		return buf.Write(p)
	}), nil))

	hub := NewHub(logger)
	handler := NewHandler(hub, logger)

	mux := http.NewServeMux()
	handler.Routes(mux)

	var root http.Handler = mux
	root = LoggingMiddleware(logger, "/healthz")(root)
	root = RecoveryMiddleware(logger)(root)

	srv := httptest.NewServer(root)
	defer srv.Close()

	// Upgrade проходит сквозь обертку логирования
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	require.NoError(t, conn.WriteJSON(frame{Type: frameJoin, RoomID: "room-1", PeerID: "alice"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var welcome frame
	require.NoError(t, conn.ReadJSON(&welcome))
	assert.Equal(t, frameWelcome, welcome.Type)

	conn.Close()

	// Запрос логируется по завершении соединения со статусом 101
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return strings.Contains(buf.String(), "status=101")
	}, 5*time.Second, 10*time.Millisecond)
}

type writerFunc func(p []byte) (int, error)

func (f writerFunc) Write(p []byte) (int, error) { return f(p) }

func TestRecoveryMiddleware(t *testing.T) {
	var buf strings.Builder
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RecoveryMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()

	require.NotPanics(t, func() { handler.ServeHTTP(rec, req) })
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	logged := buf.String()
	assert.Contains(t, logged, "Panic recovered")
	assert.Contains(t, logged, "boom")
	// Детали паники не утекают клиенту
	assert.NotContains(t, rec.Body.String(), "boom")
}
