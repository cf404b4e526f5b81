package rendezvous

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/validation"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// Клиенты - desktop-приложения, Origin не несет смысла
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handler обслуживает websocket-подключения участников комнат
type Handler struct {
	hub    *Hub
	logger *slog.Logger
}

func NewHandler(hub *Hub, logger *slog.Logger) *Handler {
	return &Handler{hub: hub, logger: logger}
}

// Routes регистрирует эндпоинты сервера
func (h *Handler) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", h.handleWS)
	mux.HandleFunc("/healthz", h.handleHealth)
}

// handleHealth проверка живости для балансировщика
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	resp := map[string]any{
		"status": "ok",
		"rooms":  h.hub.RoomCount(),
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}

// handleWS принимает подключение участника. Первый кадр обязан быть
// join с room_id и peer_id, иначе соединение закрывается.
func (h *Handler) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", "remote_addr", r.RemoteAddr, "error", err)
		return
	}

	conn.SetReadDeadline(time.Now().Add(readTimeout))

	var join frame
	if err := conn.ReadJSON(&join); err != nil || join.Type != frameJoin {
		h.logger.Warn("Connection without join frame", "remote_addr", r.RemoteAddr)
		conn.Close()
		return
	}
	if err := validation.ValidateRoomID(join.RoomID); err != nil {
		h.logger.Warn("Join with invalid room id", "remote_addr", r.RemoteAddr)
		conn.Close()
		return
	}
	if join.PeerID == "" {
		h.logger.Warn("Join without peer id", "remote_addr", r.RemoteAddr, "room_id", join.RoomID)
		conn.Close()
		return
	}

	c := &client{
		conn:   conn,
		peerID: join.PeerID,
		roomID: join.RoomID,
		user:   join.Payload,
		sendC:  make(chan []byte, sendBuffer),
		doneC:  make(chan struct{}),
	}

	existing := h.hub.register(c)
	h.logger.Info("Peer joined room", "room_id", c.roomID, "peer_id", c.peerID, "peers", len(existing)+1)

	go h.writeLoop(c)

	h.sendWelcome(c, existing)
	h.hub.broadcast(c.roomID, c.peerID, frame{
		Type:    framePeerJoined,
		RoomID:  c.roomID,
		PeerID:  c.peerID,
		Payload: c.user,
	})

	h.readLoop(c)

	h.hub.unregister(c)
	c.close()
	h.hub.broadcast(c.roomID, c.peerID, frame{
		Type:   framePeerLeft,
		RoomID: c.roomID,
		PeerID: c.peerID,
	})
	h.logger.Info("Peer left room", "room_id", c.roomID, "peer_id", c.peerID)
}

func (h *Handler) sendWelcome(c *client, existing []welcomePeer) {
	payload, err := json.Marshal(welcomePayload{Peers: existing})
	if err != nil {
		h.logger.Error("Failed to marshal welcome", "room_id", c.roomID, "error", err)
		return
	}
	data, err := json.Marshal(frame{Type: frameWelcome, RoomID: c.roomID, Payload: payload})
	if err != nil {
		h.logger.Error("Failed to marshal welcome frame", "room_id", c.roomID, "error", err)
		return
	}
	c.enqueue(data)
}

// readLoop принимает кадры участника и маршрутизирует их по комнате.
// Кадры с чужим peer_id перезаписываются настоящим отправителем.
func (h *Handler) readLoop(c *client) {
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	for {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var f frame
		if err := c.conn.ReadJSON(&f); err != nil {
			return
		}

		// Отправитель не может выдать себя за другого
		f.PeerID = c.peerID
		f.RoomID = c.roomID

		switch f.Type {
		case frameBroadcast:
			h.hub.broadcast(c.roomID, c.peerID, f)
		case frameDirect:
			h.hub.direct(c.roomID, f.Target, f)
		default:
			h.logger.Debug("Unknown frame type", "room_id", c.roomID, "peer_id", c.peerID, "type", f.Type)
		}
	}
}

// writeLoop сериализует исходящие кадры клиента и шлет keepalive
func (h *Handler) writeLoop(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	defer c.conn.Close()

	for {
		select {
		case data := <-c.sendC:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.doneC:
			return
		}
	}
}
