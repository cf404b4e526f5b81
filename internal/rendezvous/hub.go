// Package rendezvous реализует сервер встречи: маршрутизатор
// сообщений между участниками комнат. Сервер не расшифровывает
// содержимое конвертов и не хранит состояние документов.
package rendezvous

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeTimeout таймаут записи кадра клиенту
	writeTimeout = 10 * time.Second
	// readTimeout максимальная тишина от клиента до разрыва
	readTimeout = 60 * time.Second
	// pingInterval период keepalive-пингов клиентам
	pingInterval = 25 * time.Second
	// sendBuffer емкость исходящей очереди клиента
	sendBuffer = 256
)

// Типы кадров протокола. Должны совпадать с клиентом signal.
const (
	frameJoin       = "join"
	frameWelcome    = "welcome"
	framePeerJoined = "peer_joined"
	framePeerLeft   = "peer_left"
	frameBroadcast  = "broadcast"
	frameDirect     = "direct"
)

// frame кадр протокола rendezvous
type frame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	PeerID  string          `json:"peer_id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type welcomePayload struct {
	Peers []welcomePeer `json:"peers"`
}

type welcomePeer struct {
	PeerID string          `json:"peer_id"`
	User   json.RawMessage `json:"user,omitempty"`
}

// client подключенный участник комнаты
type client struct {
	conn   *websocket.Conn
	peerID string
	roomID string
	user   json.RawMessage
	sendC  chan []byte
	doneC  chan struct{}
	once   sync.Once
}

func (c *client) close() {
	c.once.Do(func() { close(c.doneC) })
}

// enqueue ставит кадр в очередь клиента. Переполнение очереди означает
// мертвого или безнадежно медленного потребителя - кадр отбрасывается.
func (c *client) enqueue(data []byte) bool {
	select {
	case c.sendC <- data:
		return true
	case <-c.doneC:
		return false
	default:
		return false
	}
}

// Hub реестр комнат и их участников
type Hub struct {
	logger *slog.Logger
	rooms  map[string]map[string]*client
	mu     sync.Mutex
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger: logger,
		rooms:  make(map[string]map[string]*client),
	}
}

// register добавляет клиента в комнату и возвращает список участников,
// присутствовавших до него. Прежнее подключение с тем же peer_id
// вытесняется.
func (h *Hub) register(c *client) []welcomePeer {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.roomID]
	if !ok {
		room = make(map[string]*client)
		h.rooms[c.roomID] = room
	}

	if stale, ok := room[c.peerID]; ok {
		stale.close()
	}

	existing := make([]welcomePeer, 0, len(room))
	for _, peer := range room {
		existing = append(existing, welcomePeer{PeerID: peer.peerID, User: peer.user})
	}
	room[c.peerID] = c
	return existing
}

// unregister удаляет клиента из комнаты; пустая комната исчезает
func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	room, ok := h.rooms[c.roomID]
	if !ok || room[c.peerID] != c {
		return
	}
	delete(room, c.peerID)
	if len(room) == 0 {
		delete(h.rooms, c.roomID)
	}
}

// broadcast рассылает кадр всем участникам комнаты кроме отправителя
func (h *Hub) broadcast(roomID, senderID string, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("Failed to marshal frame", "room_id", roomID, "error", err)
		return
	}

	h.mu.Lock()
	room := h.rooms[roomID]
	targets := make([]*client, 0, len(room))
	for peerID, peer := range room {
		if peerID != senderID {
			targets = append(targets, peer)
		}
	}
	h.mu.Unlock()

	for _, peer := range targets {
		if !peer.enqueue(data) {
			h.logger.Warn("Dropping frame for slow peer", "room_id", roomID, "peer_id", peer.peerID)
		}
	}
}

// direct доставляет кадр конкретному участнику комнаты
func (h *Hub) direct(roomID, targetID string, f frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.logger.Error("Failed to marshal frame", "room_id", roomID, "error", err)
		return
	}

	h.mu.Lock()
	target, ok := h.rooms[roomID][targetID]
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("Direct frame for unknown peer", "room_id", roomID, "target", targetID)
		return
	}
	if !target.enqueue(data) {
		h.logger.Warn("Dropping frame for slow peer", "room_id", roomID, "peer_id", targetID)
	}
}

// RoomCount количество активных комнат
func (h *Hub) RoomCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// PeerCount количество участников комнаты
func (h *Hub) PeerCount(roomID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms[roomID])
}
