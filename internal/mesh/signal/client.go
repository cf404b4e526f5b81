// Package signal реализует websocket-транспорт mesh.Transport поверх
// rendezvous-сервера. Сервер только маршрутизирует конверты между
// участниками комнаты: содержимое сообщений зашифровано до него.
package signal

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/mesh"
)

const (
	// dialTimeout таймаут установления websocket-соединения
	dialTimeout = 10 * time.Second
	// writeTimeout таймаут записи одного кадра
	writeTimeout = 10 * time.Second
	// pongTimeout максимальная тишина от сервера до разрыва
	pongTimeout = 60 * time.Second
	// pingInterval период keepalive-пингов
	pingInterval = 25 * time.Second
	// eventBuffer емкость канала событий сессии
	eventBuffer = 256
	// sendBuffer емкость очереди исходящих кадров
	sendBuffer = 64
)

// Типы кадров протокола rendezvous
const (
	frameJoin       = "join"       // клиент -> сервер: вход в комнату
	frameWelcome    = "welcome"    // сервер -> клиент: список текущих участников
	framePeerJoined = "peer_joined"
	framePeerLeft   = "peer_left"
	frameBroadcast  = "broadcast" // рассылка всем участникам комнаты
	frameDirect     = "direct"    // доставка конкретному участнику
)

// frame кадр протокола rendezvous
type frame struct {
	Type    string          `json:"type"`
	RoomID  string          `json:"room_id,omitempty"`
	PeerID  string          `json:"peer_id,omitempty"`
	Target  string          `json:"target,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// welcomePayload содержимое кадра welcome
type welcomePayload struct {
	Peers []welcomePeer `json:"peers"`
}

type welcomePeer struct {
	PeerID string          `json:"peer_id"`
	User   json.RawMessage `json:"user,omitempty"`
}

// Client websocket-реализация mesh.Transport.
// Серверы пробуются по порядку до первого успешного подключения.
type Client struct {
	servers []string
	logger  *slog.Logger
}

func NewClient(servers []string, logger *slog.Logger) *Client {
	return &Client{servers: servers, logger: logger}
}

// wsEndpoint строит websocket-адрес из адреса rendezvous-сервера.
// Адрес сервера задается как http(s)-URL; gorilla принимает только
// ws/wss, поэтому схема нормализуется.
func wsEndpoint(server string) (string, error) {
	endpoint, err := url.JoinPath(server, "ws")
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", server, err)
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("invalid server url %q: %w", server, err)
	}

	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported rendezvous url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Join подключается к комнате через первый доступный rendezvous-сервер
func (c *Client) Join(ctx context.Context, roomID string, opts mesh.JoinOptions) (mesh.Session, error) {
	var lastErr error
	for _, server := range c.servers {
		session, err := c.joinServer(ctx, server, roomID, opts)
		if err == nil {
			return session, nil
		}
		lastErr = err
		c.logger.Warn("Rendezvous server unavailable, trying next",
			"server", server,
			"error", err,
		)
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no rendezvous servers configured")
	}
	return nil, lastErr
}

func (c *Client) joinServer(ctx context.Context, server, roomID string, opts mesh.JoinOptions) (mesh.Session, error) {
	endpoint, err := wsEndpoint(server)
	if err != nil {
		return nil, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", endpoint, err)
	}

	s := &session{
		conn:   conn,
		logger: c.logger,
		roomID: roomID,
		peerID: opts.PeerID,
		events: make(chan mesh.SessionEvent, eventBuffer),
		sendC:  make(chan frame, sendBuffer),
		doneC:  make(chan struct{}),
	}

	user, err := json.Marshal(map[string]string{"name": opts.DisplayName})
	if err != nil {
		conn.Close()
		return nil, err
	}
	join := frame{Type: frameJoin, RoomID: roomID, PeerID: opts.PeerID, Payload: user}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := conn.WriteJSON(join); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	go s.readLoop()
	go s.writeLoop()

	return s, nil
}

// session одно websocket-подключение к комнате
type session struct {
	conn   *websocket.Conn
	logger *slog.Logger
	roomID string
	peerID string
	events chan mesh.SessionEvent
	sendC  chan frame
	doneC  chan struct{}
	once   sync.Once
}

func (s *session) Events() <-chan mesh.SessionEvent {
	return s.events
}

func (s *session) Broadcast(ctx context.Context, payload []byte) error {
	return s.enqueue(ctx, frame{
		Type:    frameBroadcast,
		RoomID:  s.roomID,
		PeerID:  s.peerID,
		Payload: payload,
	})
}

func (s *session) Send(ctx context.Context, peerID string, payload []byte) error {
	return s.enqueue(ctx, frame{
		Type:    frameDirect,
		RoomID:  s.roomID,
		PeerID:  s.peerID,
		Target:  peerID,
		Payload: payload,
	})
}

func (s *session) enqueue(ctx context.Context, f frame) error {
	select {
	case s.sendC <- f:
		return nil
	case <-s.doneC:
		return fmt.Errorf("session closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *session) Close() error {
	s.once.Do(func() { close(s.doneC) })
	return s.conn.Close()
}

// readLoop читает кадры сервера и транслирует их в события сессии.
// При разрыве соединения канал событий закрывается.
func (s *session) readLoop() {
	defer close(s.events)
	defer s.Close()

	s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})

	for {
		var f frame
		if err := s.conn.ReadJSON(&f); err != nil {
			select {
			case <-s.doneC:
			default:
				s.logger.Warn("Rendezvous connection lost", "room_id", s.roomID, "error", err)
			}
			return
		}

		switch f.Type {
		case frameWelcome:
			s.handleWelcome(f)
		case framePeerJoined:
			s.emit(mesh.SessionEvent{Kind: mesh.PeerJoined, PeerID: f.PeerID, Payload: f.Payload})
		case framePeerLeft:
			s.emit(mesh.SessionEvent{Kind: mesh.PeerLeft, PeerID: f.PeerID})
		case frameBroadcast, frameDirect:
			s.emit(mesh.SessionEvent{Kind: mesh.PeerMessage, PeerID: f.PeerID, Payload: f.Payload})
		default:
			s.logger.Debug("Unknown frame type from rendezvous", "type", f.Type)
		}
	}
}

// handleWelcome раскладывает стартовый список участников в события
// PeerJoined и отмечает сессию синхронизированной
func (s *session) handleWelcome(f frame) {
	var welcome welcomePayload
	if err := json.Unmarshal(f.Payload, &welcome); err != nil {
		s.logger.Warn("Malformed welcome frame", "room_id", s.roomID, "error", err)
		return
	}

	for _, peer := range welcome.Peers {
		if peer.PeerID == s.peerID {
			continue
		}
		s.emit(mesh.SessionEvent{Kind: mesh.PeerJoined, PeerID: peer.PeerID, Payload: peer.User})
	}
	s.emit(mesh.SessionEvent{Kind: mesh.SyncChanged, Synced: true})
}

func (s *session) emit(ev mesh.SessionEvent) {
	select {
	case s.events <- ev:
	default:
		// Переполненный канал: потребитель безнадежно отстал
		s.logger.Warn("Dropping session event, consumer too slow", "room_id", s.roomID, "kind", ev.Kind)
	}
}

// writeLoop сериализует исходящие кадры и поддерживает keepalive
func (s *session) writeLoop() {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case f := <-s.sendC:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(f); err != nil {
				s.logger.Warn("Failed to write frame", "room_id", s.roomID, "error", err)
				s.Close()
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.doneC:
			return
		}
	}
}
