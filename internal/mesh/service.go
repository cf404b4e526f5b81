package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/docstore"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/keyvault"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/validation"
)

// Имена переменных окружения с параметрами собственного TURN-сервера
const (
	EnvTURNURL        = "KALYNT_TURN_URL"
	EnvTURNUsername   = "KALYNT_TURN_USERNAME"
	EnvTURNCredential = "KALYNT_TURN_CREDENTIAL"
)

// DefaultRelays возвращает список STUN/TURN серверов: публичные STUN
// плюс TURN из переменных окружения, если он настроен.
func DefaultRelays() []RelayDescriptor {
	relays := []RelayDescriptor{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
		{URLs: []string{"stun:stun1.l.google.com:19302"}},
	}

	if turnURL := os.Getenv(EnvTURNURL); turnURL != "" {
		relays = append(relays, RelayDescriptor{
			URLs:       []string{turnURL},
			Username:   os.Getenv(EnvTURNUsername),
			Credential: os.Getenv(EnvTURNCredential),
		})
	}
	return relays
}

// Config параметры сетевого сервиса
type Config struct {
	// PeerID идентификатор локального узла. Пустой - сгенерируется.
	PeerID string
	// User отображаемые атрибуты локального пользователя
	User models.UserInfo
	// Relays STUN/TURN серверы. Пустой список - DefaultRelays.
	Relays []RelayDescriptor
	// OnCursors получатель курсоров удаленных участников (опционально)
	OnCursors func(roomID string, cursors []models.CursorState)
}

// Service управляет подключениями к комнатам: одна комната - одно
// подключение, общие для всех комнат rate limiter и vault ключей.
type Service struct {
	transport Transport
	vault     *keyvault.Vault
	limiter   *Limiter
	logger    *slog.Logger
	conns     map[string]*Connection
	relays    []RelayDescriptor
	peerID    string
	user      models.UserInfo
	onCursors func(roomID string, cursors []models.CursorState)
	closed    bool
	mu        sync.Mutex
}

func NewService(transport Transport, vault *keyvault.Vault, logger *slog.Logger, cfg Config) *Service {
	peerID := cfg.PeerID
	if peerID == "" {
		peerID = uuid.New().String()
	}
	relays := cfg.Relays
	if len(relays) == 0 {
		relays = DefaultRelays()
	}

	return &Service{
		transport: transport,
		vault:     vault,
		limiter:   NewLimiter(logger),
		logger:    logger,
		conns:     make(map[string]*Connection),
		relays:    relays,
		peerID:    peerID,
		user:      cfg.User,
		onCursors: cfg.OnCursors,
	}
}

// PeerID идентификатор локального узла
func (s *Service) PeerID() string {
	return s.peerID
}

// Connect подключает документ к комнате. Повторное подключение к той же
// комнате возвращает существующее соединение. Неудача подключения не
// фатальна: документ продолжает работать локально.
func (s *Service) Connect(ctx context.Context, roomID string, handle *docstore.Handle) (*Connection, error) {
	if err := validation.ValidateRoomID(roomID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrMeshClosed
	}
	if existing, ok := s.conns[roomID]; ok {
		s.mu.Unlock()
		return existing, nil
	}
	s.mu.Unlock()

	session, err := s.transport.Join(ctx, roomID, JoinOptions{
		PeerID:      s.peerID,
		DisplayName: s.user.Name,
		Relays:      s.relays,
	})
	if err != nil {
		s.logger.Error("Failed to join room, staying offline", "room_id", roomID, "error", err)
		return nil, fmt.Errorf("failed to join room %s: %w", roomID, err)
	}

	var onCursor func(cursors []models.CursorState)
	if s.onCursors != nil {
		onCursor = func(cursors []models.CursorState) { s.onCursors(roomID, cursors) }
	}

	conn, err := newConnection(session, s.limiter, s.vault, handle, s.logger, roomID, s.peerID, s.user, onCursor)
	if err != nil {
		_ = session.Close()
		return nil, err
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = conn.Close()
		return nil, ErrMeshClosed
	}
	if existing, ok := s.conns[roomID]; ok {
		// Проиграли гонку параллельному Connect
		s.mu.Unlock()
		_ = conn.Close()
		return existing, nil
	}
	s.conns[roomID] = conn
	s.mu.Unlock()

	s.logger.Info("Connected to room", "room_id", roomID, "peer_id", s.peerID)
	return conn, nil
}

// JoinByLink разбирает ссылку приглашения, кеширует ключ комнаты и
// подключается. Ссылки старого формата с секретами в query принимаются
// с предупреждением.
func (s *Service) JoinByLink(ctx context.Context, rawLink string, handle *docstore.Handle) (*Connection, error) {
	link, err := ParseRoomLink(rawLink)
	if err != nil {
		return nil, err
	}
	if link.LegacyQuerySecrets {
		s.logger.Warn("Room link carries secrets in query string, ask the sender to re-share it",
			"room_id", link.RoomID,
		)
	}

	if link.Password != "" {
		if _, err := s.vault.SetRoomKey(link.RoomID, link.Password, nil); err != nil {
			return nil, fmt.Errorf("failed to derive room key: %w", err)
		}
	}

	return s.Connect(ctx, link.RoomID, handle)
}

// ShareLink собирает ссылку приглашения в подключенную комнату
func (s *Service) ShareLink(roomID, password string) (string, error) {
	return GenerateRoomLink(roomID, password, s.user.Name)
}

// Connection возвращает активное подключение к комнате
func (s *Service) Connection(roomID string) (*Connection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conn, ok := s.conns[roomID]
	return conn, ok
}

// Disconnect отключает комнату. Отключение несуществующей комнаты - no-op.
func (s *Service) Disconnect(roomID string) {
	s.mu.Lock()
	conn, ok := s.conns[roomID]
	delete(s.conns, roomID)
	s.mu.Unlock()

	if !ok {
		return
	}
	if err := conn.Close(); err != nil {
		s.logger.Error("Failed to close room connection", "room_id", roomID, "error", err)
	}
	s.logger.Info("Disconnected from room", "room_id", roomID)
}

// Close отключает все комнаты и останавливает rate limiter
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	conns := make([]*Connection, 0, len(s.conns))
	for _, conn := range s.conns {
		conns = append(conns, conn)
	}
	s.conns = make(map[string]*Connection)
	s.mu.Unlock()

	for _, conn := range conns {
		if err := conn.Close(); err != nil {
			s.logger.Error("Failed to close room connection", "room_id", conn.RoomID(), "error", err)
		}
	}
	s.limiter.Close()
}
