package mesh

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/docstore"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/keyvault"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
)

// sendTimeout ограничение на отправку одного сообщения в комнату
const sendTimeout = 10 * time.Second

// Connection активное подключение документа к комнате: принимает
// события транспорта, ведет roster участников, шифрует исходящие
// и расшифровывает входящие сообщения ключом комнаты.
//
// Сообщения заблокированных и превысивших лимит пиров отбрасываются
// молча: нарушитель не получает обратной связи, а для остальных
// участников комнаты он просто невидим.
type Connection struct {
	session  Session
	limiter  *Limiter
	vault    *keyvault.Vault
	handle   *docstore.Handle
	keys     *keyvault.KeyPair
	logger   *slog.Logger
	onCursor func(cursors []models.CursorState)

	roomID string
	peerID string
	user   models.UserInfo

	peers        map[string]*models.PeerRecord
	cursors      map[string]models.CursorState
	synced       bool
	keyRequested bool
	doneC        chan struct{}
	mu           sync.Mutex
}

func newConnection(
	session Session,
	limiter *Limiter,
	vault *keyvault.Vault,
	handle *docstore.Handle,
	logger *slog.Logger,
	roomID, peerID string,
	user models.UserInfo,
	onCursor func(cursors []models.CursorState),
) (*Connection, error) {
	keys, err := keyvault.GenerateKeyPair()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session keypair: %w", err)
	}

	c := &Connection{
		session:  session,
		limiter:  limiter,
		vault:    vault,
		handle:   handle,
		keys:     keys,
		logger:   logger,
		onCursor: onCursor,
		roomID:   roomID,
		peerID:   peerID,
		user:     user,
		peers:    make(map[string]*models.PeerRecord),
		cursors:  make(map[string]models.CursorState),
		doneC:    make(chan struct{}),
	}

	handle.BindNetwork(c.broadcastUpdate)
	go c.run()

	// Без ключа комнаты запрашиваем его у остальных участников
	if _, ok := vault.RoomKey(roomID); !ok {
		c.requestRoomKey()
	}

	return c, nil
}

func (c *Connection) run() {
	defer close(c.doneC)

	for ev := range c.session.Events() {
		switch ev.Kind {
		case PeerJoined:
			c.handlePeerJoined(ev)
		case PeerLeft:
			c.handlePeerLeft(ev)
		case PeerMessage:
			c.handleMessage(ev)
		case SyncChanged:
			c.mu.Lock()
			c.synced = ev.Synced
			c.mu.Unlock()
		}
	}

	c.handle.UnbindNetwork()
}

func (c *Connection) handlePeerJoined(ev SessionEvent) {
	// Заблокированные и сверхлимитные пиры в roster не попадают
	if !c.limiter.AllowConnection(ev.PeerID) {
		c.logger.Debug("Peer join rejected by rate limiter", "room_id", c.roomID, "peer_id", ev.PeerID)
		return
	}

	record := &models.PeerRecord{
		ID:         ev.PeerID,
		IsOnline:   true,
		LastSeenAt: time.Now(),
	}
	if len(ev.Payload) > 0 {
		var user models.UserInfo
		if err := json.Unmarshal(ev.Payload, &user); err == nil {
			record.DisplayName = user.Name
			record.Color = user.Color
		}
	}

	c.mu.Lock()
	c.peers[ev.PeerID] = record
	count := len(c.peers)
	c.mu.Unlock()

	c.logger.Info("Peer joined room", "room_id", c.roomID, "peer_id", ev.PeerID)
	c.handle.SetPeerCount(count + 1)
}

func (c *Connection) handlePeerLeft(ev SessionEvent) {
	c.mu.Lock()
	_, known := c.peers[ev.PeerID]
	delete(c.peers, ev.PeerID)
	delete(c.cursors, ev.PeerID)
	count := len(c.peers)
	c.mu.Unlock()

	if !known {
		return
	}

	c.logger.Info("Peer left room", "room_id", c.roomID, "peer_id", ev.PeerID)
	c.handle.SetPeerCount(count + 1)
	c.publishCursors()
}

func (c *Connection) handleMessage(ev SessionEvent) {
	if !c.limiter.AllowMessage(ev.PeerID) {
		return
	}

	var env models.Envelope
	if err := json.Unmarshal(ev.Payload, &env); err != nil {
		c.logger.Debug("Dropping malformed envelope", "room_id", c.roomID, "peer_id", ev.PeerID)
		return
	}
	if env.SenderID == c.peerID {
		return
	}

	c.touchPeer(ev.PeerID)

	switch env.Kind {
	case models.EnvelopeUpdate, models.EnvelopeState:
		c.applyDocumentPayload(env)
	case models.EnvelopeCursor:
		c.applyCursorPayload(env)
	case models.EnvelopeKeyReq:
		c.answerKeyRequest(env)
	case models.EnvelopeKeyResp:
		c.acceptRoomKey(env)
	default:
		c.logger.Debug("Dropping envelope of unknown kind", "room_id", c.roomID, "kind", env.Kind)
	}
}

func (c *Connection) touchPeer(peerID string) {
	c.mu.Lock()
	if record, ok := c.peers[peerID]; ok {
		record.LastSeenAt = time.Now()
	}
	c.mu.Unlock()
}

func (c *Connection) applyDocumentPayload(env models.Envelope) {
	plaintext, ok := c.openPayload(env)
	if !ok {
		return
	}

	if err := c.handle.ApplyRemote(plaintext); err != nil {
		c.logger.Error("Failed to apply remote update",
			"room_id", c.roomID,
			"sender_id", env.SenderID,
			"error", err,
		)
	}
}

func (c *Connection) applyCursorPayload(env models.Envelope) {
	plaintext, ok := c.openPayload(env)
	if !ok {
		return
	}

	var cursor models.CursorState
	if err := json.Unmarshal(plaintext, &cursor); err != nil {
		c.logger.Debug("Dropping malformed cursor payload", "room_id", c.roomID, "sender_id", env.SenderID)
		return
	}
	cursor.PeerID = env.SenderID

	c.mu.Lock()
	c.cursors[env.SenderID] = cursor
	c.mu.Unlock()

	c.publishCursors()
}

// answerKeyRequest отвечает на запрос ключа комнаты: ключ заворачивается
// асимметрично под публичный ключ запросившего, так что по сети
// он в открытом виде не передается.
func (c *Connection) answerKeyRequest(env models.Envelope) {
	roomKey, ok := c.vault.RoomKey(c.roomID)
	if !ok {
		return
	}

	encrypted, err := keyvault.EncryptSessionKey(roomKey, env.Payload)
	if err != nil {
		c.logger.Debug("Failed to wrap room key for peer", "room_id", c.roomID, "peer_id", env.SenderID)
		return
	}

	c.send(env.SenderID, models.Envelope{
		Kind:     models.EnvelopeKeyResp,
		RoomID:   c.roomID,
		SenderID: c.peerID,
		Payload:  encrypted,
	})
}

func (c *Connection) acceptRoomKey(env models.Envelope) {
	if _, ok := c.vault.RoomKey(c.roomID); ok {
		return
	}

	roomKey, err := c.keys.DecryptSessionKey(env.Payload)
	if err != nil {
		c.logger.Warn("Unable to decrypt", "room_id", c.roomID, "sender_id", env.SenderID)
		return
	}
	if err := c.vault.StoreRoomKey(c.roomID, roomKey); err != nil {
		c.logger.Error("Failed to store room key", "room_id", c.roomID, "error", err)
		return
	}

	c.logger.Info("Room key received from peer", "room_id", c.roomID, "sender_id", env.SenderID)

	c.mu.Lock()
	c.synced = true
	c.mu.Unlock()
}

// requestRoomKey рассылает запрос ключа комнаты со своим публичным
// ключом. Повторно не отправляется, пока соединение живо.
func (c *Connection) requestRoomKey() {
	c.mu.Lock()
	if c.keyRequested {
		c.mu.Unlock()
		return
	}
	c.keyRequested = true
	c.mu.Unlock()

	c.broadcast(models.Envelope{
		Kind:     models.EnvelopeKeyReq,
		RoomID:   c.roomID,
		SenderID: c.peerID,
		Payload:  c.keys.PublicKey(),
	})
}

// openPayload расшифровывает payload конверта ключом комнаты.
// Любая причина неудачи логируется одинаково, без деталей.
func (c *Connection) openPayload(env models.Envelope) ([]byte, bool) {
	roomKey, ok := c.vault.RoomKey(c.roomID)
	if !ok {
		c.requestRoomKey()
		return nil, false
	}

	var box keyvault.SealedBox
	if err := json.Unmarshal(env.Payload, &box); err != nil {
		c.logger.Warn("Unable to decrypt", "room_id", c.roomID, "sender_id", env.SenderID)
		return nil, false
	}

	plaintext, err := keyvault.Decrypt(&box, roomKey)
	if err != nil {
		c.logger.Warn("Unable to decrypt", "room_id", c.roomID, "sender_id", env.SenderID)
		return nil, false
	}
	return plaintext, true
}

// sealEnvelope шифрует plaintext ключом комнаты и собирает конверт
func (c *Connection) sealEnvelope(kind models.EnvelopeKind, plaintext []byte) (*models.Envelope, error) {
	roomKey, ok := c.vault.RoomKey(c.roomID)
	if !ok {
		return nil, fmt.Errorf("no key for room %s", c.roomID)
	}

	box, err := keyvault.Encrypt(plaintext, roomKey)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(box)
	if err != nil {
		return nil, err
	}

	return &models.Envelope{
		Kind:     kind,
		RoomID:   c.roomID,
		SenderID: c.peerID,
		Payload:  payload,
	}, nil
}

// broadcastUpdate отправляет локальную CRDT-delta всем участникам.
// Вызывается документом при каждой локальной правке.
func (c *Connection) broadcastUpdate(update []byte) {
	env, err := c.sealEnvelope(models.EnvelopeUpdate, update)
	if err != nil {
		c.logger.Debug("Skipping update broadcast", "room_id", c.roomID, "error", err)
		return
	}
	c.broadcast(*env)
}

// BroadcastCursor рассылает положение локального курсора
func (c *Connection) BroadcastCursor(cursor models.CursorState) error {
	cursor.PeerID = c.peerID
	cursor.User = c.user

	plaintext, err := json.Marshal(cursor)
	if err != nil {
		return err
	}
	env, err := c.sealEnvelope(models.EnvelopeCursor, plaintext)
	if err != nil {
		return err
	}
	c.broadcast(*env)
	return nil
}

func (c *Connection) broadcast(env models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("Failed to marshal envelope", "room_id", c.roomID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := c.session.Broadcast(ctx, data); err != nil {
		c.logger.Error("Failed to broadcast message", "room_id", c.roomID, "error", err)
	}
}

func (c *Connection) send(peerID string, env models.Envelope) {
	data, err := json.Marshal(env)
	if err != nil {
		c.logger.Error("Failed to marshal envelope", "room_id", c.roomID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()

	if err := c.session.Send(ctx, peerID, data); err != nil {
		c.logger.Error("Failed to send message", "room_id", c.roomID, "peer_id", peerID, "error", err)
	}
}

func (c *Connection) publishCursors() {
	if c.onCursor == nil {
		return
	}

	c.mu.Lock()
	cursors := make([]models.CursorState, 0, len(c.cursors))
	for _, cursor := range c.cursors {
		cursors = append(cursors, cursor)
	}
	c.mu.Unlock()

	sort.Slice(cursors, func(i, j int) bool { return cursors[i].PeerID < cursors[j].PeerID })
	c.onCursor(cursors)
}

// Peers возвращает снимок roster комнаты, отсортированный по ID
func (c *Connection) Peers() []models.PeerRecord {
	c.mu.Lock()
	result := make([]models.PeerRecord, 0, len(c.peers))
	for _, record := range c.peers {
		result = append(result, *record)
	}
	c.mu.Unlock()

	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Synced сообщает, завершена ли синхронизация с комнатой
func (c *Connection) Synced() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.synced
}

// RoomID идентификатор подключенной комнаты
func (c *Connection) RoomID() string {
	return c.roomID
}

// Close разрывает подключение и дожидается остановки цикла событий
func (c *Connection) Close() error {
	err := c.session.Close()
	<-c.doneC
	return err
}
