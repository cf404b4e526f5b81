package mesh

import "context"

// RelayDescriptor параметры STUN/TURN сервера для установления связи
type RelayDescriptor struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// SessionEventKind тип события сессии комнаты
type SessionEventKind string

const (
	// PeerJoined пир появился в комнате
	PeerJoined SessionEventKind = "peer_joined"
	// PeerLeft пир покинул комнату
	PeerLeft SessionEventKind = "peer_left"
	// PeerMessage входящее сообщение от пира
	PeerMessage SessionEventKind = "message"
	// SyncChanged изменился статус синхронизации с комнатой
	SyncChanged SessionEventKind = "sync_changed"
)

// SessionEvent событие, доставляемое транспортом подключенной комнате
type SessionEvent struct {
	Kind    SessionEventKind
	PeerID  string
	Payload []byte
	Synced  bool
}

// JoinOptions параметры подключения к комнате
type JoinOptions struct {
	PeerID      string
	DisplayName string
	Relays      []RelayDescriptor
}

// Session активное подключение к одной комнате.
// Events закрывается транспортом при разрыве соединения.
type Session interface {
	// Events канал событий комнаты
	Events() <-chan SessionEvent
	// Broadcast отправляет сообщение всем пирам комнаты
	Broadcast(ctx context.Context, payload []byte) error
	// Send отправляет сообщение конкретному пиру
	Send(ctx context.Context, peerID string, payload []byte) error
	// Close разрывает подключение к комнате
	Close() error
}

//go:generate moq -out transport_moq_test.go . Transport

// Transport устанавливает подключения к комнатам.
// Реализация по умолчанию - websocket-клиент rendezvous-сервера.
type Transport interface {
	Join(ctx context.Context, roomID string, opts JoinOptions) (Session, error)
}
