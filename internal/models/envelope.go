package models

// EnvelopeKind тип сообщения в комнате
type EnvelopeKind string

// Виды сообщений, которыми обмениваются узлы внутри комнаты
const (
	EnvelopeUpdate  EnvelopeKind = "update"  // инкрементальный CRDT-delta документа
	EnvelopeState   EnvelopeKind = "state"   // полное состояние для холодного бутстрапа
	EnvelopeCursor  EnvelopeKind = "cursor"  // положение курсора участника
	EnvelopeKeyReq  EnvelopeKind = "keyreq"  // запрос сессионного ключа (публичный ключ внутри)
	EnvelopeKeyResp EnvelopeKind = "keyresp" // ответ с зашифрованным сессионным ключом
)

// Envelope обертка для всех сообщений, пересылаемых через rendezvous.
// Payload для update/state/cursor зашифрован ключом комнаты (AES-GCM),
// rendezvous-сервер видит только метаданные маршрутизации.
type Envelope struct {
	Kind     EnvelopeKind `json:"kind"`      // Kind тип сообщения
	RoomID   string       `json:"room_id"`   // RoomID идентификатор комнаты
	SenderID string       `json:"sender_id"` // SenderID идентификатор узла-отправителя
	Payload  []byte       `json:"payload"`   // Payload содержимое (обычно зашифрованное)
}
