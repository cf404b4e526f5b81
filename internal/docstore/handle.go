package docstore

import (
	"sync"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/crdt"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
)

// docState состояние документа в реестре
type docState int

const (
	stateInitializing docState = iota + 1
	stateReady
	stateDestroyed
)

// Handle открытый документ: CRDT-реплика, undo-менеджер и история
// снимков. Правки разрешены только в состоянии Ready; Destroyed
// терминально.
type Handle struct {
	svc       *Service
	doc       *crdt.Document
	undo      *crdt.UndoManager
	broadcast func(update []byte)
	snapshots []*models.Snapshot
	id        string
	watermark int64 // версия часов, до которой delta уже закодирована
	peerCount int
	state     docState
	mu        sync.Mutex
}

// ID возвращает идентификатор документа.
func (h *Handle) ID() string {
	return h.id
}

// Document возвращает CRDT-документ для работы со списками и map.
func (h *Handle) Document() *crdt.Document {
	return h.doc
}

func (h *Handle) currentState() docState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Handle) setState(s docState) {
	h.mu.Lock()
	h.state = s
	h.mu.Unlock()
}

func (h *Handle) ensureReady() error {
	if h.currentState() != stateReady {
		return ErrNotReady
	}
	return nil
}

// InsertText вставляет строку по offset и записывает правку в undo-историю.
func (h *Handle) InsertText(offset int, s string) error {
	if err := h.ensureReady(); err != nil {
		return err
	}

	ids := h.doc.InsertText(offset, s)
	h.undo.RecordInsert(ids)
	return nil
}

// DeleteText удаляет n рун начиная с offset и записывает правку в undo-историю.
func (h *Handle) DeleteText(offset, n int) error {
	if err := h.ensureReady(); err != nil {
		return err
	}

	ids := h.doc.DeleteText(offset, n)
	h.undo.RecordDelete(ids)
	return nil
}

// Text возвращает текущее содержимое текстового буфера.
func (h *Handle) Text() string {
	return h.doc.Text()
}

// ApplyRemote применяет полученное от узла состояние или delta.
// Подавлять ретрансляцию не требуется: в рассылку попадают только
// элементы авторства локальной реплики.
func (h *Handle) ApplyRemote(data []byte) error {
	_, err := h.doc.ApplyState(data)
	return err
}

// BindNetwork привязывает рассылку локальных delta в комнату.
// Не более одной привязки: повторный вызов замещает предыдущую.
func (h *Handle) BindNetwork(broadcast func(update []byte)) {
	h.mu.Lock()
	h.broadcast = broadcast
	h.mu.Unlock()
}

// UnbindNetwork снимает сетевую привязку документа.
func (h *Handle) UnbindNetwork() {
	h.mu.Lock()
	h.broadcast = nil
	h.peerCount = 0
	h.mu.Unlock()
}

// SetPeerCount обновляет количество участников для статистики.
// Вызывается сетевым слоем при каждом изменении roster.
func (h *Handle) SetPeerCount(n int) {
	h.mu.Lock()
	h.peerCount = n
	h.mu.Unlock()

	h.svc.emitStats(h)
}
