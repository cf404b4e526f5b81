// Package docstore владеет реплицированным состоянием документов:
// реестр открытых документов, история правок (undo/redo) и снимки.
// Сетевые delta рассылаются через привязку, зарегистрированную
// сетевым слоем; UI потребляет события через канал Events.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/crdt"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/storage"
	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/validation"
)

const (
	// DefaultMaxHistoryItems максимальное количество снимков на документ
	DefaultMaxHistoryItems = 50
	// eventBufferSize емкость канала событий для UI
	eventBufferSize = 256
)

// Service реестр документов. Конструируется явно и передается через DI;
// единственный владелец таблицы документ-id -> документ.
type Service struct {
	cache      storage.DocumentCache
	logger     *slog.Logger
	docs       map[string]*Handle
	events     chan Event
	maxHistory int
	mu         sync.Mutex
}

// NewService создает реестр документов поверх долговременного кеша.
func NewService(cache storage.DocumentCache, logger *slog.Logger) *Service {
	return &Service{
		cache:      cache,
		logger:     logger,
		docs:       make(map[string]*Handle),
		events:     make(chan Event, eventBufferSize),
		maxHistory: DefaultMaxHistoryItems,
	}
}

// Open открывает документ, создавая его при первом обращении.
// Возвращает существующий экземпляр, если документ уже открыт.
// Повторный вызов во время создания завершается
// ErrConcurrentInitialization: инвариант "один экземпляр на id"
// предпочтен ожиданию (см. DESIGN.md). Закрытый документ не
// пересоздается - операции над ним завершаются ErrNotFound.
func (s *Service) Open(ctx context.Context, documentID string) (*Handle, error) {
	if err := validation.ValidateDocumentID(documentID); err != nil {
		return nil, err
	}

	s.mu.Lock()
	if h, ok := s.docs[documentID]; ok {
		state := h.currentState()
		s.mu.Unlock()

		switch state {
		case stateReady:
			return h, nil
		case stateInitializing:
			return nil, fmt.Errorf("%w: %s", ErrConcurrentInitialization, documentID)
		default:
			return nil, fmt.Errorf("%w: %s is destroyed", ErrNotFound, documentID)
		}
	}

	h := &Handle{svc: s, id: documentID, state: stateInitializing}
	s.docs[documentID] = h
	s.mu.Unlock()

	doc := crdt.NewDocument(documentID)

	// Подмердживаем закешированное состояние для offline-продолжения.
	// Ошибки кеша не фатальны: документ откроется пустым.
	if cached, err := s.cache.Load(ctx, documentID); err == nil {
		if _, err := doc.ApplyState(cached); err != nil {
			s.logger.Warn("Failed to apply cached state", "document_id", documentID, "error", err)
		}
	} else if !errors.Is(err, storage.ErrStateNotFound) {
		s.logger.Warn("Failed to load cached state", "document_id", documentID, "error", err)
	}

	h.doc = doc
	h.undo = crdt.NewUndoManager(doc)
	h.watermark = doc.Version()

	// Hook рассылает delta и пересчитывает статистику на каждое изменение
	doc.OnChange(func() { s.handleChange(h) })

	h.setState(stateReady)
	s.logger.Info("Document opened", "document_id", documentID)

	return h, nil
}

// handleChange обрабатывает каждое изменение состояния документа:
// delta в канал событий и в сеть, персист, статистика.
func (s *Service) handleChange(h *Handle) {
	h.mu.Lock()
	delta, authored, mark, err := h.doc.EncodeUpdates(h.watermark)
	if err != nil {
		h.mu.Unlock()
		s.logger.Error("Failed to encode update", "document_id", h.id, "error", err)
		return
	}
	h.watermark = mark
	broadcast := h.broadcast
	h.mu.Unlock()

	s.emit(Event{Kind: EventUpdate, DocumentID: h.id, Update: delta})

	// В комнату уходят только изменения авторства локальной реплики:
	// полученное от узлов не ретранслируется, а локальная правка,
	// попавшая в окно удаленного применения, не теряется
	if broadcast != nil && authored != nil {
		broadcast(authored)
	}

	s.persist(h)
	s.emitStats(h)
}

// persist сохраняет полное состояние документа в кеш (best effort)
func (s *Service) persist(h *Handle) {
	state, err := h.doc.EncodeState()
	if err != nil {
		s.logger.Error("Failed to encode state", "document_id", h.id, "error", err)
		return
	}
	if err := s.cache.Persist(context.Background(), h.id, state); err != nil {
		s.logger.Warn("Failed to persist state", "document_id", h.id, "error", err)
	}
}

// emitStats пересчитывает и публикует статистику документа
func (s *Service) emitStats(h *Handle) {
	stats := h.doc.Stats()

	h.mu.Lock()
	stats.SnapshotCount = len(h.snapshots)
	stats.PeerCount = h.peerCount
	h.mu.Unlock()

	s.emit(Event{Kind: EventStats, DocumentID: h.id, Stats: stats})
}

// lookup возвращает документ в состоянии Ready.
func (s *Service) lookup(documentID string) (*Handle, error) {
	s.mu.Lock()
	h, ok := s.docs[documentID]
	s.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, documentID)
	}

	switch h.currentState() {
	case stateReady:
		return h, nil
	case stateInitializing:
		return nil, ErrNotReady
	default:
		return nil, fmt.Errorf("%w: %s is destroyed", ErrNotFound, documentID)
	}
}

// Close закрывает документ: снимает сетевую привязку, сохраняет
// финальное состояние, уничтожает undo-историю и снимки.
// Идемпотентен: закрытие неизвестного или закрытого id - no-op.
func (s *Service) Close(ctx context.Context, documentID string) {
	s.mu.Lock()
	h, ok := s.docs[documentID]
	s.mu.Unlock()

	if !ok || h.currentState() != stateReady {
		return
	}

	h.UnbindNetwork()

	// Финальный персист до разрушения
	if state, err := h.doc.EncodeState(); err == nil {
		if err := s.cache.Persist(ctx, documentID, state); err != nil {
			s.logger.Warn("Failed to persist final state", "document_id", documentID, "error", err)
		}
	}

	h.undo.Destroy()

	h.mu.Lock()
	h.snapshots = nil
	h.state = stateDestroyed
	h.mu.Unlock()

	s.logger.Info("Document closed", "document_id", documentID)
}

// Undo откатывает последнюю локальную правку.
// Возвращает false, если откатывать нечего.
func (s *Service) Undo(documentID string) (bool, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return false, err
	}
	return h.undo.Undo(), nil
}

// Redo повторяет последнюю откаченную правку.
func (s *Service) Redo(documentID string) (bool, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return false, err
	}
	return h.undo.Redo(), nil
}

// CreateSnapshot сериализует текущее состояние документа в снимок.
// История ограничена maxHistory: лишние старые записи отбрасываются
// одним проходом.
func (s *Service) CreateSnapshot(documentID, authorID, label string) (*models.Snapshot, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return nil, err
	}

	state, err := h.doc.EncodeState()
	if err != nil {
		return nil, fmt.Errorf("failed to serialize document: %w", err)
	}

	snap := &models.Snapshot{
		ID:         uuid.New().String(),
		DocumentID: documentID,
		AuthorID:   authorID,
		Label:      label,
		State:      state,
		CreatedAt:  time.Now(),
	}

	h.mu.Lock()
	h.snapshots = append(h.snapshots, snap)
	if excess := len(h.snapshots) - s.maxHistory; excess > 0 {
		h.snapshots = append([]*models.Snapshot(nil), h.snapshots[excess:]...)
	}
	h.mu.Unlock()

	s.emitStats(h)
	return snap.Clone(), nil
}

// RestoreSnapshot применяет состояние снимка к документу.
// Перед применением автоматически создается резервный снимок.
// Применение аддитивно (CRDT merge): результат - объединение истории
// снимка с конкурентными правками; жесткий сброс не выполняется.
// При неудаче merge возвращает false, резервный снимок сохраняется.
func (s *Service) RestoreSnapshot(documentID, snapshotID string) (bool, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return false, err
	}

	h.mu.Lock()
	var snap *models.Snapshot
	for _, candidate := range h.snapshots {
		if candidate.ID == snapshotID {
			snap = candidate.Clone()
			break
		}
	}
	h.mu.Unlock()

	if snap == nil {
		return false, fmt.Errorf("%w: snapshot %s", ErrNotFound, snapshotID)
	}

	// Самозащитный резервный снимок до любых изменений
	backupLabel := snap.Label
	if backupLabel == "" {
		backupLabel = snap.ID
	}
	if _, err := s.CreateSnapshot(documentID, h.doc.NodeID(), "before restore "+backupLabel); err != nil {
		return false, err
	}

	if _, err := h.doc.ApplyState(snap.State); err != nil {
		s.logger.Error("Failed to restore snapshot", "document_id", documentID, "snapshot_id", snapshotID, "error", err)
		return false, nil
	}

	return true, nil
}

// Snapshots возвращает копию истории снимков документа
// (от старых к новым).
func (s *Service) Snapshots(documentID string) ([]*models.Snapshot, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	result := make([]*models.Snapshot, 0, len(h.snapshots))
	for _, snap := range h.snapshots {
		result = append(result, snap.Clone())
	}
	return result, nil
}

// MergeDocuments сливает полное состояние source в target.
// Merge коммутативен и идемпотентен: порядок и дублирование
// применения не влияют на результат.
func (s *Service) MergeDocuments(targetID, sourceID string) error {
	if targetID == sourceID {
		return fmt.Errorf("%w: %s", ErrSelfMerge, targetID)
	}

	target, err := s.lookup(targetID)
	if err != nil {
		return err
	}
	source, err := s.lookup(sourceID)
	if err != nil {
		return err
	}

	state, err := source.doc.EncodeState()
	if err != nil {
		return fmt.Errorf("failed to serialize source document: %w", err)
	}

	if _, err := target.doc.ApplyState(state); err != nil {
		return fmt.Errorf("failed to merge documents: %w", err)
	}
	return nil
}

// ExportState сериализует полное состояние документа для холодной
// передачи (например, приглашение узла без реплея всей истории).
func (s *Service) ExportState(documentID string) ([]byte, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return nil, err
	}
	return h.doc.EncodeState()
}

// ImportState подмердживает сериализованное состояние к документу.
func (s *Service) ImportState(documentID string, data []byte) error {
	h, err := s.lookup(documentID)
	if err != nil {
		return err
	}

	if _, err := h.doc.ApplyState(data); err != nil {
		return fmt.Errorf("failed to import state: %w", err)
	}
	return nil
}

// Stats возвращает статистику документа, пересчитанную по запросу.
func (s *Service) Stats(documentID string) (*models.DocumentStats, error) {
	h, err := s.lookup(documentID)
	if err != nil {
		return nil, err
	}

	stats := h.doc.Stats()
	h.mu.Lock()
	stats.SnapshotCount = len(h.snapshots)
	stats.PeerCount = h.peerCount
	h.mu.Unlock()

	return stats, nil
}

// PublishCursors публикует положения курсоров участников в канал
// событий. Вызывается сетевым слоем.
func (s *Service) PublishCursors(documentID string, cursors []models.CursorState) {
	s.emit(Event{Kind: EventCursors, DocumentID: documentID, Cursors: cursors})
}

// Shutdown закрывает все открытые документы.
func (s *Service) Shutdown(ctx context.Context) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.docs))
	for id := range s.docs {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	for _, id := range ids {
		s.Close(ctx, id)
	}
}
