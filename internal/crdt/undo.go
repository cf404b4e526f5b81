package crdt

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// DefaultCaptureTimeout окно склейки: правки в пределах окна
	// объединяются в один шаг undo
	DefaultCaptureTimeout = 500 * time.Millisecond
	// DefaultMaxUndoDepth максимальная глубина стека undo
	DefaultMaxUndoDepth = 100
)

// stepKind тип записанного шага
type stepKind int

const (
	stepInsert stepKind = iota
	stepDelete
)

// undoStep один шаг истории: набор элементов текста, затронутых
// одной (возможно склеенной) пользовательской правкой.
type undoStep struct {
	at   time.Time
	ids  []ItemID
	kind stepKind
}

// UndoManager управляет историей локальных правок текстового буфера.
// Откат вставки помечает элементы удаленными, откат удаления воскрешает
// их со свежим timestamp, поэтому undo корректно сходится с
// конкурентными правками других реплик.
type UndoManager struct {
	doc       *Document
	clk       clock.Clock
	undoStack []*undoStep
	redoStack []*undoStep
	timeout   time.Duration
	maxDepth  int
	destroyed bool
	mu        sync.Mutex
}

// NewUndoManager создает undo-менеджер над текстовым буфером документа.
func NewUndoManager(doc *Document) *UndoManager {
	return NewUndoManagerWithClock(doc, clock.New())
}

// NewUndoManagerWithClock создает undo-менеджер с заданными часами.
// Используется в тестах для контроля окна склейки.
func NewUndoManagerWithClock(doc *Document, clk clock.Clock) *UndoManager {
	return &UndoManager{
		doc:      doc,
		clk:      clk,
		timeout:  DefaultCaptureTimeout,
		maxDepth: DefaultMaxUndoDepth,
	}
}

// RecordInsert записывает локальную вставку.
// Вставки в пределах окна склейки объединяются в один шаг.
func (u *UndoManager) RecordInsert(ids []ItemID) {
	u.record(stepInsert, ids)
}

// RecordDelete записывает локальное удаление.
func (u *UndoManager) RecordDelete(ids []ItemID) {
	u.record(stepDelete, ids)
}

func (u *UndoManager) record(kind stepKind, ids []ItemID) {
	if len(ids) == 0 {
		return
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.destroyed {
		return
	}

	// Новая правка инвалидирует redo-историю
	u.redoStack = nil

	now := u.clk.Now()

	// Склеиваем с последним шагом того же типа в пределах окна
	if n := len(u.undoStack); n > 0 {
		last := u.undoStack[n-1]
		if last.kind == kind && now.Sub(last.at) < u.timeout {
			last.ids = append(last.ids, ids...)
			last.at = now
			return
		}
	}

	u.undoStack = append(u.undoStack, &undoStep{kind: kind, ids: ids, at: now})

	// Ограничиваем глубину стека, отбрасывая самые старые шаги
	if len(u.undoStack) > u.maxDepth {
		excess := len(u.undoStack) - u.maxDepth
		u.undoStack = append([]*undoStep(nil), u.undoStack[excess:]...)
	}
}

// Undo откатывает последний шаг. Возвращает false, если откатывать нечего.
func (u *UndoManager) Undo() bool {
	u.mu.Lock()
	if u.destroyed || len(u.undoStack) == 0 {
		u.mu.Unlock()
		return false
	}

	step := u.undoStack[len(u.undoStack)-1]
	u.undoStack = u.undoStack[:len(u.undoStack)-1]
	u.redoStack = append(u.redoStack, step)
	u.mu.Unlock()

	// Откат вставки - удаление, откат удаления - воскрешение
	u.doc.SetTextDeleted(step.ids, step.kind == stepInsert)
	return true
}

// Redo повторяет последний откаченный шаг. Возвращает false, если нечего.
func (u *UndoManager) Redo() bool {
	u.mu.Lock()
	if u.destroyed || len(u.redoStack) == 0 {
		u.mu.Unlock()
		return false
	}

	step := u.redoStack[len(u.redoStack)-1]
	u.redoStack = u.redoStack[:len(u.redoStack)-1]
	u.undoStack = append(u.undoStack, step)
	u.mu.Unlock()

	u.doc.SetTextDeleted(step.ids, step.kind == stepDelete)
	return true
}

// CanUndo сообщает, есть ли шаги для отката.
func (u *UndoManager) CanUndo() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.destroyed && len(u.undoStack) > 0
}

// CanRedo сообщает, есть ли шаги для повтора.
func (u *UndoManager) CanRedo() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return !u.destroyed && len(u.redoStack) > 0
}

// Destroy освобождает историю. Дальнейшие вызовы - no-op.
func (u *UndoManager) Destroy() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.destroyed = true
	u.undoStack = nil
	u.redoStack = nil
}
