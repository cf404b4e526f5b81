package crdt

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Hermes-Lekkas/Kalynt-sub002/internal/models"
)

// Document реплицированный документ: текстовый буфер плюс именованные
// списки и map, разделяющие одни логические часы. Все изменения
// (локальные и удаленные) сходятся на всех репликах независимо от
// порядка и дублирования доставки.
type Document struct {
	id       string
	clock    *Clock
	text     *Text
	lists    map[string]*List
	maps     map[string]*Map
	onChange func()
	mu       sync.RWMutex

	// stateMu сериализует изменения состояния относительно encode:
	// мутации берут shared-сторону, encode - exclusive. Encode видит
	// согласованный срез всех контейнеров и часов, без изменений
	// "в полете", которые delta могла бы потерять.
	stateMu sync.RWMutex
}

// documentState сериализованное состояние документа.
// Включает tombstones, поэтому применяется к любой реплике через merge.
type documentState struct {
	Lists      map[string][]*Item              `json:"lists"`
	Maps       map[string]map[string]*Register `json:"maps"`
	DocumentID string                          `json:"document_id"`
	Text       []*Item                         `json:"text"`
	Clock      int64                           `json:"clock"`
}

// NewDocument создает пустой документ с новыми часами.
func NewDocument(id string) *Document {
	clock := NewClock()
	return &Document{
		id:    id,
		clock: clock,
		text:  NewText(clock),
		lists: make(map[string]*List),
		maps:  make(map[string]*Map),
	}
}

// ID возвращает идентификатор документа.
func (d *Document) ID() string {
	return d.id
}

// NodeID возвращает идентификатор локальной реплики.
func (d *Document) NodeID() string {
	return d.clock.NodeID()
}

// Version возвращает текущее значение логических часов документа.
// Используется как отметка "видел все изменения до" при encode delta.
func (d *Document) Version() int64 {
	return d.clock.Current()
}

// OnChange регистрирует hook, вызываемый после каждого изменения
// состояния. Не более одной регистрации на документ: повторный вызов
// замещает предыдущий hook.
func (d *Document) OnChange(fn func()) {
	d.mu.Lock()
	d.onChange = fn
	d.mu.Unlock()
}

func (d *Document) notify() {
	d.mu.RLock()
	fn := d.onChange
	d.mu.RUnlock()

	if fn != nil {
		fn()
	}
}

// InsertText вставляет строку s по offset в текстовый буфер.
// Возвращает идентификаторы созданных элементов (для undo).
func (d *Document) InsertText(offset int, s string) []ItemID {
	d.stateMu.RLock()
	ids := d.text.Insert(offset, s)
	d.stateMu.RUnlock()

	if len(ids) > 0 {
		d.notify()
	}
	return ids
}

// DeleteText удаляет n рун начиная с offset.
// Возвращает идентификаторы затронутых элементов (для undo).
func (d *Document) DeleteText(offset, n int) []ItemID {
	d.stateMu.RLock()
	ids := d.text.Delete(offset, n)
	d.stateMu.RUnlock()

	if len(ids) > 0 {
		d.notify()
	}
	return ids
}

// Text возвращает текущее содержимое текстового буфера.
func (d *Document) Text() string {
	return d.text.String()
}

// TextLen возвращает длину текста в рунах.
func (d *Document) TextLen() int {
	return d.text.Len()
}

// SetTextDeleted меняет флаг удаления элементов текста со свежим stamp.
// Используется undo-менеджером.
func (d *Document) SetTextDeleted(ids []ItemID, deleted bool) {
	d.stateMu.RLock()
	changed := false
	for _, id := range ids {
		if d.text.Sequence().SetDeleted(id, deleted) {
			changed = true
		}
	}
	d.stateMu.RUnlock()

	if changed {
		d.notify()
	}
}

// List возвращает именованный список, создавая его при первом обращении.
func (d *Document) List(name string) *List {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.lists[name]
	if !ok {
		l = NewList(d.clock)
		d.lists[name] = l
	}
	return l
}

// Map возвращает именованную map, создавая ее при первом обращении.
func (d *Document) Map(name string) *Map {
	d.mu.Lock()
	defer d.mu.Unlock()

	m, ok := d.maps[name]
	if !ok {
		m = NewMap(d.clock)
		d.maps[name] = m
	}
	return m
}

// ListInsert вставляет значение в именованный список и уведомляет hook.
func (d *Document) ListInsert(name string, n int, value any) error {
	d.stateMu.RLock()
	err := d.List(name).Insert(n, value)
	d.stateMu.RUnlock()

	if err != nil {
		return err
	}
	d.notify()
	return nil
}

// ListDelete удаляет элемент именованного списка и уведомляет hook.
func (d *Document) ListDelete(name string, n int) bool {
	d.stateMu.RLock()
	ok := d.List(name).Delete(n)
	d.stateMu.RUnlock()

	if ok {
		d.notify()
	}
	return ok
}

// MapSet записывает значение в именованную map и уведомляет hook.
func (d *Document) MapSet(name, key string, value any) error {
	d.stateMu.RLock()
	err := d.Map(name).Set(key, value)
	d.stateMu.RUnlock()

	if err != nil {
		return err
	}
	d.notify()
	return nil
}

// MapDelete удаляет ключ именованной map и уведомляет hook.
func (d *Document) MapDelete(name, key string) bool {
	d.stateMu.RLock()
	ok := d.Map(name).Delete(key)
	d.stateMu.RUnlock()

	if ok {
		d.notify()
	}
	return ok
}

// EncodeState сериализует полное состояние документа (включая tombstones).
func (d *Document) EncodeState() ([]byte, error) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.mu.RLock()
	defer d.mu.RUnlock()

	state := documentState{
		DocumentID: d.id,
		Clock:      d.clock.Current(),
		Text:       d.text.Sequence().Items(),
		Lists:      make(map[string][]*Item, len(d.lists)),
		Maps:       make(map[string]map[string]*Register, len(d.maps)),
	}
	for name, l := range d.lists {
		state.Lists[name] = l.Sequence().Items()
	}
	for name, m := range d.maps {
		state.Maps[name] = m.Registers()
	}

	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document state: %w", err)
	}
	return data, nil
}

// captureSince собирает элементы, измененные после since.
// Вызывается под exclusive stateMu и d.mu.RLock.
func (d *Document) captureSince(since int64) documentState {
	state := documentState{
		DocumentID: d.id,
		Clock:      d.clock.Current(),
		Text:       d.text.Sequence().ItemsSince(since),
		Lists:      make(map[string][]*Item),
		Maps:       make(map[string]map[string]*Register),
	}
	for name, l := range d.lists {
		if items := l.Sequence().ItemsSince(since); len(items) > 0 {
			state.Lists[name] = items
		}
	}
	for name, m := range d.maps {
		if regs := m.RegistersSince(since); len(regs) > 0 {
			state.Maps[name] = regs
		}
	}
	return state
}

// EncodeUpdate сериализует delta: элементы, измененные после since.
// Результат применяется через ApplyState, как и полное состояние.
func (d *Document) EncodeUpdate(since int64) ([]byte, error) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.mu.RLock()
	defer d.mu.RUnlock()

	data, err := json.Marshal(d.captureSince(since))
	if err != nil {
		return nil, fmt.Errorf("failed to encode document update: %w", err)
	}
	return data, nil
}

// EncodeUpdates кодирует два delta с изменениями после since: полный,
// для канала событий UI, и authored - только из элементов, чье последнее
// изменение сделано локальной репликой. Authored-delta рассылается в
// комнату: полученное от узлов в него не попадает и не ретранслируется.
// Возвращаемая отметка mark - значение часов на момент среза; элементы
// с большим Stamp в delta не вошли и будут закодированы следующим
// вызовом. Nil authored означает, что рассылать нечего.
func (d *Document) EncodeUpdates(since int64) (delta, authored []byte, mark int64, err error) {
	d.stateMu.Lock()
	defer d.stateMu.Unlock()
	d.mu.RLock()
	defer d.mu.RUnlock()

	full := d.captureSince(since)
	mark = full.Clock

	delta, err = json.Marshal(full)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to encode document update: %w", err)
	}

	nodeID := d.clock.NodeID()
	own := documentState{
		DocumentID: d.id,
		Clock:      full.Clock,
		Text:       ownItems(full.Text, nodeID),
		Lists:      make(map[string][]*Item),
		Maps:       make(map[string]map[string]*Register),
	}
	count := len(own.Text)
	for name, items := range full.Lists {
		if owned := ownItems(items, nodeID); len(owned) > 0 {
			own.Lists[name] = owned
			count += len(owned)
		}
	}
	for name, regs := range full.Maps {
		owned := make(map[string]*Register)
		for key, reg := range regs {
			if reg.StampNode == nodeID {
				owned[key] = reg
			}
		}
		if len(owned) > 0 {
			own.Maps[name] = owned
			count += len(owned)
		}
	}

	if count == 0 {
		return delta, nil, mark, nil
	}

	authored, err = json.Marshal(own)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("failed to encode document update: %w", err)
	}
	return delta, authored, mark, nil
}

// ownItems отбирает элементы, чье последнее изменение авторства nodeID.
func ownItems(items []*Item, nodeID string) []*Item {
	result := make([]*Item, 0, len(items))
	for _, it := range items {
		if it.StampNode == nodeID {
			result = append(result, it)
		}
	}
	return result
}

// ApplyState объединяет сериализованное состояние или delta с текущим
// состоянием документа. Merge аддитивный: ничего не затирается,
// конфликты разрешаются CRDT-правилами. Возвращает true, если
// состояние изменилось.
func (d *Document) ApplyState(data []byte) (bool, error) {
	var state documentState
	if err := json.Unmarshal(data, &state); err != nil {
		return false, fmt.Errorf("failed to decode document state: %w", err)
	}

	d.stateMu.RLock()
	d.clock.Observe(state.Clock)

	changed := d.text.Sequence().Merge(state.Text)
	for name, items := range state.Lists {
		if d.List(name).Sequence().Merge(items) {
			changed = true
		}
	}
	for name, regs := range state.Maps {
		if d.Map(name).Merge(regs) {
			changed = true
		}
	}
	d.stateMu.RUnlock()

	if changed {
		d.notify()
	}
	return changed, nil
}

// Stats возвращает статистику контейнеров документа.
// Snapshot и peer counts заполняет вышестоящий слой.
func (d *Document) Stats() *models.DocumentStats {
	d.mu.RLock()
	defer d.mu.RUnlock()

	stats := &models.DocumentStats{
		TextLength: d.text.Len(),
		ListCounts: make(map[string]int, len(d.lists)),
		MapCounts:  make(map[string]int, len(d.maps)),
	}
	for name, l := range d.lists {
		stats.ListCounts[name] = l.Len()
	}
	for name, m := range d.maps {
		stats.MapCounts[name] = m.Len()
	}
	return stats
}
