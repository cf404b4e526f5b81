package crdt

import (
	"encoding/json"
	"fmt"
)

// List реплицированный упорядоченный список произвольных JSON-значений.
// Значения сериализуются в элементы последовательности.
type List struct {
	seq *Sequence
}

// NewList создает пустой список поверх общих часов документа.
func NewList(clock *Clock) *List {
	return &List{seq: NewSequence(clock)}
}

// Insert вставляет значение перед позицией n.
func (l *List) Insert(n int, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode list value: %w", err)
	}

	l.seq.InsertAt(n, []string{string(data)})
	return nil
}

// Append добавляет значение в конец списка.
func (l *List) Append(value any) error {
	return l.Insert(l.seq.Len(), value)
}

// Delete помечает элемент на позиции n как удаленный.
// Возвращает false, если позиции не существует.
func (l *List) Delete(n int) bool {
	return len(l.seq.DeleteAt(n, 1)) == 1
}

// Get декодирует элемент на позиции n в out.
func (l *List) Get(n int, out any) (bool, error) {
	raw, ok := l.seq.Get(n)
	if !ok {
		return false, nil
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return false, fmt.Errorf("failed to decode list value: %w", err)
	}
	return true, nil
}

// Values возвращает сырые JSON-значения всех элементов по порядку.
func (l *List) Values() []json.RawMessage {
	raw := l.seq.Values()
	result := make([]json.RawMessage, len(raw))
	for i, v := range raw {
		result[i] = json.RawMessage(v)
	}
	return result
}

// Len возвращает количество элементов в списке.
func (l *List) Len() int {
	return l.seq.Len()
}

// Sequence возвращает последовательность, лежащую в основе списка.
func (l *List) Sequence() *Sequence {
	return l.seq
}
