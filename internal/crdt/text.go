package crdt

import "strings"

// Text реплицированный текстовый буфер: последовательность,
// в которой каждый элемент хранит одну руну.
type Text struct {
	seq *Sequence
}

// NewText создает пустой текстовый буфер поверх общих часов документа.
func NewText(clock *Clock) *Text {
	return &Text{seq: NewSequence(clock)}
}

// Insert вставляет строку s по offset (в рунах).
// Возвращает идентификаторы созданных элементов.
func (t *Text) Insert(offset int, s string) []ItemID {
	if s == "" {
		return nil
	}

	runes := []rune(s)
	values := make([]string, len(runes))
	for i, r := range runes {
		values[i] = string(r)
	}

	return t.seq.InsertAt(offset, values)
}

// Delete помечает n рун начиная с offset как удаленные.
// Возвращает идентификаторы затронутых элементов.
func (t *Text) Delete(offset, n int) []ItemID {
	return t.seq.DeleteAt(offset, n)
}

// String возвращает текущее содержимое буфера.
func (t *Text) String() string {
	var b strings.Builder
	for _, v := range t.seq.Values() {
		b.WriteString(v)
	}
	return b.String()
}

// Len возвращает длину текста в рунах.
func (t *Text) Len() int {
	return t.seq.Len()
}

// Sequence возвращает последовательность, лежащую в основе буфера.
// Нужна undo-менеджеру и сериализации документа.
func (t *Text) Sequence() *Sequence {
	return t.seq
}
