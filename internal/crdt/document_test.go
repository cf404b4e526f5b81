package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocument_TextEditing(t *testing.T) {
	doc := NewDocument("doc-1")

	doc.InsertText(0, "hello")
	assert.Equal(t, "hello", doc.Text())

	doc.InsertText(5, " world")
	assert.Equal(t, "hello world", doc.Text())

	doc.DeleteText(0, 6)
	assert.Equal(t, "world", doc.Text())
	assert.Equal(t, 5, doc.TextLen())
}

func TestDocument_StateRoundTrip(t *testing.T) {
	doc := NewDocument("doc-1")
	doc.InsertText(0, "hello")
	require.NoError(t, doc.MapSet("meta", "title", "greeting"))
	require.NoError(t, doc.ListInsert("tags", 0, "demo"))

	state, err := doc.EncodeState()
	require.NoError(t, err)

	// Холодный бутстрап новой реплики из полного состояния
	other := NewDocument("doc-1")
	changed, err := other.ApplyState(state)
	require.NoError(t, err)
	require.True(t, changed)

	assert.Equal(t, "hello", other.Text())

	var title string
	ok, err := other.Map("meta").Get("title", &title)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "greeting", title)
	assert.Equal(t, 1, other.List("tags").Len())
}

func TestDocument_ApplyStateIdempotent(t *testing.T) {
	doc := NewDocument("doc-1")
	doc.InsertText(0, "abc")

	state, err := doc.EncodeState()
	require.NoError(t, err)

	other := NewDocument("doc-1")
	_, err = other.ApplyState(state)
	require.NoError(t, err)

	changed, err := other.ApplyState(state)
	require.NoError(t, err)
	assert.False(t, changed, "duplicate state application must be a no-op")
	assert.Equal(t, "abc", other.Text())
}

func TestDocument_MergeCommutative(t *testing.T) {
	// Две реплики с конкурентными правками сходятся независимо
	// от порядка применения состояний
	a := NewDocument("doc-1")
	b := NewDocument("doc-1")

	a.InsertText(0, "left")
	b.InsertText(0, "right")

	aState, err := a.EncodeState()
	require.NoError(t, err)
	bState, err := b.EncodeState()
	require.NoError(t, err)

	_, err = a.ApplyState(bState)
	require.NoError(t, err)
	_, err = b.ApplyState(aState)
	require.NoError(t, err)

	aFinal, err := a.EncodeState()
	require.NoError(t, err)
	bFinal, err := b.EncodeState()
	require.NoError(t, err)

	assert.Equal(t, a.Text(), b.Text())

	// Состояния после полного обмена эквивалентны
	aDoc := NewDocument("doc-1")
	bDoc := NewDocument("doc-1")
	_, err = aDoc.ApplyState(aFinal)
	require.NoError(t, err)
	_, err = bDoc.ApplyState(bFinal)
	require.NoError(t, err)
	assert.Equal(t, aDoc.Text(), bDoc.Text())
}

func TestDocument_EncodeUpdateDelta(t *testing.T) {
	doc := NewDocument("doc-1")
	doc.InsertText(0, "base")

	other := NewDocument("doc-1")
	state, err := doc.EncodeState()
	require.NoError(t, err)
	_, err = other.ApplyState(state)
	require.NoError(t, err)

	// Отметка "видел все до" и последующая правка
	since := doc.Version()
	doc.InsertText(4, "!")

	delta, err := doc.EncodeUpdate(since)
	require.NoError(t, err)

	changed, err := other.ApplyState(delta)
	require.NoError(t, err)
	require.True(t, changed)
	assert.Equal(t, "base!", other.Text())
}

func TestDocument_EncodeUpdatesAuthoredOnly(t *testing.T) {
	doc := NewDocument("doc-1")
	other := NewDocument("doc-1")
	other.InsertText(0, "peer")

	state, err := other.EncodeState()
	require.NoError(t, err)
	_, err = doc.ApplyState(state)
	require.NoError(t, err)

	doc.InsertText(0, "mine")

	delta, authored, mark, err := doc.EncodeUpdates(0)
	require.NoError(t, err)
	assert.Equal(t, doc.Version(), mark)
	assert.NotEmpty(t, delta)
	require.NotNil(t, authored)

	// Authored-delta несет только правки локальной реплики
	replica := NewDocument("doc-1")
	_, err = replica.ApplyState(authored)
	require.NoError(t, err)
	assert.Contains(t, replica.Text(), "mine")
	assert.NotContains(t, replica.Text(), "peer")

	// После продвижения отметки рассылать нечего
	_, authored, _, err = doc.EncodeUpdates(mark)
	require.NoError(t, err)
	assert.Nil(t, authored)
}

func TestDocument_OnChange(t *testing.T) {
	doc := NewDocument("doc-1")

	calls := 0
	doc.OnChange(func() { calls++ })

	doc.InsertText(0, "ab")
	require.Equal(t, 1, calls, "one insert fires one notification")

	doc.DeleteText(0, 1)
	assert.Equal(t, 2, calls)

	// Пустая правка не уведомляет
	doc.InsertText(0, "")
	assert.Equal(t, 2, calls)

	// Повторная регистрация замещает hook
	doc.OnChange(func() { calls += 10 })
	doc.InsertText(0, "x")
	assert.Equal(t, 12, calls)
}

func TestDocument_Stats(t *testing.T) {
	doc := NewDocument("doc-1")
	doc.InsertText(0, "hello")
	require.NoError(t, doc.ListInsert("items", 0, "one"))
	require.NoError(t, doc.ListInsert("items", 1, "two"))
	require.NoError(t, doc.MapSet("meta", "k", "v"))

	stats := doc.Stats()
	assert.Equal(t, 5, stats.TextLength)
	assert.Equal(t, 2, stats.ListCounts["items"])
	assert.Equal(t, 1, stats.MapCounts["meta"])
}
