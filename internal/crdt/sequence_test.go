package crdt

import (
	"math/rand"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSequence_InsertAt(t *testing.T) {
	seq := NewSequence(NewClockWithNodeID("node1"))

	ids := seq.InsertAt(0, []string{"a", "b", "c"})
	require.Len(t, ids, 3)
	assert.Equal(t, []string{"a", "b", "c"}, seq.Values())

	// Вставка в середину
	seq.InsertAt(1, []string{"x"})
	assert.Equal(t, []string{"a", "x", "b", "c"}, seq.Values())

	// Вставка в конец
	seq.InsertAt(4, []string{"z"})
	assert.Equal(t, []string{"a", "x", "b", "c", "z"}, seq.Values())
	assert.Equal(t, 5, seq.Len())
}

func TestSequence_DeleteAt(t *testing.T) {
	seq := NewSequence(NewClockWithNodeID("node1"))
	seq.InsertAt(0, []string{"a", "b", "c", "d"})

	ids := seq.DeleteAt(1, 2)
	require.Len(t, ids, 2)
	assert.Equal(t, []string{"a", "d"}, seq.Values())
	assert.Equal(t, 2, seq.Len())

	// Tombstones остаются в полном списке элементов
	assert.Len(t, seq.Items(), 4)
}

func TestSequence_SetDeleted(t *testing.T) {
	seq := NewSequence(NewClockWithNodeID("node1"))
	ids := seq.InsertAt(0, []string{"a"})

	require.True(t, seq.SetDeleted(ids[0], true))
	assert.Equal(t, 0, seq.Len())

	// Воскрешение tombstone
	require.True(t, seq.SetDeleted(ids[0], false))
	assert.Equal(t, []string{"a"}, seq.Values())

	// Неизвестный элемент
	assert.False(t, seq.SetDeleted(ItemID{Counter: 999, NodeID: "ghost"}, true))
}

func TestSequence_MergeConvergence(t *testing.T) {
	// Две реплики вносят конкурентные правки, затем обмениваются
	// состоянием в разном порядке и с дублированием - результат одинаков.
	a := NewSequence(NewClockWithNodeID("nodeA"))
	b := NewSequence(NewClockWithNodeID("nodeB"))

	a.InsertAt(0, []string{"h", "i"})
	b.InsertAt(0, []string{"य", "ो"})

	aItems := a.Items()
	bItems := b.Items()

	// A получает B, затем свое же состояние (дубликат)
	a.Merge(bItems)
	a.Merge(aItems)
	a.Merge(bItems)

	// B получает A
	b.Merge(aItems)

	assert.Equal(t, a.Values(), b.Values(), "replicas must converge")
	assert.Equal(t, 4, a.Len())
}

func TestSequence_MergeDeleteLWW(t *testing.T) {
	a := NewSequence(NewClockWithNodeID("nodeA"))
	b := NewSequence(NewClockWithNodeID("nodeB"))

	a.InsertAt(0, []string{"x"})
	b.Merge(a.Items())

	// B удаляет элемент, A об этом узнает
	b.DeleteAt(0, 1)
	a.Merge(b.Items())
	assert.Equal(t, 0, a.Len())

	// Повторное применение того же удаления ничего не меняет
	changed := a.Merge(b.Items())
	assert.False(t, changed, "idempotent merge must report no change")
}

func TestSequence_RandomOrderConvergence(t *testing.T) {
	// Три реплики, случайный порядок обмена - все сходятся
	rng := rand.New(rand.NewSource(42))

	replicas := []*Sequence{
		NewSequence(NewClockWithNodeID("node1")),
		NewSequence(NewClockWithNodeID("node2")),
		NewSequence(NewClockWithNodeID("node3")),
	}

	for i, r := range replicas {
		for j := 0; j < 5; j++ {
			r.InsertAt(r.Len(), []string{strconv.Itoa(i*10 + j)})
		}
	}

	// Каждая реплика применяет состояния остальных в случайном порядке
	states := make([][]*Item, len(replicas))
	for i, r := range replicas {
		states[i] = r.Items()
	}

	for _, r := range replicas {
		order := rng.Perm(len(states))
		for _, idx := range order {
			r.Merge(states[idx])
		}
	}

	for i := 1; i < len(replicas); i++ {
		assert.Equal(t, replicas[0].Values(), replicas[i].Values(),
			"replica %d diverged", i)
	}
}

func TestComparePositions(t *testing.T) {
	tests := []struct {
		name string
		a    []int32
		b    []int32
		want int
	}{
		{name: "equal", a: []int32{1, 2}, b: []int32{1, 2}, want: 0},
		{name: "less at depth 0", a: []int32{1}, b: []int32{2}, want: -1},
		{name: "greater at depth 1", a: []int32{1, 5}, b: []int32{1, 3}, want: 1},
		{name: "shorter prefix is less", a: []int32{1}, b: []int32{1, 0}, want: -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, comparePositions(tt.a, tt.b))
		})
	}
}

func TestBetweenPositions(t *testing.T) {
	// Выделенная позиция всегда строго между соседями при любом jitter
	cases := [][2][]int32{
		{nil, nil},
		{{5}, {6}},
		{{5}, {5, 3}},
		{{5}, nil},
		{nil, {1}},
		{{5, 1}, {5, 2}},
	}

	for _, jitter := range []int32{0, 7, positionStep - 1} {
		for _, c := range cases {
			pos := betweenPositions(c[0], c[1], jitter)
			if c[0] != nil {
				assert.Negative(t, comparePositions(c[0], pos), "jitter %d left %v pos %v", jitter, c[0], pos)
			}
			if c[1] != nil {
				assert.Negative(t, comparePositions(pos, c[1]), "jitter %d pos %v right %v", jitter, pos, c[1])
			}
		}
	}
}

func TestBetweenPositions_JitterSeparatesReplicas(t *testing.T) {
	// Разные реплики в одном промежутке получают разные позиции
	a := betweenPositions(nil, nil, nodeJitter("node-a"))
	b := betweenPositions(nil, nil, nodeJitter("node-b"))
	assert.NotZero(t, comparePositions(a, b))
}

func TestSequence_ConcurrentInsertsDoNotInterleave(t *testing.T) {
	// Конкурентные вставки двух реплик в одну точку: после merge обе
	// серии остаются непрерывными, а не перемешиваются посимвольно
	a := NewSequence(NewClockWithNodeID("node-a"))
	b := NewSequence(NewClockWithNodeID("node-b"))

	a.InsertAt(0, strings.Split("alpha", ""))
	b.InsertAt(0, strings.Split("beta", ""))

	a.Merge(b.Items())
	b.Merge(a.Items())

	merged := strings.Join(a.Values(), "")
	assert.Equal(t, merged, strings.Join(b.Values(), ""))
	assert.Contains(t, merged, "alpha")
	assert.Contains(t, merged, "beta")
}
