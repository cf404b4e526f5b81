package crdt

import (
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"sync"
)

// ItemID глобально уникальный идентификатор элемента последовательности:
// логический счетчик плюс идентификатор создавшей реплики.
type ItemID struct {
	NodeID  string `json:"node_id"`
	Counter int64  `json:"counter"`
}

// String возвращает строковое представление идентификатора (ключ для map)
func (id ItemID) String() string {
	return fmt.Sprintf("%d@%s", id.Counter, id.NodeID)
}

// Item представляет один элемент реплицированной последовательности.
// ID и Position неизменяемы после создания; флаг Deleted управляется
// по принципу LWW (больший Stamp выигрывает, при равных — больший StampNode).
// Удаление мягкое: элемент остается tombstone, чтобы merge оставался
// коммутативным и идемпотентным, а undo мог воскресить элемент.
type Item struct {
	ID        ItemID  `json:"id"`
	Position  []int32 `json:"position"`   // позиция в духе Logoot: плотный путь
	Value     string  `json:"value"`      // полезная нагрузка элемента
	StampNode string  `json:"stamp_node"` // реплика, последней менявшая флаг
	Stamp     int64   `json:"stamp"`      // Lamport timestamp последнего изменения флага
	Deleted   bool    `json:"deleted"`    // флаг мягкого удаления
}

// Clone создает глубокую копию элемента
func (it *Item) Clone() *Item {
	pos := make([]int32, len(it.Position))
	copy(pos, it.Position)

	clone := *it
	clone.Position = pos
	return &clone
}

// isNewerThan сравнивает два изменения флага по правилу LWW:
// больший Stamp выигрывает, при равных Stamp — больший StampNode.
func (it *Item) isNewerThan(other *Item) bool {
	if it.Stamp != other.Stamp {
		return it.Stamp > other.Stamp
	}
	return it.StampNode > other.StampNode
}

// comparePositions сравнивает позиции лексикографически.
// Более короткий префикс считается меньшим.
func comparePositions(a, b []int32) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// less задает полный порядок элементов: по позиции, затем по идентификатору
// для детерминированной развязки одинаковых позиций.
func less(a, b *Item) bool {
	if c := comparePositions(a.Position, b.Position); c != 0 {
		return c < 0
	}
	if a.ID.NodeID != b.ID.NodeID {
		return a.ID.NodeID < b.ID.NodeID
	}
	return a.ID.Counter < b.ID.Counter
}

// positionStep ограничивает шаг при выделении позиции в большом промежутке,
// оставляя место для последующих вставок слева и справа.
const positionStep = 1 << 16

// nodeJitter выводит из идентификатора реплики смещение для выделения
// позиций: конкурентные вставки разных реплик в один промежуток
// получают разные позиции и не перемешиваются посимвольно при merge.
func nodeJitter(nodeID string) int32 {
	h := fnv.New32a()
	h.Write([]byte(nodeID))
	return int32(h.Sum32() % positionStep)
}

// betweenPositions выделяет новую позицию строго между left и right.
// Пустой left трактуется как минимум, пустой right — как максимум.
// Середина промежутка смещается на jitter, чтобы реплики с разными
// идентификаторами расходились по разным позициям.
func betweenPositions(left, right []int32, jitter int32) []int32 {
	pos := make([]int32, 0, len(left)+1)
	for depth := 0; ; depth++ {
		var l int32
		if depth < len(left) {
			l = left[depth]
		}
		r := int32(math.MaxInt32)
		if depth < len(right) {
			r = right[depth]
		}

		if gap := r - l; gap > 1 {
			step := gap / 2
			if step > positionStep {
				step = positionStep
			}
			// step + jitter%step < gap: половина промежутка либо
			// удвоенный cap всегда помещаются целиком
			return append(pos, l+step+jitter%step)
		}

		// Промежутка на этой глубине нет - спускаемся уровнем ниже
		pos = append(pos, l)
	}
}

// Sequence реплицированная упорядоченная последовательность (CRDT).
// Конкурентные, переупорядоченные и продублированные изменения
// сходятся к одному состоянию на всех репликах.
type Sequence struct {
	clock  *Clock
	index  map[string]*Item // map[ItemID.String()]item
	items  []*Item          // все элементы (включая tombstones) в порядке позиций
	jitter int32            // смещение позиций, выведенное из NodeID
	mu     sync.RWMutex
}

// NewSequence создает пустую последовательность поверх общих часов документа.
func NewSequence(clock *Clock) *Sequence {
	return &Sequence{
		clock:  clock,
		index:  make(map[string]*Item),
		jitter: nodeJitter(clock.NodeID()),
	}
}

// visibleIndex возвращает индекс n-го видимого элемента в полном срезе
// или len(items), если видимых элементов меньше n+1.
func (s *Sequence) visibleIndex(n int) int {
	seen := 0
	for i, it := range s.items {
		if it.Deleted {
			continue
		}
		if seen == n {
			return i
		}
		seen++
	}
	return len(s.items)
}

// InsertAt вставляет values перед n-м видимым элементом.
// Возвращает идентификаторы созданных элементов (для undo).
func (s *Sequence) InsertAt(n int, values []string) []ItemID {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	at := s.visibleIndex(n)

	var leftPos, rightPos []int32
	if at > 0 {
		leftPos = s.items[at-1].Position
	}
	if at < len(s.items) {
		rightPos = s.items[at].Position
	}

	ids := make([]ItemID, 0, len(values))
	for i, pos := range s.allocateRun(leftPos, rightPos, len(values)) {
		stamp := s.clock.Tick()
		item := &Item{
			ID:        ItemID{Counter: stamp, NodeID: s.clock.NodeID()},
			Position:  pos,
			Value:     values[i],
			Stamp:     stamp,
			StampNode: s.clock.NodeID(),
		}
		s.insertSorted(item)
		ids = append(ids, item.ID)
	}

	return ids
}

// allocateRun выделяет n позиций между left и right одной серией.
// Первая позиция - смещенная на jitter середина промежутка, остальные -
// ее расширения в глубину. Любое расширение сортируется до right,
// поэтому серия остается непрерывной: конкурентная серия другой реплики
// целиком встает до или после нее, а не перемешивается поэлементно.
func (s *Sequence) allocateRun(left, right []int32, n int) [][]int32 {
	positions := make([][]int32, 0, n)

	first := betweenPositions(left, right, s.jitter)
	positions = append(positions, first)

	base := first
	offset := int32(0)
	for i := 1; i < n; i++ {
		// При приближении к переполнению спускаемся еще уровнем ниже
		if offset > math.MaxInt32-2*positionStep {
			base = positions[i-1]
			offset = 0
		}
		offset += positionStep

		pos := make([]int32, len(base)+1)
		copy(pos, base)
		pos[len(base)] = offset
		positions = append(positions, pos)
	}

	return positions
}

// DeleteAt помечает n видимых элементов начиная с позиции from как удаленные.
// Возвращает идентификаторы затронутых элементов (для undo).
func (s *Sequence) DeleteAt(from, n int) []ItemID {
	if n <= 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]ItemID, 0, n)
	seen := 0
	for _, it := range s.items {
		if it.Deleted {
			continue
		}
		if seen >= from && len(ids) < n {
			it.Deleted = true
			it.Stamp = s.clock.Tick()
			it.StampNode = s.clock.NodeID()
			ids = append(ids, it.ID)
		}
		seen++
		if len(ids) == n {
			break
		}
	}

	return ids
}

// SetDeleted выставляет флаг удаления элемента со свежим timestamp.
// Используется undo-менеджером для отката и воскрешения элементов.
// Возвращает false, если элемент неизвестен.
func (s *Sequence) SetDeleted(id ItemID, deleted bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.index[id.String()]
	if !ok {
		return false
	}

	it.Deleted = deleted
	it.Stamp = s.clock.Tick()
	it.StampNode = s.clock.NodeID()
	return true
}

// Get возвращает значение n-го видимого элемента.
func (s *Sequence) Get(n int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := 0
	for _, it := range s.items {
		if it.Deleted {
			continue
		}
		if seen == n {
			return it.Value, true
		}
		seen++
	}
	return "", false
}

// Values возвращает значения всех видимых элементов по порядку.
func (s *Sequence) Values() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]string, 0, len(s.items))
	for _, it := range s.items {
		if !it.Deleted {
			result = append(result, it.Value)
		}
	}
	return result
}

// Len возвращает количество видимых элементов.
func (s *Sequence) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	count := 0
	for _, it := range s.items {
		if !it.Deleted {
			count++
		}
	}
	return count
}

// Items возвращает копии всех элементов (включая tombstones) по порядку.
// Используется для сериализации состояния и delta.
func (s *Sequence) Items() []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Item, 0, len(s.items))
	for _, it := range s.items {
		result = append(result, it.Clone())
	}
	return result
}

// ItemsSince возвращает копии элементов с флагом, измененным после stamp.
func (s *Sequence) ItemsSince(stamp int64) []*Item {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Item, 0)
	for _, it := range s.items {
		if it.Stamp > stamp {
			result = append(result, it.Clone())
		}
	}
	return result
}

// Merge объединяет полученные элементы с текущим состоянием:
// неизвестные элементы вставляются по позиции, для известных флаг
// удаления применяется по правилу LWW. Операция коммутативна и
// идемпотентна. Возвращает true, если состояние изменилось.
func (s *Sequence) Merge(items []*Item) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	for _, incoming := range items {
		s.clock.Observe(incoming.Stamp)

		existing, ok := s.index[incoming.ID.String()]
		if !ok {
			s.insertSorted(incoming.Clone())
			changed = true
			continue
		}

		if incoming.isNewerThan(existing) {
			existing.Deleted = incoming.Deleted
			existing.Stamp = incoming.Stamp
			existing.StampNode = incoming.StampNode
			changed = true
		}
	}

	return changed
}

// insertSorted вставляет элемент в срез по порядку позиций.
// Вызывается под write lock.
func (s *Sequence) insertSorted(item *Item) {
	at := sort.Search(len(s.items), func(i int) bool {
		return !less(s.items[i], item)
	})

	s.items = append(s.items, nil)
	copy(s.items[at+1:], s.items[at:])
	s.items[at] = item
	s.index[item.ID.String()] = item
}
