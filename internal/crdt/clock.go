package crdt

import (
	"sync"

	"github.com/google/uuid"
)

// Clock представляет логические часы Лампорта для упорядочивания событий
// между репликами без синхронизации физического времени.
type Clock struct {
	nodeID  string     // уникальный идентификатор реплики
	counter int64      // монотонно возрастающий счетчик
	mu      sync.Mutex // мьютекс для потокобезопасности
}

// NewClock создает новые логические часы с уникальным идентификатором
// реплики (UUID).
func NewClock() *Clock {
	return &Clock{nodeID: uuid.New().String()}
}

// NewClockWithNodeID создает логические часы с заданным идентификатором
// реплики. Используется в тестах и при восстановлении состояния.
func NewClockWithNodeID(nodeID string) *Clock {
	return &Clock{nodeID: nodeID}
}

// Tick увеличивает счетчик и возвращает новый timestamp.
// Вызывается при каждой локальной операции.
func (c *Clock) Tick() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.counter++
	return c.counter
}

// Observe обновляет счетчик по полученному удаленному timestamp.
// Согласно алгоритму Лампорта: counter = max(counter, remote) + 1
func (c *Clock) Observe(remote int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	if remote > c.counter {
		c.counter = remote
	}
	c.counter++

	return c.counter
}

// Current возвращает текущее значение счетчика без изменения.
func (c *Clock) Current() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counter
}

// NodeID возвращает идентификатор реплики.
func (c *Clock) NodeID() string {
	return c.nodeID
}
