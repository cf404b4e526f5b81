package crdt

import (
	"encoding/json"
	"sort"
	"sync"
)

// Register представляет одно значение в LWW map: данные плюс метка
// последней записи. Конфликты разрешаются по правилу Last-Write-Wins.
type Register struct {
	Value     json.RawMessage `json:"value"`
	StampNode string          `json:"stamp_node"` // реплика, выполнившая последнюю запись
	Stamp     int64           `json:"stamp"`      // Lamport timestamp последней записи
	Deleted   bool            `json:"deleted"`    // флаг мягкого удаления
}

// Clone создает глубокую копию регистра
func (r *Register) Clone() *Register {
	value := make(json.RawMessage, len(r.Value))
	copy(value, r.Value)

	clone := *r
	clone.Value = value
	return &clone
}

// isNewerThan сравнивает две записи по правилу LWW:
// 1. Сначала сравнивается Stamp (больший выигрывает)
// 2. При равных Stamp сравнивается StampNode (лексикографически)
func (r *Register) isNewerThan(other *Register) bool {
	if r.Stamp != other.Stamp {
		return r.Stamp > other.Stamp
	}
	return r.StampNode > other.StampNode
}

// Map реплицированная key-value map с разрешением конфликтов
// по принципу Last-Write-Wins на каждый ключ.
type Map struct {
	clock     *Clock
	registers map[string]*Register
	mu        sync.RWMutex
}

// NewMap создает пустую map поверх общих часов документа.
func NewMap(clock *Clock) *Map {
	return &Map{
		clock:     clock,
		registers: make(map[string]*Register),
	}
}

// Set записывает значение по ключу со свежим timestamp.
func (m *Map) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.registers[key] = &Register{
		Value:     data,
		Stamp:     m.clock.Tick(),
		StampNode: m.clock.NodeID(),
	}
	return nil
}

// Get декодирует значение по ключу в out.
// Возвращает false, если ключ отсутствует или удален.
func (m *Map) Get(key string, out any) (bool, error) {
	m.mu.RLock()
	reg, ok := m.registers[key]
	m.mu.RUnlock()

	if !ok || reg.Deleted {
		return false, nil
	}

	if err := json.Unmarshal(reg.Value, out); err != nil {
		return false, err
	}
	return true, nil
}

// Delete помечает ключ как удаленный (soft delete).
// Физически регистр остается, чтобы merge корректно разрешал конфликты.
func (m *Map) Delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	reg, ok := m.registers[key]
	if !ok || reg.Deleted {
		return false
	}

	reg.Value = nil
	reg.Deleted = true
	reg.Stamp = m.clock.Tick()
	reg.StampNode = m.clock.NodeID()
	return true
}

// Keys возвращает отсортированный список неудаленных ключей.
func (m *Map) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.registers))
	for key, reg := range m.registers {
		if !reg.Deleted {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}

// Len возвращает количество неудаленных ключей.
func (m *Map) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	count := 0
	for _, reg := range m.registers {
		if !reg.Deleted {
			count++
		}
	}
	return count
}

// Registers возвращает копии всех регистров (включая удаленные).
// Используется для сериализации состояния и delta.
func (m *Map) Registers() map[string]*Register {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Register, len(m.registers))
	for key, reg := range m.registers {
		result[key] = reg.Clone()
	}
	return result
}

// RegistersSince возвращает копии регистров, измененных после stamp.
func (m *Map) RegistersSince(stamp int64) map[string]*Register {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[string]*Register)
	for key, reg := range m.registers {
		if reg.Stamp > stamp {
			result[key] = reg.Clone()
		}
	}
	return result
}

// Merge объединяет полученные регистры с текущим состоянием по правилу LWW.
// Операция коммутативна и идемпотентна. Возвращает true, если
// состояние изменилось.
func (m *Map) Merge(registers map[string]*Register) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	changed := false
	for key, incoming := range registers {
		m.clock.Observe(incoming.Stamp)

		existing, ok := m.registers[key]
		if !ok || incoming.isNewerThan(existing) {
			m.registers[key] = incoming.Clone()
			changed = true
		}
	}
	return changed
}
