package keyvault

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"
)

const (
	// MaxRoomKeys максимальное количество ключей комнат в кеше
	MaxRoomKeys = 10
	// KeyExpiration окно неактивности, после которого ключ вытесняется
	// независимо от заполненности кеша
	KeyExpiration = 30 * time.Minute
	// SweepInterval период фоновой очистки просроченных ключей
	SweepInterval = 60 * time.Second
)

// roomKeyEntry закешированный ключ комнаты
type roomKeyEntry struct {
	lastAccess time.Time
	key        []byte
	salt       []byte
}

// Vault хранит производные ключи комнат под строгими ограничениями
// памяти и времени: не более MaxRoomKeys записей (LRU-вытеснение) плюс
// вытеснение по неактивности фоновым sweep. Конструируется явно и
// передается через DI, а не как глобальное состояние.
type Vault struct {
	cache  *lru.Cache[string, *roomKeyEntry]
	clk    clock.Clock
	logger *slog.Logger
	stopC  chan struct{}
	closed bool
	mu     sync.Mutex
}

// NewVault создает vault с системными часами.
func NewVault(logger *slog.Logger) (*Vault, error) {
	return NewVaultWithClock(logger, clock.New())
}

// NewVaultWithClock создает vault с заданными часами.
// Используется в тестах для контроля окна неактивности.
func NewVaultWithClock(logger *slog.Logger, clk clock.Clock) (*Vault, error) {
	cache, err := lru.New[string, *roomKeyEntry](MaxRoomKeys)
	if err != nil {
		return nil, err
	}

	v := &Vault{
		cache:  cache,
		clk:    clk,
		logger: logger,
		stopC:  make(chan struct{}),
	}

	// Запускаем периодическую очистку просроченных ключей
	go v.sweepLoop()

	return v, nil
}

// sweepLoop периодически удаляет ключи, не использовавшиеся дольше
// KeyExpiration
func (v *Vault) sweepLoop() {
	ticker := v.clk.Ticker(SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := v.ClearExpiredKeys(); n > 0 {
				v.logger.Info("Expired room keys purged", "count", n)
			}
		case <-v.stopC:
			return
		}
	}
}

// SetRoomKey деривирует и кеширует ключ комнаты из пароля.
// При заполненном кеше LRU-запись вытесняется перед вставкой.
// Возвращает соль для раздачи присоединяющимся узлам.
func (v *Vault) SetRoomKey(roomID, password string, existingSalt []byte) ([]byte, error) {
	derived, err := DeriveKey(roomID, password, existingSalt)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, ErrVaultClosed
	}

	// lru.Add вытесняет least-recently-used запись при переполнении
	v.cache.Add(roomID, &roomKeyEntry{
		key:        derived.Key,
		salt:       derived.Salt,
		lastAccess: v.clk.Now(),
	})

	return derived.Salt, nil
}

// StoreRoomKey кеширует готовый ключ комнаты, полученный от другого
// узла через обмен сессионными ключами. Деривация не выполняется.
func (v *Vault) StoreRoomKey(roomID string, key []byte) error {
	if len(key) != KeyLen {
		return fmt.Errorf("invalid room key length: %d", len(key))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return ErrVaultClosed
	}

	stored := make([]byte, len(key))
	copy(stored, key)
	v.cache.Add(roomID, &roomKeyEntry{
		key:        stored,
		lastAccess: v.clk.Now(),
	})
	return nil
}

// RoomKey возвращает закешированный ключ комнаты.
// Успешное чтение обновляет LRU-порядок и время последнего доступа:
// чтение тоже считается использованием.
func (v *Vault) RoomKey(roomID string) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, false
	}

	entry, ok := v.cache.Get(roomID)
	if !ok {
		return nil, false
	}

	entry.lastAccess = v.clk.Now()
	return entry.key, true
}

// RoomSalt возвращает соль закешированного ключа комнаты
// (для передачи новому участнику). Не трогает LRU-порядок.
func (v *Vault) RoomSalt(roomID string) ([]byte, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return nil, false
	}

	entry, ok := v.cache.Peek(roomID)
	if !ok {
		return nil, false
	}
	return entry.salt, true
}

// ClearExpiredKeys удаляет ключи, не использовавшиеся дольше KeyExpiration.
// Работает независимо от LRU-давления: простаивающая комната вытесняется
// даже при свободной емкости. Возвращает количество удаленных записей.
func (v *Vault) ClearExpiredKeys() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return 0
	}

	now := v.clk.Now()
	removed := 0
	for _, roomID := range v.cache.Keys() {
		entry, ok := v.cache.Peek(roomID)
		if !ok {
			continue
		}
		if now.Sub(entry.lastAccess) > KeyExpiration {
			v.cache.Remove(roomID)
			removed++
		}
	}

	return removed
}

// Len возвращает количество закешированных ключей.
func (v *Vault) Len() int {
	v.mu.Lock()
	defer v.mu.Unlock()

	return v.cache.Len()
}

// Close останавливает фоновую очистку и сбрасывает кеш.
func (v *Vault) Close() {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.closed {
		return
	}
	v.closed = true
	close(v.stopC)
	v.cache.Purge()
}
