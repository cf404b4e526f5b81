package mesh

import (
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// MaxMessagesPerSecond базовый лимит сообщений от одного пира
	MaxMessagesPerSecond = 30
	// BurstAllowance запас сверх базового лимита на короткие всплески
	BurstAllowance = 10
	// MaxConnectionsPerMinute лимит попыток подключения от одного пира
	MaxConnectionsPerMinute = 10
	// BanDuration длительность блокировки нарушителя
	BanDuration = 5 * time.Minute

	// limiterSweepInterval период фоновой очистки устаревших окон
	limiterSweepInterval = 30 * time.Second
	// staleMessageWindow окно сообщений считается мертвым после этого срока
	staleMessageWindow = 5 * time.Second
	// staleConnectionWindow окно подключений считается мертвым после этого срока
	staleConnectionWindow = 60 * time.Second
)

// rateState счетчики окон и статус блокировки одного пира
type rateState struct {
	msgResetAt  time.Time
	connResetAt time.Time
	bannedUntil time.Time
	msgCount    int
	connCount   int
}

// Limiter ограничивает частоту сообщений и подключений по каждому пиру.
// Превышение лимита сообщений приводит к временной блокировке:
// сообщения и присутствие пира игнорируются до истечения бана.
type Limiter struct {
	clk    clock.Clock
	logger *slog.Logger
	peers  map[string]*rateState
	stopC  chan struct{}
	mu     sync.Mutex
	once   sync.Once
}

func NewLimiter(logger *slog.Logger) *Limiter {
	return NewLimiterWithClock(logger, clock.New())
}

// NewLimiterWithClock конструктор с внешними часами для тестов
func NewLimiterWithClock(logger *slog.Logger, clk clock.Clock) *Limiter {
	l := &Limiter{
		clk:    clk,
		logger: logger,
		peers:  make(map[string]*rateState),
		stopC:  make(chan struct{}),
	}
	go l.sweepLoop()
	return l
}

// AllowMessage проверяет, можно ли принять сообщение от пира.
// Окно - одна секунда, лимит MaxMessagesPerSecond + BurstAllowance.
// Первое сообщение сверх лимита блокирует пира на BanDuration.
func (l *Limiter) AllowMessage(peerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	st := l.state(peerID, now)

	if now.Before(st.bannedUntil) {
		return false
	}

	if now.After(st.msgResetAt) {
		st.msgCount = 0
		st.msgResetAt = now.Add(time.Second)
	}
	st.msgCount++

	if st.msgCount > MaxMessagesPerSecond+BurstAllowance {
		st.bannedUntil = now.Add(BanDuration)
		l.logger.Warn("Peer exceeded message rate limit, banning",
			"peer_id", peerID,
			"ban_duration", BanDuration,
		)
		return false
	}
	return true
}

// AllowConnection проверяет, можно ли принять попытку подключения пира.
// Окно - одна минута, лимит MaxConnectionsPerMinute. Превышение лимита
// блокирует пира так же, как флуд сообщениями.
func (l *Limiter) AllowConnection(peerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	st := l.state(peerID, now)

	if now.Before(st.bannedUntil) {
		return false
	}

	if now.After(st.connResetAt) {
		st.connCount = 0
		st.connResetAt = now.Add(time.Minute)
	}
	st.connCount++

	if st.connCount > MaxConnectionsPerMinute {
		st.bannedUntil = now.Add(BanDuration)
		l.logger.Warn("Peer exceeded connection rate limit, banning",
			"peer_id", peerID,
			"ban_duration", BanDuration,
		)
		return false
	}
	return true
}

// IsBanned сообщает, заблокирован ли пир в данный момент
func (l *Limiter) IsBanned(peerID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	st, ok := l.peers[peerID]
	return ok && l.clk.Now().Before(st.bannedUntil)
}

func (l *Limiter) state(peerID string, now time.Time) *rateState {
	st, ok := l.peers[peerID]
	if !ok {
		st = &rateState{
			msgResetAt:  now.Add(time.Second),
			connResetAt: now.Add(time.Minute),
		}
		l.peers[peerID] = st
	}
	return st
}

// sweep удаляет записи, у которых истек бан и устарели оба окна
func (l *Limiter) sweep() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clk.Now()
	removed := 0
	for peerID, st := range l.peers {
		if now.Before(st.bannedUntil) {
			continue
		}
		msgStale := now.Sub(st.msgResetAt) > staleMessageWindow
		connStale := now.Sub(st.connResetAt) > staleConnectionWindow
		if msgStale && connStale {
			delete(l.peers, peerID)
			removed++
		}
	}
	return removed
}

func (l *Limiter) sweepLoop() {
	ticker := l.clk.Ticker(limiterSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := l.sweep(); removed > 0 {
				l.logger.Debug("Rate limiter sweep", "removed", removed)
			}
		case <-l.stopC:
			return
		}
	}
}

// Close останавливает фоновую очистку. Повторные вызовы безопасны.
func (l *Limiter) Close() {
	l.once.Do(func() { close(l.stopC) })
}
