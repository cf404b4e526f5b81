package mesh

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLimiter() (*Limiter, *clock.Mock) {
	mock := clock.NewMock()
	l := NewLimiterWithClock(slog.New(slog.NewTextHandler(io.Discard, nil)), mock)
	return l, mock
}

func TestLimiter_AllowMessage_WithinLimit(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()

	for i := 0; i < MaxMessagesPerSecond+BurstAllowance; i++ {
		assert.True(t, l.AllowMessage("peer-1"), "message %d within burst budget", i)
	}
	assert.False(t, l.IsBanned("peer-1"))
}

func TestLimiter_AllowMessage_BanOnExcess(t *testing.T) {
	l, mock := newTestLimiter()
	defer l.Close()

	for i := 0; i < MaxMessagesPerSecond+BurstAllowance; i++ {
		require.True(t, l.AllowMessage("spammer"))
	}

	// Первое сообщение сверх лимита - бан
	assert.False(t, l.AllowMessage("spammer"))
	assert.True(t, l.IsBanned("spammer"))

	// Бан действует и через новые окна
	mock.Add(10 * time.Second)
	assert.False(t, l.AllowMessage("spammer"))
	assert.False(t, l.AllowConnection("spammer"))

	// После истечения бана пир снова допускается
	mock.Add(BanDuration)
	assert.True(t, l.AllowMessage("spammer"))
	assert.False(t, l.IsBanned("spammer"))
}

func TestLimiter_Isolation(t *testing.T) {
	l, _ := newTestLimiter()
	defer l.Close()

	for i := 0; i < MaxMessagesPerSecond+BurstAllowance+5; i++ {
		l.AllowMessage("spammer")
	}
	require.True(t, l.IsBanned("spammer"))

	// Бан одного пира не влияет на остальных
	assert.True(t, l.AllowMessage("peer-2"))
	assert.True(t, l.AllowConnection("peer-2"))
}

func TestLimiter_MessageWindowResets(t *testing.T) {
	l, mock := newTestLimiter()
	defer l.Close()

	for i := 0; i < MaxMessagesPerSecond+BurstAllowance; i++ {
		require.True(t, l.AllowMessage("peer-1"))
	}

	// Новое окно - счетчик обнуляется без бана
	mock.Add(1100 * time.Millisecond)
	assert.True(t, l.AllowMessage("peer-1"))
	assert.False(t, l.IsBanned("peer-1"))
}

func TestLimiter_AllowConnection(t *testing.T) {
	l, mock := newTestLimiter()
	defer l.Close()

	for i := 0; i < MaxConnectionsPerMinute; i++ {
		assert.True(t, l.AllowConnection("peer-1"), "attempt %d", i)
	}

	// Сверх лимита - бан, как и при флуде сообщениями
	assert.False(t, l.AllowConnection("peer-1"))
	assert.True(t, l.IsBanned("peer-1"))
	assert.False(t, l.AllowMessage("peer-1"))

	// После истечения бана окно открывается заново
	mock.Add(BanDuration + time.Second)
	assert.True(t, l.AllowConnection("peer-1"))
}

func TestLimiter_Sweep(t *testing.T) {
	// Без фонового цикла, чтобы считать результат sweep детерминированно
	mock := clock.NewMock()
	l := &Limiter{
		clk:    mock,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		peers:  make(map[string]*rateState),
		stopC:  make(chan struct{}),
	}

	l.AllowMessage("quiet")
	l.AllowConnection("quiet")

	// Окна еще живы
	mock.Add(2 * time.Second)
	assert.Equal(t, 0, l.sweep())

	// Оба окна устарели
	mock.Add(2 * time.Minute)
	assert.Equal(t, 1, l.sweep())

	// Забаненный пир переживает очистку
	for i := 0; i < MaxMessagesPerSecond+BurstAllowance+1; i++ {
		l.AllowMessage("spammer")
	}
	require.True(t, l.IsBanned("spammer"))
	mock.Add(2 * time.Minute)
	assert.Equal(t, 0, l.sweep())
	assert.True(t, l.IsBanned("spammer"))
}

func TestLimiter_Close_Idempotent(t *testing.T) {
	l, _ := newTestLimiter()
	l.Close()
	l.Close()
}
