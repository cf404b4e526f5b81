package crdt

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClock_Tick(t *testing.T) {
	c := NewClock()

	require.NotEmpty(t, c.NodeID())
	assert.Equal(t, int64(0), c.Current())

	assert.Equal(t, int64(1), c.Tick())
	assert.Equal(t, int64(2), c.Tick())
	assert.Equal(t, int64(2), c.Current())
}

func TestClock_Observe(t *testing.T) {
	c := NewClockWithNodeID("node1")

	// Удаленный timestamp больше локального: counter = max + 1
	assert.Equal(t, int64(11), c.Observe(10))

	// Удаленный timestamp меньше локального: просто инкремент
	assert.Equal(t, int64(12), c.Observe(5))
}

func TestClock_ConcurrentTicks(t *testing.T) {
	c := NewClock()

	const goroutines = 10
	const ticksEach = 100

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < ticksEach; j++ {
				c.Tick()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int64(goroutines*ticksEach), c.Current())
}
