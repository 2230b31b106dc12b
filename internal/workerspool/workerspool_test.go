package workerspool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Map(t *testing.T) {
	pool := New().SetMaxParallelism(4)
	const numItems = 100
	var calls [numItems]atomic.Int32
	pool.Map(numItems, func(idx int) {
		runtime.Gosched()
		calls[idx].Add(1)
	})
	for idx := range numItems {
		require.Equalf(t, int32(1), calls[idx].Load(), "item %d", idx)
	}
}

func TestPool_BoundedParallelism(t *testing.T) {
	const maxParallelism = 3
	pool := New().SetMaxParallelism(maxParallelism)
	var running, peak atomic.Int32
	var mu sync.Mutex
	pool.Map(50, func(int) {
		now := running.Add(1)
		mu.Lock()
		if now > peak.Load() {
			peak.Store(now)
		}
		mu.Unlock()
		runtime.Gosched()
		running.Add(-1)
	})
	assert.LessOrEqual(t, int(peak.Load()), maxParallelism)
	assert.Equal(t, int32(0), running.Load())
}

func TestPool_NoParallelism(t *testing.T) {
	pool := New().SetMaxParallelism(0)
	assert.False(t, pool.IsEnabled())
	var order []int
	pool.Map(5, func(idx int) { order = append(order, idx) })
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestPool_Unlimited(t *testing.T) {
	pool := New().SetMaxParallelism(-1)
	assert.True(t, pool.IsUnlimited())
	assert.Equal(t, 7, pool.numWorkers(7))
	var count atomic.Int32
	pool.Map(7, func(int) { count.Add(1) })
	assert.Equal(t, int32(7), count.Load())

	// Zero items never calls the task.
	pool.Map(0, func(int) { t.Fatal("unexpected call") })
}
