package xsync

import (
	"runtime"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotAllocator_Sequential(t *testing.T) {
	a := NewSlotAllocator()
	assert.Equal(t, 0, a.Count())
	for want := range 10 {
		require.Equal(t, want, a.Reserve())
	}
	assert.Equal(t, 10, a.Count())
}

func TestSlotAllocator_Concurrent(t *testing.T) {
	for _, numCallers := range []int{1, 2, 17, 1000} {
		a := NewSlotAllocator()
		got := make([]int, numCallers)
		start := make(chan struct{})
		var wg sync.WaitGroup
		for ii := range numCallers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				runtime.Gosched()
				got[ii] = a.Reserve()
			}()
		}
		close(start)
		wg.Wait()

		seen := make([]bool, numCallers)
		for _, slot := range got {
			require.GreaterOrEqual(t, slot, 0)
			require.Less(t, slot, numCallers)
			require.Falsef(t, seen[slot], "slot %d reserved twice", slot)
			seen[slot] = true
		}
		assert.Equal(t, numCallers, a.Count())
	}
}
