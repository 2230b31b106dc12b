// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs independent work items over a fixed number of goroutines.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers consuming a queue of item indices.
type Pool struct {
	// maxParallelism is the number of worker goroutines started by Map.
	maxParallelism int
}

// New return a new Pool of workers with the default parallelism (runtime.NumCPU()).
func New() *Pool {
	return &Pool{maxParallelism: runtime.NumCPU()}
}

// IsEnabled returns whether parallelism is enabled (maxParallelism is != 0)
func (w *Pool) IsEnabled() bool {
	return w.maxParallelism != 0
}

// IsUnlimited returns whether parallelism is unlimited (maxParallelism < 0)
func (w *Pool) IsUnlimited() bool {
	return w.maxParallelism < 0
}

// MaxParallelism is the number of goroutines Map uses.
// If set to 0 parallelism is disabled and items run inline.
// If set to -1 parallelism is unlimited: one goroutine per item.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// SetMaxParallelism sets the maxParallelism.
//
// You should only change the parallelism while no Map is running.
// It returns the Pool, so calls can be cascaded.
func (w *Pool) SetMaxParallelism(maxParallelism int) *Pool {
	w.maxParallelism = maxParallelism
	return w
}

// numWorkers for numItems work items.
func (w *Pool) numWorkers(numItems int) int {
	if w.IsUnlimited() || w.maxParallelism > numItems {
		return numItems
	}
	return w.maxParallelism
}

// Map calls task(idx) for every idx in [0, numItems) and returns once all calls have returned.
//
// Items are consumed from a shared queue in increasing order, but they complete in any order:
// task must be safe to call concurrently. If parallelism is disabled the items run inline,
// in order.
func (w *Pool) Map(numItems int, task func(idx int)) {
	if numItems <= 0 {
		return
	}
	if !w.IsEnabled() {
		for idx := range numItems {
			task(idx)
		}
		return
	}

	queue := make(chan int)
	var wg sync.WaitGroup
	for range w.numWorkers(numItems) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range queue {
				task(idx)
			}
		}()
	}
	for idx := range numItems {
		queue <- idx
	}
	close(queue)
	wg.Wait()
}
