// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xsync implements small synchronization primitives shared by the dataset pipeline.
package xsync

import "sync"

// SlotAllocator hands out exclusive, consecutive indices to concurrent callers.
//
// The counter starts at 0 and only increases: no index is ever returned twice and none is skipped.
// Only the read-increment-return runs under the lock, so callers should do their expensive work
// before calling Reserve.
type SlotAllocator struct {
	mu   sync.Mutex
	next int
}

// NewSlotAllocator returns an allocator whose first reservation is 0.
func NewSlotAllocator() *SlotAllocator {
	return &SlotAllocator{}
}

// Reserve returns the current counter value and increments it, as one atomic step.
// The returned index is owned by the caller.
func (a *SlotAllocator) Reserve() int {
	a.mu.Lock()
	slot := a.next
	a.next++
	a.mu.Unlock()
	return slot
}

// Count returns the number of slots reserved so far.
func (a *SlotAllocator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.next
}
