// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process tally. It is rebuilt from the ledger on startup.
type Memory struct {
	mu     sync.RWMutex
	polls  map[string]*pollCounters
	closed bool
}

type pollCounters struct {
	mu       sync.RWMutex
	counters map[string]*atomic.Int64
}

func NewMemory() *Memory {
	return &Memory{polls: make(map[string]*pollCounters)}
}

func (m *Memory) Adjust(_ context.Context, pollID, optionID string, delta int64) (int64, error) {
	pc, err := m.poll(pollID, true)
	if err != nil {
		return 0, err
	}
	return pc.counter(optionID).Add(delta), nil
}

func (m *Memory) Snapshot(_ context.Context, pollID string) (map[string]int64, error) {
	pc, err := m.poll(pollID, false)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	if pc == nil {
		return counts, nil
	}

	pc.mu.RLock()
	defer pc.mu.RUnlock()
	for optionID, c := range pc.counters {
		counts[optionID] = c.Load()
	}
	return counts, nil
}

func (m *Memory) Replace(_ context.Context, pollID string, counts map[string]int64) error {
	pc, err := m.poll(pollID, true)
	if err != nil {
		return err
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()

	// Counters are reset in place so concurrent Adjust callers holding
	// a pointer still land on the live value
	for optionID, c := range pc.counters {
		if _, ok := counts[optionID]; !ok {
			c.Store(0)
		}
	}
	for optionID, n := range counts {
		c, ok := pc.counters[optionID]
		if !ok {
			c = new(atomic.Int64)
			pc.counters[optionID] = c
		}
		c.Store(n)
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *Memory) poll(pollID string, create bool) (*pollCounters, error) {
	m.mu.RLock()
	pc, ok := m.polls[pollID]
	closed := m.closed
	m.mu.RUnlock()

	if closed {
		return nil, ErrClosed
	}
	if ok || !create {
		return pc, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if pc, ok = m.polls[pollID]; !ok {
		pc = &pollCounters{counters: make(map[string]*atomic.Int64)}
		m.polls[pollID] = pc
	}
	return pc, nil
}

func (pc *pollCounters) counter(optionID string) *atomic.Int64 {
	pc.mu.RLock()
	c, ok := pc.counters[optionID]
	pc.mu.RUnlock()
	if ok {
		return c
	}

	pc.mu.Lock()
	defer pc.mu.Unlock()
	if c, ok = pc.counters[optionID]; !ok {
		c = new(atomic.Int64)
		pc.counters[optionID] = c
	}
	return c
}
