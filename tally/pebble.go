// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package tally

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/cockroachdb/pebble"
)

const (
	// syncInterval is the interval between WAL syncs
	syncInterval = 100 * time.Millisecond

	// lockStripes is the number of key-hashed mutexes serializing read-modify-write
	lockStripes = 64
)

// Pebble persists counters in a Pebble database so tallies survive restarts.
// Writes are NoSync and a background goroutine syncs the WAL periodically;
// counts lost in a crash are restored by reconciliation from the ledger.
type Pebble struct {
	db       *pebble.DB
	locks    [lockStripes]sync.Mutex
	closed   atomic.Bool
	stopSync chan struct{}
	wg       sync.WaitGroup
}

// OpenPebble opens (or creates) a tally database at path
func OpenPebble(path string, cacheBytes uint64) (*Pebble, error) {
	cache := pebble.NewCache(int64(cacheBytes))
	defer cache.Unref()

	opts := &pebble.Options{
		Cache:                       cache,
		MemTableSize:                16 << 20, // 16 MB memtable
		MemTableStopWritesThreshold: 2,
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open tally store at %s: %w", path, err)
	}

	p := &Pebble{
		db:       db,
		stopSync: make(chan struct{}),
	}
	p.startSyncLoop()

	return p, nil
}

func (p *Pebble) Adjust(ctx context.Context, pollID, optionID string, delta int64) (int64, error) {
	if err := p.check(ctx); err != nil {
		return 0, err
	}

	key := counterKey(pollID, optionID)
	mu := &p.locks[xxhash.Sum64(key)%lockStripes]
	mu.Lock()
	defer mu.Unlock()

	n, err := p.get(key)
	if err != nil {
		return 0, err
	}
	n += delta

	if err := p.db.Set(key, encodeCount(n), pebble.NoSync); err != nil {
		return 0, fmt.Errorf("failed to write counter: %w", err)
	}
	return n, nil
}

func (p *Pebble) Snapshot(ctx context.Context, pollID string) (map[string]int64, error) {
	if err := p.check(ctx); err != nil {
		return nil, err
	}

	prefix := pollPrefix(pollID)
	counts := make(map[string]int64)
	err := p.iteratePrefix(prefix, func(key, value []byte) error {
		n, err := decodeCount(value)
		if err != nil {
			return err
		}
		counts[string(key[len(prefix):])] = n
		return nil
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}

// Replace holds every stripe so no Adjust interleaves with the rewrite
func (p *Pebble) Replace(ctx context.Context, pollID string, counts map[string]int64) error {
	if err := p.check(ctx); err != nil {
		return err
	}

	for i := range p.locks {
		p.locks[i].Lock()
	}
	defer func() {
		for i := range p.locks {
			p.locks[i].Unlock()
		}
	}()

	batch := p.db.NewBatch()
	defer batch.Close()

	prefix := pollPrefix(pollID)
	if err := batch.DeleteRange(prefix, prefixUpperBound(prefix), nil); err != nil {
		return fmt.Errorf("failed to clear counters: %w", err)
	}
	for optionID, n := range counts {
		if err := batch.Set(counterKey(pollID, optionID), encodeCount(n), nil); err != nil {
			return fmt.Errorf("failed to write counter: %w", err)
		}
	}

	return batch.Commit(pebble.Sync)
}

// Close stops the sync goroutine and closes the database.
// It performs a final sync before closing.
func (p *Pebble) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}

	close(p.stopSync)
	p.wg.Wait()

	if err := p.sync(); err != nil {
		return err
	}
	return p.db.Close()
}

func (p *Pebble) check(ctx context.Context) error {
	if p.closed.Load() {
		return ErrClosed
	}
	return ctx.Err()
}

func (p *Pebble) get(key []byte) (int64, error) {
	value, closer, err := p.db.Get(key)
	if err == pebble.ErrNotFound {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read counter: %w", err)
	}
	defer closer.Close()

	return decodeCount(value)
}

// iteratePrefix calls fn for each key-value pair with the given prefix
func (p *Pebble) iteratePrefix(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		value, err := iter.ValueAndErr()
		if err != nil {
			return err
		}
		if err := fn(iter.Key(), value); err != nil {
			return err
		}
	}

	return iter.Error()
}

func (p *Pebble) startSyncLoop() {
	p.wg.Add(1)

	go func() {
		defer p.wg.Done()

		ticker := time.NewTicker(syncInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				_ = p.sync()
			case <-p.stopSync:
				return
			}
		}
	}()
}

func (p *Pebble) sync() error {
	return p.db.LogData(nil, pebble.Sync)
}

// Keys are t/<poll>/<option>
func pollPrefix(pollID string) []byte {
	return []byte("t/" + pollID + "/")
}

func counterKey(pollID, optionID string) []byte {
	return append(pollPrefix(pollID), optionID...)
}

func encodeCount(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeCount(b []byte) (int64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("corrupt counter value of %d bytes", len(b))
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

// prefixUpperBound computes the exclusive upper bound for a prefix scan.
// Increments the last byte; returns nil if prefix is all 0xFF (full range).
func prefixUpperBound(prefix []byte) []byte {
	upper := make([]byte, len(prefix))
	copy(upper, prefix)

	for i := len(upper) - 1; i >= 0; i-- {
		upper[i]++
		if upper[i] != 0 {
			return upper[:i+1]
		}
	}

	return nil
}
