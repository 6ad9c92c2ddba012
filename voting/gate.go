// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"sync"

	"github.com/cespare/xxhash/v2"
)

// gateStripes is the number of poll-hashed locks in a Gate
const gateStripes = 64

// Gate keeps reconciliation out of in-flight votes. A vote holds its
// poll's stripe shared from the first ledger read through the last tally
// adjust; a reconcile pass holds it exclusively while it counts and
// replaces. Polls hashing to the same stripe share a lock.
type Gate struct {
	locks [gateStripes]sync.RWMutex
}

func NewGate() *Gate {
	return &Gate{}
}

// enter holds the poll shared and returns the release func.
// Not reentrant: a holder must not enter again.
func (g *Gate) enter(pollID string) func() {
	l := g.stripe(pollID)
	l.RLock()
	return l.RUnlock
}

// exclude holds the poll exclusively and returns the release func
func (g *Gate) exclude(pollID string) func() {
	l := g.stripe(pollID)
	l.Lock()
	return l.Unlock
}

func (g *Gate) stripe(pollID string) *sync.RWMutex {
	return &g.locks[xxhash.Sum64String(pollID)%gateStripes]
}

// orderStripes is the number of option-hashed locks ordering publishes
const orderStripes = 64

// publishOrder serializes adjust-then-publish per option so subscribers
// see counts in the order the tally produced them
type publishOrder struct {
	locks [orderStripes]sync.Mutex
}

func (o *publishOrder) lock(pollID, optionID string) func() {
	l := &o.locks[xxhash.Sum64String(pollID+"/"+optionID)%orderStripes]
	l.Lock()
	return l.Unlock
}
