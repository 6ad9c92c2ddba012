// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package broadcast

import (
	"context"
	"sync"

	"github.com/danielhkuo/live-tally/models"
)

// Broker is a per-poll topic registry fanning tally deltas out to live
// subscribers. Publish never blocks: each subscriber keeps at most one
// pending event per option, later counts replacing earlier ones.
type Broker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	buffer int
}

// NewBroker creates a broker whose subscriber channels hold buffer events
func NewBroker(buffer int) *Broker {
	if buffer < 1 {
		buffer = 1
	}
	return &Broker{
		topics: make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscription is one listener on one poll. Events are delivered on the
// channel returned by Events until Close is called or the subscribe
// context ends.
type Subscription struct {
	broker *Broker
	pollID string
	out    chan models.DeltaEvent

	mu      sync.Mutex
	pending []models.DeltaEvent
	index   map[string]int
	wake    chan struct{}

	done      chan struct{}
	closeOnce sync.Once
}

// Publish pushes a delta to every current subscriber of the poll.
// Late subscribers get no replay; they read a snapshot instead.
func (b *Broker) Publish(pollID, optionID string, votes int64) {
	ev := models.DeltaEvent{PollID: pollID, OptionID: optionID, Votes: votes}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[pollID] {
		sub.enqueue(ev)
	}
}

// Subscribe registers a listener for a poll
func (b *Broker) Subscribe(ctx context.Context, pollID string) *Subscription {
	sub := &Subscription{
		broker: b,
		pollID: pollID,
		out:    make(chan models.DeltaEvent, b.buffer),
		index:  make(map[string]int),
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}

	b.mu.Lock()
	subs, ok := b.topics[pollID]
	if !ok {
		subs = make(map[*Subscription]struct{})
		b.topics[pollID] = subs
	}
	subs[sub] = struct{}{}
	b.mu.Unlock()

	go sub.pump()
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()

	return sub
}

// Subscribers returns the number of live subscriptions on a poll
func (b *Broker) Subscribers(pollID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[pollID])
}

func (b *Broker) remove(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.topics[sub.pollID]
	delete(subs, sub)
	if len(subs) == 0 {
		delete(b.topics, sub.pollID)
	}
}

// Events returns the delivery channel. It is closed after Close.
func (s *Subscription) Events() <-chan models.DeltaEvent {
	return s.out
}

// Close releases the subscription slot. Safe to call more than once.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}

func (s *Subscription) enqueue(ev models.DeltaEvent) {
	s.mu.Lock()
	if i, ok := s.index[ev.OptionID]; ok {
		s.pending[i] = ev
	} else {
		s.index[ev.OptionID] = len(s.pending)
		s.pending = append(s.pending, ev)
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// pump moves pending events to the out channel. Only pump blocks on a
// slow reader, so publishers never do.
func (s *Subscription) pump() {
	defer close(s.out)

	for {
		select {
		case <-s.done:
			return
		case <-s.wake:
		}

		s.mu.Lock()
		batch := s.pending
		s.pending = nil
		clear(s.index)
		s.mu.Unlock()

		for _, ev := range batch {
			select {
			case s.out <- ev:
			case <-s.done:
				return
			}
		}
	}
}
