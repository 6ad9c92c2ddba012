// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package voting

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danielhkuo/live-tally/broadcast"
	"github.com/danielhkuo/live-tally/ledger"
	"github.com/danielhkuo/live-tally/models"
	"github.com/danielhkuo/live-tally/polls"
	"github.com/danielhkuo/live-tally/tally"
	"github.com/danielhkuo/live-tally/testutil"
)

type testEnv struct {
	db      *sql.DB
	ledger  *ledger.Ledger
	polls   *polls.Store
	tally   tally.Store
	broker  *broadcast.Broker
	drifted chan string
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	return &testEnv{
		db:      db,
		ledger:  ledger.New(db),
		polls:   polls.NewStore(db),
		tally:   tally.NewMemory(),
		broker:  broadcast.NewBroker(16),
		drifted: make(chan string, 16),
	}
}

func (env *testEnv) engine(l Ledger, ts tally.Store, timeout time.Duration) *Engine {
	if l == nil {
		l = env.ledger
	}
	if ts == nil {
		ts = env.tally
	}
	return NewEngine(env.polls, l, ts, env.broker, Options{
		StoreTimeout: timeout,
		OnDrift: func(pollID string) {
			select {
			case env.drifted <- pollID:
			default:
			}
		},
	})
}

func (env *testEnv) counts(t *testing.T, pollID string) map[string]int64 {
	t.Helper()
	snap, err := env.tally.Snapshot(context.Background(), pollID)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	return snap
}

func sum(counts map[string]int64) int64 {
	var total int64
	for _, n := range counts {
		total += n
	}
	return total
}

// hookLedger wraps the real ledger with per-call overrides
type hookLedger struct {
	*ledger.Ledger
	record func(ctx context.Context, sessionID, pollID, optionID string) error
	find   func(ctx context.Context, sessionID, pollID string) (string, bool, error)
}

func (h *hookLedger) RecordVote(ctx context.Context, sessionID, pollID, optionID string) error {
	if h.record != nil {
		return h.record(ctx, sessionID, pollID, optionID)
	}
	return h.Ledger.RecordVote(ctx, sessionID, pollID, optionID)
}

func (h *hookLedger) FindCurrentVote(ctx context.Context, sessionID, pollID string) (string, bool, error) {
	if h.find != nil {
		return h.find(ctx, sessionID, pollID)
	}
	return h.Ledger.FindCurrentVote(ctx, sessionID, pollID)
}

// brokenTally fails every Adjust
type brokenTally struct {
	tally.Store
}

func (brokenTally) Adjust(context.Context, string, string, int64) (int64, error) {
	return 0, errors.New("tally offline")
}

func TestVote_FirstVote(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	rec, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0]})
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	if !rec.Issued || rec.SessionID == "" {
		t.Errorf("Expected a newly issued session, got %+v", rec)
	}
	if rec.Switched {
		t.Error("First vote should not be a switch")
	}
	want := []models.DeltaEvent{{PollID: pollID, OptionID: opts[0], Votes: 1}}
	if fmt.Sprint(rec.Events) != fmt.Sprint(want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events)
	}

	got, found, _ := env.ledger.FindCurrentVote(context.Background(), rec.SessionID, pollID)
	if !found || got != opts[0] {
		t.Errorf("Ledger shows %q (found=%v), want %q", got, found, opts[0])
	}
}

func TestVote_RepeatIsIdempotent(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")
	ctx := context.Background()

	first, err := e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if first.Issued {
		t.Error("Presented session should not be reissued")
	}

	for i := 0; i < 2; i++ {
		_, err = e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
		if !errors.Is(err, ErrAlreadyVoted) {
			t.Fatalf("Repeat vote error = %v, want ErrAlreadyVoted", err)
		}
		if OutcomeOf(err) != OutcomeAlreadyVoted {
			t.Errorf("OutcomeOf() = %s", OutcomeOf(err))
		}
	}

	if n := env.counts(t, pollID)[opts[0]]; n != 1 {
		t.Errorf("Expected tally 1 after repeat votes, got %d", n)
	}
	if n := testutil.CountVotes(t, env.db, pollID); n != 1 {
		t.Errorf("Expected 1 vote record, got %d", n)
	}
}

func TestVote_Switch(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")
	ctx := context.Background()

	// Another voter keeps Pizza above zero
	if _, err := e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-2"}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if _, err := e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"}); err != nil {
		t.Fatalf("Vote() error = %v", err)
	}

	sub := env.broker.Subscribe(ctx, pollID)
	defer sub.Close()

	rec, err := e.Vote(ctx, Request{PollID: pollID, OptionID: opts[1], SessionID: "voter-1"})
	if err != nil {
		t.Fatalf("Switch vote error = %v", err)
	}
	if !rec.Switched {
		t.Error("Expected Switched receipt")
	}

	want := []models.DeltaEvent{
		{PollID: pollID, OptionID: opts[0], Votes: 1},
		{PollID: pollID, OptionID: opts[1], Votes: 1},
	}
	if fmt.Sprint(rec.Events) != fmt.Sprint(want) {
		t.Errorf("Expected events %v, got %v", want, rec.Events)
	}

	// Exactly one published event per change, decrement first
	for i, w := range want {
		select {
		case ev := <-sub.Events():
			if ev != w {
				t.Errorf("Event %d: expected %+v, got %+v", i, w, ev)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("Timed out waiting for event %d", i)
		}
	}
	select {
	case ev := <-sub.Events():
		t.Errorf("Unexpected extra event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}

	got, _, _ := env.ledger.FindCurrentVote(ctx, "voter-1", pollID)
	if got != opts[1] {
		t.Errorf("Ledger shows %q, want %q", got, opts[1])
	}
	counts := env.counts(t, pollID)
	if counts[opts[0]] != 1 || counts[opts[1]] != 1 {
		t.Errorf("Unexpected tally after switch: %v", counts)
	}
}

func TestVote_Rejections(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, _ := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")
	_, otherOpts := testutil.CreateTestPoll(t, env.db, "Dinner", "Soup")

	tests := []struct {
		name    string
		req     Request
		wantErr error
		outcome Outcome
	}{
		{
			name:    "option from another poll",
			req:     Request{PollID: pollID, OptionID: otherOpts[0], SessionID: "voter-1"},
			wantErr: ErrUnknownOption,
			outcome: OutcomeUnknownOption,
		},
		{
			name:    "made up option",
			req:     Request{PollID: pollID, OptionID: "nope"},
			wantErr: ErrUnknownOption,
			outcome: OutcomeUnknownOption,
		},
		{
			name:    "unknown poll",
			req:     Request{PollID: "00000000-0000-0000-0000-000000000000", OptionID: otherOpts[0]},
			wantErr: ErrUnknownPoll,
			outcome: OutcomeUnknownPoll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.Vote(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Vote() error = %v, want %v", err, tt.wantErr)
			}
			if OutcomeOf(err) != tt.outcome {
				t.Errorf("OutcomeOf() = %s, want %s", OutcomeOf(err), tt.outcome)
			}
		})
	}

	// Zero ledger and tally mutation
	if n := testutil.CountVotes(t, env.db, pollID); n != 0 {
		t.Errorf("Expected no vote records, got %d", n)
	}
	if counts := env.counts(t, pollID); sum(counts) != 0 {
		t.Errorf("Expected empty tally, got %v", counts)
	}
}

func TestVote_ConcurrentDistinctVoters(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, 5*time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi", "Tacos")

	const numVoters = 20
	var successCount atomic.Int32
	var wg sync.WaitGroup

	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			req := Request{PollID: pollID, OptionID: opts[i%len(opts)], SessionID: fmt.Sprintf("voter-%d", i)}
			if _, err := e.Vote(context.Background(), req); err == nil {
				successCount.Add(1)
			} else {
				t.Errorf("Vote() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	if int(successCount.Load()) != numVoters {
		t.Errorf("Expected %d accepted votes, got %d", numVoters, successCount.Load())
	}
	if n := testutil.CountVotes(t, env.db, pollID); n != numVoters {
		t.Errorf("Expected %d vote records, got %d", numVoters, n)
	}
	if total := sum(env.counts(t, pollID)); total != numVoters {
		t.Errorf("Expected tally sum %d, got %d", numVoters, total)
	}
}

func TestVote_ConcurrentFirstVoteRace(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, 5*time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	const sessions = 10
	for s := 0; s < sessions; s++ {
		session := fmt.Sprintf("double-submit-%d", s)

		var accepted atomic.Int32
		var wg sync.WaitGroup
		for _, opt := range opts {
			wg.Add(1)
			go func(opt string) {
				defer wg.Done()
				_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opt, SessionID: session})
				switch OutcomeOf(err) {
				case OutcomeAccepted:
					accepted.Add(1)
				case OutcomeAlreadyVoted, OutcomeTransientConflict:
				default:
					t.Errorf("Unexpected outcome for %s: %v", session, err)
				}
			}(opt)
		}
		wg.Wait()

		if accepted.Load() < 1 {
			t.Errorf("Expected at least one accepted vote for %s", session)
		}
	}

	// One record per session, and each session contributes exactly 1
	if n := testutil.CountVotes(t, env.db, pollID); n != sessions {
		t.Errorf("Expected %d vote records, got %d", sessions, n)
	}
	if total := sum(env.counts(t, pollID)); total != sessions {
		t.Errorf("Expected tally sum %d, got %d", sessions, total)
	}

	ledgerCounts, err := env.ledger.CountByOption(context.Background(), pollID)
	if err != nil {
		t.Fatalf("CountByOption() error = %v", err)
	}
	tallyCounts := env.counts(t, pollID)
	for _, opt := range opts {
		if ledgerCounts[opt] != tallyCounts[opt] {
			t.Errorf("Option %s: ledger %d, tally %d", opt, ledgerCounts[opt], tallyCounts[opt])
		}
	}
}

func TestVote_LostRaceResolvesToAlreadyVoted(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	// A concurrent request for the same choice wins between our read and insert
	l := &hookLedger{Ledger: env.ledger}
	l.record = func(ctx context.Context, sessionID, pollID, optionID string) error {
		if err := env.ledger.RecordVote(ctx, sessionID, pollID, optionID); err != nil {
			t.Fatalf("winner RecordVote() error = %v", err)
		}
		l.record = nil
		return env.ledger.RecordVote(ctx, sessionID, pollID, optionID)
	}

	e := env.engine(l, nil, time.Second)
	_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if !errors.Is(err, ErrAlreadyVoted) {
		t.Errorf("Vote() error = %v, want ErrAlreadyVoted", err)
	}
	if n := testutil.CountVotes(t, env.db, pollID); n != 1 {
		t.Errorf("Expected 1 vote record, got %d", n)
	}
}

func TestVote_LostRaceResolvesToSwitch(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	// The winner picked Pizza and already counted it; we wanted Sushi
	l := &hookLedger{Ledger: env.ledger}
	l.record = func(ctx context.Context, sessionID, pollID, optionID string) error {
		l.record = nil
		if err := env.ledger.RecordVote(ctx, sessionID, pollID, opts[0]); err != nil {
			t.Fatalf("winner RecordVote() error = %v", err)
		}
		env.tally.Adjust(ctx, pollID, opts[0], 1)
		return env.ledger.RecordVote(ctx, sessionID, pollID, optionID)
	}

	e := env.engine(l, nil, time.Second)
	rec, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[1], SessionID: "voter-1"})
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if !rec.Switched {
		t.Error("Expected the retried request to switch")
	}

	counts := env.counts(t, pollID)
	if counts[opts[0]] != 0 || counts[opts[1]] != 1 {
		t.Errorf("Unexpected tally: %v", counts)
	}
}

func TestVote_RaceExhaustedIsTransient(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	var attempts atomic.Int32
	l := &hookLedger{Ledger: env.ledger}
	l.find = func(context.Context, string, string) (string, bool, error) {
		return "", false, nil
	}
	l.record = func(context.Context, string, string, string) error {
		attempts.Add(1)
		return ledger.ErrConflict
	}

	e := env.engine(l, nil, time.Second)
	_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if !errors.Is(err, ErrTransientConflict) {
		t.Errorf("Vote() error = %v, want ErrTransientConflict", err)
	}
	if attempts.Load() != maxAttempts {
		t.Errorf("Expected %d attempts, got %d", maxAttempts, attempts.Load())
	}
	if sum(env.counts(t, pollID)) != 0 {
		t.Error("Tally changed without a ledger write")
	}
}

func TestVote_LedgerUnavailable(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	var attempts atomic.Int32
	l := &hookLedger{Ledger: env.ledger}
	l.record = func(context.Context, string, string, string) error {
		attempts.Add(1)
		return errors.New("connection refused")
	}

	e := env.engine(l, nil, time.Second)
	_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Vote() error = %v, want ErrStoreUnavailable", err)
	}
	if OutcomeOf(err) != OutcomeUnavailable {
		t.Errorf("OutcomeOf() = %s, want %s", OutcomeOf(err), OutcomeUnavailable)
	}
	if attempts.Load() != 1 {
		t.Errorf("Unavailable store should not be retried, got %d attempts", attempts.Load())
	}
	if sum(env.counts(t, pollID)) != 0 {
		t.Error("Tally changed without a ledger write")
	}
}

func TestVote_LedgerTimeout(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	l := &hookLedger{Ledger: env.ledger}
	l.record = func(ctx context.Context, _, _, _ string) error {
		<-ctx.Done()
		return ctx.Err()
	}

	e := env.engine(l, nil, 20*time.Millisecond)
	_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if !errors.Is(err, ErrTransientConflict) {
		t.Errorf("Vote() error = %v, want ErrTransientConflict", err)
	}

	select {
	case id := <-env.drifted:
		if id != pollID {
			t.Errorf("Drift reported for %s, want %s", id, pollID)
		}
	default:
		t.Error("Expected timed out write to be reported for reconciliation")
	}
}

func TestVote_TimedOutWriteThatLanded(t *testing.T) {
	tests := []struct {
		name      string
		sessionID string
		wantErr   error
		wantTally int64
	}{
		// A fresh token is ours alone, so the landed row is this request's
		{"issued session is accepted", "", nil, 1},
		// A presented token may have been used by a concurrent request
		{"presented session is transient", "voter-1", ErrTransientConflict, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := setupEnv(t)
			pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

			l := &hookLedger{Ledger: env.ledger}
			l.record = func(ctx context.Context, sessionID, pollID, optionID string) error {
				l.record = nil
				if err := env.ledger.RecordVote(ctx, sessionID, pollID, optionID); err != nil {
					t.Fatalf("RecordVote() error = %v", err)
				}
				return context.DeadlineExceeded
			}

			e := env.engine(l, nil, time.Second)
			rec, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: tt.sessionID})

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Vote() error = %v, want accepted", err)
				}
				if !rec.Issued || rec.SessionID == "" {
					t.Fatalf("Expected the issued session in the receipt, got %+v", rec)
				}
				got, found, _ := env.ledger.FindCurrentVote(context.Background(), rec.SessionID, pollID)
				if !found || got != opts[0] {
					t.Errorf("Receipt session does not own the vote: %q (found=%v)", got, found)
				}
			} else if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Vote() error = %v, want %v", err, tt.wantErr)
			}

			if errors.Is(err, ErrAlreadyVoted) {
				t.Error("A request must not report its own write as already voted")
			}
			if n := testutil.CountVotes(t, env.db, pollID); n != 1 {
				t.Errorf("Expected 1 vote record, got %d", n)
			}
			if n := env.counts(t, pollID)[opts[0]]; n != tt.wantTally {
				t.Errorf("Expected tally %d, got %d", tt.wantTally, n)
			}

			select {
			case <-env.drifted:
			default:
				t.Error("Expected timed out write to be reported for reconciliation")
			}
		})
	}
}

func TestVote_PublishesLatestCountLast(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, 5*time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sub := env.broker.Subscribe(ctx, pollID)

	numVoters := 30
	var wg sync.WaitGroup
	for i := 0; i < numVoters; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if _, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: fmt.Sprintf("voter-%d", i)}); err != nil {
				t.Errorf("Vote() error = %v", err)
			}
		}(i)
	}
	wg.Wait()

	// The last event a subscriber settles on must be the final count
	var last int64
	for {
		select {
		case ev := <-sub.Events():
			last = ev.Votes
			continue
		case <-time.After(200 * time.Millisecond):
		}
		break
	}
	if last != int64(numVoters) {
		t.Errorf("Subscriber settled on %d, want %d", last, numVoters)
	}
}

func TestVote_TallyFailureKeepsLedgerWrite(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza", "Sushi")

	e := env.engine(nil, brokenTally{env.tally}, time.Second)
	rec, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"})
	if err != nil {
		t.Fatalf("Vote() error = %v, want accepted", err)
	}
	if len(rec.Events) != 0 {
		t.Errorf("Expected no events for failed adjustments, got %v", rec.Events)
	}

	// No compensating undo
	if n := testutil.CountVotes(t, env.db, pollID); n != 1 {
		t.Errorf("Expected the ledger write to stand, got %d records", n)
	}

	select {
	case id := <-env.drifted:
		if id != pollID {
			t.Errorf("Drift reported for %s, want %s", id, pollID)
		}
	default:
		t.Error("Expected tally failure to be reported for reconciliation")
	}
}

func TestVote_IgnoresCallerCancellation(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "voter-1"}); err != nil {
		t.Errorf("Vote() error = %v, want accepted", err)
	}
}

func TestVote_SessionIssueFailure(t *testing.T) {
	env := setupEnv(t)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza")

	e := NewEngine(env.polls, env.ledger, env.tally, env.broker, Options{
		NewSession: func() (string, error) { return "", errors.New("entropy exhausted") },
	})

	_, err := e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0]})
	if !errors.Is(err, ErrStoreUnavailable) {
		t.Errorf("Vote() error = %v, want ErrStoreUnavailable", err)
	}
	if n := testutil.CountVotes(t, env.db, pollID); n != 0 {
		t.Errorf("Expected no vote records, got %d", n)
	}
}

func TestView_IncludesZeroOptions(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "A", "B", "C")
	ctx := context.Background()

	e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "v1"})
	e.Vote(ctx, Request{PollID: pollID, OptionID: opts[0], SessionID: "v2"})
	e.Vote(ctx, Request{PollID: pollID, OptionID: opts[1], SessionID: "v3"})

	view, err := e.View(ctx, pollID)
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if view.Title != "Lunch" || len(view.Options) != 3 {
		t.Fatalf("Unexpected view: %+v", view)
	}

	want := []int64{2, 1, 0}
	for i, opt := range view.Options {
		if opt.ID != opts[i] {
			t.Errorf("Option %d: expected %s, got %s", i, opts[i], opt.ID)
		}
		if opt.Score != want[i] {
			t.Errorf("Option %s: expected score %d, got %d", opt.Title, want[i], opt.Score)
		}
	}

	if _, err := e.View(ctx, "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrUnknownPoll) {
		t.Errorf("View() error = %v, want ErrUnknownPoll", err)
	}
}

func TestWatch(t *testing.T) {
	env := setupEnv(t)
	e := env.engine(nil, nil, time.Second)
	pollID, opts := testutil.CreateTestPoll(t, env.db, "Lunch", "Pizza")

	if _, err := e.Watch(context.Background(), "00000000-0000-0000-0000-000000000000"); !errors.Is(err, ErrUnknownPoll) {
		t.Errorf("Watch() error = %v, want ErrUnknownPoll", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sub, err := e.Watch(ctx, pollID)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	e.Vote(context.Background(), Request{PollID: pollID, OptionID: opts[0], SessionID: "v1"})

	select {
	case ev := <-sub.Events():
		if ev.OptionID != opts[0] || ev.Votes != 1 {
			t.Errorf("Unexpected event %+v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for event")
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for env.broker.Subscribers(pollID) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("Subscription not released after cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestOutcomeOf(t *testing.T) {
	tests := []struct {
		err  error
		want Outcome
	}{
		{nil, OutcomeAccepted},
		{ErrAlreadyVoted, OutcomeAlreadyVoted},
		{fmt.Errorf("wrapped: %w", ErrUnknownOption), OutcomeUnknownOption},
		{ErrUnknownPoll, OutcomeUnknownPoll},
		{storeError("op", context.DeadlineExceeded), OutcomeTransientConflict},
		{storeError("op", errors.New("boom")), OutcomeUnavailable},
	}

	for _, tt := range tests {
		if got := OutcomeOf(tt.err); got != tt.want {
			t.Errorf("OutcomeOf(%v) = %s, want %s", tt.err, got, tt.want)
		}
	}
}
