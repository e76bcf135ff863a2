// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package voting

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeClock struct {
	now time.Time
	mu  sync.Mutex
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestEngine(t *testing.T) (*Engine, *fakeClock) {
	t.Helper()
	clock := &fakeClock{now: time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)}
	return NewEngine(EngineConfig{Now: clock.Now}), clock
}

func amendmentSubject() Subject {
	return Subject{Kind: SubjectAmendment, ID: "a1", Amendment: "a1"}
}

func voters(ids ...string) []types.UserID {
	ret := make([]types.UserID, len(ids))
	for i, id := range ids {
		ret[i] = types.UserID(id)
	}
	return ret
}

func TestSimpleMajorityAcceptsTwoToOne(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2", "u3"),
	})
	require.NoError(t, err)
	require.NoError(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}))
	require.NoError(t, e.CastVote(ctx, id, "u2", Ballot{Choice: ChoiceAccept}))

	preview, err := e.Tally(id)
	require.NoError(t, err)
	assert.False(t, preview.Final)

	require.NoError(t, e.CastVote(ctx, id, "u3", Ballot{Choice: ChoiceReject}))
	res, err := e.Tally(id)
	require.NoError(t, err)
	assert.True(t, res.Final, "all eligible voted")
	assert.Equal(t, OutcomeAccept, res.Outcome)
	assert.Equal(t, 2, res.Accept)
	assert.Equal(t, 1, res.Reject)

	again, err := e.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, res, again, "tally is idempotent")

	s, err := e.Session(id)
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, s.Status)
}

func TestDuplicateVoteKeepsFirstBallot(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2"),
	})
	require.NoError(t, err)
	require.NoError(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}))
	err = e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceReject})
	require.ErrorIs(t, err, ErrDuplicateVote)

	res, err := e.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accept)
	assert.Equal(t, 0, res.Reject)
	assert.Equal(t, 1, res.Cast)
}

func TestCastVoteErrors(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2"),
	})
	require.NoError(t, err)
	require.ErrorIs(t, e.CastVote(ctx, id, "stranger", Ballot{Choice: ChoiceAccept}), ErrNotEligible)
	require.ErrorIs(t, e.CastVote(ctx, id, "u1", Ballot{Choice: "maybe"}), ErrInvalidBallot)
	require.ErrorIs(t, e.CastVote(ctx, "nope", "u1", Ballot{Choice: ChoiceAccept}), ErrSessionNotFound)

	require.NoError(t, e.Void(id))
	require.ErrorIs(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}), ErrSessionClosed)
	res, err := e.Tally(id)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVoid, res.Outcome)
	require.NoError(t, e.Void(id), "voiding twice is a no-op")
}

func TestMajorityRules(t *testing.T) {
	tests := []struct {
		name     string
		majority MajorityType
		eligible int
		accept   int
		reject   int
		abstain  int
		want     Outcome
	}{
		{"simple tie rejects", MajoritySimple, 4, 2, 2, 0, OutcomeReject},
		{"simple ignores abstentions", MajoritySimple, 10, 2, 1, 5, OutcomeAccept},
		{"absolute below half of eligible", MajorityAbsolute, 10, 5, 0, 0, OutcomeReject},
		{"absolute above half of eligible", MajorityAbsolute, 10, 6, 0, 0, OutcomeAccept},
		{"absolute odd electorate", MajorityAbsolute, 5, 3, 0, 0, OutcomeAccept},
		{"two thirds exact", MajorityTwoThirds, 9, 2, 1, 0, OutcomeAccept},
		{"two thirds counts abstentions", MajorityTwoThirds, 9, 2, 0, 2, OutcomeReject},
		{"two thirds rounds up", MajorityTwoThirds, 9, 3, 2, 0, OutcomeReject},
		{"two thirds nobody voted", MajorityTwoThirds, 9, 0, 0, 0, OutcomeReject},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var ballots []Ballot
			for range tc.accept {
				ballots = append(ballots, Ballot{Choice: ChoiceAccept})
			}
			for range tc.reject {
				ballots = append(ballots, Ballot{Choice: ChoiceReject})
			}
			for range tc.abstain {
				ballots = append(ballots, Ballot{Choice: ChoiceAbstain})
			}
			res := tally(tc.majority, CardinalitySingle, tc.eligible, ballots, nil, 0)
			assert.Equal(t, tc.want, res.Outcome)
			assert.Equal(t, tc.abstain, res.Abstain)
		})
	}
}

func TestMultipleChoice(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:       Subject{Kind: SubjectElection, ID: "board"},
		Majority:      MajoritySimple,
		Cardinality:   CardinalityMultiple,
		Candidates:    []string{"ann", "bob", "cat"},
		MaxSelections: 2,
		Eligible:      voters("u1", "u2", "u3", "u4"),
	})
	require.NoError(t, err)
	require.ErrorIs(
		t,
		e.CastVote(ctx, id, "u1", Ballot{Candidates: []string{"ann", "bob", "cat"}}),
		ErrInvalidBallot,
	)
	require.ErrorIs(
		t,
		e.CastVote(ctx, id, "u1", Ballot{Candidates: []string{"dan"}}),
		ErrInvalidBallot,
	)
	require.NoError(t, e.CastVote(ctx, id, "u1", Ballot{Candidates: []string{"ann", "bob"}}))
	require.NoError(t, e.CastVote(ctx, id, "u2", Ballot{Candidates: []string{"cat", "bob"}}))
	require.NoError(t, e.CastVote(ctx, id, "u3", Ballot{Candidates: []string{"ann", "cat"}}))
	require.NoError(t, e.CastVote(ctx, id, "u4", Ballot{Choice: ChoiceAbstain}))

	res, err := e.Tally(id)
	require.NoError(t, err)
	require.True(t, res.Final)
	assert.Equal(t, OutcomeAccept, res.Outcome)
	assert.Equal(t, map[string]int{"ann": 2, "bob": 2, "cat": 2}, res.Counts)
	assert.Equal(t, []string{"ann", "bob"}, res.Winners, "ties broken by id, capped at max selections")
	assert.Equal(t, 1, res.Abstain)
}

func TestSessionEndsAtSweep(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajorityAbsolute,
		Eligible: voters("u1", "u2", "u3"),
		EndsAt:   clock.Now().Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}))

	assert.Empty(t, e.Sweep(clock.Now()))
	clock.Advance(time.Hour)
	done := e.Sweep(clock.Now())
	require.Len(t, done, 1)
	assert.Equal(t, id, done[0].ID)
	assert.Equal(t, OutcomeReject, done[0].Resolution.Outcome)
	assert.Empty(t, e.Sweep(clock.Now()), "completed sessions are swept once")
	require.ErrorIs(t, e.CastVote(ctx, id, "u2", Ballot{Choice: ChoiceAccept}), ErrSessionClosed)
}

func TestPendingSessionActivates(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2"),
		StartsAt: clock.Now().Add(time.Minute),
	})
	require.NoError(t, err)
	require.ErrorIs(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}), ErrSessionClosed)
	clock.Advance(time.Minute)
	require.NoError(t, e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept}))
}

func TestOpenValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.Open(OpenRequest{Majority: MajoritySimple})
	require.ErrorIs(t, err, ErrInvalidSessionSpec)
	_, err = e.Open(OpenRequest{Subject: amendmentSubject(), Majority: "supermajority"})
	require.ErrorIs(t, err, ErrInvalidSessionSpec)
	_, err = e.Open(OpenRequest{
		Subject:     amendmentSubject(),
		Majority:    MajoritySimple,
		Cardinality: CardinalityMultiple,
	})
	require.ErrorIs(t, err, ErrInvalidSessionSpec)

	id, err := e.Open(OpenRequest{Subject: amendmentSubject(), Majority: MajoritySimple})
	require.NoError(t, err)
	res, err := e.Tally(id)
	require.NoError(t, err)
	assert.True(t, res.Final, "empty electorate completes at once")
	assert.Equal(t, OutcomeReject, res.Outcome)
}

func TestConcurrentDuplicateCasts(t *testing.T) {
	reg := prometheus.NewRegistry()
	e := NewEngine(EngineConfig{PromRegistry: reg})
	ctx := context.Background()
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2"),
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	var ok, dup atomic.Int32
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := e.CastVote(ctx, id, "u1", Ballot{Choice: ChoiceAccept})
			switch {
			case err == nil:
				ok.Add(1)
			case assert.ErrorIs(t, err, ErrDuplicateVote):
				dup.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), ok.Load())
	assert.Equal(t, int32(49), dup.Load())

	s, err := e.Session(id)
	require.NoError(t, err)
	assert.Len(t, s.Votes, 1)
	assert.Equal(t, uint64(1), s.Version)
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.votesCast), 0)
	assert.InDelta(t, 49, testutil.ToFloat64(e.metrics.votesRejected.WithLabelValues("duplicate")), 0)
}

type conflictLedger struct {
	*MemoryLedger
}

func (c conflictLedger) Record(ctx context.Context, v Vote) error {
	return ErrDuplicateVote
}

func TestLedgerConflictSurfacesAsDuplicate(t *testing.T) {
	e := NewEngine(EngineConfig{Ledger: conflictLedger{NewMemoryLedger()}})
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1"),
	})
	require.NoError(t, err)
	err = e.CastVote(context.Background(), id, "u1", Ballot{Choice: ChoiceAccept})
	require.ErrorIs(t, err, ErrDuplicateVote)
	s, err := e.Session(id)
	require.NoError(t, err)
	assert.Empty(t, s.Votes)
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryLedger()
	require.NoError(t, l.Record(ctx, Vote{Session: "s1", Voter: "u1", Ballot: Ballot{Choice: ChoiceAccept}}))
	require.NoError(t, l.Record(ctx, Vote{Session: "s1", Voter: "u2", Ballot: Ballot{Choice: ChoiceReject}}))
	require.NoError(t, l.Record(ctx, Vote{Session: "s2", Voter: "u1", Ballot: Ballot{Choice: ChoiceReject}}))
	require.ErrorIs(t, l.Record(ctx, Vote{Session: "s1", Voter: "u1"}), ErrDuplicateVote)
	votes, err := l.Votes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, types.UserID("u1"), votes[0].Voter)
}

func TestSessionCompletedEvent(t *testing.T) {
	defer goleak.VerifyNone(t)
	bus := event.NewEventBus(nil, nil)
	defer bus.Stop()
	_, ch := bus.Subscribe(SessionCompletedEventType)
	e := NewEngine(EngineConfig{EventBus: bus})
	id, err := e.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1"),
	})
	require.NoError(t, err)
	require.NoError(t, e.CastVote(context.Background(), id, "u1", Ballot{Choice: ChoiceAccept}))
	select {
	case evt := <-ch:
		data, ok := evt.Data.(SessionCompletedEvent)
		require.True(t, ok)
		assert.Equal(t, id, data.Session)
		assert.Equal(t, types.AmendmentID("a1"), data.Subject.Amendment)
		assert.True(t, data.Resolution.Accepted())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for session completed event")
	}
}

func TestSweepVisitsOpenSessionsOnly(t *testing.T) {
	e, clock := newTestEngine(t)
	ctx := context.Background()
	endsAt := clock.Now().Add(time.Hour)
	var ids []types.SessionID
	for range 3 {
		id, err := e.Open(OpenRequest{
			Subject:  amendmentSubject(),
			Majority: MajoritySimple,
			Eligible: voters("u1"),
			EndsAt:   endsAt,
		})
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, 3, e.OpenCount())

	require.NoError(t, e.CastVote(ctx, ids[0], "u1", Ballot{Choice: ChoiceAccept}))
	require.NoError(t, e.Void(ids[1]))
	assert.Equal(t, 1, e.OpenCount())
	assert.InDelta(t, 1, testutil.ToFloat64(e.metrics.sessionsOpen), 0)

	assert.Empty(t, e.Sweep(clock.Now()))
	clock.Advance(2 * time.Hour)
	swept := e.Sweep(clock.Now())
	require.Len(t, swept, 1)
	assert.Equal(t, ids[2], swept[0].ID)
	assert.Equal(t, 0, e.OpenCount())
	assert.Empty(t, e.Sweep(clock.Now()))

	// completed sessions stay readable
	s, err := e.Session(ids[0])
	require.NoError(t, err)
	assert.Equal(t, SessionCompleted, s.Status)
}

// mapSessionStore keeps saved sessions in a map
type mapSessionStore struct {
	mu    sync.Mutex
	saved map[types.SessionID]Session
}

func (s *mapSessionStore) SaveSession(session Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.Votes = nil
	s.saved[session.ID] = session
	return nil
}

func (s *mapSessionStore) Sessions() ([]Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ret := make([]Session, 0, len(s.saved))
	for _, session := range s.saved {
		ret = append(ret, session)
	}
	return ret, nil
}

func TestLoadRestoresSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 1, 10, 18, 0, 0, 0, time.UTC)}
	ledger := NewMemoryLedger()
	store := &mapSessionStore{saved: make(map[types.SessionID]Session)}
	newEngine := func() *Engine {
		return NewEngine(EngineConfig{Ledger: ledger, Sessions: store, Now: clock.Now})
	}
	ctx := context.Background()
	first := newEngine()
	running, err := first.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1", "u2", "u3"),
	})
	require.NoError(t, err)
	require.NoError(t, first.CastVote(ctx, running, "u1", Ballot{Choice: ChoiceAccept}))
	voided, err := first.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1"),
	})
	require.NoError(t, err)
	require.NoError(t, first.Void(voided))
	// last ballot reached the ledger but not the session row
	unsaved, err := first.Open(OpenRequest{
		Subject:  amendmentSubject(),
		Majority: MajoritySimple,
		Eligible: voters("u1"),
	})
	require.NoError(t, err)
	require.NoError(t, ledger.Record(ctx, Vote{
		Session: unsaved,
		Voter:   "u1",
		Ballot:  Ballot{Choice: ChoiceReject},
		CastAt:  clock.Now(),
	}))

	second := newEngine()
	require.NoError(t, second.Load(ctx))
	assert.Equal(t, 1, second.OpenCount())

	s, err := second.Session(running)
	require.NoError(t, err)
	assert.Equal(t, SessionActive, s.Status)
	require.Len(t, s.Votes, 1)
	assert.Equal(t, types.UserID("u1"), s.Votes[0].Voter)
	err = second.CastVote(ctx, running, "u1", Ballot{Choice: ChoiceReject})
	require.ErrorIs(t, err, ErrDuplicateVote)
	require.NoError(t, second.CastVote(ctx, running, "u2", Ballot{Choice: ChoiceAccept}))
	require.NoError(t, second.CastVote(ctx, running, "u3", Ballot{Choice: ChoiceReject}))
	res, err := second.Tally(running)
	require.NoError(t, err)
	assert.True(t, res.Accepted())
	assert.Equal(t, SessionCompleted, store.saved[running].Status)

	res, err = second.Tally(voided)
	require.NoError(t, err)
	assert.Equal(t, OutcomeVoid, res.Outcome)
	res, err = second.Tally(unsaved)
	require.NoError(t, err)
	assert.True(t, res.Final)
	assert.Equal(t, OutcomeReject, res.Outcome)
	assert.Equal(t, 0, second.OpenCount())
}
