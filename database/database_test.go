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

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/civicweave/ratify/database"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *database.Database {
	t.Helper()
	db, err := database.New(database.Config{})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func testAmendment(id types.AmendmentID) *workflow.Amendment {
	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	return &workflow.Amendment{
		ID:            id,
		Title:         "Dues reform",
		DocumentRef:   "ref-1",
		Status:        types.StatusViewing,
		Supporters:    []types.GroupID{"S2", "S1"},
		Collaborators: []types.UserID{"u1"},
		Origin:        "O",
		Target:        "B",
		Majority:      voting.MajorityTwoThirds,
		Path: &planner.Path{
			Segments: []planner.Segment{
				{Index: 0, Group: "A", Meeting: "mA", Session: "s1", Forwarding: planner.ForwardConfirmed},
				{Index: 1, Group: "B", Forwarding: planner.PreviousDecisionOutstanding},
			},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestAmendmentStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Amendments()
	a := testAmendment("a1")
	require.NoError(t, store.Create(ctx, a))
	assert.Equal(t, uint64(1), a.Version)
	require.ErrorIs(t, store.Create(ctx, testAmendment("a1")), workflow.ErrAmendmentExists)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, a, got)

	noPath := testAmendment("a2")
	noPath.Path = nil
	noPath.Supporters = []types.GroupID{}
	require.NoError(t, store.Create(ctx, noPath))
	got, err = store.Get(ctx, "a2")
	require.NoError(t, err)
	assert.Nil(t, got.Path)
	assert.Empty(t, got.Supporters)

	_, err = store.Get(ctx, "missing")
	require.ErrorIs(t, err, database.ErrAmendmentNotFound)
}

func TestAmendmentStoreCompareAndSwap(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Amendments()
	require.NoError(t, store.Create(ctx, testAmendment("a1")))

	first, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	second, err := store.Get(ctx, "a1")
	require.NoError(t, err)

	first.Status = types.StatusEventSuggesting
	first.CurrentMeeting = "mA"
	first.Supporters = []types.GroupID{"S1"}
	first.Path.Current = 1
	first.Path.Segments[1].Forwarding = planner.ForwardConfirmed
	require.NoError(t, store.Update(ctx, first))
	assert.Equal(t, uint64(2), first.Version)

	second.Title = "lost update"
	require.ErrorIs(t, store.Update(ctx, second), database.ErrVersionConflict)

	got, err := store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, first, got)

	missing := testAmendment("nope")
	require.ErrorIs(t, store.Update(ctx, missing), database.ErrAmendmentNotFound)
}

func TestAmendmentStoreConcurrentUpdates(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Amendments()
	require.NoError(t, store.Create(ctx, testAmendment("a1")))

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a, err := store.Get(ctx, "a1")
			if !assert.NoError(t, err) {
				return
			}
			// every writer read version 1 before anyone committed
			a.Version = 1
			a.Title = "racer"
			if err := store.Update(ctx, a); err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			} else {
				assert.ErrorIs(t, err, database.ErrVersionConflict)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, succeeded)
}

func TestAmendmentStoreList(t *testing.T) {
	ctx := context.Background()
	store := newTestDB(t).Amendments()
	for i, id := range []types.AmendmentID{"b", "a", "c"} {
		a := testAmendment(id)
		a.CreatedAt = a.CreatedAt.Add(time.Duration(i) * time.Minute)
		if id == "c" {
			a.Status = types.StatusPassed
			a.Path = nil
		}
		require.NoError(t, store.Create(ctx, a))
	}
	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, types.AmendmentID("b"), all[0].ID)
	assert.Equal(t, types.AmendmentID("a"), all[1].ID)

	viewing, err := store.List(ctx, types.StatusViewing)
	require.NoError(t, err)
	assert.Len(t, viewing, 2)
	done, err := store.List(ctx, types.StatusPassed, types.StatusRejected)
	require.NoError(t, err)
	require.Len(t, done, 1)
	assert.Equal(t, types.AmendmentID("c"), done[0].ID)
}

func TestVoteLedger(t *testing.T) {
	ctx := context.Background()
	ledger := newTestDB(t).Votes()
	castAt := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, ledger.Record(ctx, voting.Vote{
		Session: "s1",
		Voter:   "v1",
		Ballot:  voting.Ballot{Choice: voting.ChoiceAccept},
		CastAt:  castAt,
	}))
	require.NoError(t, ledger.Record(ctx, voting.Vote{
		Session: "s1",
		Voter:   "v2",
		Ballot:  voting.Ballot{Candidates: []string{"x", "y"}},
		CastAt:  castAt,
	}))
	err := ledger.Record(ctx, voting.Vote{
		Session: "s1",
		Voter:   "v1",
		Ballot:  voting.Ballot{Choice: voting.ChoiceReject},
		CastAt:  castAt,
	})
	require.ErrorIs(t, err, voting.ErrDuplicateVote)
	require.NoError(t, ledger.Record(ctx, voting.Vote{Session: "s2", Voter: "v1", CastAt: castAt}))

	votes, err := ledger.Votes(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, votes, 2)
	assert.Equal(t, voting.ChoiceAccept, votes[0].Ballot.Choice)
	assert.Equal(t, []string{"x", "y"}, votes[1].Ballot.Candidates)
	assert.Equal(t, castAt, votes[0].CastAt)
}

func TestWorkflowOnSqlite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	graph := rights.NewGraph()
	for _, g := range []types.GroupID{"O", "A"} {
		require.NoError(t, graph.AddGroup(rights.Group{ID: g}))
	}
	require.NoError(t, graph.AddRelationship("O", "A", rights.RightAmendmentForwarding, rights.StatusActive, "admin"))
	engine := workflow.NewEngine(workflow.EngineConfig{
		Store: db.Amendments(),
		Graph: graph,
		Voting: voting.NewEngine(voting.EngineConfig{
			Ledger: db.Votes(),
		}),
	})
	a, err := engine.CreateAmendment(ctx, workflow.CreateRequest{
		Title:         "Dues reform",
		Text:          "Article 1.",
		Origin:        "O",
		Collaborators: []types.UserID{"u1"},
	})
	require.NoError(t, err)
	_, err = engine.SetTarget(ctx, a.ID, "A", "")
	require.NoError(t, err)
	_, err = engine.OpenSuggestions(ctx, a.ID)
	require.NoError(t, err)

	got, err := db.Amendments().Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInternalSuggesting, got.Status)
	assert.Equal(t, []types.GroupID{"A"}, got.Path.Groups())
	assert.Equal(t, uint64(3), got.Version)
}

func TestOnDiskPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	require.NoError(t, db.Amendments().Create(ctx, testAmendment("a1")))
	require.NoError(t, db.Close())

	db, err = database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	defer db.Close()
	got, err := db.Amendments().Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Dues reform", got.Title)
	assert.Len(t, got.Path.Segments, 2)
}
