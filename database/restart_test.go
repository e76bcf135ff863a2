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
	"testing"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/database"
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stack struct {
	db     *database.Database
	docs   *document.BadgerStore
	engine *workflow.Engine
}

// openStack wires a workflow engine to sqlite and badger under dir the way
// the node does, restoring whatever an earlier stack stored there
func openStack(t *testing.T, dir string) *stack {
	t.Helper()
	db, err := database.New(database.Config{DataDir: dir})
	require.NoError(t, err)
	docs, err := document.NewBadgerStore(document.BadgerStoreConfig{DataDir: dir + "/documents"})
	require.NoError(t, err)
	graph := rights.NewGraph()
	for _, g := range []types.GroupID{"O", "A", "S1"} {
		require.NoError(t, graph.AddGroup(rights.Group{ID: g}))
	}
	require.NoError(t, graph.AddRelationship("O", "A", rights.RightAmendmentForwarding, rights.StatusActive, "admin"))
	votes := voting.NewEngine(voting.EngineConfig{
		Ledger:   db.Votes(),
		Sessions: db.Sessions(),
	})
	require.NoError(t, votes.Load(context.Background()))
	requests := changerequest.NewManager(changerequest.ManagerConfig{
		Documents: docs,
		Voting:    votes,
		Store:     db.ChangeRequests(),
	})
	require.NoError(t, requests.Load())
	confirmations := support.NewCoordinator(support.CoordinatorConfig{
		Store: db.Confirmations(),
	})
	require.NoError(t, confirmations.Load())
	return &stack{
		db:   db,
		docs: docs,
		engine: workflow.NewEngine(workflow.EngineConfig{
			Store:          db.Amendments(),
			Documents:      docs,
			Graph:          graph,
			Voting:         votes,
			ChangeRequests: requests,
			Support:        confirmations,
		}),
	}
}

func (s *stack) close(t *testing.T) {
	t.Helper()
	require.NoError(t, s.docs.Close())
	require.NoError(t, s.db.Close())
}

func TestRestartResumesInternalVoting(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s := openStack(t, dir)
	a, err := s.engine.CreateAmendment(ctx, workflow.CreateRequest{
		Title:         "Dues reform",
		Text:          "Article 1. Members pay dues monthly.",
		Origin:        "O",
		Collaborators: []types.UserID{"u1", "u2", "u3"},
		Supporters:    []types.GroupID{"S1"},
	})
	require.NoError(t, err)
	_, err = s.engine.OpenSuggestions(ctx, a.ID)
	require.NoError(t, err)
	voted, err := s.engine.SubmitChangeRequest(ctx, a.ID, workflow.ChangeRequestInput{
		Diff: document.Diff{
			Region:      &document.Region{Start: 0, End: 7},
			Replacement: "Section",
		},
		RequiresVoting: true,
	})
	require.NoError(t, err)
	immediate, err := s.engine.SubmitChangeRequest(ctx, a.ID, workflow.ChangeRequestInput{
		Diff: document.Diff{
			Region:      &document.Region{Start: 28, End: 36},
			Replacement: "weekly.",
		},
	})
	require.NoError(t, err)
	a, err = s.engine.CloseSuggestions(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusInternalVoting, a.Status)
	session := s.engine.ChangeRequests(a.ID)[0].Session
	require.NotEmpty(t, session)
	require.NoError(t, s.engine.CastVote(ctx, a.ID, session, "u1", voting.Ballot{Choice: voting.ChoiceAccept}))
	s.close(t)

	s = openStack(t, dir)
	got, err := s.engine.Advance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInternalVoting, got.Status, "vote must not be skipped")
	assert.Equal(t, 0, got.DocumentVersion)
	requests := s.engine.ChangeRequests(a.ID)
	require.Len(t, requests, 2)
	assert.Equal(t, voted.ID, requests[0].ID)
	assert.Equal(t, changerequest.StatusPending, requests[0].Status)
	assert.Equal(t, session, requests[0].Session)
	assert.Equal(t, immediate.ID, requests[1].ID)

	late, err := s.engine.SubmitChangeRequest(ctx, a.ID, workflow.ChangeRequestInput{
		Diff: document.Diff{
			Region:      &document.Region{Start: 11, End: 18},
			Replacement: "All members",
		},
		RequiresVoting: true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, late.VotingOrder)
	require.NotEmpty(t, late.Session)

	err = s.engine.CastVote(ctx, a.ID, session, "u1", voting.Ballot{Choice: voting.ChoiceReject})
	require.ErrorIs(t, err, voting.ErrDuplicateVote)
	for _, voter := range []types.UserID{"u2", "u3"} {
		require.NoError(t, s.engine.CastVote(ctx, a.ID, session, voter, voting.Ballot{Choice: voting.ChoiceAccept}))
	}
	got, err = s.engine.Amendment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInternalVoting, got.Status, "late request still open")
	assert.Equal(t, 2, got.DocumentVersion)
	s.close(t)

	s = openStack(t, dir)
	defer s.close(t)
	status, err := s.engine.Status(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, status.PendingConfirmations, 1)
	assert.Equal(t, types.GroupID("S1"), status.PendingConfirmations[0].Group)
	assert.Equal(t, 2, status.PendingConfirmations[0].Revision)
	assert.Equal(t, 0, status.EffectiveSupportCount)
	for _, voter := range []types.UserID{"u1", "u2", "u3"} {
		require.NoError(t, s.engine.CastVote(ctx, a.ID, late.Session, voter, voting.Ballot{Choice: voting.ChoiceReject}))
	}
	got, err = s.engine.Amendment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusViewing, got.Status)
	content, err := s.docs.Get(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Section 1. Members pay dues weekly.", content.Text)
	requests = s.engine.ChangeRequests(a.ID)
	require.Len(t, requests, 3)
	assert.Equal(t, changerequest.ReasonVoteRejected, requests[2].Reason)
}
