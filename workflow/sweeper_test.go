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

package workflow

import (
	"testing"
	"time"

	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func expiringHarness(t *testing.T) (*harness, types.AmendmentID) {
	t.Helper()
	h := newHarness(t, func(cfg *EngineConfig) { cfg.VotingPeriod = time.Hour })
	a := h.create(t)
	_, err := h.engine.OpenSuggestions(h.ctx, a.ID)
	require.NoError(t, err)
	_, err = h.engine.SubmitChangeRequest(h.ctx, a.ID, ChangeRequestInput{
		Diff:           replaceDiff(0, 7, "Section"),
		RequiresVoting: true,
	})
	require.NoError(t, err)
	_, err = h.engine.CloseSuggestions(h.ctx, a.ID)
	require.NoError(t, err)
	session := h.engine.ChangeRequests(a.ID)[0].Session
	require.NoError(t, h.engine.CastVote(h.ctx, a.ID, session, "u1", voting.Ballot{Choice: voting.ChoiceAccept}))
	return h, a.ID
}

func TestSweepCompletesExpiredSessions(t *testing.T) {
	h, id := expiringHarness(t)

	ids, err := h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "deadline not reached")
	assert.Equal(t, types.StatusInternalVoting, h.get(t, id).Status)

	h.clock.Advance(2 * time.Hour)
	ids, err = h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Equal(t, []types.AmendmentID{id}, ids)
	assert.Equal(t, types.StatusViewing, h.get(t, id).Status)

	ids, err = h.engine.Sweep(h.ctx)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestSweeperLoop(t *testing.T) {
	defer goleak.VerifyNone(t)
	h, id := expiringHarness(t)
	h.clock.Advance(2 * time.Hour)

	s := NewSweeper(h.engine, SweeperConfig{Interval: 5 * time.Millisecond})
	require.NoError(t, s.Start(h.ctx))
	require.Error(t, s.Start(h.ctx), "second start")
	require.Eventually(t, func() bool {
		a, err := h.engine.Amendment(h.ctx, id)
		return err == nil && a.Status == types.StatusViewing
	}, 2*time.Second, 5*time.Millisecond)
	s.Stop()
	s.Stop()
}
