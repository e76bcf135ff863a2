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

package rights

import (
	"fmt"
	"sync"
	"testing"

	"github.com/civicweave/ratify/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph(t *testing.T, ids ...types.GroupID) *Graph {
	t.Helper()
	g := NewGraph()
	for _, id := range ids {
		require.NoError(t, g.AddGroup(Group{ID: id, Name: string(id), MemberCount: 5}))
	}
	return g
}

func forward(t *testing.T, g *Graph, parent, child types.GroupID) {
	t.Helper()
	require.NoError(
		t,
		g.AddRelationship(parent, child, RightAmendmentForwarding, StatusActive, "admin"),
	)
}

func TestAddRelationshipValidation(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	err := g.AddRelationship("A", "C", RightAmendmentForwarding, StatusActive, "")
	require.ErrorIs(t, err, ErrUnknownGroup)
	err = g.AddRelationship("A", "A", RightAmendmentForwarding, StatusActive, "")
	require.ErrorIs(t, err, ErrSelfRelationship)
	err = g.AddRelationship("A", "B", RightKind("veto"), StatusActive, "")
	require.ErrorIs(t, err, ErrInvalidRight)
	err = g.AddRelationship("A", "B", RightSpeak, RelationshipStatus("maybe"), "")
	require.ErrorIs(t, err, ErrInvalidStatus)
	require.Error(t, g.AddGroup(Group{}))
}

func TestIsForwardableFiltersByKindAndStatus(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	require.NoError(t, g.AddRelationship("A", "B", RightInformation, StatusActive, ""))
	assert.False(t, g.IsForwardable("A", "B"), "information edge is not forwardable")

	require.NoError(
		t,
		g.AddRelationship("A", "B", RightAmendmentForwarding, StatusRequested, "u1"),
	)
	assert.False(t, g.IsForwardable("A", "B"), "requested edge is not forwardable")

	require.NoError(t, g.Activate("A", "B", RightAmendmentForwarding))
	assert.True(t, g.IsForwardable("A", "B"))
	assert.False(t, g.IsForwardable("B", "A"), "edges are directed")

	// Both edges kept side by side
	assert.Len(t, g.Relationships("A"), 2)

	err := g.Activate("B", "A", RightAmendmentForwarding)
	require.ErrorIs(t, err, ErrRelationshipMissing)
}

func TestAddRelationshipReplacesSameKind(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	require.NoError(
		t,
		g.AddRelationship("A", "B", RightAmendmentForwarding, StatusRequested, "u1"),
	)
	require.NoError(
		t,
		g.AddRelationship("A", "B", RightAmendmentForwarding, StatusActive, "u2"),
	)
	rels := g.Relationships("A")
	require.Len(t, rels, 1)
	assert.Equal(t, StatusActive, rels[0].Status)
	assert.Equal(t, types.UserID("u2"), rels[0].Initiator)
}

func TestReachable(t *testing.T) {
	g := newTestGraph(t, "A", "B", "C", "D")
	forward(t, g, "A", "B")
	forward(t, g, "A", "C")
	forward(t, g, "B", "D")
	forward(t, g, "C", "D")
	forward(t, g, "A", "D")

	paths := g.Reachable("A", "D")
	assert.Equal(
		t,
		[][]types.GroupID{
			{"A", "B", "D"},
			{"A", "C", "D"},
			{"A", "D"},
		},
		paths,
	)
	assert.Empty(t, g.Reachable("D", "A"), "no reverse route")
	assert.Empty(t, g.Reachable("A", "Z"), "unknown target")
	assert.Equal(t, [][]types.GroupID{{"A"}}, g.Reachable("A", "A"))
}

func TestReachableIgnoresCycles(t *testing.T) {
	g := newTestGraph(t, "A", "B", "C")
	forward(t, g, "A", "B")
	forward(t, g, "B", "A")
	forward(t, g, "B", "C")
	forward(t, g, "C", "B")

	paths := g.Reachable("A", "C")
	require.Equal(t, [][]types.GroupID{{"A", "B", "C"}}, paths)
	for _, path := range paths {
		seen := make(map[types.GroupID]bool)
		for _, id := range path {
			assert.False(t, seen[id], "group %s repeated in %v", id, path)
			seen[id] = true
		}
	}
}

func TestReachableHopLimit(t *testing.T) {
	ids := []types.GroupID{"G0", "G1", "G2", "G3", "G4", "G5"}
	g := newTestGraph(t, ids...)
	for i := 0; i+1 < len(ids); i++ {
		forward(t, g, ids[i], ids[i+1])
	}
	assert.Empty(t, g.Reachable("G0", "G5"), "five hops exceed the default bound")
	assert.Len(t, g.Reachable("G0", "G4"), 1)

	wide := g.Snapshot()
	WithMaxHops(5)(wide)
	assert.Len(t, wide.Reachable("G0", "G5"), 1)
}

func TestSnapshotIsIndependent(t *testing.T) {
	g := newTestGraph(t, "A", "B")
	snap := g.Snapshot()
	forward(t, g, "A", "B")
	assert.True(t, g.IsForwardable("A", "B"))
	assert.False(t, snap.IsForwardable("A", "B"))
	assert.Len(t, snap.Groups(), 2)
}

func TestGraphConcurrentAccess(t *testing.T) {
	g := newTestGraph(t, "root")
	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := types.GroupID(fmt.Sprintf("g%02d", i))
			assert.NoError(t, g.AddGroup(Group{ID: id}))
			assert.NoError(
				t,
				g.AddRelationship("root", id, RightAmendmentForwarding, StatusActive, ""),
			)
			_ = g.Reachable("root", id)
		}(i)
	}
	wg.Wait()
	assert.Len(t, g.Relationships("root"), 20)
	assert.Len(t, g.Reachable("root", "g07"), 1)
}
