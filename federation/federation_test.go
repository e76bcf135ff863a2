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

package federation

import (
	"strings"
	"testing"
	"time"

	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/workflow"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testFederation = `
groups:
  - id: local
    name: Local chapter
    members: [alice, bob]
  - id: region
    members: [carol, dave, erin]
  - id: national
    members: [frank]
relationships:
  - parent: local
    child: region
    right: amendment_forwarding
  - parent: region
    child: national
    right: amendment_forwarding
    status: requested
    initiator: carol
  - parent: local
    child: national
    right: information
meetings:
  - id: region-june
    group: region
    startsAt: 2026-06-10T18:00:00Z
    agendaItem: "4.1"
`

func TestLoadFederation(t *testing.T) {
	f, err := NewFederationConfigFromReader(strings.NewReader(testFederation))
	require.NoError(t, err)
	require.Len(t, f.Groups, 3)
	require.Len(t, f.Relationships, 3)

	graph := rights.NewGraph()
	dir := workflow.NewStaticDirectory()
	require.NoError(t, f.Apply(graph, dir))

	g, ok := graph.Group("region")
	require.True(t, ok)
	assert.Equal(t, 3, g.MemberCount)
	assert.Equal(t, []types.UserID{"alice", "bob"}, dir.Members("local"))
	assert.True(t, graph.IsForwardable("local", "region"))
	assert.False(t, graph.IsForwardable("region", "national"), "requested edges do not forward")
	assert.False(t, graph.IsForwardable("local", "national"))

	cal, err := f.Calendar()
	require.NoError(t, err)
	m, err := cal.Get("region-june")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 6, 10, 18, 0, 0, 0, time.UTC), m.StartsAt.UTC())
	assert.Equal(t, "4.1", m.AgendaItem)
}

func TestApplyReportsBadRelationships(t *testing.T) {
	f, err := NewFederationConfigFromReader(strings.NewReader(`
groups:
  - id: a
relationships:
  - parent: a
    child: missing
    right: amendment_forwarding
  - parent: a
    child: a
    right: speak
  - parent: a
    child: b
    right: veto
`))
	require.NoError(t, err)
	err = f.Apply(rights.NewGraph(), nil)
	require.ErrorIs(t, err, rights.ErrUnknownGroup)
	require.ErrorIs(t, err, rights.ErrSelfRelationship)
	require.ErrorIs(t, err, rights.ErrInvalidRight)
}

func TestFederationSizeLimit(t *testing.T) {
	big := strings.NewReader(strings.Repeat("#", maxFederationSize+1))
	_, err := NewFederationConfigFromReader(big)
	require.ErrorContains(t, err, "exceeds maximum size")
}
