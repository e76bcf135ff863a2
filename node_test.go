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

package ratify_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/civicweave/ratify"
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/federation"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

const testFederation = `
groups:
  - id: local
    members: [alice, bob]
  - id: region
    members: [carol, dave]
relationships:
  - parent: local
    child: region
    right: amendment_forwarding
meetings:
  - id: region-assembly
    group: region
    startsAt: 2099-03-01T18:00:00Z
`

func startNode(t *testing.T, opts ...ratify.ConfigOptionFunc) *ratify.Node {
	t.Helper()
	fed, err := federation.NewFederationConfigFromReader(strings.NewReader(testFederation))
	require.NoError(t, err)
	opts = append(
		[]ratify.ConfigOptionFunc{
			ratify.WithFederationConfig(fed),
			ratify.WithPrometheusRegistry(prometheus.NewRegistry()),
			ratify.WithShutdownTimeout(5 * time.Second),
		},
		opts...,
	)
	n, err := ratify.New(ratify.NewConfig(opts...))
	require.NoError(t, err)
	runErr := make(chan error, 1)
	go func() {
		runErr <- n.Run()
	}()
	select {
	case <-n.Ready():
	case err := <-runErr:
		t.Fatalf("node failed to start: %s", err)
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for node")
	}
	return n
}

func TestNodeRunAndStop(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	n := startNode(t, ratify.WithApiListenAddress("127.0.0.1:0"))
	ctx := context.Background()
	a, err := n.Engine().CreateAmendment(ctx, workflow.CreateRequest{
		Title:         "Dues",
		Text:          "Members pay dues monthly.",
		Origin:        "local",
		Collaborators: []types.UserID{"alice"},
	})
	require.NoError(t, err)
	assert.Equal(t, types.StatusCollaborativeEditing, a.Status)

	a, err = n.Engine().SetTarget(ctx, a.ID, "region", "")
	require.NoError(t, err)
	require.NotNil(t, a.Path)
	last := a.Path.Segments[len(a.Path.Segments)-1]
	assert.Equal(t, types.GroupID("region"), last.Group)
	assert.Equal(t, types.MeetingID("region-assembly"), last.Meeting)

	require.NotNil(t, n.APIAddr())
	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get(fmt.Sprintf("http://%s/api/v1/amendments/%s", n.APIAddr(), a.ID))
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "region-assembly")

	require.NoError(t, n.Stop())
	// Stop is idempotent
	require.NoError(t, n.Stop())
}

func TestNodeRestartKeepsWorkflowState(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	n := startNode(
		t,
		ratify.WithDatabasePath(dir),
		ratify.WithDocumentStore(ratify.DocumentBackendBadger, ""),
	)
	a, err := n.Engine().CreateAmendment(ctx, workflow.CreateRequest{
		Title:         "Quorum",
		Text:          "Quorum is ten members.",
		Origin:        "local",
		Collaborators: []types.UserID{"alice", "bob"},
	})
	require.NoError(t, err)
	_, err = n.Engine().OpenSuggestions(ctx, a.ID)
	require.NoError(t, err)
	cr, err := n.Engine().SubmitChangeRequest(ctx, a.ID, workflow.ChangeRequestInput{
		Diff: document.Diff{
			Region:      &document.Region{Start: 10, End: 13},
			Replacement: "twelve",
		},
		RequiresVoting: true,
	})
	require.NoError(t, err)
	a, err = n.Engine().CloseSuggestions(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, types.StatusInternalVoting, a.Status)
	session := n.Engine().ChangeRequests(a.ID)[0].Session
	require.NoError(t, n.Engine().CastVote(ctx, a.ID, session, "alice", voting.Ballot{Choice: voting.ChoiceAccept}))
	require.NoError(t, n.Stop())
	assert.DirExists(t, filepath.Join(dir, "documents"))

	n = startNode(
		t,
		ratify.WithDatabasePath(dir),
		ratify.WithDocumentStore(ratify.DocumentBackendBadger, ""),
	)
	defer n.Stop() //nolint:errcheck
	got, err := n.Engine().Advance(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusInternalVoting, got.Status, "vote is still running")
	requests := n.Engine().ChangeRequests(a.ID)
	require.Len(t, requests, 1)
	assert.Equal(t, cr.ID, requests[0].ID)
	assert.Equal(t, session, requests[0].Session)

	err = n.Engine().CastVote(ctx, a.ID, session, "alice", voting.Ballot{Choice: voting.ChoiceReject})
	require.ErrorIs(t, err, voting.ErrDuplicateVote)
	require.NoError(t, n.Engine().CastVote(ctx, a.ID, session, "bob", voting.Ballot{Choice: voting.ChoiceAccept}))
	got, err = n.Engine().Amendment(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusViewing, got.Status)
	assert.Equal(t, 1, got.DocumentVersion)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		opt  ratify.ConfigOptionFunc
	}{
		{"unknown backend", ratify.WithDocumentStore("etcd", "")},
		{"memory documents on disk", ratify.WithDatabasePath(t.TempDir())},
		{"unknown majority", ratify.WithDefaultMajority("most")},
		{"negative hops", ratify.WithMaxHops(-1)},
		{"negative support", ratify.WithMinEffectiveSupport(-2)},
		{"negative voting period", ratify.WithVotingPeriod(-time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ratify.New(ratify.NewConfig(tt.opt))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}
