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

package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/civicweave/ratify/federation"
	"github.com/civicweave/ratify/planner"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const planFederation = `
groups:
  - id: local
  - id: region
  - id: national
relationships:
  - parent: local
    child: region
    right: amendment_forwarding
  - parent: region
    child: national
    right: amendment_forwarding
meetings:
  - id: national-congress
    group: national
    startsAt: 2099-05-01T10:00:00Z
`

func TestRunPlan(t *testing.T) {
	fed, err := federation.NewFederationConfigFromReader(strings.NewReader(planFederation))
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, runPlan(&buf, fed, 0, "local", "national"))
	assert.Equal(t, "0\tregion\t-\n1\tnational\tnational-congress\n", buf.String())
}

func TestRunPlanNoPath(t *testing.T) {
	fed, err := federation.NewFederationConfigFromReader(strings.NewReader(planFederation))
	require.NoError(t, err)
	var buf bytes.Buffer
	err = runPlan(&buf, fed, 0, "national", "local")
	require.ErrorIs(t, err, planner.ErrNoPath)
	assert.Empty(t, buf.String())
}
