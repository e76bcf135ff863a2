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

package api

import (
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	StatusCode int    `json:"status_code"`
	Error      string `json:"error"`
	Message    string `json:"message"`
}

// HealthResponse is returned by GET /health
type HealthResponse struct {
	IsHealthy bool   `json:"is_healthy"`
	Version   string `json:"version"`
}

type CreateAmendmentRequest struct {
	Title         string              `json:"title"`
	Text          string              `json:"text"`
	Properties    map[string]string   `json:"properties,omitempty"`
	Origin        types.GroupID       `json:"origin"`
	Collaborators []types.UserID      `json:"collaborators"`
	Supporters    []types.GroupID     `json:"supporters,omitempty"`
	Majority      voting.MajorityType `json:"majority,omitempty"`
}

type TargetRequest struct {
	Target  types.GroupID   `json:"target"`
	Meeting types.MeetingID `json:"meeting,omitempty"`
}

type SupporterRequest struct {
	Group types.GroupID `json:"group"`
}

type ChangeRequestRequest struct {
	Diff           document.Diff       `json:"diff"`
	Source         string              `json:"source,omitempty"`
	Proposer       types.UserID        `json:"proposer,omitempty"`
	RequiresVoting bool                `json:"requiresVoting"`
	Threshold      voting.MajorityType `json:"threshold,omitempty"`
}

type VoteRequest struct {
	Session types.SessionID `json:"session"`
	Voter   types.UserID    `json:"voter"`
	Ballot  voting.Ballot   `json:"ballot"`
}

type CloneRequest struct {
	Title string `json:"title,omitempty"`
}

type ConfirmationRequest struct {
	SnapshotRef string `json:"snapshotRef,omitempty"`
}

// AmendmentsResponse lists the amendments an operation affected
type AmendmentsResponse struct {
	Amendments []types.AmendmentID `json:"amendments"`
}
