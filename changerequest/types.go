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

package changerequest

import (
	"errors"
	"fmt"
	"time"

	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

const TextChangedEventType event.EventType = "changerequest.text_changed"

var (
	ErrPhaseClosed     = errors.New("amendment phase does not accept change requests")
	ErrRequestNotFound = errors.New("change request not found")
	ErrNothingToRetry  = errors.New("change request has no failed diff application")
)

type Status string

const (
	StatusProposed Status = "proposed"
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Source tells who proposed a change
type Source string

const (
	SourceCollaborator     Source = "collaborator"
	SourceEventParticipant Source = "event_participant"
)

// Reason explains a rejection. It is informational and not an error.
type Reason string

const (
	ReasonSuperseded   Reason = "superseded"
	ReasonVoteRejected Reason = "vote_rejected"
	ReasonVoided       Reason = "voided"
	ReasonWithdrawn    Reason = "withdrawn"
	// ReasonInvalid marks a diff whose region lies outside the text
	ReasonInvalid Reason = "invalid"
)

// Store persists change requests. SaveChangeRequest is called with the
// manager lock held after every change and must not call back into it.
type Store interface {
	SaveChangeRequest(ChangeRequest) error
	// ChangeRequests returns every stored request
	ChangeRequests() ([]ChangeRequest, error)
}

type ChangeRequest struct {
	ID             types.ChangeRequestID `json:"id"`
	Amendment      types.AmendmentID     `json:"amendment"`
	Proposer       types.UserID          `json:"proposer,omitempty"`
	Diff           document.Diff         `json:"diff"`
	Source         Source                `json:"source"`
	Status         Status                `json:"status"`
	Reason         Reason                `json:"reason,omitempty"`
	RequiresVoting bool                  `json:"requiresVoting"`
	VotingOrder    int                   `json:"votingOrder"`
	Threshold      voting.MajorityType   `json:"threshold"`
	Phase          types.Status          `json:"phase"`
	BaseVersion    int                   `json:"baseVersion"`
	Session        types.SessionID       `json:"session,omitempty"`
	ApplyError     string                `json:"applyError,omitempty"`
	ResultRef      string                `json:"resultRef,omitempty"`
	SubmittedAt    time.Time             `json:"submittedAt"`
	ResolvedAt     time.Time             `json:"resolvedAt,omitzero"`
}

// IsOpen returns true until the request is accepted or rejected
func (c ChangeRequest) IsOpen() bool {
	return c.Status == StatusProposed || c.Status == StatusPending
}

func (c ChangeRequest) clone() ChangeRequest {
	c.Diff = c.Diff.Clone()
	return c
}

// SubmitRequest carries the input of Submit
type SubmitRequest struct {
	Amendment      types.AmendmentID
	Phase          types.Status
	Diff           document.Diff
	Source         Source
	Proposer       types.UserID
	RequiresVoting bool
	Threshold      voting.MajorityType
}

// TextChangedEvent is published for every accepted change request
type TextChangedEvent struct {
	Amendment     types.AmendmentID
	ChangeRequest types.ChangeRequestID
	SnapshotRef   string
	Version       int
}

// Acceptance is an applied change request and the content it produced
type Acceptance struct {
	Request ChangeRequest
	Content document.Content
}

// Resolution reports one pass of ResolveReady
type Resolution struct {
	Accepted []Acceptance
	Rejected []ChangeRequest
	// Blocked is true when an undecided request stops resolution
	Blocked bool
}

// DiffApplyError reports that an accepted change could not be written to the
// document. The vote result is kept and the apply can be retried.
type DiffApplyError struct {
	Amendment types.AmendmentID
	Request   types.ChangeRequestID
	Err       error
}

func (e *DiffApplyError) Error() string {
	return fmt.Sprintf(
		"apply change request %s to amendment %s: %s",
		e.Request,
		e.Amendment,
		e.Err,
	)
}

func (e *DiffApplyError) Unwrap() error {
	return e.Err
}
