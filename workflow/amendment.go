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
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

const AdvancedEventType event.EventType = "workflow.advanced"

var (
	ErrInvalidTransition = errors.New("invalid transition")
	ErrVersionConflict   = errors.New("amendment was modified concurrently")
	ErrAmendmentNotFound = errors.New("amendment not found")
	ErrAmendmentExists   = errors.New("amendment already exists")
	// ErrStateMissing is returned when an amendment's stored status refers
	// to change requests or sessions that are not loaded
	ErrStateMissing = errors.New("amendment state missing")
)

// TransitionError is returned when an operation is not allowed in the
// amendment's current status. State is left unchanged.
type TransitionError struct {
	From   types.Status
	Op     string
	Reason string
	Err    error
}

func (e *TransitionError) Error() string {
	msg := fmt.Sprintf("invalid transition: cannot %s while %s", e.Op, e.From)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

// AdvancedEvent is published after every status change
type AdvancedEvent struct {
	Amendment types.AmendmentID
	From      types.Status
	To        types.Status
	Segment   int
	Meeting   types.MeetingID
}

// Amendment is the workflow aggregate. Version is the optimistic
// concurrency counter checked by Store.Update.
type Amendment struct {
	ID              types.AmendmentID   `json:"id"`
	Title           string              `json:"title"`
	DocumentRef     string              `json:"documentRef"`
	DocumentVersion int                 `json:"documentVersion"`
	Status          types.Status        `json:"status"`
	CurrentMeeting  types.MeetingID     `json:"currentMeeting,omitempty"`
	Supporters      []types.GroupID     `json:"supporters"`
	Collaborators   []types.UserID      `json:"collaborators"`
	Origin          types.GroupID       `json:"origin"`
	Target          types.GroupID       `json:"target,omitempty"`
	TargetMeeting   types.MeetingID     `json:"targetMeeting,omitempty"`
	Majority        voting.MajorityType `json:"majority"`
	Path            *planner.Path       `json:"path,omitempty"`
	ClonedFrom      types.AmendmentID   `json:"clonedFrom,omitempty"`
	Version         uint64              `json:"version"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy
func (a *Amendment) Clone() *Amendment {
	if a == nil {
		return nil
	}
	ret := *a
	ret.Supporters = slices.Clone(a.Supporters)
	ret.Collaborators = slices.Clone(a.Collaborators)
	ret.Path = a.Path.Clone()
	return &ret
}

// CurrentSegment returns the path segment the amendment sits at
func (a *Amendment) CurrentSegment() (planner.Segment, bool) {
	return a.Path.CurrentSegment()
}

// CheckInvariants verifies the meeting reference rule and the path
// structure
func (a *Amendment) CheckInvariants() error {
	if a.Status.IsEventPhase() != (a.CurrentMeeting != "") {
		return fmt.Errorf(
			"amendment %s: status %s with current meeting %q",
			a.ID,
			a.Status,
			a.CurrentMeeting,
		)
	}
	if a.Path != nil {
		if err := a.Path.Validate(); err != nil {
			return fmt.Errorf("amendment %s: %w", a.ID, err)
		}
	}
	return nil
}

func (a *Amendment) hasSupporter(group types.GroupID) bool {
	return slices.Contains(a.Supporters, group)
}
