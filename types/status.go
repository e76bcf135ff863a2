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

package types

import (
	"errors"
	"fmt"
)

// ErrUnknownStatus is returned when a workflow status string is not part of
// the canonical state machine
var ErrUnknownStatus = errors.New("unknown workflow status")

// Status is the externally visible phase of an amendment
type Status string

const (
	StatusCollaborativeEditing Status = "collaborative_editing"
	StatusInternalSuggesting   Status = "internal_suggesting"
	StatusInternalVoting       Status = "internal_voting"
	StatusViewing              Status = "viewing"
	StatusEventSuggesting      Status = "event_suggesting"
	StatusEventVoting          Status = "event_voting"
	StatusPassed               Status = "passed"
	StatusRejected             Status = "rejected"
	StatusWithdrawn            Status = "withdrawn"
)

var allStatuses = []Status{
	StatusCollaborativeEditing,
	StatusInternalSuggesting,
	StatusInternalVoting,
	StatusViewing,
	StatusEventSuggesting,
	StatusEventVoting,
	StatusPassed,
	StatusRejected,
	StatusWithdrawn,
}

// Statuses returns every canonical status in state machine order
func Statuses() []Status {
	ret := make([]Status, len(allStatuses))
	copy(ret, allStatuses)
	return ret
}

// ParseStatus validates a stored status value. Legacy free-form values
// (Drafting, Under Review, ...) are rejected and must be migrated.
func ParseStatus(s string) (Status, error) {
	for _, status := range allStatuses {
		if string(status) == s {
			return status, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}

// IsTerminal returns true for statuses that permit no further transitions
func (s Status) IsTerminal() bool {
	switch s {
	case StatusPassed, StatusRejected, StatusWithdrawn:
		return true
	default:
		return false
	}
}

// IsEventPhase returns true while the amendment is being handled at a meeting.
// The current meeting reference is set exactly in these phases.
func (s Status) IsEventPhase() bool {
	return s == StatusEventSuggesting || s == StatusEventVoting
}

// AcceptsChangeRequests returns true for the suggesting and voting phases
func (s Status) AcceptsChangeRequests() bool {
	switch s {
	case StatusInternalSuggesting,
		StatusInternalVoting,
		StatusEventSuggesting,
		StatusEventVoting:
		return true
	default:
		return false
	}
}

// IsInternal returns true for the phases handled by the amendment's own
// collaborators before any meeting
func (s Status) IsInternal() bool {
	return s == StatusInternalSuggesting || s == StatusInternalVoting
}

func (s Status) String() string {
	return string(s)
}
