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

package voting

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/civicweave/ratify/types"
)

var (
	ErrNotEligible        = errors.New("voter not eligible")
	ErrDuplicateVote      = errors.New("voter has already voted")
	ErrSessionClosed      = errors.New("voting session is not active")
	ErrSessionNotFound    = errors.New("voting session not found")
	ErrInvalidBallot      = errors.New("invalid ballot")
	ErrInvalidSessionSpec = errors.New("invalid voting session")
)

// MajorityType is the quorum rule applied when tallying
type MajorityType string

const (
	MajoritySimple    MajorityType = "simple"
	MajorityAbsolute  MajorityType = "absolute"
	MajorityTwoThirds MajorityType = "two_thirds"
)

// ParseMajorityType validates a majority type string
func ParseMajorityType(s string) (MajorityType, error) {
	m := MajorityType(s)
	switch m {
	case MajoritySimple, MajorityAbsolute, MajorityTwoThirds:
		return m, nil
	}
	return "", fmt.Errorf("unknown majority type %q", s)
}

// Cardinality is the number of choices a ballot may carry
type Cardinality string

const (
	CardinalitySingle   Cardinality = "single"
	CardinalityMultiple Cardinality = "multiple"
)

type SessionStatus string

const (
	SessionPending   SessionStatus = "pending"
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

// SubjectKind tags what a session decides on
type SubjectKind string

const (
	SubjectAmendment     SubjectKind = "amendment"
	SubjectChangeRequest SubjectKind = "change_request"
	SubjectElection      SubjectKind = "election"
)

// Subject is the tagged reference to the thing being voted on
type Subject struct {
	Kind SubjectKind `json:"kind"`
	ID   string      `json:"id"`
	// Amendment is the owning amendment, if any, so completion can be routed
	// back to its workflow
	Amendment types.AmendmentID `json:"amendment,omitempty"`
}

type Choice string

const (
	ChoiceAccept  Choice = "accept"
	ChoiceReject  Choice = "reject"
	ChoiceAbstain Choice = "abstain"
)

// Ballot is a single voter's input. Single choice sessions use Choice;
// multiple choice sessions use Candidates, or Choice abstain.
type Ballot struct {
	Choice     Choice   `json:"choice,omitempty"`
	Candidates []string `json:"candidates,omitempty"`
}

// Vote is a recorded ballot
type Vote struct {
	Session types.SessionID `json:"session"`
	Voter   types.UserID    `json:"voter"`
	Ballot  Ballot          `json:"ballot"`
	CastAt  time.Time       `json:"castAt"`
}

type Outcome string

const (
	OutcomeAccept Outcome = "accept"
	OutcomeReject Outcome = "reject"
	OutcomeVoid   Outcome = "void"
)

// Resolution is the result of tallying a session. Final is false for a
// preview of a session that has not completed.
type Resolution struct {
	Outcome  Outcome        `json:"outcome"`
	Final    bool           `json:"final"`
	Accept   int            `json:"accept"`
	Reject   int            `json:"reject"`
	Abstain  int            `json:"abstain"`
	Cast     int            `json:"cast"`
	Eligible int            `json:"eligible"`
	Counts   map[string]int `json:"counts,omitempty"`
	Winners  []string       `json:"winners,omitempty"`
}

// Accepted returns true for a final accept resolution
func (r Resolution) Accepted() bool {
	return r.Final && r.Outcome == OutcomeAccept
}

// OpenRequest describes a session to open
type OpenRequest struct {
	Subject       Subject
	Majority      MajorityType
	Cardinality   Cardinality
	Eligible      []types.UserID
	Candidates    []string
	MaxSelections int
	StartsAt      time.Time
	EndsAt        time.Time
}

func (r *OpenRequest) validate() error {
	if r.Subject.Kind == "" || r.Subject.ID == "" {
		return fmt.Errorf("%w: subject required", ErrInvalidSessionSpec)
	}
	if _, err := ParseMajorityType(string(r.Majority)); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSessionSpec, err)
	}
	if r.Cardinality == "" {
		r.Cardinality = CardinalitySingle
	}
	switch r.Cardinality {
	case CardinalitySingle:
	case CardinalityMultiple:
		if len(r.Candidates) == 0 {
			return fmt.Errorf("%w: multiple choice without candidates", ErrInvalidSessionSpec)
		}
		if r.MaxSelections <= 0 || r.MaxSelections > len(r.Candidates) {
			r.MaxSelections = len(r.Candidates)
		}
	default:
		return fmt.Errorf("%w: unknown cardinality %q", ErrInvalidSessionSpec, r.Cardinality)
	}
	if !r.EndsAt.IsZero() && !r.StartsAt.IsZero() && !r.EndsAt.After(r.StartsAt) {
		return fmt.Errorf("%w: session ends before it starts", ErrInvalidSessionSpec)
	}
	return nil
}

// Session is a point-in-time copy of a voting session
type Session struct {
	ID            types.SessionID `json:"id"`
	Subject       Subject         `json:"subject"`
	Majority      MajorityType    `json:"majority"`
	Cardinality   Cardinality     `json:"cardinality"`
	Candidates    []string        `json:"candidates,omitempty"`
	MaxSelections int             `json:"maxSelections,omitempty"`
	Eligible      []types.UserID  `json:"eligible"`
	StartsAt      time.Time       `json:"startsAt"`
	EndsAt        time.Time       `json:"endsAt,omitzero"`
	Status        SessionStatus   `json:"status"`
	Version       uint64          `json:"version"`
	Votes         []Vote          `json:"votes"`
	Resolution    *Resolution     `json:"resolution,omitempty"`
}

// HasVoted returns true if the voter has a recorded ballot
func (s Session) HasVoted(voter types.UserID) bool {
	return slices.ContainsFunc(s.Votes, func(v Vote) bool {
		return v.Voter == voter
	})
}
