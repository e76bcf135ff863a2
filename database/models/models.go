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

package models

import "time"

// MigrateModels contains a list of model objects that should have DB migrations applied
var MigrateModels = []any{
	&Amendment{},
	&AmendmentSegment{},
	&AmendmentSupporter{},
	&AmendmentCollaborator{},
	&Vote{},
	&ChangeRequest{},
	&VotingSession{},
	&SupportConfirmation{},
}

// Amendment is the stored row of an amendment aggregate. Version is the
// compare-and-swap counter; PathCurrent is -1 while no path is planned.
type Amendment struct {
	ID              string `gorm:"primarykey;size:36"`
	Title           string `gorm:"not null"`
	DocumentRef     string `gorm:"size:64"`
	DocumentVersion int    `gorm:"not null"`
	Status          string `gorm:"size:32;index;not null"`
	CurrentMeeting  string
	Origin          string `gorm:"index;not null"`
	Target          string
	TargetMeeting   string
	Majority        string `gorm:"size:16;not null"`
	PathCurrent     int    `gorm:"not null"`
	ClonedFrom      string `gorm:"size:36"`
	Version         uint64 `gorm:"not null"`
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Amendment) TableName() string {
	return "amendment"
}

// AmendmentSegment is one hop of an amendment's forwarding path
type AmendmentSegment struct {
	ID          uint   `gorm:"primarykey"`
	AmendmentID string `gorm:"uniqueIndex:idx_segment_amendment_position,priority:1;size:36;not null"`
	Position    int    `gorm:"uniqueIndex:idx_segment_amendment_position,priority:2;not null"`
	GroupID     string `gorm:"not null"`
	MeetingID   string
	AgendaItem  string
	SessionID   string `gorm:"size:36"`
	Forwarding  string `gorm:"size:32;not null"`
}

func (AmendmentSegment) TableName() string {
	return "amendment_segment"
}

// AmendmentSupporter records a supporting group. Position keeps the order
// groups were added in.
type AmendmentSupporter struct {
	ID          uint   `gorm:"primarykey"`
	AmendmentID string `gorm:"uniqueIndex:idx_supporter_amendment_group,priority:1;size:36;not null"`
	GroupID     string `gorm:"uniqueIndex:idx_supporter_amendment_group,priority:2;not null"`
	Position    int    `gorm:"not null"`
}

func (AmendmentSupporter) TableName() string {
	return "amendment_supporter"
}

type AmendmentCollaborator struct {
	ID          uint   `gorm:"primarykey"`
	AmendmentID string `gorm:"uniqueIndex:idx_collaborator_amendment_user,priority:1;size:36;not null"`
	UserID      string `gorm:"uniqueIndex:idx_collaborator_amendment_user,priority:2;not null"`
	Position    int    `gorm:"not null"`
}

func (AmendmentCollaborator) TableName() string {
	return "amendment_collaborator"
}

// Vote is a cast ballot. A voter has at most one vote per session.
type Vote struct {
	ID         uint   `gorm:"primarykey"`
	SessionID  string `gorm:"uniqueIndex:idx_vote_session_voter,priority:1;size:36;not null"`
	Voter      string `gorm:"uniqueIndex:idx_vote_session_voter,priority:2;not null"`
	Choice     string `gorm:"size:16"`
	CastAt     time.Time `gorm:"not null"`
	// JSON array of candidate ids
	Candidates []byte
}

func (Vote) TableName() string {
	return "vote"
}

// ChangeRequest is a proposed diff against an amendment. Diff holds the
// JSON encoded document diff.
type ChangeRequest struct {
	ID             string `gorm:"primarykey;size:36"`
	AmendmentID    string `gorm:"index;size:36;not null"`
	Proposer       string
	Diff           []byte `gorm:"not null"`
	Source         string `gorm:"size:32;not null"`
	Status         string `gorm:"size:16;not null"`
	Reason         string `gorm:"size:32"`
	RequiresVoting bool   `gorm:"not null"`
	VotingOrder    int    `gorm:"not null"`
	Threshold      string `gorm:"size:16;not null"`
	Phase          string `gorm:"size:32;not null"`
	BaseVersion    int    `gorm:"not null"`
	SessionID      string `gorm:"size:36"`
	ApplyError     string
	ResultRef      string `gorm:"size:64"`
	SubmittedAt    time.Time `gorm:"not null"`
	ResolvedAt     time.Time
}

func (ChangeRequest) TableName() string {
	return "change_request"
}

// VotingSession is the state of a session other than its votes, which live
// in the vote table. Candidates, Eligible and Resolution are JSON encoded.
type VotingSession struct {
	ID            string `gorm:"primarykey;size:36"`
	SubjectKind   string `gorm:"size:32;not null"`
	SubjectID     string `gorm:"not null"`
	AmendmentID   string `gorm:"index;size:36"`
	Majority      string `gorm:"size:16;not null"`
	Cardinality   string `gorm:"size:16;not null"`
	Candidates    []byte
	MaxSelections int
	Eligible      []byte
	StartsAt      time.Time `gorm:"not null"`
	EndsAt        time.Time
	Status        string `gorm:"size:16;index;not null"`
	Version       uint64 `gorm:"not null"`
	Resolution    []byte
}

func (VotingSession) TableName() string {
	return "voting_session"
}

// SupportConfirmation is a supporting group's pending or resolved
// reconfirmation. ID keeps creation order within a group's history.
type SupportConfirmation struct {
	ID              uint   `gorm:"primarykey"`
	ConfirmationID  string `gorm:"uniqueIndex;size:36;not null"`
	AmendmentID     string `gorm:"index;size:36;not null"`
	GroupID         string `gorm:"not null"`
	ChangeRequestID string `gorm:"size:36"`
	Status          string `gorm:"size:16;not null"`
	SnapshotRef     string `gorm:"size:64"`
	Revision        int    `gorm:"not null"`
	CreatedAt       time.Time
	ResolvedAt      time.Time
}

func (SupportConfirmation) TableName() string {
	return "support_confirmation"
}
