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

// Package types holds the identifiers and the canonical workflow status enum
// shared by the amendment engine packages.
package types

import "github.com/google/uuid"

type (
	GroupID         string
	UserID          string
	AmendmentID     string
	MeetingID       string
	ChangeRequestID string
	SessionID       string
	ConfirmationID  string
)

// NewAmendmentID returns a random amendment identifier
func NewAmendmentID() AmendmentID {
	return AmendmentID(uuid.NewString())
}

// NewChangeRequestID returns a random change request identifier
func NewChangeRequestID() ChangeRequestID {
	return ChangeRequestID(uuid.NewString())
}

// NewSessionID returns a random voting session identifier
func NewSessionID() SessionID {
	return SessionID(uuid.NewString())
}

// NewConfirmationID returns a random support confirmation identifier
func NewConfirmationID() ConfirmationID {
	return ConfirmationID(uuid.NewString())
}
