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
	"context"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/meeting"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
)

// WorkflowEngine is the set of workflow operations served over HTTP. It is
// satisfied by *workflow.Engine.
type WorkflowEngine interface {
	CreateAmendment(ctx context.Context, req workflow.CreateRequest) (*workflow.Amendment, error)
	Amendment(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	Status(ctx context.Context, id types.AmendmentID) (workflow.StatusReport, error)
	SetTarget(
		ctx context.Context,
		id types.AmendmentID,
		target types.GroupID,
		targetMeeting types.MeetingID,
	) (*workflow.Amendment, error)
	AddSupporter(ctx context.Context, id types.AmendmentID, group types.GroupID) (*workflow.Amendment, error)
	OpenSuggestions(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	CloseSuggestions(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	SubmitChangeRequest(
		ctx context.Context,
		id types.AmendmentID,
		in workflow.ChangeRequestInput,
	) (changerequest.ChangeRequest, error)
	ChangeRequests(id types.AmendmentID) []changerequest.ChangeRequest
	RetryApply(ctx context.Context, id types.AmendmentID, cr types.ChangeRequestID) (*workflow.Amendment, error)
	OpenEventVoting(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	CastVote(
		ctx context.Context,
		id types.AmendmentID,
		session types.SessionID,
		voter types.UserID,
		ballot voting.Ballot,
	) error
	Advance(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	Withdraw(ctx context.Context, id types.AmendmentID) (*workflow.Amendment, error)
	Clone(ctx context.Context, id types.AmendmentID, title string) (*workflow.Amendment, error)
	ConfirmSupport(ctx context.Context, id types.ConfirmationID, snapshotRef string) (support.Confirmation, error)
	DeclineSupport(ctx context.Context, id types.ConfirmationID, snapshotRef string) (support.Confirmation, error)
	ScheduleMeeting(ctx context.Context, m meeting.Meeting) ([]types.AmendmentID, error)
	ActivateMeeting(ctx context.Context, id types.MeetingID) ([]types.AmendmentID, error)
	Session(id types.SessionID) (voting.Session, error)
	Planner() *planner.Planner
}
