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
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

// Advance re-evaluates the exit conditions of the amendment's current
// status. It is idempotent: with no intervening vote or submission a second
// call changes nothing.
func (e *Engine) Advance(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		return e.advanceLocked(ctx, a)
	})
}

// advanceLocked takes every step whose condition holds. The caller holds the
// amendment lock and stores the result.
func (e *Engine) advanceLocked(ctx context.Context, a *Amendment) (bool, error) {
	changed := false
	for {
		stepped, err := e.step(ctx, a)
		changed = changed || stepped
		if err != nil || !stepped {
			return changed, err
		}
	}
}

func (e *Engine) step(ctx context.Context, a *Amendment) (bool, error) {
	switch a.Status {
	case types.StatusInternalVoting:
		// internal_voting is only entered with requests to vote on
		if len(e.config.ChangeRequests.List(a.ID)) == 0 {
			return false, fmt.Errorf(
				"%w: %s is in %s without change requests",
				ErrStateMissing,
				a.ID,
				a.Status,
			)
		}
		changed, err := e.resolveRequests(ctx, a)
		if err != nil || len(e.config.ChangeRequests.Open(a.ID)) > 0 {
			return changed, err
		}
		a.Status = types.StatusViewing
		return true, nil
	case types.StatusEventVoting:
		return e.stepEventVoting(ctx, a)
	}
	return false, nil
}

func (e *Engine) stepEventVoting(ctx context.Context, a *Amendment) (bool, error) {
	if a.Path == nil {
		return false, nil
	}
	seg := &a.Path.Segments[a.Path.Current]
	if seg.Session == "" {
		changed, err := e.resolveRequests(ctx, a)
		if err != nil || len(e.config.ChangeRequests.Open(a.ID)) > 0 {
			return changed, err
		}
		id, err := e.config.Voting.Open(voting.OpenRequest{
			Subject: voting.Subject{
				Kind:      voting.SubjectAmendment,
				ID:        string(a.ID),
				Amendment: a.ID,
			},
			Majority: a.Majority,
			Eligible: e.config.Directory.Members(seg.Group),
			EndsAt:   e.deadline(),
		})
		if err != nil {
			return changed, err
		}
		seg.Session = id
		return true, nil
	}
	res, err := e.config.Voting.Tally(seg.Session)
	if err != nil {
		return false, err
	}
	if !res.Final {
		return false, nil
	}
	switch res.Outcome {
	case voting.OutcomeAccept:
		if a.Path.AtFinal() {
			a.Status = types.StatusPassed
			a.CurrentMeeting = ""
			return true, nil
		}
		a.Path.Forward()
		next := a.Path.Segments[a.Path.Current]
		if next.HasMeeting() {
			a.Status = types.StatusEventSuggesting
			a.CurrentMeeting = next.Meeting
		} else {
			a.Status = types.StatusViewing
			a.CurrentMeeting = ""
		}
		return true, nil
	case voting.OutcomeReject:
		a.Status = types.StatusRejected
		a.CurrentMeeting = ""
		return true, nil
	}
	return false, nil
}

// resolveRequests resolves ready change requests and records the text
// changes they made on the amendment
func (e *Engine) resolveRequests(ctx context.Context, a *Amendment) (bool, error) {
	res, err := e.config.ChangeRequests.ResolveReady(ctx, a.ID)
	changed, supportErr := e.textChanged(a, res.Accepted)
	if err != nil {
		e.applyFailed(err)
		return changed, errors.Join(err, supportErr)
	}
	return changed, supportErr
}

// textChanged moves the document reference forward and asks every
// supporting group to reconfirm. Support is reopened before the accepted
// text counts, so effective support never rises on acceptance.
func (e *Engine) textChanged(
	a *Amendment,
	accepted []changerequest.Acceptance,
) (bool, error) {
	var errs []error
	for _, acc := range accepted {
		a.DocumentRef = acc.Content.Ref
		a.DocumentVersion = acc.Content.Version
		if len(a.Supporters) > 0 {
			if _, err := e.config.Support.TextChanged(
				a.ID,
				acc.Request.ID,
				acc.Content.Ref,
				a.Supporters,
			); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return len(accepted) > 0, errors.Join(errs...)
}

func (e *Engine) applyFailed(err error) {
	var applyErr *changerequest.DiffApplyError
	if errors.As(err, &applyErr) {
		e.metrics.applyFailures.Inc()
	}
}

// Sweep completes voting sessions whose end time has passed and advances
// the amendments they belong to. It returns the amendments advanced.
func (e *Engine) Sweep(ctx context.Context) ([]types.AmendmentID, error) {
	e.metrics.sweeps.Inc()
	completed := e.config.Voting.Sweep(e.config.Now())
	var ids []types.AmendmentID
	for _, s := range completed {
		if s.Subject.Amendment == "" {
			continue
		}
		if !slices.Contains(ids, s.Subject.Amendment) {
			ids = append(ids, s.Subject.Amendment)
		}
	}
	var errs []error
	for _, id := range ids {
		if _, err := e.Advance(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return ids, errors.Join(errs...)
}
