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

// Package changerequest manages the competing diffs proposed against an
// amendment. Requests are resolved strictly in voting order, each either
// immediately or through its own voting session, and later requests are
// rebased across the changes applied before them.
package changerequest

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

// VotingEngine is the part of the voting engine used for change request
// votes
type VotingEngine interface {
	Open(voting.OpenRequest) (types.SessionID, error)
	Tally(types.SessionID) (voting.Resolution, error)
	Void(types.SessionID) error
}

type ManagerConfig struct {
	Documents document.Store
	Voting    VotingEngine
	EventBus  *event.EventBus
	// Store persists every change. Nil keeps requests in memory only.
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
}

type Manager struct {
	config    ManagerConfig
	byID      map[types.ChangeRequestID]*ChangeRequest
	byAmend   map[types.AmendmentID][]*ChangeRequest
	nextOrder map[types.AmendmentID]int
	mu        sync.Mutex
}

// NewManager builds a manager. Call Load before use when a Store is set.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "changerequest")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Manager{
		config:    cfg,
		byID:      make(map[types.ChangeRequestID]*ChangeRequest),
		byAmend:   make(map[types.AmendmentID][]*ChangeRequest),
		nextOrder: make(map[types.AmendmentID]int),
	}
}

// Load restores the requests kept by the store
func (m *Manager) Load() error {
	if m.config.Store == nil {
		return nil
	}
	stored, err := m.config.Store.ChangeRequests()
	if err != nil {
		return fmt.Errorf("load change requests: %w", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range stored {
		cr := c.clone()
		m.byID[cr.ID] = &cr
		m.byAmend[cr.Amendment] = append(m.byAmend[cr.Amendment], &cr)
		if cr.VotingOrder >= m.nextOrder[cr.Amendment] {
			m.nextOrder[cr.Amendment] = cr.VotingOrder + 1
		}
	}
	for _, requests := range m.byAmend {
		slices.SortFunc(requests, func(a, b *ChangeRequest) int {
			return cmp.Compare(a.VotingOrder, b.VotingOrder)
		})
	}
	m.config.Logger.Debug("change requests loaded", "count", len(stored))
	return nil
}

// Submit records a proposed change. The document version at submission is
// kept as the base the diff is rebased from.
func (m *Manager) Submit(ctx context.Context, req SubmitRequest) (ChangeRequest, error) {
	if !req.Phase.AcceptsChangeRequests() {
		return ChangeRequest{}, fmt.Errorf("%w: %s", ErrPhaseClosed, req.Phase)
	}
	if err := req.Diff.Validate(); err != nil {
		return ChangeRequest{}, fmt.Errorf("invalid diff: %w", err)
	}
	switch req.Source {
	case SourceCollaborator, SourceEventParticipant:
	case "":
		req.Source = SourceCollaborator
		if req.Phase.IsEventPhase() {
			req.Source = SourceEventParticipant
		}
	default:
		return ChangeRequest{}, fmt.Errorf("unknown change request source %q", req.Source)
	}
	if req.Threshold == "" {
		req.Threshold = voting.MajoritySimple
	}
	if _, err := voting.ParseMajorityType(string(req.Threshold)); err != nil {
		return ChangeRequest{}, err
	}
	head, err := m.config.Documents.Get(ctx, req.Amendment)
	if err != nil {
		return ChangeRequest{}, fmt.Errorf("read document: %w", err)
	}
	if r := req.Diff.Region; r != nil && r.End > len(head.Text) {
		return ChangeRequest{}, fmt.Errorf(
			"invalid diff: %w: [%d,%d) beyond text length %d",
			document.ErrRegionOutOfRange,
			r.Start,
			r.End,
			len(head.Text),
		)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cr := &ChangeRequest{
		ID:             types.NewChangeRequestID(),
		Amendment:      req.Amendment,
		Proposer:       req.Proposer,
		Diff:           req.Diff.Clone(),
		Source:         req.Source,
		Status:         StatusProposed,
		RequiresVoting: req.RequiresVoting,
		VotingOrder:    m.nextOrder[req.Amendment],
		Threshold:      req.Threshold,
		Phase:          req.Phase,
		BaseVersion:    head.Version,
		SubmittedAt:    m.config.Now(),
	}
	if err := m.save(cr); err != nil {
		return ChangeRequest{}, err
	}
	m.nextOrder[req.Amendment]++
	m.byID[cr.ID] = cr
	m.byAmend[req.Amendment] = append(m.byAmend[req.Amendment], cr)
	m.config.Logger.Debug(
		"change request submitted",
		"amendment", cr.Amendment,
		"change_request", cr.ID,
		"voting_order", cr.VotingOrder,
		"requires_voting", cr.RequiresVoting,
	)
	return cr.clone(), nil
}

// Get returns a change request
func (m *Manager) Get(id types.ChangeRequestID) (ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.byID[id]
	if !ok {
		return ChangeRequest{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	return cr.clone(), nil
}

// List returns every change request of an amendment in voting order
func (m *Manager) List(amendment types.AmendmentID) []ChangeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	ret := make([]ChangeRequest, 0, len(m.byAmend[amendment]))
	for _, cr := range m.byAmend[amendment] {
		ret = append(ret, cr.clone())
	}
	return ret
}

// Open returns the undecided change requests of an amendment in voting order
func (m *Manager) Open(amendment types.AmendmentID) []ChangeRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []ChangeRequest
	for _, cr := range m.byAmend[amendment] {
		if cr.IsOpen() {
			ret = append(ret, cr.clone())
		}
	}
	return ret
}

// NeedsVoting returns true if some open request requires a vote
func (m *Manager) NeedsVoting(amendment types.AmendmentID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.ContainsFunc(m.byAmend[amendment], func(cr *ChangeRequest) bool {
		return cr.IsOpen() && cr.RequiresVoting
	})
}

// OpenVotes opens a session for every proposed request that requires a vote
// and marks it pending. It returns the sessions opened.
func (m *Manager) OpenVotes(
	amendment types.AmendmentID,
	eligible []types.UserID,
	endsAt time.Time,
) ([]types.SessionID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []types.SessionID
	for _, cr := range m.byAmend[amendment] {
		if cr.Status != StatusProposed || !cr.RequiresVoting || cr.Session != "" {
			continue
		}
		id, err := m.config.Voting.Open(voting.OpenRequest{
			Subject: voting.Subject{
				Kind:      voting.SubjectChangeRequest,
				ID:        string(cr.ID),
				Amendment: amendment,
			},
			Majority: cr.Threshold,
			Eligible: eligible,
			EndsAt:   endsAt,
		})
		if err != nil {
			return ret, fmt.Errorf("open vote for change request %s: %w", cr.ID, err)
		}
		cr.Session = id
		cr.Status = StatusPending
		ret = append(ret, id)
		if err := m.save(cr); err != nil {
			return ret, err
		}
	}
	return ret, nil
}

// ResolveReady decides open requests in voting order. A request is
// decidable when it needs no vote or its session has completed; the first
// undecidable request stops the pass. A failed diff application stops the
// pass with a *DiffApplyError and leaves that request open.
func (m *Manager) ResolveReady(
	ctx context.Context,
	amendment types.AmendmentID,
) (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret Resolution
	requests := slices.Clone(m.byAmend[amendment])
	slices.SortFunc(requests, func(a, b *ChangeRequest) int {
		return cmp.Compare(a.VotingOrder, b.VotingOrder)
	})
	for _, cr := range requests {
		if !cr.IsOpen() {
			continue
		}
		if cr.RequiresVoting {
			if cr.Session == "" {
				ret.Blocked = true
				return ret, nil
			}
			res, err := m.config.Voting.Tally(cr.Session)
			if err != nil {
				return ret, fmt.Errorf("tally change request %s: %w", cr.ID, err)
			}
			if !res.Final {
				ret.Blocked = true
				return ret, nil
			}
			if res.Outcome != voting.OutcomeAccept {
				reason := ReasonVoteRejected
				if res.Outcome == voting.OutcomeVoid {
					reason = ReasonVoided
				}
				if err := m.reject(cr, reason); err != nil {
					return ret, err
				}
				ret.Rejected = append(ret.Rejected, cr.clone())
				continue
			}
		}
		acc, rejected, err := m.apply(ctx, cr)
		if err != nil {
			return ret, err
		}
		if rejected {
			ret.Rejected = append(ret.Rejected, cr.clone())
			continue
		}
		ret.Accepted = append(ret.Accepted, acc)
	}
	return ret, nil
}

// RetryApply re-runs the diff application of an accepted request whose
// first attempt failed
func (m *Manager) RetryApply(
	ctx context.Context,
	id types.ChangeRequestID,
) (Resolution, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cr, ok := m.byID[id]
	if !ok {
		return Resolution{}, fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	if !cr.IsOpen() || cr.ApplyError == "" {
		return Resolution{}, fmt.Errorf("%w: %s", ErrNothingToRetry, id)
	}
	acc, rejected, err := m.apply(ctx, cr)
	if err != nil {
		return Resolution{}, err
	}
	if rejected {
		return Resolution{Rejected: []ChangeRequest{cr.clone()}}, nil
	}
	return Resolution{Accepted: []Acceptance{acc}}, nil
}

// apply rebases and writes the request's diff. A diff that no longer fits
// the text is rejected instead of retried. The caller holds m.mu.
func (m *Manager) apply(
	ctx context.Context,
	cr *ChangeRequest,
) (Acceptance, bool, error) {
	history, err := m.config.Documents.History(ctx, cr.Amendment, cr.BaseVersion)
	if err != nil {
		return Acceptance{}, false, m.applyFailed(cr, err)
	}
	rebased, err := cr.Diff.Rebase(history)
	if err != nil {
		if errors.Is(err, document.ErrOverlap) {
			return Acceptance{}, true, m.reject(cr, ReasonSuperseded)
		}
		return Acceptance{}, false, m.applyFailed(cr, err)
	}
	content, err := m.config.Documents.ApplyDiff(ctx, cr.Amendment, rebased)
	if err != nil {
		if errors.Is(err, document.ErrRegionOutOfRange) {
			cr.ApplyError = err.Error()
			return Acceptance{}, true, m.reject(cr, ReasonInvalid)
		}
		return Acceptance{}, false, m.applyFailed(cr, err)
	}
	cr.Status = StatusAccepted
	cr.ApplyError = ""
	cr.ResultRef = content.Ref
	cr.ResolvedAt = m.config.Now()
	if err := m.save(cr); err != nil {
		return Acceptance{}, false, err
	}
	m.config.Logger.Info(
		"change request accepted",
		"amendment", cr.Amendment,
		"change_request", cr.ID,
		"version", content.Version,
	)
	if m.config.EventBus != nil {
		m.config.EventBus.Publish(
			TextChangedEventType,
			event.NewEvent(TextChangedEventType, TextChangedEvent{
				Amendment:     cr.Amendment,
				ChangeRequest: cr.ID,
				SnapshotRef:   content.Ref,
				Version:       content.Version,
			}),
		)
	}
	return Acceptance{Request: cr.clone(), Content: content}, false, nil
}

// applyFailed records a retryable failure. The status is left alone so a
// request that never needed a vote does not look voted on.
func (m *Manager) applyFailed(cr *ChangeRequest, err error) error {
	cr.ApplyError = err.Error()
	m.config.Logger.Warn(
		"change request diff application failed",
		"amendment", cr.Amendment,
		"change_request", cr.ID,
		"error", err,
	)
	return errors.Join(
		&DiffApplyError{
			Amendment: cr.Amendment,
			Request:   cr.ID,
			Err:       err,
		},
		m.save(cr),
	)
}

func (m *Manager) reject(cr *ChangeRequest, reason Reason) error {
	cr.Status = StatusRejected
	cr.Reason = reason
	cr.ResolvedAt = m.config.Now()
	m.config.Logger.Info(
		"change request rejected",
		"amendment", cr.Amendment,
		"change_request", cr.ID,
		"reason", reason,
	)
	return m.save(cr)
}

func (m *Manager) save(cr *ChangeRequest) error {
	if m.config.Store == nil {
		return nil
	}
	if err := m.config.Store.SaveChangeRequest(cr.clone()); err != nil {
		return fmt.Errorf("persist change request %s: %w", cr.ID, err)
	}
	return nil
}

// WithdrawAll rejects every open request of an amendment and voids their
// sessions
func (m *Manager) WithdrawAll(amendment types.AmendmentID) ([]ChangeRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ret []ChangeRequest
	var errs []error
	for _, cr := range m.byAmend[amendment] {
		if !cr.IsOpen() {
			continue
		}
		if cr.Session != "" {
			if err := m.config.Voting.Void(cr.Session); err != nil {
				errs = append(errs, err)
			}
		}
		if err := m.reject(cr, ReasonWithdrawn); err != nil {
			errs = append(errs, err)
		}
		ret = append(ret, cr.clone())
	}
	return ret, errors.Join(errs...)
}
