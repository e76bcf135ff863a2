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

// Package workflow is the amendment state machine. It owns the externally
// visible status of every amendment and drives the planner, the change
// request manager, the voting engine and the support coordinator under a
// per-amendment lock.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/meeting"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/prometheus/client_golang/prometheus"
)

// VotingEngine is the voting session engine as used by the workflow
type VotingEngine interface {
	Open(voting.OpenRequest) (types.SessionID, error)
	CastVote(context.Context, types.SessionID, types.UserID, voting.Ballot) error
	Tally(types.SessionID) (voting.Resolution, error)
	Void(types.SessionID) error
	Sweep(time.Time) []voting.Session
	Session(types.SessionID) (voting.Session, error)
}

type EngineConfig struct {
	Store          Store
	Documents      document.Store
	Graph          *rights.Graph
	Calendar       *meeting.Calendar
	Voting         VotingEngine
	ChangeRequests *changerequest.Manager
	Support        *support.Coordinator
	Directory      VoterDirectory
	EventBus       *event.EventBus
	PromRegistry   prometheus.Registerer
	Logger         *slog.Logger
	Now            func() time.Time
	// DefaultMajority applies to full amendment votes when the amendment
	// does not name one
	DefaultMajority voting.MajorityType
	// MinEffectiveSupport is the effective support an amendment needs to
	// enter a meeting
	MinEffectiveSupport int
	// VotingPeriod bounds every session the workflow opens. Zero leaves
	// sessions open until all eligible voters have voted.
	VotingPeriod time.Duration
}

type Engine struct {
	config  EngineConfig
	planner *planner.Planner
	metrics engineMetrics
	locks   map[types.AmendmentID]*sync.Mutex
	locksMu sync.Mutex
}

// NewEngine builds an engine. Collaborators left nil get in-memory defaults
// wired to the same event bus and clock.
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PromRegistry == nil {
		cfg.PromRegistry = prometheus.NewRegistry()
	}
	if cfg.Store == nil {
		cfg.Store = NewMemoryStore()
	}
	if cfg.Documents == nil {
		cfg.Documents = document.NewMemoryStore()
	}
	if cfg.Graph == nil {
		cfg.Graph = rights.NewGraph()
	}
	if cfg.Calendar == nil {
		cfg.Calendar = meeting.NewCalendar()
	}
	if cfg.Directory == nil {
		cfg.Directory = NewStaticDirectory()
	}
	if cfg.Voting == nil {
		cfg.Voting = voting.NewEngine(voting.EngineConfig{
			EventBus:     cfg.EventBus,
			PromRegistry: cfg.PromRegistry,
			Logger:       cfg.Logger,
			Now:          cfg.Now,
		})
	}
	if cfg.ChangeRequests == nil {
		cfg.ChangeRequests = changerequest.NewManager(changerequest.ManagerConfig{
			Documents: cfg.Documents,
			Voting:    cfg.Voting,
			EventBus:  cfg.EventBus,
			Logger:    cfg.Logger,
			Now:       cfg.Now,
		})
	}
	if cfg.Support == nil {
		cfg.Support = support.NewCoordinator(support.CoordinatorConfig{
			Logger: cfg.Logger,
			Now:    cfg.Now,
		})
	}
	if cfg.DefaultMajority == "" {
		cfg.DefaultMajority = voting.MajoritySimple
	}
	e := &Engine{
		planner: planner.NewPlanner(planner.PlannerConfig{
			Graph:    cfg.Graph,
			Calendar: cfg.Calendar,
			Logger:   cfg.Logger,
			Now:      cfg.Now,
		}),
		locks: make(map[types.AmendmentID]*sync.Mutex),
	}
	cfg.Logger = cfg.Logger.With("component", "workflow")
	e.config = cfg
	e.initMetrics()
	return e
}

// Planner returns the path planner bound to the engine's graph and calendar
func (e *Engine) Planner() *planner.Planner {
	return e.planner
}

func (e *Engine) lock(id types.AmendmentID) func() {
	e.locksMu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.locksMu.Unlock()
	l.Lock()
	return l.Unlock
}

// CreateRequest carries the input of CreateAmendment
type CreateRequest struct {
	Title         string
	Text          string
	Properties    map[string]string
	Origin        types.GroupID
	Collaborators []types.UserID
	Supporters    []types.GroupID
	Majority      voting.MajorityType
}

// CreateAmendment stores the initial document and creates the amendment in
// collaborative_editing
func (e *Engine) CreateAmendment(ctx context.Context, req CreateRequest) (*Amendment, error) {
	if req.Title == "" {
		return nil, errors.New("amendment title is required")
	}
	if _, ok := e.config.Graph.Group(req.Origin); !ok {
		return nil, fmt.Errorf("origin: %w: %s", rights.ErrUnknownGroup, req.Origin)
	}
	for _, g := range req.Supporters {
		if _, ok := e.config.Graph.Group(g); !ok {
			return nil, fmt.Errorf("supporter: %w: %s", rights.ErrUnknownGroup, g)
		}
	}
	if req.Majority == "" {
		req.Majority = e.config.DefaultMajority
	}
	if _, err := voting.ParseMajorityType(string(req.Majority)); err != nil {
		return nil, err
	}
	now := e.config.Now()
	a := &Amendment{
		ID:            types.NewAmendmentID(),
		Title:         req.Title,
		Status:        types.StatusCollaborativeEditing,
		Supporters:    dedupe(req.Supporters),
		Collaborators: dedupe(req.Collaborators),
		Origin:        req.Origin,
		Majority:      req.Majority,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	content, err := e.config.Documents.Create(ctx, a.ID, req.Text, req.Properties)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	a.DocumentRef = content.Ref
	a.DocumentVersion = content.Version
	if err := e.config.Store.Create(ctx, a); err != nil {
		return nil, err
	}
	e.metrics.amendmentsActive.Inc()
	e.config.Logger.Info(
		"amendment created",
		"amendment", a.ID,
		"origin", a.Origin,
	)
	return a.Clone(), nil
}

func dedupe[T comparable](in []T) []T {
	ret := make([]T, 0, len(in))
	for _, v := range in {
		if !slices.Contains(ret, v) {
			ret = append(ret, v)
		}
	}
	return ret
}

// mutate runs fn on a fresh copy of the amendment under its lock and stores
// the result if fn reports a change. Nothing is stored when fn fails.
func (e *Engine) mutate(
	ctx context.Context,
	id types.AmendmentID,
	fn func(a *Amendment) (bool, error),
) (*Amendment, error) {
	unlock := e.lock(id)
	defer unlock()
	return e.mutateLocked(ctx, id, fn)
}

func (e *Engine) mutateLocked(
	ctx context.Context,
	id types.AmendmentID,
	fn func(a *Amendment) (bool, error),
) (*Amendment, error) {
	a, err := e.config.Store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	before := a.Clone()
	changed, fnErr := fn(a)
	if !changed {
		return a, fnErr
	}
	if err := a.CheckInvariants(); err != nil {
		return nil, errors.Join(fnErr, err)
	}
	a.UpdatedAt = e.config.Now()
	if err := e.config.Store.Update(ctx, a); err != nil {
		return nil, errors.Join(fnErr, err)
	}
	if before.Status != a.Status {
		e.transitioned(before, a)
	}
	return a.Clone(), fnErr
}

func (e *Engine) transitioned(before, after *Amendment) {
	e.metrics.transitions.WithLabelValues(string(after.Status)).Inc()
	if after.Status.IsTerminal() {
		e.metrics.amendmentsActive.Dec()
	}
	segment := -1
	if after.Path != nil {
		segment = after.Path.Current
	}
	e.config.Logger.Info(
		"amendment advanced",
		"amendment", after.ID,
		"from", before.Status,
		"to", after.Status,
		"segment", segment,
		"meeting", after.CurrentMeeting,
	)
	if e.config.EventBus != nil {
		e.config.EventBus.Publish(
			AdvancedEventType,
			event.NewEvent(AdvancedEventType, AdvancedEvent{
				Amendment: after.ID,
				From:      before.Status,
				To:        after.Status,
				Segment:   segment,
				Meeting:   after.CurrentMeeting,
			}),
		)
	}
}

// SetTarget plans the forwarding path from the origin group to the target
// group. A target meeting, if given, is bound to the final segment and
// earlier segments only keep meetings that precede it.
func (e *Engine) SetTarget(
	ctx context.Context,
	id types.AmendmentID,
	target types.GroupID,
	targetMeeting types.MeetingID,
) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status.IsEventPhase() || a.Status.IsTerminal() {
			return false, &TransitionError{From: a.Status, Op: "set target"}
		}
		if a.Path != nil && (a.Path.Current > 0 || a.Path.Segments[0].Session != "") {
			return false, &TransitionError{
				From:   a.Status,
				Op:     "set target",
				Reason: "voting has started on the path",
			}
		}
		path, err := e.planner.Plan(a.Origin, target)
		if err != nil {
			return false, err
		}
		if targetMeeting != "" {
			m, err := e.config.Calendar.Get(targetMeeting)
			if err != nil {
				return false, err
			}
			if err := e.planner.BindFinal(path, m); err != nil {
				return false, err
			}
		}
		a.Target = target
		a.TargetMeeting = targetMeeting
		a.Path = path
		return true, nil
	})
}

// AddSupporter adds a group to the supporting set
func (e *Engine) AddSupporter(
	ctx context.Context,
	id types.AmendmentID,
	group types.GroupID,
) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status.IsTerminal() {
			return false, &TransitionError{From: a.Status, Op: "add supporter"}
		}
		if _, ok := e.config.Graph.Group(group); !ok {
			return false, fmt.Errorf("%w: %s", rights.ErrUnknownGroup, group)
		}
		if a.hasSupporter(group) {
			return false, nil
		}
		a.Supporters = append(a.Supporters, group)
		return true, nil
	})
}

// OpenSuggestions starts the internal suggesting phase
func (e *Engine) OpenSuggestions(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status != types.StatusCollaborativeEditing {
			return false, &TransitionError{From: a.Status, Op: "open suggestions"}
		}
		a.Status = types.StatusInternalSuggesting
		return true, nil
	})
}

// CloseSuggestions ends the internal suggesting phase. It moves to
// internal_voting when some change request needs a vote, and straight to
// viewing otherwise.
func (e *Engine) CloseSuggestions(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status != types.StatusInternalSuggesting {
			return false, &TransitionError{From: a.Status, Op: "close suggestions"}
		}
		if e.config.ChangeRequests.NeedsVoting(a.ID) {
			if _, err := e.config.ChangeRequests.OpenVotes(
				a.ID,
				a.Collaborators,
				e.deadline(),
			); err != nil {
				return false, err
			}
			a.Status = types.StatusInternalVoting
			_, err := e.advanceLocked(ctx, a)
			return true, err
		}
		changed, err := e.resolveRequests(ctx, a)
		if err != nil || len(e.config.ChangeRequests.Open(a.ID)) > 0 {
			return changed, err
		}
		a.Status = types.StatusViewing
		return true, nil
	})
}

func (e *Engine) deadline() time.Time {
	if e.config.VotingPeriod <= 0 {
		return time.Time{}
	}
	return e.config.Now().Add(e.config.VotingPeriod)
}

// ChangeRequestInput carries the input of SubmitChangeRequest
type ChangeRequestInput struct {
	Diff           document.Diff
	Source         changerequest.Source
	Proposer       types.UserID
	RequiresVoting bool
	Threshold      voting.MajorityType
}

// SubmitChangeRequest proposes a change in a suggesting or voting phase. In
// a voting phase a request that needs a vote gets its session right away.
func (e *Engine) SubmitChangeRequest(
	ctx context.Context,
	id types.AmendmentID,
	in ChangeRequestInput,
) (changerequest.ChangeRequest, error) {
	unlock := e.lock(id)
	defer unlock()
	a, err := e.config.Store.Get(ctx, id)
	if err != nil {
		return changerequest.ChangeRequest{}, err
	}
	if !a.Status.AcceptsChangeRequests() {
		return changerequest.ChangeRequest{}, &TransitionError{
			From: a.Status,
			Op:   "submit change request",
			Err:  changerequest.ErrPhaseClosed,
		}
	}
	if a.Status == types.StatusEventVoting {
		if seg, ok := a.CurrentSegment(); ok && seg.Session != "" {
			return changerequest.ChangeRequest{}, &TransitionError{
				From:   a.Status,
				Op:     "submit change request",
				Reason: "the amendment vote is in progress",
				Err:    changerequest.ErrPhaseClosed,
			}
		}
	}
	cr, err := e.config.ChangeRequests.Submit(ctx, changerequest.SubmitRequest{
		Amendment:      a.ID,
		Phase:          a.Status,
		Diff:           in.Diff,
		Source:         in.Source,
		Proposer:       in.Proposer,
		RequiresVoting: in.RequiresVoting,
		Threshold:      in.Threshold,
	})
	if err != nil {
		return changerequest.ChangeRequest{}, err
	}
	if cr.RequiresVoting &&
		(a.Status == types.StatusInternalVoting || a.Status == types.StatusEventVoting) {
		if _, err := e.config.ChangeRequests.OpenVotes(
			a.ID,
			e.eligible(a),
			e.deadline(),
		); err != nil {
			return cr, err
		}
		return e.config.ChangeRequests.Get(cr.ID)
	}
	return cr, nil
}

// eligible returns the voters of the amendment's current phase
func (e *Engine) eligible(a *Amendment) []types.UserID {
	if a.Status.IsInternal() {
		return slices.Clone(a.Collaborators)
	}
	seg, ok := a.CurrentSegment()
	if !ok {
		return nil
	}
	return e.config.Directory.Members(seg.Group)
}

// CastVote records a ballot on one of the amendment's sessions and then
// re-evaluates the workflow. A failure to advance does not undo the vote;
// it is logged and reported again by Advance.
func (e *Engine) CastVote(
	ctx context.Context,
	id types.AmendmentID,
	session types.SessionID,
	voter types.UserID,
	ballot voting.Ballot,
) error {
	unlock := e.lock(id)
	defer unlock()
	s, err := e.config.Voting.Session(session)
	if err != nil {
		return err
	}
	if s.Subject.Amendment != id {
		return fmt.Errorf("%w: %s does not belong to amendment %s", voting.ErrSessionNotFound, session, id)
	}
	if err := e.config.Voting.CastVote(ctx, session, voter, ballot); err != nil {
		return err
	}
	if _, err := e.mutateLocked(ctx, id, func(a *Amendment) (bool, error) {
		return e.advanceLocked(ctx, a)
	}); err != nil {
		e.config.Logger.Warn(
			"advance after vote failed",
			"amendment", id,
			"session", session,
			"error", err,
		)
	}
	return nil
}

// ConfirmSupport re-endorses the amendment text on behalf of a supporting
// group
func (e *Engine) ConfirmSupport(
	ctx context.Context,
	id types.ConfirmationID,
	snapshotRef string,
) (support.Confirmation, error) {
	conf, err := e.config.Support.Get(id)
	if err != nil {
		return support.Confirmation{}, err
	}
	unlock := e.lock(conf.Amendment)
	defer unlock()
	return e.config.Support.Confirm(id, snapshotRef)
}

// DeclineSupport withdraws a group's support and removes it from the
// supporting set
func (e *Engine) DeclineSupport(
	ctx context.Context,
	id types.ConfirmationID,
	snapshotRef string,
) (support.Confirmation, error) {
	conf, err := e.config.Support.Get(id)
	if err != nil {
		return support.Confirmation{}, err
	}
	var ret support.Confirmation
	_, err = e.mutate(ctx, conf.Amendment, func(a *Amendment) (bool, error) {
		declined, err := e.config.Support.Decline(id, snapshotRef)
		if err != nil {
			return false, err
		}
		ret = declined
		if !a.hasSupporter(declined.Group) {
			return false, nil
		}
		a.Supporters = slices.DeleteFunc(a.Supporters, func(g types.GroupID) bool {
			return g == declined.Group
		})
		return true, nil
	})
	return ret, err
}

// ActivateMeeting handles a meeting becoming the active context. Every
// amendment in viewing whose current segment is bound to it, is forward
// confirmed and has enough effective support enters event_suggesting.
func (e *Engine) ActivateMeeting(
	ctx context.Context,
	id types.MeetingID,
) ([]types.AmendmentID, error) {
	if _, err := e.config.Calendar.Get(id); err != nil {
		return nil, err
	}
	candidates, err := e.config.Store.List(ctx, types.StatusViewing)
	if err != nil {
		return nil, err
	}
	var ret []types.AmendmentID
	var errs []error
	for _, c := range candidates {
		seg, ok := c.CurrentSegment()
		if !ok || seg.Meeting != id {
			continue
		}
		a, err := e.mutate(ctx, c.ID, func(a *Amendment) (bool, error) {
			seg, ok := a.CurrentSegment()
			if a.Status != types.StatusViewing || !ok || seg.Meeting != id ||
				seg.Forwarding != planner.ForwardConfirmed {
				return false, nil
			}
			if e.config.Support.EffectiveSupportCount(a.ID, a.Supporters) < e.config.MinEffectiveSupport {
				e.config.Logger.Info(
					"amendment lacks effective support for meeting",
					"amendment", a.ID,
					"meeting", id,
				)
				return false, nil
			}
			a.Status = types.StatusEventSuggesting
			a.CurrentMeeting = id
			return true, nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if a.Status == types.StatusEventSuggesting && a.CurrentMeeting == id {
			ret = append(ret, a.ID)
		}
	}
	return ret, errors.Join(errs...)
}

// OpenEventVoting closes suggestions at the current meeting and opens the
// votes on event change requests. The full amendment vote follows once they
// are resolved.
func (e *Engine) OpenEventVoting(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status != types.StatusEventSuggesting {
			return false, &TransitionError{From: a.Status, Op: "open event voting"}
		}
		if a.CurrentMeeting == "" {
			return false, &TransitionError{
				From:   a.Status,
				Op:     "open event voting",
				Reason: "no current meeting",
			}
		}
		a.Status = types.StatusEventVoting
		if _, err := e.config.ChangeRequests.OpenVotes(
			a.ID,
			e.eligible(a),
			e.deadline(),
		); err != nil {
			return false, err
		}
		_, err := e.advanceLocked(ctx, a)
		return true, err
	})
}

// ScheduleMeeting adds a meeting to the calendar and binds it to waiting
// path segments of open amendments. It returns the amendments rebound.
func (e *Engine) ScheduleMeeting(
	ctx context.Context,
	m meeting.Meeting,
) ([]types.AmendmentID, error) {
	if _, ok := e.config.Graph.Group(m.Group); !ok {
		return nil, fmt.Errorf("%w: %s", rights.ErrUnknownGroup, m.Group)
	}
	if err := e.config.Calendar.Add(m); err != nil {
		return nil, err
	}
	all, err := e.config.Store.List(ctx)
	if err != nil {
		return nil, err
	}
	var ret []types.AmendmentID
	var errs []error
	for _, c := range all {
		if c.Status.IsTerminal() || c.Path == nil {
			continue
		}
		rebound := false
		_, err := e.mutate(ctx, c.ID, func(a *Amendment) (bool, error) {
			if a.Status.IsTerminal() || a.Path == nil {
				return false, nil
			}
			rebound = e.planner.Rebind(a.Path)
			return rebound, nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if rebound {
			ret = append(ret, c.ID)
		}
	}
	return ret, errors.Join(errs...)
}

// Withdraw aborts an amendment at any non-terminal status and voids its
// open sessions
func (e *Engine) Withdraw(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		if a.Status.IsTerminal() {
			return false, &TransitionError{From: a.Status, Op: "withdraw"}
		}
		var errs []error
		if _, err := e.config.ChangeRequests.WithdrawAll(a.ID); err != nil {
			errs = append(errs, err)
		}
		if seg, ok := a.CurrentSegment(); ok && seg.Session != "" {
			if err := e.config.Voting.Void(seg.Session); err != nil {
				errs = append(errs, err)
			}
		}
		if err := errors.Join(errs...); err != nil {
			e.config.Logger.Warn("voiding sessions on withdrawal", "amendment", a.ID, "error", err)
		}
		if err := e.config.Support.Reset(a.ID); err != nil {
			e.config.Logger.Warn("dropping support confirmations", "amendment", a.ID, "error", err)
		}
		a.Status = types.StatusWithdrawn
		a.CurrentMeeting = ""
		return true, nil
	})
}

// Clone creates a new amendment in collaborative_editing from an existing
// one. Content, origin, target and collaborators are copied; supporters,
// confirmations and path progress start over.
func (e *Engine) Clone(
	ctx context.Context,
	id types.AmendmentID,
	title string,
) (*Amendment, error) {
	src, content, err := e.cloneSource(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.createClone(ctx, src, content, title)
}

func (e *Engine) cloneSource(
	ctx context.Context,
	id types.AmendmentID,
) (*Amendment, document.Content, error) {
	unlock := e.lock(id)
	defer unlock()
	src, err := e.config.Store.Get(ctx, id)
	if err != nil {
		return nil, document.Content{}, err
	}
	content, err := e.config.Documents.Get(ctx, id)
	if err != nil {
		return nil, document.Content{}, err
	}
	return src, content, nil
}

func (e *Engine) createClone(
	ctx context.Context,
	src *Amendment,
	content document.Content,
	title string,
) (*Amendment, error) {
	if title == "" {
		title = src.Title
	}
	now := e.config.Now()
	a := &Amendment{
		ID:            types.NewAmendmentID(),
		Title:         title,
		Status:        types.StatusCollaborativeEditing,
		Supporters:    []types.GroupID{},
		Collaborators: slices.Clone(src.Collaborators),
		Origin:        src.Origin,
		Target:        src.Target,
		TargetMeeting: src.TargetMeeting,
		Majority:      src.Majority,
		Path:          src.Path.Clone(),
		ClonedFrom:    src.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	a.Path.Reset()
	created, err := e.config.Documents.Create(ctx, a.ID, content.Text, content.Properties)
	if err != nil {
		return nil, fmt.Errorf("create document: %w", err)
	}
	a.DocumentRef = created.Ref
	a.DocumentVersion = created.Version
	if err := e.config.Store.Create(ctx, a); err != nil {
		return nil, err
	}
	e.metrics.amendmentsActive.Inc()
	e.config.Logger.Info("amendment cloned", "amendment", a.ID, "cloned_from", src.ID)
	return a.Clone(), nil
}

// StatusReport is the summary returned by Status
type StatusReport struct {
	Amendment             types.AmendmentID      `json:"amendment"`
	Status                types.Status           `json:"status"`
	CurrentSegment        int                    `json:"currentSegment"`
	Segment               *planner.Segment       `json:"segment,omitempty"`
	CurrentMeeting        types.MeetingID        `json:"currentMeeting,omitempty"`
	EffectiveSupportCount int                    `json:"effectiveSupportCount"`
	PendingConfirmations  []support.Confirmation `json:"pendingConfirmations"`
	Version               uint64                 `json:"version"`
}

// Status summarizes an amendment. CurrentSegment is -1 until a path exists.
func (e *Engine) Status(ctx context.Context, id types.AmendmentID) (StatusReport, error) {
	a, err := e.config.Store.Get(ctx, id)
	if err != nil {
		return StatusReport{}, err
	}
	ret := StatusReport{
		Amendment:             a.ID,
		Status:                a.Status,
		CurrentSegment:        -1,
		CurrentMeeting:        a.CurrentMeeting,
		EffectiveSupportCount: e.config.Support.EffectiveSupportCount(a.ID, a.Supporters),
		PendingConfirmations:  e.config.Support.Pending(a.ID),
		Version:               a.Version,
	}
	if seg, ok := a.CurrentSegment(); ok {
		ret.CurrentSegment = seg.Index
		ret.Segment = &seg
	}
	return ret, nil
}

// Amendment returns a snapshot of the aggregate
func (e *Engine) Amendment(ctx context.Context, id types.AmendmentID) (*Amendment, error) {
	return e.config.Store.Get(ctx, id)
}

// Session returns a snapshot of a voting session, including its live tally
// preview once votes are cast
func (e *Engine) Session(id types.SessionID) (voting.Session, error) {
	return e.config.Voting.Session(id)
}

// Tally returns the current or final resolution of a voting session
func (e *Engine) Tally(id types.SessionID) (voting.Resolution, error) {
	return e.config.Voting.Tally(id)
}

// ChangeRequests lists the change requests of an amendment in voting order
func (e *Engine) ChangeRequests(id types.AmendmentID) []changerequest.ChangeRequest {
	return e.config.ChangeRequests.List(id)
}

// RetryApply retries writing an accepted change request whose diff could
// not be applied, then re-evaluates the workflow
func (e *Engine) RetryApply(
	ctx context.Context,
	id types.AmendmentID,
	cr types.ChangeRequestID,
) (*Amendment, error) {
	return e.mutate(ctx, id, func(a *Amendment) (bool, error) {
		req, err := e.config.ChangeRequests.Get(cr)
		if err != nil {
			return false, err
		}
		if req.Amendment != a.ID {
			return false, fmt.Errorf("%w: %s", changerequest.ErrRequestNotFound, cr)
		}
		res, err := e.config.ChangeRequests.RetryApply(ctx, cr)
		if err != nil {
			e.applyFailed(err)
			return false, err
		}
		changed := e.textChanged(a, res.Accepted)
		advanced, err := e.advanceLocked(ctx, a)
		return changed || advanced, err
	})
}
