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

// Package voting implements the generic voting session engine shared by
// change request votes, full amendment votes and elections.
package voting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/types"
	"github.com/prometheus/client_golang/prometheus"
)

const SessionCompletedEventType event.EventType = "voting.session_completed"

// SessionCompletedEvent is published once per session when it completes
type SessionCompletedEvent struct {
	Session    types.SessionID
	Subject    Subject
	Resolution Resolution
}

type EngineConfig struct {
	Ledger VoteLedger
	// Sessions persists session state. Nil keeps sessions in memory only.
	Sessions     SessionStore
	EventBus     *event.EventBus
	PromRegistry prometheus.Registerer
	Logger       *slog.Logger
	Now          func() time.Time
}

type Engine struct {
	config   EngineConfig
	sessions map[types.SessionID]*session
	// open holds the sessions not yet completed
	open    map[types.SessionID]*session
	metrics engineMetrics
	mu       sync.RWMutex
}

type session struct {
	Session
	eligible map[types.UserID]struct{}
	mu       sync.Mutex
}

func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "voting")
	if cfg.Ledger == nil {
		cfg.Ledger = NewMemoryLedger()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.PromRegistry == nil {
		cfg.PromRegistry = prometheus.NewRegistry()
	}
	e := &Engine{
		config:   cfg,
		sessions: make(map[types.SessionID]*session),
		open:     make(map[types.SessionID]*session),
	}
	e.initMetrics()
	return e
}

// Load restores stored sessions with their votes from the ledger. A session
// whose eligible voters have all voted is completed.
func (e *Engine) Load(ctx context.Context) error {
	if e.config.Sessions == nil {
		return nil
	}
	stored, err := e.config.Sessions.Sessions()
	if err != nil {
		return fmt.Errorf("load sessions: %w", err)
	}
	for _, snap := range stored {
		votes, err := e.config.Ledger.Votes(ctx, snap.ID)
		if err != nil {
			return fmt.Errorf("load votes of session %s: %w", snap.ID, err)
		}
		s := &session{
			Session:  snap,
			eligible: make(map[types.UserID]struct{}, len(snap.Eligible)),
		}
		s.Votes = votes
		for _, voter := range s.Eligible {
			s.eligible[voter] = struct{}{}
		}
		e.mu.Lock()
		e.sessions[s.ID] = s
		if s.Status != SessionCompleted {
			e.open[s.ID] = s
			e.metrics.sessionsOpen.Inc()
		}
		e.mu.Unlock()
		if s.Status == SessionActive && len(s.Eligible) > 0 && len(s.Votes) >= len(s.Eligible) {
			s.mu.Lock()
			evt := e.complete(s, nil)
			s.mu.Unlock()
			e.publish(evt)
		}
	}
	e.config.Logger.Debug("voting sessions loaded", "count", len(stored))
	return nil
}

// Open creates a session. It starts active unless StartsAt lies in the
// future. A session with no eligible voters completes immediately.
func (e *Engine) Open(req OpenRequest) (types.SessionID, error) {
	if err := req.validate(); err != nil {
		return "", err
	}
	now := e.config.Now()
	s := &session{
		Session: Session{
			ID:            types.NewSessionID(),
			Subject:       req.Subject,
			Majority:      req.Majority,
			Cardinality:   req.Cardinality,
			Candidates:    slices.Clone(req.Candidates),
			MaxSelections: req.MaxSelections,
			StartsAt:      req.StartsAt,
			EndsAt:        req.EndsAt,
			Status:        SessionActive,
		},
		eligible: make(map[types.UserID]struct{}, len(req.Eligible)),
	}
	if s.StartsAt.IsZero() {
		s.StartsAt = now
	}
	if s.StartsAt.After(now) {
		s.Status = SessionPending
	}
	for _, voter := range req.Eligible {
		if _, ok := s.eligible[voter]; ok {
			continue
		}
		s.eligible[voter] = struct{}{}
		s.Eligible = append(s.Eligible, voter)
	}
	if e.config.Sessions != nil {
		if err := e.config.Sessions.SaveSession(s.snapshot()); err != nil {
			return "", fmt.Errorf("persist session: %w", err)
		}
	}
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.open[s.ID] = s
	e.mu.Unlock()
	e.metrics.sessionsOpened.Inc()
	e.metrics.sessionsOpen.Inc()
	e.config.Logger.Debug(
		"opened voting session",
		"session", s.ID,
		"subject_kind", s.Subject.Kind,
		"subject", s.Subject.ID,
		"majority", s.Majority,
		"eligible", len(s.Eligible),
	)
	if len(s.Eligible) == 0 && s.Status == SessionActive {
		s.mu.Lock()
		evt := e.complete(s, nil)
		s.mu.Unlock()
		e.publish(evt)
	}
	return s.ID, nil
}

func (e *Engine) lookup(id types.SessionID) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// CastVote records a ballot. Casts on one session are serialized, so of
// several concurrent casts by one voter exactly one is recorded and the rest
// fail with ErrDuplicateVote.
func (e *Engine) CastVote(
	ctx context.Context,
	id types.SessionID,
	voter types.UserID,
	ballot Ballot,
) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	var evt *SessionCompletedEvent
	err = e.castLocked(ctx, s, voter, ballot, &evt)
	s.mu.Unlock()
	if evt != nil {
		e.publish(evt)
	}
	if err != nil {
		e.metrics.votesRejected.WithLabelValues(rejectReason(err)).Inc()
		return err
	}
	e.metrics.votesCast.Inc()
	return nil
}

func (e *Engine) castLocked(
	ctx context.Context,
	s *session,
	voter types.UserID,
	ballot Ballot,
	evt **SessionCompletedEvent,
) error {
	now := e.config.Now()
	e.refreshLocked(s, now, evt)
	if s.Status != SessionActive {
		return fmt.Errorf("%w: %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if _, ok := s.eligible[voter]; !ok {
		return fmt.Errorf("%w: %s in session %s", ErrNotEligible, voter, s.ID)
	}
	if s.HasVoted(voter) {
		return fmt.Errorf("%w: %s in session %s", ErrDuplicateVote, voter, s.ID)
	}
	if err := s.checkBallot(ballot); err != nil {
		return err
	}
	vote := Vote{
		Session: s.ID,
		Voter:   voter,
		Ballot: Ballot{
			Choice:     ballot.Choice,
			Candidates: slices.Clone(ballot.Candidates),
		},
		CastAt: now,
	}
	if err := e.config.Ledger.Record(ctx, vote); err != nil {
		if errors.Is(err, ErrDuplicateVote) {
			return fmt.Errorf("%w: %s in session %s", ErrDuplicateVote, voter, s.ID)
		}
		return fmt.Errorf("record vote: %w", err)
	}
	s.Votes = append(s.Votes, vote)
	s.Version++
	if len(s.Votes) == len(s.Eligible) {
		*evt = e.complete(s, nil)
		return nil
	}
	e.save(s)
	return nil
}

func (s *session) checkBallot(b Ballot) error {
	if s.Cardinality == CardinalityMultiple {
		if b.Choice == ChoiceAbstain {
			if len(b.Candidates) > 0 {
				return fmt.Errorf("%w: abstention with candidates", ErrInvalidBallot)
			}
			return nil
		}
		if b.Choice != "" {
			return fmt.Errorf("%w: choice %q in multiple choice session", ErrInvalidBallot, b.Choice)
		}
		if len(b.Candidates) == 0 || len(b.Candidates) > s.MaxSelections {
			return fmt.Errorf(
				"%w: between 1 and %d candidates required",
				ErrInvalidBallot,
				s.MaxSelections,
			)
		}
		seen := make(map[string]bool, len(b.Candidates))
		for _, c := range b.Candidates {
			if seen[c] || !slices.Contains(s.Candidates, c) {
				return fmt.Errorf("%w: candidate %q", ErrInvalidBallot, c)
			}
			seen[c] = true
		}
		return nil
	}
	if len(b.Candidates) > 0 {
		return fmt.Errorf("%w: candidates in single choice session", ErrInvalidBallot)
	}
	switch b.Choice {
	case ChoiceAccept, ChoiceReject, ChoiceAbstain:
		return nil
	}
	return fmt.Errorf("%w: choice %q", ErrInvalidBallot, b.Choice)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrDuplicateVote):
		return "duplicate"
	case errors.Is(err, ErrSessionClosed):
		return "closed"
	case errors.Is(err, ErrInvalidBallot):
		return "invalid"
	case errors.Is(err, ErrSessionNotFound):
		return "not_found"
	}
	return "error"
}

// Tally returns the final resolution of a completed session, or a
// non-binding preview otherwise. It has no side effects.
func (e *Engine) Tally(id types.SessionID) (Resolution, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Resolution{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolution != nil {
		return cloneResolution(*s.Resolution), nil
	}
	return s.preview(), nil
}

func (s *session) preview() Resolution {
	ballots := make([]Ballot, len(s.Votes))
	for i, v := range s.Votes {
		ballots[i] = v.Ballot
	}
	return tally(
		s.Majority,
		s.Cardinality,
		len(s.Eligible),
		ballots,
		s.Candidates,
		s.MaxSelections,
	)
}

// Void completes an open session with outcome void. Voiding a completed
// session is a no-op.
func (e *Engine) Void(id types.SessionID) error {
	s, err := e.lookup(id)
	if err != nil {
		return err
	}
	s.mu.Lock()
	var evt *SessionCompletedEvent
	if s.Status != SessionCompleted {
		evt = e.complete(s, &Resolution{Outcome: OutcomeVoid})
	}
	s.mu.Unlock()
	e.publish(evt)
	return nil
}

// Sweep activates sessions whose start time has arrived and completes those
// whose end time has passed. Only sessions still open are visited. It
// returns snapshots of the sessions it completed.
func (e *Engine) Sweep(now time.Time) []Session {
	e.mu.RLock()
	open := make([]*session, 0, len(e.open))
	for _, s := range e.open {
		open = append(open, s)
	}
	e.mu.RUnlock()
	var ret []Session
	for _, s := range open {
		var evt *SessionCompletedEvent
		s.mu.Lock()
		e.refreshLocked(s, now, &evt)
		if evt != nil {
			ret = append(ret, s.snapshot())
		}
		s.mu.Unlock()
		e.publish(evt)
	}
	slices.SortFunc(ret, func(a, b Session) int {
		return a.EndsAt.Compare(b.EndsAt)
	})
	return ret
}

func (e *Engine) refreshLocked(
	s *session,
	now time.Time,
	evt **SessionCompletedEvent,
) {
	if s.Status == SessionCompleted {
		return
	}
	if s.Status == SessionPending && !now.Before(s.StartsAt) {
		s.Status = SessionActive
		s.Version++
		defer e.save(s)
	}
	if !s.EndsAt.IsZero() && !now.Before(s.EndsAt) {
		*evt = e.complete(s, nil)
		return
	}
	if s.Status == SessionActive && len(s.Eligible) == 0 {
		*evt = e.complete(s, nil)
	}
}

// complete finalizes the session. The caller holds s.mu and publishes the
// returned event after releasing it.
func (e *Engine) complete(s *session, res *Resolution) *SessionCompletedEvent {
	if res == nil {
		r := s.preview()
		res = &r
	}
	res.Final = true
	s.Resolution = res
	s.Status = SessionCompleted
	s.Version++
	e.mu.Lock()
	delete(e.open, s.ID)
	e.mu.Unlock()
	e.save(s)
	e.metrics.sessionsOpen.Dec()
	e.metrics.sessionsCompleted.WithLabelValues(string(res.Outcome)).Inc()
	e.config.Logger.Info(
		"voting session completed",
		"session", s.ID,
		"subject_kind", s.Subject.Kind,
		"subject", s.Subject.ID,
		"outcome", res.Outcome,
		"accept", res.Accept,
		"reject", res.Reject,
		"cast", res.Cast,
	)
	return &SessionCompletedEvent{
		Session:    s.ID,
		Subject:    s.Subject,
		Resolution: cloneResolution(*res),
	}
}

// save writes the session through to the store. The caller holds s.mu.
// Votes are kept by the ledger, so a failed write is logged and the row is
// rewritten on the next change.
func (e *Engine) save(s *session) {
	if e.config.Sessions == nil {
		return
	}
	if err := e.config.Sessions.SaveSession(s.snapshot()); err != nil {
		e.config.Logger.Error(
			"failed to persist voting session",
			"session", s.ID,
			"status", s.Status,
			"error", err,
		)
	}
}

// OpenCount returns the number of sessions not yet completed
func (e *Engine) OpenCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.open)
}

func (e *Engine) publish(evt *SessionCompletedEvent) {
	if evt == nil || e.config.EventBus == nil {
		return
	}
	e.config.EventBus.Publish(
		SessionCompletedEventType,
		event.NewEvent(SessionCompletedEventType, *evt),
	)
}

// Session returns a snapshot of a session
func (e *Engine) Session(id types.SessionID) (Session, error) {
	s, err := e.lookup(id)
	if err != nil {
		return Session{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

func (s *session) snapshot() Session {
	ret := s.Session
	ret.Candidates = slices.Clone(s.Candidates)
	ret.Eligible = slices.Clone(s.Eligible)
	ret.Votes = make([]Vote, len(s.Votes))
	for i, v := range s.Votes {
		v.Ballot.Candidates = slices.Clone(v.Ballot.Candidates)
		ret.Votes[i] = v
	}
	if s.Resolution != nil {
		r := cloneResolution(*s.Resolution)
		ret.Resolution = &r
	}
	return ret
}

func cloneResolution(r Resolution) Resolution {
	if r.Counts != nil {
		counts := make(map[string]int, len(r.Counts))
		for k, v := range r.Counts {
			counts[k] = v
		}
		r.Counts = counts
	}
	r.Winners = slices.Clone(r.Winners)
	return r
}
