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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/internal/version"
	"github.com/civicweave/ratify/meeting"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
)

// maxRequestBody bounds decoded request bodies
const maxRequestBody = 1 << 20

// errBadRequest marks request decoding failures
var errBadRequest = errors.New("bad request")

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	//nolint:errcheck,errchkjson
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{
		StatusCode: status,
		Error:      http.StatusText(status),
		Message:    message,
	})
}

// statusFor maps engine errors to HTTP status codes
func statusFor(err error) int {
	var applyErr *changerequest.DiffApplyError
	switch {
	case errors.Is(err, errBadRequest),
		errors.Is(err, voting.ErrInvalidBallot),
		errors.Is(err, voting.ErrInvalidSessionSpec),
		errors.Is(err, rights.ErrUnknownGroup),
		errors.Is(err, meeting.ErrInvalidMeeting),
		errors.Is(err, document.ErrRegionOutOfRange),
		errors.Is(err, document.ErrOverlap):
		return http.StatusBadRequest
	case errors.Is(err, voting.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, workflow.ErrAmendmentNotFound),
		errors.Is(err, voting.ErrSessionNotFound),
		errors.Is(err, support.ErrConfirmationNotFound),
		errors.Is(err, changerequest.ErrRequestNotFound),
		errors.Is(err, meeting.ErrMeetingNotFound),
		errors.Is(err, document.ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, workflow.ErrInvalidTransition),
		errors.Is(err, workflow.ErrVersionConflict),
		errors.Is(err, workflow.ErrAmendmentExists),
		errors.Is(err, voting.ErrSessionClosed),
		errors.Is(err, voting.ErrDuplicateVote),
		errors.Is(err, support.ErrStaleConfirmation),
		errors.Is(err, support.ErrAlreadyResolved),
		errors.Is(err, changerequest.ErrPhaseClosed),
		errors.Is(err, changerequest.ErrNothingToRetry):
		return http.StatusConflict
	case errors.Is(err, planner.ErrNoPath):
		return http.StatusUnprocessableEntity
	case errors.As(err, &applyErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(
			"request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
	} else {
		s.logger.Debug(
			"request rejected",
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"error", err,
		)
	}
	writeError(w, status, err.Error())
}

func decode(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: %w", errBadRequest, err)
	}
	return nil
}

func amendmentID(r *http.Request) types.AmendmentID {
	return types.AmendmentID(r.PathValue("id"))
}

// respond writes the result of an engine call
func respond[T any](s *Server, w http.ResponseWriter, r *http.Request, v T, err error) {
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		IsHealthy: true,
		Version:   version.GetVersionString(),
	})
}

func (s *Server) handleCreateAmendment(w http.ResponseWriter, r *http.Request) {
	var req CreateAmendmentRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.engine.CreateAmendment(r.Context(), workflow.CreateRequest{
		Title:         req.Title,
		Text:          req.Text,
		Properties:    req.Properties,
		Origin:        req.Origin,
		Collaborators: req.Collaborators,
		Supporters:    req.Supporters,
		Majority:      req.Majority,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleGetAmendment(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Amendment(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Status(r.Context(), amendmentID(r))
	respond(s, w, r, report, err)
}

func (s *Server) handleSetTarget(w http.ResponseWriter, r *http.Request) {
	var req TargetRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.engine.SetTarget(r.Context(), amendmentID(r), req.Target, req.Meeting)
	respond(s, w, r, a, err)
}

func (s *Server) handleAddSupporter(w http.ResponseWriter, r *http.Request) {
	var req SupporterRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	a, err := s.engine.AddSupporter(r.Context(), amendmentID(r), req.Group)
	respond(s, w, r, a, err)
}

func (s *Server) handleOpenSuggestions(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.OpenSuggestions(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleCloseSuggestions(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.CloseSuggestions(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleListChangeRequests(w http.ResponseWriter, r *http.Request) {
	id := amendmentID(r)
	if _, err := s.engine.Amendment(r.Context(), id); err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s.engine.ChangeRequests(id))
}

func (s *Server) handleSubmitChangeRequest(w http.ResponseWriter, r *http.Request) {
	var req ChangeRequestRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	cr, err := s.engine.SubmitChangeRequest(r.Context(), amendmentID(r), workflow.ChangeRequestInput{
		Diff:           req.Diff,
		Source:         changerequest.Source(req.Source),
		Proposer:       req.Proposer,
		RequiresVoting: req.RequiresVoting,
		Threshold:      req.Threshold,
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cr)
}

func (s *Server) handleRetryApply(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.RetryApply(
		r.Context(),
		amendmentID(r),
		types.ChangeRequestID(r.PathValue("cr")),
	)
	respond(s, w, r, a, err)
}

func (s *Server) handleOpenEventVoting(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.OpenEventVoting(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleCastVote(w http.ResponseWriter, r *http.Request) {
	var req VoteRequest
	if err := decode(w, r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	id := amendmentID(r)
	if err := s.engine.CastVote(r.Context(), id, req.Session, req.Voter, req.Ballot); err != nil {
		s.fail(w, r, err)
		return
	}
	report, err := s.engine.Status(r.Context(), id)
	respond(s, w, r, report, err)
}

func (s *Server) handleAdvance(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Advance(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	a, err := s.engine.Withdraw(r.Context(), amendmentID(r))
	respond(s, w, r, a, err)
}

func (s *Server) handleClone(w http.ResponseWriter, r *http.Request) {
	var req CloneRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	a, err := s.engine.Clone(r.Context(), amendmentID(r), req.Title)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.resolveConfirmation(w, r, s.engine.ConfirmSupport)
}

func (s *Server) handleDecline(w http.ResponseWriter, r *http.Request) {
	s.resolveConfirmation(w, r, s.engine.DeclineSupport)
}

func (s *Server) resolveConfirmation(
	w http.ResponseWriter,
	r *http.Request,
	resolve func(ctx context.Context, id types.ConfirmationID, snapshotRef string) (support.Confirmation, error),
) {
	var req ConfirmationRequest
	if r.ContentLength != 0 {
		if err := decode(w, r, &req); err != nil {
			s.fail(w, r, err)
			return
		}
	}
	conf, err := resolve(r.Context(), types.ConfirmationID(r.PathValue("id")), req.SnapshotRef)
	respond(s, w, r, conf, err)
}

func (s *Server) handleScheduleMeeting(w http.ResponseWriter, r *http.Request) {
	var m meeting.Meeting
	if err := decode(w, r, &m); err != nil {
		s.fail(w, r, err)
		return
	}
	ids, err := s.engine.ScheduleMeeting(r.Context(), m)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, AmendmentsResponse{Amendments: nonNil(ids)})
}

func (s *Server) handleActivateMeeting(w http.ResponseWriter, r *http.Request) {
	ids, err := s.engine.ActivateMeeting(r.Context(), types.MeetingID(r.PathValue("id")))
	respond(s, w, r, AmendmentsResponse{Amendments: nonNil(ids)}, err)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.engine.Session(types.SessionID(r.PathValue("id")))
	respond(s, w, r, session, err)
}

func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	from := types.GroupID(r.URL.Query().Get("from"))
	to := types.GroupID(r.URL.Query().Get("to"))
	if from == "" || to == "" {
		writeError(w, http.StatusBadRequest, "from and to are required")
		return
	}
	path, err := s.engine.Planner().Plan(from, to)
	respond(s, w, r, path, err)
}

func nonNil(ids []types.AmendmentID) []types.AmendmentID {
	if ids == nil {
		return []types.AmendmentID{}
	}
	return ids
}
