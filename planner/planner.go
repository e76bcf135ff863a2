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

// Package planner computes the forwarding path of an amendment through the
// rights graph and binds each hop to the owning group's next meeting.
package planner

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/civicweave/ratify/meeting"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/types"
)

// ErrNoPath is matched by NoPathError
var ErrNoPath = errors.New("no forwarding path")

// NoPathError is returned when the target group cannot be reached from the
// source group over active forwarding edges
type NoPathError struct {
	Source types.GroupID
	Target types.GroupID
}

func (e *NoPathError) Error() string {
	return fmt.Sprintf("no forwarding path from %s to %s", e.Source, e.Target)
}

func (e *NoPathError) Is(target error) bool {
	return target == ErrNoPath
}

// Graph is the subset of the rights graph used for planning
type Graph interface {
	Reachable(source, target types.GroupID) [][]types.GroupID
}

// Calendar is the subset of the meeting calendar used for binding
type Calendar interface {
	NextFor(group types.GroupID, after time.Time) (meeting.Meeting, bool)
}

type PlannerConfig struct {
	Graph    Graph
	Calendar Calendar
	Logger   *slog.Logger
	Now      func() time.Time
}

type Planner struct {
	config PlannerConfig
}

func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "planner")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Calendar == nil {
		cfg.Calendar = meeting.NewCalendar()
	}
	return &Planner{config: cfg}
}

// Plan returns the shortest forwarding path from source to target. Ties are
// broken lexicographically by group id at each hop. The origin group is not a
// segment: each segment is a receiving group, except when source equals
// target, where the single segment is that group.
func (p *Planner) Plan(source, target types.GroupID) (*Path, error) {
	if p.config.Graph == nil {
		return nil, &NoPathError{Source: source, Target: target}
	}
	candidates := p.config.Graph.Reachable(source, target)
	best := shortest(candidates)
	if best == nil {
		p.config.Logger.Debug(
			"no forwarding path",
			"source", source,
			"target", target,
		)
		return nil, &NoPathError{Source: source, Target: target}
	}
	hops := best[1:]
	if source == target {
		hops = best
	}
	path := &Path{
		Segments: make([]Segment, len(hops)),
	}
	for i, group := range hops {
		path.Segments[i] = Segment{
			Index:      i,
			Group:      group,
			Forwarding: PreviousDecisionOutstanding,
		}
	}
	path.Segments[0].Forwarding = ForwardConfirmed
	p.Rebind(path)
	p.config.Logger.Debug(
		"planned forwarding path",
		"source", source,
		"target", target,
		"hops", len(best)-1,
	)
	return path, nil
}

// Rebind binds meetings to segments from the current one onwards that do not
// have one yet. Meetings along a path are kept in chronological order: a
// segment only takes a meeting that starts after the previous segment's
// meeting and before the next bound one, and a later segment whose meeting
// no longer follows its predecessor's is unbound. Returns true if any
// segment changed.
func (p *Planner) Rebind(path *Path) bool {
	if path == nil {
		return false
	}
	changed := false
	after := p.config.Now()
	for i := path.Current; i < len(path.Segments); i++ {
		seg := &path.Segments[i]
		if seg.HasMeeting() {
			start, ok := p.meetingStart(seg)
			if i == path.Current || !ok || start.After(after) {
				if ok && start.After(after) {
					after = start
				}
				continue
			}
			p.config.Logger.Debug(
				"unbinding out of order meeting",
				"segment", i,
				"meeting", seg.Meeting,
			)
			seg.Meeting = ""
			seg.AgendaItem = ""
			changed = true
		}
		m, ok := p.config.Calendar.NextFor(seg.Group, after)
		if !ok {
			continue
		}
		if before, bound := p.nextBound(path, i); bound && !m.StartsAt.Before(before) {
			continue
		}
		seg.Meeting = m.ID
		seg.AgendaItem = m.AgendaItem
		after = m.StartsAt
		changed = true
	}
	return changed
}

// BindFinal binds a meeting to the final segment. Earlier segments bound to
// meetings that do not start before it are unbound and rebound where the
// calendar allows.
func (p *Planner) BindFinal(path *Path, m meeting.Meeting) error {
	final := &path.Segments[len(path.Segments)-1]
	if m.Group != final.Group {
		return fmt.Errorf(
			"%w: meeting %s belongs to %s, not %s",
			meeting.ErrInvalidMeeting,
			m.ID,
			m.Group,
			final.Group,
		)
	}
	final.Meeting = m.ID
	final.AgendaItem = m.AgendaItem
	for i := path.Current; i < len(path.Segments)-1; i++ {
		seg := &path.Segments[i]
		if !seg.HasMeeting() {
			continue
		}
		if start, ok := p.meetingStart(seg); ok && start.Before(m.StartsAt) {
			continue
		}
		seg.Meeting = ""
		seg.AgendaItem = ""
	}
	p.Rebind(path)
	return nil
}

// nextBound returns the start of the first meeting bound after segment i
func (p *Planner) nextBound(path *Path, i int) (time.Time, bool) {
	for j := i + 1; j < len(path.Segments); j++ {
		seg := &path.Segments[j]
		if !seg.HasMeeting() {
			continue
		}
		if start, ok := p.meetingStart(seg); ok {
			return start, true
		}
	}
	return time.Time{}, false
}

func (p *Planner) meetingStart(seg *Segment) (time.Time, bool) {
	getter, ok := p.config.Calendar.(interface {
		Get(types.MeetingID) (meeting.Meeting, error)
	})
	if !ok {
		return time.Time{}, false
	}
	m, err := getter.Get(seg.Meeting)
	if err != nil {
		return time.Time{}, false
	}
	return m.StartsAt, true
}

func shortest(candidates [][]types.GroupID) []types.GroupID {
	var best []types.GroupID
	for _, c := range candidates {
		if len(c) == 0 {
			continue
		}
		if best == nil || len(c) < len(best) ||
			(len(c) == len(best) && lexLess(c, best)) {
			best = c
		}
	}
	return best
}

func lexLess(a, b []types.GroupID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

var _ Graph = (*rights.Graph)(nil)

var _ Calendar = (*meeting.Calendar)(nil)
