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

package planner

import (
	"errors"
	"fmt"
	"slices"

	"github.com/civicweave/ratify/types"
)

// ForwardingStatus tells whether a segment may act on the amendment yet
type ForwardingStatus string

const (
	ForwardConfirmed            ForwardingStatus = "forward_confirmed"
	PreviousDecisionOutstanding ForwardingStatus = "previous_decision_outstanding"
)

var ErrInvalidPath = errors.New("invalid path")

// Segment is one hop of an amendment path. Meeting, AgendaItem and Session
// are empty until bound.
type Segment struct {
	Index      int              `json:"index"`
	Group      types.GroupID    `json:"group"`
	Meeting    types.MeetingID  `json:"meeting,omitempty"`
	AgendaItem string           `json:"agendaItem,omitempty"`
	Session    types.SessionID  `json:"session,omitempty"`
	Forwarding ForwardingStatus `json:"forwarding"`
}

// HasMeeting returns true if a meeting is bound to the segment
func (s Segment) HasMeeting() bool {
	return s.Meeting != ""
}

// Path is the ordered list of groups an amendment travels through. It is the
// single authoritative representation of forwarding progress.
type Path struct {
	Segments []Segment `json:"segments"`
	Current  int       `json:"current"`
}

// Len returns the number of segments
func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.Segments)
}

// CurrentSegment returns the segment the amendment currently sits at
func (p *Path) CurrentSegment() (Segment, bool) {
	if p == nil || p.Current < 0 || p.Current >= len(p.Segments) {
		return Segment{}, false
	}
	return p.Segments[p.Current], true
}

// AtFinal returns true if the current segment is the last one
func (p *Path) AtFinal() bool {
	return p != nil && p.Current == len(p.Segments)-1
}

// Forward moves to the next segment and marks it forward_confirmed. It
// returns false at the final segment.
func (p *Path) Forward() bool {
	if p == nil || p.AtFinal() {
		return false
	}
	p.Current++
	p.Segments[p.Current].Forwarding = ForwardConfirmed
	return true
}

// Groups returns the group sequence of the path
func (p *Path) Groups() []types.GroupID {
	if p == nil {
		return nil
	}
	ret := make([]types.GroupID, len(p.Segments))
	for i, seg := range p.Segments {
		ret[i] = seg.Group
	}
	return ret
}

// Clone returns a deep copy
func (p *Path) Clone() *Path {
	if p == nil {
		return nil
	}
	return &Path{
		Segments: slices.Clone(p.Segments),
		Current:  p.Current,
	}
}

// Reset rewinds progress to segment 0 and drops session bindings
func (p *Path) Reset() {
	if p == nil {
		return
	}
	p.Current = 0
	for i := range p.Segments {
		p.Segments[i].Session = ""
		p.Segments[i].Forwarding = PreviousDecisionOutstanding
	}
	if len(p.Segments) > 0 {
		p.Segments[0].Forwarding = ForwardConfirmed
	}
}

// Validate checks the structural invariants: contiguous indices from zero,
// no repeated group, segment 0 confirmed and no confirmed segment after an
// outstanding one
func (p *Path) Validate() error {
	if p == nil || len(p.Segments) == 0 {
		return fmt.Errorf("%w: no segments", ErrInvalidPath)
	}
	if p.Current < 0 || p.Current >= len(p.Segments) {
		return fmt.Errorf("%w: current segment %d out of range", ErrInvalidPath, p.Current)
	}
	seen := make(map[types.GroupID]bool, len(p.Segments))
	outstanding := false
	for i, seg := range p.Segments {
		if seg.Index != i {
			return fmt.Errorf("%w: segment %d has index %d", ErrInvalidPath, i, seg.Index)
		}
		if seen[seg.Group] {
			return fmt.Errorf("%w: group %s repeated", ErrInvalidPath, seg.Group)
		}
		seen[seg.Group] = true
		switch seg.Forwarding {
		case ForwardConfirmed:
			if outstanding {
				return fmt.Errorf(
					"%w: segment %d confirmed after an outstanding segment",
					ErrInvalidPath,
					i,
				)
			}
		case PreviousDecisionOutstanding:
			if i == 0 {
				return fmt.Errorf("%w: first segment not confirmed", ErrInvalidPath)
			}
			outstanding = true
		default:
			return fmt.Errorf(
				"%w: segment %d has forwarding status %q",
				ErrInvalidPath,
				i,
				seg.Forwarding,
			)
		}
	}
	return nil
}
