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

// Package meeting keeps the calendar of scheduled group meetings that
// amendments are bound to along their forwarding path.
package meeting

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/civicweave/ratify/types"
)

var (
	ErrMeetingNotFound = errors.New("meeting not found")
	ErrInvalidMeeting  = errors.New("invalid meeting")
)

// Meeting is a scheduled assembly of a group at which amendments are
// suggested on and voted on
type Meeting struct {
	ID         types.MeetingID `json:"id"                   yaml:"id"`
	Group      types.GroupID   `json:"group"                yaml:"group"`
	StartsAt   time.Time       `json:"startsAt"             yaml:"startsAt"`
	AgendaItem string          `json:"agendaItem,omitempty" yaml:"agendaItem"`
}

// Calendar indexes meetings by id and by owning group
type Calendar struct {
	meetings map[types.MeetingID]Meeting
	byGroup  map[types.GroupID][]types.MeetingID
	mu       sync.RWMutex
}

// NewCalendar returns an empty calendar
func NewCalendar() *Calendar {
	return &Calendar{
		meetings: make(map[types.MeetingID]Meeting),
		byGroup:  make(map[types.GroupID][]types.MeetingID),
	}
}

// Add schedules a meeting. Re-adding an existing id reschedules it.
func (c *Calendar) Add(m Meeting) error {
	if m.ID == "" || m.Group == "" {
		return fmt.Errorf("%w: id and group are required", ErrInvalidMeeting)
	}
	if m.StartsAt.IsZero() {
		return fmt.Errorf("%w: %s has no start time", ErrInvalidMeeting, m.ID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.meetings[m.ID]; ok {
		c.byGroup[prev.Group] = slices.DeleteFunc(
			c.byGroup[prev.Group],
			func(id types.MeetingID) bool { return id == m.ID },
		)
	}
	c.meetings[m.ID] = m
	ids := append(c.byGroup[m.Group], m.ID)
	slices.SortFunc(ids, func(a, b types.MeetingID) int {
		return c.compare(c.meetings[a], c.meetings[b])
	})
	c.byGroup[m.Group] = ids
	return nil
}

// Get looks up a meeting
func (c *Calendar) Get(id types.MeetingID) (Meeting, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.meetings[id]
	if !ok {
		return Meeting{}, fmt.Errorf("%w: %s", ErrMeetingNotFound, id)
	}
	return m, nil
}

// ForGroup returns the meetings owned by a group in start order
func (c *Calendar) ForGroup(group types.GroupID) []Meeting {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := c.byGroup[group]
	ret := make([]Meeting, 0, len(ids))
	for _, id := range ids {
		ret = append(ret, c.meetings[id])
	}
	return ret
}

// NextFor returns the earliest meeting of the group starting strictly after
// the given time
func (c *Calendar) NextFor(group types.GroupID, after time.Time) (Meeting, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, id := range c.byGroup[group] {
		m := c.meetings[id]
		if m.StartsAt.After(after) {
			return m, true
		}
	}
	return Meeting{}, false
}

// Len returns the number of scheduled meetings
func (c *Calendar) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.meetings)
}

func (c *Calendar) compare(a, b Meeting) int {
	if cmp := a.StartsAt.Compare(b.StartsAt); cmp != 0 {
		return cmp
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	}
	return 0
}
