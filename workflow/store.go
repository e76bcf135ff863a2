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
	"fmt"
	"slices"
	"sync"

	"github.com/civicweave/ratify/types"
)

// Store persists amendment aggregates. Update is a compare-and-swap on
// Version: it fails with ErrVersionConflict unless the stored version equals
// a.Version, and on success increments a.Version.
type Store interface {
	Create(ctx context.Context, a *Amendment) error
	Get(ctx context.Context, id types.AmendmentID) (*Amendment, error)
	Update(ctx context.Context, a *Amendment) error
	List(ctx context.Context, statuses ...types.Status) ([]*Amendment, error)
}

// MemoryStore is a Store held in process memory
type MemoryStore struct {
	amendments map[types.AmendmentID]*Amendment
	mu         sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		amendments: make(map[types.AmendmentID]*Amendment),
	}
}

func (m *MemoryStore) Create(_ context.Context, a *Amendment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.amendments[a.ID]; ok {
		return fmt.Errorf("%w: %s", ErrAmendmentExists, a.ID)
	}
	a.Version = 1
	m.amendments[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id types.AmendmentID) (*Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.amendments[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrAmendmentNotFound, id)
	}
	return a.Clone(), nil
}

func (m *MemoryStore) Update(_ context.Context, a *Amendment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.amendments[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAmendmentNotFound, a.ID)
	}
	if cur.Version != a.Version {
		return fmt.Errorf(
			"%w: %s at version %d, have %d",
			ErrVersionConflict,
			a.ID,
			cur.Version,
			a.Version,
		)
	}
	a.Version++
	m.amendments[a.ID] = a.Clone()
	return nil
}

func (m *MemoryStore) List(
	_ context.Context,
	statuses ...types.Status,
) ([]*Amendment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ret := make([]*Amendment, 0, len(m.amendments))
	for _, a := range m.amendments {
		if len(statuses) > 0 && !slices.Contains(statuses, a.Status) {
			continue
		}
		ret = append(ret, a.Clone())
	}
	slices.SortFunc(ret, func(a, b *Amendment) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
	return ret, nil
}

// VoterDirectory supplies the members eligible to vote for a group
type VoterDirectory interface {
	Members(group types.GroupID) []types.UserID
}

// StaticDirectory is a VoterDirectory filled at start-up
type StaticDirectory struct {
	members map[types.GroupID][]types.UserID
	mu      sync.RWMutex
}

func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		members: make(map[types.GroupID][]types.UserID),
	}
}

// Set replaces the members of a group
func (d *StaticDirectory) Set(group types.GroupID, members []types.UserID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[group] = slices.Clone(members)
}

func (d *StaticDirectory) Members(group types.GroupID) []types.UserID {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Clone(d.members[group])
}
