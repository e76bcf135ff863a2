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

// Package support tracks whether each supporting group still endorses an
// amendment after its text has changed. An accepted change opens a pending
// confirmation per supporting group, and a group only counts towards
// effective support while it has none outstanding.
package support

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/civicweave/ratify/types"
)

var (
	ErrStaleConfirmation    = errors.New("support confirmation superseded by a newer text change")
	ErrConfirmationNotFound = errors.New("support confirmation not found")
	ErrAlreadyResolved      = errors.New("support confirmation already resolved")
)

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusDeclined  Status = "declined"
)

// Confirmation is a supporting group's obligation to re-endorse a snapshot
type Confirmation struct {
	ID            types.ConfirmationID  `json:"id"`
	Amendment     types.AmendmentID     `json:"amendment"`
	Group         types.GroupID         `json:"group"`
	ChangeRequest types.ChangeRequestID `json:"changeRequest"`
	Status        Status                `json:"status"`
	SnapshotRef   string                `json:"snapshotRef"`
	Revision      int                   `json:"revision"`
	CreatedAt     time.Time             `json:"createdAt"`
	ResolvedAt    time.Time             `json:"resolvedAt,omitzero"`
}

// Store persists confirmations. It is called with the coordinator lock held.
type Store interface {
	SaveConfirmation(Confirmation) error
	DeleteConfirmations(types.AmendmentID) error
	// Confirmations returns every stored confirmation in creation order
	Confirmations() ([]Confirmation, error)
}

type CoordinatorConfig struct {
	// Store persists every change. Nil keeps confirmations in memory only.
	Store  Store
	Logger *slog.Logger
	Now    func() time.Time
}

type Coordinator struct {
	config CoordinatorConfig
	byID   map[types.ConfirmationID]*Confirmation
	// per amendment, per group, newest last
	byGroup map[types.AmendmentID]map[types.GroupID][]*Confirmation
	mu      sync.Mutex
}

func NewCoordinator(cfg CoordinatorConfig) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "support")
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Coordinator{
		config:  cfg,
		byID:    make(map[types.ConfirmationID]*Confirmation),
		byGroup: make(map[types.AmendmentID]map[types.GroupID][]*Confirmation),
	}
}

// Load restores the confirmations kept by the store
func (c *Coordinator) Load() error {
	if c.config.Store == nil {
		return nil
	}
	stored, err := c.config.Store.Confirmations()
	if err != nil {
		return fmt.Errorf("load confirmations: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conf := range stored {
		groups, ok := c.byGroup[conf.Amendment]
		if !ok {
			groups = make(map[types.GroupID][]*Confirmation)
			c.byGroup[conf.Amendment] = groups
		}
		p := &conf
		groups[conf.Group] = append(groups[conf.Group], p)
		c.byID[conf.ID] = p
	}
	c.config.Logger.Debug("support confirmations loaded", "count", len(stored))
	return nil
}

func (c *Coordinator) save(conf Confirmation) error {
	if c.config.Store == nil {
		return nil
	}
	if err := c.config.Store.SaveConfirmation(conf); err != nil {
		return fmt.Errorf("persist confirmation %s: %w", conf.ID, err)
	}
	return nil
}

// TextChanged opens a pending confirmation for every supporting group. A
// group with a pending confirmation gets it refreshed to the new snapshot
// instead of a second one. It returns the confirmations created or refreshed.
func (c *Coordinator) TextChanged(
	amendment types.AmendmentID,
	changeRequest types.ChangeRequestID,
	snapshotRef string,
	supporters []types.GroupID,
) ([]Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	groups, ok := c.byGroup[amendment]
	if !ok {
		groups = make(map[types.GroupID][]*Confirmation)
		c.byGroup[amendment] = groups
	}
	now := c.config.Now()
	ret := make([]Confirmation, 0, len(supporters))
	for _, group := range supporters {
		history := groups[group]
		if n := len(history); n > 0 && history[n-1].Status == StatusPending {
			conf := *history[n-1]
			conf.SnapshotRef = snapshotRef
			conf.ChangeRequest = changeRequest
			conf.Revision++
			if err := c.save(conf); err != nil {
				return ret, err
			}
			*history[n-1] = conf
			ret = append(ret, conf)
			continue
		}
		conf := &Confirmation{
			ID:            types.NewConfirmationID(),
			Amendment:     amendment,
			Group:         group,
			ChangeRequest: changeRequest,
			Status:        StatusPending,
			SnapshotRef:   snapshotRef,
			Revision:      1,
			CreatedAt:     now,
		}
		if err := c.save(*conf); err != nil {
			return ret, err
		}
		groups[group] = append(history, conf)
		c.byID[conf.ID] = conf
		ret = append(ret, *conf)
	}
	c.config.Logger.Debug(
		"support reconfirmation requested",
		"amendment", amendment,
		"change_request", changeRequest,
		"groups", len(ret),
	)
	return ret, nil
}

// Confirm re-endorses the confirmation's snapshot. An empty snapshotRef
// skips the freshness check.
func (c *Coordinator) Confirm(
	id types.ConfirmationID,
	snapshotRef string,
) (Confirmation, error) {
	return c.resolve(id, snapshotRef, StatusConfirmed)
}

// Decline withdraws the group's support. The caller removes the group from
// the supporting set.
func (c *Coordinator) Decline(
	id types.ConfirmationID,
	snapshotRef string,
) (Confirmation, error) {
	return c.resolve(id, snapshotRef, StatusDeclined)
}

func (c *Coordinator) resolve(
	id types.ConfirmationID,
	snapshotRef string,
	status Status,
) (Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conf, ok := c.byID[id]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrConfirmationNotFound, id)
	}
	history := c.byGroup[conf.Amendment][conf.Group]
	if history[len(history)-1] != conf {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrStaleConfirmation, id)
	}
	if snapshotRef != "" && snapshotRef != conf.SnapshotRef {
		return Confirmation{}, fmt.Errorf(
			"%w: %s now refers to snapshot %s",
			ErrStaleConfirmation,
			id,
			conf.SnapshotRef,
		)
	}
	if conf.Status != StatusPending {
		if conf.Status == status {
			return *conf, nil
		}
		return Confirmation{}, fmt.Errorf("%w: %s is %s", ErrAlreadyResolved, id, conf.Status)
	}
	resolved := *conf
	resolved.Status = status
	resolved.ResolvedAt = c.config.Now()
	if err := c.save(resolved); err != nil {
		return Confirmation{}, err
	}
	*conf = resolved
	c.config.Logger.Info(
		"support confirmation resolved",
		"amendment", conf.Amendment,
		"group", conf.Group,
		"status", status,
	)
	return *conf, nil
}

// Get returns a confirmation
func (c *Coordinator) Get(id types.ConfirmationID) (Confirmation, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	conf, ok := c.byID[id]
	if !ok {
		return Confirmation{}, fmt.Errorf("%w: %s", ErrConfirmationNotFound, id)
	}
	return *conf, nil
}

// Pending lists the outstanding confirmations of an amendment by group
func (c *Coordinator) Pending(amendment types.AmendmentID) []Confirmation {
	c.mu.Lock()
	defer c.mu.Unlock()
	var ret []Confirmation
	for _, history := range c.byGroup[amendment] {
		if last := history[len(history)-1]; last.Status == StatusPending {
			ret = append(ret, *last)
		}
	}
	slices.SortFunc(ret, func(a, b Confirmation) int {
		switch {
		case a.Group < b.Group:
			return -1
		case a.Group > b.Group:
			return 1
		}
		return 0
	})
	return ret
}

// EffectiveSupportCount counts the supporters with no pending confirmation
func (c *Coordinator) EffectiveSupportCount(
	amendment types.AmendmentID,
	supporters []types.GroupID,
) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	groups := c.byGroup[amendment]
	for _, group := range supporters {
		history := groups[group]
		if n := len(history); n > 0 && history[n-1].Status == StatusPending {
			continue
		}
		count++
	}
	return count
}

// Reset drops every confirmation of an amendment
func (c *Coordinator) Reset(amendment types.AmendmentID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.config.Store != nil {
		if err := c.config.Store.DeleteConfirmations(amendment); err != nil {
			return fmt.Errorf("delete confirmations of %s: %w", amendment, err)
		}
	}
	for _, history := range c.byGroup[amendment] {
		for _, conf := range history {
			delete(c.byID, conf.ID)
		}
	}
	delete(c.byGroup, amendment)
	return nil
}
