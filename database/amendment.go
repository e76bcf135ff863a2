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

package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/planner"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
	"gorm.io/gorm"
)

// AmendmentStore is a workflow.Store on sqlite. Path segments, supporters
// and collaborators live in child tables rewritten on every update.
type AmendmentStore struct {
	db *Database
}

func (s *AmendmentStore) Create(ctx context.Context, a *workflow.Amendment) error {
	row := amendmentToModel(a)
	row.Version = 1
	err := s.db.Transaction(ctx, true).Do(func(txn *Txn) error {
		if result := txn.Tx().Create(&row); result.Error != nil {
			return result.Error
		}
		return writeChildren(txn.Tx(), a)
	})
	if err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s", workflow.ErrAmendmentExists, a.ID)
		}
		return fmt.Errorf("create amendment %s: %w", a.ID, err)
	}
	a.Version = 1
	return nil
}

func (s *AmendmentStore) Get(
	ctx context.Context,
	id types.AmendmentID,
) (*workflow.Amendment, error) {
	var ret *workflow.Amendment
	txn := s.db.Transaction(ctx, false)
	defer txn.Release()
	err := txn.Do(func(txn *Txn) error {
		var row models.Amendment
		result := txn.Tx().Where("id = ?", string(id)).First(&row)
		if result.Error != nil {
			if errors.Is(result.Error, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: %s", ErrAmendmentNotFound, id)
			}
			return result.Error
		}
		a, err := loadAmendment(txn.Tx(), row)
		ret = a
		return err
	})
	return ret, err
}

// Update writes the aggregate if the stored version still equals a.Version
func (s *AmendmentStore) Update(ctx context.Context, a *workflow.Amendment) error {
	row := amendmentToModel(a)
	err := s.db.Transaction(ctx, true).Do(func(txn *Txn) error {
		result := txn.Tx().
			Model(&models.Amendment{}).
			Where("id = ? AND version = ?", row.ID, a.Version).
			Updates(map[string]any{
				"title":            row.Title,
				"document_ref":     row.DocumentRef,
				"document_version": row.DocumentVersion,
				"status":           row.Status,
				"current_meeting":  row.CurrentMeeting,
				"origin":           row.Origin,
				"target":           row.Target,
				"target_meeting":   row.TargetMeeting,
				"majority":         row.Majority,
				"path_current":     row.PathCurrent,
				"cloned_from":      row.ClonedFrom,
				"version":          a.Version + 1,
				"updated_at":       row.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			var count int64
			if err := txn.Tx().
				Model(&models.Amendment{}).
				Where("id = ?", row.ID).
				Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", ErrAmendmentNotFound, a.ID)
			}
			return fmt.Errorf("%w: %s at version %d", ErrVersionConflict, a.ID, a.Version)
		}
		return writeChildren(txn.Tx(), a)
	})
	if err != nil {
		return err
	}
	a.Version++
	return nil
}

// List returns amendments, optionally filtered by status, oldest first
func (s *AmendmentStore) List(
	ctx context.Context,
	statuses ...types.Status,
) ([]*workflow.Amendment, error) {
	var ret []*workflow.Amendment
	txn := s.db.Transaction(ctx, false)
	defer txn.Release()
	err := txn.Do(func(txn *Txn) error {
		query := txn.Tx().Order("created_at, id")
		if len(statuses) > 0 {
			values := make([]string, 0, len(statuses))
			for _, status := range statuses {
				values = append(values, string(status))
			}
			query = query.Where("status IN ?", values)
		}
		var rows []models.Amendment
		if result := query.Find(&rows); result.Error != nil {
			return result.Error
		}
		ret = make([]*workflow.Amendment, 0, len(rows))
		for _, row := range rows {
			a, err := loadAmendment(txn.Tx(), row)
			if err != nil {
				return err
			}
			ret = append(ret, a)
		}
		return nil
	})
	return ret, err
}

func amendmentToModel(a *workflow.Amendment) models.Amendment {
	row := models.Amendment{
		ID:              string(a.ID),
		Title:           a.Title,
		DocumentRef:     a.DocumentRef,
		DocumentVersion: a.DocumentVersion,
		Status:          string(a.Status),
		CurrentMeeting:  string(a.CurrentMeeting),
		Origin:          string(a.Origin),
		Target:          string(a.Target),
		TargetMeeting:   string(a.TargetMeeting),
		Majority:        string(a.Majority),
		PathCurrent:     -1,
		ClonedFrom:      string(a.ClonedFrom),
		Version:         a.Version,
		CreatedAt:       a.CreatedAt,
		UpdatedAt:       a.UpdatedAt,
	}
	if a.Path != nil {
		row.PathCurrent = a.Path.Current
	}
	return row
}

func writeChildren(tx *gorm.DB, a *workflow.Amendment) error {
	id := string(a.ID)
	for _, model := range []any{
		&models.AmendmentSegment{},
		&models.AmendmentSupporter{},
		&models.AmendmentCollaborator{},
	} {
		if err := tx.Where("amendment_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	if a.Path != nil && len(a.Path.Segments) > 0 {
		segments := make([]models.AmendmentSegment, 0, len(a.Path.Segments))
		for _, seg := range a.Path.Segments {
			segments = append(segments, models.AmendmentSegment{
				AmendmentID: id,
				Position:    seg.Index,
				GroupID:     string(seg.Group),
				MeetingID:   string(seg.Meeting),
				AgendaItem:  seg.AgendaItem,
				SessionID:   string(seg.Session),
				Forwarding:  string(seg.Forwarding),
			})
		}
		if err := tx.Create(&segments).Error; err != nil {
			return err
		}
	}
	if len(a.Supporters) > 0 {
		supporters := make([]models.AmendmentSupporter, 0, len(a.Supporters))
		for i, g := range a.Supporters {
			supporters = append(supporters, models.AmendmentSupporter{
				AmendmentID: id,
				GroupID:     string(g),
				Position:    i,
			})
		}
		if err := tx.Create(&supporters).Error; err != nil {
			return err
		}
	}
	if len(a.Collaborators) > 0 {
		collaborators := make([]models.AmendmentCollaborator, 0, len(a.Collaborators))
		for i, u := range a.Collaborators {
			collaborators = append(collaborators, models.AmendmentCollaborator{
				AmendmentID: id,
				UserID:      string(u),
				Position:    i,
			})
		}
		if err := tx.Create(&collaborators).Error; err != nil {
			return err
		}
	}
	return nil
}

func loadAmendment(tx *gorm.DB, row models.Amendment) (*workflow.Amendment, error) {
	status, err := types.ParseStatus(row.Status)
	if err != nil {
		return nil, fmt.Errorf("amendment %s: %w", row.ID, err)
	}
	majority, err := voting.ParseMajorityType(row.Majority)
	if err != nil {
		return nil, fmt.Errorf("amendment %s: %w", row.ID, err)
	}
	a := &workflow.Amendment{
		ID:              types.AmendmentID(row.ID),
		Title:           row.Title,
		DocumentRef:     row.DocumentRef,
		DocumentVersion: row.DocumentVersion,
		Status:          status,
		CurrentMeeting:  types.MeetingID(row.CurrentMeeting),
		Supporters:      []types.GroupID{},
		Collaborators:   []types.UserID{},
		Origin:          types.GroupID(row.Origin),
		Target:          types.GroupID(row.Target),
		TargetMeeting:   types.MeetingID(row.TargetMeeting),
		Majority:        majority,
		ClonedFrom:      types.AmendmentID(row.ClonedFrom),
		Version:         row.Version,
		CreatedAt:       row.CreatedAt.UTC(),
		UpdatedAt:       row.UpdatedAt.UTC(),
	}
	if row.PathCurrent >= 0 {
		var segments []models.AmendmentSegment
		if err := tx.Where("amendment_id = ?", row.ID).
			Order("position").
			Find(&segments).Error; err != nil {
			return nil, err
		}
		a.Path = &planner.Path{
			Segments: make([]planner.Segment, 0, len(segments)),
			Current:  row.PathCurrent,
		}
		for _, seg := range segments {
			a.Path.Segments = append(a.Path.Segments, planner.Segment{
				Index:      seg.Position,
				Group:      types.GroupID(seg.GroupID),
				Meeting:    types.MeetingID(seg.MeetingID),
				AgendaItem: seg.AgendaItem,
				Session:    types.SessionID(seg.SessionID),
				Forwarding: planner.ForwardingStatus(seg.Forwarding),
			})
		}
	}
	var supporters []models.AmendmentSupporter
	if err := tx.Where("amendment_id = ?", row.ID).
		Order("position").
		Find(&supporters).Error; err != nil {
		return nil, err
	}
	for _, s := range supporters {
		a.Supporters = append(a.Supporters, types.GroupID(s.GroupID))
	}
	var collaborators []models.AmendmentCollaborator
	if err := tx.Where("amendment_id = ?", row.ID).
		Order("position").
		Find(&collaborators).Error; err != nil {
		return nil, err
	}
	for _, c := range collaborators {
		a.Collaborators = append(a.Collaborators, types.UserID(c.UserID))
	}
	return a, nil
}

func isDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		strings.Contains(err.Error(), "UNIQUE constraint failed")
}
