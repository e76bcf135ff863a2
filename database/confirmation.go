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
	"fmt"

	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/types"
	"gorm.io/gorm/clause"
)

// ConfirmationStore is a support.Store on sqlite
type ConfirmationStore struct {
	db *Database
}

func (s *ConfirmationStore) SaveConfirmation(conf support.Confirmation) error {
	row := models.SupportConfirmation{
		ConfirmationID:  string(conf.ID),
		AmendmentID:     string(conf.Amendment),
		GroupID:         string(conf.Group),
		ChangeRequestID: string(conf.ChangeRequest),
		Status:          string(conf.Status),
		SnapshotRef:     conf.SnapshotRef,
		Revision:        conf.Revision,
		CreatedAt:       conf.CreatedAt,
		ResolvedAt:      conf.ResolvedAt,
	}
	result := s.db.DB().Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "confirmation_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"change_request_id",
			"status",
			"snapshot_ref",
			"revision",
			"resolved_at",
		}),
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save confirmation %s: %w", conf.ID, result.Error)
	}
	return nil
}

func (s *ConfirmationStore) DeleteConfirmations(amendment types.AmendmentID) error {
	result := s.db.DB().
		Where("amendment_id = ?", string(amendment)).
		Delete(&models.SupportConfirmation{})
	return result.Error
}

// Confirmations returns every stored confirmation in creation order
func (s *ConfirmationStore) Confirmations() ([]support.Confirmation, error) {
	var rows []models.SupportConfirmation
	if result := s.db.DB().Order("id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]support.Confirmation, 0, len(rows))
	for _, row := range rows {
		ret = append(ret, support.Confirmation{
			ID:            types.ConfirmationID(row.ConfirmationID),
			Amendment:     types.AmendmentID(row.AmendmentID),
			Group:         types.GroupID(row.GroupID),
			ChangeRequest: types.ChangeRequestID(row.ChangeRequestID),
			Status:        support.Status(row.Status),
			SnapshotRef:   row.SnapshotRef,
			Revision:      row.Revision,
			CreatedAt:     row.CreatedAt.UTC(),
			ResolvedAt:    row.ResolvedAt.UTC(),
		})
	}
	return ret, nil
}
