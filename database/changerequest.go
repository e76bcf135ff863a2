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
	"encoding/json"
	"fmt"

	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"gorm.io/gorm/clause"
)

// ChangeRequestStore is a changerequest.Store on sqlite. Every save upserts
// the full row.
type ChangeRequestStore struct {
	db *Database
}

func (s *ChangeRequestStore) SaveChangeRequest(cr changerequest.ChangeRequest) error {
	diff, err := json.Marshal(cr.Diff)
	if err != nil {
		return fmt.Errorf("encode diff: %w", err)
	}
	row := models.ChangeRequest{
		ID:             string(cr.ID),
		AmendmentID:    string(cr.Amendment),
		Proposer:       string(cr.Proposer),
		Diff:           diff,
		Source:         string(cr.Source),
		Status:         string(cr.Status),
		Reason:         string(cr.Reason),
		RequiresVoting: cr.RequiresVoting,
		VotingOrder:    cr.VotingOrder,
		Threshold:      string(cr.Threshold),
		Phase:          string(cr.Phase),
		BaseVersion:    cr.BaseVersion,
		SessionID:      string(cr.Session),
		ApplyError:     cr.ApplyError,
		ResultRef:      cr.ResultRef,
		SubmittedAt:    cr.SubmittedAt,
		ResolvedAt:     cr.ResolvedAt,
	}
	result := s.db.DB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save change request %s: %w", cr.ID, result.Error)
	}
	return nil
}

// ChangeRequests returns every stored request grouped by amendment in
// voting order
func (s *ChangeRequestStore) ChangeRequests() ([]changerequest.ChangeRequest, error) {
	var rows []models.ChangeRequest
	if result := s.db.DB().Order("amendment_id, voting_order").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]changerequest.ChangeRequest, 0, len(rows))
	for _, row := range rows {
		cr := changerequest.ChangeRequest{
			ID:             types.ChangeRequestID(row.ID),
			Amendment:      types.AmendmentID(row.AmendmentID),
			Proposer:       types.UserID(row.Proposer),
			Source:         changerequest.Source(row.Source),
			Status:         changerequest.Status(row.Status),
			Reason:         changerequest.Reason(row.Reason),
			RequiresVoting: row.RequiresVoting,
			VotingOrder:    row.VotingOrder,
			Threshold:      voting.MajorityType(row.Threshold),
			Phase:          types.Status(row.Phase),
			BaseVersion:    row.BaseVersion,
			Session:        types.SessionID(row.SessionID),
			ApplyError:     row.ApplyError,
			ResultRef:      row.ResultRef,
			SubmittedAt:    row.SubmittedAt.UTC(),
			ResolvedAt:     row.ResolvedAt.UTC(),
		}
		if err := json.Unmarshal(row.Diff, &cr.Diff); err != nil {
			return nil, fmt.Errorf("decode diff of change request %s: %w", row.ID, err)
		}
		ret = append(ret, cr)
	}
	return ret, nil
}
