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

	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
	"gorm.io/gorm/clause"
)

// SessionStore is a voting.SessionStore on sqlite. Votes are kept by the
// VoteLedger and joined back on load by the voting engine.
type SessionStore struct {
	db *Database
}

func (s *SessionStore) SaveSession(session voting.Session) error {
	row := models.VotingSession{
		ID:            string(session.ID),
		SubjectKind:   string(session.Subject.Kind),
		SubjectID:     session.Subject.ID,
		AmendmentID:   string(session.Subject.Amendment),
		Majority:      string(session.Majority),
		Cardinality:   string(session.Cardinality),
		MaxSelections: session.MaxSelections,
		StartsAt:      session.StartsAt,
		EndsAt:        session.EndsAt,
		Status:        string(session.Status),
		Version:       session.Version,
	}
	var err error
	if len(session.Candidates) > 0 {
		if row.Candidates, err = json.Marshal(session.Candidates); err != nil {
			return fmt.Errorf("encode candidates: %w", err)
		}
	}
	if row.Eligible, err = json.Marshal(session.Eligible); err != nil {
		return fmt.Errorf("encode eligible voters: %w", err)
	}
	if session.Resolution != nil {
		if row.Resolution, err = json.Marshal(session.Resolution); err != nil {
			return fmt.Errorf("encode resolution: %w", err)
		}
	}
	result := s.db.DB().Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("save session %s: %w", session.ID, result.Error)
	}
	return nil
}

func (s *SessionStore) Sessions() ([]voting.Session, error) {
	var rows []models.VotingSession
	if result := s.db.DB().Order("starts_at, id").Find(&rows); result.Error != nil {
		return nil, result.Error
	}
	ret := make([]voting.Session, 0, len(rows))
	for _, row := range rows {
		session := voting.Session{
			ID: types.SessionID(row.ID),
			Subject: voting.Subject{
				Kind:      voting.SubjectKind(row.SubjectKind),
				ID:        row.SubjectID,
				Amendment: types.AmendmentID(row.AmendmentID),
			},
			Majority:      voting.MajorityType(row.Majority),
			Cardinality:   voting.Cardinality(row.Cardinality),
			MaxSelections: row.MaxSelections,
			StartsAt:      row.StartsAt.UTC(),
			EndsAt:        row.EndsAt.UTC(),
			Status:        voting.SessionStatus(row.Status),
			Version:       row.Version,
		}
		if len(row.Candidates) > 0 {
			if err := json.Unmarshal(row.Candidates, &session.Candidates); err != nil {
				return nil, fmt.Errorf("decode candidates of session %s: %w", row.ID, err)
			}
		}
		if err := json.Unmarshal(row.Eligible, &session.Eligible); err != nil {
			return nil, fmt.Errorf("decode eligible voters of session %s: %w", row.ID, err)
		}
		if len(row.Resolution) > 0 {
			var res voting.Resolution
			if err := json.Unmarshal(row.Resolution, &res); err != nil {
				return nil, fmt.Errorf("decode resolution of session %s: %w", row.ID, err)
			}
			session.Resolution = &res
		}
		ret = append(ret, session)
	}
	return ret, nil
}
