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
	"encoding/json"
	"fmt"

	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/types"
	"github.com/civicweave/ratify/voting"
)

// VoteLedger is a voting.VoteLedger on sqlite. The unique (session, voter)
// index rejects a second vote even across engine restarts.
type VoteLedger struct {
	db *Database
}

func (l *VoteLedger) Record(ctx context.Context, vote voting.Vote) error {
	row := models.Vote{
		SessionID: string(vote.Session),
		Voter:     string(vote.Voter),
		Choice:    string(vote.Ballot.Choice),
		CastAt:    vote.CastAt,
	}
	if len(vote.Ballot.Candidates) > 0 {
		candidates, err := json.Marshal(vote.Ballot.Candidates)
		if err != nil {
			return fmt.Errorf("encode candidates: %w", err)
		}
		row.Candidates = candidates
	}
	if err := l.db.DB().WithContext(ctx).Create(&row).Error; err != nil {
		if isDuplicate(err) {
			return fmt.Errorf("%w: %s in session %s", voting.ErrDuplicateVote, vote.Voter, vote.Session)
		}
		return fmt.Errorf("record vote: %w", err)
	}
	return nil
}

// Votes returns the votes of a session in the order they were cast
func (l *VoteLedger) Votes(
	ctx context.Context,
	session types.SessionID,
) ([]voting.Vote, error) {
	var rows []models.Vote
	if err := l.db.DB().
		WithContext(ctx).
		Where("session_id = ?", string(session)).
		Order("id").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	ret := make([]voting.Vote, 0, len(rows))
	for _, row := range rows {
		vote := voting.Vote{
			Session: types.SessionID(row.SessionID),
			Voter:   types.UserID(row.Voter),
			Ballot:  voting.Ballot{Choice: voting.Choice(row.Choice)},
			CastAt:  row.CastAt.UTC(),
		}
		if len(row.Candidates) > 0 {
			if err := json.Unmarshal(row.Candidates, &vote.Ballot.Candidates); err != nil {
				return nil, fmt.Errorf("decode candidates of vote %d: %w", row.ID, err)
			}
		}
		ret = append(ret, vote)
	}
	return ret, nil
}
