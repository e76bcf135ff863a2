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

package voting

import (
	"context"
	"slices"
	"sync"

	"github.com/civicweave/ratify/types"
)

// VoteLedger is the durable record of cast votes. Record must fail with
// ErrDuplicateVote when a vote for the same (session, voter) exists.
type VoteLedger interface {
	Record(ctx context.Context, vote Vote) error
	Votes(ctx context.Context, session types.SessionID) ([]Vote, error)
}

// SessionStore persists session state other than votes. SaveSession is
// called with the session lock held after every change.
type SessionStore interface {
	SaveSession(Session) error
	// Sessions returns every stored session without votes
	Sessions() ([]Session, error)
}

type ledgerKey struct {
	session types.SessionID
	voter   types.UserID
}

// MemoryLedger is a VoteLedger held in process memory
type MemoryLedger struct {
	votes map[ledgerKey]Vote
	order map[types.SessionID][]types.UserID
	mu    sync.Mutex
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		votes: make(map[ledgerKey]Vote),
		order: make(map[types.SessionID][]types.UserID),
	}
}

func (l *MemoryLedger) Record(_ context.Context, vote Vote) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerKey{session: vote.Session, voter: vote.Voter}
	if _, ok := l.votes[key]; ok {
		return ErrDuplicateVote
	}
	l.votes[key] = vote
	l.order[vote.Session] = append(l.order[vote.Session], vote.Voter)
	return nil
}

func (l *MemoryLedger) Votes(
	_ context.Context,
	session types.SessionID,
) ([]Vote, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	voters := l.order[session]
	ret := make([]Vote, 0, len(voters))
	for _, voter := range voters {
		v := l.votes[ledgerKey{session: session, voter: voter}]
		v.Ballot.Candidates = slices.Clone(v.Ballot.Candidates)
		ret = append(ret, v)
	}
	return ret, nil
}
