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
	"sync"

	"gorm.io/gorm"
)

// Txn wraps a gorm transaction with commit-once semantics
type Txn struct {
	db        *Database
	tx        *gorm.DB
	lock      sync.Mutex
	finished  bool
	readWrite bool
}

func NewTxn(ctx context.Context, db *Database, readWrite bool) *Txn {
	return &Txn{
		db:        db,
		tx:        db.db.WithContext(ctx).Begin(),
		readWrite: readWrite,
	}
}

func (t *Txn) DB() *Database {
	return t.db
}

// Tx returns the gorm handle bound to the transaction
func (t *Txn) Tx() *gorm.DB {
	return t.tx
}

// Do executes the specified function in the context of the transaction. Any errors returned will result
// in the transaction being rolled back
func (t *Txn) Do(fn func(*Txn) error) error {
	if t.tx.Error != nil {
		t.finished = true
		return fmt.Errorf("begin transaction: %w", t.tx.Error)
	}
	if err := fn(t); err != nil {
		if err2 := t.Rollback(); err2 != nil {
			return fmt.Errorf(
				"rollback failed: %w: original error: %w",
				err2,
				err,
			)
		}
		return err
	}
	if err := t.Commit(); err != nil {
		return fmt.Errorf("commit failed: %w", err)
	}
	return nil
}

func (t *Txn) Commit() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.finished {
		return nil
	}
	// No need to commit for read-only, but we do want to free up resources
	if !t.readWrite {
		return t.rollback()
	}
	t.finished = true
	return t.tx.Commit().Error
}

func (t *Txn) Rollback() error {
	t.lock.Lock()
	defer t.lock.Unlock()
	return t.rollback()
}

func (t *Txn) rollback() error {
	if t.finished {
		return nil
	}
	t.finished = true
	if err := t.tx.Rollback().Error; err != nil &&
		!errors.Is(err, gorm.ErrInvalidTransaction) {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// Release releases transaction resources. For read-write transactions this
// is equivalent to Rollback. Errors are logged but not returned, making this
// safe for deferred calls.
func (t *Txn) Release() {
	if err := t.Rollback(); err != nil {
		t.db.logger.Debug(
			"transaction release failed",
			"error", err,
			"read_write", t.readWrite,
		)
	}
}
