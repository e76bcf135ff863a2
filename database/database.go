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
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/civicweave/ratify/database/models"
	"github.com/civicweave/ratify/workflow"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

var (
	// ErrVersionConflict is returned by AmendmentStore.Update when the stored
	// version moved on
	ErrVersionConflict = workflow.ErrVersionConflict
	// ErrAmendmentNotFound is returned for unknown amendment ids
	ErrAmendmentNotFound = workflow.ErrAmendmentNotFound
)

type Config struct {
	Logger *slog.Logger
	// DataDir holds the sqlite file. An empty value uses a private in-memory
	// database, useful for testing.
	DataDir string
	// Tracing enables OpenTelemetry spans for queries
	Tracing bool
}

// Database is the sqlite store for amendments, change requests, voting
// sessions, votes and support confirmations
type Database struct {
	db          *gorm.DB
	logger      *slog.Logger
	timerVacuum *time.Timer
	dataDir     string
	vacuumWG    sync.WaitGroup
	timerMutex  sync.Mutex
	closed      bool
}

// New opens the database and applies the schema
func New(cfg Config) (*Database, error) {
	var dsn string
	if cfg.DataDir == "" {
		dsn = fmt.Sprintf(
			"file:ratify-%s?mode=memory&cache=shared",
			uuid.NewString(),
		)
	} else {
		// Make sure that we can read data dir, and create if it doesn't exist
		if _, err := os.Stat(cfg.DataDir); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("failed to read data dir: %w", err)
			}
			if err := os.MkdirAll(cfg.DataDir, fs.ModePerm); err != nil {
				return nil, fmt.Errorf("failed to create data dir: %w", err)
			}
		}
		// WAL journal mode and a busy timeout for the sweeper and API writers
		dsn = fmt.Sprintf(
			"file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=cache_size(-50000)",
			filepath.Join(cfg.DataDir, "ratify.sqlite"),
		)
	}
	gdb, err := gorm.Open(
		sqlite.Open(dsn),
		&gorm.Config{
			Logger:                 gormlogger.Discard,
			SkipDefaultTransaction: true,
			TranslateError:         true,
		},
	)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("get database handle: %w", err)
	}
	// sqlite has a single writer; one connection also keeps an in-memory
	// database alive for the life of the store
	sqlDB.SetMaxOpenConns(1)
	d := &Database{
		db:      gdb,
		logger:  cfg.Logger,
		dataDir: cfg.DataDir,
	}
	if err := d.init(cfg.Tracing); err != nil {
		return nil, errors.Join(err, d.Close())
	}
	return d, nil
}

func (d *Database) init(tracingEnabled bool) error {
	if d.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		d.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	d.logger = d.logger.With("component", "database")
	if tracingEnabled {
		if err := d.db.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
			return err
		}
	}
	for _, model := range models.MigrateModels {
		d.logger.Debug(fmt.Sprintf("creating table: %T", model))
		if err := d.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("migrate %T: %w", model, err)
		}
	}
	d.scheduleDailyVacuum()
	return nil
}

// DataDir returns the path to the data directory used for storage
func (d *Database) DataDir() string {
	return d.dataDir
}

// DB returns the underlying GORM database handle
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Transaction starts a new database transaction and returns a handle to it
func (d *Database) Transaction(ctx context.Context, readWrite bool) *Txn {
	return NewTxn(ctx, d, readWrite)
}

// Amendments returns the amendment store backed by this database
func (d *Database) Amendments() *AmendmentStore {
	return &AmendmentStore{db: d}
}

// Votes returns the vote ledger backed by this database
func (d *Database) Votes() *VoteLedger {
	return &VoteLedger{db: d}
}

// ChangeRequests returns the change request store backed by this database
func (d *Database) ChangeRequests() *ChangeRequestStore {
	return &ChangeRequestStore{db: d}
}

// Sessions returns the voting session store backed by this database
func (d *Database) Sessions() *SessionStore {
	return &SessionStore{db: d}
}

// Confirmations returns the support confirmation store backed by this
// database
func (d *Database) Confirmations() *ConfirmationStore {
	return &ConfirmationStore{db: d}
}

func (d *Database) runVacuum() error {
	d.timerMutex.Lock()
	if d.dataDir == "" || d.closed {
		d.timerMutex.Unlock()
		return nil
	}
	d.vacuumWG.Add(1)
	d.timerMutex.Unlock()
	defer d.vacuumWG.Done()
	return d.db.Exec("VACUUM").Error
}

// scheduleDailyVacuum schedules a daily vacuum operation
func (d *Database) scheduleDailyVacuum() {
	d.timerMutex.Lock()
	defer d.timerMutex.Unlock()
	if d.closed || d.dataDir == "" {
		return
	}
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
	}
	d.timerVacuum = time.AfterFunc(24*time.Hour, func() {
		d.logger.Debug("running vacuum on sqlite database")
		defer d.scheduleDailyVacuum()
		if err := d.runVacuum(); err != nil {
			d.logger.Error(
				"failed to free unused space in database",
				"error", err,
			)
		}
	})
}

// Close stops background maintenance and closes the connection
func (d *Database) Close() error {
	d.timerMutex.Lock()
	d.closed = true
	if d.timerVacuum != nil {
		d.timerVacuum.Stop()
		d.timerVacuum = nil
	}
	d.timerMutex.Unlock()
	d.vacuumWG.Wait()
	db, err := d.db.DB()
	if err != nil {
		return fmt.Errorf("get database handle: %w", err)
	}
	return db.Close()
}
