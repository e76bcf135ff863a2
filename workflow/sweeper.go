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
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"
)

const DefaultSweepInterval = 30 * time.Second

type SweeperConfig struct {
	Logger   *slog.Logger
	Interval time.Duration
}

// Sweeper periodically closes expired voting sessions so that they complete
// even when nobody votes or calls Advance
type Sweeper struct {
	engine *Engine
	config SweeperConfig
	cancel context.CancelFunc
	done   chan struct{}
	mu     sync.Mutex
}

func NewSweeper(engine *Engine, cfg SweeperConfig) *Sweeper {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	cfg.Logger = cfg.Logger.With("component", "sweeper")
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweepInterval
	}
	return &Sweeper{
		engine: engine,
		config: cfg,
	}
}

// Start runs the sweep loop until ctx is cancelled or Stop is called
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("sweeper already running")
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.run(ctx, s.done)
	s.config.Logger.Debug("sweeper started", "interval", s.config.Interval)
	return nil
}

// Stop halts the loop and waits for it to exit
func (s *Sweeper) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done == nil {
		return
	}
	s.cancel()
	<-s.done
	s.done = nil
	s.cancel = nil
}

func (s *Sweeper) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := s.engine.Sweep(ctx)
			if err != nil {
				s.config.Logger.Warn("sweep failed", "error", err)
			}
			if len(ids) > 0 {
				s.config.Logger.Debug("swept voting sessions", "amendments", len(ids))
			}
		}
	}
}
