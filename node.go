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

package ratify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/civicweave/ratify/api"
	"github.com/civicweave/ratify/changerequest"
	"github.com/civicweave/ratify/database"
	"github.com/civicweave/ratify/document"
	"github.com/civicweave/ratify/event"
	"github.com/civicweave/ratify/rights"
	"github.com/civicweave/ratify/support"
	"github.com/civicweave/ratify/voting"
	"github.com/civicweave/ratify/workflow"
	"github.com/prometheus/client_golang/prometheus"
)

type Node struct {
	db            *database.Database
	documents     document.Store
	eventBus      *event.EventBus
	voting        *voting.Engine
	engine        *workflow.Engine
	sweeper       *workflow.Sweeper
	api           *api.Server
	shutdownFuncs []func(context.Context) error
	config        Config
	ready         chan struct{}
	done          chan struct{}
	shutdownOnce  sync.Once
}

func New(cfg Config) (*Node, error) {
	if cfg.logger == nil {
		cfg.logger = NewConfig().logger
	}
	if cfg.promRegistry == nil {
		cfg.promRegistry = prometheus.NewRegistry()
	}
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	n := &Node{
		config:   cfg,
		eventBus: event.NewEventBus(cfg.promRegistry, cfg.logger),
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
	}
	return n, nil
}

// Run starts every component and blocks until Stop is called
func (n *Node) Run() error {
	// Configure tracing
	if n.config.tracing {
		if err := n.setupTracing(); err != nil {
			return err
		}
	}
	// Load database
	db, err := database.New(database.Config{
		Logger:  n.config.logger,
		DataDir: n.config.dataDir,
		Tracing: n.config.tracing,
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	n.db = db
	// Load document store
	switch n.config.documentBackend {
	case DocumentBackendBadger:
		badgerStore, err := document.NewBadgerStore(document.BadgerStoreConfig{
			Logger:  n.config.logger,
			DataDir: n.config.documentDir,
		})
		if err != nil {
			return fmt.Errorf("failed to open document store: %w", err)
		}
		n.documents = badgerStore
		n.shutdownFuncs = append(n.shutdownFuncs, func(context.Context) error {
			return badgerStore.Close()
		})
	default:
		n.documents = document.NewMemoryStore()
	}
	// Audit log of workflow events
	n.eventBus.RegisterSubscriber(
		event.AllEvents,
		event.NewLogSubscriber(n.config.logger, slog.LevelInfo),
	)
	// Load federation
	graph := rights.NewGraph(rights.WithMaxHops(n.config.maxHops))
	directory := workflow.NewStaticDirectory()
	if n.config.federationConfig != nil {
		if err := n.config.federationConfig.Apply(graph, directory); err != nil {
			return fmt.Errorf("failed to load federation: %w", err)
		}
	}
	// Restore workflow state
	n.voting = voting.NewEngine(voting.EngineConfig{
		Ledger:       n.db.Votes(),
		Sessions:     n.db.Sessions(),
		EventBus:     n.eventBus,
		PromRegistry: n.config.promRegistry,
		Logger:       n.config.logger,
	})
	if err := n.voting.Load(context.Background()); err != nil {
		return err
	}
	changeRequests := changerequest.NewManager(changerequest.ManagerConfig{
		Documents: n.documents,
		Voting:    n.voting,
		EventBus:  n.eventBus,
		Store:     n.db.ChangeRequests(),
		Logger:    n.config.logger,
	})
	if err := changeRequests.Load(); err != nil {
		return err
	}
	confirmations := support.NewCoordinator(support.CoordinatorConfig{
		Store:  n.db.Confirmations(),
		Logger: n.config.logger,
	})
	if err := confirmations.Load(); err != nil {
		return err
	}
	n.engine = workflow.NewEngine(workflow.EngineConfig{
		Store:               n.db.Amendments(),
		Documents:           n.documents,
		Graph:               graph,
		Voting:              n.voting,
		ChangeRequests:      changeRequests,
		Support:             confirmations,
		Directory:           directory,
		EventBus:            n.eventBus,
		PromRegistry:        n.config.promRegistry,
		Logger:              n.config.logger,
		DefaultMajority:     n.config.defaultMajority,
		MinEffectiveSupport: n.config.minEffectiveSupport,
		VotingPeriod:        n.config.votingPeriod,
	})
	if n.config.federationConfig != nil {
		for _, m := range n.config.federationConfig.Meetings {
			if _, err := n.engine.ScheduleMeeting(context.Background(), m); err != nil {
				return fmt.Errorf("failed to schedule meeting %q: %w", m.ID, err)
			}
		}
	}
	// Start sweeper
	n.sweeper = workflow.NewSweeper(n.engine, workflow.SweeperConfig{
		Logger:   n.config.logger,
		Interval: n.config.sweepInterval,
	})
	if err := n.sweeper.Start(context.Background()); err != nil {
		return err
	}
	// Start API
	if n.config.apiListenAddress != "" {
		n.api = api.New(api.ServerConfig{
			Logger:          n.config.logger,
			Engine:          n.engine,
			ListenAddress:   n.config.apiListenAddress,
			ShutdownTimeout: n.config.shutdownTimeout,
		})
		if err := n.api.Start(context.Background()); err != nil {
			return err
		}
	}
	n.config.logger.Info(
		"node started",
		"component", "node",
		"groups", len(graph.Groups()),
	)
	close(n.ready)

	// Wait for shutdown signal
	<-n.done
	return nil
}

// Ready is closed once Run has started every component
func (n *Node) Ready() <-chan struct{} {
	return n.ready
}

// Engine returns the workflow engine. It is nil until the node is ready.
func (n *Node) Engine() *workflow.Engine {
	return n.engine
}

// APIAddr returns the address the API listens on, or nil when disabled
func (n *Node) APIAddr() net.Addr {
	if n.api == nil {
		return nil
	}
	return n.api.Addr()
}

func (n *Node) Stop() error {
	var err error
	n.shutdownOnce.Do(func() {
		err = n.shutdown()
	})
	return err
}

func (n *Node) shutdown() error {
	// Create shutdown context with timeout (default 30s if not configured)
	shutdownTimeout := 30 * time.Second
	if n.config.shutdownTimeout > 0 {
		shutdownTimeout = n.config.shutdownTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var err error

	n.config.logger.Debug("starting graceful shutdown")

	// Phase 1: Stop accepting new work
	n.config.logger.Debug("shutdown phase 1: stopping new work")

	if n.api != nil {
		if stopErr := n.api.Stop(ctx); stopErr != nil {
			err = errors.Join(err, fmt.Errorf("api shutdown: %w", stopErr))
		}
	}

	if n.sweeper != nil {
		n.sweeper.Stop()
	}

	// Phase 2: Flush state and close database
	n.config.logger.Debug("shutdown phase 2: flushing state")

	if n.db != nil {
		if closeErr := n.db.Close(); closeErr != nil {
			err = errors.Join(err, fmt.Errorf("database close: %w", closeErr))
		}
	}

	// Phase 3: Cleanup resources
	n.config.logger.Debug("shutdown phase 3: cleanup resources")

	// Call registered shutdown functions
	for _, fn := range n.shutdownFuncs {
		if fnErr := fn(ctx); fnErr != nil {
			err = errors.Join(err, fmt.Errorf("shutdown function: %w", fnErr))
		}
	}
	n.shutdownFuncs = nil

	if n.eventBus != nil {
		n.eventBus.Stop()
	}

	n.config.logger.Debug("graceful shutdown complete")
	close(n.done)
	return err
}
