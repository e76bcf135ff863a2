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

package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/civicweave/ratify"
	"github.com/civicweave/ratify/federation"
	"github.com/civicweave/ratify/internal/config"
	"github.com/civicweave/ratify/voting"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// NodeOptions builds the root node options from the loaded config
func NodeOptions(
	cfg *config.Config,
	logger *slog.Logger,
	registry prometheus.Registerer,
) ([]ratify.ConfigOptionFunc, error) {
	opts := []ratify.ConfigOptionFunc{
		ratify.WithLogger(logger),
		ratify.WithPrometheusRegistry(registry),
		ratify.WithDatabasePath(cfg.DatabasePath),
		ratify.WithDocumentStore(cfg.DocumentBackend, cfg.DocumentPath),
		ratify.WithDefaultMajority(voting.MajorityType(cfg.DefaultMajority)),
		ratify.WithMaxHops(cfg.MaxHops),
		ratify.WithMinEffectiveSupport(cfg.MinEffectiveSupport),
		ratify.WithVotingPeriod(cfg.VotingPeriodDuration()),
		ratify.WithSweepInterval(cfg.SweepIntervalDuration()),
		ratify.WithShutdownTimeout(cfg.ShutdownTimeoutDuration()),
		ratify.WithTracing(cfg.Tracing),
		ratify.WithTracingStdout(cfg.TracingStdout),
	}
	if cfg.ApiPort > 0 {
		opts = append(
			opts,
			ratify.WithApiListenAddress(fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ApiPort)),
		)
	}
	if cfg.Federation != "" {
		fed, err := federation.NewFederationConfigFromFile(cfg.Federation)
		if err != nil {
			return nil, fmt.Errorf("failed to load federation: %w", err)
		}
		opts = append(opts, ratify.WithFederationConfig(fed))
	}
	return opts, nil
}

func Run(cfg *config.Config, logger *slog.Logger) error {
	logger.Debug(fmt.Sprintf("config: %+v", cfg), "component", "node")
	opts, err := NodeOptions(cfg, logger, prometheus.DefaultRegisterer)
	if err != nil {
		return err
	}
	n, err := ratify.New(ratify.NewConfig(opts...))
	if err != nil {
		return err
	}
	shutdownTimeout := cfg.ShutdownTimeoutDuration()
	if shutdownTimeout <= 0 {
		shutdownTimeout = 30 * time.Second
	}

	// Wait for interrupt/termination signal
	signalCtx, signalCtxStop := signal.NotifyContext(
		context.Background(),
		syscall.SIGINT,
		syscall.SIGTERM,
	)
	defer signalCtxStop()

	g, gctx := errgroup.WithContext(signalCtx)
	g.Go(func() error {
		if err := n.Run(); err != nil {
			logger.Error("node error", "error", err)
			return err
		}
		return nil
	})
	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr: fmt.Sprintf(
				"%s:%d",
				cfg.BindAddr,
				cfg.MetricsPort,
			),
			Handler:           mux,
			ReadHeaderTimeout: 60 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       120 * time.Second,
		}
		logger.Info(
			"serving prometheus metrics on "+metricsServer.Addr,
			"component", "node",
		)
		g.Go(func() error {
			if err := metricsServer.ListenAndServe(); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to start metrics listener: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		if signalCtx.Err() != nil {
			logger.Info("signal received, initiating graceful shutdown")
		}
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			shutdownTimeout,
		)
		defer cancel()
		var err error
		if metricsServer != nil {
			if shutdownErr := metricsServer.Shutdown(shutdownCtx); shutdownErr != nil {
				err = errors.Join(err, fmt.Errorf("metrics server shutdown: %w", shutdownErr))
			}
		}
		if stopErr := n.Stop(); stopErr != nil {
			err = errors.Join(err, stopErr)
		}
		return err
	})
	if err := g.Wait(); err != nil {
		logger.Error("shutdown errors occurred", "error", err)
		return err
	}
	logger.Info("shutdown complete")
	return nil
}
