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

// Package api serves the workflow engine as a JSON HTTP API. The listener
// speaks HTTP/1.1 and cleartext HTTP/2 and exposes a gRPC health check.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

// ServiceName is reported by the gRPC health check
const ServiceName = "ratify.v1.WorkflowService"

type ServerConfig struct {
	Logger        *slog.Logger
	Engine        WorkflowEngine
	ListenAddress string
	// ShutdownTimeout bounds the graceful shutdown on context cancellation
	ShutdownTimeout time.Duration
}

// Server is the HTTP API server
type Server struct {
	config     ServerConfig
	logger     *slog.Logger
	engine     WorkflowEngine
	httpServer *http.Server
	listener   net.Listener
	done       chan struct{}
	mu         sync.Mutex
}

func New(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	if cfg.ListenAddress == "" {
		cfg.ListenAddress = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	return &Server{
		config: cfg,
		logger: cfg.Logger.With("component", "api"),
		engine: cfg.Engine,
	}
}

// Handler returns the request router
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle(
		grpchealth.NewHandler(
			grpchealth.NewStaticChecker(ServiceName),
			connect.WithCompressMinBytes(1024),
		),
	)
	mux.HandleFunc("POST /api/v1/amendments", s.handleCreateAmendment)
	mux.HandleFunc("GET /api/v1/amendments/{id}", s.handleGetAmendment)
	mux.HandleFunc("GET /api/v1/amendments/{id}/status", s.handleStatus)
	mux.HandleFunc("POST /api/v1/amendments/{id}/target", s.handleSetTarget)
	mux.HandleFunc("POST /api/v1/amendments/{id}/supporters", s.handleAddSupporter)
	mux.HandleFunc("POST /api/v1/amendments/{id}/suggestions/open", s.handleOpenSuggestions)
	mux.HandleFunc("POST /api/v1/amendments/{id}/suggestions/close", s.handleCloseSuggestions)
	mux.HandleFunc("GET /api/v1/amendments/{id}/change-requests", s.handleListChangeRequests)
	mux.HandleFunc("POST /api/v1/amendments/{id}/change-requests", s.handleSubmitChangeRequest)
	mux.HandleFunc("POST /api/v1/amendments/{id}/change-requests/{cr}/retry", s.handleRetryApply)
	mux.HandleFunc("POST /api/v1/amendments/{id}/event-voting", s.handleOpenEventVoting)
	mux.HandleFunc("POST /api/v1/amendments/{id}/votes", s.handleCastVote)
	mux.HandleFunc("POST /api/v1/amendments/{id}/advance", s.handleAdvance)
	mux.HandleFunc("POST /api/v1/amendments/{id}/withdraw", s.handleWithdraw)
	mux.HandleFunc("POST /api/v1/amendments/{id}/clone", s.handleClone)
	mux.HandleFunc("POST /api/v1/confirmations/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/v1/confirmations/{id}/decline", s.handleDecline)
	mux.HandleFunc("POST /api/v1/meetings", s.handleScheduleMeeting)
	mux.HandleFunc("POST /api/v1/meetings/{id}/activate", s.handleActivateMeeting)
	mux.HandleFunc("GET /api/v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("GET /api/v1/plan", s.handlePlan)
	return mux
}

// Start binds the listener and serves in a background goroutine. The
// server shuts down when ctx is cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.httpServer != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen for API server: %w", err)
	}
	server := &http.Server{
		// Use h2c so we can serve HTTP/2 without TLS
		Handler:           h2c.NewHandler(s.Handler(), &http2.Server{}),
		ReadHeaderTimeout: 60 * time.Second,
	}
	done := make(chan struct{})
	s.httpServer = server
	s.listener = ln
	s.done = done
	s.mu.Unlock()

	go func() {
		if err := server.Serve(ln); err != nil &&
			!errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	s.logger.Info("API listener started on " + ln.Addr().String())

	// Monitor context for cancellation
	go func() {
		select {
		case <-done:
			return
		case <-ctx.Done():
		}
		//nolint:contextcheck
		shutdownCtx, cancel := context.WithTimeout(
			context.Background(),
			s.config.ShutdownTimeout,
		)
		defer cancel()
		//nolint:contextcheck
		if err := s.Stop(shutdownCtx); err != nil {
			s.logger.Error(
				"failed to shutdown API server on context cancellation",
				"error", err,
			)
		}
	}()
	return nil
}

// Addr returns the bound listener address, or nil before Start
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop gracefully shuts down the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.httpServer = nil
	s.listener = nil
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	s.logger.Debug("shutting down API server")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown API server: %w", err)
	}
	return nil
}
