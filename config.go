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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/civicweave/ratify/federation"
	"github.com/civicweave/ratify/voting"
	"github.com/prometheus/client_golang/prometheus"
)

// Document store backends
const (
	DocumentBackendMemory = "memory"
	DocumentBackendBadger = "badger"
)

type Config struct {
	promRegistry        prometheus.Registerer
	federationConfig    *federation.FederationConfig
	logger              *slog.Logger
	dataDir             string
	documentBackend     string
	documentDir         string
	apiListenAddress    string
	defaultMajority     voting.MajorityType
	maxHops             int
	minEffectiveSupport int
	votingPeriod        time.Duration
	sweepInterval       time.Duration
	shutdownTimeout     time.Duration
	tracing             bool
	tracingStdout       bool
}

func (c *Config) validate() error {
	switch c.documentBackend {
	case "", DocumentBackendMemory:
		if c.dataDir != "" {
			return errors.New(
				"memory document store cannot back an on-disk database: use the badger backend",
			)
		}
	case DocumentBackendBadger:
		if c.documentDir == "" && c.dataDir != "" {
			c.documentDir = filepath.Join(c.dataDir, "documents")
		}
	default:
		return fmt.Errorf("unknown document backend: %s", c.documentBackend)
	}
	if c.defaultMajority != "" {
		if _, err := voting.ParseMajorityType(string(c.defaultMajority)); err != nil {
			return err
		}
	}
	if c.maxHops < 0 {
		return fmt.Errorf("invalid max hops: %d", c.maxHops)
	}
	if c.minEffectiveSupport < 0 {
		return fmt.Errorf("invalid minimum effective support: %d", c.minEffectiveSupport)
	}
	if c.votingPeriod < 0 {
		return fmt.Errorf("invalid voting period: %s", c.votingPeriod)
	}
	return nil
}

// ConfigOptionFunc is a type that represents functions that modify the ratify config
type ConfigOptionFunc func(*Config)

// NewConfig creates a new ratify config with the specified options
func NewConfig(opts ...ConfigOptionFunc) Config {
	c := Config{
		// Default logger will throw away logs
		// We do this so we don't have to add guards around every log operation
		logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	// Apply options
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// WithDatabasePath specifies the directory of the sqlite database. An empty
// value keeps all workflow state in memory. An on-disk database needs the
// badger document store, which defaults to the documents subdirectory.
func WithDatabasePath(dataDir string) ConfigOptionFunc {
	return func(c *Config) {
		c.dataDir = dataDir
	}
}

// WithDocumentStore selects the document store backend and, for badger, its
// directory
func WithDocumentStore(backend string, dir string) ConfigOptionFunc {
	return func(c *Config) {
		c.documentBackend = backend
		c.documentDir = dir
	}
}

// WithLogger specifies the logger to use
func WithLogger(logger *slog.Logger) ConfigOptionFunc {
	return func(c *Config) {
		c.logger = logger
	}
}

// WithPrometheusRegistry specifies a prometheus.Registerer instance to add metrics to
func WithPrometheusRegistry(registry prometheus.Registerer) ConfigOptionFunc {
	return func(c *Config) {
		c.promRegistry = registry
	}
}

// WithFederationConfig specifies the groups, rights, members and meetings
// the node starts with
func WithFederationConfig(
	federationConfig *federation.FederationConfig,
) ConfigOptionFunc {
	return func(c *Config) {
		c.federationConfig = federationConfig
	}
}

// WithApiListenAddress specifies the HTTP API listen address. An empty
// value disables the API.
func WithApiListenAddress(address string) ConfigOptionFunc {
	return func(c *Config) {
		c.apiListenAddress = address
	}
}

// WithDefaultMajority specifies the majority rule used for amendment votes
// that do not name one
func WithDefaultMajority(majority voting.MajorityType) ConfigOptionFunc {
	return func(c *Config) {
		c.defaultMajority = majority
	}
}

// WithMaxHops bounds the length of planned forwarding paths
func WithMaxHops(maxHops int) ConfigOptionFunc {
	return func(c *Config) {
		c.maxHops = maxHops
	}
}

// WithMinEffectiveSupport specifies how many supporting groups must have
// confirmed the current text before an amendment is taken up at a meeting
func WithMinEffectiveSupport(count int) ConfigOptionFunc {
	return func(c *Config) {
		c.minEffectiveSupport = count
	}
}

// WithVotingPeriod specifies how long voting sessions stay open. Zero keeps
// sessions open until every eligible voter has voted.
func WithVotingPeriod(period time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.votingPeriod = period
	}
}

// WithSweepInterval specifies how often expired sessions are closed
func WithSweepInterval(interval time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.sweepInterval = interval
	}
}

// WithTracing enables tracing. By default, spans are submitted to a HTTP(s) endpoint
// using the OTEL_EXPORTER_OTLP_* env vars documented for [go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp]
func WithTracing(tracing bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracing = tracing
	}
}

// WithTracingStdout enables tracing output to stdout. This also requires tracing to enabled separately. This is mostly useful for debugging
func WithTracingStdout(stdout bool) ConfigOptionFunc {
	return func(c *Config) {
		c.tracingStdout = stdout
	}
}

// WithShutdownTimeout specifies the timeout for graceful shutdown. Default is 30 seconds
func WithShutdownTimeout(timeout time.Duration) ConfigOptionFunc {
	return func(c *Config) {
		c.shutdownTimeout = timeout
	}
}
