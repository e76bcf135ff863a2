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

package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/civicweave/ratify/voting"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "ratify.config"

const (
	DefaultShutdownTimeout = "30s"
	DefaultSweepInterval   = "30s"
	DefaultDocumentBackend = "badger"
)

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

type Config struct {
	DatabasePath        string `yaml:"databasePath"        split_words:"true"`
	DocumentBackend     string `yaml:"documentBackend"     split_words:"true"`
	DocumentPath        string `yaml:"documentPath"        split_words:"true"`
	Federation          string `yaml:"federation"`
	BindAddr            string `yaml:"bindAddr"            split_words:"true"`
	ApiPort             uint   `yaml:"apiPort"             split_words:"true"`
	MetricsPort         uint   `yaml:"metricsPort"         split_words:"true"`
	SweepInterval       string `yaml:"sweepInterval"       split_words:"true"`
	VotingPeriod        string `yaml:"votingPeriod"        split_words:"true"`
	ShutdownTimeout     string `yaml:"shutdownTimeout"     split_words:"true"`
	DefaultMajority     string `yaml:"defaultMajority"     split_words:"true"`
	MaxHops             int    `yaml:"maxHops"             split_words:"true"`
	MinEffectiveSupport int    `yaml:"minEffectiveSupport" split_words:"true"`
	Tracing             bool   `yaml:"tracing"`
	TracingStdout       bool   `yaml:"tracingStdout"       split_words:"true"`
}

// Validate checks the values that cannot be checked by parsing alone
func (c *Config) Validate() error {
	var errs []error
	switch c.DocumentBackend {
	case "memory", "badger":
	default:
		errs = append(errs, fmt.Errorf("invalid documentBackend: %q (must be 'memory' or 'badger')", c.DocumentBackend))
	}
	if c.DocumentBackend == "badger" && c.DocumentPath == "" {
		errs = append(errs, errors.New("documentPath is required for the badger document backend"))
	}
	// amendments on disk refer to document versions that must survive too
	if c.DocumentBackend == "memory" && c.DatabasePath != "" {
		errs = append(errs, errors.New("documentBackend memory requires an empty databasePath"))
	}
	if c.DefaultMajority != "" {
		if _, err := voting.ParseMajorityType(c.DefaultMajority); err != nil {
			errs = append(errs, err)
		}
	}
	for name, val := range map[string]string{
		"sweepInterval":   c.SweepInterval,
		"votingPeriod":    c.VotingPeriod,
		"shutdownTimeout": c.ShutdownTimeout,
	} {
		if _, err := c.duration(val); err != nil {
			errs = append(errs, fmt.Errorf("invalid %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func (c *Config) duration(val string) (time.Duration, error) {
	if val == "" {
		return 0, nil
	}
	return time.ParseDuration(val)
}

// SweepIntervalDuration returns the parsed sweep interval
func (c *Config) SweepIntervalDuration() time.Duration {
	d, _ := c.duration(c.SweepInterval)
	return d
}

// VotingPeriodDuration returns the parsed voting period, zero when unset
func (c *Config) VotingPeriodDuration() time.Duration {
	d, _ := c.duration(c.VotingPeriod)
	return d
}

// ShutdownTimeoutDuration returns the parsed shutdown timeout
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := c.duration(c.ShutdownTimeout)
	return d
}

func defaultConfig() *Config {
	return &Config{
		DatabasePath:    ".ratify",
		DocumentBackend: DefaultDocumentBackend,
		BindAddr:        "0.0.0.0",
		ApiPort:         8080,
		MetricsPort:     12799,
		SweepInterval:   DefaultSweepInterval,
		ShutdownTimeout: DefaultShutdownTimeout,
		DefaultMajority: string(voting.MajoritySimple),
	}
}

var globalConfig = defaultConfig()

// LoadConfig overlays the config file and then the RATIFY_* environment onto
// the defaults. Without an explicit file, ~/.ratify/ratify.yaml and
// /etc/ratify/ratify.yaml are tried in that order.
func LoadConfig(configFile string) (*Config, error) {
	cfg := defaultConfig()
	if configFile == "" {
		// Check for config file in this path: ~/.ratify/ratify.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".ratify", "ratify.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/ratify/ratify.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/ratify/ratify.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Process environment variables
	if err := envconfig.Process("ratify", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}
	if cfg.DocumentBackend == "badger" && cfg.DocumentPath == "" && cfg.DatabasePath != "" {
		cfg.DocumentPath = filepath.Join(cfg.DatabasePath, "documents")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	globalConfig = cfg
	return globalConfig, nil
}

func GetConfig() *Config {
	return globalConfig
}
