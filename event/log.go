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

package event

import (
	"context"
	"log/slog"
)

// LogSubscriber writes every delivered event to a structured logger. It is
// used as the audit trail of domain events.
type LogSubscriber struct {
	logger *slog.Logger
	level  slog.Level
}

func NewLogSubscriber(logger *slog.Logger, level slog.Level) *LogSubscriber {
	return &LogSubscriber{
		logger: logger.With("component", "audit"),
		level:  level,
	}
}

func (l *LogSubscriber) Deliver(evt Event) error {
	l.logger.Log(
		context.Background(),
		l.level,
		"domain event",
		"type", evt.Type,
		"timestamp", evt.Timestamp,
		"data", evt.Data,
	)
	return nil
}

func (l *LogSubscriber) Close() {}
