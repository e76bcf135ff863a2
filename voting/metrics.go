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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	sessionsOpened    prometheus.Counter
	sessionsCompleted *prometheus.CounterVec
	sessionsOpen      prometheus.Gauge
	votesCast         prometheus.Counter
	votesRejected     *prometheus.CounterVec
}

func (e *Engine) initMetrics() {
	promautoFactory := promauto.With(e.config.PromRegistry)
	e.metrics.sessionsOpened = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "ratify_voting_sessions_opened_total",
		Help: "total voting sessions opened",
	})
	e.metrics.sessionsCompleted = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratify_voting_sessions_completed_total",
			Help: "total voting sessions completed by outcome",
		},
		[]string{"outcome"},
	)
	e.metrics.sessionsOpen = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "ratify_voting_sessions_open",
		Help: "current pending or active voting sessions",
	})
	e.metrics.votesCast = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "ratify_voting_votes_cast_total",
		Help: "total votes recorded",
	})
	e.metrics.votesRejected = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratify_voting_votes_rejected_total",
			Help: "total vote casts refused by reason",
		},
		[]string{"reason"},
	)
}
