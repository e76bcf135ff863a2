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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	transitions      *prometheus.CounterVec
	amendmentsActive prometheus.Gauge
	applyFailures    prometheus.Counter
	sweeps           prometheus.Counter
}

func (e *Engine) initMetrics() {
	promautoFactory := promauto.With(e.config.PromRegistry)
	e.metrics.transitions = promautoFactory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratify_workflow_transitions_total",
			Help: "total amendment status transitions by target status",
		},
		[]string{"to"},
	)
	e.metrics.amendmentsActive = promautoFactory.NewGauge(prometheus.GaugeOpts{
		Name: "ratify_workflow_amendments_active",
		Help: "amendments created by this process that are not yet terminal",
	})
	e.metrics.applyFailures = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "ratify_workflow_diff_apply_failures_total",
		Help: "total accepted change requests whose diff could not be applied",
	})
	e.metrics.sweeps = promautoFactory.NewCounter(prometheus.CounterOpts{
		Name: "ratify_workflow_sweeps_total",
		Help: "total voting session sweeps",
	})
}
