// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/ttbt-io/wicketkeeper/backend/scoring"
)

// Metrics holds the server's Prometheus collectors. Each instance has its
// own registry so several servers can run in one process. A nil *Metrics
// records nothing.
type Metrics struct {
	registry *prometheus.Registry

	actions    *prometheus.CounterVec
	rejections *prometheus.CounterVec
	events     *prometheus.CounterVec
	hubLatency *prometheus.HistogramVec
	activeHubs prometheus.Gauge
	wsClients  prometheus.Gauge
}

// NewMetrics creates and registers the collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wicketkeeper",
			Name:      "actions_total",
			Help:      "Match actions processed, by type and result.",
		}, []string{"type", "result"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wicketkeeper",
			Name:      "rejections_total",
			Help:      "Actions refused by the scoring rules, by kind and code.",
		}, []string{"kind", "code"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "wicketkeeper",
			Name:      "events_total",
			Help:      "Match events raised, by type.",
		}, []string{"type"}),
		hubLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "wicketkeeper",
			Name:      "hub_request_seconds",
			Help:      "Time a match hub spent on one request.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
		}, []string{"request"}),
		activeHubs: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wicketkeeper",
			Name:      "active_hubs",
			Help:      "Match hubs currently running.",
		}),
		wsClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "wicketkeeper",
			Name:      "websocket_clients",
			Help:      "Connected live-feed clients.",
		}),
	}
	m.registry.MustRegister(
		m.actions, m.rejections, m.events, m.hubLatency, m.activeHubs, m.wsClients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func rejectionKind(err error) string {
	switch {
	case errors.Is(err, scoring.ErrValidation):
		return "validation"
	case errors.Is(err, scoring.ErrConsistency):
		return "consistency"
	case errors.Is(err, scoring.ErrState):
		return "state"
	case errors.Is(err, ErrBadRequest):
		return "request"
	}
	return "internal"
}

// ObserveAction counts one processed action.
func (m *Metrics) ObserveAction(actionType string, changed bool, err error) {
	if m == nil {
		return
	}
	switch {
	case err != nil:
		m.actions.WithLabelValues(actionType, "rejected").Inc()
		m.rejections.WithLabelValues(rejectionKind(err), scoring.CodeOf(err)).Inc()
	case !changed:
		m.actions.WithLabelValues(actionType, "duplicate").Inc()
	default:
		m.actions.WithLabelValues(actionType, "accepted").Inc()
	}
}

// ObserveEvents counts raised events.
func (m *Metrics) ObserveEvents(events []scoring.Event) {
	if m == nil {
		return
	}
	for _, e := range events {
		m.events.WithLabelValues(string(e.Type)).Inc()
	}
}

// ObserveHubRequest records how long a hub spent on a request.
func (m *Metrics) ObserveHubRequest(reqType string, d time.Duration) {
	if m == nil {
		return
	}
	m.hubLatency.WithLabelValues(reqType).Observe(d.Seconds())
}

func (m *Metrics) hubStarted() {
	if m != nil {
		m.activeHubs.Inc()
	}
}

func (m *Metrics) hubStopped() {
	if m != nil {
		m.activeHubs.Dec()
	}
}

func (m *Metrics) clientConnected() {
	if m != nil {
		m.wsClients.Inc()
	}
}

func (m *Metrics) clientDisconnected() {
	if m != nil {
		m.wsClients.Dec()
	}
}
