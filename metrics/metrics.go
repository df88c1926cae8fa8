// Copyright 2025 The packetd Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics instruments the shunt runtime, pads, and connectors
// with Prometheus collectors. It exposes plain package-level functions
// rather than a handle threaded through the call graph, the same shape
// controller/metrics.go uses: shunt/pad/connector call these directly
// from their hot paths without needing a reference to anything this
// package owns.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/flowd/flow/common"
)

var (
	uptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "uptime",
			Help:      "Process uptime in seconds",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "git_hash", "build_time"},
	)

	activeShunts = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "active_shunts",
			Help:      "Number of shunts currently open, by kind",
		},
		[]string{"kind"},
	)

	shuntEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "shunt_events_total",
			Help:      "Shunt lifecycle events observed, by kind and event",
		},
		[]string{"kind", "event"},
	)

	packetsDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "packets_dispatched_total",
			Help:      "Packets handed to a shunt's read or write callback, by kind and direction",
		},
		[]string{"kind", "direction"},
	)

	blockedPads = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "blocked_pads",
			Help:      "Number of pads currently in the blocked state, by pad kind",
		},
		[]string{"pad"},
	)

	connectorState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: common.App,
			Name:      "connector_state",
			Help:      "Connector connectivity state (1 for the current state, 0 otherwise), by connector name and state",
		},
		[]string{"connector", "state"},
	)

	tlsHandshakes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: common.App,
			Name:      "tls_handshakes_total",
			Help:      "TLS protocol element handshake attempts, by outcome",
		},
		[]string{"outcome"},
	)
)

// SetBuildInfo records the running binary's version stamp once at
// startup.
func SetBuildInfo(version, gitHash, buildTime string) {
	buildInfo.Reset()
	buildInfo.WithLabelValues(version, gitHash, buildTime).Set(1)
}

// SetUptime reports seconds elapsed since started, called by cmd's
// /metrics handler on each scrape.
func SetUptime(started time.Time) {
	uptime.Set(time.Since(started).Seconds())
}

// ShuntOpened records a shunt of kind coming into existence.
func ShuntOpened(kind string) {
	activeShunts.WithLabelValues(kind).Inc()
	shuntEvents.WithLabelValues(kind, "opened").Inc()
}

// ShuntClosed records a shunt of kind being destroyed.
func ShuntClosed(kind string) {
	activeShunts.WithLabelValues(kind).Dec()
	shuntEvents.WithLabelValues(kind, "closed").Inc()
}

// ShuntDenied records a shunt of kind failing to open.
func ShuntDenied(kind string) {
	shuntEvents.WithLabelValues(kind, "denied").Inc()
}

// PacketDispatched records one packet crossing a shunt's read or write
// callback.
func PacketDispatched(kind, direction string) {
	packetsDispatched.WithLabelValues(kind, direction).Inc()
}

// PadBlocked/PadUnblocked track how many pads of a given kind
// ("input"/"output") are currently blocked.
func PadBlocked(kind string) {
	blockedPads.WithLabelValues(kind).Inc()
}

func PadUnblocked(kind string) {
	blockedPads.WithLabelValues(kind).Dec()
}

// ConnectorStateChanged records name's connectivity transition, zeroing
// the previous state's series and setting the new one.
func ConnectorStateChanged(name, oldState, newState string) {
	if oldState != "" {
		connectorState.WithLabelValues(name, oldState).Set(0)
	}
	connectorState.WithLabelValues(name, newState).Set(1)
}

// TLSHandshakeSucceeded/TLSHandshakeFailed record a tlsproto.TlsProto
// outcome.
func TLSHandshakeSucceeded() {
	tlsHandshakes.WithLabelValues("success").Inc()
}

func TLSHandshakeFailed() {
	tlsHandshakes.WithLabelValues("failure").Inc()
}
