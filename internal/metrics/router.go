// Copyright (C) 2025 sage-x-project
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

// SPDX-License-Identifier: LGPL-3.0-or-later

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RouterForwards tracks envelopes forwarded by the router.
	RouterForwards = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "forwards_total",
			Help:      "Total number of envelopes forwarded",
		},
		[]string{"result"}, // delivered, relayed, dropped_duplicate, dropped_ttl, dropped_loop, dropped_no_route
	)

	// RouterHopLatency tracks per-hop forwarding latency.
	RouterHopLatency = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "router",
			Name:      "hop_latency_seconds",
			Help:      "Time spent selecting a next hop and handing off an envelope",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		},
	)

	// TrustLookups tracks trust store peer lookups.
	TrustLookups = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "lookups_total",
			Help:      "Total number of trust store peer lookups",
		},
		[]string{"status"}, // hit, miss, revoked
	)

	// TrustUpdatesApplied tracks signed trust-update application.
	TrustUpdatesApplied = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trust",
			Name:      "updates_applied_total",
			Help:      "Total number of trust updates applied to the store",
		},
		[]string{"kind", "status"}, // ADD/REMOVE/SET_LEVEL, applied/rejected/conflict
	)

	// ModulesRunning tracks the number of supervised modules currently running.
	ModulesRunning = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "modules_running",
			Help:      "Number of supervised modules currently in the running state",
		},
	)

	// ModuleRestarts tracks supervisor-driven module restarts.
	ModuleRestarts = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "supervisor",
			Name:      "module_restarts_total",
			Help:      "Total number of module restarts performed by the supervisor",
		},
		[]string{"module", "reason"},
	)
)
