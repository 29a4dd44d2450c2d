/*

Warden - Lumichat Moderation Backend
Copyright (C) 2025 Lumichat Authors, https://github.com/lumichat

This program is free software: you can redistribute it and/or modify
it under the terms of the GNU Affero General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

This program is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU Affero General Public License for more details.

You should have received a copy of the GNU Affero General Public License
along with this program.  If not, see <https://www.gnu.org/licenses/>.

Warden is provided “as is” without warranty of any kind, either expressed or implied.
Use at your own risk. The maintainers shall not be liable for any damages or data loss
resulting from the use or misuse of this software.
*/

// Copyright 2025 Lumichat Authors
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics holds every collector warden exports. Everything lives
// on one dedicated registry so the /metrics route never leaks collectors
// registered by dependencies.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Rejection reasons, kept enumerable so the label cardinality stays flat.
const (
	ReasonAlreadySealed    = "already_sealed"
	ReasonAllAlreadySealed = "all_already_sealed"
	ReasonNotFound         = "not_found"
	ReasonLocalAddr        = "local_addr"
	ReasonSelfSeal         = "self_seal"
	ReasonEmptyInput       = "empty_input"

	OutcomeOK    = "ok"
	OutcomeError = "error"
	OutcomeHit   = "hit"
	OutcomeMiss  = "miss"
)

var registry = prometheus.NewRegistry()

var (
	SealsTotal = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "seal",
		Name:      "seals_total",
		Help:      "Seals applied, by namespace.",
	}, []string{"namespace"})

	SealRejections = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "seal",
		Name:      "rejections_total",
		Help:      "Seal requests turned away, by reason.",
	}, []string{"reason"})

	SealExpirations = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "seal",
		Name:      "expirations_total",
		Help:      "Seals removed by the expiry scheduler, by namespace.",
	}, []string{"namespace"})

	TokenRefreshes = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "token",
		Name:      "refreshes_total",
		Help:      "Credential refresh attempts, by outcome.",
	}, []string{"outcome"})

	EmoticonReads = promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "emoticon",
		Name:      "reads_total",
		Help:      "Emoticon gallery reads, by cache outcome.",
	}, []string{"outcome"})

	GatewayConnections = promauto.With(registry).NewCounter(prometheus.CounterOpts{
		Namespace: "warden",
		Subsystem: "gateway",
		Name:      "connections_total",
		Help:      "Websocket connections accepted.",
	})

	RequestDuration = promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "warden",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency, by route and status.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// RegisterOnlineGauge exposes the distinct connected-user count.
func RegisterOnlineGauge(count func() int) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "warden",
		Subsystem: "gateway",
		Name:      "online_users",
		Help:      "Users with at least one live socket.",
	}, func() float64 { return float64(count()) }))
}

// RegisterSealGauges exposes the active seal counts per namespace.
func RegisterSealGauges(counts func() (users int, addrs int)) {
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "warden",
		Subsystem:   "seal",
		Name:        "active",
		Help:        "Active seals.",
		ConstLabels: prometheus.Labels{"namespace": "users"},
	}, func() float64 {
		users, _ := counts()
		return float64(users)
	}))
	registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   "warden",
		Subsystem:   "seal",
		Name:        "active",
		Help:        "Active seals.",
		ConstLabels: prometheus.Labels{"namespace": "addrs"},
	}, func() float64 {
		_, addrs := counts()
		return float64(addrs)
	}))
}

func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
