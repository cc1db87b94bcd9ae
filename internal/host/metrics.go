// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 StockClerk Contributors

package host

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome constants for pipeline metrics.
const (
	OutcomeDelivered  = "delivered"
	OutcomeUnobserved = "unobserved"
	OutcomeDropped    = "dropped"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
)

// Publications counts message publications by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var Publications = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stockclerk_publications_total",
		Help: "Total number of message publications by outcome",
	},
	[]string{"outcome"},
)

// ErrorReports counts error pipeline runs by outcome.
// Use RegisterMetrics to register this with a Prometheus registry.
var ErrorReports = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stockclerk_error_reports_total",
		Help: "Total number of error pipeline runs by outcome",
	},
	[]string{"outcome"},
)

// StageDuration observes how long each plugin hook took.
// Use RegisterMetrics to register this with a Prometheus registry.
var StageDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "stockclerk_stage_duration_seconds",
		Help:    "Plugin hook duration in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"plugin", "hook"},
)

// PluginErrors counts hook failures (errors and panics) by plugin.
// Use RegisterMetrics to register this with a Prometheus registry.
var PluginErrors = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "stockclerk_plugin_errors_total",
		Help: "Total number of plugin hook failures",
	},
	[]string{"plugin", "hook"},
)

// RegisterMetrics registers host metrics with the given Prometheus registry.
// Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(Publications)
	reg.MustRegister(ErrorReports)
	reg.MustRegister(StageDuration)
	reg.MustRegister(PluginErrors)
}

func recordPublication(outcome string) {
	Publications.WithLabelValues(outcome).Inc()
}

func recordErrorReport(outcome string) {
	ErrorReports.WithLabelValues(outcome).Inc()
}

func recordStage(plugin, hook string, started time.Time) {
	StageDuration.WithLabelValues(plugin, hook).Observe(time.Since(started).Seconds())
}

func recordPluginError(plugin, hook string) {
	PluginErrors.WithLabelValues(plugin, hook).Inc()
}
