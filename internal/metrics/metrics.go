// Package metrics exposes Prometheus collectors for sync cycles.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// Cycles counts sync cycles by result label. Dropped and idle ticks
	// are counted as "skipped".
	Cycles = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitefence_cycles_total",
			Help: "Total enforcement sync cycles by result",
		},
		[]string{"result"},
	)
	CycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sitefence_cycle_duration_seconds",
			Help:    "Enforcement sync cycle duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
	ChannelFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitefence_resolver_channel_failures_total",
			Help: "Total resolution failures by channel",
		},
		[]string{"channel"},
	)
	BlockedEntries = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sitefence_blocked_entries",
			Help: "Entries in the installed anchor tables by family",
		},
		[]string{"family"},
	)
	PrivilegedRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sitefence_privileged_runs_total",
			Help: "Total privileged command invocations by transport",
		},
		[]string{"transport"},
	)
)

func init() {
	prometheus.MustRegister(Cycles, CycleDuration, ChannelFailures, BlockedEntries, PrivilegedRuns)
}
