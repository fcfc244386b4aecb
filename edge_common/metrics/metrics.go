// Package metrics declares the prometheus collectors the edge daemon
// exposes on its /metrics endpoint.
//
// Grounded on ap.httpd.go's package-level prometheus.NewCounterVec /
// promauto-style registration pattern.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// OffloadDecisionSeconds observes how long one offloading-plan
// computation took.
var OffloadDecisionSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
	Name: "edge_offload_decision_seconds",
	Help: "Time spent computing an offloading split decision.",
})

// SuffixExecSeconds observes how long one suffix execution (all edge-side
// layers for a single inference) took.
var SuffixExecSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name: "edge_suffix_exec_seconds",
	Help: "Time spent running the edge-side suffix of a model for one inference.",
}, []string{"model"})

// VarianceFlagsTotal counts how many times a layer's timing was flagged
// as unstable by the variance detector, by side.
var VarianceFlagsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "edge_variance_flags_total",
	Help: "Count of layer timing samples that exceeded the variance threshold.",
}, []string{"side"})

// DroppedReportsTotal counts device reports and diagnostic frames that
// were rejected or failed, by reason: bad_wire_format, bad_frame,
// unknown_client, queue_full, runtime_error.
var DroppedReportsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "edge_dropped_reports_total",
	Help: "Count of device reports and frames dropped, by reason.",
}, []string{"reason"})

// RegisteredClients reports the current number of distinct clients the
// registry has ever seen.
var RegisteredClients = prometheus.NewGauge(prometheus.GaugeOpts{
	Name: "edge_registered_clients",
	Help: "Number of distinct client devices registered with this edge.",
})

// MustRegister registers every collector in this package with reg. Call
// once at startup; panics on duplicate registration, matching
// prometheus.MustRegister's own contract.
func MustRegister(reg prometheus.Registerer) {
	reg.MustRegister(
		OffloadDecisionSeconds,
		SuffixExecSeconds,
		VarianceFlagsTotal,
		DroppedReportsTotal,
		RegisteredClients,
	)
}
