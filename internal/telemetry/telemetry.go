// Package telemetry holds the Prometheus collectors for script runs.
package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sqlground"

// RunBuckets covers interactive scripts from sub-millisecond lookups to long
// schema changes.
var RunBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

var (
	registry = prometheus.NewRegistry()

	// ScriptRunsTotal counts script runs by mode and result (ok, validation,
	// execution, session).
	ScriptRunsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "script_runs_total",
		Help:      "Script runs by mode and result.",
	}, []string{"mode", "result"})

	// StatementsTotal counts statements that produced an outcome, by mode.
	StatementsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "statements_executed_total",
		Help:      "Statements executed successfully by mode.",
	}, []string{"mode"})

	// ScriptDurationSeconds measures run latency by mode.
	ScriptDurationSeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "script_duration_seconds",
		Help:      "Script run latency by mode.",
		Buckets:   RunBuckets,
	}, []string{"mode"})

	// RollbacksTotal counts DML rollbacks by result (ok, failed).
	RollbacksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "rollbacks_total",
		Help:      "Transaction rollbacks after a failed data mutation script.",
	}, []string{"result"})
)

func init() {
	registry.MustRegister(
		ScriptRunsTotal,
		StatementsTotal,
		ScriptDurationSeconds,
		RollbacksTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveRun records one finished script run.
func ObserveRun(mode, result string, statements int, d time.Duration) {
	ScriptRunsTotal.WithLabelValues(mode, result).Inc()
	StatementsTotal.WithLabelValues(mode).Add(float64(statements))
	ScriptDurationSeconds.WithLabelValues(mode).Observe(d.Seconds())
}

// Registry returns the registry holding every collector of this package.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
