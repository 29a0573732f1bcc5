package monitor

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for one gistrun invocation.
// A CLI process does not serve /metrics; WriteTextfile dumps the registry
// for the node-exporter textfile collector instead.
type Metrics struct {
	Registry *prometheus.Registry

	CacheLookups    *prometheus.CounterVec
	RemoteRequests  *prometheus.CounterVec
	RemoteDuration  prometheus.Histogram
	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	ScriptSizeBytes prometheus.Histogram
}

// NewMetrics creates and registers all Prometheus metrics using a dedicated registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Registry: reg,

		CacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gistrun",
				Subsystem: "cache",
				Name:      "lookups_total",
				Help:      "Disk cache lookups by resource tag and result (hit, miss, expired, error).",
			},
			[]string{"tag", "result"},
		),

		RemoteRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gistrun",
				Subsystem: "remote",
				Name:      "requests_total",
				Help:      "HTTP requests issued by method and status code (0 for transport errors).",
			},
			[]string{"method", "code"},
		),

		RemoteDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gistrun",
				Subsystem: "remote",
				Name:      "request_duration_seconds",
				Help:      "Duration of HTTP requests in seconds.",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
			},
		),

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "gistrun",
				Name:      "runs_total",
				Help:      "Script executions by exit code.",
			},
			[]string{"exit_code"},
		),

		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gistrun",
				Name:      "run_duration_seconds",
				Help:      "Wall time of script executions in seconds.",
				Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 60, 300},
			},
		),

		ScriptSizeBytes: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "gistrun",
				Name:      "script_size_bytes",
				Help:      "Size of executed scripts in bytes.",
				Buckets:   prometheus.ExponentialBuckets(100, 4, 8),
			},
		),
	}

	reg.MustRegister(
		m.CacheLookups,
		m.RemoteRequests,
		m.RemoteDuration,
		m.RunsTotal,
		m.RunDuration,
		m.ScriptSizeBytes,
	)

	return m
}

// RecordCacheLookup counts one cache lookup. Safe on a nil receiver.
func (m *Metrics) RecordCacheLookup(tag, result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(tag, result).Inc()
}

// RecordRequest records a completed (or failed, status 0) HTTP request.
func (m *Metrics) RecordRequest(method string, status int, durationSec float64) {
	if m == nil {
		return
	}
	m.RemoteRequests.WithLabelValues(method, strconv.Itoa(status)).Inc()
	m.RemoteDuration.Observe(durationSec)
}

// RecordRun records a finished script execution.
func (m *Metrics) RecordRun(exitCode, scriptBytes int, durationSec float64) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(strconv.Itoa(exitCode)).Inc()
	m.RunDuration.Observe(durationSec)
	m.ScriptSizeBytes.Observe(float64(scriptBytes))
}

// WriteTextfile writes the registry in text exposition format to path.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
