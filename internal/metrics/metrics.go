// Package metrics exports ingestion and API counters to Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the collectors of one process. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	processed     *prometheus.CounterVec
	passErrors    *prometheus.CounterVec
	restarts      *prometheus.CounterVec
	quarantined   *prometheus.CounterVec
	sinkFailures  *prometheus.CounterVec
	watermark     *prometheus.GaugeVec
	lastProgress  *prometheus.GaugeVec
	saveDuration  *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDurations *prometheus.HistogramVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		processed: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ponziland_ingest_records_total", Help: "Records decoded and saved"},
			[]string{"loop", "kind", "origin"},
		),
		passErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ponziland_ingest_pass_errors_total", Help: "Ingestion passes ended by an error"},
			[]string{"loop", "stage"},
		),
		restarts: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ponziland_ingest_pass_restarts_total", Help: "Ingestion passes started after a cooldown"},
			[]string{"loop"},
		),
		quarantined: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ponziland_ingest_quarantined_total", Help: "Records set aside after a decode failure"},
			[]string{"loop"},
		),
		sinkFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "ponziland_sink_failures_total", Help: "Post-save deliveries that failed"},
			[]string{"sink"},
		),
		watermark: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "ponziland_ingest_watermark_seconds", Help: "Watermark a pass started from"},
			[]string{"loop"},
		),
		lastProgress: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{Name: "ponziland_ingest_last_progress_seconds", Help: "Unix time of the last saved record"},
			[]string{"loop"},
		),
		saveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "ponziland_ingest_save_duration_seconds", Help: "Save latency", Buckets: prometheus.DefBuckets},
			[]string{"loop"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{Name: "http_requests_total", Help: "HTTP requests"},
			[]string{"method", "path", "status"},
		),
		httpDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "Request latency", Buckets: prometheus.DefBuckets},
			[]string{"method", "path"},
		),
	}
	reg.MustRegister(
		m.processed, m.passErrors, m.restarts, m.quarantined, m.sinkFailures,
		m.watermark, m.lastProgress, m.saveDuration, m.httpRequests, m.httpDurations,
	)
	return m
}

func (m *Metrics) RecordProcessed(loop, kind, origin string, took time.Duration) {
	if m == nil {
		return
	}
	m.processed.WithLabelValues(loop, kind, origin).Inc()
	m.saveDuration.WithLabelValues(loop).Observe(took.Seconds())
	m.lastProgress.WithLabelValues(loop).SetToCurrentTime()
}

// RecordPassError counts a pass that ended on an error in stage
// ("watermark", "source", "decode" or "persist").
func (m *Metrics) RecordPassError(loop, stage string) {
	if m == nil {
		return
	}
	m.passErrors.WithLabelValues(loop, stage).Inc()
}

func (m *Metrics) RecordRestart(loop string) {
	if m == nil {
		return
	}
	m.restarts.WithLabelValues(loop).Inc()
}

func (m *Metrics) RecordQuarantined(loop string) {
	if m == nil {
		return
	}
	m.quarantined.WithLabelValues(loop).Inc()
}

func (m *Metrics) RecordSinkFailure(sink string) {
	if m == nil {
		return
	}
	m.sinkFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) SetWatermark(loop string, at time.Time) {
	if m == nil {
		return
	}
	m.watermark.WithLabelValues(loop).Set(float64(at.Unix()))
}

func (m *Metrics) RecordHTTP(method, path string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, path, statusClass(status)).Inc()
	m.httpDurations.WithLabelValues(method, path).Observe(took.Seconds())
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	case status >= 300:
		return "3xx"
	}
	return "2xx"
}
