package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "tally"

type moduleMetrics struct {
	recordsWritten *prometheus.CounterVec
	recordErrors   *prometheus.CounterVec
	storedSessions prometheus.Gauge
	openRejected   *prometheus.CounterVec

	stagedFiles   prometheus.Gauge
	stageDuration prometheus.Histogram
	sessionsFold  prometheus.Counter

	uploadsTotal   *prometheus.CounterVec
	uploadDuration prometheus.Histogram
	uploadBytes    prometheus.Histogram
	uploadInFlight prometheus.Gauge

	sequence prometheus.Gauge
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			recordsWritten: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "records_written_total",
					Help:      "Records appended to session files by record type.",
				},
				[]string{"type"},
			),
			recordErrors: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "record_errors_total",
					Help:      "Failed record appends by record type.",
				},
				[]string{"type"},
			),
			storedSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "stored_sessions",
					Help:      "Session files waiting to be staged.",
				},
			),
			openRejected: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "session_open_rejected_total",
					Help:      "Rejected session opens by reason.",
				},
				[]string{"reason"},
			),
			stagedFiles: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "staged_files",
					Help:      "Staging files waiting for a successful upload.",
				},
			),
			stageDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "stage_duration_seconds",
					Help:      "Time spent folding session files into a staging file.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			sessionsFold: prometheus.NewCounter(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "sessions_staged_total",
					Help:      "Session files folded into staging files.",
				},
			),
			uploadsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Namespace: namespace,
					Name:      "uploads_total",
					Help:      "Upload attempts by status.",
				},
				[]string{"status"},
			),
			uploadDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "upload_duration_seconds",
					Help:      "Upload attempt duration in seconds.",
					Buckets:   prometheus.DefBuckets,
				},
			),
			uploadBytes: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Namespace: namespace,
					Name:      "upload_payload_bytes",
					Help:      "Compressed upload payload size in bytes.",
					Buckets:   prometheus.ExponentialBuckets(256, 4, 8),
				},
			),
			uploadInFlight: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "upload_in_flight",
					Help:      "1 while an upload holds the single-flight guard.",
				},
			),
			sequence: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Namespace: namespace,
					Name:      "blob_sequence",
					Help:      "Last blob sequence number emitted in a header.",
				},
			),
		}

		prometheus.MustRegister(
			m.recordsWritten,
			m.recordErrors,
			m.storedSessions,
			m.openRejected,
			m.stagedFiles,
			m.stageDuration,
			m.sessionsFold,
			m.uploadsTotal,
			m.uploadDuration,
			m.uploadBytes,
			m.uploadInFlight,
			m.sequence,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordWritten(recordType string, err error) {
	m := getMetrics()
	if err != nil {
		m.recordErrors.WithLabelValues(recordType).Inc()
		return
	}
	m.recordsWritten.WithLabelValues(recordType).Inc()
}

func SetStoredSessions(count int) {
	getMetrics().storedSessions.Set(float64(count))
}

func RecordOpenRejected(reason string) {
	getMetrics().openRejected.WithLabelValues(reason).Inc()
}

func SetStagedFiles(count int) {
	getMetrics().stagedFiles.Set(float64(count))
}

func RecordStage(duration time.Duration, sessions int) {
	m := getMetrics()
	m.stageDuration.Observe(duration.Seconds())
	m.sessionsFold.Add(float64(sessions))
}

// RecordUpload records a finished upload attempt. status is one of
// "success", "failure" or "empty".
func RecordUpload(status string, duration time.Duration, payloadBytes int) {
	m := getMetrics()
	m.uploadsTotal.WithLabelValues(status).Inc()
	m.uploadDuration.Observe(duration.Seconds())
	if payloadBytes > 0 {
		m.uploadBytes.Observe(float64(payloadBytes))
	}
}

func RecordUploadSkipped() {
	getMetrics().uploadsTotal.WithLabelValues("skipped").Inc()
}

func SetUploadInFlight(active bool) {
	v := 0.0
	if active {
		v = 1
	}
	getMetrics().uploadInFlight.Set(v)
}

func SetSequence(seq int64) {
	getMetrics().sequence.Set(float64(seq))
}
