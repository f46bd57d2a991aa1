package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the recognition service
type Metrics struct {
	// Session metrics
	SessionsStarted prometheus.Counter
	SessionsClosed  *prometheus.CounterVec
	SessionDuration prometheus.Histogram
	Recording       prometheus.Gauge

	// Frame metrics
	FramesSent         *prometheus.CounterVec
	FramesDropped      prometheus.Counter
	AudioBytesSent     prometheus.Counter
	ResponsesMalformed prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all metrics on reg. A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "suara_sessions_started_total",
			Help: "Total number of recognition sessions started",
		}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "suara_sessions_closed_total",
			Help: "Total number of recognition sessions closed, by outcome",
		}, []string{"outcome"}),
		SessionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "suara_session_duration_seconds",
			Help:    "Wall-clock duration of recognition sessions",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 10), // 0.5s to ~4 minutes
		}),
		Recording: factory.NewGauge(prometheus.GaugeOpts{
			Name: "suara_recording",
			Help: "1 while a recording is active",
		}),

		FramesSent: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "suara_frames_sent_total",
			Help: "Total number of audio frames sent to the recognizer, by frame status",
		}, []string{"status"}),
		FramesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "suara_frames_dropped_silent_total",
			Help: "Total number of silent frames consumed without being sent",
		}),
		AudioBytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "suara_audio_bytes_sent_total",
			Help: "Total number of raw audio bytes sent to the recognizer",
		}),
		ResponsesMalformed: factory.NewCounter(prometheus.CounterOpts{
			Name: "suara_responses_malformed_total",
			Help: "Total number of recognizer responses that could not be decoded",
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "suara_http_requests_total",
			Help: "Total number of control API requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "suara_http_request_duration_seconds",
			Help:    "Duration of control API requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordSessionStarted increments the sessions started counter and raises the recording gauge
func (m *Metrics) RecordSessionStarted() {
	m.SessionsStarted.Inc()
	m.Recording.Set(1)
}

// RecordRecordingStopped lowers the recording gauge
func (m *Metrics) RecordRecordingStopped() {
	m.Recording.Set(0)
}

// RecordSessionClosed records a closed session and its duration
func (m *Metrics) RecordSessionClosed(outcome string, durationSeconds float64) {
	m.SessionsClosed.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
	m.Recording.Set(0)
}

// RecordFrameSent records one transmitted frame
func (m *Metrics) RecordFrameSent(status string, payloadBytes int) {
	m.FramesSent.WithLabelValues(status).Inc()
	m.AudioBytesSent.Add(float64(payloadBytes))
}

// RecordFrameDropped increments the silent frame counter
func (m *Metrics) RecordFrameDropped() {
	m.FramesDropped.Inc()
}

// RecordMalformedResponse increments the malformed response counter
func (m *Metrics) RecordMalformedResponse() {
	m.ResponsesMalformed.Inc()
}

// RecordHTTPRequest records a control API request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
