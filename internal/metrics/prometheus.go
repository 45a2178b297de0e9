package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the voice chat client
type Metrics struct {
	// Transmit path metrics
	FramesSent     prometheus.Counter
	BytesSent      prometheus.Counter
	SilenceWindows prometheus.Counter
	WriteFailures  prometheus.Counter

	// Receive path metrics
	FramesReceived prometheus.Counter
	BytesReceived  prometheus.Counter
	EmptyReads     prometheus.Counter
	ShortFrames    prometheus.Counter

	// Real-time path metrics
	CaptureDrops    prometheus.Counter
	PlaybackSilence prometheus.Counter
	CallbackErrors  prometheus.Counter

	// Session metrics
	WindowsProcessed prometheus.Counter
	WindowDuration   prometheus.Histogram
	SessionDuration  prometheus.Histogram

	// Monitoring HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Transmit path metrics
		FramesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_frames_sent_total",
			Help: "Total number of audio frames written to the transport",
		}),
		BytesSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_bytes_sent_total",
			Help: "Total number of audio bytes written to the transport",
		}),
		SilenceWindows: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_silence_windows_total",
			Help: "Total number of capture windows collapsed to silence and not sent",
		}),
		WriteFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_write_failures_total",
			Help: "Total number of non-fatal transport write failures",
		}),

		// Receive path metrics
		FramesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_frames_received_total",
			Help: "Total number of audio frames decoded from the transport",
		}),
		BytesReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_bytes_received_total",
			Help: "Total number of audio bytes read from the transport",
		}),
		EmptyReads: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_empty_reads_total",
			Help: "Total number of windows with no data available from the peer",
		}),
		ShortFrames: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_short_frames_total",
			Help: "Total number of frames received with fewer bytes than a full window",
		}),

		// Real-time path metrics
		CaptureDrops: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_capture_drops_total",
			Help: "Total number of capture callback invocations that dropped samples",
		}),
		PlaybackSilence: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_playback_silence_total",
			Help: "Total number of playback callback invocations padded with silence",
		}),
		CallbackErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_callback_errors_total",
			Help: "Total number of non-fatal errors reported by audio callbacks",
		}),

		// Session metrics
		WindowsProcessed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "voicechat_windows_processed_total",
			Help: "Total number of session loop windows completed",
		}),
		WindowDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicechat_window_processing_duration_seconds",
			Help:    "Time spent in the non-sleep part of each session window",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 0.1ms to ~0.4s
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "voicechat_session_duration_seconds",
			Help:    "Duration of completed voice sessions",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~1 hour
		}),

		// Monitoring HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "voicechat_http_requests_total",
			Help: "Total number of monitoring HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "voicechat_http_request_duration_seconds",
			Help:    "Duration of monitoring HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
	}
}

// RecordFrameSent records a frame written to the transport
func (m *Metrics) RecordFrameSent(bytes int) {
	m.FramesSent.Inc()
	m.BytesSent.Add(float64(bytes))
}

// RecordFrameReceived records a frame decoded from the transport
func (m *Metrics) RecordFrameReceived(bytes int, short bool) {
	m.FramesReceived.Inc()
	m.BytesReceived.Add(float64(bytes))
	if short {
		m.ShortFrames.Inc()
	}
}

// RecordWindow records one completed session loop window
func (m *Metrics) RecordWindow(processingSeconds float64) {
	m.WindowsProcessed.Inc()
	m.WindowDuration.Observe(processingSeconds)
}

// RecordSessionEnd records a completed session
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records a monitoring HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}
