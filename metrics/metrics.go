package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mrsingh-rishi/live-voice/types"
)

// Metrics contains the Prometheus metrics for the voice pipeline
type Metrics struct {
	Registry *prometheus.Registry

	// Session metrics
	SessionsStarted prometheus.Counter
	ConnectionState prometheus.Gauge
	Errors          *prometheus.CounterVec
	Interruptions   prometheus.Counter

	// Outbound metrics
	FramesForwarded prometheus.Counter
	FramesDropped   *prometheus.CounterVec

	// Playback metrics
	ChunksEnqueued prometheus.Counter
	ChunksPlayed   prometheus.Counter
	ChunksFailed   prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Transcript metrics
	TranscriptFragments prometheus.Counter
}

// Frame drop reasons
const (
	DropNotConnected = "not_connected"
	DropBufferFull   = "buffer_full"
	DropSendFailed   = "send_failed"
)

// NewMetrics creates the metrics on a private registry so that several pipelines
// (and tests) can coexist in one process.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_sessions_started_total",
			Help: "Total number of listening sessions started",
		}),
		ConnectionState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "live_voice_connection_state",
			Help: "Current connection state (0=disconnected, 1=connecting, 2=connected, 3=errored)",
		}),
		Errors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "live_voice_errors_total",
			Help: "Total number of errors by kind",
		}, []string{"kind"}),
		Interruptions: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_interruptions_total",
			Help: "Total number of interrupted signals received from the endpoint",
		}),

		FramesForwarded: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_frames_forwarded_total",
			Help: "Total number of capture frames sent to the session",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "live_voice_frames_dropped_total",
			Help: "Total number of capture frames dropped by reason",
		}, []string{"reason"}),

		ChunksEnqueued: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_chunks_enqueued_total",
			Help: "Total number of audio chunks enqueued for playback",
		}),
		ChunksPlayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_chunks_played_total",
			Help: "Total number of audio chunks played to completion",
		}),
		ChunksFailed: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_chunks_failed_total",
			Help: "Total number of audio chunks that failed to decode or play",
		}),
		QueueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "live_voice_playback_queue_depth",
			Help: "Current number of chunks waiting for playback",
		}),

		TranscriptFragments: factory.NewCounter(prometheus.CounterOpts{
			Name: "live_voice_transcript_fragments_total",
			Help: "Total number of transcript fragments received",
		}),
	}
}

// RecordConnectionState publishes the current connection state.
func (m *Metrics) RecordConnectionState(s types.ConnectionState) {
	if m == nil {
		return
	}
	m.ConnectionState.Set(float64(s))
}

// RecordError increments the error counter for kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(kind).Inc()
}

// RecordDrop increments the dropped frame counter for reason.
func (m *Metrics) RecordDrop(reason string) {
	if m == nil {
		return
	}
	m.FramesDropped.WithLabelValues(reason).Inc()
}

// RecordForward increments the forwarded frame counter.
func (m *Metrics) RecordForward() {
	if m == nil {
		return
	}
	m.FramesForwarded.Inc()
}

// RecordEnqueue records a chunk entering the playback queue.
func (m *Metrics) RecordEnqueue(depth int) {
	if m == nil {
		return
	}
	m.ChunksEnqueued.Inc()
	m.QueueDepth.Set(float64(depth))
}

// RecordPlayback records the outcome of one chunk.
func (m *Metrics) RecordPlayback(err error, depth int) {
	if m == nil {
		return
	}
	if err != nil {
		m.ChunksFailed.Inc()
	} else {
		m.ChunksPlayed.Inc()
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordQueueDepth publishes the playback queue depth.
func (m *Metrics) RecordQueueDepth(depth int) {
	if m == nil {
		return
	}
	m.QueueDepth.Set(float64(depth))
}

// RecordSessionStarted increments the started counter.
func (m *Metrics) RecordSessionStarted() {
	if m == nil {
		return
	}
	m.SessionsStarted.Inc()
}

// RecordInterruption increments the interruption counter.
func (m *Metrics) RecordInterruption() {
	if m == nil {
		return
	}
	m.Interruptions.Inc()
}

// RecordTranscript increments the transcript fragment counter.
func (m *Metrics) RecordTranscript() {
	if m == nil {
		return
	}
	m.TranscriptFragments.Inc()
}
