package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CallsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadagent_calls_started_total",
		Help: "Media stream sessions opened.",
	})

	CallsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadagent_calls_completed_total",
		Help: "Media stream sessions that reached a stop event.",
	})

	BridgeEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadagent_bridge_events_total",
		Help: "Telephony and AI events handled by the bridge.",
	}, []string{"source", "event"})

	EmailsExtracted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadagent_emails_extracted_total",
		Help: "Email addresses extracted from assistant turns.",
	})

	SilencePrompts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "leadagent_silence_prompts_total",
		Help: "Check-in prompts sent after caller silence.",
	})

	AudioBytes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadagent_audio_bytes_total",
		Help: "Raw audio bytes accumulated per direction.",
	}, []string{"direction"})

	DialAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadagent_dial_attempts_total",
		Help: "Outbound dial attempts by result.",
	}, []string{"result"})

	Transcriptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "leadagent_transcriptions_total",
		Help: "Post-call transcription attempts by result.",
	}, []string{"result"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "leadagent_http_request_duration_seconds",
		Help:    "HTTP handler latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method", "status"})
)
