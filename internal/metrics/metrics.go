package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveSessions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "classifier_active_sessions",
		Help: "Number of websocket sessions currently open.",
	})

	// FramesTotal counts processed frames by outcome: ok, payload_too_large,
	// decode_error, inference_error, unsupported_message.
	FramesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "classifier_frames_total",
		Help: "Frames processed, labeled by result.",
	}, []string{"result"})

	InferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "classifier_inference_duration_seconds",
		Help:    "Wall time of a single model run including slot wait.",
		Buckets: prometheus.DefBuckets,
	})
)
