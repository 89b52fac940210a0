// Package metrics defines prometheus metrics for dispatch and streaming
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DispatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pantry_dispatch_total",
			Help: "Dispatched requests by channel and outcome",
		},
		[]string{"channel", "outcome"},
	)

	DispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pantry_dispatch_duration_seconds",
			Help:    "Time until response headers per channel in seconds",
			Buckets: []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"channel"},
	)

	FallbackTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pantry_dispatch_fallback_total",
			Help: "Requests retried on the network channel after the local channel failed",
		},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pantry_stream_events_total",
			Help: "Inference events delivered by kind",
		},
		[]string{"kind"},
	)

	FramesDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pantry_stream_frames_dropped_total",
			Help: "Stream frames dropped by reason",
		},
		[]string{"reason"},
	)

	OpenStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pantry_open_streams",
			Help: "Currently open event streams",
		},
	)
)

// Outcome labels for DispatchTotal.
const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

// Reason labels for FramesDropped.
const (
	ReasonInvalidUTF8 = "invalid_utf8"
	ReasonInvalidJSON = "invalid_json"
	ReasonUnknownKind = "unknown_kind"
)
