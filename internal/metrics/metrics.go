// Package metrics exposes Prometheus collectors for the animation engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_frames_total",
			Help: "Total number of frames driven",
		},
	)

	ClipPlays = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "avatarsync_clip_plays_total",
			Help: "Clip play requests by result",
		},
		[]string{"result"},
	)

	SessionsStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_sessions_started_total",
			Help: "Viseme playback sessions begun",
		},
	)

	SessionsSuperseded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_sessions_superseded_total",
			Help: "Viseme playback sessions replaced by a newer one",
		},
	)

	VisemesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "avatarsync_visemes_dropped_total",
			Help: "Malformed viseme events rejected at ingestion",
		},
	)

	StreamClients = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "avatarsync_stream_clients",
			Help: "Connected frame stream clients",
		},
	)
)

// Clip play results.
const (
	ResultStarted  = "started"
	ResultNotFound = "not_found"
)
