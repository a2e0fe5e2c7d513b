// Package avatar3d drives an avatar once per frame: body clips from the clip
// registry, face morph targets from the current viseme session.
package avatar3d

import (
	"slices"
	"time"

	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/rs/zerolog"
)

// FrameState is what one frame applied. It is also the stream payload.
type FrameState struct {
	Frame     uint64    `json:"frame"`
	SessionID string    `json:"sessionId,omitempty"`
	Elapsed   float64   `json:"elapsed"`
	Viseme    string    `json:"viseme,omitempty"`
	Weights   []float64 `json:"weights,omitempty"`
	Clip      string    `json:"clip,omitempty"`
}

// FrameDriver pushes the current session's weights to the live morph targets.
// It never touches clip playback.
type FrameDriver struct {
	scheduler *lipsync.Scheduler
	targets   lipsync.MorphTargets
	names     []string
	logger    zerolog.Logger

	frame  uint64
	warned bool
}

func NewFrameDriver(scheduler *lipsync.Scheduler, logger zerolog.Logger) *FrameDriver {
	return &FrameDriver{
		scheduler: scheduler,
		logger:    logger.With().Str("component", "frame-driver").Logger(),
	}
}

// resetter is implemented by target sets that can zero every influence.
type resetter interface {
	Reset()
}

// Bind sets the morph targets to write. nil unbinds. Targets being replaced
// are zeroed so a face the driver no longer writes does not hold a viseme.
func (d *FrameDriver) Bind(targets lipsync.MorphTargets) {
	if prev, ok := d.targets.(resetter); ok && d.targets != targets {
		prev.Reset()
	}
	d.targets = targets
	d.names = lipsync.TargetNames(targets)
	d.warned = false
}

func (d *FrameDriver) Tick(now time.Time) FrameState {
	d.frame++
	metrics.FramesTotal.Inc()
	st := FrameState{Frame: d.frame}

	session := d.scheduler.Current()
	if session == nil {
		return st
	}
	if d.targets == nil || d.targets.Count() == 0 {
		if !d.warned {
			d.logger.Warn().Str("session", session.ID.String()).Msg("No morph targets bound, skipping visemes")
			d.warned = true
		}
		return st
	}

	elapsed := session.Elapsed(now)
	var weights lipsync.Weights
	if slices.Equal(session.Names(), d.names) {
		weights = session.WeightsAt(elapsed)
	} else {
		// Targets were rebound after the session began.
		weights = lipsync.Sample(session.Track, d.names, elapsed)
	}
	for i, w := range weights {
		d.targets.Target(i).SetInfluence(w)
	}

	st.SessionID = session.ID.String()
	st.Elapsed = elapsed
	st.Weights = weights
	if ev, ok := session.ActiveEvent(elapsed); ok {
		st.Viseme = ev.Value
	}
	return st
}

// Frames returns how many times Tick ran.
func (d *FrameDriver) Frames() uint64 {
	return d.frame
}
