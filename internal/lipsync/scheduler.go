package lipsync

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/normanking/avatarsync/internal/audio"
	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrNoMorphTargets is returned when the avatar has no facial rig.
var ErrNoMorphTargets = errors.New("no morph targets")

// Session is one audio + viseme track playback.
type Session struct {
	ID     uuid.UUID
	Anchor time.Time
	Audio  audio.Handle
	Track  Track

	names      []string
	resolved   []int
	superseded bool
}

func newSession(anchor time.Time, handle audio.Handle, track Track, names []string) *Session {
	resolved := make([]int, len(track))
	for i, e := range track {
		resolved[i] = Resolve(names, e.Value)
	}
	return &Session{
		ID:       uuid.New(),
		Anchor:   anchor,
		Audio:    handle,
		Track:    track,
		names:    names,
		resolved: resolved,
	}
}

// Elapsed is the session clock in seconds at now.
func (s *Session) Elapsed(now time.Time) float64 {
	return now.Sub(s.Anchor).Seconds()
}

// WeightsAt returns the morph weights at elapsed seconds.
// It agrees with Sample for the session's track and target names.
func (s *Session) WeightsAt(elapsed float64) Weights {
	w := make(Weights, len(s.names))
	if i := s.Track.Find(elapsed); i >= 0 && s.resolved[i] >= 0 {
		w[s.resolved[i]] = 1.0
	}
	return w
}

// ActiveEvent returns the event driving the face at elapsed.
func (s *Session) ActiveEvent(elapsed float64) (Event, bool) {
	i := s.Track.Find(elapsed)
	if i < 0 {
		return Event{}, false
	}
	return s.Track[i], true
}

// Ended reports whether elapsed is past the last event.
func (s *Session) Ended(elapsed float64) bool {
	return elapsed > s.Track.Duration()
}

// Superseded reports whether a newer session replaced this one.
func (s *Session) Superseded() bool {
	return s.superseded
}

// Names returns the morph-target names the session resolved against.
func (s *Session) Names() []string {
	return s.names
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock sets the time source used to anchor sessions.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStopSuperseded makes Begin stop the previous session's audio.
// By default superseded audio keeps playing on its own.
func WithStopSuperseded(stop bool) Option {
	return func(s *Scheduler) {
		s.stopSuperseded = stop
	}
}

// Scheduler owns the current viseme session for one avatar.
// It is not safe for concurrent use; drive it from the frame goroutine.
type Scheduler struct {
	current        *Session
	now            func() time.Time
	stopSuperseded bool

	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewScheduler creates a scheduler with no session.
func NewScheduler(eventBus *bus.EventBus, logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		now:      time.Now,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "lipsync").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Begin anchors a new session at the current instant, starts its audio and
// makes it current. Without morph targets it fails and leaves audio untouched.
func (s *Scheduler) Begin(handle audio.Handle, track Track, targets MorphTargets) (*Session, error) {
	if targets == nil || targets.Count() == 0 {
		s.logger.Warn().Msg("No morph targets found, cannot animate visemes")
		s.eventBus.Publish(bus.Event{Type: bus.EventNoMorphTargets})
		return nil, ErrNoMorphTargets
	}

	session := newSession(s.now(), handle, track, TargetNames(targets))
	if handle != nil {
		handle.Play()
	}

	if prev := s.current; prev != nil {
		prev.superseded = true
		if s.stopSuperseded && prev.Audio != nil && prev.Audio != handle {
			prev.Audio.Stop()
		}
		metrics.SessionsSuperseded.Inc()
		s.eventBus.PublishSync(bus.Event{
			Type: bus.EventSessionSuperseded,
			Data: map[string]any{"session": prev.ID.String(), "by": session.ID.String()},
		})
	}
	s.current = session

	metrics.SessionsStarted.Inc()
	s.logger.Info().
		Str("session", session.ID.String()).
		Int("visemes", len(track)).
		Float64("duration", track.Duration()).
		Msg("Started audio + viseme playback")
	// Sync so subscribers always see the supersede before the start.
	s.eventBus.PublishSync(bus.Event{
		Type: bus.EventSessionStarted,
		Data: map[string]any{"session": session.ID.String(), "visemes": len(track)},
	})
	return session, nil
}

// Current returns the session driving the face, or nil.
func (s *Scheduler) Current() *Session {
	return s.current
}

// Now reads the scheduler clock.
func (s *Scheduler) Now() time.Time {
	return s.now()
}
