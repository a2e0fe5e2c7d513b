// Package anim manages named skeletal animation clips with at-most-one-active playback.
package anim

import (
	"errors"
	"fmt"
	"math/rand"
	"sort"

	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/metrics"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a clip name is not registered.
var ErrNotFound = errors.New("animation not found")

// Clip is a playable clip handle owned by the rendering layer.
type Clip interface {
	Name() string
	// Start begins playback from the clip's own start.
	Start(loop bool)
	// Stop halts playback at the rendering layer.
	Stop()
}

// ClipGroup is anything that can hand over a batch of clips, such as a loaded character.
type ClipGroup interface {
	Clips() []Clip
}

// Registry maps clip names to clips and tracks the single active clip.
// It is not safe for concurrent use; drive it from the frame goroutine.
type Registry struct {
	clips  map[string]Clip
	active Clip

	pick     func(n int) int
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry. eventBus may be nil.
func NewRegistry(eventBus *bus.EventBus, logger zerolog.Logger) *Registry {
	return &Registry{
		clips:    make(map[string]Clip),
		pick:     rand.Intn,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "anim").Logger(),
	}
}

// SetPicker replaces the random index picker used by PlayRandom.
// pick(n) must return a value in [0, n).
func (r *Registry) SetPicker(pick func(n int) int) {
	if pick != nil {
		r.pick = pick
	}
}

// RegisterAll inserts every clip keyed by name. Later clips win on collision.
func (r *Registry) RegisterAll(clips ...Clip) {
	if len(clips) == 0 {
		return
	}
	for _, c := range clips {
		if c == nil {
			continue
		}
		r.clips[c.Name()] = c
	}
	r.logger.Info().Strs("animations", r.Names()).Msg("Registered animations")
}

// Register inserts a single clip.
func (r *Registry) Register(clip Clip) {
	if clip == nil {
		return
	}
	r.clips[clip.Name()] = clip
}

// RegisterGroup registers every clip the group exposes.
func (r *Registry) RegisterGroup(g ClipGroup) {
	if g == nil {
		return
	}
	r.RegisterAll(g.Clips()...)
}

// Play stops the active clip, then starts the named one.
// On ErrNotFound the previous clip stays stopped and nothing is active.
func (r *Registry) Play(name string, loop bool) error {
	r.stopActive()

	clip, ok := r.clips[name]
	if !ok {
		metrics.ClipPlays.WithLabelValues(metrics.ResultNotFound).Inc()
		r.logger.Warn().Str("animation", name).Msg("Animation not found")
		r.eventBus.Publish(bus.Event{
			Type: bus.EventClipMissing,
			Data: map[string]any{"name": name},
		})
		return fmt.Errorf("play %q: %w", name, ErrNotFound)
	}

	clip.Start(loop)
	r.active = clip
	metrics.ClipPlays.WithLabelValues(metrics.ResultStarted).Inc()
	r.logger.Info().Str("animation", name).Bool("loop", loop).Msg("Playing animation")
	r.eventBus.Publish(bus.Event{
		Type: bus.EventClipStarted,
		Data: map[string]any{"name": name, "loop": loop},
	})
	return nil
}

// PlayPreferred plays the first registered name from preferred, falling back
// to the first registered clip in Names order.
func (r *Registry) PlayPreferred(loop bool, preferred ...string) (string, error) {
	for _, name := range preferred {
		if _, ok := r.clips[name]; ok {
			return name, r.Play(name, loop)
		}
	}
	names := r.Names()
	if len(names) == 0 {
		return "", fmt.Errorf("play preferred: %w", ErrNotFound)
	}
	return names[0], r.Play(names[0], loop)
}

// PlayRandom plays one registered clip chosen uniformly from candidates.
// Unregistered candidates are ignored.
func (r *Registry) PlayRandom(candidates []string, loop bool) (string, error) {
	available := make([]string, 0, len(candidates))
	for _, name := range candidates {
		if _, ok := r.clips[name]; ok {
			available = append(available, name)
		}
	}
	if len(available) == 0 {
		return "", fmt.Errorf("play random: %w", ErrNotFound)
	}
	name := available[r.pick(len(available))]
	return name, r.Play(name, loop)
}

// Clear stops the active clip and forgets every registration.
func (r *Registry) Clear() {
	r.stopActive()
	clear(r.clips)
}

// Stop halts the active clip if any. Calling it repeatedly is harmless.
func (r *Registry) Stop() {
	r.stopActive()
}

func (r *Registry) stopActive() {
	if r.active == nil {
		return
	}
	name := r.active.Name()
	r.active.Stop()
	r.active = nil
	r.logger.Debug().Str("animation", name).Msg("Stopped animation")
	r.eventBus.Publish(bus.Event{
		Type: bus.EventClipStopped,
		Data: map[string]any{"name": name},
	})
}

// Active returns the name of the playing clip.
func (r *Registry) Active() (string, bool) {
	if r.active == nil {
		return "", false
	}
	return r.active.Name(), true
}

// Names returns every registered clip name in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clips))
	for name := range r.clips {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered clips.
func (r *Registry) Len() int {
	return len(r.clips)
}
