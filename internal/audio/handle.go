// Package audio provides opaque speech audio handles.
// Decoding and output happen on the platform side; handles only start, stop
// and surface playback failures.
package audio

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/normanking/avatarsync/internal/bus"
	"github.com/rs/zerolog"
)

// Handle is an audio clip owned by the platform audio subsystem.
type Handle interface {
	// Play starts playback and returns immediately.
	Play()
	// Stop halts playback. Safe to call more than once.
	Stop()
	// Errors reports asynchronous playback failures.
	Errors() <-chan error
	URL() string
}

// HTTPPlayer opens handles that fetch their clip over HTTP when played.
type HTTPPlayer struct {
	client   *http.Client
	eventBus *bus.EventBus
	logger   zerolog.Logger
}

// NewHTTPPlayer creates a player. client may be nil.
func NewHTTPPlayer(client *http.Client, eventBus *bus.EventBus, logger zerolog.Logger) *HTTPPlayer {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &HTTPPlayer{
		client:   client,
		eventBus: eventBus,
		logger:   logger.With().Str("component", "audio").Logger(),
	}
}

// Open returns an unstarted handle for url.
func (p *HTTPPlayer) Open(url string) *HTTPHandle {
	return &HTTPHandle{
		url:    url,
		player: p,
		errs:   make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// HTTPHandle streams its clip from a URL.
type HTTPHandle struct {
	url    string
	player *HTTPPlayer
	errs   chan error

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	stopped bool
	bytes   int64
	done    chan struct{}
}

func (h *HTTPHandle) URL() string { return h.url }

func (h *HTTPHandle) Errors() <-chan error { return h.errs }

// Done is closed when playback finishes, fails or is stopped.
func (h *HTTPHandle) Done() <-chan struct{} { return h.done }

// Bytes returns how much of the clip has been received.
func (h *HTTPHandle) Bytes() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.bytes
}

func (h *HTTPHandle) Play() {
	h.mu.Lock()
	if h.started || h.stopped {
		h.mu.Unlock()
		return
	}
	h.started = true
	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	h.mu.Unlock()

	go h.run(ctx)
}

func (h *HTTPHandle) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	if h.cancel != nil {
		h.cancel()
	} else {
		close(h.done)
	}
}

func (h *HTTPHandle) run(ctx context.Context) {
	defer close(h.done)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.url, nil)
	if err != nil {
		h.fail(fmt.Errorf("create audio request: %w", err))
		return
	}

	resp, err := h.player.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		h.fail(fmt.Errorf("fetch audio: %w", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		h.fail(fmt.Errorf("fetch audio: status %d", resp.StatusCode))
		return
	}

	n, err := io.Copy(io.Discard, resp.Body)
	h.mu.Lock()
	h.bytes = n
	h.mu.Unlock()
	if err != nil && ctx.Err() == nil {
		h.fail(fmt.Errorf("read audio: %w", err))
		return
	}

	h.player.logger.Debug().Str("url", h.url).Int64("bytes", n).Msg("Audio clip received")
}

func (h *HTTPHandle) fail(err error) {
	h.player.logger.Error().Err(err).Str("url", h.url).Msg("Audio playback failed")
	h.player.eventBus.Publish(bus.Event{
		Type: bus.EventAudioError,
		Data: map[string]any{"url": h.url, "error": err.Error()},
	})
	select {
	case h.errs <- err:
	default:
	}
}

// Silent is a handle with no audio, used for tracks replayed without sound.
type Silent struct {
	mu      sync.Mutex
	playing bool
	plays   int
	stops   int
	errs    chan error
}

// NewSilent returns a silent handle.
func NewSilent() *Silent {
	return &Silent{errs: make(chan error)}
}

func (s *Silent) Play() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = true
	s.plays++
}

func (s *Silent) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	s.stops++
}

func (s *Silent) Errors() <-chan error { return s.errs }

func (s *Silent) URL() string { return "" }

// Playing reports whether Play was called without a later Stop.
func (s *Silent) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Plays returns how many times Play was called.
func (s *Silent) Plays() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}
