package asset

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Watcher reloads a character whenever its model file is rewritten.
type Watcher struct {
	path      string
	placement Placement
	onLoad    func(*Character, error)
	logger    zerolog.Logger
	fsw       *fsnotify.Watcher
}

// NewWatcher watches the directory holding path so that editors replacing the
// file by rename are seen too. onLoad receives every reload result.
func NewWatcher(path string, placement Placement, onLoad func(*Character, error), logger zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		fsw.Close()
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(abs), err)
	}
	return &Watcher{
		path:      abs,
		placement: placement,
		onLoad:    onLoad,
		logger:    logger.With().Str("component", "asset-watcher").Logger(),
		fsw:       fsw,
	}, nil
}

// Run blocks until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			w.logger.Info().Str("path", w.path).Str("op", ev.Op.String()).Msg("Model changed, reloading")
			ch, err := Load(w.path, w.placement)
			if err != nil {
				w.logger.Error().Err(err).Msg("Reload failed")
			}
			w.onLoad(ch, err)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("Watcher error")
		}
	}
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
