// Package logging provides structured logging with file and console output.
package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// LogLevel represents logging levels
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Zerolog maps the level onto zerolog, defaulting to info.
func (l LogLevel) Zerolog() zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Entry is one log line kept in memory for remote viewers.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// Logger wraps zerolog with an optional log file and a bounded history.
type Logger struct {
	zlog    zerolog.Logger
	file    *os.File
	logPath string

	mu      sync.RWMutex
	history []Entry
	maxHist int
}

// Config holds logger configuration
type Config struct {
	Dir        string   // log file directory; empty disables file output
	Level      LogLevel // minimum level (default: info)
	MaxHistory int      // entries kept in memory (default: 500)
	Console    bool     // human-readable lines on Out instead of JSON
	Out        io.Writer
}

// DefaultConfig logs to stderr only.
func DefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		MaxHistory: 500,
		Console:    true,
		Out:        os.Stderr,
	}
}

// New creates a Logger writing to the configured outputs.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.MaxHistory <= 0 {
		cfg.MaxHistory = 500
	}
	out := cfg.Out
	if out == nil {
		out = os.Stderr
	}

	l := &Logger{
		history: make([]Entry, 0, cfg.MaxHistory),
		maxHist: cfg.MaxHistory,
	}

	var writers []io.Writer
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		l.logPath = filepath.Join(cfg.Dir, fmt.Sprintf("avatarsync_%s.log", time.Now().Format("2006-01-02")))
		file, err := os.OpenFile(l.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		l.file = file
		writers = append(writers, file)
	}
	if cfg.Console {
		writers = append(writers, zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"})
	} else if cfg.Dir == "" {
		writers = append(writers, out)
	}
	writers = append(writers, historyWriter{l})

	l.zlog = zerolog.New(zerolog.MultiLevelWriter(writers...)).
		Level(cfg.Level.Zerolog()).
		With().
		Timestamp().
		Str("app", "avatarsync").
		Logger()

	l.zlog.Debug().Str("component", "logging").Str("logFile", l.logPath).Msg("Logger initialized")
	return l, nil
}

// Component returns a zerolog.Logger with the component field set.
func (l *Logger) Component(name string) zerolog.Logger {
	return l.zlog.With().Str("component", name).Logger()
}

// Zerolog returns the root logger.
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zlog
}

// History returns up to limit of the most recent entries, oldest first.
func (l *Logger) History(limit int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if limit <= 0 || limit > len(l.history) {
		limit = len(l.history)
	}
	out := make([]Entry, limit)
	copy(out, l.history[len(l.history)-limit:])
	return out
}

// Path returns the current log file path, empty when logging to console only.
func (l *Logger) Path() string {
	return l.logPath
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

func (l *Logger) record(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.history = append(l.history, e)
	if len(l.history) > l.maxHist {
		l.history = l.history[len(l.history)-l.maxHist:]
	}
}

// historyWriter decodes each JSON line zerolog emits into an Entry.
type historyWriter struct {
	l *Logger
}

func (h historyWriter) Write(p []byte) (int, error) {
	var fields struct {
		Time      time.Time `json:"time"`
		Level     string    `json:"level"`
		Component string    `json:"component"`
		Message   string    `json:"message"`
	}
	if err := json.Unmarshal(p, &fields); err != nil {
		return len(p), nil
	}
	if fields.Time.IsZero() {
		fields.Time = time.Now()
	}
	h.l.record(Entry{
		Timestamp: fields.Time,
		Level:     fields.Level,
		Component: fields.Component,
		Message:   fields.Message,
	})
	return len(p), nil
}
