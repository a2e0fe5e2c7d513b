// Package bus provides an internal event bus for component communication
package bus

import (
	"sync"
)

// EventType identifies different event types
type EventType string

// Event types for avatarsync
const (
	// Clip events
	EventClipStarted EventType = "clip.started"
	EventClipStopped EventType = "clip.stopped"
	EventClipMissing EventType = "clip.missing"

	// Lip-sync events
	EventSessionStarted    EventType = "lipsync.session_started"
	EventSessionSuperseded EventType = "lipsync.session_superseded"
	EventVisemeDropped     EventType = "lipsync.viseme_dropped"
	EventNoMorphTargets    EventType = "lipsync.no_morph_targets"

	// Audio events
	EventAudioError EventType = "audio.error"

	// Asset events
	EventAssetLoaded     EventType = "asset.loaded"
	EventAssetLoadFailed EventType = "asset.load_failed"

	// Speech backend events
	EventChatFailed EventType = "chat.failed"
)

// Event represents a bus event
type Event struct {
	Type EventType
	Data map[string]any
}

// Handler is a function that handles events
type Handler func(Event)

// EventBus is a simple pub/sub event bus
type EventBus struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		handlers: make(map[EventType][]Handler),
	}
}

// Subscribe adds a handler for an event type
func (b *EventBus) Subscribe(eventType EventType, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handlers[eventType] = append(b.handlers[eventType], handler)
}

// SubscribeMultiple adds a handler for multiple event types
func (b *EventBus) SubscribeMultiple(eventTypes []EventType, handler Handler) {
	for _, et := range eventTypes {
		b.Subscribe(et, handler)
	}
}

func (b *EventBus) snapshot(t EventType) []Handler {
	b.mu.RLock()
	defer b.mu.RUnlock()
	handlers := make([]Handler, len(b.handlers[t]))
	copy(handlers, b.handlers[t])
	return handlers
}

// Publish sends an event to all subscribed handlers without blocking the caller.
// A nil bus is a no-op so components can run without one.
func (b *EventBus) Publish(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		go handler(event)
	}
}

// PublishSync runs every handler in subscription order on the caller's goroutine.
func (b *EventBus) PublishSync(event Event) {
	if b == nil {
		return
	}
	for _, handler := range b.snapshot(event.Type) {
		handler(event)
	}
}

// Clear removes all handlers
func (b *EventBus) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = make(map[EventType][]Handler)
}
