// Package chat talks to the speech backend that turns a user message into a
// spoken reply: an audio clip URL plus its viseme timing track.
package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/normanking/avatarsync/internal/bus"
	"github.com/normanking/avatarsync/internal/lipsync"
	"github.com/rs/zerolog"
)

// ClientConfig configures the chat client
type ClientConfig struct {
	ServerURL string        // e.g., "http://localhost:3000"
	Timeout   time.Duration // HTTP request timeout
}

// DefaultClientConfig returns sensible defaults
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		ServerURL: "http://localhost:3000",
		Timeout:   30 * time.Second,
	}
}

// Request is the body of POST /chat.
type Request struct {
	Message string `json:"message"`
}

// Reply is the backend's spoken answer.
type Reply struct {
	AudioURL string          `json:"audioUrl"`
	Visemes  []lipsync.Event `json:"visemes"`
}

// APIError is returned for non-2xx responses. Its message is the response body.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return "API Error: " + e.Body
}

// Client sends chat messages to the speech backend. It never retries.
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	eventBus   *bus.EventBus
	logger     zerolog.Logger
}

// NewClient creates a new chat client
func NewClient(cfg *ClientConfig, eventBus *bus.EventBus, logger zerolog.Logger) *Client {
	if cfg == nil {
		cfg = DefaultClientConfig()
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		eventBus:   eventBus,
		logger:     logger.With().Str("component", "chat-client").Logger(),
	}
}

// Send posts message and decodes the reply. A relative audioUrl is resolved
// against the server URL.
func (c *Client) Send(ctx context.Context, message string) (*Reply, error) {
	body, err := json.Marshal(Request{Message: message})
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.config.ServerURL, "/") + "/chat"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request failed: %w", err)
	}
	defer resp.Body.Close()

	text, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(text)}
	}

	var reply Reply
	if err := json.Unmarshal(text, &reply); err != nil {
		return nil, fmt.Errorf("failed to decode reply: %w", err)
	}
	reply.AudioURL = c.resolve(reply.AudioURL)

	c.logger.Debug().
		Str("audioUrl", reply.AudioURL).
		Int("visemes", len(reply.Visemes)).
		Msg("Chat reply received")
	return &reply, nil
}

// SendAsync runs Send in a goroutine and hands the result to done.
// Failures are also logged and published as bus.EventChatFailed.
func (c *Client) SendAsync(ctx context.Context, message string, done func(*Reply, error)) {
	go func() {
		reply, err := c.Send(ctx, message)
		if err != nil {
			c.logger.Error().Err(err).Msg("Chat request failed")
			c.eventBus.Publish(bus.Event{
				Type: bus.EventChatFailed,
				Data: map[string]any{"error": err.Error()},
			})
		}
		if done != nil {
			done(reply, err)
		}
	}()
}

func (c *Client) resolve(ref string) string {
	if ref == "" {
		return ref
	}
	u, err := url.Parse(ref)
	if err != nil || u.IsAbs() {
		return ref
	}
	base, err := url.Parse(c.config.ServerURL)
	if err != nil {
		return ref
	}
	return base.ResolveReference(u).String()
}
