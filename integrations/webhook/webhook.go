// Package webhook posts progression events to external HTTP endpoints.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"cyberlevels/core"
	"cyberlevels/engine"
)

// Sink posts domain events to configured HTTP endpoints.
// It is synchronous for determinism; subscribe it through an async bus if the
// endpoints are slow.
type Sink struct {
	client    *http.Client
	endpoints []string
	log       *slog.Logger
}

// Option configures a Sink.
type Option func(*Sink)

// WithClient overrides the HTTP client (defaults to 2s timeout).
func WithClient(c *http.Client) Option {
	return func(s *Sink) {
		if c != nil {
			s.client = c
		}
	}
}

// WithLogger overrides the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sink) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a webhook sink.
func New(endpoints []string, opts ...Option) *Sink {
	s := &Sink{
		client: &http.Client{Timeout: 2 * time.Second},
		log:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.endpoints = append([]string{}, endpoints...)
	return s
}

// OnEvent posts the event JSON to all endpoints. Delivery is best effort;
// failures are logged and not retried.
func (s *Sink) OnEvent(ctx context.Context, e core.Event) {
	if len(s.endpoints) == 0 {
		return
	}
	body, err := json.Marshal(e)
	if err != nil {
		return
	}
	for _, ep := range s.endpoints {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, ep, bytes.NewReader(body))
		if err != nil {
			continue
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.client.Do(req)
		if err != nil {
			s.log.Warn("webhook delivery failed", "endpoint", ep, "error", err)
			continue
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}
}

// Attach subscribes the sink to the given event types on the bus. Returns a
// detach func.
func (s *Sink) Attach(bus *engine.EventBus, types ...core.EventType) func() {
	if len(types) == 0 {
		types = []core.EventType{core.EventLevelUp, core.EventRewardIssued}
	}
	offs := make([]func(), 0, len(types))
	for _, typ := range types {
		offs = append(offs, bus.Subscribe(typ, s.OnEvent))
	}
	return func() {
		for _, off := range offs {
			off()
		}
	}
}
