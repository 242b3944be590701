package audit

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
)

// Event is one permission engine audit record.
type Event struct {
	EventID        string    `json:"event_id"`
	Timestamp      time.Time `json:"timestamp"`
	EventType      string    `json:"event_type"`
	UserID         string    `json:"user_id,omitempty"`
	OrganizationID string    `json:"organization_id,omitempty"`
	Success        bool      `json:"success"`

	// Reason is the decision reason for access events.
	Reason string `json:"reason,omitempty"`
	// Policy is "strict" or "optimistic" for access events.
	Policy string `json:"policy,omitempty"`
	// Missing lists the permissions that failed the deciding requirement group.
	Missing []string `json:"missing,omitempty"`
	// Generation is the cache generation a discarded write was fetched under.
	Generation uint64 `json:"generation,omitempty"`
	// Error is a stable classification, never a raw error string.
	Error string `json:"error,omitempty"`
}

// Sink receives events from a [Dispatcher]. Emit is called from a single
// goroutine; ctx carries the dispatcher's per-event deadline.
type Sink interface {
	Emit(ctx context.Context, event Event)
}

// NoOpSink drops audit events.
type NoOpSink struct{}

func (NoOpSink) Emit(context.Context, Event) {}

// ChannelSink hands events to a consumer through a buffered channel.
type ChannelSink struct {
	events chan Event
}

func NewChannelSink(buffer int) *ChannelSink {
	return &ChannelSink{events: make(chan Event, max(buffer, 1))}
}

// Emit waits for channel space until ctx ends.
func (s *ChannelSink) Emit(ctx context.Context, event Event) {
	select {
	case s.events <- event:
	case <-ctx.Done():
	}
}

func (s *ChannelSink) Events() <-chan Event {
	return s.events
}

// JSONWriterSink writes newline-delimited JSON.
type JSONWriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewJSONWriterSink(w io.Writer) *JSONWriterSink {
	return &JSONWriterSink{w: w}
}

func (s *JSONWriterSink) Emit(_ context.Context, event Event) {
	if s == nil || s.w == nil {
		return
	}
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	line = append(line, '\n')

	s.mu.Lock()
	_, _ = s.w.Write(line)
	s.mu.Unlock()
}

// LogSink writes each event through a zerolog logger. Denials and failures
// log at warn, everything else at info.
type LogSink struct {
	log zerolog.Logger
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{log: log.With().Str("component", "audit").Logger()}
}

func (s *LogSink) Emit(_ context.Context, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		s.log.Error().Err(err).Str("event_type", event.EventType).Msg("marshal audit event")
		return
	}
	lvl := zerolog.InfoLevel
	if !event.Success {
		lvl = zerolog.WarnLevel
	}
	s.log.WithLevel(lvl).Str("event_type", event.EventType).RawJSON("event", data).Msg("audit")
}
