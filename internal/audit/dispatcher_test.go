package audit

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type blockingSink struct {
	mu     sync.Mutex
	gate   chan struct{}
	events []Event
}

func (s *blockingSink) Emit(_ context.Context, e Event) {
	<-s.gate
	s.mu.Lock()
	s.events = append(s.events, e)
	s.mu.Unlock()
}

func TestDispatcherDisabledIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, NoOpSink{})
	if d != nil {
		t.Fatalf("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if d.Dropped() != 0 || d.Delivered() != 0 {
		t.Fatalf("nil dispatcher must report zero counters")
	}
}

func TestDispatcherDropIfFull(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)

	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{EventType: "access_denied"})
	}
	if d.Dropped() == 0 {
		t.Fatalf("expected drops with a saturated buffer")
	}

	close(sink.gate)
	d.Close()
	if d.Delivered()+d.Dropped() != 10 {
		t.Fatalf("delivered %d + dropped %d != 10", d.Delivered(), d.Dropped())
	}
}

func TestDispatcherCloseFlushes(t *testing.T) {
	sink := NewChannelSink(8)
	d := NewDispatcher(Config{Enabled: true, BufferSize: 8}, sink)

	for i := 0; i < 5; i++ {
		d.Emit(context.Background(), Event{EventType: "cache_invalidated"})
	}
	d.Close()

	if got := len(sink.Events()); got != 5 {
		t.Fatalf("expected 5 flushed events, got %d", got)
	}
	d.Emit(context.Background(), Event{EventType: "late"})
	if got := len(sink.Events()); got != 5 {
		t.Fatalf("emit after close must be ignored")
	}
}

func TestJSONWriterSinkOneObjectPerLine(t *testing.T) {
	var buf bytes.Buffer
	sink := NewJSONWriterSink(&buf)

	sink.Emit(context.Background(), Event{
		EventID:        "id-1",
		Timestamp:      time.Unix(0, 0).UTC(),
		EventType:      "access_denied",
		UserID:         "u1",
		OrganizationID: "o1",
		Reason:         "required_missing",
	})
	sink.Emit(context.Background(), Event{EventID: "id-2", EventType: "cache_cleared", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.Contains(lines[0], `"organization_id":"o1"`) || !strings.Contains(lines[0], `"reason":"required_missing"`) {
		t.Fatalf("unexpected first line %s", lines[0])
	}
	if strings.Contains(lines[1], "user_id") {
		t.Fatalf("empty user id must be omitted: %s", lines[1])
	}
}

func TestDispatcherBlockingDropsOnContextEnd(t *testing.T) {
	sink := &blockingSink{gate: make(chan struct{})}
	var onDrop []string
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 1,
		OnDrop:     func(e Event) { onDrop = append(onDrop, e.EventType) },
	}, sink)

	// First event is picked up by the blocked sink, second fills the buffer.
	d.Emit(context.Background(), Event{EventType: "a"})
	deadline := time.Now().Add(time.Second)
	for d.Pending() != 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	d.Emit(context.Background(), Event{EventType: "b"})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{EventType: "c"})

	if d.Dropped() != 1 || len(onDrop) != 1 || onDrop[0] != "c" {
		t.Fatalf("dropped=%d onDrop=%v", d.Dropped(), onDrop)
	}

	close(sink.gate)
	d.Close()
	if d.Delivered() != 2 {
		t.Fatalf("delivered = %d, want 2", d.Delivered())
	}
}

type deadlineSink struct {
	ok chan bool
}

func (s deadlineSink) Emit(ctx context.Context, _ Event) {
	_, has := ctx.Deadline()
	s.ok <- has
}

func TestDispatcherSinkTimeout(t *testing.T) {
	sink := deadlineSink{ok: make(chan bool, 2)}

	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, SinkTimeout: time.Second}, sink)
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if !<-sink.ok {
		t.Fatal("expected a deadline on the sink context")
	}

	d = NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	d.Emit(context.Background(), Event{EventType: "x"})
	d.Close()
	if <-sink.ok {
		t.Fatal("unexpected deadline without SinkTimeout")
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf bytes.Buffer
	sink := NewLogSink(zerolog.New(&buf))

	sink.Emit(context.Background(), Event{EventType: "access_denied", Missing: []string{"billing"}})
	sink.Emit(context.Background(), Event{EventType: "cache_cleared", Success: true})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if !strings.Contains(lines[0], `"level":"warn"`) || !strings.Contains(lines[0], `"missing":["billing"]`) {
		t.Fatalf("unexpected denial line %s", lines[0])
	}
	if !strings.Contains(lines[1], `"level":"info"`) || !strings.Contains(lines[1], `"component":"audit"`) {
		t.Fatalf("unexpected info line %s", lines[1])
	}
}
