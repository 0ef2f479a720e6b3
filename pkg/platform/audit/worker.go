package audit

import (
	"context"
	"fmt"
)

// Sink receives events drained by the worker. The Kafka producer in
// internal/platform/kafka implements this; tests use MemorySink.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

// ChannelPublisher decouples emission from delivery: Emit enqueues onto a
// bounded channel and the Worker drains it. Domain operations never block on
// the broker.
type ChannelPublisher struct {
	inbox chan Event
}

func NewChannelPublisher(buffer int) *ChannelPublisher {
	if buffer <= 0 {
		buffer = 256
	}
	return &ChannelPublisher{inbox: make(chan Event, buffer)}
}

func (p *ChannelPublisher) Emit(_ context.Context, event Event) error {
	select {
	case p.inbox <- event:
		return nil
	default:
		return fmt.Errorf("audit inbox full, dropping event %q", event.Action)
	}
}

// Inbox exposes the receive side for the worker.
func (p *ChannelPublisher) Inbox() <-chan Event {
	return p.inbox
}

// Worker consumes audit events from a channel and forwards them to a sink.
type Worker struct {
	sink  Sink
	inbox <-chan Event
}

func NewWorker(sink Sink, inbox <-chan Event) *Worker {
	return &Worker{sink: sink, inbox: inbox}
}

// Run drains the inbox until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.sink.Append(ctx, event); err != nil {
				return err
			}
		}
	}
}

// MemorySink buffers appended events for assertions in tests.
type MemorySink struct {
	pub MemoryPublisher
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(ctx context.Context, event Event) error {
	return s.pub.Emit(ctx, event)
}

func (s *MemorySink) Events() []Event { return s.pub.Events() }
