package audit

import (
	"context"
	"sync"
)

// Publisher accepts audit events from domain services. Implementations must
// be safe for concurrent use; emission failures are the publisher's problem
// to surface, never a reason to fail the domain operation.
type Publisher interface {
	Emit(ctx context.Context, event Event) error
}

// MemoryPublisher buffers events in memory. Used in tests and when no broker
// is configured.
type MemoryPublisher struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryPublisher() *MemoryPublisher {
	return &MemoryPublisher{}
}

func (p *MemoryPublisher) Emit(_ context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything emitted so far.
func (p *MemoryPublisher) Events() []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Event{}, p.events...)
}

// ByAction filters emitted events by action name.
func (p *MemoryPublisher) ByAction(action AuditEvent) []Event {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []Event
	for _, e := range p.events {
		if e.Action == string(action) {
			out = append(out, e)
		}
	}
	return out
}
