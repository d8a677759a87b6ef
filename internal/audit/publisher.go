package audit

import (
	"context"
	"time"
)

// Emitter is anything that accepts audit events.
type Emitter interface {
	Emit(ctx context.Context, event Event) error
}

// Publisher captures structured audit events. It is append-only and uses the
// storage layer for persistence so tests can swap sinks easily.
type Publisher struct {
	store Store
	now   func() time.Time
}

func NewPublisher(store Store) *Publisher {
	return &Publisher{store: store, now: time.Now}
}

func (p *Publisher) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = p.now()
	}
	return p.store.Append(ctx, event)
}

// ListByTrace returns events recorded against traceID in append order.
func (p *Publisher) ListByTrace(ctx context.Context, traceID string) ([]Event, error) {
	return p.store.ListByTrace(ctx, traceID)
}

// Fanout emits every event to each emitter in turn and returns the first error.
// All emitters see the event even when an earlier one fails.
type Fanout []Emitter

func (f Fanout) Emit(ctx context.Context, event Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	var first error
	for _, e := range f {
		if err := e.Emit(ctx, event); err != nil && first == nil {
			first = err
		}
	}
	return first
}
