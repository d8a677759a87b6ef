package audit

import (
	"context"
	"log/slog"
)

// Worker drains an inbox of events into an emitter so slow sinks (Kafka) stay
// off the request path. Emit never blocks: when the inbox is full the event is
// dropped and logged.
type Worker struct {
	sink   Emitter
	inbox  chan Event
	logger *slog.Logger
}

func NewWorker(sink Emitter, buffer int, logger *slog.Logger) *Worker {
	if buffer <= 0 {
		buffer = 256
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{sink: sink, inbox: make(chan Event, buffer), logger: logger}
}

// Emit enqueues event for the background loop.
func (w *Worker) Emit(ctx context.Context, event Event) error {
	select {
	case w.inbox <- event:
	default:
		w.logger.WarnContext(ctx, "audit inbox full, dropping event",
			"action", event.Action,
			"trace_id", event.TraceID,
		)
	}
	return nil
}

// Run forwards events until ctx is cancelled, then drains what is already
// queued. Sink errors are logged and do not stop the loop.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case event := <-w.inbox:
			w.forward(ctx, event)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case event := <-w.inbox:
			w.forward(context.Background(), event)
		default:
			return
		}
	}
}

func (w *Worker) forward(ctx context.Context, event Event) {
	if err := w.sink.Emit(ctx, event); err != nil {
		w.logger.ErrorContext(ctx, "audit sink failed",
			"action", event.Action,
			"trace_id", event.TraceID,
			"error", err,
		)
	}
}
