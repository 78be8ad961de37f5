package progress

import (
	"context"
	"time"
)

// Sink consumes batches of progress events. Implementations must honor ctx
// deadlines and tolerate repeated calls.
type Sink interface {
	Consume(ctx context.Context, batch []Event) error
	Close(ctx context.Context) error
}

// Emitter publishes individual events. Hub satisfies it.
type Emitter interface {
	Emit(evt Event)
}

// Nop discards every event.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) {}

// Reporter stamps events with a run ID and the current time.
type Reporter struct {
	emitter Emitter
	runID   string
	now     func() time.Time
}

// NewReporter binds emitter to runID. A nil emitter discards events.
func NewReporter(emitter Emitter, runID string, now func() time.Time) Reporter {
	if emitter == nil {
		emitter = Nop{}
	}
	if now == nil {
		now = time.Now
	}
	return Reporter{emitter: emitter, runID: runID, now: now}
}

// Emit fills RunID and TS before forwarding evt.
func (r Reporter) Emit(evt Event) {
	if r.emitter == nil {
		return
	}
	evt.RunID = r.runID
	if evt.TS.IsZero() {
		evt.TS = r.now().UTC()
	}
	r.emitter.Emit(evt)
}
