package events

import "predictchain/core/types"

// Event represents a structured state change emitted by the ledger.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. RPC, archives).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// Raw adapts an already-rendered event to the Event interface.
type Raw struct {
	Evt *types.Event
}

func (r Raw) EventType() string {
	if r.Evt == nil {
		return ""
	}
	return r.Evt.Type
}

func (r Raw) Event() *types.Event { return r.Evt }

// Fanout forwards every event to each configured emitter in order.
type Fanout []Emitter

// Emit implements the Emitter interface.
func (f Fanout) Emit(evt Event) {
	for _, emitter := range f {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps emitted events in memory. Tests use it as a sink.
type Recorder struct {
	Events []*types.Event
}

// Emit implements the Emitter interface.
func (r *Recorder) Emit(evt Event) {
	if r == nil || evt == nil {
		return
	}
	r.Events = append(r.Events, evt.Event().Clone())
}

// OfType returns the recorded events whose type matches eventType.
func (r *Recorder) OfType(eventType string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.Events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}
