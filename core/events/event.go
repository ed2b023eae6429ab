package events

// Event is anything published on the bus. Committed domain events and sealed
// receipts both satisfy it.
type Event interface {
	EventType() string
}

// Emitter receives events from an engine.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards events. Engines default to it until the protocol
// wires its transaction buffer in.
type NoopEmitter struct{}

// Emit implements Emitter.
func (NoopEmitter) Emit(Event) {}
