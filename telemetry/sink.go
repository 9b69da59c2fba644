package telemetry

// LogEventSink receives lifecycle events emitted by the collector core. A
// deployment wires its own implementation (forwarding to its existing
// observability stack); ConsoleSink is provided for standalone use.
type LogEventSink interface {
	// Emit reports a lifecycle event. Emit must not block the caller for
	// long: it runs on the sink's single owning thread.
	Emit(event LogEvent)

	// Close releases any resources held by the sink.
	Close() error
}

// Nop is a LogEventSink that discards every event. It is the default when no
// sink is configured, so the core never has to nil-check.
var Nop LogEventSink = nopSink{}

type nopSink struct{}

func (nopSink) Emit(LogEvent) {}
func (nopSink) Close() error  { return nil }
