// Package progress carries human readable status lines from the engine to
// whoever drives it (CLI, daemon log, a GUI).
package progress

// Sink receives progress messages. Calls are sequential and in the order the
// engine performs its work; a Sink crossing into another thread model (UI
// event loops) is responsible for its own synchronization.
type Sink interface {
	Report(msg string)
}

// Func adapts a plain function to Sink.
type Func func(msg string)

func (f Func) Report(msg string) { f(msg) }

// Nop discards every message.
var Nop Sink = Func(func(string) {})

// Or returns s, or Nop when s is nil.
func Or(s Sink) Sink {
	if s == nil {
		return Nop
	}
	return s
}
