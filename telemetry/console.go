package telemetry

import (
	"fmt"
	"io"
	"sync"
)

// ConsoleSink writes one line per event to an io.Writer. It is meant for
// standalone runs and smoke tests, not production deployments.
type ConsoleSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleSink returns a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

func (s *ConsoleSink) Emit(event LogEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.Err != nil {
		fmt.Fprintf(s.w, "%s [%s] %s round=%d path=%q err=%v\n",
			event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
			event.Level, event.Message, event.Round, event.Path, event.Err)
		return
	}
	fmt.Fprintf(s.w, "%s [%s] %s round=%d path=%q\n",
		event.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z"),
		event.Level, event.Message, event.Round, event.Path)
}

func (s *ConsoleSink) Close() error {
	return nil
}
