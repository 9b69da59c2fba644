package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestConsoleSink_EmitWithoutError(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)

	s.Emit(LogEvent{
		Timestamp: time.Unix(0, 0),
		Level:     InformationLevel,
		Message:   "round file opened",
		Round:     5,
		Path:      "/data/round-5.avro",
	})

	out := buf.String()
	if !strings.Contains(out, "round file opened") {
		t.Errorf("missing message: %s", out)
	}
	if !strings.Contains(out, "round=5") {
		t.Errorf("missing round: %s", out)
	}
	if strings.Contains(out, "err=") {
		t.Errorf("unexpected err field on error-free event: %s", out)
	}
}

func TestConsoleSink_EmitWithError(t *testing.T) {
	var buf bytes.Buffer
	s := NewConsoleSink(&buf)

	s.Emit(LogEvent{
		Timestamp: time.Unix(0, 0),
		Level:     ErrorLevel,
		Message:   "remote failure",
		Round:     2,
		Err:       errors.New("connection refused"),
	})

	out := buf.String()
	if !strings.Contains(out, "connection refused") {
		t.Errorf("missing error detail: %s", out)
	}
	if !strings.Contains(out, "[error]") {
		t.Errorf("missing level tag: %s", out)
	}
}

func TestNop_DiscardsEverything(t *testing.T) {
	Nop.Emit(LogEvent{Message: "should vanish"})
	if err := Nop.Close(); err != nil {
		t.Errorf("Nop.Close() = %v, want nil", err)
	}
}

func TestLogEventLevel_String(t *testing.T) {
	cases := map[LogEventLevel]string{
		InformationLevel: "information",
		WarningLevel:      "warning",
		ErrorLevel:        "error",
		LogEventLevel(99): "unknown",
	}
	for level, want := range cases {
		if got := level.String(); got != want {
			t.Errorf("LogEventLevel(%d).String() = %q, want %q", level, got, want)
		}
	}
}
