package log

import (
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"INFO", InfoLevel},
		{"Warn", WarnLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"fatal", FatalLevel},
		{"", InfoLevel},
		{"bogus", InfoLevel},
	}
	for _, c := range cases {
		if got := ParseLevel(c.in); got != c.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", c.in, got, c.want)
		}
	}
}

func TestTextFormatter(t *testing.T) {
	f := &TextFormatter{DisableTimestamp: true}
	b, err := f.Format(&Entry{
		Level:   InfoLevel,
		Message: "frame dispatched",
		Fields:  []Field{Str("stream", "s1"), Uint64("frame_id", 7)},
	})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	line := string(b)
	for _, want := range []string{"INFO", "frame dispatched", "stream=s1", "frame_id=7"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestJSONFormatterFields(t *testing.T) {
	f := &JSONFormatter{}
	b, err := f.Format(&Entry{
		Level:   WarnLevel,
		Message: "ring overflow",
		Fields:  []Field{Component("buffer"), Int("dropped", 1)},
	})
	if err != nil {
		t.Fatalf("format: %v", err)
	}
	line := string(b)
	for _, want := range []string{`"level":"WARN"`, `"msg":"ring overflow"`, `"component":"buffer"`, `"dropped":1`} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

func TestWithAccumulatesFields(t *testing.T) {
	base := NewLogger().(*BaseLogger)
	child := base.With(Component("scheduler")).With(Str("stream", "x")).(*BaseLogger)
	if len(child.fields) != 2 {
		t.Fatalf("expected 2 fields, got %d", len(child.fields))
	}
	if len(base.fields) != 0 {
		t.Fatalf("parent mutated: %d fields", len(base.fields))
	}
}
