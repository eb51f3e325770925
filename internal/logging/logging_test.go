package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Level: "warn"}, "boxbluebook", "test", &buf)

	logger.Info().Msg("dropped")
	logger.Warn().Str("cigar_id", "abc").Msg("kept")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", buf.String())
	}
	var event map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &event); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event["app"] != "boxbluebook" || event["env"] != "test" || event["cigar_id"] != "abc" || event["message"] != "kept" {
		t.Fatalf("unexpected event %v", event)
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(Config{Format: "console"}, "", "", &buf)
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("expected console output, got %q", buf.String())
	}
}

func TestValidate(t *testing.T) {
	if err := (Config{Level: "debug", Format: "json"}).Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := (Config{Level: "loud"}).Validate(); err == nil {
		t.Fatal("expected bad level error")
	}
	if err := (Config{Format: "xml"}).Validate(); err == nil {
		t.Fatal("expected bad format error")
	}
}
