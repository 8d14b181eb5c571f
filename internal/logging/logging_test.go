package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "json", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info().Msg("hidden")
	logger.Warn().Str("agreement", "agr-1").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var fields map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &fields); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fields["message"] != "shown" || fields["agreement"] != "agr-1" || fields["service"] != "trusted-properties" {
		t.Fatalf("unexpected fields: %v", fields)
	}
}

func TestNew_Console(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("", "console", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info().Msg("hello")
	if !strings.Contains(buf.String(), "hello") || strings.HasPrefix(buf.String(), "{") {
		t.Fatalf("unexpected console output: %q", buf.String())
	}
}

func TestNew_Invalid(t *testing.T) {
	if _, err := New("loud", "json", nil); err == nil {
		t.Fatal("expected level error")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Fatal("expected format error")
	}
}
