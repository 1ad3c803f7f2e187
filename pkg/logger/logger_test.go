package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
)

func TestWithContextAddsKnownKeys(t *testing.T) {
	var buf bytes.Buffer
	prev := Default()
	SetDefault(New(&buf, "debug"))
	defer SetDefault(prev)

	ctx := context.WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = context.WithValue(ctx, ServiceKey, "passes")
	InfoContext(ctx, "hello", "k", "v")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v (%q)", err, buf.String())
	}
	if line["request_id"] != "req-1" || line["service"] != "passes" || line["k"] != "v" {
		t.Fatalf("unexpected log line: %v", line)
	}
	if _, ok := line["user_id"]; ok {
		t.Fatalf("user_id should be absent: %v", line)
	}
}

func TestNewDefaultsToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf, "nonsense")
	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug should be filtered at info level, got %q", buf.String())
	}
}
