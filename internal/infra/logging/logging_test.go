//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
)

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "trace-1")
	ctx = WithUserID(ctx, 7)
	ctx = WithOrderID(ctx, 99)

	With(ctx, &base).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("log line is not json: %v", err)
	}
	if line["trace_id"] != "trace-1" {
		t.Errorf("expected trace_id, got %v", line["trace_id"])
	}
	if line["user_id"] != float64(7) || line["order_id"] != float64(99) {
		t.Errorf("expected ids in log line, got %v", line)
	}

	if id, ok := UserIDFrom(ctx); !ok || id != 7 {
		t.Errorf("UserIDFrom mismatch: %d %v", id, ok)
	}
	if TraceIDFrom(context.Background()) != "" {
		t.Error("expected empty trace id")
	}
}

func TestRedact(t *testing.T) {
	if Redact("short", false) != "***" {
		t.Error("short secrets must be masked")
	}
	if got := Redact("supersecretvalue", false); got != "supe...ue" {
		t.Errorf("unexpected redaction %q", got)
	}
	if Redact("supersecretvalue", true) != "supersecretvalue" {
		t.Error("dev mode must not redact")
	}
}
