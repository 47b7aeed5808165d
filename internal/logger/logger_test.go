package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestWriteEmitsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetDebug(false)

	Info("gist_request", map[string]any{"schema": "user", "page": 2})

	line := strings.TrimSpace(buf.String())
	var got map[string]any
	if err := json.Unmarshal([]byte(line), &got); err != nil {
		t.Fatalf("not JSON: %q (%v)", line, err)
	}
	if got["msg"] != "gist_request" || got["level"] != "info" || got["schema"] != "user" {
		t.Fatalf("unexpected event: %v", got)
	}
	if _, ok := got["ts"]; !ok {
		t.Fatalf("missing ts: %v", got)
	}
}

func TestSetOutputKeepsLevelAndTimestamp(t *testing.T) {
	var first, second bytes.Buffer
	SetOutput(&first)
	SetDebug(true)
	defer SetDebug(false)

	SetOutput(&second)
	Debug("after_switch", nil)

	if first.Len() != 0 {
		t.Fatalf("event written to old output: %q", first.String())
	}
	var got map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(second.Bytes()), &got); err != nil {
		t.Fatalf("not JSON: %q (%v)", second.String(), err)
	}
	if got["msg"] != "after_switch" || got["ts"] == nil {
		t.Fatalf("unexpected event: %v", got)
	}
}

func TestDebugSuppressedUntilEnabled(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	SetDebug(false)

	Debug("hidden", nil)
	if buf.Len() != 0 {
		t.Fatalf("debug event written while disabled: %q", buf.String())
	}

	SetDebug(true)
	defer SetDebug(false)
	Debug("shown", nil)
	if !strings.Contains(buf.String(), `"msg":"shown"`) {
		t.Fatalf("debug event missing: %q", buf.String())
	}
}

func TestWithRequestAddsID(t *testing.T) {
	ctx := WithRequestID(context.Background(), "req-1")
	fields := WithRequest(ctx, map[string]any{"schema": "user"})
	if fields["request_id"] != "req-1" || fields["schema"] != "user" {
		t.Fatalf("unexpected fields: %v", fields)
	}
	if got := WithRequest(context.Background(), nil); got != nil {
		t.Fatalf("fields without id must stay nil, got %v", got)
	}
}
