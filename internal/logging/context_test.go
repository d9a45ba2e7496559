package logging

import (
	"bytes"
	"context"
	"testing"
)

func TestWithCorrelationIDCtx(t *testing.T) {
	ctx := WithCorrelationIDCtx(context.Background(), "abc")
	if got := CorrelationIDFromCtx(ctx); got != "abc" {
		t.Errorf("CorrelationIDFromCtx() = %q, want abc", got)
	}
	if got := CorrelationIDFromCtx(context.Background()); got != "" {
		t.Errorf("CorrelationIDFromCtx() on empty ctx = %q", got)
	}
}

func TestFromCtxWithLogger(t *testing.T) {
	l := New(Config{})
	ctx := WithLoggerCtx(context.Background(), l)
	if FromCtx(ctx) != l {
		t.Error("FromCtx should return the attached logger")
	}
}

func TestFromCtxWithCorrelationID(t *testing.T) {
	orig := Global()
	defer SetGlobal(orig)

	var buf bytes.Buffer
	SetGlobal(New(Config{Output: &buf}))

	ctx := WithCorrelationIDCtx(context.Background(), "sweep-7")
	FromCtx(ctx).Info("from ctx")

	if e := decodeLines(t, &buf)[0]; e["correlationId"] != "sweep-7" {
		t.Errorf("correlationId = %v", e["correlationId"])
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Output: &buf})

	ctx := WithCorrelationIDCtx(context.Background(), "c1")
	l := ContextLogger(ctx, base)
	l.Info("tagged")

	if l.CorrelationID() != "c1" {
		t.Errorf("CorrelationID() = %q", l.CorrelationID())
	}
	if e := decodeLines(t, &buf)[0]; e["correlationId"] != "c1" {
		t.Errorf("correlationId = %v", e["correlationId"])
	}

	if ContextLogger(context.Background(), base) != base {
		t.Error("ContextLogger without IDs should return base")
	}
	if ContextLogger(context.Background(), nil) != Global() {
		t.Error("ContextLogger with nil base should fall back to Global")
	}
}
