package logger

import (
	"context"
	"testing"
)

func TestNewDefaultsOnBadLevel(t *testing.T) {
	l := New("kernel", Config{Level: "not-a-level", Format: "text"})
	if l.Logger.GetLevel().String() != "info" {
		t.Errorf("expected info level fallback, got %s", l.Logger.GetLevel())
	}
}

func TestWithContextCarriesTraceID(t *testing.T) {
	l := New("kernel", Config{Level: "debug", Format: "json"})
	ctx := WithTraceID(context.Background(), "abc-123")
	entry := l.WithContext(ctx)
	if entry.Data["trace_id"] != "abc-123" {
		t.Errorf("expected trace_id field, got %v", entry.Data["trace_id"])
	}
	if entry.Data["component"] != "kernel" {
		t.Errorf("expected component field, got %v", entry.Data["component"])
	}
}

func TestNewTraceIDUnique(t *testing.T) {
	a := NewTraceID()
	b := NewTraceID()
	if a == b {
		t.Errorf("expected unique trace IDs, got %s twice", a)
	}
	if a == "" {
		t.Error("trace ID should not be empty")
	}
}
