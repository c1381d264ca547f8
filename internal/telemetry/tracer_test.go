package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
)

func TestInitTracerProviderDisabledReturnsNoop(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitTracerProvider(context.Background(), false, "ixado-test", &buf)
	if err != nil {
		t.Fatalf("InitTracerProvider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "op")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no span output when disabled, got %q", buf.String())
	}
}

func TestInitTracerProviderEnabledWritesSpans(t *testing.T) {
	var buf bytes.Buffer
	tp, shutdown, err := InitTracerProvider(context.Background(), true, "ixado-test", &buf)
	if err != nil {
		t.Fatalf("InitTracerProvider: %v", err)
	}
	_, span := tp.Tracer("test").Start(context.Background(), "dispatch")
	span.End()
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
	if !strings.Contains(buf.String(), "dispatch") {
		t.Fatalf("expected span name in output, got %q", buf.String())
	}
}
