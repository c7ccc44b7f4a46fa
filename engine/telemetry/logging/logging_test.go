package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"

	internaltracing "tacklens/engine/internal/telemetry/tracing"
)

func TestCorrelatedLoggerAddsTraceSpan(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{AddSource: false}))
	log := New(base)

	tr := internaltracing.NewAdaptiveTracer(func() float64 { return 100 })
	ctx, span := tr.StartSpan(context.Background(), "op")
	defer span.End()
	log.InfoCtx(ctx, "hello", "k", "v")
	out := buf.String()
	if !strings.Contains(out, "trace_id=") || !strings.Contains(out, "span_id=") {
		t.Fatalf("expected trace/span in log: %s", out)
	}
}

func TestCorrelatedLoggerNoSpan(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	log.InfoCtx(context.Background(), "plain")
	if strings.Contains(buf.String(), "trace_id=") {
		t.Fatalf("unexpected trace id present")
	}
}

func TestWarnAndErrorLevels(t *testing.T) {
	var buf bytes.Buffer
	log := New(slog.New(slog.NewTextHandler(&buf, nil)))
	log.WarnCtx(context.Background(), "careful")
	log.ErrorCtx(context.Background(), "broken")
	out := buf.String()
	if !strings.Contains(out, "level=WARN") || !strings.Contains(out, "level=ERROR") {
		t.Fatalf("expected WARN and ERROR records: %s", out)
	}
}
