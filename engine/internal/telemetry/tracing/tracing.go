// Package tracing provides a lightweight internal tracer used for event
// correlation. It samples adaptively by percentage; the heavier OTel span
// pipeline lives in the monitoring package.
package tracing

import (
	"context"
	randcrypto "crypto/rand"
	"encoding/hex"
	"math/rand"
	"sync"
	"time"
)

type Span interface {
	End()
	SetAttribute(key string, value any)
	Context() SpanContext
	IsEnded() bool
}

type SpanContext struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
	Start        time.Time
	EndTime      time.Time
}

type Tracer interface {
	StartSpan(ctx context.Context, name string) (context.Context, Span)
	Noop() bool
}

type noopTracer struct{}
type noopSpan struct{}

func (noopTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	return ctx, noopSpan{}
}
func (noopTracer) Noop() bool                       { return true }
func (noopSpan) End()                               {}
func (noopSpan) SetAttribute(key string, value any) {}
func (noopSpan) Context() SpanContext               { return SpanContext{} }
func (noopSpan) IsEnded() bool                      { return true }

// NewAdaptiveTracer samples new traces at the percentage returned by
// percentFn at span-start time. Child spans of a sampled trace are always
// recorded.
func NewAdaptiveTracer(percentFn func() float64) Tracer {
	if percentFn == nil {
		return noopTracer{}
	}
	return &adaptiveTracer{policyFn: percentFn}
}

type adaptiveTracer struct{ policyFn func() float64 }

func (a *adaptiveTracer) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	parent := spanFromContext(ctx)
	traceID := parent.ctx.TraceID
	if traceID == "" {
		pct := a.policyFn()
		if pct <= 0 || rand.Float64()*100 > pct {
			return ctx, noopSpan{}
		}
		traceID = newID(16)
	}
	sp := &span{ctx: SpanContext{TraceID: traceID, SpanID: newID(8), ParentSpanID: parent.ctx.SpanID, Start: time.Now()}, attrs: make(map[string]any)}
	return context.WithValue(ctx, spanKey{}, sp), sp
}

func (a *adaptiveTracer) Noop() bool { return false }

type span struct {
	ctx   SpanContext
	mu    sync.Mutex
	ended bool
	attrs map[string]any
}

func (s *span) End() {
	s.mu.Lock()
	if !s.ended {
		s.ctx.EndTime = time.Now()
		s.ended = true
	}
	s.mu.Unlock()
}

func (s *span) SetAttribute(key string, value any) {
	s.mu.Lock()
	if s.attrs != nil {
		s.attrs[key] = value
	}
	s.mu.Unlock()
}

func (s *span) Context() SpanContext { return s.ctx }

func (s *span) IsEnded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

type spanKey struct{}

func spanFromContext(ctx context.Context) *span {
	if ctx == nil {
		return &span{}
	}
	if sp, ok := ctx.Value(spanKey{}).(*span); ok {
		return sp
	}
	return &span{}
}

// ExtractIDs returns the trace and span IDs carried by ctx, empty when no
// span is active.
func ExtractIDs(ctx context.Context) (traceID, spanID string) {
	sp := spanFromContext(ctx)
	return sp.ctx.TraceID, sp.ctx.SpanID
}

func newID(n int) string {
	b := make([]byte, n)
	_, _ = randcrypto.Read(b)
	return hex.EncodeToString(b)
}
