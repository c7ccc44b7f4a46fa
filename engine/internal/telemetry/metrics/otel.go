package metrics

// OpenTelemetry bridge implementing the Provider interface. Keeps the
// internal abstraction stable while letting deployments opt into OTel
// exporters. Gauges emulate Set semantics by applying deltas to an
// UpDownCounter.

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// OTelProviderOptions configure the bridge.
type OTelProviderOptions struct {
	ServiceName string // reserved for future resource attribution
}

// NewOTelProvider returns a Provider backed by an OTel MeterProvider.
// Exporters and views can be layered on by the host; zero-config here.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	mp := sdkmetric.NewMeterProvider()
	return &otelProvider{mp: mp, meter: mp.Meter("tacklens")}
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	inst, err := p.meter.Float64Counter(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	inst, err := p.meter.Float64UpDownCounter(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	inst, err := p.meter.Float64Histogram(buildOTelName(opts.CommonOpts), metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst, labelKeys: opts.Labels}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(HistogramOpts{CommonOpts: h.CommonOpts, Buckets: h.Buckets})
	return func() Timer { return &otelTimer{h: hist, start: time.Now()} }
}

func (p *otelProvider) Health(ctx context.Context) error { return nil }

// buildOTelName joins namespace/subsystem/name with '.' separators.
func buildOTelName(c CommonOpts) string {
	name := c.Name
	if c.Subsystem != "" {
		name = c.Subsystem + "." + name
	}
	if c.Namespace != "" {
		name = c.Namespace + "." + name
	}
	return name
}

type otelCounter struct {
	c         metric.Float64Counter
	labelKeys []string
}

func (c *otelCounter) Inc(delta float64, labels ...string) {
	if delta <= 0 {
		return
	}
	ctx := context.Background()
	if attrs := toAttributes(c.labelKeys, labels); len(attrs) > 0 {
		c.c.Add(ctx, delta, metric.WithAttributes(attrs...))
		return
	}
	c.c.Add(ctx, delta)
}

type otelGauge struct {
	g         metric.Float64UpDownCounter
	mu        sync.Mutex
	value     float64
	labelKeys []string
}

func (g *otelGauge) Set(v float64, labels ...string) {
	g.mu.Lock()
	diff := v - g.value
	g.value = v
	g.mu.Unlock()
	if diff == 0 {
		return
	}
	ctx := context.Background()
	if attrs := toAttributes(g.labelKeys, labels); len(attrs) > 0 {
		g.g.Add(ctx, diff, metric.WithAttributes(attrs...))
		return
	}
	g.g.Add(ctx, diff)
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	if delta == 0 {
		return
	}
	g.mu.Lock()
	g.value += delta
	g.mu.Unlock()
	ctx := context.Background()
	if attrs := toAttributes(g.labelKeys, labels); len(attrs) > 0 {
		g.g.Add(ctx, delta, metric.WithAttributes(attrs...))
		return
	}
	g.g.Add(ctx, delta)
}

type otelHistogram struct {
	h         metric.Float64Histogram
	labelKeys []string
}

func (h *otelHistogram) Observe(v float64, labels ...string) {
	ctx := context.Background()
	if attrs := toAttributes(h.labelKeys, labels); len(attrs) > 0 {
		h.h.Record(ctx, v, metric.WithAttributes(attrs...))
		return
	}
	h.h.Record(ctx, v)
}

type otelTimer struct {
	h     Histogram
	start time.Time
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(time.Since(t.start).Seconds(), labels...)
}

func toAttributes(keys, values []string) []attribute.KeyValue {
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	if n == 0 {
		return nil
	}
	out := make([]attribute.KeyValue, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, attribute.String(keys[i], values[i]))
	}
	return out
}
