// Package otelmetrics records the bookings core metrics surface onto
// OpenTelemetry instruments.
package otelmetrics

import (
	"context"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/goliatone/go-bookings/core"
)

const instrumentationName = "github.com/goliatone/go-bookings"

// Recorder implements core.MetricsRecorder over an otel Meter.
// Instruments are created lazily and cached by metric name.
type Recorder struct {
	meter metric.Meter

	mu         sync.Mutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewRecorder builds a recorder on the given meter. A nil meter falls
// back to the globally registered meter provider.
func NewRecorder(meter metric.Meter) *Recorder {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	return &Recorder{
		meter:      meter,
		counters:   map[string]metric.Int64Counter{},
		histograms: map[string]metric.Float64Histogram{},
	}
}

func (r *Recorder) IncCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if r == nil || name == "" {
		return
	}
	counter, err := r.counter(name)
	if err != nil {
		return
	}
	counter.Add(ctx, value, metric.WithAttributes(attributesFromTags(tags)...))
}

func (r *Recorder) ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if r == nil || name == "" {
		return
	}
	histogram, err := r.histogram(name)
	if err != nil {
		return
	}
	histogram.Record(ctx, value, metric.WithAttributes(attributesFromTags(tags)...))
}

func (r *Recorder) counter(name string) (metric.Int64Counter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if counter, ok := r.counters[name]; ok {
		return counter, nil
	}
	counter, err := r.meter.Int64Counter(name)
	if err != nil {
		return nil, err
	}
	r.counters[name] = counter
	return counter, nil
}

func (r *Recorder) histogram(name string) (metric.Float64Histogram, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if histogram, ok := r.histograms[name]; ok {
		return histogram, nil
	}
	histogram, err := r.meter.Float64Histogram(name)
	if err != nil {
		return nil, err
	}
	r.histograms[name] = histogram
	return histogram, nil
}

// attributesFromTags produces a deterministic attribute order so tests
// and exporters see stable attribute sets.
func attributesFromTags(tags map[string]string) []attribute.KeyValue {
	if len(tags) == 0 {
		return nil
	}
	keys := make([]string, 0, len(tags))
	for key := range tags {
		if key == "" {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(key, tags[key]))
	}
	return attrs
}

var _ core.MetricsRecorder = (*Recorder)(nil)
