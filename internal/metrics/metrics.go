// Package metrics wires ubifsck's run counters into an OpenTelemetry
// meter, exported over the standard Prometheus exposition format so a
// long-running rebuild/check pass can be observed from outside the
// process (spec.md has no dedicated monitoring section, but the core
// run still deserves the same kind of counters a batch tool always
// accrues: problems found, problems fixed, LEBs scanned, bytes
// processed).
package metrics

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// ProblemKindKey annotates a problem counter with its taxonomy Kind.
	ProblemKindKey = "problem_kind"
	// StageKey annotates a counter with the loader/rebuild stage name.
	StageKey = "stage"
)

var (
	problemMeter = otel.Meter("ubifsck/problem")
	scanMeter    = otel.Meter("ubifsck/scan")

	problemKindAttributeSet sync.Map
	stageAttributeSet       sync.Map
)

func loadOrStoreAttributeOption(mp *sync.Map, key string, gen func() attribute.Set) metric.MeasurementOption {
	v, ok := mp.Load(key)
	if ok {
		return v.(metric.MeasurementOption)
	}
	v, _ = mp.LoadOrStore(key, metric.WithAttributeSet(gen()))
	return v.(metric.MeasurementOption)
}

func problemAttrs(kind string) metric.MeasurementOption {
	return loadOrStoreAttributeOption(&problemKindAttributeSet, kind, func() attribute.Set {
		return attribute.NewSet(attribute.String(ProblemKindKey, kind))
	})
}

func stageAttrs(stage string) metric.MeasurementOption {
	return loadOrStoreAttributeOption(&stageAttributeSet, stage, func() attribute.Set {
		return attribute.NewSet(attribute.String(StageKey, stage))
	})
}

// Handle is the narrow counter surface fsck/check/rebuild record
// against; tests substitute a no-op Handle so the consistency engine
// never needs a live otel pipeline to run.
type Handle interface {
	ProblemFound(ctx context.Context, kind string)
	ProblemFixed(ctx context.Context, kind string)
	LebsScanned(ctx context.Context, inc int64, stage string)
	BytesProcessed(ctx context.Context, inc int64, stage string)
	StageLatency(ctx context.Context, latency time.Duration, stage string)
}

type otelMetrics struct {
	problemsFound  metric.Int64Counter
	problemsFixed  metric.Int64Counter
	lebsScanned    metric.Int64Counter
	bytesProcessed metric.Int64Counter
	stageLatency   metric.Float64Histogram
}

func (m *otelMetrics) ProblemFound(ctx context.Context, kind string) {
	m.problemsFound.Add(ctx, 1, problemAttrs(kind))
}

func (m *otelMetrics) ProblemFixed(ctx context.Context, kind string) {
	m.problemsFixed.Add(ctx, 1, problemAttrs(kind))
}

func (m *otelMetrics) LebsScanned(ctx context.Context, inc int64, stage string) {
	m.lebsScanned.Add(ctx, inc, stageAttrs(stage))
}

func (m *otelMetrics) BytesProcessed(ctx context.Context, inc int64, stage string) {
	m.bytesProcessed.Add(ctx, inc, stageAttrs(stage))
}

func (m *otelMetrics) StageLatency(ctx context.Context, latency time.Duration, stage string) {
	m.stageLatency.Record(ctx, float64(latency.Milliseconds()), stageAttrs(stage))
}

// New builds an otel-backed Handle registered against the global
// MeterProvider (the Prometheus exporter is started by cmd/ via
// exporter.go's StartPrometheusExporter when a metrics address is set).
func New() (Handle, error) {
	problemsFound, err1 := problemMeter.Int64Counter("ubifsck/problems_found",
		metric.WithDescription("Cumulative count of consistency problems detected, by kind."))
	problemsFixed, err2 := problemMeter.Int64Counter("ubifsck/problems_fixed",
		metric.WithDescription("Cumulative count of consistency problems fixed, by kind."))
	lebsScanned, err3 := scanMeter.Int64Counter("ubifsck/lebs_scanned",
		metric.WithDescription("Cumulative count of LEBs scanned, by stage."))
	bytesProcessed, err4 := scanMeter.Int64Counter("ubifsck/bytes_processed",
		metric.WithDescription("Cumulative bytes read during scanning, by stage."),
		metric.WithUnit("By"))
	stageLatency, err5 := scanMeter.Float64Histogram("ubifsck/stage_latency",
		metric.WithDescription("Distribution of per-stage wall-clock latency."),
		metric.WithUnit("ms"))

	if err := errors.Join(err1, err2, err3, err4, err5); err != nil {
		return nil, err
	}

	return &otelMetrics{
		problemsFound:  problemsFound,
		problemsFixed:  problemsFixed,
		lebsScanned:    lebsScanned,
		bytesProcessed: bytesProcessed,
		stageLatency:   stageLatency,
	}, nil
}

// NoOp is a Handle that discards every measurement, used by tests and by
// runs started without -metrics-addr.
type NoOp struct{}

func (NoOp) ProblemFound(context.Context, string)                  {}
func (NoOp) ProblemFixed(context.Context, string)                  {}
func (NoOp) LebsScanned(context.Context, int64, string)            {}
func (NoOp) BytesProcessed(context.Context, int64, string)         {}
func (NoOp) StageLatency(context.Context, time.Duration, string)   {}
