// Package metrics instruments the engine with OpenTelemetry counters and
// histograms: mutation counts by kind and operation, blocked-cache rebuild
// duration (spec.md §4.4's rebuild() returns a duration we record here), and
// export/import record counts. A stdout exporter is wired by default so the
// engine is observable without standing up a collector.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Recorder is the instrumentation surface the engine's mutation kernel,
// blocked-cache service, and sync package call into. A nil *Recorder is
// valid and records nothing, so instrumentation is opt-in.
type Recorder struct {
	provider *sdkmetric.MeterProvider
	meter    metric.Meter

	mutations       metric.Int64Counter
	rebuildDuration metric.Float64Histogram
	rebuildElements metric.Int64Histogram
	syncRecords     metric.Int64Counter
}

// New builds a Recorder backed by a periodic-export stdout reader. Callers
// that want silence can pass a nil *Recorder instead of calling New.
func New() (*Recorder, error) {
	exporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("metrics: creating stdout exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(60*time.Second))),
	)
	meter := provider.Meter("github.com/notadamking/elemental")

	mutations, err := meter.Int64Counter("elemental.mutations",
		metric.WithDescription("count of Create/Update/Delete calls by element kind and operation"))
	if err != nil {
		return nil, err
	}
	rebuildDuration, err := meter.Float64Histogram("elemental.blockedcache.rebuild.duration",
		metric.WithDescription("wall-clock duration of a full blocked-cache rebuild"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	rebuildElements, err := meter.Int64Histogram("elemental.blockedcache.rebuild.elements_checked",
		metric.WithDescription("elements examined during a full blocked-cache rebuild"))
	if err != nil {
		return nil, err
	}
	syncRecords, err := meter.Int64Counter("elemental.sync.records",
		metric.WithDescription("count of export/import records by direction and kind"))
	if err != nil {
		return nil, err
	}

	return &Recorder{
		provider:        provider,
		meter:           meter,
		mutations:       mutations,
		rebuildDuration: rebuildDuration,
		rebuildElements: rebuildElements,
		syncRecords:     syncRecords,
	}, nil
}

// Shutdown flushes and stops the underlying provider. Safe to call on a nil
// Recorder.
func (r *Recorder) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	return r.provider.Shutdown(ctx)
}

// RecordMutation increments the mutation counter for one Create/Update/Delete
// call. Safe to call on a nil Recorder.
func (r *Recorder) RecordMutation(ctx context.Context, kind, op string) {
	if r == nil {
		return
	}
	r.mutations.Add(ctx, 1, metric.WithAttributes(
		kindAttr(kind), opAttr(op),
	))
}

// RecordRebuild records one blocked-cache rebuild's duration and elements
// checked. Safe to call on a nil Recorder.
func (r *Recorder) RecordRebuild(ctx context.Context, elementsChecked int, d time.Duration) {
	if r == nil {
		return
	}
	r.rebuildDuration.Record(ctx, d.Seconds())
	r.rebuildElements.Record(ctx, int64(elementsChecked))
}

// RecordSync increments the export/import record counter. direction is
// "export" or "import". Safe to call on a nil Recorder.
func (r *Recorder) RecordSync(ctx context.Context, direction string, count int) {
	if r == nil || count == 0 {
		return
	}
	r.syncRecords.Add(ctx, int64(count), metric.WithAttributes(directionAttr(direction)))
}
