// telemetry.go - optional OpenTelemetry-backed instrumentation.
//
// Grounded on other_examples/minio-enterprise's go.mod (a real production
// wiring of go.opentelemetry.io/otel/.../sdk/.../trace) and on eventloop's
// own metrics.go, which gives its event loop an opt-in instrumentation
// surface for an otherwise allocation-free hot path. Recorder counters are
// pure observability: every increment happens on a control-flow path that
// was already decided, never used to gate behavior.
package lockfree

import (
	"context"

	"github.com/JoshMarron/lockfree/internal/hazard"
	"go.opentelemetry.io/otel/metric"
)

// Recorder mirrors internal/hazard.Recorder plus the counters the trie and
// segmented queue need for their own structural events (expansion,
// contention-driven retries, segment churn). The root package's containers
// accept a Recorder via WithMetrics so one meter can cover every container
// sharing a process.
type Recorder interface {
	hazard.Recorder
	IncExpansion()
	IncContention()
	ObserveSegmentCount(n int)
}

type noopContainerRecorder struct{}

func (noopContainerRecorder) IncScan()                {}
func (noopContainerRecorder) IncRetire(int)           {}
func (noopContainerRecorder) IncReclaim(int)          {}
func (noopContainerRecorder) IncExpansion()           {}
func (noopContainerRecorder) IncContention()          {}
func (noopContainerRecorder) ObserveSegmentCount(int) {}

// otelRecorder adapts Recorder onto a metric.Meter's instruments.
type otelRecorder struct {
	scans       metric.Int64Counter
	retired     metric.Int64Counter
	reclaimed   metric.Int64Counter
	expansions  metric.Int64Counter
	contentions metric.Int64Counter
	segments    metric.Int64Gauge
}

// NewOTelRecorder builds a Recorder backed by the given meter. Instrument
// creation errors are treated as invariant violations: a misconfigured
// meter at startup is a programming error, not a runtime condition a
// container operation could meaningfully react to.
func NewOTelRecorder(meter metric.Meter) Recorder {
	scans, err := meter.Int64Counter("lockfree.hazard.scans")
	if err != nil {
		invariantf("otel: creating scans counter: %v", err)
	}
	retired, err := meter.Int64Counter("lockfree.hazard.retired")
	if err != nil {
		invariantf("otel: creating retired counter: %v", err)
	}
	reclaimed, err := meter.Int64Counter("lockfree.hazard.reclaimed")
	if err != nil {
		invariantf("otel: creating reclaimed counter: %v", err)
	}
	expansions, err := meter.Int64Counter("lockfree.hashtrie.expansions")
	if err != nil {
		invariantf("otel: creating expansions counter: %v", err)
	}
	contentions, err := meter.Int64Counter("lockfree.hashtrie.contentions")
	if err != nil {
		invariantf("otel: creating contentions counter: %v", err)
	}
	segments, err := meter.Int64Gauge("lockfree.segqueue.segments")
	if err != nil {
		invariantf("otel: creating segments gauge: %v", err)
	}
	return &otelRecorder{
		scans:       scans,
		retired:     retired,
		reclaimed:   reclaimed,
		expansions:  expansions,
		contentions: contentions,
		segments:    segments,
	}
}

func (r *otelRecorder) IncScan() { r.scans.Add(context.Background(), 1) }
func (r *otelRecorder) IncRetire(n int) {
	if n > 0 {
		r.retired.Add(context.Background(), int64(n))
	}
}
func (r *otelRecorder) IncReclaim(n int) {
	if n > 0 {
		r.reclaimed.Add(context.Background(), int64(n))
	}
}
func (r *otelRecorder) IncExpansion()  { r.expansions.Add(context.Background(), 1) }
func (r *otelRecorder) IncContention() { r.contentions.Add(context.Background(), 1) }
func (r *otelRecorder) ObserveSegmentCount(n int) {
	r.segments.Record(context.Background(), int64(n))
}
