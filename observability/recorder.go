package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Recorder wraps a TraceStore and mirrors every write onto an OTel
// tracer/meter pair plus a small set of Prometheus gauges tracking
// process-wide run state. Constructing a Recorder with a nil
// TracerProvider/MeterProvider falls back to OTel's global providers,
// which default to no-ops until a real SDK is installed.
type Recorder struct {
	store  TraceStore
	tracer trace.Tracer
	meter  metric.Meter

	llmDuration metric.Float64Histogram
	tokensIn    metric.Int64Counter
	tokensOut   metric.Int64Counter
	runDuration metric.Float64Histogram

	ActiveRuns     prometheus.Gauge
	SuspendedRuns  prometheus.Gauge
	ContainerItems prometheus.Gauge
}

// NewRecorder builds a Recorder over store, registering its
// Prometheus gauges into registry (a nil registry uses the default
// global one).
func NewRecorder(store TraceStore, tp trace.TracerProvider, mp metric.MeterProvider, registry prometheus.Registerer) (*Recorder, error) {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	tracer := tp.Tracer("agentflow/core")
	meter := mp.Meter("agentflow/core")

	llmDuration, err := meter.Float64Histogram("agentflow.llm.call.duration",
		metric.WithDescription("LLM call duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	tokensIn, err := meter.Int64Counter("agentflow.llm.tokens.input",
		metric.WithDescription("input tokens consumed"))
	if err != nil {
		return nil, err
	}
	tokensOut, err := meter.Int64Counter("agentflow.llm.tokens.output",
		metric.WithDescription("output tokens generated"))
	if err != nil {
		return nil, err
	}
	runDuration, err := meter.Float64Histogram("agentflow.run.duration",
		metric.WithDescription("run duration in seconds"), metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	r := &Recorder{
		store:       store,
		tracer:      tracer,
		meter:       meter,
		llmDuration: llmDuration,
		tokensIn:    tokensIn,
		tokensOut:   tokensOut,
		runDuration: runDuration,
		ActiveRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow", Subsystem: "run", Name: "active", Help: "runs currently executing",
		}),
		SuspendedRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow", Subsystem: "run", Name: "suspended", Help: "runs suspended awaiting a human response",
		}),
		ContainerItems: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "agentflow", Subsystem: "container", Name: "instances", Help: "live component instances in the container",
		}),
	}
	if err := registry.Register(r.ActiveRuns); err != nil {
		return nil, err
	}
	if err := registry.Register(r.SuspendedRuns); err != nil {
		return nil, err
	}
	if err := registry.Register(r.ContainerItems); err != nil {
		return nil, err
	}
	return r, nil
}

// RecordLLMCall opens and closes a span around one LLM call, records
// token/duration metrics, and persists the record into the underlying
// store.
func (r *Recorder) RecordLLMCall(ctx context.Context, sessionID string, rec TraceRecord) error {
	_, span := r.tracer.Start(ctx, "llm.call", trace.WithAttributes(
		attribute.String("session_id", sessionID),
		attribute.String("run_id", rec.RunID),
		attribute.Int("step_sequence", rec.StepSequence),
		attribute.String("model", rec.ModelName),
	))
	defer span.End()

	attrs := metric.WithAttributes(attribute.String("model", rec.ModelName))
	r.llmDuration.Record(ctx, rec.Duration.Seconds(), attrs)
	r.tokensIn.Add(ctx, int64(rec.InputTokens), attrs)
	r.tokensOut.Add(ctx, int64(rec.OutputTokens), attrs)

	return r.store.RecordLLMCall(ctx, sessionID, rec)
}

// RecordRun records a run's aggregated usage summary.
func (r *Recorder) RecordRun(ctx context.Context, sessionID, runID string, summary UsageSummary) error {
	r.runDuration.Record(ctx, summary.Duration.Seconds(), metric.WithAttributes(
		attribute.String("run_id", runID),
	))
	return r.store.RecordRun(ctx, sessionID, runID, summary)
}

// Query delegates to the underlying store.
func (r *Recorder) Query(ctx context.Context, sessionID string) ([]TraceRecord, error) {
	return r.store.Query(ctx, sessionID)
}

// RunSummary delegates to the underlying store.
func (r *Recorder) RunSummary(ctx context.Context, runID string) (UsageSummary, bool, error) {
	return r.store.RunSummary(ctx, runID)
}

// StartRun marks one more run as active and returns a function to call
// when the run finishes, which decrements the gauge and records
// summary against runID.
func (r *Recorder) StartRun(ctx context.Context, sessionID, runID string) (finish func(summary UsageSummary)) {
	r.ActiveRuns.Inc()
	started := time.Now()
	return func(summary UsageSummary) {
		r.ActiveRuns.Dec()
		if summary.Duration == 0 {
			summary.Duration = time.Since(started)
		}
		_ = r.RecordRun(ctx, sessionID, runID, summary)
	}
}
