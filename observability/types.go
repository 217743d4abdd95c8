// Package observability records per-LLM-call traces and per-run usage
// summaries, and mirrors them onto OpenTelemetry spans/metrics and
// Prometheus gauges for process-wide visibility.
package observability

import "time"

// TraceRecord is one LLM call within a run.
type TraceRecord struct {
	RunID        string
	StepSequence int
	ModelName    string
	InputTokens  int
	OutputTokens int
	Duration     time.Duration
	StartedAt    time.Time
}

// UsageSummary aggregates token and tool-call accounting across a run
// or a session.
type UsageSummary struct {
	InputTokens  int
	OutputTokens int
	ToolCalls    int
	Duration     time.Duration
}

// TotalTokens is InputTokens + OutputTokens.
func (u UsageSummary) TotalTokens() int {
	return u.InputTokens + u.OutputTokens
}

// Add folds o into u in place.
func (u *UsageSummary) Add(o UsageSummary) {
	u.InputTokens += o.InputTokens
	u.OutputTokens += o.OutputTokens
	u.ToolCalls += o.ToolCalls
	u.Duration += o.Duration
}
