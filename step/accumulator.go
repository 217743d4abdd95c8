// Package step implements the inner model-call/tool-call loop that
// drives a single run's steps, and the tool-call accumulator that
// reassembles streamed, sparse tool-call fragments into complete
// calls.
package step

import (
	"sort"
	"strings"

	"github.com/agentflow/core/model"
)

type accEntry struct {
	id        string
	name      string
	args      strings.Builder
	finalized bool
}

// Accumulator reassembles streamed tool-call fragments into complete
// calls, keyed by the sparse `index` each fragment carries. It
// tolerates fragments
// arriving out of order across indices, duplicated terminal snapshots
// (suppressed via a per-index finalized flag), and an id arriving after
// arguments have already started streaming.
type Accumulator struct {
	entries map[int]*accEntry
}

// NewAccumulator creates an empty accumulator for one assistant step.
func NewAccumulator() *Accumulator {
	return &Accumulator{entries: make(map[int]*accEntry)}
}

// Merge applies one streamed fragment.
func (a *Accumulator) Merge(frag model.ToolCallFragment) {
	e, ok := a.entries[frag.Index]
	if !ok {
		e = &accEntry{}
		a.entries[frag.Index] = e
	}
	if frag.ID != nil && e.id == "" {
		e.id = *frag.ID
	}
	if frag.Name != nil {
		e.name = *frag.Name
	}
	if !e.finalized && frag.Arguments != nil {
		e.args.WriteString(*frag.Arguments)
	}
	if frag.Final {
		e.finalized = true
	}
}

// Finalize returns the dense array of complete tool calls, ordered by
// fragment index ascending — the order the model originally emitted
// them in, which the step executor then uses to assign deterministic
// tool-step sequences regardless of completion order.
func (a *Accumulator) Finalize() []model.ToolCall {
	indices := make([]int, 0, len(a.entries))
	for idx := range a.entries {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	out := make([]model.ToolCall, 0, len(indices))
	for _, idx := range indices {
		e := a.entries[idx]
		out = append(out, model.ToolCall{ID: e.id, Name: e.name, ArgumentsJSON: e.args.String()})
	}
	return out
}

// Len reports how many distinct tool-call indices have been observed.
func (a *Accumulator) Len() int { return len(a.entries) }
