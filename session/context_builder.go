package session

import (
	"context"
	"fmt"

	"github.com/agentflow/core/errs"
	"github.com/agentflow/core/model"
)

// ContextBuilderOptions controls projection policy.
type ContextBuilderOptions struct {
	// SystemPrompt, if non-empty, is prepended as a system message.
	SystemPrompt string
	// IncludeReasoning controls whether ReasoningContent is projected
	// onto the assistant message (providers vary on whether prior
	// reasoning should be replayed).
	IncludeReasoning bool
	// TruncateToLastN keeps only the last N steps, never splitting an
	// assistant-with-tool-calls group from its tool steps. 0 means no
	// truncation.
	TruncateToLastN int
}

// BuildContext reconstructs the LLM-visible message list for a session
// up to and including upToSequence (0 means "through the latest
// persisted step"). content_for_user is never projected; an assistant
// step's tool_calls must be immediately followed by all of its matching
// tool steps before the next assistant step — this function enforces
// that invariant on read rather than assuming the writer held it,
// because the step store may be shared across writers.
func BuildContext(ctx context.Context, store Store, sessionID string, upToSequence int, opts ContextBuilderOptions) ([]model.Message, error) {
	steps, err := store.ListSteps(ctx, sessionID, SequenceRange{From: 1, To: upToSequence})
	if err != nil {
		return nil, fmt.Errorf("context builder: list steps: %w", err)
	}

	if err := validateGrouping(steps); err != nil {
		return nil, err
	}

	groups := groupBySteps(steps, opts.TruncateToLastN)

	var out []model.Message
	if opts.SystemPrompt != "" {
		out = append(out, model.Message{Role: string(RoleSystem), Content: opts.SystemPrompt})
	}
	for _, st := range groups {
		out = append(out, projectStep(st, opts.IncludeReasoning))
	}
	return out, nil
}

func projectStep(st *Step, includeReasoning bool) model.Message {
	msg := model.Message{
		Role:       string(st.Role),
		Content:    st.Content,
		ToolCallID: st.ToolCallID,
		Name:       st.Name,
		ToolCalls:  st.ToolCalls,
	}
	if includeReasoning {
		msg.ReasoningContent = st.ReasoningContent
	}
	return msg
}

// validateGrouping rejects a step sequence where an assistant step with
// tool_calls is not immediately followed (before the next assistant
// step) by tool steps matching every tool_call_id as a multiset.
func validateGrouping(steps []*Step) error {
	i := 0
	for i < len(steps) {
		st := steps[i]
		if st.Role != RoleAssistant || len(st.ToolCalls) == 0 {
			i++
			continue
		}
		want := map[string]int{}
		for _, tc := range st.ToolCalls {
			want[tc.ID]++
		}
		j := i + 1
		got := map[string]int{}
		for j < len(steps) && steps[j].Role == RoleTool {
			got[steps[j].ToolCallID]++
			j++
		}
		for id, n := range want {
			if got[id] != n {
				return fmt.Errorf("%w: assistant step seq=%d tool_call_id=%s has no matching tool step before next assistant step", errs.ErrMissingToolMatch, st.Sequence, id)
			}
		}
		i = j
	}
	return nil
}

// groupBySteps applies last-N truncation without splitting an
// assistant/tool-steps group.
func groupBySteps(steps []*Step, lastN int) []*Step {
	if lastN <= 0 || len(steps) <= lastN {
		return steps
	}
	// Start from the last lastN steps, then widen to a group boundary
	// so we never start mid-group.
	cut := len(steps) - lastN
	// cut is the earliest index we'd like to keep; while it lands on a
	// tool step, move it back so the assistant step that issued the
	// call (and its other tool results) is kept too.
	for cut > 0 && steps[cut].Role == RoleTool {
		cut--
	}
	return steps[cut:]
}
