// Package tool implements the tool contract and the tool executor that
// invokes a registered tool by name, enforces abort signalling,
// consults the permission manager, caches pure results, and produces a
// Result.
package tool

import (
	"context"

	"github.com/agentflow/core/runctx"
)

// Definition describes a tool's name, description, and argument schema
// to both the model (as a model.ToolDefinition) and the executor (for
// argument validation).
type Definition struct {
	Name        string
	Description string
	Schema      map[string]any // JSON Schema for arguments_json
	// Pure declares the tool's result depends only on its arguments, so
	// the executor may cache results keyed by (name, canonical args).
	Pure bool
	// DefaultPolicyAllow, when true, bypasses the consent path in the
	// permission manager but remains subject to explicit deny entries.
	DefaultPolicyAllow bool
}

// Tool is the contract a concrete tool implementation must satisfy.
// Concrete tool bodies (file I/O, shell, web, MCP, ...) are external
// collaborators; this package provides only the contract plus a
// couple of trivial tools used by the scenario tests.
type Tool interface {
	Definition() Definition
	// Execute runs the tool body. ctx carries the abort signal; a
	// well-behaved tool selects on ctx.Done() for long-running work.
	// content is fed back to the model; contentForUser, if non-empty,
	// is display-only and never replayed into any model call.
	Execute(ctx context.Context, args map[string]any) (content string, contentForUser string, err error)
}

// ExecutionAware is optionally implemented by a Tool that needs the
// calling run's full ExecutionContext rather than just ctx and
// arguments — the runnable-as-tool adapter is the only current
// implementer, since it must derive a child context (depth, parent run
// id, forwarded wire) to invoke the nested runnable correctly. The
// executor checks for this interface before falling back to Execute.
type ExecutionAware interface {
	ExecuteWithContext(ctx context.Context, ectx *runctx.ExecutionContext, args map[string]any) (content string, contentForUser string, err error)
}

// Map is a name-keyed tool lookup, the shape the executor resolves
// calls against.
type Map map[string]Tool

// Definitions returns model-facing tool definitions for every tool in
// m, in a stable order (sorted by name) so prompts are deterministic
// across runs.
func (m Map) Definitions() []Definition {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sortStrings(names)
	defs := make([]Definition, 0, len(names))
	for _, name := range names {
		defs = append(defs, m[name].Definition())
	}
	return defs
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}
