package workflow

import "github.com/agentflow/core/runnable"

// Resolver looks up a named, already-built runnable from a container.
type Resolver interface {
	Resolve(name string) (runnable.Runnable, bool)
}

// Stage is one unit of work inside a Pipeline, Parallel branch, or Loop
// body. Runnable is resolved once per invocation of the stage (lazily,
// so an inline spec is only constructed when it actually runs).
type Stage struct {
	ID        string
	Input     string // template, e.g. "previous said: {a.output}"
	Condition string // template condition; empty means always run
	Runnable  func() (runnable.Runnable, error)
}

// StageRef builds a Stage whose runnable is looked up by name from r
// at run time, failing the stage if the name isn't registered.
func StageRef(id string, r Resolver, name, input, condition string) Stage {
	return Stage{
		ID:        id,
		Input:     input,
		Condition: condition,
		Runnable: func() (runnable.Runnable, error) {
			rn, ok := r.Resolve(name)
			if !ok {
				return nil, unresolvedStageRunnable(name)
			}
			return rn, nil
		},
	}
}

// StageInline builds a Stage around a runnable constructed fresh each
// time the stage runs, for a fully inlined (not container-registered)
// nested workflow or agent spec.
func StageInline(id string, build func() (runnable.Runnable, error), input, condition string) Stage {
	return Stage{ID: id, Input: input, Condition: condition, Runnable: build}
}

type stageError struct{ msg string }

func (e *stageError) Error() string { return e.msg }

func unresolvedStageRunnable(name string) error {
	return &stageError{msg: "workflow: no runnable registered under name " + name}
}
