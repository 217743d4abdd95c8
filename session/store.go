package session

import "context"

// Store is the durable persistence contract the runtime depends on.
// Concrete backends (SQL, key-value, ...) are external collaborators;
// this package also ships an in-memory Store (memstore.go) sufficient
// for tests and single-process deployments.
//
// Implementations must make NextSequence atomic within a session and
// must reject SaveStep calls that would create a duplicate sequence.
type Store interface {
	CreateSession(ctx context.Context, agentID string) (*Session, error)
	GetSession(ctx context.Context, sessionID string) (*Session, error)
	DeleteSession(ctx context.Context, sessionID string) error

	SaveRun(ctx context.Context, run *Run) error
	GetRun(ctx context.Context, runID string) (*Run, error)

	// NextSequence atomically allocates and returns the next step
	// sequence for sessionID, starting at 1.
	NextSequence(ctx context.Context, sessionID string) (int, error)

	SaveStep(ctx context.Context, step *Step) error
	GetStep(ctx context.Context, sessionID string, sequence int) (*Step, error)
	// ListSteps returns steps in sequence order, inclusive of r.
	ListSteps(ctx context.Context, sessionID string, r SequenceRange) ([]*Step, error)
	// FindStepByToolCallID reports whether a tool step already exists
	// for (sessionID, toolCallID), used by the resume engine for
	// idempotence.
	FindStepByToolCallID(ctx context.Context, sessionID, toolCallID string) (*Step, bool, error)

	SaveSuspendedState(ctx context.Context, state *SuspendedState) error
	GetSuspendedState(ctx context.Context, runID string) (*SuspendedState, error)
	DeleteSuspendedState(ctx context.Context, runID string) error
	SaveInteractionResponse(ctx context.Context, resp *InteractionResponse) error

	// TryAcquireSession serializes concurrent runs on one session;
	// a second concurrent run is rejected rather than interleaved.
	// Returns errs.ErrSessionBusy if a run is already active. release
	// must be called exactly once when the run finishes.
	TryAcquireSession(ctx context.Context, sessionID string) (release func(), err error)
}
