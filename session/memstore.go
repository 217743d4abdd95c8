package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentflow/core/errs"
)

// MemStore is an in-memory Store, sufficient for tests and
// single-process deployments.
type MemStore struct {
	mu sync.Mutex

	sessions  map[string]*Session
	runs      map[string]*Run
	steps     map[string][]*Step // sessionID -> steps in sequence order
	sequences map[string]int
	suspended map[string]*SuspendedState
	responses map[string]*InteractionResponse
	busy      map[string]bool
}

// NewMemStore constructs an empty in-memory Store.
func NewMemStore() *MemStore {
	return &MemStore{
		sessions:  make(map[string]*Session),
		runs:      make(map[string]*Run),
		steps:     make(map[string][]*Step),
		sequences: make(map[string]int),
		suspended: make(map[string]*SuspendedState),
		responses: make(map[string]*InteractionResponse),
		busy:      make(map[string]bool),
	}
}

func (s *MemStore) CreateSession(ctx context.Context, agentID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess := &Session{
		SessionID: uuid.NewString(),
		CreatedAt: time.Now(),
		AgentID:   agentID,
	}
	s.sessions[sess.SessionID] = sess
	return sess, nil
}

func (s *MemStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return nil, errs.ErrSessionNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *MemStore) DeleteSession(ctx context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	delete(s.steps, sessionID)
	delete(s.sequences, sessionID)
	return nil
}

func (s *MemStore) SaveRun(ctx context.Context, run *Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *run
	s.runs[run.RunID] = &cp
	return nil
}

func (s *MemStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[runID]
	if !ok {
		return nil, errs.ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (s *MemStore) NextSequence(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sequences[sessionID]++
	return s.sequences[sessionID], nil
}

func (s *MemStore) SaveStep(ctx context.Context, step *Step) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.steps[step.SessionID] {
		if existing.Sequence == step.Sequence {
			return errs.ErrDuplicateSequence
		}
	}
	cp := *step
	s.steps[step.SessionID] = append(s.steps[step.SessionID], &cp)
	sort.Slice(s.steps[step.SessionID], func(i, j int) bool {
		return s.steps[step.SessionID][i].Sequence < s.steps[step.SessionID][j].Sequence
	})
	return nil
}

func (s *MemStore) GetStep(ctx context.Context, sessionID string, sequence int) (*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps[sessionID] {
		if st.Sequence == sequence {
			cp := *st
			return &cp, nil
		}
	}
	return nil, errs.ErrSessionNotFound
}

func (s *MemStore) ListSteps(ctx context.Context, sessionID string, r SequenceRange) ([]*Step, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Step
	for _, st := range s.steps[sessionID] {
		if st.Sequence < r.From {
			continue
		}
		if r.To > 0 && st.Sequence > r.To {
			continue
		}
		cp := *st
		out = append(out, &cp)
	}
	return out, nil
}

func (s *MemStore) FindStepByToolCallID(ctx context.Context, sessionID, toolCallID string) (*Step, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, st := range s.steps[sessionID] {
		if st.Role == RoleTool && st.ToolCallID == toolCallID {
			cp := *st
			return &cp, true, nil
		}
	}
	return nil, false, nil
}

func (s *MemStore) SaveSuspendedState(ctx context.Context, state *SuspendedState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *state
	s.suspended[state.RunID] = &cp
	return nil
}

func (s *MemStore) GetSuspendedState(ctx context.Context, runID string) (*SuspendedState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.suspended[runID]
	if !ok {
		return nil, errs.ErrNoSuspendedState
	}
	cp := *st
	return &cp, nil
}

func (s *MemStore) DeleteSuspendedState(ctx context.Context, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.suspended, runID)
	return nil
}

func (s *MemStore) SaveInteractionResponse(ctx context.Context, resp *InteractionResponse) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *resp
	s.responses[resp.RequestID] = &cp
	return nil
}

func (s *MemStore) TryAcquireSession(ctx context.Context, sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.busy[sessionID] {
		return nil, errs.ErrSessionBusy
	}
	s.busy[sessionID] = true
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.busy, sessionID)
	}, nil
}
