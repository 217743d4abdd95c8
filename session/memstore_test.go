package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/agentflow/core/errs"
)

func TestCreateSessionAndGetSession(t *testing.T) {
	s := NewMemStore()
	sess, err := s.CreateSession(context.Background(), "agent-1")
	require.NoError(t, err)
	require.NotEmpty(t, sess.SessionID)

	got, err := s.GetSession(context.Background(), sess.SessionID)
	require.NoError(t, err)
	require.Equal(t, sess.SessionID, got.SessionID)
	require.Equal(t, "agent-1", got.AgentID)
}

func TestGetSessionNotFound(t *testing.T) {
	s := NewMemStore()
	_, err := s.GetSession(context.Background(), "nope")
	require.ErrorIs(t, err, errs.ErrSessionNotFound)
}

func TestNextSequenceIsMonotonicPerSession(t *testing.T) {
	s := NewMemStore()
	n1, _ := s.NextSequence(context.Background(), "sess-1")
	n2, _ := s.NextSequence(context.Background(), "sess-1")
	n3, _ := s.NextSequence(context.Background(), "sess-2")
	require.Equal(t, 1, n1)
	require.Equal(t, 2, n2)
	require.Equal(t, 1, n3)
}

func TestSaveStepRejectsDuplicateSequence(t *testing.T) {
	s := NewMemStore()
	step := &Step{SessionID: "sess-1", Sequence: 1, Role: RoleUser, Content: "a"}
	require.NoError(t, s.SaveStep(context.Background(), step))
	err := s.SaveStep(context.Background(), &Step{SessionID: "sess-1", Sequence: 1, Role: RoleUser, Content: "b"})
	require.ErrorIs(t, err, errs.ErrDuplicateSequence)
}

func TestSaveStepKeepsSequenceOrderRegardlessOfInsertOrder(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.SaveStep(context.Background(), &Step{SessionID: "sess-1", Sequence: 2, Role: RoleAssistant}))
	require.NoError(t, s.SaveStep(context.Background(), &Step{SessionID: "sess-1", Sequence: 1, Role: RoleUser}))

	steps, err := s.ListSteps(context.Background(), "sess-1", SequenceRange{})
	require.NoError(t, err)
	require.Equal(t, 1, steps[0].Sequence)
	require.Equal(t, 2, steps[1].Sequence)
}

func TestListStepsRespectsRange(t *testing.T) {
	s := NewMemStore()
	for i := 1; i <= 5; i++ {
		require.NoError(t, s.SaveStep(context.Background(), &Step{SessionID: "sess-1", Sequence: i, Role: RoleUser}))
	}
	steps, err := s.ListSteps(context.Background(), "sess-1", SequenceRange{From: 2, To: 4})
	require.NoError(t, err)
	require.Len(t, steps, 3)
	require.Equal(t, 2, steps[0].Sequence)
	require.Equal(t, 4, steps[2].Sequence)
}

func TestFindStepByToolCallID(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.SaveStep(context.Background(), &Step{SessionID: "sess-1", Sequence: 1, Role: RoleTool, ToolCallID: "call-1", Content: "hi"}))

	st, found, err := s.FindStepByToolCallID(context.Background(), "sess-1", "call-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "hi", st.Content)

	_, found, err = s.FindStepByToolCallID(context.Background(), "sess-1", "call-2")
	require.NoError(t, err)
	require.False(t, found)
}

func TestSuspendedStateLifecycle(t *testing.T) {
	s := NewMemStore()
	_, err := s.GetSuspendedState(context.Background(), "run-1")
	require.ErrorIs(t, err, errs.ErrNoSuspendedState)

	require.NoError(t, s.SaveSuspendedState(context.Background(), &SuspendedState{RunID: "run-1"}))
	state, err := s.GetSuspendedState(context.Background(), "run-1")
	require.NoError(t, err)
	require.Equal(t, "run-1", state.RunID)

	require.NoError(t, s.DeleteSuspendedState(context.Background(), "run-1"))
	_, err = s.GetSuspendedState(context.Background(), "run-1")
	require.ErrorIs(t, err, errs.ErrNoSuspendedState)
}

func TestTryAcquireSessionRejectsConcurrentRun(t *testing.T) {
	s := NewMemStore()
	release, err := s.TryAcquireSession(context.Background(), "sess-1")
	require.NoError(t, err)

	_, err = s.TryAcquireSession(context.Background(), "sess-1")
	require.ErrorIs(t, err, errs.ErrSessionBusy)

	release()
	_, err = s.TryAcquireSession(context.Background(), "sess-1")
	require.NoError(t, err)
}

func TestDeleteSessionRemovesStepsAndSequence(t *testing.T) {
	s := NewMemStore()
	sess, _ := s.CreateSession(context.Background(), "agent-1")
	require.NoError(t, s.SaveStep(context.Background(), &Step{SessionID: sess.SessionID, Sequence: 1, Role: RoleUser}))

	require.NoError(t, s.DeleteSession(context.Background(), sess.SessionID))

	_, err := s.GetSession(context.Background(), sess.SessionID)
	require.ErrorIs(t, err, errs.ErrSessionNotFound)

	steps, err := s.ListSteps(context.Background(), sess.SessionID, SequenceRange{})
	require.NoError(t, err)
	require.Empty(t, steps)
}
