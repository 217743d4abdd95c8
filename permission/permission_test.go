package permission

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecideDefaultsToNeedsConsent(t *testing.T) {
	m := NewManager()
	require.Equal(t, NeedsConsent, m.Decide("u1", "shell(rm *)", false))
}

func TestDecideDefaultPolicyAllowBypassesConsent(t *testing.T) {
	m := NewManager()
	require.Equal(t, Allow, m.Decide("u1", "read_file(*)", true))
}

func TestDenyOverridesAllow(t *testing.T) {
	m := NewManager()
	m.RecordDecision("u1", "shell(*)", true)
	m.RecordDecision("u1", "shell(rm *)", false)

	require.Equal(t, Deny, m.Decide("u1", "shell(rm *)", true))
	require.Equal(t, Allow, m.Decide("u1", "shell(ls *)", true))
}

func TestDecisionsAreScopedPerUser(t *testing.T) {
	m := NewManager()
	m.RecordDecision("u1", "shell(*)", true)

	require.Equal(t, Allow, m.Decide("u1", "shell(ls)", false))
	require.Equal(t, NeedsConsent, m.Decide("u2", "shell(ls)", false))
}

func TestDoubleStarMatchesAcrossSegments(t *testing.T) {
	m := NewManager()
	m.RecordDecision("u1", "file_read(/data/**)", true)

	require.Equal(t, Allow, m.Decide("u1", "file_read(/data/a/b/c.txt)", false))
	require.Equal(t, NeedsConsent, m.Decide("u1", "file_read(/other/c.txt)", false))
}

func TestSnapshotIsACopy(t *testing.T) {
	m := NewManager()
	m.RecordDecision("u1", "shell(*)", true)
	snap := m.Snapshot("u1")
	snap.Allow[0] = "mutated"

	require.Equal(t, "shell(*)", m.Snapshot("u1").Allow[0])
}
