// Package fork implements session forking: branching a new session off
// an existing one's step history up to a given sequence, optionally
// editing the step at that cut point before the copy is sealed.
package fork

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/agentflow/core/model"
	"github.com/agentflow/core/session"
)

// Modifications optionally overrides the content or tool_calls of the
// step at up_to_sequence before it's copied into the new session.
type Modifications struct {
	Content   *string
	ToolCalls []model.ToolCall
}

// Result is what Fork returns.
type Result struct {
	NewSessionID string
	// PendingMessage is set when the modified cut-point step is a user
	// step: its content is handed back to the caller to send into the
	// new session, and the step itself is not copied, so the new
	// session ends just before it.
	PendingMessage string
}

// Fork copies sessionID's steps with sequence <= upToSequence into a
// freshly created session, applying mods to the copy of the step at
// upToSequence if provided. The new session's sequence counter is left
// at the last copied step's sequence: upToSequence, or upToSequence-1
// when an edited user step at the cut point is returned as
// PendingMessage, so that message, once sent, lands on upToSequence.
func Fork(ctx context.Context, store session.Store, sessionID string, upToSequence int, mods *Modifications) (Result, error) {
	src, err := store.GetSession(ctx, sessionID)
	if err != nil {
		return Result{}, fmt.Errorf("fork: get session: %w", err)
	}
	steps, err := store.ListSteps(ctx, sessionID, session.SequenceRange{From: 1, To: upToSequence})
	if err != nil {
		return Result{}, fmt.Errorf("fork: list steps: %w", err)
	}

	newSession, err := store.CreateSession(ctx, src.AgentID)
	if err != nil {
		return Result{}, fmt.Errorf("fork: create session: %w", err)
	}

	var pending string
	for _, st := range steps {
		cp := *st
		cp.SessionID = newSession.SessionID
		atCutPoint := cp.Sequence == upToSequence
		if atCutPoint && mods != nil {
			if mods.Content != nil {
				cp.Content = *mods.Content
			}
			if mods.ToolCalls != nil {
				cp.ToolCalls = mods.ToolCalls
			}
			if cp.Role == session.RoleUser {
				// An edited user step isn't replayed into the fork; its
				// edited content goes back to the caller to resubmit as
				// a fresh message, which will land on this same
				// sequence once the caller starts a run on the fork.
				pending = cp.Content
				continue
			}
		}
		if err := allocateSequence(ctx, store, newSession.SessionID, cp.Sequence); err != nil {
			return Result{}, fmt.Errorf("fork: allocate sequence %d: %w", cp.Sequence, err)
		}
		cp.StepID = uuid.NewString()
		if err := store.SaveStep(ctx, &cp); err != nil {
			return Result{}, fmt.Errorf("fork: save step: %w", err)
		}
	}

	slog.Debug("fork: created session", "source_session_id", sessionID, "new_session_id", newSession.SessionID, "up_to_sequence", upToSequence)
	return Result{NewSessionID: newSession.SessionID, PendingMessage: pending}, nil
}

// allocateSequence advances the new session's sequence counter to
// exactly want, relying on NextSequence's start-at-1, increment-by-1
// contract; a fresh session always starts at 0, so this is a no-op
// fast path for the common case of copying steps in order starting
// from sequence 1.
func allocateSequence(ctx context.Context, store session.Store, sessionID string, want int) error {
	for {
		got, err := store.NextSequence(ctx, sessionID)
		if err != nil {
			return err
		}
		if got == want {
			return nil
		}
		if got > want {
			return fmt.Errorf("sequence counter overran target %d (at %d)", want, got)
		}
	}
}
