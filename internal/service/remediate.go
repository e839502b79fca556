package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shepd/shepherd/internal/domain/action"
	"github.com/shepd/shepherd/internal/port/controlplane"
)

// errNoRestarter is returned when a restart action runs without a configured
// sandbox-restart capability.
var errNoRestarter = errors.New("sandbox restart capability not configured")

// promptAgent nudges a silent or confused agent back to work by reporting it
// as working.
func (x *ActionExecutor) promptAgent(ctx context.Context, a action.Action) error {
	return x.cp.SendHeartbeat(ctx, a.AgentID, controlplane.AgentWorking)
}

// restartAgent restarts the agent's sandbox through the injected capability.
func (x *ActionExecutor) restartAgent(ctx context.Context, a action.Action) error {
	if x.restarter == nil {
		return errNoRestarter
	}
	return x.restarter.RestartSandbox(ctx, a.AgentID)
}

// reassignTask records the reassignment in the task's notes. The control
// plane exposes no pending/unassigned transition on this path, so the task's
// status is deliberately left unchanged.
func (x *ActionExecutor) reassignTask(ctx context.Context, a action.Action) error {
	notes := fmt.Sprintf("Unassigned from agent %s; awaiting manual reassignment", a.FromAgent)
	if a.ToAgent != "" {
		notes = fmt.Sprintf("Reassigned from agent %s to agent %s", a.FromAgent, a.ToAgent)
	}
	return x.cp.UpdateTask(ctx, a.TaskID, controlplane.TaskUpdate{Notes: notes})
}

// retryTask puts the task back in progress for another attempt. in_progress
// stands in for a true pending transition, which the control plane does not
// offer here.
func (x *ActionExecutor) retryTask(ctx context.Context, a action.Action) error {
	return x.cp.UpdateTask(ctx, a.TaskID, controlplane.TaskUpdate{
		Status: controlplane.TaskInProgress,
		Notes:  "Automatically retried after failure",
	})
}

// pauseAgent reports the agent as blocked so the control plane stops
// feeding it work.
func (x *ActionExecutor) pauseAgent(ctx context.Context, a action.Action) error {
	return x.cp.SendHeartbeat(ctx, a.AgentID, controlplane.AgentBlocked)
}

// releaseLock frees a distributed file lock held by the agent.
func (x *ActionExecutor) releaseLock(ctx context.Context, a action.Action) error {
	return x.cp.UnlockFile(ctx, a.FilePath, a.AgentID)
}

// updateTaskStatus is a direct passthrough update.
func (x *ActionExecutor) updateTaskStatus(ctx context.Context, a action.Action) error {
	return x.cp.UpdateTask(ctx, a.TaskID, controlplane.TaskUpdate{
		Status: controlplane.TaskStatus(a.Status),
		Notes:  a.Notes,
	})
}

// saveCheckpointAndPause checkpoints the agent, pauses it, and, when a task
// is attached, marks the task blocked. The three steps run in this exact
// order so a failure leaves the earlier durable state behind.
func (x *ActionExecutor) saveCheckpointAndPause(ctx context.Context, a action.Action) error {
	if err := x.cp.SaveCheckpoint(ctx, a.AgentID, a.TaskID, a.Stage, a.TokenCount); err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	if err := x.cp.SendHeartbeat(ctx, a.AgentID, controlplane.AgentBlocked); err != nil {
		return fmt.Errorf("pause agent: %w", err)
	}
	if a.TaskID == "" {
		return nil
	}
	return x.cp.UpdateTask(ctx, a.TaskID, controlplane.TaskUpdate{
		Status: controlplane.TaskBlocked,
		Notes: fmt.Sprintf("Context exhausted at %d/%d tokens; a new session is required to continue",
			a.TokenCount, a.TokenLimit),
	})
}
