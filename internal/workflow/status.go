package workflow

import "github.com/notadamking/elemental/internal/types"

// ComputeStatus implements compute_workflow_status: given a workflow's
// current status and the live status of its tasks, returns the next
// status and true, or ("", false) if no transition applies.
//
//   - pending -> running  when any task is in_progress
//   - running -> completed  when all tasks are closed
//   - pending|running -> failed  when any task is tombstone
//
// Failure is checked first: a tombstoned task always wins over an
// otherwise-complete set.
func ComputeStatus(current types.WorkflowStatus, tasks []*types.Task) (types.WorkflowStatus, bool) {
	if current != types.WorkflowPending && current != types.WorkflowRunning {
		return "", false
	}

	for _, t := range tasks {
		if t.Status == types.TaskTombstone {
			return types.WorkflowFailed, true
		}
	}

	if current == types.WorkflowPending {
		for _, t := range tasks {
			if t.Status == types.TaskInProgress {
				return types.WorkflowRunning, true
			}
		}
	}

	if current == types.WorkflowRunning && len(tasks) > 0 {
		allClosed := true
		for _, t := range tasks {
			if t.Status != types.TaskClosed {
				allClosed = false
				break
			}
		}
		if allClosed {
			return types.WorkflowCompleted, true
		}
	}

	return "", false
}
