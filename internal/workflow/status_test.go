package workflow

import (
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func task(status types.TaskStatus) *types.Task {
	t := types.NewTask("el-t", "alice", time.Now(), "T")
	t.Status = status
	return t
}

func TestComputeStatusPendingToRunning(t *testing.T) {
	next, changed := ComputeStatus(types.WorkflowPending, []*types.Task{task(types.TaskOpen), task(types.TaskInProgress)})
	require.True(t, changed)
	require.Equal(t, types.WorkflowRunning, next)
}

func TestComputeStatusRunningToCompleted(t *testing.T) {
	next, changed := ComputeStatus(types.WorkflowRunning, []*types.Task{task(types.TaskClosed), task(types.TaskClosed)})
	require.True(t, changed)
	require.Equal(t, types.WorkflowCompleted, next)
}

func TestComputeStatusAnyTombstoneFails(t *testing.T) {
	next, changed := ComputeStatus(types.WorkflowRunning, []*types.Task{task(types.TaskInProgress), task(types.TaskTombstone)})
	require.True(t, changed)
	require.Equal(t, types.WorkflowFailed, next)
}

func TestComputeStatusNoChangeWhenStillOpen(t *testing.T) {
	_, changed := ComputeStatus(types.WorkflowRunning, []*types.Task{task(types.TaskOpen)})
	require.False(t, changed)
}

func TestComputeStatusTerminalWorkflowNeverTransitions(t *testing.T) {
	_, changed := ComputeStatus(types.WorkflowCompleted, []*types.Task{task(types.TaskTombstone)})
	require.False(t, changed)
}

func TestComputeStatusEmptyTaskSetDoesNotComplete(t *testing.T) {
	_, changed := ComputeStatus(types.WorkflowRunning, nil)
	require.False(t, changed)
}
