package graph

import (
	"context"
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func TestReadySortsByPriorityAscending(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	low := types.NewTask("el-low", "alice", time.Now(), "Low priority")
	low.Priority = 5
	high := types.NewTask("el-high", "alice", time.Now(), "High priority")
	high.Priority = 1
	require.NoError(t, s.Create(ctx, low, "alice"))
	require.NoError(t, s.Create(ctx, high, "alice"))

	ready, err := s.Ready(ctx, types.Filter{})
	require.NoError(t, err)
	require.Len(t, ready, 2)
	require.Equal(t, "el-high", ready[0].ID)
	require.Equal(t, "el-low", ready[1].ID)
}

func TestReadyExcludesBlockedAndFutureScheduled(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	a := types.NewTask("el-a", "alice", time.Now(), "A")
	b := types.NewTask("el-b", "alice", time.Now(), "B")
	future := types.NewTask("el-future", "alice", time.Now(), "Future")
	futureTime := s.now().Add(24 * time.Hour)
	future.ScheduledFor = &futureTime
	require.NoError(t, s.Create(ctx, a, "alice"))
	require.NoError(t, s.Create(ctx, b, "alice"))
	require.NoError(t, s.Create(ctx, future, "alice"))
	require.NoError(t, s.AddDependency(ctx, "el-a", "el-b", types.DepBlocks, nil, "alice"))

	ready, err := s.Ready(ctx, types.Filter{})
	require.NoError(t, err)
	ids := make(map[string]bool)
	for _, r := range ready {
		ids[r.ID] = true
	}
	require.True(t, ids["el-a"])
	require.False(t, ids["el-b"])
	require.False(t, ids["el-future"])
}

func TestReadyLimitAppliesAfterSort(t *testing.T) {
	s := newTestService()
	ctx := context.Background()

	for i, id := range []string{"el-a", "el-b", "el-c"} {
		task := types.NewTask(id, "alice", time.Now(), id)
		task.Priority = 3 - i
		require.NoError(t, s.Create(ctx, task, "alice"))
	}

	ready, err := s.Ready(ctx, types.Filter{Limit: 1})
	require.NoError(t, err)
	require.Len(t, ready, 1)
	require.Equal(t, "el-c", ready[0].ID)
}

func TestBlockedAugmentsWithBlockerReasons(t *testing.T) {
	s := newTestService()
	ctx := context.Background()
	a := types.NewTask("el-a", "alice", time.Now(), "A")
	b := types.NewTask("el-b", "alice", time.Now(), "B")
	require.NoError(t, s.Create(ctx, a, "alice"))
	require.NoError(t, s.Create(ctx, b, "alice"))
	require.NoError(t, s.AddDependency(ctx, "el-a", "el-b", types.DepBlocks, nil, "alice"))

	blocked, err := s.Blocked(ctx, types.Filter{})
	require.NoError(t, err)
	require.Len(t, blocked, 1)
	require.Equal(t, "el-b", blocked[0].ID)
	require.Len(t, blocked[0].Blockers, 1)
	require.Equal(t, "el-a", blocked[0].Blockers[0].BlockerID)
}
