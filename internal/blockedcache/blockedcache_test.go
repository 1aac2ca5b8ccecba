package blockedcache

import (
	"context"
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/storage/memory"
	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func putTask(t *testing.T, b storage.Backend, id string, status types.TaskStatus) {
	t.Helper()
	task := types.NewTask(id, "alice", time.Now(), id)
	task.Status = status
	row, err := storage.Encode(task)
	require.NoError(t, err)
	require.NoError(t, b.PutElement(context.Background(), row))
}

func putDep(t *testing.T, b storage.Backend, src, tgt string, typ types.DependencyType) types.Dependency {
	t.Helper()
	dep := types.Dependency{SourceID: src, TargetID: tgt, Type: typ, CreatedAt: time.Now(), CreatedBy: "alice"}
	require.NoError(t, b.PutDependency(context.Background(), dep))
	return dep
}

func TestOnDependencyAddedBlocksWhileSourceLive(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)
	dep := putDep(t, b, "el-a", "el-b", types.DepBlocks)

	svc := New(b, Hooks{})
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, "el-a", rows[0].BlockerID)
}

func TestOnDependencyAddedSkipsTerminalSource(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskClosed)
	putTask(t, b, "el-b", types.TaskOpen)
	dep := putDep(t, b, "el-a", "el-b", types.DepBlocks)

	svc := New(b, Hooks{})
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestOnDependencyAddedPropagatesTransitiveBlockers(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)
	putTask(t, b, "el-c", types.TaskOpen)

	svc := New(b, Hooks{})
	dep1 := putDep(t, b, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep1))

	dep2 := putDep(t, b, "el-b", "el-c", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep2))

	rows, err := b.BlockedRows(ctx, "el-c")
	require.NoError(t, err)
	blockers := map[string]bool{}
	for _, r := range rows {
		blockers[r.BlockerID] = true
	}
	require.True(t, blockers["el-b"])
	require.True(t, blockers["el-a"])
}

func TestAutoBlockAndUnblockHooksFire(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)

	var blockedID string
	var unblockedID string
	var restoreStatus types.TaskStatus
	svc := New(b, Hooks{
		OnBlock: func(ctx context.Context, id string, prev types.TaskStatus) error {
			blockedID = id
			// Like the real hook, leave the task in status blocked.
			putTask(t, b, id, types.TaskBlocked)
			return nil
		},
		OnUnblock: func(ctx context.Context, id string, restore types.TaskStatus) error {
			unblockedID = id
			restoreStatus = restore
			return nil
		},
	})

	dep := putDep(t, b, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))
	require.Equal(t, "el-b", blockedID)

	require.NoError(t, b.DeleteDependency(ctx, "el-a", "el-b", types.DepBlocks))
	require.NoError(t, svc.OnDependencyRemoved(ctx, "el-a", "el-b", types.DepBlocks))
	require.Equal(t, "el-b", unblockedID)
	require.Equal(t, types.TaskOpen, restoreStatus)

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestOnStatusChangedToTerminalClearsDependents(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)

	svc := New(b, Hooks{})
	dep := putDep(t, b, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	putTask(t, b, "el-a", types.TaskClosed)
	require.NoError(t, svc.OnStatusChanged(ctx, "el-a", false, true))

	rows2, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows2, 0)
}

func TestGateRecordApprovalAllOf(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)

	gm := types.GateMetadata{Mode: types.GateAllOf, Approvers: []string{"carol", "dave"}}
	dep := types.Dependency{SourceID: "el-a", TargetID: "el-b", Type: types.DepGate, CreatedAt: time.Now(), CreatedBy: "alice"}
	dep, err := dep.WithGateMeta(gm)
	require.NoError(t, err)
	require.NoError(t, b.PutDependency(ctx, dep))

	svc := New(b, Hooks{})
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 2)

	result, err := svc.RecordApproval(ctx, "el-a", "el-b", "carol")
	require.NoError(t, err)
	require.False(t, result.Satisfied)

	rows2, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows2, 1)
	require.Equal(t, "dave", rows2[0].BlockerID)

	result2, err := svc.RecordApproval(ctx, "el-a", "el-b", "dave")
	require.NoError(t, err)
	require.True(t, result2.Satisfied)

	rows3, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows3, 0)
}

func TestGateAnyOfSatisfiedByOneApproval(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)

	gm := types.GateMetadata{Mode: types.GateAnyOf, Approvers: []string{"carol", "dave"}}
	dep := types.Dependency{SourceID: "el-a", TargetID: "el-b", Type: types.DepGate, CreatedAt: time.Now(), CreatedBy: "alice"}
	dep, err := dep.WithGateMeta(gm)
	require.NoError(t, err)
	require.NoError(t, b.PutDependency(ctx, dep))

	svc := New(b, Hooks{})
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	result, err := svc.RecordApproval(ctx, "el-a", "el-b", "carol")
	require.NoError(t, err)
	require.True(t, result.Satisfied)

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestSatisfyGateForcesSatisfaction(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)

	gm := types.GateMetadata{Mode: types.GateAllOf, Approvers: []string{"carol"}}
	dep := types.Dependency{SourceID: "el-a", TargetID: "el-b", Type: types.DepGate, CreatedAt: time.Now(), CreatedBy: "alice"}
	dep, err := dep.WithGateMeta(gm)
	require.NoError(t, err)
	require.NoError(t, b.PutDependency(ctx, dep))

	svc := New(b, Hooks{})
	require.NoError(t, svc.OnDependencyAdded(ctx, dep))

	result, err := svc.SatisfyGate(ctx, "el-a", "el-b", "admin")
	require.NoError(t, err)
	require.True(t, result.Satisfied)

	rows, err := b.BlockedRows(ctx, "el-b")
	require.NoError(t, err)
	require.Len(t, rows, 0)
}

func TestRebuildMatchesIncrementalState(t *testing.T) {
	b := memory.New()
	ctx := context.Background()
	putTask(t, b, "el-a", types.TaskOpen)
	putTask(t, b, "el-b", types.TaskOpen)
	putTask(t, b, "el-c", types.TaskOpen)

	svc := New(b, Hooks{})
	dep1 := putDep(t, b, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep1))
	dep2 := putDep(t, b, "el-b", "el-c", types.DepBlocks)
	require.NoError(t, svc.OnDependencyAdded(ctx, dep2))

	before, err := b.AllBlockedRows(ctx)
	require.NoError(t, err)

	stats, err := svc.Rebuild(ctx)
	require.NoError(t, err)
	require.Equal(t, 3, stats.ElementsChecked)
	require.Equal(t, 2, stats.ElementsBlocked)

	after, err := b.AllBlockedRows(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, before, after)
}
