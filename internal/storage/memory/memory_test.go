package memory

import (
	"context"
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetElement(t *testing.T) {
	b := New()
	ctx := context.Background()
	now := time.Now()
	task := types.NewTask("el-abc123", "alice", now, "Fix bug")
	row, err := storage.Encode(task)
	require.NoError(t, err)

	require.NoError(t, b.PutElement(ctx, row))
	got, err := b.GetElement(ctx, "el-abc123")
	require.NoError(t, err)
	require.NotNil(t, got)
	require.Equal(t, "el-abc123", got.ID)

	decoded, err := storage.Decode(*got)
	require.NoError(t, err)
	task2, ok := decoded.(*types.Task)
	require.True(t, ok)
	require.Equal(t, "Fix bug", task2.Title)
}

func TestGetElementMissingReturnsNilNoError(t *testing.T) {
	b := New()
	got, err := b.GetElement(context.Background(), "el-missing")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestListElementsFiltersByKindAndTags(t *testing.T) {
	b := New()
	ctx := context.Background()
	now := time.Now()

	task := types.NewTask("el-t1", "alice", now, "Task one")
	task.Tags = []string{"urgent", "backend"}
	rowT, _ := storage.Encode(task)
	require.NoError(t, b.PutElement(ctx, rowT))

	plan := types.NewPlan("el-p1", "alice", now, "Plan one")
	rowP, _ := storage.Encode(plan)
	require.NoError(t, b.PutElement(ctx, rowP))

	kind := types.KindTask
	rows, total, err := b.ListElements(ctx, storage.ElementQuery{Kind: &kind})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	require.Len(t, rows, 1)
	require.Equal(t, "el-t1", rows[0].ID)

	rows2, _, err := b.ListElements(ctx, storage.ElementQuery{TagsAll: []string{"urgent", "backend"}})
	require.NoError(t, err)
	require.Len(t, rows2, 1)

	rows3, _, err := b.ListElements(ctx, storage.ElementQuery{TagsAll: []string{"urgent", "missing"}})
	require.NoError(t, err)
	require.Len(t, rows3, 0)
}

func TestListElementsExcludesDeletedByDefault(t *testing.T) {
	b := New()
	ctx := context.Background()
	now := time.Now()
	task := types.NewTask("el-t1", "alice", now, "Task")
	row, _ := storage.Encode(task)
	deletedAt := now.Add(time.Minute)
	row.DeletedAt = &deletedAt
	require.NoError(t, b.PutElement(ctx, row))

	_, total, err := b.ListElements(ctx, storage.ElementQuery{})
	require.NoError(t, err)
	require.Equal(t, 0, total)

	_, total2, err := b.ListElements(ctx, storage.ElementQuery{IncludeDeleted: true})
	require.NoError(t, err)
	require.Equal(t, 1, total2)
}

func TestDependencyRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()
	dep := types.Dependency{SourceID: "el-a", TargetID: "el-b", Type: types.DepBlocks, CreatedAt: time.Now(), CreatedBy: "alice"}
	require.NoError(t, b.PutDependency(ctx, dep))

	got, err := b.GetDependency(ctx, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, err)
	require.NotNil(t, got)

	out, err := b.OutgoingDependencies(ctx, "el-a", nil)
	require.NoError(t, err)
	require.Len(t, out, 1)

	in, err := b.IncomingDependencies(ctx, "el-b", nil)
	require.NoError(t, err)
	require.Len(t, in, 1)

	require.NoError(t, b.DeleteDependency(ctx, "el-a", "el-b", types.DepBlocks))
	got2, err := b.GetDependency(ctx, "el-a", "el-b", types.DepBlocks)
	require.NoError(t, err)
	require.Nil(t, got2)
}

func TestBlockedCacheRoundTrip(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.PutBlockedRow(ctx, storage.BlockedRow{ElementID: "el-a", BlockerID: "el-b", Reason: "blocks"}))

	rows, err := b.BlockedRows(ctx, "el-a")
	require.NoError(t, err)
	require.Len(t, rows, 1)

	all, err := b.AllBlockedRows(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)

	require.NoError(t, b.DeleteBlockedRowsByBlocker(ctx, "el-a", "el-b"))
	rows2, err := b.BlockedRows(ctx, "el-a")
	require.NoError(t, err)
	require.Len(t, rows2, 0)
}

func TestDirtyFeed(t *testing.T) {
	b := New()
	ctx := context.Background()
	require.NoError(t, b.MarkDirty(ctx, "el-a"))
	require.NoError(t, b.MarkDirty(ctx, "el-b"))

	ids, err := b.GetDirtyElements(ctx)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"el-a", "el-b"}, ids)

	require.NoError(t, b.ClearDirty(ctx, "el-a"))
	ids2, err := b.GetDirtyElements(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"el-b"}, ids2)
}

func TestGetNextChildNumberIncrements(t *testing.T) {
	b := New()
	ctx := context.Background()
	n1, err := b.GetNextChildNumber(ctx, "el-parent")
	require.NoError(t, err)
	require.Equal(t, 1, n1)

	n2, err := b.GetNextChildNumber(ctx, "el-parent")
	require.NoError(t, err)
	require.Equal(t, 2, n2)
}

func TestTransactionSeesWritesImmediately(t *testing.T) {
	b := New()
	ctx := context.Background()
	now := time.Now()
	task := types.NewTask("el-t1", "alice", now, "Task")
	row, _ := storage.Encode(task)

	err := b.Transaction(ctx, func(ctx context.Context, tx storage.Backend) error {
		if err := tx.PutElement(ctx, row); err != nil {
			return err
		}
		got, err := tx.GetElement(ctx, "el-t1")
		require.NoError(t, err)
		require.NotNil(t, got)
		return nil
	})
	require.NoError(t, err)

	got, err := b.GetElement(ctx, "el-t1")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestEventAppendAssignsIncreasingIDs(t *testing.T) {
	b := New()
	ctx := context.Background()
	id1, err := b.AppendEvent(ctx, types.Event{ElementID: "el-a", Type: types.EventCreated, Actor: "alice", CreatedAt: time.Now()})
	require.NoError(t, err)
	id2, err := b.AppendEvent(ctx, types.Event{ElementID: "el-a", Type: types.EventUpdated, Actor: "alice", CreatedAt: time.Now()})
	require.NoError(t, err)
	require.Greater(t, id2, id1)

	events, err := b.Events(ctx, "el-a", storage.EventFilter{})
	require.NoError(t, err)
	require.Len(t, events, 2)
}
