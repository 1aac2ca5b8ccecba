package sync

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/storage/memory"
	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func putTask(t *testing.T, ctx context.Context, b storage.Backend, id, title string, updatedAt time.Time) *types.Task {
	task := types.NewTask(id, "alice", updatedAt, title)
	task.UpdatedAt = updatedAt
	_, err := types.RefreshContentHash(task)
	require.NoError(t, err)
	row, err := storage.Encode(task)
	require.NoError(t, err)
	require.NoError(t, b.PutElement(ctx, row))
	return task
}

func TestExportEmitsElementsThenDependencies(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	putTask(t, ctx, b, "el-a", "A", time.Now())
	putTask(t, ctx, b, "el-b", "B", time.Now())
	require.NoError(t, b.PutDependency(ctx, types.Dependency{SourceID: "el-a", TargetID: "el-b", Type: types.DepBlocks, CreatedAt: time.Now(), CreatedBy: "alice"}))

	text, err := Export(ctx, b, ExportOptions{})
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(text), "\n")
	require.Len(t, lines, 3)
	// Elements come out newest first (ListElements' default order).
	require.Contains(t, lines[0], `"id":"el-b"`)
	require.Contains(t, lines[2], `"sourceId":"el-a"`)
}

func TestExportExcludesEphemeralWorkflows(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	wf := types.NewWorkflow("el-w1", "alice", time.Now(), "Ephemeral run")
	wf.Ephemeral = true
	row, err := storage.Encode(wf)
	require.NoError(t, err)
	require.NoError(t, b.PutElement(ctx, row))

	text, err := Export(ctx, b, ExportOptions{ExcludeEphemeral: true})
	require.NoError(t, err)
	require.Empty(t, strings.TrimSpace(text))
}

func TestImportInsertsNewElement(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	task := types.NewTask("el-a", "alice", time.Now(), "A")
	_, err := types.RefreshContentHash(task)
	require.NoError(t, err)
	line, err := marshalForTest(task)
	require.NoError(t, err)

	result, err := Import(ctx, b, strings.NewReader(line), ImportOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.ElementsImported)
	require.Equal(t, 0, result.EventsImported)

	row, err := b.GetElement(ctx, "el-a")
	require.NoError(t, err)
	require.NotNil(t, row)
}

func TestImportLWWSkipsOlderIncoming(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	now := time.Now()
	putTask(t, ctx, b, "el-a", "Local", now)

	older := types.NewTask("el-a", "alice", now.Add(-time.Hour), "Remote")
	older.UpdatedAt = now.Add(-time.Hour)
	_, err := types.RefreshContentHash(older)
	require.NoError(t, err)
	line, err := marshalForTest(older)
	require.NoError(t, err)

	result, err := Import(ctx, b, strings.NewReader(line), ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, result.ElementsImported)
	require.Len(t, result.Conflicts, 1)
	require.Equal(t, "kept-local", result.Conflicts[0].Resolution)

	row, err := b.GetElement(ctx, "el-a")
	require.NoError(t, err)
	require.Contains(t, string(row.Data), "Local")
}

func TestImportLWWOverwritesNewerIncoming(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	now := time.Now()
	putTask(t, ctx, b, "el-a", "Local", now)

	newer := types.NewTask("el-a", "alice", now.Add(time.Hour), "Remote")
	newer.UpdatedAt = now.Add(time.Hour)
	_, err := types.RefreshContentHash(newer)
	require.NoError(t, err)
	line, err := marshalForTest(newer)
	require.NoError(t, err)

	result, err := Import(ctx, b, strings.NewReader(line), ImportOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, result.ElementsImported)
	require.Len(t, result.Conflicts, 1)
	require.Equal(t, "replaced", result.Conflicts[0].Resolution)
}

func TestImportDryRunWritesNothing(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	task := types.NewTask("el-a", "alice", time.Now(), "A")
	_, err := types.RefreshContentHash(task)
	require.NoError(t, err)
	line, err := marshalForTest(task)
	require.NoError(t, err)

	result, err := Import(ctx, b, strings.NewReader(line), ImportOptions{DryRun: true})
	require.NoError(t, err)
	require.Equal(t, 1, result.ElementsImported)
	require.True(t, result.DryRun)

	row, err := b.GetElement(ctx, "el-a")
	require.NoError(t, err)
	require.Nil(t, row)
}

func TestImportReportsMalformedLineAsError(t *testing.T) {
	ctx := context.Background()
	b := memory.New()

	result, err := Import(ctx, b, strings.NewReader("not json\n"), ImportOptions{})
	require.NoError(t, err)
	require.False(t, result.Success)
	require.Len(t, result.Errors, 1)
}

func TestImportBlankLinesIgnored(t *testing.T) {
	ctx := context.Background()
	b := memory.New()
	task := types.NewTask("el-a", "alice", time.Now(), "A")
	_, err := types.RefreshContentHash(task)
	require.NoError(t, err)
	line, err := marshalForTest(task)
	require.NoError(t, err)

	result, err := Import(ctx, b, strings.NewReader("\n"+line+"\n\n"), ImportOptions{})
	require.NoError(t, err)
	require.True(t, result.Success)
	require.Equal(t, 1, result.ElementsImported)
}

func marshalForTest(e types.Element) (string, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return "", err
	}
	return string(raw) + "\n", nil
}
