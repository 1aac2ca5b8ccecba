package sqlbackend

import (
	"testing"

	"github.com/notadamking/elemental/internal/storage"
	"github.com/notadamking/elemental/internal/types"
	"github.com/stretchr/testify/require"
)

func TestBuildServerDSNIncludesCredentialsAndDatabase(t *testing.T) {
	cfg := &Config{ServerHost: "127.0.0.1", ServerPort: 3306, ServerUser: "root", ServerPassword: "secret"}
	dsn := buildServerDSN(cfg, "elemental")
	require.Contains(t, dsn, "root:secret@tcp(127.0.0.1:3306)/elemental")
	require.Contains(t, dsn, "parseTime=true")
}

func TestBuildServerDSNWithoutPassword(t *testing.T) {
	cfg := &Config{ServerHost: "127.0.0.1", ServerPort: 3306, ServerUser: "root"}
	dsn := buildServerDSN(cfg, "")
	require.Contains(t, dsn, "root@tcp(127.0.0.1:3306)/?")
}

func TestListFilterBuildsJSONAndTagClauses(t *testing.T) {
	kind := types.KindTask
	where, args := listFilter(storage.ElementQuery{
		Kind:       &kind,
		JSONEquals: map[string]any{"status": "open"},
		TagsAll:    []string{"urgent"},
		TagsAny:    []string{"a", "b"},
	})
	require.Contains(t, where, "kind = ?")
	require.Contains(t, where, "JSON_EXTRACT(data, '$.status')")
	require.Contains(t, where, "et.tag = ?")
	require.Contains(t, where, "et.tag IN (?, ?)")
	require.Equal(t, []any{"task", "open", "urgent", "a", "b"}, args)
}

func TestListFilterExcludesDeletedByDefault(t *testing.T) {
	where, _ := listFilter(storage.ElementQuery{})
	require.Contains(t, where, "deleted_at IS NULL")
}

func TestListFilterIncludesDeletedWhenRequested(t *testing.T) {
	where, _ := listFilter(storage.ElementQuery{IncludeDeleted: true})
	require.NotContains(t, where, "deleted_at IS NULL")
}

func TestIsRetryableError(t *testing.T) {
	require.True(t, isRetryableError(fmtErr("driver: bad connection")))
	require.True(t, isRetryableError(fmtErr("connection refused")))
	require.False(t, isRetryableError(fmtErr("duplicate key")))
	require.False(t, isRetryableError(nil))
}

type simpleErr string

func (e simpleErr) Error() string { return string(e) }

func fmtErr(s string) error { return simpleErr(s) }
