package idgen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRootIDMatchesPattern(t *testing.T) {
	id := NewRootID("Fix bug", "details", "alice", time.Now(), 0)
	require.True(t, IsValidRootID(id), "id %q should match el-[a-z0-9]{3,8}", id)
}

func TestNewRootIDNonceChangesValue(t *testing.T) {
	now := time.Now()
	a := NewRootID("Fix bug", "details", "alice", now, 0)
	b := NewRootID("Fix bug", "details", "alice", now, 1)
	require.NotEqual(t, a, b)
}

func TestChildIDAndParse(t *testing.T) {
	child := ChildID("el-abc123", 1)
	require.Equal(t, "el-abc123.1", child)

	root, segs, depth := ParseHierarchicalID("el-abc123.1.2")
	require.Equal(t, "el-abc123", root)
	require.Equal(t, []int{1, 2}, segs)
	require.Equal(t, 2, depth)
}

func TestParentID(t *testing.T) {
	parent, ok := ParentID("el-abc123.1")
	require.True(t, ok)
	require.Equal(t, "el-abc123", parent)

	_, ok = ParentID("el-abc123")
	require.False(t, ok)
}

func TestIsChildOf(t *testing.T) {
	require.True(t, IsChildOf("el-abc123.1", "el-abc123"))
	require.True(t, IsChildOf("el-abc123.1.2", "el-abc123"))
	require.False(t, IsChildOf("el-abc999", "el-abc123"))
}
