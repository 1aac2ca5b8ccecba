package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTaskValidate(t *testing.T) {
	now := time.Now()
	task := NewTask("el-abc123", "alice", now, "")
	err := ValidateElement(task)
	require.Error(t, err)

	task.Title = "Fix bug"
	require.NoError(t, ValidateElement(task))

	task.Priority = 9
	require.Error(t, ValidateElement(task))
}

func TestTaskTitleTooLong(t *testing.T) {
	now := time.Now()
	long := make([]byte, 501)
	for i := range long {
		long[i] = 'a'
	}
	task := NewTask("el-abc123", "alice", now, string(long))
	require.Error(t, ValidateElement(task))
}

func TestContentHashStableAcrossNoOpUpdate(t *testing.T) {
	now := time.Now()
	task := NewTask("el-abc123", "alice", now, "Fix bug")
	h1, err := ContentHash(task)
	require.NoError(t, err)

	task.UpdatedAt = now.Add(time.Hour)
	h2, err := ContentHash(task)
	require.NoError(t, err)
	require.Equal(t, h1, h2, "content hash must not depend on updatedAt")
}

func TestContentHashChangesOnFieldChange(t *testing.T) {
	now := time.Now()
	task := NewTask("el-abc123", "alice", now, "Fix bug")
	h1, _ := ContentHash(task)

	task.Title = "Fix bug properly"
	h2, _ := ContentHash(task)
	require.NotEqual(t, h1, h2)
}

func TestContentHashIgnoresTagOrder(t *testing.T) {
	now := time.Now()
	a := NewTask("el-abc123", "alice", now, "Fix bug")
	a.Tags = []string{"x", "y"}
	b := NewTask("el-abc123", "alice", now, "Fix bug")
	b.Tags = []string{"y", "x"}

	ha, _ := ContentHash(a)
	hb, _ := ContentHash(b)
	require.Equal(t, ha, hb)
}

func TestEntityNameValidation(t *testing.T) {
	now := time.Now()
	e := NewEntity("el-ent001", "alice", now, "1bad", EntityAgent)
	require.Error(t, ValidateElement(e))

	e2 := NewEntity("el-ent002", "alice", now, "system", EntityAgent)
	require.Error(t, ValidateElement(e2))

	e3 := NewEntity("el-ent003", "alice", now, "agent-bob", EntityAgent)
	require.NoError(t, ValidateElement(e3))
}

func TestCanonicalDirectChannelNameStableAcrossSwap(t *testing.T) {
	require.Equal(t, CanonicalDirectChannelName("u1", "u2"), CanonicalDirectChannelName("u2", "u1"))
}

func TestMessageRequiresContentOrRef(t *testing.T) {
	now := time.Now()
	m := NewMessage("el-msg001", "alice", now, "el-chan001", "alice")
	require.Error(t, ValidateElement(m))

	body := "hello"
	m.Body = &body
	require.NoError(t, ValidateElement(m))
}

func TestComputeChangedFields(t *testing.T) {
	old := []byte(`{"status":"open","title":"A"}`)
	new := []byte(`{"status":"closed","title":"A","extra":1}`)
	keys, err := ComputeChangedFields(old, new)
	require.NoError(t, err)
	require.Equal(t, []string{"extra", "status"}, keys)
}

func TestGateMetadataAllOf(t *testing.T) {
	g := GateMetadata{Mode: GateAllOf, Approvers: []string{"a", "b"}, Approved: []string{"a"}}
	require.False(t, g.IsSatisfied())
	g.Approved = append(g.Approved, "b")
	require.True(t, g.IsSatisfied())
}

func TestGateMetadataAnyOf(t *testing.T) {
	g := GateMetadata{Mode: GateAnyOf, Approvers: []string{"a", "b"}, Approved: []string{"b"}}
	require.True(t, g.IsSatisfied())
}

func TestFilterClampLimit(t *testing.T) {
	f := Filter{Limit: 10000}
	require.Equal(t, MaxPageSize, f.ClampLimit())

	f2 := Filter{}
	require.Equal(t, DefaultPageSize, f2.ClampLimit())
}
