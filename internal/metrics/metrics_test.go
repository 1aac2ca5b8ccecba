package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewBuildsRecorderAndShutsDownCleanly(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	require.NotNil(t, r)
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestNilRecorderMethodsAreNoOps(t *testing.T) {
	var r *Recorder
	ctx := context.Background()
	require.NotPanics(t, func() {
		r.RecordMutation(ctx, "task", "create")
		r.RecordRebuild(ctx, 10, time.Millisecond)
		r.RecordSync(ctx, "export", 5)
		require.NoError(t, r.Shutdown(ctx))
	})
}

func TestRecordMutationDoesNotPanicOnRealRecorder(t *testing.T) {
	r, err := New()
	require.NoError(t, err)
	defer r.Shutdown(context.Background())

	ctx := context.Background()
	require.NotPanics(t, func() {
		r.RecordMutation(ctx, "task", "create")
		r.RecordRebuild(ctx, 42, 2*time.Millisecond)
		r.RecordSync(ctx, "import", 3)
	})
}
