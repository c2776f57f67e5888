package worker

import (
	"context"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore/local"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func setupConfig(t *testing.T, store *local.Store) {
	t.Helper()
	writeSharedFile(t, store, "config.xml", `<config try_count="3" job_time="3600" default_memory="1024" default_cpu="1" log_level="info"/>`)
}

// TestWorkerChainsThroughSingletonSuccessors builds J1 -> J2 -> J3 as
// singleton groups with equal resources and predecessorNumber=1 and runs
// the worker once on J1, folding all three into a single invocation.
func TestWorkerChainsThroughSingletonSuccessors(t *testing.T) {
	baseDir := t.TempDir()
	ctx := context.Background()

	store, err := local.Open(baseDir)
	require.NoError(t, err)
	setupConfig(t, store)

	j3, err := store.Create(ctx, nil, 10, 1, "u3", 1)
	require.NoError(t, err)

	j2, err := store.Create(ctx, strPtr("true"), 10, 1, "u2", 1)
	require.NoError(t, err)
	j2.Stack = []types.SuccessorGroup{{{JobStoreID: j3.JobStoreID, Memory: 10, CPU: 1, PredecessorNumber: 1}}}
	require.NoError(t, store.Update(ctx, j2))

	j1, err := store.Create(ctx, strPtr("true"), 10, 1, "u1", 0)
	require.NoError(t, err)
	j1.Stack = []types.SuccessorGroup{{{JobStoreID: j2.JobStoreID, Memory: 10, CPU: 1, PredecessorNumber: 1}}}
	require.NoError(t, store.Update(ctx, j1))

	require.NoError(t, store.Close())

	require.NoError(t, Run(ctx, t.TempDir(), baseDir, j1.JobStoreID))

	store, err = local.Open(baseDir)
	require.NoError(t, err)
	defer store.Close()

	for _, id := range []string{j1.JobStoreID, j2.JobStoreID, j3.JobStoreID} {
		exists, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.Falsef(t, exists, "expected %s to be deleted once the chain completed", id)
	}
}

// TestWorkerYieldsOnFanOut builds J1 -> {J2a, J2b} (a fan-out group of
// size two) and confirms the worker stops after J1 instead of guessing
// which successor to run, leaving both in place for a leader to dispatch.
func TestWorkerYieldsOnFanOut(t *testing.T) {
	baseDir := t.TempDir()
	ctx := context.Background()

	store, err := local.Open(baseDir)
	require.NoError(t, err)
	setupConfig(t, store)

	j2a, err := store.Create(ctx, nil, 10, 1, "u2a", 0)
	require.NoError(t, err)
	j2b, err := store.Create(ctx, nil, 10, 1, "u2b", 0)
	require.NoError(t, err)

	j1, err := store.Create(ctx, strPtr("true"), 10, 1, "u1", 0)
	require.NoError(t, err)
	j1.Stack = []types.SuccessorGroup{{
		{JobStoreID: j2a.JobStoreID, Memory: 10, CPU: 1, PredecessorNumber: 1},
		{JobStoreID: j2b.JobStoreID, Memory: 10, CPU: 1, PredecessorNumber: 1},
	}}
	require.NoError(t, store.Update(ctx, j1))
	require.NoError(t, store.Close())

	require.NoError(t, Run(ctx, t.TempDir(), baseDir, j1.JobStoreID))

	store, err = local.Open(baseDir)
	require.NoError(t, err)
	defer store.Close()

	reloaded, err := store.Load(ctx, j1.JobStoreID)
	require.NoError(t, err)
	assert.Nil(t, reloaded.Command)
	require.Len(t, reloaded.Stack, 1)
	assert.Len(t, reloaded.Stack[0], 2)

	for _, id := range []string{j2a.JobStoreID, j2b.JobStoreID} {
		exists, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

// TestWorkerAnnotatesFailureAndAttachesLog confirms that a failing command
// leaves the job persisted with a decremented retry count and a captured
// log rather than erasing the record.
func TestWorkerAnnotatesFailureAndAttachesLog(t *testing.T) {
	baseDir := t.TempDir()
	ctx := context.Background()

	store, err := local.Open(baseDir)
	require.NoError(t, err)
	setupConfig(t, store)

	j1, err := store.Create(ctx, strPtr("exit 1"), 10, 1, "u1", 0)
	require.NoError(t, err)
	j1.RemainingRetryCount = 3
	require.NoError(t, store.Update(ctx, j1))
	require.NoError(t, store.Close())

	require.NoError(t, Run(ctx, t.TempDir(), baseDir, j1.JobStoreID))

	store, err = local.Open(baseDir)
	require.NoError(t, err)
	defer store.Close()

	reloaded, err := store.Load(ctx, j1.JobStoreID)
	require.NoError(t, err)
	assert.Equal(t, 2, reloaded.RemainingRetryCount)
	require.NotNil(t, reloaded.LogJobStoreFileID)
}
