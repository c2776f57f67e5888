package local

import (
	"context"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSweepIsIdempotent injects a representative set of crash artifacts --
// a non-empty jobsToDelete, a dangling log file ID, and a stack whose top
// group references a non-existent successor -- then checks a sweep cleans
// them up and a second sweep is a no-op.
func TestSweepIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	root, err := s.Create(ctx, &cmd, 1, 1, "r", 0)
	require.NoError(t, err)

	orphan, err := s.Create(ctx, &cmd, 1, 1, "orphaned-update", 1)
	require.NoError(t, err)

	logFileID, err := s.GetEmptyFileStoreID(ctx, root.JobStoreID)
	require.NoError(t, err)

	root.JobsToDelete = map[string]struct{}{"orphaned-update": {}}
	root.LogJobStoreFileID = &logFileID
	root.Stack = []types.SuccessorGroup{
		{{JobStoreID: "ghost-successor", Memory: 1, CPU: 1}},
	}
	require.NoError(t, s.Update(ctx, root))

	require.NoError(t, jobstore.Sweep(ctx, s))

	exists, err := s.Exists(ctx, orphan.JobStoreID)
	require.NoError(t, err)
	assert.False(t, exists, "orphaned successor must be deleted")

	reloaded, err := s.Load(ctx, root.JobStoreID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.JobsToDelete)
	assert.Nil(t, reloaded.LogJobStoreFileID)
	assert.Empty(t, reloaded.Stack, "stack group with no surviving successors is popped")

	jobsBefore, err := s.Jobs(ctx)
	require.NoError(t, err)

	require.NoError(t, jobstore.Sweep(ctx, s))

	jobsAfter, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(jobsBefore), len(jobsAfter), "second sweep must be a no-op")
}

// TestSweepPrunesPartialStackGroup checks that when only some successors
// in a stack's top group survive, the group is rewritten rather than
// dropped wholesale.
func TestSweepPrunesPartialStackGroup(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	root, err := s.Create(ctx, &cmd, 1, 1, "r", 0)
	require.NoError(t, err)

	survivor, err := s.Create(ctx, &cmd, 1, 1, "s", 1)
	require.NoError(t, err)

	root.Stack = []types.SuccessorGroup{
		{
			{JobStoreID: survivor.JobStoreID, Memory: 1, CPU: 1},
			{JobStoreID: "ghost", Memory: 1, CPU: 1},
		},
	}
	require.NoError(t, s.Update(ctx, root))

	require.NoError(t, jobstore.Sweep(ctx, s))

	reloaded, err := s.Load(ctx, root.JobStoreID)
	require.NoError(t, err)
	require.Len(t, reloaded.Stack, 1)
	assert.Len(t, reloaded.Stack[0], 1)
	assert.Equal(t, survivor.JobStoreID, reloaded.Stack[0][0].JobStoreID)
}
