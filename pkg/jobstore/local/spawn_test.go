package local

import (
	"context"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpawnSingleSuccessorLinksIntoStack(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	parent, err := s.Create(ctx, &cmd, 1, 1, "r", 0)
	require.NoError(t, err)

	successors, err := jobstore.Spawn(ctx, s, parent, []jobstore.SuccessorSpec{
		{Command: &cmd, Memory: 2, CPU: 2, PredecessorNumber: 1, UpdateID: "c1"},
	})
	require.NoError(t, err)
	require.Len(t, successors, 1)

	reloaded, err := s.Load(ctx, parent.JobStoreID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.JobsToDelete)
	require.Len(t, reloaded.Stack, 1)
	assert.Equal(t, successors[0].JobStoreID, reloaded.Stack[0][0].JobStoreID)
}

func TestSpawnMultipleSuccessorsFormOneGroup(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	parent, err := s.Create(ctx, &cmd, 1, 1, "r", 0)
	require.NoError(t, err)

	successors, err := jobstore.Spawn(ctx, s, parent, []jobstore.SuccessorSpec{
		{Command: &cmd, Memory: 1, CPU: 1, PredecessorNumber: 2, UpdateID: "c1"},
		{Command: &cmd, Memory: 1, CPU: 1, PredecessorNumber: 2, UpdateID: "c2"},
	})
	require.NoError(t, err)
	require.Len(t, successors, 2)

	reloaded, err := s.Load(ctx, parent.JobStoreID)
	require.NoError(t, err)
	require.Len(t, reloaded.Stack, 1)
	assert.Len(t, reloaded.Stack[0], 2)

	for _, successor := range successors {
		exists, err := s.Exists(ctx, successor.JobStoreID)
		require.NoError(t, err)
		assert.True(t, exists)
	}
}

// TestSpawnRecoversFromCrashBeforeLinking simulates a crash after spawn
// step 2 created a successor but before step 3 linked it into the parent
// and cleared jobsToDelete: a sweep over that state must erase the orphan
// and leave the parent clean.
func TestSpawnRecoversFromCrashBeforeLinking(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	parent, err := s.Create(ctx, &cmd, 1, 1, "r", 0)
	require.NoError(t, err)

	orphan, err := s.Create(ctx, &cmd, 1, 1, "never-linked", 1)
	require.NoError(t, err)

	parent.JobsToDelete = map[string]struct{}{"never-linked": {}}
	require.NoError(t, s.Update(ctx, parent))

	require.NoError(t, jobstore.Sweep(ctx, s))

	exists, err := s.Exists(ctx, orphan.JobStoreID)
	require.NoError(t, err)
	assert.False(t, exists)

	reloaded, err := s.Load(ctx, parent.JobStoreID)
	require.NoError(t, err)
	assert.Empty(t, reloaded.JobsToDelete)
	assert.Empty(t, reloaded.Stack)
}
