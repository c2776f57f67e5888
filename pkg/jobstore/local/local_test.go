package local

import (
	"context"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustOpen(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateDefaults(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 12, 34, "foo", 0)
	require.NoError(t, err)

	assert.Empty(t, record.Stack)
	assert.Empty(t, record.JobsToDelete)
	assert.Empty(t, record.PredecessorsFinished)
	assert.Nil(t, record.LogJobStoreFileID)
	assert.Equal(t, int64(12), record.Memory)
	assert.Equal(t, int64(34), record.CPU)
}

func TestLoadReflectsAnotherHandleOnSameBaseDir(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s1, err := Open(dir)
	require.NoError(t, err)
	defer s1.Close()

	cmd := "root"
	record, err := s1.Create(ctx, &cmd, 1, 1, "u1", 0)
	require.NoError(t, err)

	s2, err := Open(dir)
	require.NoError(t, err)
	defer s2.Close()

	loaded, err := s2.Load(ctx, record.JobStoreID)
	require.NoError(t, err)
	assert.Equal(t, record.JobStoreID, loaded.JobStoreID)
	assert.Equal(t, record.UpdateID, loaded.UpdateID)
}

func TestLoadUnknownIDFails(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	_, err := s.Load(ctx, "does-not-exist")
	assert.ErrorIs(t, err, jobstore.ErrNoSuchJob)
}

func TestUpdateThenReloadObservesChange(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 1, 1, "u1", 0)
	require.NoError(t, err)

	record.PredecessorsFinished = map[string]struct{}{"p1": {}}
	require.NoError(t, s.Update(ctx, record))

	reloaded, err := s.Load(ctx, record.JobStoreID)
	require.NoError(t, err)
	assert.Len(t, reloaded.PredecessorsFinished, 1)
}

func TestDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 1, 1, "u1", 0)
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, record.JobStoreID))
	require.NoError(t, s.Delete(ctx, record.JobStoreID))

	exists, err := s.Exists(ctx, record.JobStoreID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestJobsEnumeratesAll(t *testing.T) {
	ctx := context.Background()
	s := mustOpen(t)

	cmd := "root"
	for i := 0; i < 3; i++ {
		_, err := s.Create(ctx, &cmd, 1, 1, "u", 0)
		require.NoError(t, err)
	}

	jobs, err := s.Jobs(ctx)
	require.NoError(t, err)
	assert.Len(t, jobs, 3)
}
