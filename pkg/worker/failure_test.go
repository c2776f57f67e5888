package worker

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore/local"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnnotateFailureDecrementsRetryCount(t *testing.T) {
	job := &types.JobRecord{RemainingRetryCount: 2}
	AnnotateFailure(job)
	assert.Equal(t, 1, job.RemainingRetryCount)
}

func TestAnnotateFailureDoesNotGoNegative(t *testing.T) {
	job := &types.JobRecord{RemainingRetryCount: 0}
	AnnotateFailure(job)
	assert.Equal(t, 0, job.RemainingRetryCount)
}

func TestTruncateToTailLeavesSmallFileUntouched(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	require.NoError(t, os.WriteFile(path, []byte("short"), 0o600))

	require.NoError(t, truncateToTail(path, 50_000))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "short", string(data))
}

func TestTruncateToTailKeepsOnlyTrailingBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log.txt")
	content := strings.Repeat("a", 100) + strings.Repeat("b", 50)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	require.NoError(t, truncateToTail(path, 50))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("b", 50), string(data))
}

func TestAttachCapturedLogUploadsAndClears(t *testing.T) {
	store, err := local.Open(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	job, err := store.Create(ctx, nil, 0, 0, "u1", 0)
	require.NoError(t, err)

	logPath := filepath.Join(t.TempDir(), "worker_log.txt")
	require.NoError(t, os.WriteFile(logPath, []byte("boom"), 0o600))

	require.NoError(t, attachCapturedLog(ctx, store, job, logPath))
	require.NotNil(t, job.LogJobStoreFileID)

	_, err = os.Stat(logPath)
	assert.True(t, os.IsNotExist(err))
}
