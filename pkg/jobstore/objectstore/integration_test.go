package objectstore

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests exercise Store against a real S3-compatible endpoint (minio,
// or an actual bucket) and only run when JOBFLOW_TEST_S3_ENDPOINT names one,
// since there is no in-process fake for the minio-go wire protocol to run
// against otherwise.
func mustOpenIntegration(t *testing.T) *Store {
	t.Helper()
	endpoint := os.Getenv("JOBFLOW_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("JOBFLOW_TEST_S3_ENDPOINT not set, skipping objectstore integration test")
	}
	s, err := Open(context.Background(), endpoint)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIntegrationCreateLoadDelete(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 12, 34, "u1", 0)
	require.NoError(t, err)

	loaded, err := s.Load(ctx, record.JobStoreID)
	require.NoError(t, err)
	assert.Equal(t, record.JobStoreID, loaded.JobStoreID)

	require.NoError(t, s.Delete(ctx, record.JobStoreID))
	exists, err := s.Exists(ctx, record.JobStoreID)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestIntegrationLoadUnknownFails(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	_, err := s.Load(ctx, "does-not-exist")
	assert.ErrorIs(t, err, jobstore.ErrNoSuchJob)
}

func TestIntegrationFileWriteReadUpdate(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 1, 1, "u1", 0)
	require.NoError(t, err)
	defer s.Delete(ctx, record.JobStoreID)

	path := writeTempFile(t, "hello")
	fileID, err := s.WriteFile(ctx, record.JobStoreID, path)
	require.NoError(t, err)

	out := path + ".out"
	require.NoError(t, s.ReadFile(ctx, fileID, out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	updatePath := writeTempFile(t, "updated")
	require.NoError(t, s.UpdateFile(ctx, fileID, updatePath))
	require.NoError(t, s.ReadFile(ctx, fileID, out))
	data, err = os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "updated", string(data))
}

func TestIntegrationUpdateFileDetectsConcurrentModification(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	cmd := "root"
	record, err := s.Create(ctx, &cmd, 1, 1, "u1", 0)
	require.NoError(t, err)
	defer s.Delete(ctx, record.JobStoreID)

	fileID, err := s.GetEmptyFileStoreID(ctx, record.JobStoreID)
	require.NoError(t, err)

	w1, err := s.UpdateFileStream(ctx, fileID)
	require.NoError(t, err)
	w2, err := s.UpdateFileStream(ctx, fileID)
	require.NoError(t, err)

	_, err = w1.Write([]byte("first"))
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	_, err = w2.Write([]byte("second"))
	require.NoError(t, err)
	err = w2.Close()
	assert.ErrorIs(t, err, jobstore.ErrConcurrentFileModification)
}

func TestIntegrationSharedFileReadableAfterWrite(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	w, err := s.WriteSharedFileStream(ctx, "config.xml")
	require.NoError(t, err)
	_, err = w.Write([]byte("<config/>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := s.ReadSharedFileStream(ctx, "config.xml")
	require.NoError(t, err)
	defer r.Close()
}

func TestIntegrationStatsDrainLeavesUnconsumedBlobs(t *testing.T) {
	ctx := context.Background()
	s := mustOpenIntegration(t)

	require.NoError(t, s.WriteStatsAndLogging(ctx, []byte("a")))
	require.NoError(t, s.WriteStatsAndLogging(ctx, []byte("b")))

	seen := 0
	n, err := s.ReadStatsAndLogging(ctx, func(r io.Reader) error {
		seen++
		if seen == 1 {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	seen = 0
	n, err = s.ReadStatsAndLogging(ctx, func(r io.Reader) error {
		seen++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "objectstore-test")
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(content)
	require.NoError(t, err)
	return f.Name()
}
