package worker

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/log"
	"github.com/cuemby/jobflow/pkg/metrics"
	"github.com/cuemby/jobflow/pkg/types"
)

const capturedLogTailBytes = 50_000

// AnnotateFailure handles a failed worker attempt: decrement the retry
// budget on a job reloaded fresh after an escaped failure. The leader
// (external) treats remainingRetryCount==0 as permanent failure.
func AnnotateFailure(job *types.JobRecord) {
	if job.RemainingRetryCount > 0 {
		job.RemainingRetryCount--
	}
	metrics.WorkerFailuresTotal.Inc()
}

// attachCapturedLog truncates the captured worker log to its trailing
// capturedLogTailBytes, uploads it as a new per-job file, points
// job.LogJobStoreFileID at it, and removes the local copy. Always called
// during teardown after a failure so diagnostics survive across retries.
func attachCapturedLog(ctx context.Context, store jobstore.Store, job *types.JobRecord, localLogPath string) error {
	logger := log.WithJobID(job.JobStoreID)

	if err := truncateToTail(localLogPath, capturedLogTailBytes); err != nil {
		logger.Warn().Err(err).Msg("failed to truncate captured worker log")
	}

	fileID, err := store.WriteFile(ctx, job.JobStoreID, localLogPath)
	if err != nil {
		return fmt.Errorf("worker: upload captured log: %w", err)
	}
	job.LogJobStoreFileID = &fileID

	if err := os.Remove(localLogPath); err != nil && !os.IsNotExist(err) {
		logger.Warn().Err(err).Msg("failed to remove local captured log")
	}
	return nil
}

// truncateToTail rewrites path to contain only its trailing tooBig bytes,
// leaving it untouched if it is already smaller.
func truncateToTail(path string, tooBig int64) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() <= tooBig {
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o600)
	if err != nil {
		return err
	}
	defer f.Close()

	data := make([]byte, tooBig)
	if _, err := f.ReadAt(data, info.Size()-tooBig); err != nil {
		return err
	}
	if _, err := f.WriteAt(data, 0); err != nil {
		return err
	}
	return f.Truncate(tooBig)
}
