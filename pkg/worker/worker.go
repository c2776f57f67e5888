package worker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/log"
	"github.com/cuemby/jobflow/pkg/metrics"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/rs/zerolog"
	"golang.org/x/sys/unix"
)

// Run is the worker's entry point: `worker <moduleSearchDir>
// <jobStoreEndpoint> <jobStoreID>` . It loads jobStoreID from
// the store at jobStoreEndpoint, executes its payload, chains into
// eligible successors without returning to a leader, checkpoints, and
// always leaves the store recoverable -- including when the payload
// panics or returns an error.
func Run(ctx context.Context, moduleSearchDir, jobStoreEndpoint, jobStoreID string) error {
	logger := log.WithJobID(jobStoreID)
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.WorkerRunDuration)

	store, err := jobstore.Open(ctx, jobStoreEndpoint)
	if err != nil {
		return fmt.Errorf("worker: open store: %w", err)
	}
	defer store.Close()

	loader := &Loader{SearchDirs: []string{moduleSearchDir}}
	if err := LoadEnvironment(ctx, store, loader); err != nil {
		return fmt.Errorf("worker: load environment: %w", err)
	}

	cfg, err := LoadConfig(ctx, store)
	if err != nil {
		return fmt.Errorf("worker: load config: %w", err)
	}
	if cfg.LogLevel != "" {
		if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
			zerolog.SetGlobalLevel(level)
		}
	}

	scratchDir, err := os.MkdirTemp("", "jobflow-worker-*")
	if err != nil {
		return fmt.Errorf("worker: create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratchDir)

	localTempDir := filepath.Join(scratchDir, "local")
	if err := os.MkdirAll(localTempDir, 0o700); err != nil {
		return fmt.Errorf("worker: create local temp dir: %w", err)
	}

	capturePath := filepath.Join(scratchDir, "worker_log.txt")
	capture, err := Start(capturePath)
	if err != nil {
		return fmt.Errorf("worker: start output capture: %w", err)
	}

	job, runErr := runWithRecover(ctx, store, cfg, loader, localTempDir, jobStoreID, logger)
	workerFailed := runErr != nil

	if workerFailed {
		logger.Error().Err(runErr).Msg("worker run failed")
		failed, loadErr := store.Load(ctx, jobStoreID)
		if loadErr != nil {
			_ = capture.Stop()
			return fmt.Errorf("worker: reload job after failure: %w", loadErr)
		}
		job = failed
		AnnotateFailure(job)
	}

	if stopErr := capture.Stop(); stopErr != nil {
		logger.Warn().Err(stopErr).Msg("failed to restore stdout/stderr")
	}

	if workerFailed {
		if err := attachCapturedLog(ctx, store, job, capturePath); err != nil {
			logger.Error().Err(err).Msg("failed to attach captured log")
		}
		if err := store.Update(ctx, job); err != nil {
			return fmt.Errorf("worker: persist failed job: %w", err)
		}
		return nil
	}

	if job.Command == nil && len(job.Stack) == 0 {
		if err := store.Delete(ctx, job.JobStoreID); err != nil {
			return fmt.Errorf("worker: delete completed job: %w", err)
		}
	}
	return nil
}

// runWithRecover wraps runChain so that a panicking payload is turned into
// an error rather than crashing the worker process outright, matching
// promise that a failure of any kind -- exception or
// otherwise -- still leaves the store recoverable.
func runWithRecover(ctx context.Context, store jobstore.Store, cfg *Config, loader *Loader, localTempDir, jobStoreID string, logger zerolog.Logger) (job *types.JobRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker: payload panicked: %v", r)
		}
	}()
	return runChain(ctx, store, cfg, loader, localTempDir, jobStoreID, logger)
}

// runChain performs pre-execution cleanup and the chain loop: it loads
// jobStoreID, executes its command (if any), and folds in
// successors one at a time for as long as each one qualifies, leaving the
// store updated to reflect whatever state the chain stopped in.
func runChain(ctx context.Context, store jobstore.Store, cfg *Config, loader *Loader, localTempDir, jobStoreID string, logger zerolog.Logger) (*types.JobRecord, error) {
	job, err := store.Load(ctx, jobStoreID)
	if err != nil {
		return nil, fmt.Errorf("worker: load job: %w", err)
	}

	// Pre-execution cleanup: a prior worker may have popped and deleted a
	// successor but crashed before persisting the updated stack. Only the
	// first member of the top group is inspected here, matching the
	// original pre-execution check -- a narrower sweep than the full
	// recovery sweep run at store-open, and deliberately so.
	for job.Command == nil && len(job.Stack) > 0 {
		top := job.Stack[len(job.Stack)-1]
		exists, err := store.Exists(ctx, top[0].JobStoreID)
		if err != nil {
			return nil, fmt.Errorf("worker: check successor existence: %w", err)
		}
		if exists {
			break
		}
		job.Stack = job.Stack[:len(job.Stack)-1]
	}
	job.LogJobStoreFileID = nil

	var (
		messages    []string
		chainLength int
		startRusage unix.Rusage
	)
	_ = unix.Getrusage(unix.RUSAGE_SELF, &startRusage)
	loopStart := time.Now()

	for {
		// A job's command can become absent either here on first load
		// (pre-execution cleanup above only drains already-completed
		// groups) or after a chain transplant folds in a successor whose
		// own command was absent. Either way, per the job's own lifecycle
		// (§3: "Absent => the job is a shell whose only remaining work is
		// to unwind stack"), a command-less job must have nothing left on
		// its stack -- it is never eligible to examine its stack for a
		// further successor to fold in. A non-empty stack here means a
		// shell successor was chained in with its own pending work still
		// attached, which the chain step above should never have allowed;
		// treat it as the same kind of invariant violation the original
		// worker's bare assert would have raised.
		if job.Command == nil {
			if len(job.Stack) != 0 {
				return nil, fmt.Errorf("worker: job %s has no command but a non-empty stack", job.JobStoreID)
			}
			break
		}

		chainLength++
		msgs, err := executeCommand(ctx, store, loader, localTempDir, job, cfg)
		if err != nil {
			return nil, err
		}
		messages = append(messages, msgs...)
		job.Command = nil

		if err := purgeDir(localTempDir); err != nil {
			return nil, fmt.Errorf("worker: purge scratch dir: %w", err)
		}

		if cfg.JobTimeSecs > 0 && time.Since(loopStart).Seconds() > cfg.JobTimeSecs {
			break
		}
		if len(job.Stack) == 0 {
			break
		}

		top := job.Stack[len(job.Stack)-1]
		if len(top) >= 2 {
			break
		}
		next := top[0]
		if next.Memory > job.Memory || next.CPU > job.CPU {
			break
		}
		if next.PredecessorNumber != 1 {
			break
		}

		successor, err := store.Load(ctx, next.JobStoreID)
		if err != nil {
			return nil, fmt.Errorf("worker: load successor %s: %w", next.JobStoreID, err)
		}
		if len(successor.PredecessorsFinished) != 0 || successor.PredecessorNumber != 1 {
			break
		}

		job.Stack = job.Stack[:len(job.Stack)-1]
		job.Stack = append(job.Stack, successor.Stack...)
		job.Command = successor.Command
		job.JobsToDelete = map[string]struct{}{successor.JobStoreID: {}}
		if err := store.Update(ctx, job); err != nil {
			return nil, fmt.Errorf("worker: checkpoint chain transplant: %w", err)
		}
		if err := store.Delete(ctx, successor.JobStoreID); err != nil {
			return nil, fmt.Errorf("worker: delete folded successor: %w", err)
		}
		job.JobsToDelete = nil
	}

	metrics.WorkerChainLength.Observe(float64(chainLength))

	if err := store.Update(ctx, job); err != nil {
		return nil, fmt.Errorf("worker: checkpoint final chain state: %w", err)
	}

	wallTime := time.Since(loopStart).Seconds()
	var endRusage unix.Rusage
	_ = unix.Getrusage(unix.RUSAGE_SELF, &endRusage)
	cpuTime := rusageSeconds(endRusage) - rusageSeconds(startRusage)
	peakMemory := endRusage.Maxrss

	if err := flushStats(ctx, store, cfg.StatsEnabled(), wallTime, cpuTime, peakMemory, messages); err != nil {
		logger.Warn().Err(err).Msg("failed to flush stats")
	}

	return job, nil
}

// rusageSeconds sums the user and system time recorded in ru into a single
// CPU-seconds figure. There is no third-party library in the example pack
// that covers process CPU-time accounting, so this uses the CPU-time
// fields x/sys/unix.Rusage exposes over the standard getrusage(2) syscall.
func rusageSeconds(ru unix.Rusage) float64 {
	user := float64(ru.Utime.Sec) + float64(ru.Utime.Usec)/1e6
	sys := float64(ru.Stime.Sec) + float64(ru.Stime.Usec)/1e6
	return user + sys
}

// executeCommand runs job.Command, either as a scriptTree-encoded payload
// reconstructed through the registry in payload.go, or as a shell command
// via the system shell, matching the "scriptTree " prefix dispatch.
func executeCommand(ctx context.Context, store jobstore.Store, loader *Loader, scratchDir string, job *types.JobRecord, cfg *Config) ([]string, error) {
	command := *job.Command

	if IsScriptTreeCommand(command) {
		parsed, err := ParseScriptTreeCommand(command)
		if err != nil {
			return nil, err
		}

		blobReader, err := store.ReadFileStream(ctx, parsed.PayloadFileID)
		if err != nil {
			return nil, fmt.Errorf("worker: read payload file %s: %w", parsed.PayloadFileID, err)
		}
		defer blobReader.Close()
		blob, err := io.ReadAll(blobReader)
		if err != nil {
			return nil, fmt.Errorf("worker: read payload file %s: %w", parsed.PayloadFileID, err)
		}

		payloadLoader := &Loader{SearchDirs: append(append([]string{}, loader.SearchDirs...), parsed.ModuleSearchDir)}
		payload, err := ReconstructPayload(ScriptTreeKind, blob, payloadLoader)
		if err != nil {
			return nil, err
		}

		rc := &RunContext{
			Store:         store,
			Job:           job,
			ScratchDir:    scratchDir,
			DefaultMemory: cfg.DefaultMemory,
			DefaultCPU:    cfg.DefaultCPU,
		}
		return payload.Execute(ctx, rc)
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = scratchDir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("worker: command failed: %w", err)
	}
	return nil, nil
}

// purgeDir removes the contents (not the directory itself) of dir, run
// once per chain-loop iteration so one command's scratch output never
// leaks into the next.
func purgeDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if err := os.RemoveAll(filepath.Join(dir, entry.Name())); err != nil {
			return err
		}
	}
	return nil
}
