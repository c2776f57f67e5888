package worker

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Capture redirects file descriptors 1 and 2 to a log file for the
// lifetime of one worker invocation. It operates at the OS
// file-descriptor level (unix.Dup/unix.Dup2), not by swapping os.Stdout,
// so that subprocesses a shell-command payload spawns inherit the
// redirection too.
type Capture struct {
	origStdout int
	origStderr int
	logFile    *os.File
	path       string
}

// Start opens path for append and points fds 1 and 2 at it, saving the
// original descriptors for Stop to restore.
func Start(path string) (*Capture, error) {
	origStdout, err := unix.Dup(1)
	if err != nil {
		return nil, fmt.Errorf("worker: save stdout: %w", err)
	}
	origStderr, err := unix.Dup(2)
	if err != nil {
		unix.Close(origStdout)
		return nil, fmt.Errorf("worker: save stderr: %w", err)
	}

	logFile, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		unix.Close(origStdout)
		unix.Close(origStderr)
		return nil, fmt.Errorf("worker: open capture log: %w", err)
	}

	if err := unix.Dup2(int(logFile.Fd()), 1); err != nil {
		logFile.Close()
		unix.Close(origStdout)
		unix.Close(origStderr)
		return nil, fmt.Errorf("worker: redirect stdout: %w", err)
	}
	if err := unix.Dup2(int(logFile.Fd()), 2); err != nil {
		unix.Dup2(origStdout, 1)
		logFile.Close()
		unix.Close(origStdout)
		unix.Close(origStderr)
		return nil, fmt.Errorf("worker: redirect stderr: %w", err)
	}

	return &Capture{origStdout: origStdout, origStderr: origStderr, logFile: logFile, path: path}, nil
}

// Stop flushes and restores the original stdout/stderr descriptors. It is
// safe to call once; callers must not use the Capture afterward.
func (c *Capture) Stop() error {
	os.Stdout.Sync()
	os.Stderr.Sync()

	if err := unix.Dup2(c.origStdout, 1); err != nil {
		return fmt.Errorf("worker: restore stdout: %w", err)
	}
	if err := unix.Dup2(c.origStderr, 2); err != nil {
		return fmt.Errorf("worker: restore stderr: %w", err)
	}
	unix.Close(c.origStdout)
	unix.Close(c.origStderr)
	return c.logFile.Close()
}

// Path returns the local log file path being captured into.
func (c *Capture) Path() string { return c.path }
