package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cuemby/jobflow/pkg/jobstore"
)

const environmentSharedFileName = "environment.json"

// excludedEnvironmentKeys are never applied to the worker process: they
// are host-local and must not leak from whatever host created the job.
var excludedEnvironmentKeys = map[string]bool{
	"TMPDIR":   true,
	"TMP":      true,
	"HOSTNAME": true,
	"HOSTTYPE": true,
}

// LoadEnvironment reads the shared environment blob and applies it to the
// current process environment via os.Setenv, skipping
// excludedEnvironmentKeys. A "PYTHONPATH" entry, if present, is split on
// ":" and appended to loader.SearchDirs instead of mutating any global
// search path.
func LoadEnvironment(ctx context.Context, store jobstore.SharedFileStore, loader *Loader) error {
	r, err := store.ReadSharedFileStream(ctx, environmentSharedFileName)
	if err != nil {
		if isNoSuchFile(err) {
			return nil
		}
		return fmt.Errorf("worker: read environment blob: %w", err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("worker: read environment blob: %w", err)
	}

	var env map[string]string
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("worker: decode environment blob: %w", err)
	}

	for key, value := range env {
		if excludedEnvironmentKeys[key] {
			continue
		}
		if key == "PYTHONPATH" {
			for _, dir := range strings.Split(value, ":") {
				if dir != "" {
					loader.SearchDirs = append(loader.SearchDirs, dir)
				}
			}
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("worker: set %s: %w", key, err)
		}
	}
	return nil
}

func isNoSuchFile(err error) bool {
	return errors.Is(err, jobstore.ErrNoSuchFile)
}
