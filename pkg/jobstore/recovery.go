package jobstore

import (
	"context"
	"errors"

	"github.com/cuemby/jobflow/pkg/log"
	"github.com/cuemby/jobflow/pkg/metrics"
	"github.com/cuemby/jobflow/pkg/types"
)

// Sweep reconciles partially-applied updates left by a crashed writer. It
// is invoked once when a Store handle is opened against an already-existing
// backing store, and is safe to call again on an already-clean store: a
// second sweep makes no changes.
//
// Sweep loops until a full pass makes no further change, running to a fixed
// point rather than assuming any bounded number of passes is always enough.
func Sweep(ctx context.Context, store Store) error {
	logger := log.WithComponent("recovery")
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RecoverySweepDuration)

	jobs, err := store.Jobs(ctx)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		// Store is empty: no root job has been created yet.
		return nil
	}

	passes := 0
	for {
		passes++
		changed, err := sweepPass(ctx, store)
		if err != nil {
			return err
		}
		if !changed {
			break
		}
	}
	metrics.RecoverySweepPasses.Observe(float64(passes))
	logger.Info().Int("passes", passes).Msg("recovery sweep converged")
	return nil
}

// sweepPass runs one reconciliation pass and reports whether it changed
// anything.
func sweepPass(ctx context.Context, store Store) (bool, error) {
	jobs, err := store.Jobs(ctx)
	if err != nil {
		return false, err
	}

	// Collect the union of every jobsToDelete set in the store.
	orphanUpdateIDs := make(map[string]struct{})
	for _, r := range jobs {
		for u := range r.JobsToDelete {
			orphanUpdateIDs[u] = struct{}{}
		}
	}

	changed := false

	// Delete every record whose UpdateID names it as an orphan. This
	// erases records that were provisionally created (spawn step 2) but
	// whose parent's linking update (spawn step 3) never committed.
	if len(orphanUpdateIDs) > 0 {
		for _, r := range jobs {
			if _, marked := orphanUpdateIDs[r.UpdateID]; marked {
				if err := store.Delete(ctx, r.JobStoreID); err != nil {
					return false, err
				}
				metrics.RecoveryJobsDeleted.Inc()
				changed = true
			}
		}
	}

	// Re-enumerate: the deletes above may have removed records we must
	// not touch again below.
	jobs, err = store.Jobs(ctx)
	if err != nil {
		return changed, err
	}

	for _, r := range jobs {
		recordChanged := false

		if len(r.JobsToDelete) != 0 {
			r.JobsToDelete = nil
			recordChanged = true
		}

		for len(r.Stack) > 0 {
			top := r.Stack[len(r.Stack)-1]
			filtered := make(types.SuccessorGroup, 0, len(top))
			for _, s := range top {
				ok, err := store.Exists(ctx, s.JobStoreID)
				if err != nil {
					return changed, err
				}
				if ok {
					filtered = append(filtered, s)
				}
			}
			if len(filtered) == 0 {
				r.Stack = r.Stack[:len(r.Stack)-1]
				recordChanged = true
				continue
			}
			if len(filtered) < len(top) {
				r.Stack[len(r.Stack)-1] = filtered
				recordChanged = true
			}
			break
		}

		if r.LogJobStoreFileID != nil {
			if err := store.DeleteFile(ctx, *r.LogJobStoreFileID); err != nil && !errors.Is(err, ErrNoSuchFile) {
				return changed, err
			}
			r.LogJobStoreFileID = nil
			recordChanged = true
		}

		if recordChanged {
			if err := store.Update(ctx, r); err != nil {
				return changed, err
			}
			changed = true
		}
	}

	return changed, nil
}
