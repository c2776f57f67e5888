package jobstore

import (
	"context"

	"github.com/cuemby/jobflow/pkg/types"
	"golang.org/x/sync/errgroup"
)

// SuccessorSpec describes one successor to spawn from a running job.
type SuccessorSpec struct {
	Command           *string
	Memory            int64
	CPU               int64
	PredecessorNumber int
	UpdateID          string
}

// Spawn implements the three-step spawn protocol for creating len(specs)
// successors from the running job parent. It is the
// only supported way to create successors: callers must not call
// store.Create directly for successor jobs, or the jobsToDelete orphan
// marker that makes this crash-safe is bypassed.
//
//  1. parent.JobsToDelete is set to the full set of UpdateIDs and
//     persisted, so a crash after this point lets the recovery sweep
//     erase any successor that did commit.
//  2. Each successor is created. With more than one spec these run
//     concurrently via errgroup, since nothing promises ordering between
//     operations on different IDs.
//  3. parent.Stack gains a new top group referencing the created
//     successors, JobsToDelete is cleared, and parent is persisted again.
//     After this point the crash window in step 1-2 is closed.
func Spawn(ctx context.Context, store Store, parent *types.JobRecord, specs []SuccessorSpec) ([]*types.JobRecord, error) {
	if len(specs) == 0 {
		return nil, nil
	}

	updateIDs := make(map[string]struct{}, len(specs))
	for _, s := range specs {
		updateIDs[s.UpdateID] = struct{}{}
	}
	parent.JobsToDelete = updateIDs
	if err := store.Update(ctx, parent); err != nil {
		return nil, err
	}

	results := make([]*types.JobRecord, len(specs))
	if len(specs) == 1 {
		s := specs[0]
		rec, err := store.Create(ctx, s.Command, s.Memory, s.CPU, s.UpdateID, s.PredecessorNumber)
		if err != nil {
			return nil, err
		}
		results[0] = rec
	} else {
		g, gctx := errgroup.WithContext(ctx)
		for i, s := range specs {
			i, s := i, s
			g.Go(func() error {
				rec, err := store.Create(gctx, s.Command, s.Memory, s.CPU, s.UpdateID, s.PredecessorNumber)
				if err != nil {
					return err
				}
				results[i] = rec
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	group := make(types.SuccessorGroup, len(results))
	for i, rec := range results {
		group[i] = types.Successor{
			JobStoreID:        rec.JobStoreID,
			Memory:            rec.Memory,
			CPU:               rec.CPU,
			PredecessorNumber: rec.PredecessorNumber,
		}
	}
	parent.Stack = append(parent.Stack, group)
	parent.JobsToDelete = nil
	if err := store.Update(ctx, parent); err != nil {
		return nil, err
	}

	return results, nil
}
