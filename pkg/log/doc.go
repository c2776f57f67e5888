/*
Package log provides structured logging for jobflow using zerolog.

It wraps zerolog to give every component (job store backends, the recovery
sweep, the worker loop) a logger pre-tagged with its own context, so a single
grep over JSON output lines can isolate one job's lifecycle end to end.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	jobLog := log.WithJobID(jobStoreID)
	jobLog.Info().Msg("chained into successor")

	log.WithComponent("recovery").Info().
		Int("jobs_swept", n).
		Msg("recovery sweep converged")

# Log Levels

Debug is for per-chain-iteration detail, Info for job lifecycle transitions
(created, chained, completed, recovered), Warn for conditions the worker
tolerates (a successor already gone during pre-execution pruning), Error for
anything that reaches the worker's failure path.
*/
package log
