/*
Package jobstore defines the Store abstraction that is the sole point of
contact between the worker execution loop, the recovery sweep, and a
physical backend.

# Backends

Two backends satisfy Store:

  - jobstore/local: an embedded bbolt index for job records plus a plain
    directory tree for per-job and shared file content, addressed with
    "file://" or a bare path.
  - jobstore/objectstore: an S3-compatible bucket addressed with "s3://",
    buffering each write and committing it with a single PutObject call;
    minio-go switches that call to a multi-part upload internally once the
    body crosses its own size threshold.

Open dispatches on the endpoint's URI scheme via the backend registered
by each package's init(), and runs Sweep against the opened Store before
returning it, so every caller of Open observes an already-reconciled
store.

# Crash consistency

Every mutating operation on Store must be atomic at record or file
granularity: a reader never observes a torn write. Backends achieve this
with the mechanism native to their medium (temp-file-then-rename for
jobstore/local, a single whole-body PutObject for jobstore/objectstore)
rather than a shared transaction log, since record-level atomicity is all
that is required, not multi-record transactions.

Spawning more than one successor from a running job is the one operation
that touches more than one record; Spawn (spawn.go) makes that
crash-safe without a multi-object transaction by staging the parent's
jobsToDelete field as an orphan marker,

# Errors

Backends report the taxonomy of errors.go (ErrNoSuchJob, ErrNoSuchFile,
ErrConcurrentFileModification, ErrInvalidSharedName) as sentinel-wrapping
typed errors so callers can both errors.Is against the sentinel and pull
out the offending ID. A backend I/O failure worth retrying is wrapped
with Transient; jobstore/objectstore wraps every minio-go call site that
can produce one in retry.go's RetryPolicy.Do, the only caller that
inspects Temporary. jobstore/local has no comparable failure mode to
retry: bbolt and the local filesystem fail deterministically (permission,
disk-full, corruption), not with the transient network blips an
object-store client sees, so it never wraps Transient around anything.
*/
package jobstore
