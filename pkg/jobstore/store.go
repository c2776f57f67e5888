package jobstore

import (
	"context"
	"io"

	"github.com/cuemby/jobflow/pkg/types"
)

// JobRecordStore persists, loads, updates, deletes and enumerates job
// records. Every method must honor the atomicity and visibility guarantees
// of the store: a reader never observes a torn write, and concurrent
// updates to distinct IDs carry no ordering guarantee against each other.
type JobRecordStore interface {
	// Create allocates a fresh, never-reused JobStoreID and persists a
	// record with an empty Stack, JobsToDelete and PredecessorsFinished,
	// and LogJobStoreFileID=nil. Callers pass predecessorNumber=0 for a
	// root job.
	Create(ctx context.Context, command *string, memory, cpu int64, updateID string, predecessorNumber int) (*types.JobRecord, error)

	// Exists returns true iff a record with this ID is currently persisted.
	Exists(ctx context.Context, jobStoreID string) (bool, error)

	// Load returns the record for jobStoreID, or ErrNoSuchJob.
	Load(ctx context.Context, jobStoreID string) (*types.JobRecord, error)

	// Update atomically replaces the persisted state of record.JobStoreID.
	// Concurrent updates to the same ID are resolved last-writer-wins at
	// record granularity; no partial/torn write is ever observable.
	Update(ctx context.Context, record *types.JobRecord) error

	// Delete removes the record and cascades to every per-job file it
	// owns. It is idempotent: deleting an unknown or already-deleted ID
	// succeeds silently.
	Delete(ctx context.Context, jobStoreID string) error

	// Jobs enumerates a consistent snapshot-or-live view of every record
	// currently in the store. It must never expose a partially-created
	// record.
	Jobs(ctx context.Context) ([]*types.JobRecord, error)
}

// FileStore implements the per-job and shared file namespaces. Per-job
// files are keyed by an opaque file ID bound to an owning job and
// are deleted when that job is deleted. Shared files are keyed by a
// caller-chosen name validated by SharedFileNameRegex.
type FileStore interface {
	// WriteFile copies localPath into the store under a fresh file ID
	// owned by ownerJobID.
	WriteFile(ctx context.Context, ownerJobID, localPath string) (fileID string, err error)

	// UpdateFile replaces the content of an existing file. Returns
	// ErrNoSuchFile if fileID is absent, or ErrConcurrentFileModification
	// if another update committed while this one was in flight.
	UpdateFile(ctx context.Context, fileID, localPath string) error

	// ReadFile materializes the latest committed version of fileID at
	// localPath.
	ReadFile(ctx context.Context, fileID, localPath string) error

	// DeleteFile removes fileID. Returns ErrNoSuchFile if absent.
	DeleteFile(ctx context.Context, fileID string) error

	// GetEmptyFileStoreID reserves a fresh, empty file owned by
	// ownerJobID.
	GetEmptyFileStoreID(ctx context.Context, ownerJobID string) (fileID string, err error)

	// WriteFileStream returns a WriteCommitCloser bound to a brand-new
	// file ID owned by ownerJobID. The file is committed atomically when
	// Close returns nil; if Close returns an error (or is never called
	// after a write failure), no file with that ID becomes observable.
	WriteFileStream(ctx context.Context, ownerJobID string) (WriteCommitCloser, error)

	// UpdateFileStream is WriteFileStream constrained to an existing file
	// ID, with the same all-or-nothing commit semantics. Returns
	// ErrConcurrentFileModification if another writer commits first.
	UpdateFileStream(ctx context.Context, fileID string) (WriteCommitCloser, error)

	// ReadFileStream opens fileID for reading. Returns ErrNoSuchFile
	// immediately (not lazily on first Read) if the file does not exist.
	ReadFileStream(ctx context.Context, fileID string) (io.ReadCloser, error)
}

// SharedFileStore implements the flat, caller-named shared-file namespace.
// Names must match SharedFileNameRegex.
type SharedFileStore interface {
	WriteSharedFileStream(ctx context.Context, name string) (WriteCommitCloser, error)
	ReadSharedFileStream(ctx context.Context, name string) (io.ReadCloser, error)
}

// StatsSink implements the append-only stats/log collection.
type StatsSink interface {
	// WriteStatsAndLogging appends an opaque blob.
	WriteStatsAndLogging(ctx context.Context, blob []byte) error

	// ReadStatsAndLogging invokes fn once per accumulated blob, in
	// unspecified order, removing each blob only after fn returns nil. A
	// mid-drain error from fn must not lose the blobs not yet visited. It
	// returns the number of blobs fn returned nil for.
	ReadStatsAndLogging(ctx context.Context, fn func(io.Reader) error) (int, error)
}

// WriteCommitCloser is a scoped write sink. Close commits the write if no
// prior Write returned an error and the caller intends to keep the data;
// Abort discards it explicitly. Exactly one of Close or Abort must be
// called.
type WriteCommitCloser interface {
	io.Writer
	FileID() string
	Close() error
	Abort() error
}

// Store is the full surface a backend must implement: job records, both
// file namespaces, and the stats sink. A *Sweep* (recovery.go) is run once
// by Open against whichever Store it returns, not implemented per-backend.
type Store interface {
	JobRecordStore
	FileStore
	SharedFileStore
	StatsSink

	// Close releases backend resources (file handles, connections). It
	// does not delete any persisted state.
	Close() error
}
