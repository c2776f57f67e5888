// Package local implements jobstore.Store against a plain directory tree
// plus an embedded bbolt index, using one bucket per entity (job records,
// file metadata) the same way an embedded key-value index typically
// partitions unrelated record kinds.
//
// Layout under baseDir:
//
//	<baseDir>/index.db   bbolt database: job records and file metadata
//	<baseDir>/files/     per-job file content, keyed by file ID
//	<baseDir>/shared/    shared file content, keyed by validated name
//	<baseDir>/tmp/       staging area for atomic writes
//
// Every stream write lands in tmp/ first and is moved into place with
// os.Rename, which is atomic on the same filesystem. For a per-job file the
// bbolt update that commits its metadata (and, for an update, checks the
// generation counter) happens first, in the same call, and the rename
// follows it; a crash between the two leaves the metadata pointing at the
// previous content (or, for a new file, at no content, so reads report
// ErrNoSuchFile) -- never a torn read. Shared files have no metadata and
// are committed by the rename alone.
package local

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

var (
	bucketJobs   = []byte("jobs")
	bucketFiles  = []byte("files")
	bucketShared = []byte("shared")
	bucketStats  = []byte("stats")
)

func init() {
	jobstore.RegisterBackend("file", func(_ context.Context, endpoint string) (jobstore.Store, error) {
		return Open(endpoint)
	})
}

// Store is the local, single-host backend.
type Store struct {
	baseDir string
	db      *bolt.DB
}

// Open creates baseDir if necessary and returns a Store backed by it. bbolt
// holds an exclusive file lock on index.db for as long as the Store is
// open, so only one Store per baseDir can be open at a time: a second Open
// of the same baseDir, from this process or another, waits up to five
// seconds for the first Store to be closed and then fails.
func Open(baseDir string) (*Store, error) {
	for _, sub := range []string{"", "files", "shared", "tmp"} {
		if err := os.MkdirAll(filepath.Join(baseDir, sub), 0o700); err != nil {
			return nil, fmt.Errorf("jobstore/local: create %s: %w", sub, err)
		}
	}

	db, err := bolt.Open(filepath.Join(baseDir, "index.db"), 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("jobstore/local: open index: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketJobs, bucketFiles, bucketShared, bucketStats} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("jobstore/local: create buckets: %w", err)
	}

	return &Store{baseDir: baseDir, db: db}, nil
}

// Close implements jobstore.Store.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create implements jobstore.JobRecordStore.
func (s *Store) Create(_ context.Context, command *string, memory, cpu int64, updateID string, predecessorNumber int) (*types.JobRecord, error) {
	record := &types.JobRecord{
		JobStoreID:           uuid.New().String(),
		Command:              command,
		Memory:               memory,
		CPU:                  cpu,
		UpdateID:             updateID,
		PredecessorNumber:    predecessorNumber,
		PredecessorsFinished: map[string]struct{}{},
		CreatedAt:            time.Now().UTC(),
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketJobs).Put([]byte(record.JobStoreID), data)
	})
	if err != nil {
		return nil, fmt.Errorf("jobstore/local: create job: %w", err)
	}
	return record, nil
}

// Exists implements jobstore.JobRecordStore.
func (s *Store) Exists(_ context.Context, jobStoreID string) (bool, error) {
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		found = tx.Bucket(bucketJobs).Get([]byte(jobStoreID)) != nil
		return nil
	})
	return found, err
}

// Load implements jobstore.JobRecordStore.
func (s *Store) Load(_ context.Context, jobStoreID string) (*types.JobRecord, error) {
	var record types.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketJobs).Get([]byte(jobStoreID))
		if data == nil {
			return &jobstore.NoSuchJobError{JobStoreID: jobStoreID}
		}
		return json.Unmarshal(data, &record)
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update implements jobstore.JobRecordStore.
func (s *Store) Update(_ context.Context, record *types.JobRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketJobs)
		if b.Get([]byte(record.JobStoreID)) == nil {
			return &jobstore.NoSuchJobError{JobStoreID: record.JobStoreID}
		}
		data, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return b.Put([]byte(record.JobStoreID), data)
	})
}

// Delete implements jobstore.JobRecordStore. It is idempotent and also
// removes every per-job file the record owns.
func (s *Store) Delete(ctx context.Context, jobStoreID string) error {
	var owned []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketFiles).ForEach(func(k, v []byte) error {
			var meta fileMeta
			if err := json.Unmarshal(v, &meta); err != nil {
				return err
			}
			if meta.OwnerJobID == jobStoreID {
				owned = append(owned, string(k))
			}
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, fileID := range owned {
		if err := s.DeleteFile(ctx, fileID); err != nil && !isNoSuchFile(err) {
			return err
		}
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).Delete([]byte(jobStoreID))
	})
}

// Jobs implements jobstore.JobRecordStore.
func (s *Store) Jobs(_ context.Context) ([]*types.JobRecord, error) {
	var records []*types.JobRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketJobs).ForEach(func(_, v []byte) error {
			var record types.JobRecord
			if err := json.Unmarshal(v, &record); err != nil {
				return err
			}
			records = append(records, &record)
			return nil
		})
	})
	return records, err
}
