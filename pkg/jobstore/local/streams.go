package local

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/metrics"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// commitWriter stages writes under baseDir/tmp and only makes them visible
// -- by renaming into place and recording the commit in bbolt -- when
// Close is called with no prior write error. This is what gives
// WriteFileStream/UpdateFileStream their all-or-nothing semantics.
type commitWriter struct {
	store *Store
	tmp   *os.File

	id        string // fileID or shared name
	namespace string // "per_job" or "shared", for metrics
	finalPath string

	ownerJobID         string // per-job writes only
	isUpdate           bool
	expectedGeneration int64 // per-job updates only

	written int64
	failed  bool
}

func (w *commitWriter) Write(p []byte) (int, error) {
	n, err := w.tmp.Write(p)
	w.written += int64(n)
	if err != nil {
		w.failed = true
	}
	return n, err
}

func (w *commitWriter) FileID() string { return w.id }

func (w *commitWriter) Abort() error {
	_ = w.tmp.Close()
	return os.Remove(w.tmp.Name())
}

func (w *commitWriter) Close() error {
	if w.failed {
		return w.Abort()
	}
	if err := w.tmp.Close(); err != nil {
		_ = os.Remove(w.tmp.Name())
		return fmt.Errorf("jobstore/local: close staged write: %w", err)
	}

	if w.namespace == "shared" {
		if err := os.Rename(w.tmp.Name(), w.finalPath); err != nil {
			return fmt.Errorf("jobstore/local: commit shared file %q: %w", w.id, err)
		}
		metrics.FileBytesWrittenTotal.WithLabelValues("shared").Add(float64(w.written))
		return nil
	}

	err := w.store.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		meta := fileMeta{OwnerJobID: w.ownerJobID}
		if w.isUpdate {
			existing, err := w.store.loadFileMeta(tx, w.id)
			if err != nil {
				return err
			}
			if existing.Generation != w.expectedGeneration {
				metrics.ConcurrentFileModificationsTotal.Inc()
				return &jobstore.ConcurrentFileModificationError{FileID: w.id}
			}
			meta = *existing
		}
		meta.Generation++
		data, err := json.Marshal(meta)
		if err != nil {
			return err
		}
		return b.Put([]byte(w.id), data)
	})
	if err != nil {
		_ = os.Remove(w.tmp.Name())
		return err
	}
	if err := os.Rename(w.tmp.Name(), w.finalPath); err != nil {
		return fmt.Errorf("jobstore/local: commit file %q: %w", w.id, err)
	}
	metrics.FileBytesWrittenTotal.WithLabelValues("per_job").Add(float64(w.written))
	return nil
}

func (s *Store) newStagedFile() (*os.File, error) {
	return os.CreateTemp(filepath.Join(s.baseDir, "tmp"), "write-*")
}

// WriteFileStream implements jobstore.FileStore.
func (s *Store) WriteFileStream(_ context.Context, ownerJobID string) (jobstore.WriteCommitCloser, error) {
	fileID := uuid.New().String()
	tmp, err := s.newStagedFile()
	if err != nil {
		return nil, fmt.Errorf("jobstore/local: stage write: %w", err)
	}
	return &commitWriter{
		store:      s,
		tmp:        tmp,
		id:         fileID,
		namespace:  "per_job",
		finalPath:  s.filePath(fileID),
		ownerJobID: ownerJobID,
	}, nil
}

// UpdateFileStream implements jobstore.FileStore.
func (s *Store) UpdateFileStream(_ context.Context, fileID string) (jobstore.WriteCommitCloser, error) {
	var meta fileMeta
	err := s.db.View(func(tx *bolt.Tx) error {
		m, err := s.loadFileMeta(tx, fileID)
		if err != nil {
			return err
		}
		meta = *m
		return nil
	})
	if err != nil {
		return nil, err
	}

	tmp, err := s.newStagedFile()
	if err != nil {
		return nil, fmt.Errorf("jobstore/local: stage write: %w", err)
	}
	return &commitWriter{
		store:              s,
		tmp:                tmp,
		id:                 fileID,
		namespace:          "per_job",
		finalPath:          s.filePath(fileID),
		ownerJobID:         meta.OwnerJobID,
		isUpdate:           true,
		expectedGeneration: meta.Generation,
	}, nil
}

// ReadFileStream implements jobstore.FileStore.
func (s *Store) ReadFileStream(_ context.Context, fileID string) (io.ReadCloser, error) {
	err := s.db.View(func(tx *bolt.Tx) error {
		_, err := s.loadFileMeta(tx, fileID)
		return err
	})
	if err != nil {
		return nil, err
	}
	f, err := os.Open(s.filePath(fileID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &jobstore.NoSuchFileError{FileID: fileID}
		}
		return nil, fmt.Errorf("jobstore/local: open %s: %w", fileID, err)
	}
	return f, nil
}

// WriteSharedFileStream implements jobstore.SharedFileStore. Shared writers
// serialize through the final os.Rename rather than surfacing
// ConcurrentFileModification: the last writer to commit always wins.
func (s *Store) WriteSharedFileStream(_ context.Context, name string) (jobstore.WriteCommitCloser, error) {
	if err := jobstore.ValidateSharedName(name); err != nil {
		return nil, err
	}
	tmp, err := s.newStagedFile()
	if err != nil {
		return nil, fmt.Errorf("jobstore/local: stage shared write: %w", err)
	}
	return &commitWriter{
		store:     s,
		tmp:       tmp,
		id:        name,
		namespace: "shared",
		finalPath: s.sharedPath(name),
	}, nil
}

// ReadSharedFileStream implements jobstore.SharedFileStore.
func (s *Store) ReadSharedFileStream(_ context.Context, name string) (io.ReadCloser, error) {
	if err := jobstore.ValidateSharedName(name); err != nil {
		return nil, err
	}
	f, err := os.Open(s.sharedPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &jobstore.NoSuchFileError{FileID: name}
		}
		return nil, fmt.Errorf("jobstore/local: open shared %s: %w", name, err)
	}
	return f, nil
}
