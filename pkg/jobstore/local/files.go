package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/metrics"
	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

// fileMeta is the bbolt-resident record for one file's content on disk. The
// generation counter is bumped on every committed write and is the basis
// for detecting a racing UpdateFileStream.
type fileMeta struct {
	OwnerJobID string `json:"ownerJobID"`
	Generation int64  `json:"generation"`
}

func isNoSuchFile(err error) bool {
	return errors.Is(err, jobstore.ErrNoSuchFile)
}

func (s *Store) filePath(fileID string) string {
	return filepath.Join(s.baseDir, "files", fileID)
}

func (s *Store) sharedPath(name string) string {
	return filepath.Join(s.baseDir, "shared", name)
}

func (s *Store) loadFileMeta(tx *bolt.Tx, fileID string) (*fileMeta, error) {
	data := tx.Bucket(bucketFiles).Get([]byte(fileID))
	if data == nil {
		return nil, &jobstore.NoSuchFileError{FileID: fileID}
	}
	var meta fileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// WriteFile implements jobstore.FileStore.
func (s *Store) WriteFile(ctx context.Context, ownerJobID, localPath string) (string, error) {
	w, err := s.WriteFileStream(ctx, ownerJobID)
	if err != nil {
		return "", err
	}
	return w.FileID(), copyLocalInto(w, localPath)
}

// UpdateFile implements jobstore.FileStore.
func (s *Store) UpdateFile(ctx context.Context, fileID, localPath string) error {
	w, err := s.UpdateFileStream(ctx, fileID)
	if err != nil {
		return err
	}
	return copyLocalInto(w, localPath)
}

func copyLocalInto(w jobstore.WriteCommitCloser, localPath string) error {
	f, err := os.Open(localPath)
	if err != nil {
		_ = w.Abort()
		return fmt.Errorf("jobstore/local: open %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Abort()
		return fmt.Errorf("jobstore/local: copy %s: %w", localPath, err)
	}
	return w.Close()
}

// ReadFile implements jobstore.FileStore.
func (s *Store) ReadFile(ctx context.Context, fileID, localPath string) error {
	r, err := s.ReadFileStream(ctx, fileID)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("jobstore/local: create %s: %w", localPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("jobstore/local: materialize %s: %w", fileID, err)
	}
	return nil
}

// DeleteFile implements jobstore.FileStore.
func (s *Store) DeleteFile(_ context.Context, fileID string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketFiles)
		if b.Get([]byte(fileID)) == nil {
			return &jobstore.NoSuchFileError{FileID: fileID}
		}
		return b.Delete([]byte(fileID))
	})
	if err != nil {
		return err
	}
	if err := os.Remove(s.filePath(fileID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("jobstore/local: remove %s: %w", fileID, err)
	}
	return nil
}

// GetEmptyFileStoreID implements jobstore.FileStore.
func (s *Store) GetEmptyFileStoreID(_ context.Context, ownerJobID string) (string, error) {
	fileID := uuid.New().String()
	if err := os.WriteFile(s.filePath(fileID), nil, 0o600); err != nil {
		return "", fmt.Errorf("jobstore/local: reserve %s: %w", fileID, err)
	}

	err := s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(fileMeta{OwnerJobID: ownerJobID})
		if err != nil {
			return err
		}
		return tx.Bucket(bucketFiles).Put([]byte(fileID), data)
	})
	if err != nil {
		return "", err
	}
	metrics.FileBytesWrittenTotal.WithLabelValues("per_job").Add(0)
	return fileID, nil
}
