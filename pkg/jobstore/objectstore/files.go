package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

// fileMeta mirrors jobstore/local's per-file bookkeeping: an owner and a
// generation counter used to detect a racing update at commit time.
type fileMeta struct {
	OwnerJobID string `json:"ownerJobID"`
	Generation int64  `json:"generation"`
}

func (s *Store) fileContentKey(fileID string) string { return s.key("files", fileID) }
func (s *Store) fileMetaKey(fileID string) string     { return s.key("meta", "files", fileID+".json") }
func (s *Store) sharedContentKey(name string) string  { return s.key("shared", name) }

func (s *Store) loadFileMeta(ctx context.Context, fileID string) (*fileMeta, error) {
	var data []byte
	err := s.withRetry(ctx, func() error {
		obj, getErr := s.client.GetObject(ctx, s.bucket, s.fileMetaKey(fileID), minio.GetObjectOptions{})
		if getErr != nil {
			return jobstore.Transient(getErr)
		}
		defer obj.Close()
		read, readErr := io.ReadAll(obj)
		if readErr != nil {
			if isNoSuchKey(readErr) {
				return &jobstore.NoSuchFileError{FileID: fileID}
			}
			return jobstore.Transient(readErr)
		}
		data = read
		return nil
	})
	if err != nil {
		return nil, err
	}
	var meta fileMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, err
	}
	return &meta, nil
}

// WriteFile copies localPath under a fresh file ID owned by ownerJobID.
func (s *Store) WriteFile(ctx context.Context, ownerJobID, localPath string) (string, error) {
	w, err := s.WriteFileStream(ctx, ownerJobID)
	if err != nil {
		return "", err
	}
	if err := copyLocalInto(w, localPath); err != nil {
		return "", err
	}
	return w.FileID(), nil
}

// UpdateFile replaces the content of an existing file.
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
		return err
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		_ = w.Abort()
		return err
	}
	return w.Close()
}

// ReadFile materializes the latest committed version of fileID at localPath.
func (s *Store) ReadFile(ctx context.Context, fileID, localPath string) error {
	r, err := s.ReadFileStream(ctx, fileID)
	if err != nil {
		return err
	}
	defer r.Close()

	out, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, r)
	return err
}

// DeleteFile removes fileID's content and metadata.
func (s *Store) DeleteFile(ctx context.Context, fileID string) error {
	if _, err := s.loadFileMeta(ctx, fileID); err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		if err := s.client.RemoveObject(ctx, s.bucket, s.fileMetaKey(fileID), minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
			return jobstore.Transient(err)
		}
		if err := s.client.RemoveObject(ctx, s.bucket, s.fileContentKey(fileID), minio.RemoveObjectOptions{}); err != nil && !isNoSuchKey(err) {
			return jobstore.Transient(err)
		}
		return nil
	})
}

// GetEmptyFileStoreID reserves a fresh, empty file owned by ownerJobID.
func (s *Store) GetEmptyFileStoreID(ctx context.Context, ownerJobID string) (string, error) {
	fileID := uuid.New().String()
	if err := s.putObjectBytes(ctx, s.fileContentKey(fileID), nil); err != nil {
		return "", err
	}
	if err := s.putJSON(ctx, s.fileMetaKey(fileID), fileMeta{OwnerJobID: ownerJobID}); err != nil {
		return "", err
	}
	return fileID, nil
}

func (s *Store) putObjectBytes(ctx context.Context, key string, data []byte) error {
	return s.withRetry(ctx, func() error {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
		if err != nil {
			return jobstore.Transient(err)
		}
		return nil
	})
}

// deleteOwnedFiles scans every file's metadata for one owned by jobStoreID
// and removes it. A full-namespace scan, same tradeoff jobstore/local's
// bucket walk makes: correctness over an index that would need its own
// consistency story.
func (s *Store) deleteOwnedFiles(ctx context.Context, jobStoreID string) error {
	prefix := s.key("meta", "files") + "/"
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return jobstore.Transient(obj.Err)
		}
		var meta fileMeta
		if err := s.getJSON(ctx, obj.Key, &meta); err != nil {
			return err
		}
		if meta.OwnerJobID != jobStoreID {
			continue
		}
		fileID := fileIDFromMetaKey(obj.Key, prefix)
		if err := s.DeleteFile(ctx, fileID); err != nil {
			if !isNoSuchFile(err) {
				return err
			}
		}
	}
	return nil
}

func fileIDFromMetaKey(key, prefix string) string {
	name := key[len(prefix):]
	return name[:len(name)-len(".json")]
}

func isNoSuchFile(err error) bool {
	return errors.Is(err, jobstore.ErrNoSuchFile)
}
