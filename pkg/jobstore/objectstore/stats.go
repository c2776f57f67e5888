package objectstore

import (
	"context"
	"io"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

func (s *Store) statsKey(id string) string { return s.key("stats", id) }

// WriteStatsAndLogging appends an opaque blob under a fresh key, since S3
// has no analog of bbolt's auto-incrementing sequence to append into a
// single log object.
func (s *Store) WriteStatsAndLogging(ctx context.Context, blob []byte) error {
	return s.putObjectBytes(ctx, s.statsKey(uuid.New().String()), blob)
}

// ReadStatsAndLogging invokes fn once per accumulated blob, removing only
// the ones fn accepts, leaving the rest for a future drain -- the same
// "don't lose unvisited blobs on a mid-drain error" contract
// jobstore/local's stats.go documents.
func (s *Store) ReadStatsAndLogging(ctx context.Context, fn func(io.Reader) error) (int, error) {
	prefix := s.key("stats") + "/"
	count := 0
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return count, jobstore.Transient(obj.Err)
		}
		var reader *minio.Object
		if err := s.withRetry(ctx, func() error {
			r, getErr := s.client.GetObject(ctx, s.bucket, obj.Key, minio.GetObjectOptions{})
			if getErr != nil {
				return jobstore.Transient(getErr)
			}
			reader = r
			return nil
		}); err != nil {
			return count, err
		}
		err := fn(reader)
		reader.Close()
		if err != nil {
			continue
		}
		if err := s.withRetry(ctx, func() error {
			if removeErr := s.client.RemoveObject(ctx, s.bucket, obj.Key, minio.RemoveObjectOptions{}); removeErr != nil {
				return jobstore.Transient(removeErr)
			}
			return nil
		}); err != nil {
			return count, err
		}
		count++
	}
	return count, nil
}
