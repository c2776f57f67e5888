package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"time"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/types"
	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
)

func (s *Store) recordKey(jobStoreID string) string { return s.key("jobs", jobStoreID+".json") }

func (s *Store) putJSON(ctx context.Context, key string, v any) error {
	blob, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		_, putErr := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(blob), int64(len(blob)), minio.PutObjectOptions{
			ContentType: "application/json",
		})
		if putErr != nil {
			return jobstore.Transient(putErr)
		}
		return nil
	})
}

func (s *Store) getJSON(ctx context.Context, key string, v any) error {
	var data []byte
	err := s.withRetry(ctx, func() error {
		obj, getErr := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if getErr != nil {
			return jobstore.Transient(getErr)
		}
		defer obj.Close()

		read, readErr := io.ReadAll(obj)
		if readErr != nil {
			if isNoSuchKey(readErr) {
				data = nil
				return nil
			}
			return jobstore.Transient(readErr)
		}
		data = read
		return nil
	})
	if err != nil {
		return err
	}
	if data == nil {
		return nil
	}
	return json.Unmarshal(data, v)
}

// Create allocates a fresh JobStoreID and persists a new record.
func (s *Store) Create(ctx context.Context, command *string, memory, cpu int64, updateID string, predecessorNumber int) (*types.JobRecord, error) {
	record := &types.JobRecord{
		JobStoreID:        uuid.New().String(),
		Command:           command,
		Memory:            memory,
		CPU:               cpu,
		UpdateID:          updateID,
		PredecessorNumber: predecessorNumber,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.putJSON(ctx, s.recordKey(record.JobStoreID), record); err != nil {
		return nil, err
	}
	return record, nil
}

// Exists reports whether jobStoreID has a persisted record.
func (s *Store) Exists(ctx context.Context, jobStoreID string) (bool, error) {
	var found bool
	err := s.withRetry(ctx, func() error {
		_, statErr := s.client.StatObject(ctx, s.bucket, s.recordKey(jobStoreID), minio.StatObjectOptions{})
		if statErr != nil {
			if isNoSuchKey(statErr) {
				found = false
				return nil
			}
			return jobstore.Transient(statErr)
		}
		found = true
		return nil
	})
	return found, err
}

// Load returns the record for jobStoreID.
func (s *Store) Load(ctx context.Context, jobStoreID string) (*types.JobRecord, error) {
	exists, err := s.Exists(ctx, jobStoreID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, &jobstore.NoSuchJobError{JobStoreID: jobStoreID}
	}
	var record types.JobRecord
	if err := s.getJSON(ctx, s.recordKey(jobStoreID), &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Update replaces the persisted state of record.JobStoreID.
func (s *Store) Update(ctx context.Context, record *types.JobRecord) error {
	return s.putJSON(ctx, s.recordKey(record.JobStoreID), record)
}

// Delete removes the record and every per-job file it owns.
func (s *Store) Delete(ctx context.Context, jobStoreID string) error {
	if err := s.deleteOwnedFiles(ctx, jobStoreID); err != nil {
		return err
	}
	return s.withRetry(ctx, func() error {
		err := s.client.RemoveObject(ctx, s.bucket, s.recordKey(jobStoreID), minio.RemoveObjectOptions{})
		if err != nil && !isNoSuchKey(err) {
			return jobstore.Transient(err)
		}
		return nil
	})
}

// Jobs enumerates every record currently in the store. ListObjects itself
// is a streamed iterator with no single call to wrap in a retry; each
// record it names is read back through getJSON, which already retries its
// own GetObject through withRetry.
func (s *Store) Jobs(ctx context.Context) ([]*types.JobRecord, error) {
	prefix := s.key("jobs") + "/"
	var out []*types.JobRecord
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, jobstore.Transient(obj.Err)
		}
		var record types.JobRecord
		if err := s.getJSON(ctx, obj.Key, &record); err != nil {
			return nil, err
		}
		out = append(out, &record)
	}
	return out, nil
}
