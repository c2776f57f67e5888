// Package objectstore implements jobstore.Store against an S3-compatible
// bucket using minio-go/v7, registered under the "s3" endpoint scheme.
//
// Endpoint shape: "s3://<host>[:port]/<bucket>[/<prefix>]". Credentials are
// read from the environment (AWS_ACCESS_KEY_ID/AWS_SECRET_ACCESS_KEY,
// falling back to MINIO_ROOT_USER/MINIO_ROOT_PASSWORD for a local minio)
// rather than threading secrets through the endpoint string itself.
//
// Every object key this package writes is buffered fully in memory and
// committed with a single PutObject call: a crash mid-write never reaches
// the client's Close() call that performs the PutObject, so readers only
// ever observe the prior complete version or the new complete version,
// never a torn one. minio-go already switches to multi-part upload
// internally once a PutObject body crosses its own size threshold, so a
// second, hand-rolled staging-key-plus-CopyObject scheme on top of that
// would just re-implement the same atomicity minio-go already gives this
// package for free.
package objectstore

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

func init() {
	jobstore.RegisterBackend("s3", func(ctx context.Context, endpoint string) (jobstore.Store, error) {
		return Open(ctx, endpoint)
	})
}

// Store is the S3-compatible backend.
type Store struct {
	client *minio.Client
	bucket string
	prefix string
	retry  jobstore.RetryPolicy
}

// withRetry runs op through s.retry, bounding and pacing retries of any
// error op marks Transient -- the "Retried with bounded backoff inside the
// operation" contract spec.md §7 assigns to TransientBackend errors.
func (s *Store) withRetry(ctx context.Context, op func() error) error {
	return s.retry.Do(ctx, "objectstore", op)
}

func resolveCredentials() *credentials.Credentials {
	accessKey := os.Getenv("AWS_ACCESS_KEY_ID")
	secretKey := os.Getenv("AWS_SECRET_ACCESS_KEY")
	if accessKey == "" {
		accessKey = os.Getenv("MINIO_ROOT_USER")
	}
	if secretKey == "" {
		secretKey = os.Getenv("MINIO_ROOT_PASSWORD")
	}
	return credentials.NewStaticV4(accessKey, secretKey, "")
}

// Open parses rest (the endpoint with its "s3://" scheme already stripped
// by jobstore.Open) as "<host>[:port]/<bucket>[/<prefix>]" and connects.
func Open(ctx context.Context, rest string) (*Store, error) {
	host, bucket, prefix, err := parseEndpoint(rest)
	if err != nil {
		return nil, err
	}

	client, err := minio.New(host, &minio.Options{
		Creds:  resolveCredentials(),
		Secure: true,
	})
	if err != nil {
		return nil, fmt.Errorf("jobstore/objectstore: connect: %w", err)
	}

	store := &Store{client: client, bucket: bucket, prefix: prefix, retry: jobstore.DefaultRetryPolicy()}

	var exists bool
	if err := store.withRetry(ctx, func() error {
		var statErr error
		exists, statErr = client.BucketExists(ctx, bucket)
		if statErr != nil {
			return jobstore.Transient(fmt.Errorf("jobstore/objectstore: check bucket: %w", statErr))
		}
		return nil
	}); err != nil {
		return nil, err
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("jobstore/objectstore: create bucket: %w", err)
		}
	}

	return store, nil
}

func parseEndpoint(rest string) (host, bucket, prefix string, err error) {
	parts := strings.SplitN(rest, "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return "", "", "", fmt.Errorf("jobstore/objectstore: endpoint must be host/bucket[/prefix], got %q", rest)
	}
	host = parts[0]
	bucket = parts[1]
	if len(parts) == 3 {
		prefix = strings.TrimSuffix(parts[2], "/")
	}
	return host, bucket, prefix, nil
}

func (s *Store) key(parts ...string) string {
	all := append([]string{}, parts...)
	if s.prefix != "" {
		all = append([]string{s.prefix}, all...)
	}
	return strings.Join(all, "/")
}

// Close releases no held resources; minio.Client pools its own HTTP
// transport and needs no explicit shutdown.
func (s *Store) Close() error { return nil }

func isNoSuchKey(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
