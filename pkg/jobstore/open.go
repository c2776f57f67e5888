package jobstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cuemby/jobflow/pkg/log"
)

// Backend constructs a Store for the scheme it is registered under.
// Registered by each backend package's init().
type Backend func(ctx context.Context, endpoint string) (Store, error)

var backends = map[string]Backend{}

// RegisterBackend binds scheme (e.g. "file", "s3") to a constructor. It
// panics on a duplicate registration, since that can only be a build-time
// mistake (two backend packages claiming the same scheme).
func RegisterBackend(scheme string, b Backend) {
	if _, exists := backends[scheme]; exists {
		panic(fmt.Sprintf("jobstore: backend already registered for scheme %q", scheme))
	}
	backends[scheme] = b
}

// Open parses endpoint, dispatches to the backend registered for its
// scheme, and runs a recovery sweep against the resulting
// Store before returning it. A bare path with no "scheme://" prefix is
// treated as a "file" endpoint, matching the worker and store CLI
// commands' positional jobStoreEndpoint argument.
func Open(ctx context.Context, endpoint string) (Store, error) {
	scheme := "file"
	rest := endpoint
	if idx := strings.Index(endpoint, "://"); idx >= 0 {
		scheme = endpoint[:idx]
		rest = endpoint[idx+len("://"):]
	}
	if scheme != "file" {
		if _, err := url.Parse(endpoint); err != nil {
			return nil, fmt.Errorf("jobstore: invalid endpoint %q: %w", endpoint, err)
		}
	}

	b, ok := backends[scheme]
	if !ok {
		return nil, fmt.Errorf("jobstore: no backend registered for scheme %q", scheme)
	}

	store, err := b(ctx, rest)
	if err != nil {
		return nil, fmt.Errorf("jobstore: open %q: %w", endpoint, err)
	}

	if err := Sweep(ctx, store); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("jobstore: recovery sweep on open: %w", err)
	}

	log.WithEndpoint(endpoint).Info().Str("component", "jobstore").Msg("opened job store")
	return store, nil
}
