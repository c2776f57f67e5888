package worker

import (
	"context"
	"fmt"

	"github.com/cuemby/jobflow/pkg/jobstore"
	"github.com/cuemby/jobflow/pkg/types"
)

// PayloadKind names one variant of the reconstruction registry.
type PayloadKind string

// Loader carries the module search path a payload needs to resolve
// whatever it references, threaded through explicitly instead of
// mutating a process-global search path.
type Loader struct {
	SearchDirs []string
}

// RunContext is everything a Payload needs to execute one job.
type RunContext struct {
	Store         jobstore.Store
	Job           *types.JobRecord
	ScratchDir    string
	DefaultMemory int64
	DefaultCPU    int64
}

// Payload is the executable unit a job's command resolves to. Execute
// returns the user-level log messages the payload produced, to be
// recorded alongside the worker's own stats.
type Payload interface {
	Execute(ctx context.Context, rc *RunContext) (messages []string, err error)
}

// Constructor reconstructs a Payload from its serialized form.
type Constructor func(blob []byte, loader *Loader) (Payload, error)

var payloadRegistry = map[PayloadKind]Constructor{}

// RegisterPayloadKind binds kind to ctor. Intended for init() in a
// package that defines a payload kind; panics on a duplicate
// registration, which can only be a build-time mistake.
func RegisterPayloadKind(kind PayloadKind, ctor Constructor) {
	if _, exists := payloadRegistry[kind]; exists {
		panic(fmt.Sprintf("worker: payload kind %q already registered", kind))
	}
	payloadRegistry[kind] = ctor
}

// UnknownPayloadKindError is returned by ReconstructPayload for a kind
// with no registered constructor.
type UnknownPayloadKindError struct {
	Kind PayloadKind
}

func (e *UnknownPayloadKindError) Error() string {
	return fmt.Sprintf("worker: unknown payload kind %q", e.Kind)
}

// ReconstructPayload looks up kind's constructor and invokes it with blob
// and loader. This is the sole bridge between a serialized command and an
// executable Payload; it replaces "import these classes then unpickle"
// with an explicit, typed lookup.
func ReconstructPayload(kind PayloadKind, blob []byte, loader *Loader) (Payload, error) {
	ctor, ok := payloadRegistry[kind]
	if !ok {
		return nil, &UnknownPayloadKindError{Kind: kind}
	}
	return ctor(blob, loader)
}
