package records

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned by a BlobStore when the object does not exist.
var ErrNotFound = errors.New("object not found")

// BlobStore persists whole artifacts (snapshot, export, marker) by key.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
	GetObject(ctx context.Context, path string) ([]byte, error)
}

// RunStore records pipeline run history.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
}

// Notifier pushes run completion events to Pub/Sub (or similar).
type Notifier interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Hasher computes digests used to fingerprint input exports.
type Hasher interface {
	Hash(data []byte) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
