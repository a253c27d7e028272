// Package blob implements the large-object store: binary payloads addressed
// by an opaque key, independent of any document transaction. Callers needing
// atomicity across an object and a metadata record rely on the lifecycle
// coordinator's ordering discipline, not on this package.
package blob

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Store persists binary payloads. Writes are all-or-nothing from the
// caller's viewpoint: a failed Put never leaves a retrievable partial object.
type Store interface {
	// Put writes the payload under key. size is the exact content length.
	Put(ctx context.Context, key string, r io.Reader, size int64, mime string) error
	// Get returns the payload stream plus its content length and MIME type.
	Get(ctx context.Context, key string) (io.ReadCloser, int64, string, error)
	// Delete removes the object. Deleting a missing object is not an error.
	Delete(ctx context.Context, key string) error
	// DeletePrefix removes every object under prefix; used on tenant drop.
	DeletePrefix(ctx context.Context, prefix string) error
}

// NewObjectKey returns a fresh storage key under the given tenant prefix,
// date-partitioned so buckets stay listable.
func NewObjectKey(prefix string) string {
	d := time.Now()
	return fmt.Sprintf("%sassets/%d/%d/%d/%v", prefix, d.Year(), d.Month(), d.Day(), uuid.New())
}
