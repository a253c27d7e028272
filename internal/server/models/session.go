package models

import (
	"time"

	"github.com/google/uuid"
)

// Upload session statuses. A session is created pending, flips to completed
// exactly once at finalize time (then deleted), or is marked failed before
// deletion by an explicit abort.
const (
	SessionStatusPending   = "pending"
	SessionStatusCompleted = "completed"
	SessionStatusFailed    = "failed"
)

// UploadSession is one in-flight resumable upload. TotalSize is fixed at
// creation; chunks are buffered separately until finalize.
type UploadSession struct {
	ID         uuid.UUID
	OwnerID    uuid.UUID
	UploaderID uuid.UUID

	Filename string
	MimeType string
	// TotalSize is the declared payload size in bytes; the assembled chunks
	// must add up to exactly this value.
	TotalSize int64

	Status string

	CreatedAt time.Time
	// ExpiresAt is a hard horizon after which the session and its chunks are
	// swept away.
	ExpiresAt time.Time
}

// UploadChunk is one piece of a session's payload, keyed by (session, index).
// Resubmitting the same index overwrites the previous bytes.
type UploadChunk struct {
	SessionID uuid.UUID
	Index     int
	Size      int
	Data      []byte
}
