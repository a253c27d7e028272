// Package models defines server-side data models persisted in the database.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Asset describes server-side metadata for one stored binary (an image or a
// document). The payload itself lives in object storage under StorageKey;
// an Asset row exists only while its object exists and is fully written.
type Asset struct {
	ID uuid.UUID
	// OwnerID is the owning entity (e.g. a customer) the asset is attached to.
	OwnerID uuid.UUID
	// UploaderID is the user who uploaded the asset.
	UploaderID uuid.UUID

	Title       string
	Description string
	// Filename is the original client-side file name.
	Filename string
	// MimeType is the declared content type, echoed back on download.
	MimeType string
	// Size is the payload length in bytes.
	Size int64

	// LabelIDs is the set of labels attached to the asset.
	LabelIDs []uuid.UUID

	// StorageKey is the object-storage key of the payload.
	StorageKey string

	UploadedAt time.Time
}

// Label is a user-defined tag attachable to assets.
type Label struct {
	ID   uuid.UUID
	Name string
}
