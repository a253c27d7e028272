// Package owners maintains the denormalized per-owner asset counter.
package owners

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// IncrementAssetCount atomically adjusts the owner's counter by delta.
	// Must run inside the same transaction as the asset mutation it reflects.
	IncrementAssetCount(ctx context.Context, ownerID uuid.UUID, delta int64) error
	// AssetCount reports the current counter; an owner with no assets yet
	// reads as zero.
	AssetCount(ctx context.Context, ownerID uuid.UUID) (int64, error)
}
