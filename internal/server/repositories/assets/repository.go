// Package assets persists asset metadata records inside one tenant
// partition. The payload bytes themselves never pass through this package.
package assets

import (
	"context"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, asset *models.Asset) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Asset, error)
	UpdateDescriptive(ctx context.Context, id uuid.UUID, title, description string) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Asset, error)
	ListByAnyLabel(ctx context.Context, labelIDs []uuid.UUID) ([]*models.Asset, error)
	ReplaceLabels(ctx context.Context, assetID uuid.UUID, labelIDs []uuid.UUID) error
	DetachLabel(ctx context.Context, labelID uuid.UUID) (int64, error)
}
