// Package labels persists the label collection of one tenant partition.
package labels

import (
	"context"

	"github.com/google/uuid"

	"github.com/dkravets/assetvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, label *models.Label) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Label, error)
	List(ctx context.Context) ([]*models.Label, error)
	Delete(ctx context.Context, id uuid.UUID) error
}
