package state

import (
	"context"

	"github.com/blagoySimandov/trainer/internal/models"
)

// Store persists trained artifacts. Save is all-or-nothing and never
// overwrites: a taken name fails with ErrAlreadyExists.
type Store interface {
	Save(ctx context.Context, artifact *models.Artifact) error
	Load(ctx context.Context, name string) (*models.Artifact, error)
	Delete(ctx context.Context, name string) error
	// List returns the owner's artifacts, newest first, without fitted state.
	List(ctx context.Context, ownerID string) ([]models.ArtifactMeta, error)
	// DeleteByOwner removes every artifact of ownerID and reports how many
	// were removed. Owning nothing is not an error.
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)

	Close() error
}
