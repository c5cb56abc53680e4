package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/blagoySimandov/trainer/internal/models"
)

const uniqueViolation = "23505"

type PostgresStore struct {
	db *bun.DB
}

func NewPostgresStore(db *bun.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// InitializeDatabase creates the artifact table when migrations have not been
// run, which is the case for throwaway test databases.
func (s *PostgresStore) InitializeDatabase(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*models.ArtifactDB)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create ml_models table: %w", err)
	}

	_, err = s.db.NewCreateIndex().
		Model((*models.ArtifactDB)(nil)).
		Index("idx_ml_models_owner_user_id").
		Column("owner_user_id", "created_at").
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create owner index: %w", err)
	}

	return nil
}

func (s *PostgresStore) Save(ctx context.Context, artifact *models.Artifact) error {
	row := models.ArtifactFromDomain(artifact)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.NewInsert().Model(row).Exec(ctx)
	if err != nil {
		var pgErr pgdriver.Error
		if errors.As(err, &pgErr) && pgErr.Field('C') == uniqueViolation {
			return fmt.Errorf("%w: model %q", models.ErrAlreadyExists, artifact.Name)
		}
		return fmt.Errorf("failed to save model: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context, name string) (*models.Artifact, error) {
	row := new(models.ArtifactDB)
	err := s.db.NewSelect().
		Model(row).
		Where("model_name = ?", name).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load model: %w", err)
	}
	return row.ToArtifact(), nil
}

func (s *PostgresStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.NewDelete().
		Model((*models.ArtifactDB)(nil)).
		Where("model_name = ?", name).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, ownerID string) ([]models.ArtifactMeta, error) {
	var rows []models.ArtifactDB
	err := s.db.NewSelect().
		Model(&rows).
		ExcludeColumn("transform_spec", "fitted_state").
		Where("owner_user_id = ?", ownerID).
		Order("created_at DESC", "model_name ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	metas := make([]models.ArtifactMeta, len(rows))
	for i := range rows {
		metas[i] = rows[i].ToMeta()
	}
	return metas, nil
}

// DeleteByOwner removes all of the owner's rows in one statement.
func (s *PostgresStore) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	res, err := s.db.NewDelete().
		Model((*models.ArtifactDB)(nil)).
		Where("owner_user_id = ?", ownerID).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to delete models of %q: %w", ownerID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return int(n), nil
}

// Close is a no-op; the connection is shared with the ledger and closed by its
// owner.
func (s *PostgresStore) Close() error {
	return nil
}
