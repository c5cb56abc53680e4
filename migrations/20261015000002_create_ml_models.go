package migrations

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/blagoySimandov/trainer/internal/models"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewCreateTable().
			Model((*models.ArtifactDB)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create ml_models: %w", err)
		}
		_, err = db.NewCreateIndex().
			Model((*models.ArtifactDB)(nil)).
			Index("idx_ml_models_owner_user_id").
			Column("owner_user_id", "created_at").
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create owner index: %w", err)
		}
		return nil
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*models.ArtifactDB)(nil)).
			IfExists().
			Exec(ctx)
		return err
	})
}
