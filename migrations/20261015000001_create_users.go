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
			Model((*models.UserDB)(nil)).
			IfNotExists().
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("create users: %w", err)
		}
		_, err = db.ExecContext(ctx, `ALTER TABLE users ADD CONSTRAINT users_tokens_non_negative CHECK (tokens >= 0)`)
		return err
	}, func(ctx context.Context, db *bun.DB) error {
		_, err := db.NewDropTable().
			Model((*models.UserDB)(nil)).
			IfExists().
			Exec(ctx)
		return err
	})
}
