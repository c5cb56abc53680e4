package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/blagoySimandov/trainer/internal/models"
)

// Ledger owns token balances. AdjustTokens is the only way a balance changes and it
// never lets one go negative, however many callers race on the same user.
type Ledger interface {
	GetOrCreate(ctx context.Context, userID, email string, initialTokens int64) (*models.User, error)
	GetTokens(ctx context.Context, userID string) (int64, error)
	// AdjustTokens adds delta (negative to charge) and returns the new balance. A
	// charge larger than the balance fails with ErrInsufficientTokens and
	// changes nothing.
	AdjustTokens(ctx context.Context, userID string, delta int64) (int64, error)
}

// Repository is a Ledger that can also enumerate and remove accounts for
// admins.
type Repository interface {
	Ledger
	List(ctx context.Context, minTokens int64) ([]*models.User, error)
	Delete(ctx context.Context, userID string) error
}

type UserRepository struct {
	db *bun.DB
}

func NewUserRepository(db *bun.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, userID string) (*models.User, error) {
	userDB := new(models.UserDB)
	err := r.db.NewSelect().
		Model(userDB).
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return userDB.ToUser(), nil
}

func (r *UserRepository) GetOrCreate(ctx context.Context, userID, email string, initialTokens int64) (*models.User, error) {
	now := time.Now()
	userDB := models.UserFromDomain(&models.User{
		ID:        userID,
		Email:     email,
		Tokens:    initialTokens,
		CreatedAt: now,
		UpdatedAt: now,
	})
	// Concurrent first requests for one user must grant the initial tokens
	// once.
	_, err := r.db.NewInsert().
		Model(userDB).
		On("CONFLICT (user_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return r.GetByID(ctx, userID)
}

// List returns users holding at least minTokens, richest first.
func (r *UserRepository) List(ctx context.Context, minTokens int64) ([]*models.User, error) {
	var rows []models.UserDB
	err := r.db.NewSelect().
		Model(&rows).
		Where("tokens >= ?", minTokens).
		Order("tokens DESC", "user_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	users := make([]*models.User, len(rows))
	for i := range rows {
		users[i] = rows[i].ToUser()
	}
	return users, nil
}

func (r *UserRepository) GetTokens(ctx context.Context, userID string) (int64, error) {
	userDB := new(models.UserDB)
	err := r.db.NewSelect().
		Model(userDB).
		Column("tokens").
		Where("user_id = ?", userID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get balance: %w", err)
	}
	return userDB.Tokens, nil
}

func (r *UserRepository) AdjustTokens(ctx context.Context, userID string, delta int64) (int64, error) {
	var balance int64
	err := r.db.NewUpdate().
		Model((*models.UserDB)(nil)).
		Set("tokens = tokens + ?", delta).
		Set("updated_at = ?", time.Now()).
		Where("user_id = ?", userID).
		Where("tokens + ? >= 0", delta).
		Returning("tokens").
		Scan(ctx, &balance)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to adjust tokens: %w", err)
	}

	// No row matched: either the user is missing or the guard rejected it.
	current, err := r.GetTokens(ctx, userID)
	if err != nil {
		return 0, err
	}
	return 0, fmt.Errorf("%w: balance %d, requested %d", models.ErrInsufficientTokens, current, -delta)
}

func (r *UserRepository) Delete(ctx context.Context, userID string) error {
	res, err := r.db.NewDelete().
		Model((*models.UserDB)(nil)).
		Where("user_id = ?", userID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	return nil
}
