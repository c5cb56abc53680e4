package user

import (
	"context"
	"fmt"

	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/models"
)

type Service interface {
	GetOrCreate(ctx context.Context, userID, email string) (*models.User, error)
	AddTokens(ctx context.Context, userID string, amount int64) (int64, error)
	ListUsers(ctx context.Context, minTokens int64) ([]*models.User, error)
	DeleteUser(ctx context.Context, actorID, userID string) (int, error)
}

// ArtifactPurger removes every model a user owns.
type ArtifactPurger interface {
	DeleteByOwner(ctx context.Context, ownerID string) (int, error)
}

type UserService struct {
	ledger        Repository
	artifacts     ArtifactPurger
	initialTokens int64
}

func NewUserService(ledger Repository, artifacts ArtifactPurger, initialTokens int64) *UserService {
	return &UserService{
		ledger:        ledger,
		artifacts:     artifacts,
		initialTokens: initialTokens,
	}
}

func (s *UserService) ListUsers(ctx context.Context, minTokens int64) ([]*models.User, error) {
	return s.ledger.List(ctx, minTokens)
}

func (s *UserService) GetOrCreate(ctx context.Context, userID, email string) (*models.User, error) {
	return s.ledger.GetOrCreate(ctx, userID, email, s.initialTokens)
}

// AddTokens credits a user, creating the account first if it has never been
// seen.
func (s *UserService) AddTokens(ctx context.Context, userID string, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, fmt.Errorf("%w: token amount must be positive, got %d", models.ErrInvalidArgument, amount)
	}
	if _, err := s.ledger.GetOrCreate(ctx, userID, "", s.initialTokens); err != nil {
		return 0, err
	}
	balance, err := s.ledger.AdjustTokens(ctx, userID, amount)
	if err != nil {
		return 0, fmt.Errorf("failed to add tokens: %w", err)
	}
	logger.Log.Info("tokens added", "user_id", userID, "amount", amount, "balance", balance)
	return balance, nil
}

// DeleteUser removes userID and all of their models. Admins cannot remove
// themselves.
func (s *UserService) DeleteUser(ctx context.Context, actorID, userID string) (int, error) {
	if actorID == userID {
		return 0, fmt.Errorf("%w: you cannot delete your own account", models.ErrInvalidArgument)
	}
	if _, err := s.ledger.GetTokens(ctx, userID); err != nil {
		return 0, err
	}
	removed, err := s.artifacts.DeleteByOwner(ctx, userID)
	if err != nil {
		return removed, fmt.Errorf("failed to delete models: %w", err)
	}
	if err := s.ledger.Delete(ctx, userID); err != nil {
		return removed, err
	}
	logger.Log.Info("user deleted", "user_id", userID, "deleted_by", actorID, "models_removed", removed)
	return removed, nil
}
