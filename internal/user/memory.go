package user

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/blagoySimandov/trainer/internal/models"
)

// MemoryLedger keeps balances in process. It backs tests and the memory store
// backend.
type MemoryLedger struct {
	mu    sync.Mutex
	users map[string]*models.User
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{users: make(map[string]*models.User)}
}

func (l *MemoryLedger) GetOrCreate(_ context.Context, userID, email string, initialTokens int64) (*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		now := time.Now()
		u = &models.User{ID: userID, Email: email, Tokens: initialTokens, CreatedAt: now, UpdatedAt: now}
		l.users[userID] = u
	}
	cp := *u
	return &cp, nil
}

func (l *MemoryLedger) GetTokens(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		return 0, fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	return u.Tokens, nil
}

func (l *MemoryLedger) AdjustTokens(_ context.Context, userID string, delta int64) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	u, ok := l.users[userID]
	if !ok {
		return 0, fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	if u.Tokens+delta < 0 {
		return 0, fmt.Errorf("%w: balance %d, requested %d", models.ErrInsufficientTokens, u.Tokens, -delta)
	}
	u.Tokens += delta
	u.UpdatedAt = time.Now()
	return u.Tokens, nil
}

func (l *MemoryLedger) List(_ context.Context, minTokens int64) ([]*models.User, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	users := []*models.User{}
	for _, u := range l.users {
		if u.Tokens >= minTokens {
			cp := *u
			users = append(users, &cp)
		}
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].Tokens != users[j].Tokens {
			return users[i].Tokens > users[j].Tokens
		}
		return users[i].ID < users[j].ID
	})
	return users, nil
}

func (l *MemoryLedger) Delete(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.users[userID]; !ok {
		return fmt.Errorf("%w: user %q", models.ErrNotFound, userID)
	}
	delete(l.users, userID)
	return nil
}
