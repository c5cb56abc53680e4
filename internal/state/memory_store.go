package state

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/blagoySimandov/trainer/internal/models"
)

type MemoryStore struct {
	mu        sync.RWMutex
	artifacts map[string]*models.Artifact
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{artifacts: make(map[string]*models.Artifact)}
}

func (s *MemoryStore) Save(_ context.Context, artifact *models.Artifact) error {
	cp := *artifact
	cp.State = append([]byte(nil), artifact.State...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[cp.Name]; ok {
		return fmt.Errorf("%w: model %q", models.ErrAlreadyExists, cp.Name)
	}
	s.artifacts[cp.Name] = &cp
	return nil
}

func (s *MemoryStore) Load(_ context.Context, name string) (*models.Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.artifacts[name]
	if !ok {
		return nil, fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.artifacts[name]; !ok {
		return fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	delete(s.artifacts, name)
	return nil
}

func (s *MemoryStore) List(_ context.Context, ownerID string) ([]models.ArtifactMeta, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	metas := []models.ArtifactMeta{}
	for _, a := range s.artifacts {
		if a.OwnerID == ownerID {
			metas = append(metas, a.ArtifactMeta)
		}
	}
	sortMetas(metas)
	return metas, nil
}

func (s *MemoryStore) DeleteByOwner(_ context.Context, ownerID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for name, a := range s.artifacts {
		if a.OwnerID == ownerID {
			delete(s.artifacts, name)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Close() error { return nil }
