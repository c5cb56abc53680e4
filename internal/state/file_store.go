package state

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/models"
)

const artifactExt = ".json"

// FileStore keeps one JSON document per artifact in a directory.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create artifact dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Owner ids may contain path separators, so file names are encoded.
func (s *FileStore) path(name string) string {
	return filepath.Join(s.dir, base64.RawURLEncoding.EncodeToString([]byte(name))+artifactExt)
}

// Save writes a temp file and links it into place. The link fails if the
// name exists, so a concurrent writer can never overwrite an artifact and a
// reader never sees a partial file.
func (s *FileStore) Save(_ context.Context, artifact *models.Artifact) error {
	cp := *artifact
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(&cp)
	if err != nil {
		return fmt.Errorf("failed to encode model: %w", err)
	}

	tmp := filepath.Join(s.dir, ".tmp-"+uuid.NewString())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write model: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, s.path(artifact.Name)); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: model %q", models.ErrAlreadyExists, artifact.Name)
		}
		return fmt.Errorf("failed to commit model: %w", err)
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, name string) (*models.Artifact, error) {
	data, err := os.ReadFile(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read model: %w", err)
	}
	var a models.Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("failed to decode model %q: %w", name, err)
	}
	return &a, nil
}

func (s *FileStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	if err != nil {
		return fmt.Errorf("failed to delete model: %w", err)
	}
	return nil
}

func (s *FileStore) List(ctx context.Context, ownerID string) ([]models.ArtifactMeta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	metas := []models.ArtifactMeta{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), artifactExt) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		raw, err := base64.RawURLEncoding.DecodeString(strings.TrimSuffix(e.Name(), artifactExt))
		if err != nil {
			continue
		}
		a, err := s.Load(ctx, string(raw))
		if err != nil {
			// Deleted between ReadDir and Load.
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			logger.Log.Warn("skipping unreadable model file", "file", e.Name(), "error", err)
			continue
		}
		if a.OwnerID == ownerID {
			metas = append(metas, a.ArtifactMeta)
		}
	}
	sortMetas(metas)
	return metas, nil
}

// DeleteByOwner removes the owner's files one by one. Artifacts are
// independent documents, so a failure part way leaves whole artifacts only.
func (s *FileStore) DeleteByOwner(ctx context.Context, ownerID string) (int, error) {
	metas, err := s.List(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, m := range metas {
		if err := s.Delete(ctx, m.Name); err != nil {
			if errors.Is(err, models.ErrNotFound) {
				continue
			}
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *FileStore) Close() error { return nil }

func sortMetas(metas []models.ArtifactMeta) {
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].Name < metas[j].Name
	})
}
