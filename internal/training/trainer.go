// Package training turns a dataset and a model choice into a persisted,
// scored artifact.
package training

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/blagoySimandov/trainer/internal/adapters"
	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/preprocess"
	"github.com/blagoySimandov/trainer/internal/state"
)

const (
	maxModelNameLen = 64
	// ownerSeparator never survives sanitizing, so the last one in a name
	// always splits owner from model and names cannot collide across owners.
	ownerSeparator = "."
)

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type TrainRequest struct {
	OwnerID         string
	Dataset         *models.Dataset
	Roles           models.RoleAssignment
	ModelType       models.ModelType
	Hyperparameters map[string]any
	// SplitRatio is the share of rows used for fitting; the rest is scored.
	SplitRatio float64
	// Seed fixes the split permutation. Nil draws a fresh one.
	Seed      *int64
	ModelName string
}

type Trainer struct {
	registry *adapters.Registry
	store    state.Store
	now      func() time.Time
}

func NewTrainer(registry *adapters.Registry, store state.Store) *Trainer {
	return &Trainer{
		registry: registry,
		store:    store,
		now:      time.Now,
	}
}

// Train fits, scores and saves a model. Nothing is persisted unless every
// step succeeds.
func (t *Trainer) Train(ctx context.Context, req TrainRequest) (*models.Artifact, error) {
	if !(req.SplitRatio > 0 && req.SplitRatio < 1) {
		return nil, fmt.Errorf("%w: %v is not in (0, 1)", models.ErrInvalidSplitRatio, req.SplitRatio)
	}
	if req.Dataset == nil {
		return nil, fmt.Errorf("%w: no dataset", models.ErrInsufficientData)
	}

	adapter, err := t.registry.Lookup(req.ModelType)
	if err != nil {
		return nil, err
	}
	hp, err := adapter.ValidateHyperparameters(req.Hyperparameters)
	if err != nil {
		return nil, err
	}

	X, y, spec, err := preprocess.FitTransform(req.Dataset, req.Roles, adapter.Task())
	if err != nil {
		return nil, err
	}

	trainIdx, testIdx, err := Split(len(X), req.SplitRatio, req.Seed)
	if err != nil {
		return nil, err
	}
	XTrain, yTrain := gather(X, y, trainIdx)
	XTest, yTest := gather(X, y, testIdx)

	fitted, err := adapter.Fit(XTrain, yTrain, hp)
	if err != nil {
		return nil, fmt.Errorf("failed to fit %s model: %w", req.ModelType, err)
	}

	predicted := make([]float64, len(XTest))
	for i, row := range XTest {
		predicted[i], err = adapter.Predict(fitted, row, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to score %s model: %w", req.ModelType, err)
		}
	}
	metrics := adapters.Score(adapter.Task(), yTest, predicted)
	metrics.TrainRows = len(trainIdx)
	metrics.TestRows = len(testIdx)

	now := t.now().UTC()
	artifact := &models.Artifact{
		ArtifactMeta: models.ArtifactMeta{
			Name:            ModelName(req.OwnerID, req.ModelType, req.ModelName, now),
			OwnerID:         req.OwnerID,
			ModelType:       req.ModelType,
			Features:        spec.FeatureNames(),
			Label:           spec.Label.Name,
			Hyperparameters: hp,
			Metrics:         metrics,
			CreatedAt:       now,
		},
		Spec:  *spec,
		State: fitted,
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := t.store.Save(ctx, artifact); err != nil {
		return nil, err
	}

	logger.Log.Info("model trained",
		"model_name", artifact.Name,
		"model_type", artifact.ModelType,
		"user_id", artifact.OwnerID,
		"train_rows", metrics.TrainRows,
		"test_rows", metrics.TestRows,
		"r2_score", metrics.R2Score,
	)
	return artifact, nil
}

// Split picks floor(n*ratio) training rows with a seeded permutation. Both
// partitions keep the original row order and need at least 2 rows.
func Split(n int, ratio float64, seed *int64) ([]int, []int, error) {
	nTrain := int(float64(n) * ratio)
	nTest := n - nTrain
	if nTrain < 2 || nTest < 2 {
		return nil, nil, fmt.Errorf("%w: %d rows split %d/%d, each partition needs at least 2",
			models.ErrInsufficientData, n, nTrain, nTest)
	}

	var src rand.Source
	if seed != nil {
		src = rand.NewSource(*seed)
	} else {
		src = rand.NewSource(time.Now().UnixNano())
	}
	perm := rand.New(src).Perm(n)

	train := append([]int(nil), perm[:nTrain]...)
	test := append([]int(nil), perm[nTrain:]...)
	sort.Ints(train)
	sort.Ints(test)
	return train, test, nil
}

// ModelName derives the artifact name as {owner}.{model}. A requested name is
// sanitized; without one the model part is built from the type and a
// microsecond UTC timestamp.
func ModelName(ownerID string, modelType models.ModelType, requested string, now time.Time) string {
	name := invalidNameChars.ReplaceAllString(requested, "_")
	name = strings.Trim(name, "_")
	if len(name) > maxModelNameLen {
		name = strings.TrimRight(name[:maxModelNameLen], "_")
	}
	if name == "" {
		now = now.UTC()
		name = fmt.Sprintf("%s_%s%06d", modelType, now.Format("20060102150405"), now.Nanosecond()/1000)
	}
	return ownerID + ownerSeparator + name
}

func gather(X [][]float64, y []float64, idx []int) ([][]float64, []float64) {
	xs := make([][]float64, len(idx))
	ys := make([]float64, len(idx))
	for i, j := range idx {
		xs[i] = X[j]
		ys[i] = y[j]
	}
	return xs, ys
}
