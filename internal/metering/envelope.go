// Package metering charges tokens around training and prediction.
//
// Every metered call runs reserve, execute, then commit or refund. A
// reservation is one conditional decrement, so two callers can never both
// spend the last token.
package metering

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/logging"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/prediction"
	"github.com/blagoySimandov/trainer/internal/state"
	"github.com/blagoySimandov/trainer/internal/training"
	"github.com/blagoySimandov/trainer/internal/user"
)

const (
	DefaultTrainCost   int64 = 1
	DefaultPredictCost int64 = 5
)

type Costs struct {
	Train   int64
	Predict int64
}

type Trainer interface {
	Train(ctx context.Context, req training.TrainRequest) (*models.Artifact, error)
}

type Predictor interface {
	Prepare(ctx context.Context, name, requesterID string, features map[string]any) (*prediction.Prepared, error)
	Execute(prep *prediction.Prepared, params map[string]any) (*models.Prediction, error)
}

type Envelope struct {
	ledger    user.Ledger
	trainer   Trainer
	predictor Predictor
	store     state.Store
	costs     Costs
}

func NewEnvelope(ledger user.Ledger, trainer Trainer, predictor Predictor, store state.Store, costs Costs) *Envelope {
	return &Envelope{
		ledger:    ledger,
		trainer:   trainer,
		predictor: predictor,
		store:     store,
		costs:     costs,
	}
}

// Train charges the training cost and refunds it if training fails for any
// reason.
func (e *Envelope) Train(ctx context.Context, req training.TrainRequest) (*models.Artifact, error) {
	start := time.Now()
	logging.EnrichModel(ctx, "", string(req.ModelType))

	if err := e.reserve(ctx, req.OwnerID, e.costs.Train); err != nil {
		return nil, err
	}

	artifact, err := e.train(ctx, req)
	if err != nil {
		if refundErr := e.refund(ctx, req.OwnerID, e.costs.Train); refundErr != nil {
			err = errors.Join(err, refundErr)
		}
		logger.Log.Warn("training failed",
			"user_id", req.OwnerID,
			"model_type", req.ModelType,
			"error_kind", models.ErrorKind(err),
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	logging.EnrichModel(ctx, artifact.Name, string(artifact.ModelType))
	return artifact, nil
}

// train turns a panic inside the trainer into an error so the caller's
// tokens are still refunded.
func (e *Envelope) train(ctx context.Context, req training.TrainRequest) (artifact *models.Artifact, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Error("training panicked", "user_id", req.OwnerID, "model_type", req.ModelType, "panic", r)
			artifact, err = nil, fmt.Errorf("training %s model panicked: %v", req.ModelType, r)
		}
	}()
	return e.trainer.Train(ctx, req)
}

// Predict validates the request before charging, so a missing model or
// feature costs nothing. Once charged the tokens are kept even if the model
// fails.
func (e *Envelope) Predict(ctx context.Context, name, requesterID string, features, params map[string]any) (*models.Prediction, error) {
	logging.EnrichModel(ctx, name, "")

	prep, err := e.predictor.Prepare(ctx, name, requesterID, features)
	if err != nil {
		return nil, conceal(err, name)
	}
	logging.EnrichModel(ctx, name, string(prep.Artifact.ModelType))

	if err := e.reserve(ctx, requesterID, e.costs.Predict); err != nil {
		return nil, err
	}
	return e.predictor.Execute(prep, params)
}

func (e *Envelope) ListModels(ctx context.Context, ownerID string) ([]models.ArtifactMeta, error) {
	return e.store.List(ctx, ownerID)
}

// DeleteModel removes an artifact owned by requesterID. Models owned by
// someone else are reported as missing.
func (e *Envelope) DeleteModel(ctx context.Context, name, requesterID string) error {
	logging.EnrichModel(ctx, name, "")

	artifact, err := e.store.Load(ctx, name)
	if err != nil {
		return err
	}
	if artifact.OwnerID != requesterID {
		return conceal(fmt.Errorf("%w: model %q", models.ErrForbidden, name), name)
	}
	if err := e.store.Delete(ctx, name); err != nil {
		return err
	}
	logger.Log.Info("model deleted", "model_name", name, "user_id", requesterID)
	return nil
}

func (e *Envelope) Balance(ctx context.Context, userID string) (int64, error) {
	return e.ledger.GetTokens(ctx, userID)
}

func (e *Envelope) reserve(ctx context.Context, userID string, cost int64) error {
	if cost <= 0 {
		return nil
	}
	if _, err := e.ledger.AdjustTokens(ctx, userID, -cost); err != nil {
		return err
	}
	logging.EnrichTokensCharged(ctx, cost)
	return nil
}

func (e *Envelope) refund(ctx context.Context, userID string, cost int64) error {
	if cost <= 0 {
		return nil
	}
	// The caller may have gone away; the refund must still land.
	if _, err := e.ledger.AdjustTokens(context.WithoutCancel(ctx), userID, cost); err != nil {
		logger.Log.Error("failed to refund tokens", "user_id", userID, "amount", cost, "error", err)
		return fmt.Errorf("failed to refund %d tokens: %w", cost, err)
	}
	logging.EnrichTokensRefunded(ctx, cost)
	return nil
}

// conceal hides the existence of other users' models.
func conceal(err error, name string) error {
	if errors.Is(err, models.ErrForbidden) {
		return fmt.Errorf("%w: model %q", models.ErrNotFound, name)
	}
	return err
}
