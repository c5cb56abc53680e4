// Package prediction answers inference requests against stored artifacts.
package prediction

import (
	"context"
	"fmt"

	"github.com/blagoySimandov/trainer/internal/adapters"
	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/preprocess"
	"github.com/blagoySimandov/trainer/internal/state"
)

type Predictor struct {
	registry *adapters.Registry
	store    state.Store
}

func NewPredictor(registry *adapters.Registry, store state.Store) *Predictor {
	return &Predictor{registry: registry, store: store}
}

// Prepared is a request that passed every check that does not need the
// model to run.
type Prepared struct {
	Artifact *models.Artifact
	adapter  adapters.Adapter
	features map[string]any
}

// Prepare loads the artifact and validates ownership and the feature record.
func (p *Predictor) Prepare(ctx context.Context, name, requesterID string, features map[string]any) (*Prepared, error) {
	artifact, err := p.store.Load(ctx, name)
	if err != nil {
		return nil, err
	}
	if artifact.OwnerID != requesterID {
		return nil, fmt.Errorf("%w: model %q", models.ErrForbidden, name)
	}
	for _, f := range artifact.Spec.Features {
		if _, ok := features[f.Name]; !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrMissingFeature, f.Name)
		}
	}
	adapter, err := p.registry.Lookup(artifact.ModelType)
	if err != nil {
		return nil, err
	}
	return &Prepared{Artifact: artifact, adapter: adapter, features: features}, nil
}

// Execute encodes the record with the stored spec and runs the model. Params
// the adapter does not declare are dropped.
func (p *Predictor) Execute(prep *Prepared, params map[string]any) (*models.Prediction, error) {
	x, err := preprocess.Transform(prep.features, &prep.Artifact.Spec)
	if err != nil {
		return nil, err
	}
	out, err := prep.adapter.Predict(prep.Artifact.State, x, adapters.FilterPredictParams(prep.adapter, params))
	if err != nil {
		return nil, err
	}

	pred := &models.Prediction{ModelName: prep.Artifact.Name}
	if prep.Artifact.Spec.Label.Task == models.TaskClassification {
		class, err := preprocess.DecodeClass(out, &prep.Artifact.Spec.Label)
		if err != nil {
			return nil, err
		}
		pred.Class = &class
		return pred, nil
	}
	pred.Value = &out
	return pred, nil
}

func (p *Predictor) Predict(ctx context.Context, name, requesterID string, features, params map[string]any) (*models.Prediction, error) {
	prep, err := p.Prepare(ctx, name, requesterID, features)
	if err != nil {
		return nil, err
	}
	return p.Execute(prep, params)
}
