// Package adapters implements the supported model families behind one
// interface so orchestrators never branch on a model type.
package adapters

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/blagoySimandov/trainer/internal/models"
)

type Adapter interface {
	Type() models.ModelType
	Task() models.Task
	Params() []ParamInfo
	DefaultHyperparameters() Hyperparameters
	ValidateHyperparameters(raw map[string]any) (Hyperparameters, error)
	// Fit returns the serialized fitted state. y holds class indices for
	// classification adapters.
	Fit(X [][]float64, y []float64, hp Hyperparameters) (json.RawMessage, error)
	// Predict returns a scalar or a class index. params carries only the keys
	// listed by PredictParams.
	Predict(state json.RawMessage, x []float64, params map[string]any) (float64, error)
	PredictParams() []string
}

// Registry is populated once at construction and never mutated afterwards.
type Registry struct {
	adapters map[models.ModelType]Adapter
}

func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[models.ModelType]Adapter)}
	for _, a := range []Adapter{
		newLinear(),
		newKNN(),
		newLogistic(),
		newRandomForest(),
	} {
		r.adapters[a.Type()] = a
	}
	return r
}

func (r *Registry) Lookup(t models.ModelType) (Adapter, error) {
	a, ok := r.adapters[t]
	if !ok {
		return nil, fmt.Errorf("%w: %q", models.ErrUnknownModelType, t)
	}
	return a, nil
}

// List returns the registered adapters ordered by type name.
func (r *Registry) List() []Adapter {
	out := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type() < out[j].Type() })
	return out
}

// FilterPredictParams keeps only the keys the adapter consumes at prediction
// time.
func FilterPredictParams(a Adapter, params map[string]any) map[string]any {
	out := make(map[string]any)
	for _, k := range a.PredictParams() {
		if v, ok := params[k]; ok {
			out[k] = v
		}
	}
	return out
}

func checkShape(X [][]float64, y []float64) (int, error) {
	if len(X) == 0 || len(X) != len(y) {
		return 0, fmt.Errorf("%w: %d rows with %d targets", models.ErrInsufficientData, len(X), len(y))
	}
	width := len(X[0])
	for i, row := range X {
		if len(row) != width {
			return 0, fmt.Errorf("row %d has width %d, expected %d", i, len(row), width)
		}
	}
	return width, nil
}

func decodeState(state json.RawMessage, v any) error {
	if err := json.Unmarshal(state, v); err != nil {
		return fmt.Errorf("failed to decode fitted state: %w", err)
	}
	return nil
}
