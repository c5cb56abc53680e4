package adapters

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"

	"github.com/blagoySimandov/trainer/internal/models"
)

// knnState keeps the training partition; prediction is a lookup over it.
type knnState struct {
	X         [][]float64 `json:"x"`
	Y         []float64   `json:"y"`
	Neighbors int         `json:"n_neighbors"`
	Weights   string      `json:"weights"`
}

type knnAdapter struct {
	schema
}

func newKNN() *knnAdapter {
	return &knnAdapter{schema{
		modelType: models.ModelTypeKNN,
		params: []paramSpec{
			{name: "n_neighbors", kind: kindInt, def: 5, check: atLeast(1)},
			{name: "weights", kind: kindString, def: "uniform", check: oneOf("uniform", "distance")},
		},
	}}
}

func (a *knnAdapter) Task() models.Task { return models.TaskRegression }

// n_neighbors may be overridden per prediction.
func (a *knnAdapter) PredictParams() []string { return []string{"n_neighbors"} }

func (a *knnAdapter) Fit(X [][]float64, y []float64, hp Hyperparameters) (json.RawMessage, error) {
	if _, err := checkShape(X, y); err != nil {
		return nil, err
	}
	k := hp.Int("n_neighbors")
	if k > len(X) {
		return nil, fmt.Errorf("%w: n_neighbors=%d exceeds %d training rows", models.ErrInvalidHyperparameter, k, len(X))
	}
	return json.Marshal(knnState{X: X, Y: y, Neighbors: k, Weights: hp.String("weights")})
}

func (a *knnAdapter) Predict(state json.RawMessage, x []float64, params map[string]any) (float64, error) {
	var st knnState
	if err := decodeState(state, &st); err != nil {
		return 0, err
	}
	k := st.Neighbors
	if raw, ok := params["n_neighbors"]; ok {
		v, err := toInt(raw)
		if err != nil || v < 1 {
			return 0, fmt.Errorf("%w: n_neighbors: %v", models.ErrInvalidHyperparameter, raw)
		}
		k = v
	}
	if k > len(st.X) {
		return 0, fmt.Errorf("%w: n_neighbors=%d exceeds %d training rows", models.ErrInvalidHyperparameter, k, len(st.X))
	}

	type neighbor struct {
		idx  int
		dist float64
	}
	all := make([]neighbor, len(st.X))
	for i, row := range st.X {
		if len(row) != len(x) {
			return 0, fmt.Errorf("feature vector has width %d, model expects %d", len(x), len(row))
		}
		all[i] = neighbor{idx: i, dist: euclidean(row, x)}
	}
	// Ties break on training order so results are reproducible.
	sort.SliceStable(all, func(i, j int) bool { return all[i].dist < all[j].dist })
	nearest := all[:k]

	if st.Weights == "distance" {
		exact, exactSum := 0, 0.0
		for _, n := range nearest {
			if n.dist == 0 {
				exact++
				exactSum += st.Y[n.idx]
			}
		}
		if exact > 0 {
			return exactSum / float64(exact), nil
		}
		num, den := 0.0, 0.0
		for _, n := range nearest {
			w := 1 / n.dist
			num += w * st.Y[n.idx]
			den += w
		}
		return num / den, nil
	}

	sum := 0.0
	for _, n := range nearest {
		sum += st.Y[n.idx]
	}
	return sum / float64(k), nil
}

func euclidean(a, b []float64) float64 {
	s := 0.0
	for i := range a {
		d := a[i] - b[i]
		s += d * d
	}
	return math.Sqrt(s)
}
