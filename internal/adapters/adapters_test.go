package adapters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blagoySimandov/trainer/internal/models"
)

func linearData(n int) ([][]float64, []float64) {
	X := make([][]float64, n)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		a, b := float64(i), float64((i*7)%13)
		X[i] = []float64{a, b}
		y[i] = 2*a + 3*b + 5
	}
	return X, y
}

func TestRegistryLookup(t *testing.T) {
	r := NewRegistry()

	for _, mt := range []models.ModelType{
		models.ModelTypeLinear,
		models.ModelTypeKNN,
		models.ModelTypeLogistic,
		models.ModelTypeRandomForest,
	} {
		a, err := r.Lookup(mt)
		require.NoError(t, err)
		assert.Equal(t, mt, a.Type())
	}

	_, err := r.Lookup("svm")
	assert.ErrorIs(t, err, models.ErrUnknownModelType)

	types := make([]models.ModelType, 0)
	for _, a := range r.List() {
		types = append(types, a.Type())
	}
	assert.Equal(t, []models.ModelType{"knn", "linear", "logistic", "random_forest"}, types)
}

func TestValidateHyperparameters(t *testing.T) {
	r := NewRegistry()
	knn, _ := r.Lookup(models.ModelTypeKNN)

	t.Run("defaults", func(t *testing.T) {
		hp, err := knn.ValidateHyperparameters(nil)
		require.NoError(t, err)
		assert.Equal(t, 5, hp.Int("n_neighbors"))
		assert.Equal(t, "uniform", hp.String("weights"))
	})

	t.Run("unknown keys are dropped", func(t *testing.T) {
		hp, err := knn.ValidateHyperparameters(map[string]any{"n_neighbors": 3.0, "bogus": 1})
		require.NoError(t, err)
		assert.Equal(t, 3, hp.Int("n_neighbors"))
		assert.NotContains(t, hp, "bogus")
	})

	tests := []struct {
		name string
		mt   models.ModelType
		raw  map[string]any
	}{
		{"negative neighbors", models.ModelTypeKNN, map[string]any{"n_neighbors": -1}},
		{"fractional neighbors", models.ModelTypeKNN, map[string]any{"n_neighbors": 2.5}},
		{"unknown weights", models.ModelTypeKNN, map[string]any{"weights": "cosine"}},
		{"zero C", models.ModelTypeLogistic, map[string]any{"C": 0}},
		{"unknown solver", models.ModelTypeLogistic, map[string]any{"solver": "adam"}},
		{"string for bool", models.ModelTypeLinear, map[string]any{"fit_intercept": "maybe"}},
		{"zero trees", models.ModelTypeRandomForest, map[string]any{"n_estimators": 0}},
		{"too many trees", models.ModelTypeRandomForest, map[string]any{"n_estimators": 1e12}},
		{"trees overflow int", models.ModelTypeRandomForest, map[string]any{"n_estimators": 1e19}},
		{"trees as huge string", models.ModelTypeRandomForest, map[string]any{"n_estimators": "99999999999999999999"}},
		{"too deep", models.ModelTypeRandomForest, map[string]any{"max_depth": 1000}},
		{"too many iterations", models.ModelTypeLogistic, map[string]any{"max_iter": 1e9}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := r.Lookup(tt.mt)
			require.NoError(t, err)
			_, err = a.ValidateHyperparameters(tt.raw)
			assert.ErrorIs(t, err, models.ErrInvalidHyperparameter)
		})
	}
}

func TestToIntRange(t *testing.T) {
	tests := []struct {
		raw  any
		want int
		ok   bool
	}{
		{raw: 3.0, want: 3, ok: true},
		{raw: -4.0, want: -4, ok: true},
		{raw: float64(math.MinInt), want: math.MinInt, ok: true},
		{raw: float64(math.MaxInt), ok: false},
		{raw: 1e19, ok: false},
		{raw: -1e19, ok: false},
		{raw: math.Inf(1), ok: false},
	}
	for _, tt := range tests {
		got, err := toInt(tt.raw)
		if !tt.ok {
			assert.Error(t, err, "%v", tt.raw)
			continue
		}
		require.NoError(t, err, "%v", tt.raw)
		assert.Equal(t, tt.want, got)
	}
}

func TestForestBounds(t *testing.T) {
	a := newRandomForest()
	hp, err := a.ValidateHyperparameters(map[string]any{"n_estimators": maxEstimators, "max_depth": maxTreeDepth})
	require.NoError(t, err)
	assert.Equal(t, maxEstimators, hp.Int("n_estimators"))

	_, err = a.ValidateHyperparameters(map[string]any{"n_estimators": maxEstimators + 1})
	assert.ErrorIs(t, err, models.ErrInvalidHyperparameter)
}

func TestLinearRecoversCoefficients(t *testing.T) {
	a := newLinear()
	X, y := linearData(50)

	state, err := a.Fit(X, y, a.DefaultHyperparameters())
	require.NoError(t, err)

	got, err := a.Predict(state, []float64{10, 4}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 2*10+3*4+5, got, 1e-4)
}

func TestLinearWithoutIntercept(t *testing.T) {
	a := newLinear()
	X := [][]float64{{1}, {2}, {3}, {4}}
	y := []float64{2, 4, 6, 8}

	hp, err := a.ValidateHyperparameters(map[string]any{"fit_intercept": false})
	require.NoError(t, err)
	state, err := a.Fit(X, y, hp)
	require.NoError(t, err)

	got, err := a.Predict(state, []float64{10}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 20, got, 1e-4)
}

func TestLinearCollinearOneHot(t *testing.T) {
	a := newLinear()
	// Two one-hot columns always sum to one, matching the intercept.
	X := [][]float64{{1, 0}, {0, 1}, {1, 0}, {0, 1}}
	y := []float64{1, 3, 1, 3}

	state, err := a.Fit(X, y, a.DefaultHyperparameters())
	require.NoError(t, err)

	got, err := a.Predict(state, []float64{0, 1}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3, got, 1e-3)
}

func TestKNN(t *testing.T) {
	a := newKNN()
	X := [][]float64{{0}, {1}, {2}, {10}}
	y := []float64{0, 1, 2, 10}

	hp, err := a.ValidateHyperparameters(map[string]any{"n_neighbors": 2})
	require.NoError(t, err)
	state, err := a.Fit(X, y, hp)
	require.NoError(t, err)

	got, err := a.Predict(state, []float64{0.4}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 0.5, got, 1e-9)

	got, err = a.Predict(state, []float64{0.4}, map[string]any{"n_neighbors": 1.0})
	require.NoError(t, err)
	assert.InDelta(t, 0, got, 1e-9)

	_, err = a.Predict(state, []float64{0.4}, map[string]any{"n_neighbors": 9})
	assert.ErrorIs(t, err, models.ErrInvalidHyperparameter)

	_, err = a.Fit(X, y, Hyperparameters{"n_neighbors": 5, "weights": "uniform"})
	assert.ErrorIs(t, err, models.ErrInvalidHyperparameter)
}

func TestKNNDistanceWeights(t *testing.T) {
	a := newKNN()
	X := [][]float64{{0}, {3}}
	y := []float64{0, 3}

	state, err := a.Fit(X, y, Hyperparameters{"n_neighbors": 2, "weights": "distance"})
	require.NoError(t, err)

	got, err := a.Predict(state, []float64{1}, nil)
	require.NoError(t, err)
	// weights 1 and 1/2
	assert.InDelta(t, 1.0, got, 1e-9)

	got, err = a.Predict(state, []float64{3}, nil)
	require.NoError(t, err)
	assert.InDelta(t, 3.0, got, 1e-9)
}

func TestLogisticBinary(t *testing.T) {
	a := newLogistic()
	var X [][]float64
	var y []float64
	for i := 0; i < 40; i++ {
		v := float64(i) / 4
		X = append(X, []float64{v})
		if v >= 5 {
			y = append(y, 1)
		} else {
			y = append(y, 0)
		}
	}

	state, err := a.Fit(X, y, a.DefaultHyperparameters())
	require.NoError(t, err)

	low, err := a.Predict(state, []float64{0.5}, nil)
	require.NoError(t, err)
	high, err := a.Predict(state, []float64{9.5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 0.0, low)
	assert.Equal(t, 1.0, high)

	edge, err := a.Predict(state, []float64{5}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, edge)
	strict, err := a.Predict(state, []float64{5}, map[string]any{"threshold": 0.99})
	require.NoError(t, err)
	assert.Equal(t, 0.0, strict)

	_, err = a.Predict(state, []float64{9.5}, map[string]any{"threshold": 1.5})
	assert.ErrorIs(t, err, models.ErrInvalidHyperparameter)
}

func TestLogisticMulticlass(t *testing.T) {
	a := newLogistic()
	var X [][]float64
	var y []float64
	centers := [][]float64{{0, 0}, {10, 0}, {0, 10}}
	for c, center := range centers {
		for i := 0; i < 10; i++ {
			dx := float64(i%3) - 1
			dy := float64(i%2) - 0.5
			X = append(X, []float64{center[0] + dx, center[1] + dy})
			y = append(y, float64(c))
		}
	}

	state, err := a.Fit(X, y, a.DefaultHyperparameters())
	require.NoError(t, err)

	for c, center := range centers {
		got, err := a.Predict(state, center, nil)
		require.NoError(t, err)
		assert.Equal(t, float64(c), got)
	}
}

func TestRandomForest(t *testing.T) {
	a := newRandomForest()
	X, y := linearData(60)

	hp, err := a.ValidateHyperparameters(map[string]any{"n_estimators": 20})
	require.NoError(t, err)

	first, err := a.Fit(X, y, hp)
	require.NoError(t, err)
	second, err := a.Fit(X, y, hp)
	require.NoError(t, err)
	assert.JSONEq(t, string(first), string(second), "same random_state must grow the same forest")

	got, err := a.Predict(first, X[30], nil)
	require.NoError(t, err)
	assert.InDelta(t, y[30], got, 25)

	_, err = a.Predict(first, []float64{1}, nil)
	assert.Error(t, err)
}

func TestRandomForestMaxDepth(t *testing.T) {
	a := newRandomForest()
	X, y := linearData(30)

	state, err := a.Fit(X, y, Hyperparameters{
		"n_estimators":      1,
		"max_depth":         1,
		"min_samples_split": 2,
		"min_samples_leaf":  1,
		"random_state":      7,
	})
	require.NoError(t, err)

	var st forestState
	require.NoError(t, decodeState(state, &st))
	require.Len(t, st.Trees, 1)
	assert.LessOrEqual(t, len(st.Trees[0]), 3)
}

func TestScore(t *testing.T) {
	m := Score(models.TaskRegression, []float64{1, 2, 3}, []float64{1, 2, 3})
	assert.Equal(t, 1.0, m.R2Score)
	assert.Equal(t, 0.0, m.MeanSquaredError)

	m = Score(models.TaskRegression, []float64{1, 2, 3}, []float64{2, 2, 2})
	assert.InDelta(t, 0, m.R2Score, 1e-12)
	assert.InDelta(t, 2.0/3, m.MeanSquaredError, 1e-12)
	assert.InDelta(t, 2.0/3, m.MeanAbsoluteError, 1e-12)
	assert.Nil(t, m.Accuracy)

	m = Score(models.TaskClassification, []float64{0, 1, 1, 0}, []float64{0, 1, 0, 0})
	require.NotNil(t, m.Accuracy)
	assert.Equal(t, 0.75, *m.Accuracy)
	assert.Equal(t, 0.75, m.R2Score)
	assert.False(t, math.IsNaN(m.MeanSquaredError))
	assert.InDelta(t, 0.25, m.MeanSquaredError, 1e-12)
}

func TestFilterPredictParams(t *testing.T) {
	r := NewRegistry()
	knn, _ := r.Lookup(models.ModelTypeKNN)
	lin, _ := r.Lookup(models.ModelTypeLinear)

	params := map[string]any{"n_neighbors": 3, "threshold": 0.2}
	assert.Equal(t, map[string]any{"n_neighbors": 3}, FilterPredictParams(knn, params))
	assert.Empty(t, FilterPredictParams(lin, params))

	logit, _ := r.Lookup(models.ModelTypeLogistic)
	assert.Equal(t, map[string]any{"threshold": 0.2}, FilterPredictParams(logit, params))
}
