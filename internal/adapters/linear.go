package adapters

import (
	"encoding/json"
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/blagoySimandov/trainer/internal/models"
)

// ridge keeps the normal equations solvable when one-hot blocks are collinear
// with the intercept. It is scaled by the mean diagonal of XᵀX.
const ridge = 1e-8

type linearState struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
}

type linearAdapter struct {
	schema
}

func newLinear() *linearAdapter {
	return &linearAdapter{schema{
		modelType: models.ModelTypeLinear,
		params: []paramSpec{
			{name: "fit_intercept", kind: kindBool, def: true},
		},
	}}
}

func (a *linearAdapter) Task() models.Task { return models.TaskRegression }

func (a *linearAdapter) PredictParams() []string { return nil }

func (a *linearAdapter) Fit(X [][]float64, y []float64, hp Hyperparameters) (json.RawMessage, error) {
	p, err := checkShape(X, y)
	if err != nil {
		return nil, err
	}
	n := len(X)
	fitIntercept := hp.Bool("fit_intercept")

	xMean := make([]float64, p)
	yMean := 0.0
	if fitIntercept {
		for j := range xMean {
			xMean[j] = stat.Mean(column(X, j), nil)
		}
		yMean = stat.Mean(y, nil)
	}

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	// Normal equations on centered data: (XᵀX + λI) w = Xᵀy.
	A := mat.NewSymDense(p, nil)
	A.SymOuterK(1, xc.T())
	lambda := ridge
	if trace := mat.Trace(A); trace > 0 {
		lambda = ridge * trace / float64(p)
	}
	for j := 0; j < p; j++ {
		A.SetSym(j, j, A.At(j, j)+lambda)
	}
	var b mat.VecDense
	b.MulVec(xc.T(), yc)

	w, err := solveSPD(A, &b)
	if err != nil {
		return nil, err
	}

	st := linearState{Coefficients: w}
	if fitIntercept {
		st.Intercept = yMean - floats.Dot(w, xMean)
	}
	return json.Marshal(st)
}

func (a *linearAdapter) Predict(state json.RawMessage, x []float64, _ map[string]any) (float64, error) {
	var st linearState
	if err := decodeState(state, &st); err != nil {
		return 0, err
	}
	if len(x) != len(st.Coefficients) {
		return 0, fmt.Errorf("feature vector has width %d, model expects %d", len(x), len(st.Coefficients))
	}
	return dot(st.Coefficients, x) + st.Intercept, nil
}

func dot(a, b []float64) float64 {
	return floats.Dot(a, b)
}

func column(X [][]float64, j int) []float64 {
	out := make([]float64, len(X))
	for i, row := range X {
		out[i] = row[j]
	}
	return out
}

// solveSPD solves A·x = b for a symmetric positive definite A.
func solveSPD(A *mat.SymDense, b mat.Vector) ([]float64, error) {
	var chol mat.Cholesky
	if ok := chol.Factorize(A); !ok {
		return nil, errors.New("system is not positive definite")
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, b); err != nil {
		return nil, fmt.Errorf("failed to solve normal equations: %w", err)
	}
	return x.RawVector().Data, nil
}
