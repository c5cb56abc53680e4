package adapters

import (
	"encoding/json"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"

	"github.com/blagoySimandov/trainer/internal/models"
)

const maxLogisticIter = 10000

type logisticState struct {
	// One weight vector per class for one-vs-rest, or a single vector scoring
	// class 1 when there are two classes.
	Weights    [][]float64 `json:"weights"`
	Intercepts []float64   `json:"intercepts"`
	NumClasses int         `json:"num_classes"`
}

type logisticAdapter struct {
	schema
}

func newLogistic() *logisticAdapter {
	return &logisticAdapter{schema{
		modelType: models.ModelTypeLogistic,
		params: []paramSpec{
			{name: "C", kind: kindFloat, def: 1.0, check: positive},
			{name: "max_iter", kind: kindInt, def: 100, check: between(1, maxLogisticIter)},
			{name: "solver", kind: kindString, def: "lbfgs", check: oneOf("lbfgs", "newton-cg", "liblinear", "sag", "saga")},
		},
	}}
}

func (a *logisticAdapter) Task() models.Task { return models.TaskClassification }

// threshold applies to two-class models only.
func (a *logisticAdapter) PredictParams() []string { return []string{"threshold"} }

func (a *logisticAdapter) Fit(X [][]float64, y []float64, hp Hyperparameters) (json.RawMessage, error) {
	if _, err := checkShape(X, y); err != nil {
		return nil, err
	}
	k := 0
	for _, v := range y {
		if int(v)+1 > k {
			k = int(v) + 1
		}
	}
	if k < 2 {
		return nil, fmt.Errorf("%w: need at least 2 classes", models.ErrInsufficientData)
	}

	C := hp.Float("C")
	maxIter := hp.Int("max_iter")
	st := logisticState{NumClasses: k}

	targets := []int{1}
	if k > 2 {
		targets = make([]int, k)
		for c := range targets {
			targets[c] = c
		}
	}
	for _, class := range targets {
		t := make([]float64, len(y))
		for i, v := range y {
			if int(v) == class {
				t[i] = 1
			}
		}
		w, b, err := fitBinaryLogistic(X, t, C, maxIter)
		if err != nil {
			return nil, err
		}
		st.Weights = append(st.Weights, w)
		st.Intercepts = append(st.Intercepts, b)
	}
	return json.Marshal(st)
}

func (a *logisticAdapter) Predict(state json.RawMessage, x []float64, params map[string]any) (float64, error) {
	var st logisticState
	if err := decodeState(state, &st); err != nil {
		return 0, err
	}
	if len(st.Weights) == 0 || len(st.Weights[0]) != len(x) {
		return 0, fmt.Errorf("feature vector has width %d, model does not match", len(x))
	}
	if st.NumClasses == 2 {
		threshold := 0.5
		if raw, ok := params["threshold"]; ok {
			v, err := toFloat(raw)
			if err != nil || v <= 0 || v >= 1 {
				return 0, fmt.Errorf("%w: threshold must be in (0, 1), got %v", models.ErrInvalidHyperparameter, raw)
			}
			threshold = v
		}
		if sigmoid(dot(st.Weights[0], x)+st.Intercepts[0]) >= threshold {
			return 1, nil
		}
		return 0, nil
	}
	best, bestScore := 0, math.Inf(-1)
	for c, w := range st.Weights {
		if s := dot(w, x) + st.Intercepts[c]; s > bestScore {
			best, bestScore = c, s
		}
	}
	return float64(best), nil
}

// fitBinaryLogistic minimizes C·Σlogloss + ½‖w‖² with Newton steps. The
// intercept is not penalized.
func fitBinaryLogistic(X [][]float64, t []float64, C float64, maxIter int) ([]float64, float64, error) {
	n, p := len(X), len(X[0])
	dim := p + 1 // last slot is the intercept

	design := mat.NewDense(n, dim, nil)
	for i, row := range X {
		design.SetRow(i, append(append(make([]float64, 0, dim), row...), 1))
	}

	theta := mat.NewVecDense(dim, nil)
	var z mat.VecDense
	residual := mat.NewVecDense(n, nil)
	weighted := mat.NewDense(n, dim, nil)
	H := mat.NewSymDense(dim, nil)
	var grad mat.VecDense

	for iter := 0; iter < maxIter; iter++ {
		z.MulVec(design, theta)
		for i := 0; i < n; i++ {
			prob := sigmoid(z.AtVec(i))
			residual.SetVec(i, C*(prob-t[i]))
			s := math.Sqrt(C * prob * (1 - prob))
			for j := 0; j < dim; j++ {
				weighted.Set(i, j, s*design.At(i, j))
			}
		}

		// grad = Xᵀr + w, H = XᵀSX + I (intercept slot nearly unpenalized).
		grad.MulVec(design.T(), residual)
		H.SymOuterK(1, weighted.T())
		for j := 0; j < dim; j++ {
			if j < p {
				grad.SetVec(j, grad.AtVec(j)+theta.AtVec(j))
				H.SetSym(j, j, H.At(j, j)+1)
			} else {
				H.SetSym(j, j, H.At(j, j)+1e-10)
			}
		}

		step, err := solveSPD(H, &grad)
		if err != nil {
			return nil, 0, fmt.Errorf("logistic regression did not converge: %w", err)
		}
		floats.Sub(theta.RawVector().Data, step)
		if floats.Norm(step, 2) < 1e-8 {
			break
		}
	}
	coef := theta.RawVector().Data
	return append([]float64(nil), coef[:p]...), coef[p], nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
