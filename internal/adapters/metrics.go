package adapters

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/blagoySimandov/trainer/internal/models"
)

// Score evaluates predictions against the held-out targets. Classification
// scores report accuracy as R2Score and the misclassification rate as both
// error fields.
func Score(task models.Task, actual, predicted []float64) models.Metrics {
	n := float64(len(actual))
	if task == models.TaskClassification {
		correct := 0.0
		for i := range actual {
			if math.Round(predicted[i]) == actual[i] {
				correct++
			}
		}
		acc := correct / n
		return models.Metrics{
			R2Score:           acc,
			MeanSquaredError:  1 - acc,
			MeanAbsoluteError: 1 - acc,
			Accuracy:          &acc,
		}
	}

	residuals := floats.SubTo(make([]float64, len(actual)), actual, predicted)
	ssRes := floats.Dot(residuals, residuals)

	// A constant target has no variance to explain.
	var r2 float64
	switch {
	case stat.Variance(actual, nil) > 0:
		r2 = stat.RSquaredFrom(predicted, actual, nil)
	case ssRes == 0:
		r2 = 1
	}
	return models.Metrics{
		R2Score:           r2,
		MeanSquaredError:  ssRes / n,
		MeanAbsoluteError: floats.Norm(residuals, 1) / n,
	}
}
