package models

import (
	"encoding/json"
	"time"
)

type ModelType string

const (
	ModelTypeLinear       ModelType = "linear"
	ModelTypeKNN          ModelType = "knn"
	ModelTypeLogistic     ModelType = "logistic"
	ModelTypeRandomForest ModelType = "random_forest"
)

type Task string

const (
	TaskRegression     Task = "regression"
	TaskClassification Task = "classification"
)

// FeatureSpec is the frozen encoding rule for one feature column.
type FeatureSpec struct {
	Name string     `json:"name"`
	Type ColumnType `json:"type"`
	// Mean is the training mean for numeric and date columns, used to impute
	// missing values.
	Mean float64 `json:"mean,omitempty"`
	// Categories fixes the one-hot column order for categorical columns.
	Categories []string `json:"categories,omitempty"`
}

// Width is the number of matrix columns the feature expands to.
func (f FeatureSpec) Width() int {
	if f.Type == ColumnTypeCategorical {
		return len(f.Categories)
	}
	return 1
}

type LabelSpec struct {
	Name    string   `json:"name"`
	Task    Task     `json:"task"`
	Classes []string `json:"classes,omitempty"`
}

// TransformSpec is derived once from the training dataset and is the only
// input used to encode prediction records.
type TransformSpec struct {
	Features []FeatureSpec `json:"features"`
	Label    LabelSpec     `json:"label"`
}

func (s *TransformSpec) Width() int {
	w := 0
	for _, f := range s.Features {
		w += f.Width()
	}
	return w
}

func (s *TransformSpec) FeatureNames() []string {
	names := make([]string, len(s.Features))
	for i, f := range s.Features {
		names[i] = f.Name
	}
	return names
}

// Metrics is the score snapshot taken on the held-out partition. For
// classification models R2Score holds accuracy and both error fields hold the
// misclassification rate.
type Metrics struct {
	R2Score           float64  `json:"r2_score"`
	MeanSquaredError  float64  `json:"mean_squared_error"`
	MeanAbsoluteError float64  `json:"mean_absolute_error"`
	Accuracy          *float64 `json:"accuracy,omitempty"`
	TrainRows         int      `json:"train_rows"`
	TestRows          int      `json:"test_rows"`
}

// ArtifactMeta is what listings expose; it never carries fitted state.
type ArtifactMeta struct {
	Name            string         `json:"model_name"`
	OwnerID         string         `json:"owner_user_id"`
	ModelType       ModelType      `json:"model_type"`
	Features        []string       `json:"features"`
	Label           string         `json:"label"`
	Hyperparameters map[string]any `json:"hyperparameters"`
	Metrics         Metrics        `json:"metrics"`
	CreatedAt       time.Time      `json:"created_at"`
}

// Artifact is a trained model. It is immutable once saved.
type Artifact struct {
	ArtifactMeta
	Spec  TransformSpec   `json:"transform_spec"`
	State json.RawMessage `json:"fitted_state"`
}

// Prediction carries a scalar for regression models or a class label for
// classification models.
type Prediction struct {
	ModelName string   `json:"model_name"`
	Value     *float64 `json:"value,omitempty"`
	Class     *string  `json:"class,omitempty"`
}
