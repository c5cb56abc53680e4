package models

import "errors"

// Failure kinds surfaced by the training and prediction core. Callers match
// them with errors.Is; the wrapped message carries the detail.
var (
	ErrUnknownColumn         = errors.New("unknown column")
	ErrInsufficientData      = errors.New("insufficient data")
	ErrInvalidFeatureValue   = errors.New("invalid feature value")
	ErrUnknownModelType      = errors.New("unknown model type")
	ErrInvalidHyperparameter = errors.New("invalid hyperparameter")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrMissingFeature        = errors.New("missing feature")
	ErrInsufficientTokens    = errors.New("insufficient tokens")

	ErrInvalidRoleAssignment = errors.New("invalid role assignment")
	ErrInvalidSplitRatio     = errors.New("invalid split ratio")
	ErrAlreadyExists         = errors.New("already exists")
	ErrInvalidDataset        = errors.New("invalid dataset")
	ErrInvalidArgument       = errors.New("invalid argument")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrUnknownColumn, "unknown_column"},
	{ErrInsufficientData, "insufficient_data"},
	{ErrInvalidFeatureValue, "invalid_feature_value"},
	{ErrUnknownModelType, "unknown_model_type"},
	{ErrInvalidHyperparameter, "invalid_hyperparameter"},
	{ErrNotFound, "not_found"},
	{ErrForbidden, "forbidden"},
	{ErrMissingFeature, "missing_feature"},
	{ErrInsufficientTokens, "insufficient_tokens"},
	{ErrInvalidRoleAssignment, "invalid_role_assignment"},
	{ErrInvalidSplitRatio, "invalid_split_ratio"},
	{ErrAlreadyExists, "already_exists"},
	{ErrInvalidDataset, "invalid_dataset"},
	{ErrInvalidArgument, "invalid_argument"},
}

// ErrorKind names the taxonomy kind of err, or "internal" when it matches
// none.
func ErrorKind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "internal"
}
