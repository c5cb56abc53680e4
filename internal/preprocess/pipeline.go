// Package preprocess turns tabular data into numeric feature matrices. The
// same row encoder serves training and prediction so both paths produce
// identical vectors for identical input.
package preprocess

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/blagoySimandov/trainer/internal/models"
)

// Fit derives the transform spec for the selected features and label.
func Fit(ds *models.Dataset, roles models.RoleAssignment, task models.Task) (*models.TransformSpec, error) {
	if err := roles.Validate(ds); err != nil {
		return nil, err
	}
	if ds.NumRows() < 2 {
		return nil, fmt.Errorf("%w: dataset has %d rows, need at least 2", models.ErrInsufficientData, ds.NumRows())
	}

	spec := &models.TransformSpec{
		Features: make([]models.FeatureSpec, 0, len(roles.Features)),
	}
	for _, name := range roles.Features {
		col, _ := ds.Column(name)
		fs, err := fitFeature(col)
		if err != nil {
			return nil, err
		}
		spec.Features = append(spec.Features, fs)
	}

	labelCol, _ := ds.Column(roles.Label)
	label, err := fitLabel(labelCol, task)
	if err != nil {
		return nil, err
	}
	spec.Label = label
	return spec, nil
}

// FitTransform fits a spec on the dataset and encodes every row with it.
func FitTransform(ds *models.Dataset, roles models.RoleAssignment, task models.Task) ([][]float64, []float64, *models.TransformSpec, error) {
	spec, err := Fit(ds, roles, task)
	if err != nil {
		return nil, nil, nil, err
	}

	features := make([]*models.Column, len(spec.Features))
	for i, f := range spec.Features {
		features[i], _ = ds.Column(f.Name)
	}
	labelCol, _ := ds.Column(spec.Label.Name)

	n := ds.NumRows()
	width := spec.Width()
	X := make([][]float64, n)
	y := make([]float64, n)
	cells := make([]any, len(features))
	for row := 0; row < n; row++ {
		for i, col := range features {
			cells[i] = col.Values[row]
		}
		X[row] = make([]float64, width)
		if err := encodeCells(cells, spec, X[row]); err != nil {
			return nil, nil, nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		target, err := EncodeLabel(labelCol.Values[row], &spec.Label)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("row %d: %w", row+1, err)
		}
		y[row] = target
	}
	return X, y, spec, nil
}

// Transform encodes one prediction record with a frozen spec. Every spec
// feature must be present as a key; nil or empty values are imputed.
func Transform(record map[string]any, spec *models.TransformSpec) ([]float64, error) {
	cells := make([]any, len(spec.Features))
	for i, f := range spec.Features {
		v, ok := record[f.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", models.ErrMissingFeature, f.Name)
		}
		cells[i] = v
	}
	out := make([]float64, spec.Width())
	if err := encodeCells(cells, spec, out); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodeLabel converts a raw label cell into a regression target or a class
// index.
func EncodeLabel(raw string, label *models.LabelSpec) (float64, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0, fmt.Errorf("%w: label %q is missing", models.ErrInvalidFeatureValue, label.Name)
	}
	if label.Task == models.TaskClassification {
		i := sort.SearchStrings(label.Classes, v)
		if i == len(label.Classes) || label.Classes[i] != v {
			return 0, fmt.Errorf("%w: unknown class %q", models.ErrInvalidFeatureValue, v)
		}
		return float64(i), nil
	}
	f, err := parseNumber(v)
	if err != nil {
		return 0, fmt.Errorf("%w: label %q value %q is not numeric", models.ErrInvalidFeatureValue, label.Name, v)
	}
	return f, nil
}

// DecodeClass maps a predicted class index back to its label.
func DecodeClass(idx float64, label *models.LabelSpec) (string, error) {
	i := int(math.Round(idx))
	if i < 0 || i >= len(label.Classes) {
		return "", fmt.Errorf("class index %d out of range", i)
	}
	return label.Classes[i], nil
}

func fitFeature(col *models.Column) (models.FeatureSpec, error) {
	fs := models.FeatureSpec{Name: col.Name, Type: col.Type}

	switch col.Type {
	case models.ColumnTypeNumeric, models.ColumnTypeDate:
		sum, count := 0.0, 0
		for _, raw := range col.Values {
			if strings.TrimSpace(raw) == "" {
				continue
			}
			v, err := scalarValue(fs, raw)
			if err != nil {
				return fs, err
			}
			sum += v
			count++
		}
		if count > 0 {
			fs.Mean = sum / float64(count)
		}
	case models.ColumnTypeCategorical:
		seen := make(map[string]struct{})
		for _, raw := range col.Values {
			v := strings.TrimSpace(raw)
			if v == "" {
				continue
			}
			if _, ok := seen[v]; !ok {
				seen[v] = struct{}{}
				fs.Categories = append(fs.Categories, v)
			}
		}
		sort.Strings(fs.Categories)
	default:
		return fs, fmt.Errorf("%w: column %q has no usable values", models.ErrInvalidFeatureValue, col.Name)
	}
	return fs, nil
}

func fitLabel(col *models.Column, task models.Task) (models.LabelSpec, error) {
	label := models.LabelSpec{Name: col.Name, Task: task}
	if task != models.TaskClassification {
		return label, nil
	}

	seen := make(map[string]struct{})
	for _, raw := range col.Values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			seen[v] = struct{}{}
			label.Classes = append(label.Classes, v)
		}
	}
	sort.Strings(label.Classes)
	if len(label.Classes) < 2 {
		return label, fmt.Errorf("%w: label %q has %d distinct classes, need at least 2", models.ErrInsufficientData, col.Name, len(label.Classes))
	}
	return label, nil
}

// encodeCells writes the encoding of cells (aligned with spec.Features) into
// dst, which must be spec.Width() long.
func encodeCells(cells []any, spec *models.TransformSpec, dst []float64) error {
	offset := 0
	for i, f := range spec.Features {
		width := f.Width()
		block := dst[offset : offset+width]
		offset += width

		raw, missing, err := cellString(cells[i])
		if err != nil {
			return fmt.Errorf("%w: %q: %v", models.ErrInvalidFeatureValue, f.Name, err)
		}

		switch f.Type {
		case models.ColumnTypeCategorical:
			for j := range block {
				block[j] = 0
			}
			if missing {
				continue
			}
			if j := categoryIndex(f.Categories, raw, isNumeric(cells[i])); j >= 0 {
				block[j] = 1
			}
		default:
			if missing {
				block[0] = f.Mean
				continue
			}
			v, err := scalarValue(f, raw)
			if err != nil {
				return err
			}
			block[0] = v
		}
	}
	return nil
}

// categoryIndex finds raw in the sorted vocabulary. A JSON number has lost
// its original spelling, so it also matches the first category with the same
// numeric value ("1.0" for 1, "02134" for 2134).
func categoryIndex(categories []string, raw string, numeric bool) int {
	if j := sort.SearchStrings(categories, raw); j < len(categories) && categories[j] == raw {
		return j
	}
	if !numeric {
		return -1
	}
	want, err := parseNumber(raw)
	if err != nil {
		return -1
	}
	for j, c := range categories {
		if v, err := parseNumber(c); err == nil && v == want {
			return j
		}
	}
	return -1
}

func isNumeric(v any) bool {
	switch v.(type) {
	case float64, float32, int, int64, json.Number:
		return true
	}
	return false
}

func scalarValue(f models.FeatureSpec, raw string) (float64, error) {
	if f.Type == models.ColumnTypeDate {
		t, err := ParseDate(raw)
		if err == nil {
			return float64(t.Unix()), nil
		}
		// Prediction clients may send Unix seconds directly.
		if secs, numErr := parseNumber(raw); numErr == nil {
			return math.Trunc(secs), nil
		}
		return 0, fmt.Errorf("%w: %q: %v", models.ErrInvalidFeatureValue, f.Name, err)
	}
	v, err := parseNumber(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: value %q is not numeric", models.ErrInvalidFeatureValue, f.Name, raw)
	}
	return v, nil
}

// cellString normalizes a cell from either a CSV string or a decoded JSON
// value.
func cellString(v any) (string, bool, error) {
	switch val := v.(type) {
	case nil:
		return "", true, nil
	case string:
		s := strings.TrimSpace(val)
		return s, s == "", nil
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), false, nil
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32), false, nil
	case int:
		return strconv.Itoa(val), false, nil
	case int64:
		return strconv.FormatInt(val, 10), false, nil
	case json.Number:
		return val.String(), false, nil
	case bool:
		return strconv.FormatBool(val), false, nil
	default:
		return "", false, fmt.Errorf("unsupported value of type %T", v)
	}
}
