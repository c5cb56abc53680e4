package adapters

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/blagoySimandov/trainer/internal/logger"
	"github.com/blagoySimandov/trainer/internal/models"
)

// Hyperparameters holds validated values normalized to int, float64, bool or
// string. Values read back from JSON may hold float64 for integer params; the
// getters accept both.
type Hyperparameters map[string]any

func (h Hyperparameters) Int(name string) int {
	switch v := h[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	case int64:
		return int(v)
	}
	return 0
}

func (h Hyperparameters) Float(name string) float64 {
	switch v := h[name].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func (h Hyperparameters) Bool(name string) bool {
	b, _ := h[name].(bool)
	return b
}

func (h Hyperparameters) String(name string) string {
	s, _ := h[name].(string)
	return s
}

type paramKind string

const (
	kindInt    paramKind = "int"
	kindFloat  paramKind = "float"
	kindBool   paramKind = "bool"
	kindString paramKind = "str"
)

type paramSpec struct {
	name  string
	kind  paramKind
	def   any
	check func(v any) error
}

// ParamInfo describes one accepted hyperparameter for catalogue listings.
type ParamInfo struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Default any    `json:"default"`
}

// schema is shared by every adapter: it owns the defaults and the validation
// of user supplied values.
type schema struct {
	modelType models.ModelType
	params    []paramSpec
}

func (s schema) Type() models.ModelType { return s.modelType }

func (s schema) Params() []ParamInfo {
	out := make([]ParamInfo, len(s.params))
	for i, p := range s.params {
		out[i] = ParamInfo{Name: p.name, Type: string(p.kind), Default: p.def}
	}
	return out
}

func (s schema) DefaultHyperparameters() Hyperparameters {
	hp := make(Hyperparameters, len(s.params))
	for _, p := range s.params {
		hp[p.name] = p.def
	}
	return hp
}

// ValidateHyperparameters overlays raw onto the defaults. Unsupported keys are
// logged and dropped; bad values fail with ErrInvalidHyperparameter.
func (s schema) ValidateHyperparameters(raw map[string]any) (Hyperparameters, error) {
	hp := s.DefaultHyperparameters()

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		idx := slices.IndexFunc(s.params, func(p paramSpec) bool { return p.name == k })
		if idx < 0 {
			logger.Log.Warn("ignoring unsupported hyperparameter", "model_type", s.modelType, "key", k)
			continue
		}
		v, err := s.params[idx].coerce(raw[k])
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrInvalidHyperparameter, k, err)
		}
		hp[k] = v
	}
	return hp, nil
}

func (p paramSpec) coerce(raw any) (any, error) {
	var (
		v   any
		err error
	)
	switch p.kind {
	case kindInt:
		v, err = toInt(raw)
	case kindFloat:
		v, err = toFloat(raw)
	case kindBool:
		v, err = toBool(raw)
	case kindString:
		s, ok := raw.(string)
		if !ok {
			return nil, fmt.Errorf("expected string, got %T", raw)
		}
		v = s
	}
	if err != nil {
		return nil, err
	}
	if p.check != nil {
		if err := p.check(v); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func toInt(raw any) (int, error) {
	var f float64
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		f = v
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", v.String())
		}
		f = n
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("expected int, got %q", v)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("expected int, got %T", raw)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("expected int, got %v", f)
	}
	// float64(math.MaxInt) rounds up to 2^63, which no longer fits.
	if f >= float64(math.MaxInt) || f < float64(math.MinInt) {
		return 0, fmt.Errorf("integer %v out of range", f)
	}
	return int(f), nil
}

func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return 0, fmt.Errorf("expected finite float, got %v", v)
		}
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case json.Number:
		return v.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, fmt.Errorf("expected float, got %q", v)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("expected float, got %T", raw)
	}
}

func toBool(raw any) (bool, error) {
	switch v := raw.(type) {
	case bool:
		return v, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			return true, nil
		case "false", "0", "no":
			return false, nil
		}
		return false, fmt.Errorf("expected bool, got %q", v)
	default:
		return false, fmt.Errorf("expected bool, got %T", raw)
	}
}

func atLeast(min int) func(any) error {
	return func(v any) error {
		if n := v.(int); n < min {
			return fmt.Errorf("must be >= %d, got %d", min, n)
		}
		return nil
	}
}

func between(min, max int) func(any) error {
	return func(v any) error {
		if n := v.(int); n < min || n > max {
			return fmt.Errorf("must be in [%d, %d], got %d", min, max, n)
		}
		return nil
	}
}

func positive(v any) error {
	if f := v.(float64); f <= 0 {
		return fmt.Errorf("must be > 0, got %v", f)
	}
	return nil
}

func oneOf(allowed ...string) func(any) error {
	return func(v any) error {
		if !slices.Contains(allowed, v.(string)) {
			return fmt.Errorf("must be one of %s, got %q", strings.Join(allowed, ", "), v)
		}
		return nil
	}
}
