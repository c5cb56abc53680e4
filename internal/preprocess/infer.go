package preprocess

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/blagoySimandov/trainer/internal/models"
)

var dateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"01/02/2006",
	"2006/01/02",
}

// InferColumnType classifies a column from its raw cells. It is pure and is
// applied once when a dataset is built.
func InferColumnType(values []string) models.ColumnType {
	numeric, date, present := true, true, 0
	for _, raw := range values {
		v := strings.TrimSpace(raw)
		if v == "" {
			continue
		}
		present++
		if numeric {
			if _, err := parseNumber(v); err != nil {
				numeric = false
			}
		}
		if date {
			if _, err := ParseDate(v); err != nil {
				date = false
			}
		}
		if !numeric && !date {
			return models.ColumnTypeCategorical
		}
	}

	switch {
	case present == 0:
		return models.ColumnTypeUnknown
	case numeric:
		return models.ColumnTypeNumeric
	case date:
		return models.ColumnTypeDate
	default:
		return models.ColumnTypeCategorical
	}
}

// ParseDate parses a date cell in any of the accepted layouts and returns it
// in UTC.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

func parseNumber(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("non-finite number %q", s)
	}
	return f, nil
}
