package models

import "fmt"

type ColumnType string

const (
	ColumnTypeNumeric     ColumnType = "numeric"
	ColumnTypeCategorical ColumnType = "categorical"
	ColumnTypeDate        ColumnType = "date"
	ColumnTypeUnknown     ColumnType = "unknown"
)

// Column holds raw cell values. An empty string is a missing value.
type Column struct {
	Name   string     `json:"name"`
	Type   ColumnType `json:"type"`
	Values []string   `json:"-"`
}

// Dataset is an ordered set of equally sized, typed columns.
type Dataset struct {
	Columns []*Column
	index   map[string]int
}

// NewDataset builds a dataset from already typed columns. Types are never
// re-inferred after this point.
func NewDataset(columns []*Column) (*Dataset, error) {
	ds := &Dataset{
		Columns: columns,
		index:   make(map[string]int, len(columns)),
	}
	for i, col := range columns {
		if _, dup := ds.index[col.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", col.Name)
		}
		if i > 0 && len(col.Values) != len(columns[0].Values) {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, len(col.Values), len(columns[0].Values))
		}
		ds.index[col.Name] = i
	}
	return ds, nil
}

func (d *Dataset) Column(name string) (*Column, bool) {
	i, ok := d.index[name]
	if !ok {
		return nil, false
	}
	return d.Columns[i], true
}

func (d *Dataset) NumRows() int {
	if len(d.Columns) == 0 {
		return 0
	}
	return len(d.Columns[0].Values)
}

func (d *Dataset) ColumnNames() []string {
	names := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		names[i] = col.Name
	}
	return names
}

// RoleAssignment splits dataset columns into ordered features and one label.
type RoleAssignment struct {
	Features []string `json:"features"`
	Label    string   `json:"label"`
}

// Validate checks the assignment against the dataset's columns.
func (r RoleAssignment) Validate(ds *Dataset) error {
	if len(r.Features) == 0 {
		return fmt.Errorf("%w: no feature columns selected", ErrInvalidRoleAssignment)
	}
	if r.Label == "" {
		return fmt.Errorf("%w: no label column selected", ErrInvalidRoleAssignment)
	}

	seen := make(map[string]struct{}, len(r.Features))
	for _, f := range r.Features {
		if _, ok := ds.Column(f); !ok {
			return fmt.Errorf("%w: %q", ErrUnknownColumn, f)
		}
		if _, dup := seen[f]; dup {
			return fmt.Errorf("%w: feature %q selected twice", ErrInvalidRoleAssignment, f)
		}
		if f == r.Label {
			return fmt.Errorf("%w: label %q is also a feature", ErrInvalidRoleAssignment, f)
		}
		seen[f] = struct{}{}
	}
	if _, ok := ds.Column(r.Label); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownColumn, r.Label)
	}
	if len(r.Features) >= len(ds.Columns) {
		return fmt.Errorf("%w: every column selected as a feature", ErrInvalidRoleAssignment)
	}
	return nil
}
