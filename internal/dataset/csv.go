// Package dataset loads uploaded tables into typed datasets.
package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/blagoySimandov/trainer/internal/models"
	"github.com/blagoySimandov/trainer/internal/preprocess"
)

type CSVResult struct {
	Headers []string
	Rows    [][]string
}

// ReadCSV parses a header row followed by data rows. Every row must have as
// many fields as the header.
func ReadCSV(r io.Reader) (*CSVResult, error) {
	csvReader := csv.NewReader(r)
	csvReader.TrimLeadingSpace = true

	headers, err := csvReader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty file", models.ErrInvalidDataset)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read CSV headers: %v", models.ErrInvalidDataset, err)
	}
	for i, h := range headers {
		h = strings.TrimSpace(h)
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		if h == "" {
			return nil, fmt.Errorf("%w: column %d has an empty header", models.ErrInvalidDataset, i+1)
		}
		headers[i] = h
	}

	var rows [][]string
	for {
		row, err := csvReader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read CSV row: %v", models.ErrInvalidDataset, err)
		}
		rows = append(rows, row)
	}

	return &CSVResult{
		Headers: headers,
		Rows:    rows,
	}, nil
}

// ExtractColumn returns the cells of one named column.
func (res *CSVResult) ExtractColumn(columnName string) ([]string, error) {
	columnIndex := -1
	for i, header := range res.Headers {
		if header == columnName {
			columnIndex = i
			break
		}
	}
	if columnIndex == -1 {
		return nil, fmt.Errorf("%w: %q not in CSV headers %v", models.ErrUnknownColumn, columnName, res.Headers)
	}

	values := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		values = append(values, row[columnIndex])
	}
	return values, nil
}

// Dataset types every column once and returns the typed dataset.
func (res *CSVResult) Dataset() (*models.Dataset, error) {
	columns := make([]*models.Column, 0, len(res.Headers))
	for _, name := range res.Headers {
		values, err := res.ExtractColumn(name)
		if err != nil {
			return nil, err
		}
		columns = append(columns, &models.Column{
			Name:   name,
			Type:   preprocess.InferColumnType(values),
			Values: values,
		})
	}
	ds, err := models.NewDataset(columns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidDataset, err)
	}
	return ds, nil
}

// Load reads a CSV stream straight into a typed dataset.
func Load(r io.Reader) (*models.Dataset, error) {
	res, err := ReadCSV(r)
	if err != nil {
		return nil, err
	}
	return res.Dataset()
}
