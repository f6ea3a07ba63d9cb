package ml

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
)

// Scaler holds per-column standardization parameters fitted at training
// time. Immutable after load; safe for concurrent use.
type Scaler struct {
	Columns []string  `json:"columns"`
	Means   []float64 `json:"means"`
	Scales  []float64 `json:"scales"`
}

// FitScaler computes per-column mean and standard deviation over the raw
// training vectors. A constant column has no usable scale and is rejected.
func FitScaler(columns []string, rows [][]float64) (*Scaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows to fit scaler on")
	}
	for _, row := range rows {
		if len(row) != len(columns) {
			return nil, fmt.Errorf("row width %d does not match %d columns", len(row), len(columns))
		}
	}

	n := float64(len(rows))
	means := make([]float64, len(columns))
	scales := make([]float64, len(columns))
	for col := range columns {
		sum := 0.0
		for _, row := range rows {
			sum += row[col]
		}
		means[col] = sum / n
	}
	for col, name := range columns {
		variance := 0.0
		for _, row := range rows {
			diff := row[col] - means[col]
			variance += diff * diff
		}
		scales[col] = math.Sqrt(variance / n)
		if scales[col] == 0 || math.IsNaN(scales[col]) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("column %s is constant, scale would be zero", name)}
		}
	}

	cols := append([]string(nil), columns...)
	return &Scaler{Columns: cols, Means: means, Scales: scales}, nil
}

// Transform standardizes a raw vector: (value - mean) / scale per column.
func (s *Scaler) Transform(values []float64) ([]float64, error) {
	if len(values) != len(s.Columns) {
		return nil, &ValidationError{Reason: fmt.Sprintf("expected %d values, got %d", len(s.Columns), len(values))}
	}
	scaled := make([]float64, len(values))
	for i := range values {
		if s.Scales[i] == 0 || math.IsNaN(s.Scales[i]) {
			return nil, &ConfigurationError{Reason: fmt.Sprintf("column %s has degenerate scale", s.Columns[i])}
		}
		scaled[i] = (values[i] - s.Means[i]) / s.Scales[i]
	}
	return scaled, nil
}

// Save writes the fitted parameters as JSON.
func (s *Scaler) Save(path string) error {
	if len(s.Columns) == 0 {
		return errors.New("scaler not fitted")
	}
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o600)
}

// LoadScaler reads fitted parameters from a JSON file.
func LoadScaler(path string) (*Scaler, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var scaler Scaler
	if err := json.Unmarshal(payload, &scaler); err != nil {
		return nil, err
	}
	if len(scaler.Columns) == 0 ||
		len(scaler.Means) != len(scaler.Columns) ||
		len(scaler.Scales) != len(scaler.Columns) {
		return nil, errors.New("scaler parameters incomplete")
	}
	return &scaler, nil
}
