package ml

import (
	"errors"
	"fmt"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// StandardScaler centers each column and divides by its population
// standard deviation.
type StandardScaler struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

func (s *StandardScaler) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("scaler: no rows")
	}
	width := len(rows[0])
	s.Mean = make([]float64, width)
	s.Scale = make([]float64, width)
	column := make([]float64, len(rows))
	for j := 0; j < width; j++ {
		for i, row := range rows {
			if len(row) != width {
				return fmt.Errorf("scaler: row %d has %d columns, want %d", i, len(row), width)
			}
			column[i] = row[j]
		}
		mean, std := stat.PopMeanStdDev(column, nil)
		if std == 0 {
			std = 1
		}
		s.Mean[j] = mean
		s.Scale[j] = std
	}
	return nil
}

func (s *StandardScaler) Transform(row []float64) ([]float64, error) {
	if len(s.Mean) == 0 {
		return nil, ErrNotFitted
	}
	if len(row) != len(s.Mean) {
		return nil, fmt.Errorf("scaler: got %d columns, want %d", len(row), len(s.Mean))
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return out, nil
}

// OneHotEncoder encodes a single categorical column. Categories are learned
// sorted; with DropFirst the first level is the implicit baseline.
type OneHotEncoder struct {
	Categories []string `json:"categories"`
	DropFirst  bool     `json:"drop_first"`
}

func (e *OneHotEncoder) Fit(values []string) error {
	if len(values) == 0 {
		return errors.New("encoder: no values")
	}
	seen := make(map[string]struct{})
	categories := make([]string, 0, 2)
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		categories = append(categories, v)
	}
	sort.Strings(categories)
	e.Categories = categories
	return nil
}

func (e *OneHotEncoder) Width() int {
	if e.DropFirst && len(e.Categories) > 0 {
		return len(e.Categories) - 1
	}
	return len(e.Categories)
}

func (e *OneHotEncoder) Transform(value string) ([]float64, error) {
	if len(e.Categories) == 0 {
		return nil, ErrNotFitted
	}
	idx := -1
	for i, c := range e.Categories {
		if c == value {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, fmt.Errorf("%w %q", ErrUnknownCategory, value)
	}
	out := make([]float64, e.Width())
	if e.DropFirst {
		idx--
	}
	if idx >= 0 {
		out[idx] = 1
	}
	return out, nil
}

func (e *OneHotEncoder) OutputNames(feature string) []string {
	start := 0
	if e.DropFirst {
		start = 1
	}
	names := make([]string, 0, e.Width())
	for _, c := range e.Categories[start:] {
		names = append(names, feature+"_"+c)
	}
	return names
}

// Preprocessor scales the numeric columns and one-hot encodes famhist,
// producing numeric features followed by encoded columns.
type Preprocessor struct {
	Scaler  StandardScaler `json:"scaler"`
	Encoder OneHotEncoder  `json:"encoder"`
}

func NewPreprocessor() *Preprocessor {
	return &Preprocessor{Encoder: OneHotEncoder{DropFirst: true}}
}

func (p *Preprocessor) Fit(observations []Observation) error {
	if len(observations) == 0 {
		return errors.New("observations is empty")
	}
	rows := make([][]float64, len(observations))
	categories := make([]string, len(observations))
	for i, o := range observations {
		rows[i] = o.NumericVector()
		categories[i] = o.FamHist
	}
	if err := p.Scaler.Fit(rows); err != nil {
		return err
	}
	return p.Encoder.Fit(categories)
}

func (p *Preprocessor) Transform(o Observation) ([]float64, error) {
	scaled, err := p.Scaler.Transform(o.NumericVector())
	if err != nil {
		return nil, err
	}
	encoded, err := p.Encoder.Transform(o.FamHist)
	if err != nil {
		return nil, err
	}
	return append(scaled, encoded...), nil
}

func (p *Preprocessor) TransformAll(observations []Observation) ([][]float64, error) {
	if len(observations) == 0 {
		return nil, errors.New("observations is empty")
	}
	vectors := make([][]float64, len(observations))
	for i, o := range observations {
		v, err := p.Transform(o)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		vectors[i] = v
	}
	return vectors, nil
}

func (p *Preprocessor) OutputNames() []string {
	return append(NumericFeatures(), p.Encoder.OutputNames(CategoricalFeatures()[0])...)
}

// FeatureStats returns mean and scale per numeric feature.
func (p *Preprocessor) FeatureStats() map[string][2]float64 {
	if len(p.Scaler.Mean) == 0 {
		return nil
	}
	names := NumericFeatures()
	stats := make(map[string][2]float64, len(names))
	for i, name := range names {
		stats[name] = [2]float64{p.Scaler.Mean[i], p.Scaler.Scale[i]}
	}
	return stats
}
