package ml

import (
	"errors"
	"fmt"
)

const (
	FamHistAbsent  = "Absent"
	FamHistPresent = "Present"
)

// Observation is one patient record as fed to the pipeline.
type Observation struct {
	SBP       float64 `json:"sbp"`
	LDL       float64 `json:"ldl"`
	Adiposity float64 `json:"adiposity"`
	Obesity   float64 `json:"obesity"`
	Age       int     `json:"age"`
	FamHist   string  `json:"famhist"`
}

// Dataset is a labelled table of observations. Labels are 0 (no CHD) or 1.
type Dataset struct {
	Observations []Observation
	Labels       []int
}

func (d Dataset) Len() int {
	return len(d.Observations)
}

func (d Dataset) Validate() error {
	if len(d.Observations) == 0 {
		return errors.New("dataset is empty")
	}
	if len(d.Observations) != len(d.Labels) {
		return fmt.Errorf("observations and labels size mismatch: %d != %d", len(d.Observations), len(d.Labels))
	}
	for i, label := range d.Labels {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}

func (d Dataset) PositiveRate() float64 {
	if len(d.Labels) == 0 {
		return 0
	}
	var positives int
	for _, label := range d.Labels {
		positives += label
	}
	return float64(positives) / float64(len(d.Labels))
}

func NumericFeatures() []string {
	return []string{"sbp", "ldl", "adiposity", "obesity", "age"}
}

func CategoricalFeatures() []string {
	return []string{"famhist"}
}

func (o Observation) NumericVector() []float64 {
	return []float64{
		o.SBP,
		o.LDL,
		o.Adiposity,
		o.Obesity,
		float64(o.Age),
	}
}

// Field describes how the form constrains one input.
type Field struct {
	Name    string
	Min     float64
	Max     float64
	Step    float64
	Default float64
	Integer bool
}

var fields = []Field{
	{Name: "age", Min: 10, Max: 100, Step: 1, Default: 50, Integer: true},
	{Name: "sbp", Min: 80, Max: 250, Step: 0.1, Default: 140},
	{Name: "ldl", Min: 0, Max: 15, Step: 0.01, Default: 4},
	{Name: "adiposity", Min: 0, Max: 60, Step: 0.1, Default: 25},
	{Name: "obesity", Min: 10, Max: 60, Step: 0.1, Default: 26},
}

// Fields returns the numeric form fields in display order.
func Fields() []Field {
	out := make([]Field, len(fields))
	copy(out, fields)
	return out
}

// DefaultObservation is the form's initial state.
func DefaultObservation() Observation {
	return Observation{
		SBP:       140,
		LDL:       4,
		Adiposity: 25,
		Obesity:   26,
		Age:       50,
		FamHist:   FamHistAbsent,
	}
}

// Validate checks the ranges the form enforces. The pipeline itself never
// calls it.
func (o Observation) Validate() error {
	values := map[string]float64{
		"age":       float64(o.Age),
		"sbp":       o.SBP,
		"ldl":       o.LDL,
		"adiposity": o.Adiposity,
		"obesity":   o.Obesity,
	}
	for _, f := range fields {
		v := values[f.Name]
		if !(v >= f.Min && v <= f.Max) {
			return &FieldError{Field: f.Name, Value: v, Min: f.Min, Max: f.Max}
		}
	}
	if o.FamHist != FamHistAbsent && o.FamHist != FamHistPresent {
		return &FieldError{Field: "famhist", Category: o.FamHist}
	}
	return nil
}

// FieldError reports an out-of-range or unknown form value.
type FieldError struct {
	Field    string
	Value    float64
	Min      float64
	Max      float64
	Category string
}

func (e *FieldError) Error() string {
	if e.Field == "famhist" {
		return fmt.Sprintf("famhist must be %s or %s, got %q", FamHistAbsent, FamHistPresent, e.Category)
	}
	return fmt.Sprintf("%s must be between %g and %g, got %g", e.Field, e.Min, e.Max, e.Value)
}
