package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// PCA projects centered rows onto the leading principal axes.
type PCA struct {
	NComponents            int         `json:"n_components"`
	Mean                   []float64   `json:"mean"`
	Components             [][]float64 `json:"components"`
	ExplainedVariance      []float64   `json:"explained_variance"`
	ExplainedVarianceRatio []float64   `json:"explained_variance_ratio"`
}

func NewPCA(nComponents int) *PCA {
	return &PCA{NComponents: nComponents}
}

func (p *PCA) Fit(rows [][]float64) error {
	if len(rows) == 0 {
		return errors.New("pca: no rows")
	}
	n, d := len(rows), len(rows[0])
	if p.NComponents <= 0 {
		return errors.New("pca: n_components must be positive")
	}
	if p.NComponents > d || p.NComponents > n {
		return fmt.Errorf("pca: n_components=%d must be <= min(n_samples=%d, n_features=%d)", p.NComponents, n, d)
	}

	data := mat.NewDense(n, d, nil)
	for i, row := range rows {
		if len(row) != d {
			return fmt.Errorf("pca: row %d has %d columns, want %d", i, len(row), d)
		}
		data.SetRow(i, row)
	}

	var pc stat.PC
	if ok := pc.PrincipalComponents(data, nil); !ok {
		return errors.New("pca: decomposition failed")
	}
	var vectors mat.Dense
	pc.VectorsTo(&vectors)
	variances := pc.VarsTo(nil)

	p.Mean = make([]float64, d)
	for j := 0; j < d; j++ {
		p.Mean[j] = stat.Mean(mat.Col(nil, j, data), nil)
	}

	total := floats.Sum(variances)
	p.Components = make([][]float64, p.NComponents)
	p.ExplainedVariance = make([]float64, p.NComponents)
	p.ExplainedVarianceRatio = make([]float64, p.NComponents)
	for k := 0; k < p.NComponents; k++ {
		axis := mat.Col(nil, k, &vectors)
		flipSign(axis)
		p.Components[k] = axis
		p.ExplainedVariance[k] = variances[k]
		if total > 0 {
			p.ExplainedVarianceRatio[k] = variances[k] / total
		}
	}
	return nil
}

func (p *PCA) Transform(row []float64) ([]float64, error) {
	if len(p.Components) == 0 {
		return nil, ErrNotFitted
	}
	if len(row) != len(p.Mean) {
		return nil, fmt.Errorf("pca: got %d columns, want %d", len(row), len(p.Mean))
	}
	centered := make([]float64, len(row))
	floats.SubTo(centered, row, p.Mean)
	out := make([]float64, len(p.Components))
	for k, axis := range p.Components {
		out[k] = floats.Dot(centered, axis)
	}
	return out, nil
}

// flipSign makes the largest absolute loading positive so the decomposition
// is stable across runs.
func flipSign(axis []float64) {
	best := 0
	for i, v := range axis {
		if math.Abs(v) > math.Abs(axis[best]) {
			best = i
		}
	}
	if axis[best] < 0 {
		floats.Scale(-1, axis)
	}
}
