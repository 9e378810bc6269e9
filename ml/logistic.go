package ml

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const maxStepHalvings = 30

// LogisticRegression is an L2-regularised binary classifier. The objective
// is sum(logloss) + ||w||^2/(2C); the intercept is not penalised.
type LogisticRegression struct {
	C         float64   `json:"c"`
	MaxIter   int       `json:"max_iter"`
	Tol       float64   `json:"tol"`
	Coef      []float64 `json:"coef"`
	Intercept float64   `json:"intercept"`
	NIter     int       `json:"n_iter"`
	Converged bool      `json:"converged"`
}

func NewLogisticRegression(c float64, maxIter int) *LogisticRegression {
	return &LogisticRegression{C: c, MaxIter: maxIter, Tol: 1e-4}
}

// Fit runs damped Newton iterations from zero. It stops once the largest
// gradient component is below Tol, MaxIter is reached, or the line search
// finds no step that lowers the loss. Only the first counts as Converged.
func (lr *LogisticRegression) Fit(rows [][]float64, labels []int) error {
	if len(rows) == 0 || len(labels) == 0 {
		return errors.New("features or labels empty")
	}
	if len(rows) != len(labels) {
		return errors.New("features and labels size mismatch")
	}
	if lr.C <= 0 {
		return fmt.Errorf("C must be positive, got %g", lr.C)
	}
	if lr.MaxIter <= 0 {
		lr.MaxIter = 100
	}
	if lr.Tol <= 0 {
		lr.Tol = 1e-4
	}

	p := len(rows[0])
	x := mat.NewDense(len(rows), p+1, nil)
	y := make([]float64, len(labels))
	for i, row := range rows {
		if len(row) != p {
			return fmt.Errorf("row %d has %d columns, want %d", i, len(row), p)
		}
		for j, v := range row {
			x.Set(i, j, v)
		}
		x.Set(i, p, 1)
		y[i] = float64(labels[i])
	}

	lambda := 1 / lr.C
	theta := make([]float64, p+1)
	loss := objective(x, y, theta, lambda)
	lr.Converged = false
	lr.NIter = 0

	for iter := 0; iter < lr.MaxIter; iter++ {
		grad, hess := derivatives(x, y, theta, lambda)
		if floats.Norm(grad, math.Inf(1)) <= lr.Tol {
			lr.Converged = true
			break
		}
		lr.NIter = iter + 1

		var chol mat.Cholesky
		if ok := chol.Factorize(hess); !ok {
			for i := 0; i <= p; i++ {
				hess.SetSym(i, i, hess.At(i, i)+1e-8)
			}
			if ok := chol.Factorize(hess); !ok {
				return errors.New("hessian is not positive definite")
			}
		}
		var step mat.VecDense
		if err := chol.SolveVecTo(&step, mat.NewVecDense(p+1, grad)); err != nil {
			return fmt.Errorf("solve newton step: %w", err)
		}

		candidate := make([]float64, p+1)
		scale := 1.0
		improved := false
		for h := 0; h < maxStepHalvings; h++ {
			for i := range candidate {
				candidate[i] = theta[i] - scale*step.AtVec(i)
			}
			next := objective(x, y, candidate, lambda)
			if next <= loss {
				copy(theta, candidate)
				loss = next
				improved = true
				break
			}
			scale /= 2
		}
		// no descent direction left above Tol: stop, still unconverged
		if !improved {
			break
		}
	}

	lr.Coef = append([]float64(nil), theta[:p]...)
	lr.Intercept = theta[p]
	return nil
}

func (lr *LogisticRegression) DecisionFunction(row []float64) (float64, error) {
	if lr.Coef == nil {
		return 0, ErrNotFitted
	}
	if len(row) != len(lr.Coef) {
		return 0, fmt.Errorf("classifier: got %d columns, want %d", len(row), len(lr.Coef))
	}
	return floats.Dot(lr.Coef, row) + lr.Intercept, nil
}

func (lr *LogisticRegression) PredictProba(row []float64) (float64, error) {
	z, err := lr.DecisionFunction(row)
	if err != nil {
		return 0, err
	}
	return sigmoid(z), nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}

// logLoss1p computes log(1+exp(z)) without overflow.
func logLoss1p(z float64) float64 {
	if z > 0 {
		return z + math.Log1p(math.Exp(-z))
	}
	return math.Log1p(math.Exp(z))
}

func objective(x *mat.Dense, y, theta []float64, lambda float64) float64 {
	n, cols := x.Dims()
	var total float64
	for i := 0; i < n; i++ {
		z := floats.Dot(x.RawRowView(i), theta)
		total += logLoss1p(z) - y[i]*z
	}
	for j := 0; j < cols-1; j++ {
		total += 0.5 * lambda * theta[j] * theta[j]
	}
	return total
}

func derivatives(x *mat.Dense, y, theta []float64, lambda float64) ([]float64, *mat.SymDense) {
	n, cols := x.Dims()
	grad := make([]float64, cols)
	hess := mat.NewSymDense(cols, nil)
	for i := 0; i < n; i++ {
		row := x.RawRowView(i)
		p := sigmoid(floats.Dot(row, theta))
		floats.AddScaled(grad, p-y[i], row)
		w := p * (1 - p)
		for a := 0; a < cols; a++ {
			for b := a; b < cols; b++ {
				hess.SetSym(a, b, hess.At(a, b)+w*row[a]*row[b])
			}
		}
	}
	for j := 0; j < cols-1; j++ {
		grad[j] += lambda * theta[j]
		hess.SetSym(j, j, hess.At(j, j)+lambda)
	}
	return grad, hess
}
