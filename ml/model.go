package ml

type MLModel interface {
	Train(ds Dataset) error
	PredictProba(observations []Observation) ([]float64, error)
	Predict(observations []Observation) ([]int, error)
	Save(path string) error
	Load(path string) error
}

var _ MLModel = (*Pipeline)(nil)
