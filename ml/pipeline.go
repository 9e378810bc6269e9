package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	ArtifactFormat  = "chdrisk.pipeline"
	ArtifactVersion = 1

	ModelTypePCALogistic = "pca_logistic"

	DefaultComponents = 3
	DefaultC          = 1.0
	DefaultMaxIter    = 1000
)

type PipelineConfig struct {
	Components int
	C          float64
	MaxIter    int
	Seed       int64
}

func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Components: DefaultComponents,
		C:          DefaultC,
		MaxIter:    DefaultMaxIter,
		Seed:       42,
	}
}

// TrainingInfo is stored in the artifact. It carries no wall-clock time so
// that the same seed always serializes to the same bytes.
type TrainingInfo struct {
	Samples      int     `json:"samples"`
	Seed         int64   `json:"seed"`
	PositiveRate float64 `json:"positive_rate"`
	Source       string  `json:"source"`
}

// Pipeline chains preprocessing, PCA and logistic regression into a single
// fit/predict unit.
type Pipeline struct {
	Format              string              `json:"format"`
	Version             int                 `json:"version"`
	ModelType           string              `json:"model_type"`
	NumericFeatures     []string            `json:"numeric_features"`
	CategoricalFeatures []string            `json:"categorical_features"`
	Preprocessor        *Preprocessor       `json:"preprocessor"`
	PCA                 *PCA                `json:"pca"`
	Classifier          *LogisticRegression `json:"classifier"`
	Training            TrainingInfo        `json:"training"`
}

func NewPipeline(cfg PipelineConfig) *Pipeline {
	if cfg.Components <= 0 {
		cfg.Components = DefaultComponents
	}
	if cfg.C <= 0 {
		cfg.C = DefaultC
	}
	if cfg.MaxIter <= 0 {
		cfg.MaxIter = DefaultMaxIter
	}
	return &Pipeline{
		Format:              ArtifactFormat,
		Version:             ArtifactVersion,
		ModelType:           ModelTypePCALogistic,
		NumericFeatures:     NumericFeatures(),
		CategoricalFeatures: CategoricalFeatures(),
		Preprocessor:        NewPreprocessor(),
		PCA:                 NewPCA(cfg.Components),
		Classifier:          NewLogisticRegression(cfg.C, cfg.MaxIter),
		Training:            TrainingInfo{Seed: cfg.Seed},
	}
}

func (p *Pipeline) Fit(ds Dataset) error {
	if err := ds.Validate(); err != nil {
		return err
	}
	if err := p.Preprocessor.Fit(ds.Observations); err != nil {
		return fmt.Errorf("preprocessor: %w", err)
	}
	encoded, err := p.Preprocessor.TransformAll(ds.Observations)
	if err != nil {
		return fmt.Errorf("preprocessor: %w", err)
	}
	if err := p.PCA.Fit(encoded); err != nil {
		return err
	}
	projected := make([][]float64, len(encoded))
	for i, row := range encoded {
		if projected[i], err = p.PCA.Transform(row); err != nil {
			return err
		}
	}
	if err := p.Classifier.Fit(projected, ds.Labels); err != nil {
		return fmt.Errorf("classifier: %w", err)
	}
	p.Training.Samples = ds.Len()
	p.Training.PositiveRate = ds.PositiveRate()
	return nil
}

// Train satisfies MLModel.
func (p *Pipeline) Train(ds Dataset) error {
	return p.Fit(ds)
}

func (p *Pipeline) fitted() bool {
	return p.Preprocessor != nil && p.PCA != nil && p.Classifier != nil && p.Classifier.Coef != nil
}

func (p *Pipeline) score(o Observation) (float64, error) {
	encoded, err := p.Preprocessor.Transform(o)
	if err != nil {
		return 0, err
	}
	projected, err := p.PCA.Transform(encoded)
	if err != nil {
		return 0, err
	}
	return p.Classifier.PredictProba(projected)
}

// PredictProba returns P(chd=1) per observation.
func (p *Pipeline) PredictProba(observations []Observation) ([]float64, error) {
	if !p.fitted() {
		return nil, ErrNotFitted
	}
	probs := make([]float64, len(observations))
	for i, o := range observations {
		prob, err := p.score(o)
		if err != nil {
			return nil, err
		}
		probs[i] = prob
	}
	return probs, nil
}

// Predict returns binary labels, 1 when the probability exceeds 0.5.
func (p *Pipeline) Predict(observations []Observation) ([]int, error) {
	probs, err := p.PredictProba(observations)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(probs))
	for i, prob := range probs {
		labels[i] = LabelFor(prob)
	}
	return labels, nil
}

func LabelFor(probability float64) int {
	if probability > 0.5 {
		return 1
	}
	return 0
}

func (p *Pipeline) Marshal() ([]byte, error) {
	if !p.fitted() {
		return nil, ErrNotFitted
	}
	return json.MarshalIndent(p, "", "  ")
}

func UnmarshalPipeline(payload []byte) (*Pipeline, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()
	var p Pipeline
	if err := dec.Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArtifact, err)
	}
	if err := p.check(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Pipeline) check() error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrInvalidArtifact, fmt.Sprintf(format, args...))
	}
	if p.Format != ArtifactFormat {
		return invalid("unexpected format %q", p.Format)
	}
	if p.Version != ArtifactVersion {
		return invalid("unsupported version %d", p.Version)
	}
	if p.ModelType != ModelTypePCALogistic {
		return invalid("unexpected model type %q", p.ModelType)
	}
	if !p.fitted() {
		return invalid("missing fitted stages")
	}
	numeric := len(NumericFeatures())
	if len(p.Preprocessor.Scaler.Mean) != numeric || len(p.Preprocessor.Scaler.Scale) != numeric {
		return invalid("scaler has %d columns, want %d", len(p.Preprocessor.Scaler.Mean), numeric)
	}
	for _, s := range p.Preprocessor.Scaler.Scale {
		if s == 0 {
			return invalid("scaler has zero scale")
		}
	}
	width := numeric + p.Preprocessor.Encoder.Width()
	if len(p.PCA.Mean) != width {
		return invalid("pca expects %d columns, preprocessor yields %d", len(p.PCA.Mean), width)
	}
	if len(p.PCA.Components) == 0 {
		return invalid("pca has no components")
	}
	for k, axis := range p.PCA.Components {
		if len(axis) != width {
			return invalid("pca component %d has %d loadings, want %d", k, len(axis), width)
		}
	}
	if len(p.Classifier.Coef) != len(p.PCA.Components) {
		return invalid("classifier has %d coefficients, want %d", len(p.Classifier.Coef), len(p.PCA.Components))
	}
	return nil
}

// Save writes the artifact atomically: a temp file in the same directory is
// renamed over the target.
func (p *Pipeline) Save(path string) error {
	payload, err := p.Marshal()
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

func (p *Pipeline) Load(path string) error {
	payload, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	loaded, err := UnmarshalPipeline(payload)
	if err != nil {
		return err
	}
	*p = *loaded
	return nil
}

// ExplainedVarianceRatio is a convenience accessor for model info pages.
func (p *Pipeline) ExplainedVarianceRatio() []float64 {
	if p.PCA == nil {
		return nil
	}
	return append([]float64(nil), p.PCA.ExplainedVarianceRatio...)
}

func (p *Pipeline) Components() int {
	if p.PCA == nil {
		return 0
	}
	return len(p.PCA.Components)
}

var errEmptyPath = errors.New("model path is required")
