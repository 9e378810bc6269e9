// Package predictor serves a trained pipeline loaded once per process.
package predictor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"chdrisk/ml"
)

var (
	ErrArtifactUnavailable = errors.New("model artifact unavailable")
	ErrModelNotLoaded      = errors.New("model not loaded")
)

type Config struct {
	ModelType string
	CacheSize int
}

type Prediction struct {
	Probability  float64 `json:"probability"`
	Label        int     `json:"label"`
	ModelVersion string  `json:"model_version"`
	Cached       bool    `json:"-"`
}

// Info describes the currently loaded artifact.
type Info struct {
	ModelType              string          `json:"model_type"`
	Version                string          `json:"version"`
	Source                 string          `json:"source"`
	Components             int             `json:"components"`
	ExplainedVarianceRatio []float64       `json:"explained_variance_ratio"`
	Training               ml.TrainingInfo `json:"training"`
	LoadedAt               time.Time       `json:"loaded_at"`
}

type Predictor struct {
	cfg    Config
	source ArtifactSource
	logger *zap.Logger

	mu       sync.RWMutex
	pipeline *ml.Pipeline
	info     Info

	cache *lru.Cache[ml.Observation, float64]
}

func New(cfg Config, source ArtifactSource, logger *zap.Logger) (*Predictor, error) {
	if source == nil {
		return nil, errors.New("artifact source is required")
	}
	if cfg.ModelType != "" && !ml.SupportedModelType(cfg.ModelType) {
		return nil, fmt.Errorf("unsupported model type %q", cfg.ModelType)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Predictor{cfg: cfg, source: source, logger: logger}
	if cfg.CacheSize > 0 {
		cache, err := lru.New[ml.Observation, float64](cfg.CacheSize)
		if err != nil {
			return nil, err
		}
		p.cache = cache
	}
	return p, nil
}

// Load fetches and decodes the artifact. On failure any previously loaded
// pipeline stays in service.
func (p *Predictor) Load(ctx context.Context) error {
	payload, err := p.source.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArtifactUnavailable, p.source, err)
	}
	pipeline, err := ml.LoadModelBytes(p.cfg.ModelType, payload)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrArtifactUnavailable, p.source, err)
	}

	sum := sha256.Sum256(payload)
	info := Info{
		ModelType:              pipeline.ModelType,
		Version:                hex.EncodeToString(sum[:6]),
		Source:                 p.source.String(),
		Components:             pipeline.Components(),
		ExplainedVarianceRatio: pipeline.ExplainedVarianceRatio(),
		Training:               pipeline.Training,
		LoadedAt:               time.Now().UTC(),
	}

	p.mu.Lock()
	p.pipeline = pipeline
	p.info = info
	if p.cache != nil {
		p.cache.Purge()
	}
	p.mu.Unlock()

	p.logger.Info("model loaded",
		zap.String("source", info.Source),
		zap.String("version", info.Version),
		zap.Int("components", info.Components),
		zap.Int("training_samples", info.Training.Samples),
	)
	return nil
}

func (p *Predictor) Loaded() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.pipeline != nil
}

func (p *Predictor) Info() (Info, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pipeline == nil {
		return Info{}, false
	}
	info := p.info
	info.ExplainedVarianceRatio = append([]float64(nil), p.info.ExplainedVarianceRatio...)
	return info, true
}

// Predict scores one observation. Ranges are not checked here.
func (p *Predictor) Predict(ctx context.Context, obs ml.Observation) (Prediction, error) {
	if err := ctx.Err(); err != nil {
		return Prediction{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.pipeline == nil {
		return Prediction{}, ErrModelNotLoaded
	}

	if p.cache != nil {
		if prob, ok := p.cache.Get(obs); ok {
			return p.prediction(prob, true), nil
		}
	}
	probs, err := p.pipeline.PredictProba([]ml.Observation{obs})
	if err != nil {
		return Prediction{}, err
	}
	if p.cache != nil {
		p.cache.Add(obs, probs[0])
	}
	return p.prediction(probs[0], false), nil
}

func (p *Predictor) prediction(prob float64, cached bool) Prediction {
	return Prediction{
		Probability:  prob,
		Label:        ml.LabelFor(prob),
		ModelVersion: p.info.Version,
		Cached:       cached,
	}
}
