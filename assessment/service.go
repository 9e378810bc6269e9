// Package assessment turns a patient observation into a stored, published
// risk assessment.
package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"chdrisk/ml"
	"chdrisk/predictor"
	"chdrisk/risk"
)

const (
	DefaultRecentLimit = 20
	MaxRecentLimit     = 200
)

type Assessment struct {
	ID           string         `json:"id"`
	Observation  ml.Observation `json:"observation"`
	Probability  float64        `json:"probability"`
	Label        int            `json:"label"`
	RiskFactors  []risk.Factor  `json:"risk_factors"`
	ModelVersion string         `json:"model_version"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (a *Assessment) HighRisk() bool {
	return a.Label == 1
}

type Predictor interface {
	Predict(ctx context.Context, obs ml.Observation) (predictor.Prediction, error)
}

type Store interface {
	SaveAssessment(ctx context.Context, a *Assessment) error
	RecentAssessments(ctx context.Context, limit int) ([]*Assessment, error)
}

type Publisher interface {
	Publish(ctx context.Context, a *Assessment) error
}

type Recorder interface {
	RecordAssessment(highRisk, cached bool)
	RecordError()
}

type Service struct {
	predictor Predictor
	store     Store
	publisher Publisher
	metrics   Recorder
	logger    *zap.Logger

	now   func() time.Time
	newID func() string
}

// NewService wires the pipeline. store, publisher and metrics may be nil.
func NewService(p Predictor, store Store, publisher Publisher, metrics Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		predictor: p,
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,
	}
}

// Assess runs inference and flags risk factors. Persisting and publishing
// happen after the prediction succeeded and their failures are only logged.
func (s *Service) Assess(ctx context.Context, obs ml.Observation) (*Assessment, error) {
	pred, err := s.predictor.Predict(ctx, obs)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordError()
		}
		return nil, err
	}

	a := &Assessment{
		ID:           s.newID(),
		Observation:  obs,
		Probability:  pred.Probability,
		Label:        pred.Label,
		RiskFactors:  risk.Factors(obs),
		ModelVersion: pred.ModelVersion,
		CreatedAt:    s.now(),
	}

	if s.store != nil {
		if err := s.store.SaveAssessment(ctx, a); err != nil {
			s.logger.Warn("save assessment failed", zap.String("id", a.ID), zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, a); err != nil {
			s.logger.Warn("publish assessment failed", zap.String("id", a.ID), zap.Error(err))
		}
	}
	if s.metrics != nil {
		s.metrics.RecordAssessment(a.HighRisk(), pred.Cached)
	}

	s.logger.Debug("assessment",
		zap.String("id", a.ID),
		zap.Float64("probability", a.Probability),
		zap.Int("label", a.Label),
		zap.Int("risk_factors", len(a.RiskFactors)),
		zap.Bool("cached", pred.Cached),
	)
	return a, nil
}

// Recent returns the newest stored assessments first. limit is clamped to
// [1, MaxRecentLimit]; zero means DefaultRecentLimit.
func (s *Service) Recent(ctx context.Context, limit int) ([]*Assessment, error) {
	if s.store == nil {
		return []*Assessment{}, nil
	}
	switch {
	case limit <= 0:
		limit = DefaultRecentLimit
	case limit > MaxRecentLimit:
		limit = MaxRecentLimit
	}
	return s.store.RecentAssessments(ctx, limit)
}
