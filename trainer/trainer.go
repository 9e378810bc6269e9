// Package trainer fits the CHD pipeline offline and writes the artifact the
// server loads.
package trainer

import (
	"errors"
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"chdrisk/dataset"
	"chdrisk/ml"
)

const SourceSynthetic = "synthetic"

type Config struct {
	Samples    int
	Seed       int64
	TestRatio  float64
	Components int
	C          float64
	MaxIter    int
	DataPath   string
	ModelPath  string
}

func DefaultConfig() Config {
	return Config{
		Samples:    100,
		Seed:       42,
		Components: ml.DefaultComponents,
		C:          ml.DefaultC,
		MaxIter:    ml.DefaultMaxIter,
		ModelPath:  "models/chd_model.json",
	}
}

func (c Config) Validate() error {
	if c.ModelPath == "" {
		return errors.New("model path is required")
	}
	if c.DataPath == "" && c.Samples <= 0 {
		return errors.New("samples must be positive")
	}
	if c.TestRatio < 0 || c.TestRatio >= 1 {
		return fmt.Errorf("test ratio must be in [0, 1), got %g", c.TestRatio)
	}
	return nil
}

// Report summarises one training run.
type Report struct {
	Source       string
	Samples      int
	TrainSamples int
	TestSamples  int
	// Evaluated is "test" when a hold-out split exists, otherwise "train".
	Evaluated  string
	Metrics    ml.Metrics
	Iterations int
	Converged  bool
	Issues     []dataset.QualityIssue
	Cleaning   *dataset.CleaningStats
	Pipeline   *ml.Pipeline
}

// Run loads or generates the data, fits the pipeline, evaluates it and saves
// the artifact to cfg.ModelPath.
func Run(cfg Config, logger *zap.Logger) (*Report, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	report := &Report{Source: SourceSynthetic}
	var ds ml.Dataset
	if cfg.DataPath != "" {
		result, err := dataset.Load(cfg.DataPath, nil)
		if err != nil {
			return nil, fmt.Errorf("load dataset: %w", err)
		}
		ds = result.Dataset
		report.Source = filepath.Base(cfg.DataPath)
		report.Issues = result.Issues
		report.Cleaning = &result.Stats
		logger.Info("dataset loaded",
			zap.String("path", cfg.DataPath),
			zap.Int64("passed", result.Stats.Passed),
			zap.Int64("rejected", result.Stats.Rejected),
			zap.Int64("corrected", result.Stats.Corrected),
		)
	} else {
		var err error
		if ds, err = ml.GenerateSynthetic(cfg.Samples, cfg.Seed); err != nil {
			return nil, err
		}
	}
	report.Samples = ds.Len()

	train, test := ml.SplitDataset(ds, cfg.TestRatio, cfg.Seed)
	report.TrainSamples = train.Len()
	report.TestSamples = test.Len()

	model := ml.NewPipeline(ml.PipelineConfig{
		Components: cfg.Components,
		C:          cfg.C,
		MaxIter:    cfg.MaxIter,
		Seed:       cfg.Seed,
	})
	if err := model.Fit(train); err != nil {
		return nil, fmt.Errorf("fit pipeline: %w", err)
	}
	model.Training.Source = report.Source
	report.Iterations = model.Classifier.NIter
	report.Converged = model.Classifier.Converged
	if !report.Converged {
		logger.Warn("logistic regression did not converge", zap.Int("max_iter", model.Classifier.MaxIter))
	}

	evalSet, evaluated := test, "test"
	if test.Len() == 0 {
		evalSet, evaluated = train, "train"
	}
	metrics, err := ml.Evaluate(model, evalSet)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	report.Evaluated = evaluated
	report.Metrics = metrics

	if err := model.Save(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	report.Pipeline = model

	logger.Info("model trained",
		zap.String("source", report.Source),
		zap.Int("samples", report.Samples),
		zap.String("evaluated_on", evaluated),
		zap.Float64("accuracy", metrics.Accuracy),
		zap.Float64("precision", metrics.Precision),
		zap.Float64("recall", metrics.Recall),
		zap.Float64("log_loss", metrics.LogLoss),
		zap.Float64s("explained_variance_ratio", model.ExplainedVarianceRatio()),
		zap.String("model_path", cfg.ModelPath),
	)
	return report, nil
}
