package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"chdrisk/config"
	"chdrisk/db"
	"chdrisk/logging"
	"chdrisk/ml"
	"chdrisk/predictor"
	"chdrisk/trainer"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

type options struct {
	train      trainer.Config
	configPath string
	dbPath     string
	s3Bucket   string
	s3Key      string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	opts := options{train: trainer.DefaultConfig()}

	cmd := &cobra.Command{
		Use:          "train_model",
		Short:        "Train the CHD risk pipeline and write the model artifact",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if opts.configPath != "" {
				if err := opts.applyConfig(cmd); err != nil {
					return err
				}
			}
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "read database, model and S3 defaults from this config.yaml")
	f.Int64Var(&opts.train.Seed, "seed", opts.train.Seed, "random seed for data generation and splitting")
	f.IntVar(&opts.train.Samples, "samples", opts.train.Samples, "number of synthetic patients")
	f.StringVar(&opts.train.DataPath, "data", "", "train on this CSV instead of synthetic data")
	f.StringVar(&opts.train.ModelPath, "model_path", opts.train.ModelPath, "model artifact output path")
	f.Float64Var(&opts.train.TestRatio, "test_ratio", 0, "fraction held out for evaluation (0 evaluates on the training set)")
	f.IntVar(&opts.train.Components, "components", opts.train.Components, "number of principal components")
	f.Float64Var(&opts.train.C, "c", opts.train.C, "inverse L2 regularisation strength")
	f.IntVar(&opts.train.MaxIter, "max_iter", opts.train.MaxIter, "maximum solver iterations")
	f.StringVar(&opts.dbPath, "db", "", "record the run in this sqlite database")
	f.StringVar(&opts.s3Bucket, "s3_bucket", "", "also upload the artifact to this bucket")
	f.StringVar(&opts.s3Key, "s3_key", "", "object key for the uploaded artifact")
	f.StringVar(&opts.logLevel, "log_level", "info", "log level")
	return cmd
}

// applyConfig fills every flag the user did not set from the config file.
func (o *options) applyConfig(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	changed := cmd.Flags().Changed
	if !changed("model_path") && cfg.ML.ModelPath != "" {
		o.train.ModelPath = cfg.ML.ModelPath
	}
	if !changed("db") {
		o.dbPath = cfg.Database.Path
	}
	if !changed("s3_bucket") && !changed("s3_key") {
		o.s3Bucket, o.s3Key = cfg.ML.S3Bucket, cfg.ML.S3Key
	}
	if !changed("log_level") && cfg.Log.Level != "" {
		o.logLevel = cfg.Log.Level
	}
	return nil
}

func run(ctx context.Context, opts options) error {
	if (opts.s3Bucket == "") != (opts.s3Key == "") {
		return fmt.Errorf("--s3_bucket and --s3_key must be set together")
	}

	logger, err := logging.New(logging.Config{Level: opts.logLevel})
	if err != nil {
		return err
	}
	defer logger.Sync()

	report, err := trainer.Run(opts.train, logger)
	if err != nil {
		logger.Error("training failed", zap.Error(err))
		return err
	}

	if opts.s3Bucket != "" {
		payload, err := report.Pipeline.Marshal()
		if err != nil {
			return err
		}
		client, err := predictor.NewS3Client(ctx)
		if err != nil {
			return err
		}
		if err := predictor.UploadArtifact(ctx, client, opts.s3Bucket, opts.s3Key, payload); err != nil {
			logger.Error("artifact upload failed", zap.Error(err))
			return err
		}
		logger.Info("artifact uploaded", zap.String("bucket", opts.s3Bucket), zap.String("key", opts.s3Key))
	}

	if opts.dbPath != "" {
		if err := recordRun(ctx, opts, report); err != nil {
			logger.Warn("failed to record training run", zap.String("db", opts.dbPath), zap.Error(err))
		}
	}

	fmt.Printf("model saved to %s (accuracy=%.2f on %s set, %d samples)\n",
		opts.train.ModelPath, report.Metrics.Accuracy, report.Evaluated, report.Samples)
	return nil
}

func recordRun(ctx context.Context, opts options, report *trainer.Report) error {
	store, err := db.Open(opts.dbPath)
	if err != nil {
		return err
	}
	defer store.Close()

	err = store.SaveTrainingLog(ctx, db.TrainingLog{
		ModelName:  ml.ModelTypePCALogistic,
		Source:     report.Source,
		Seed:       opts.train.Seed,
		Accuracy:   report.Metrics.Accuracy,
		Precision:  report.Metrics.Precision,
		Recall:     report.Metrics.Recall,
		LogLoss:    report.Metrics.LogLoss,
		TrainedAt:  time.Now(),
		DataPoints: report.Samples,
	})
	if err != nil {
		return err
	}
	return store.SaveQualityIssues(ctx, report.Source, report.Issues)
}
