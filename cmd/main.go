package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"chdrisk/assessment"
	"chdrisk/config"
	"chdrisk/db"
	qhttp "chdrisk/http"
	"chdrisk/locale"
	"chdrisk/logging"
	"chdrisk/monitoring"
	"chdrisk/predictor"
)

func main() {
	// config.yaml is looked up in the working directory, then one level up
	cfg, err := config.Load(os.Getenv("CHDRISK_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Model artifact
	source, err := artifactSource(ctx, cfg.ML)
	if err != nil {
		return err
	}
	model, err := predictor.New(predictor.Config{
		ModelType: cfg.ML.ModelType,
		CacheSize: cfg.ML.CacheSize,
	}, source, logger)
	if err != nil {
		return err
	}
	if err := model.Load(ctx); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("model artifact %s not found, run train_model first: %w", source, err)
		}
		return fmt.Errorf("model artifact %s could not be loaded: %w", source, err)
	}
	if cfg.ML.Watch && !cfg.ML.UsesS3() {
		go func() {
			if err := model.Watch(ctx, cfg.ML.ModelPath); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("model watcher stopped", zap.Error(err))
			}
		}()
	}

	// 2. Storage
	store, err := db.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("database initialized", zap.String("path", cfg.Database.Path))

	// 3. Live feed and events
	metrics := monitoring.NewMetrics()
	hub := monitoring.NewHub(cfg.HTTP.AllowedOrigins, metrics, logger)
	go hub.Run(ctx)

	publishers := []assessment.Publisher{hub}
	if len(cfg.Events.KafkaBrokers) > 0 {
		kafka := monitoring.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic, logger)
		defer kafka.Close()
		publishers = append(publishers, kafka)
		logger.Info("publishing assessments to kafka",
			zap.Strings("brokers", cfg.Events.KafkaBrokers), zap.String("topic", cfg.Events.KafkaTopic))
	}

	service := assessment.NewService(model, store, monitoring.NewFanout(metrics, publishers...), metrics, logger)

	// 4. HTTP
	server := qhttp.NewServer(qhttp.ServerConfig{
		Port:           cfg.HTTP.Port,
		Timeout:        cfg.HTTP.Timeout,
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		DefaultLang:    locale.Parse(cfg.UI.DefaultLang),
	}, qhttp.Dependencies{
		Assessor:    service,
		Model:       model,
		TrainingLog: store,
		Metrics:     metrics,
		Feed:        hub,
		Logger:      logger,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	if err := server.Stop(); err != nil {
		logger.Warn("server forced to shutdown", zap.Error(err))
	}
	return nil
}

func artifactSource(ctx context.Context, cfg config.MLConfig) (predictor.ArtifactSource, error) {
	if !cfg.UsesS3() {
		return predictor.FileSource{Path: cfg.ModelPath}, nil
	}
	client, err := predictor.NewS3Client(ctx)
	if err != nil {
		return nil, err
	}
	return &predictor.S3Source{Client: client, Bucket: cfg.S3Bucket, Key: cfg.S3Key}, nil
}
