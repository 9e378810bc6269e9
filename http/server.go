// Package http 提供HTTP服务器功能
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/text/language"

	"chdrisk/assessment"
	"chdrisk/db"
	"chdrisk/ml"
	"chdrisk/monitoring"
	"chdrisk/predictor"
)

const maxRequestBytes = 1 << 20

// Server HTTP服务器
type Server struct {
	server *http.Server
	config ServerConfig
	logger *zap.Logger
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port           int
	Timeout        time.Duration
	AllowedOrigins []string
	DefaultLang    language.Tag
}

// DefaultServerConfig 默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:           8080,
		Timeout:        30 * time.Second,
		AllowedOrigins: []string{"*"},
		DefaultLang:    language.French,
	}
}

// Assessor is implemented by *assessment.Service.
type Assessor interface {
	Assess(ctx context.Context, obs ml.Observation) (*assessment.Assessment, error)
	Recent(ctx context.Context, limit int) ([]*assessment.Assessment, error)
}

// ModelInfo is implemented by *predictor.Predictor.
type ModelInfo interface {
	Info() (predictor.Info, bool)
}

// TrainingLogSource is implemented by *db.Store.
type TrainingLogSource interface {
	LoadTrainingLog(ctx context.Context) ([]db.TrainingLog, error)
}

// Dependencies 处理器依赖，只有 Assessor 和 Model 是必需的
type Dependencies struct {
	Assessor    Assessor
	Model       ModelInfo
	TrainingLog TrainingLogSource
	Metrics     *monitoring.Metrics
	Feed        http.Handler
	Logger      *zap.Logger
}

// NewServer 创建HTTP服务器
func NewServer(config ServerConfig, deps Dependencies) *Server {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	return &Server{
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", config.Port),
			Handler:           NewHandler(config, deps),
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		config: config,
		logger: deps.Logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(config ServerConfig, deps Dependencies) http.Handler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if config.DefaultLang == language.Und {
		config.DefaultLang = language.French
	}

	mux := http.NewServeMux()
	h := &handlers{deps: deps, defaultLang: config.DefaultLang}
	h.register(mux)

	chain := Chain(
		RecoveryMiddleware(deps.Logger),
		LoggerMiddleware(deps.Logger),
		SecurityHeadersMiddleware,
		CORSMiddleware(config.AllowedOrigins),
		RequestSizeMiddleware(maxRequestBytes),
		TimeoutMiddleware(config.Timeout),
	)
	return chain(mux)
}

// Start 启动服务器
func (s *Server) Start() error {
	s.logger.Info("starting http server", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Stop 停止服务器
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.logger.Info("shutting down http server")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	return nil
}

// Addr 返回服务器地址
func (s *Server) Addr() string {
	return s.server.Addr
}
