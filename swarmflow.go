// Package swarmflow provides a top-level convenience entry point wiring the
// orchestrator and the supervision tree together with minimal boilerplate.
//
// Usage:
//
//	import "github.com/BaSui01/swarmflow"
//
//	engine, err := swarmflow.New()
//	engine, err := swarmflow.New(swarmflow.WithConfigFile("swarmflow.yaml"))
//	engine, err := swarmflow.New(swarmflow.WithRedisCheckpoints())
//
// The engine owns the orchestrator, the supervision tree and the shared
// observability plumbing (zap logger, Prometheus collector, OTel providers).
package swarmflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/internal/telemetry"
	"github.com/BaSui01/swarmflow/orchestrator"
	"github.com/BaSui01/swarmflow/supervision"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Engine 将编排器与监督树组合为一个可直接使用的引擎
type Engine struct {
	Config       *config.Config
	Logger       *zap.Logger
	Orchestrator *orchestrator.Orchestrator
	Supervisor   *supervision.Tree

	collector   *metrics.Collector
	providers   *telemetry.Providers
	redisClient *redis.Client
}

type engineOptions struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	registerer prometheus.Registerer
	useRedis   bool
}

// Option 配置 New 创建的引擎
type Option func(*engineOptions)

// WithConfig 使用既有配置，跳过文件与环境变量加载
func WithConfig(cfg *config.Config) Option {
	return func(o *engineOptions) { o.cfg = cfg }
}

// WithConfigFile 从 YAML 文件加载配置（环境变量仍可覆盖）
func WithConfigFile(path string) Option {
	return func(o *engineOptions) { o.configPath = path }
}

// WithLogger 使用自定义 zap logger
func WithLogger(logger *zap.Logger) Option {
	return func(o *engineOptions) { o.logger = logger }
}

// WithRegisterer 指定 Prometheus 注册器（默认 prometheus.DefaultRegisterer）
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *engineOptions) { o.registerer = reg }
}

// WithRedisCheckpoints 用 Redis 作为监督树的检查点存储（按 Redis 配置连接）
func WithRedisCheckpoints() Option {
	return func(o *engineOptions) { o.useRedis = true }
}

// New 创建引擎
func New(opts ...Option) (*Engine, error) {
	options := &engineOptions{
		registerer: prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(options)
	}

	cfg := options.cfg
	if cfg == nil {
		loader := config.NewLoader()
		if options.configPath != "" {
			loader = loader.WithConfigPath(options.configPath)
		}
		loaded, err := loader.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	logger := options.logger
	if logger == nil {
		built, err := buildLogger(cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		logger = built
	}

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	collector := metrics.NewCollector("swarmflow", options.registerer, logger)

	engine := &Engine{
		Config:    cfg,
		Logger:    logger,
		collector: collector,
		providers: providers,
	}

	engine.Orchestrator = orchestrator.NewOrchestrator(cfg.Orchestrator, logger,
		orchestrator.WithMetrics(collector),
	)

	treeOpts := []supervision.TreeOption{
		supervision.WithTreeMetrics(collector),
	}
	if options.useRedis {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		engine.redisClient = client
		store := supervision.NewRedisCheckpointStore(client, "swarmflow:checkpoint:", cfg.Redis.CheckpointTTL)
		treeOpts = append(treeOpts, supervision.WithCheckpointStore(store))
	}
	engine.Supervisor = supervision.NewTree(cfg.Supervision, logger, treeOpts...)

	logger.Info("swarmflow engine ready",
		zap.Bool("telemetry", cfg.Telemetry.Enabled),
		zap.Bool("redis_checkpoints", options.useRedis),
	)
	return engine, nil
}

// Close 销毁全部 Worker，关闭遥测与 Redis 连接
func (e *Engine) Close(ctx context.Context) error {
	var errs []error
	if err := e.Orchestrator.Destroy(ctx); err != nil {
		errs = append(errs, err)
	}
	if e.providers != nil {
		if err := e.providers.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if e.redisClient != nil {
		if err := e.redisClient.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	_ = e.Logger.Sync()
	return errors.Join(errs...)
}

// buildLogger 按日志配置构建 zap logger
func buildLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	zapCfg := zap.NewProductionConfig()
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	return zapCfg.Build()
}
