package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader 配置加载器（Builder 模式）
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("swarmflow.yaml").
//	    WithEnvPrefix("SWARMFLOW").
//	    Load()
type Loader struct {
	configPath string
	envPrefix  string
}

// NewLoader 创建配置加载器
func NewLoader() *Loader {
	return &Loader{envPrefix: "SWARMFLOW"}
}

// WithConfigPath 设置 YAML 配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// Load 加载配置：默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	cfg := DefaultConfig()

	if l.configPath != "" {
		data, err := os.ReadFile(l.configPath)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	l.applyEnv(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// applyEnv 应用环境变量覆盖
func (l *Loader) applyEnv(cfg *Config) {
	l.envDuration("ORCHESTRATOR_DEFAULT_TIMEOUT", &cfg.Orchestrator.DefaultTimeout)
	l.envInt("ORCHESTRATOR_DEFAULT_RETRIES", &cfg.Orchestrator.DefaultRetries)
	l.envDuration("ORCHESTRATOR_BACKOFF_BASE", &cfg.Orchestrator.BackoffBase)
	l.envInt("ORCHESTRATOR_MAX_CONCURRENCY", &cfg.Orchestrator.MaxConcurrency)

	l.envInt("SUPERVISION_MAX_DEPTH", &cfg.Supervision.MaxDepth)
	l.envInt("SUPERVISION_MAX_RESTARTS", &cfg.Supervision.MaxRestarts)
	l.envDuration("SUPERVISION_RESTART_WINDOW", &cfg.Supervision.RestartWindow)

	l.envString("REDIS_ADDR", &cfg.Redis.Addr)
	l.envString("REDIS_PASSWORD", &cfg.Redis.Password)
	l.envInt("REDIS_DB", &cfg.Redis.DB)

	l.envString("LOG_LEVEL", &cfg.Log.Level)
	l.envString("LOG_FORMAT", &cfg.Log.Format)

	l.envBool("TELEMETRY_ENABLED", &cfg.Telemetry.Enabled)
	l.envString("TELEMETRY_OTLP_ENDPOINT", &cfg.Telemetry.OTLPEndpoint)
	l.envString("TELEMETRY_SERVICE_NAME", &cfg.Telemetry.ServiceName)
	l.envFloat("TELEMETRY_SAMPLE_RATE", &cfg.Telemetry.SampleRate)
}

func (l *Loader) lookup(key string) (string, bool) {
	return os.LookupEnv(l.envPrefix + "_" + key)
}

func (l *Loader) envString(key string, dst *string) {
	if v, ok := l.lookup(key); ok {
		*dst = v
	}
}

func (l *Loader) envInt(key string, dst *int) {
	if v, ok := l.lookup(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func (l *Loader) envBool(key string, dst *bool) {
	if v, ok := l.lookup(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func (l *Loader) envFloat(key string, dst *float64) {
	if v, ok := l.lookup(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func (l *Loader) envDuration(key string, dst *time.Duration) {
	if v, ok := l.lookup(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}

// validate 校验配置合法性
func validate(cfg *Config) error {
	if cfg.Orchestrator.DefaultRetries < 1 {
		return fmt.Errorf("orchestrator.default_retries must be >= 1, got %d", cfg.Orchestrator.DefaultRetries)
	}
	if cfg.Supervision.MaxDepth < 1 {
		return fmt.Errorf("supervision.max_depth must be >= 1, got %d", cfg.Supervision.MaxDepth)
	}
	if cfg.Supervision.MaxRestarts < 0 {
		return fmt.Errorf("supervision.max_restarts must be >= 0, got %d", cfg.Supervision.MaxRestarts)
	}
	if cfg.Supervision.RestartWindow <= 0 {
		return fmt.Errorf("supervision.restart_window must be positive, got %s", cfg.Supervision.RestartWindow)
	}
	if cfg.Telemetry.SampleRate < 0 || cfg.Telemetry.SampleRate > 1 {
		return fmt.Errorf("telemetry.sample_rate must be in [0,1], got %f", cfg.Telemetry.SampleRate)
	}
	return nil
}
