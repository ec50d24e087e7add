package config

import "time"

// Config 是 Swarmflow 的完整配置结构
type Config struct {
	// Orchestrator 编排器默认配置
	Orchestrator OrchestratorConfig `yaml:"orchestrator"`

	// Supervision 监督树默认配置
	Supervision SupervisionConfig `yaml:"supervision"`

	// Redis 检查点存储配置
	Redis RedisConfig `yaml:"redis"`

	// Log 日志配置
	Log LogConfig `yaml:"log"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// OrchestratorConfig 编排器配置
type OrchestratorConfig struct {
	// 单次调度超时
	DefaultTimeout time.Duration `yaml:"default_timeout"`
	// 每次调度的最大尝试次数
	DefaultRetries int `yaml:"default_retries"`
	// 退避基准时长（2^attempt × base，确定性、无抖动）
	BackoffBase time.Duration `yaml:"backoff_base"`
	// 扇出并发上限（0 表示不限制）
	MaxConcurrency int `yaml:"max_concurrency"`
}

// SupervisionConfig 监督树配置
type SupervisionConfig struct {
	// 最大树深度
	MaxDepth int `yaml:"max_depth"`
	// 滑动窗口内允许的最大重启次数
	MaxRestarts int `yaml:"max_restarts"`
	// 重启预算的滑动窗口
	RestartWindow time.Duration `yaml:"restart_window"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr"`
	// 密码
	Password string `yaml:"password"`
	// 数据库编号
	DB int `yaml:"db"`
	// 检查点 TTL（0 表示不过期）
	CheckpointTTL time.Duration `yaml:"checkpoint_ttl"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level"`
	// 输出格式: json, console
	Format string `yaml:"format"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	// 服务名称
	ServiceName string `yaml:"service_name"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Orchestrator: DefaultOrchestratorConfig(),
		Supervision:  DefaultSupervisionConfig(),
		Redis:        DefaultRedisConfig(),
		Log:          DefaultLogConfig(),
		Telemetry:    DefaultTelemetryConfig(),
	}
}

// DefaultOrchestratorConfig 返回默认编排器配置
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		DefaultTimeout: 60 * time.Second,
		DefaultRetries: 2,
		BackoffBase:    time.Second,
		MaxConcurrency: 0,
	}
}

// DefaultSupervisionConfig 返回默认监督树配置
func DefaultSupervisionConfig() SupervisionConfig {
	return SupervisionConfig{
		MaxDepth:      5,
		MaxRestarts:   3,
		RestartWindow: 60 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:          "localhost:6379",
		DB:            0,
		CheckpointTTL: 24 * time.Hour,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:  "info",
		Format: "json",
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "swarmflow",
		SampleRate:   1.0,
	}
}
