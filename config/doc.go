// Package config provides unified configuration for the engine:
// defaults, YAML file loading, and environment variable overrides.
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
package config
