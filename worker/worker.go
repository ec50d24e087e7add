package worker

import (
	"context"
	"time"

	"github.com/BaSui01/swarmflow/types"
)

// State Worker 状态
type State string

const (
	StateIdle      State = "idle"
	StateWorking   State = "working"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateDestroyed State = "destroyed"
)

// Worker 是可编排的最小执行单元。
// 任何实现该接口的类型都可以注册到 Orchestrator。
type Worker interface {
	// ID 返回 Worker 的唯一标识
	ID() string

	// Execute 执行任务并返回结果
	Execute(ctx context.Context, task *types.Task) (*types.ExecutionResult, error)

	// Stats 返回执行统计
	Stats() Stats

	// Destroy 销毁 Worker，释放其订阅等资源
	Destroy(ctx context.Context) error
}

// Config Worker 配置
type Config struct {
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Retries int           `json:"retries" yaml:"retries"`
}

// DefaultConfig 返回默认 Worker 配置
func DefaultConfig() Config {
	return Config{
		Timeout: 60 * time.Second,
		Retries: 2,
	}
}

// Stats Worker 执行统计
type Stats struct {
	WorkerID    string        `json:"worker_id"`
	Role        string        `json:"role"`
	State       State         `json:"state"`
	Executions  int64         `json:"executions"`
	Successes   int64         `json:"successes"`
	Failures    int64         `json:"failures"`
	AvgDuration time.Duration `json:"avg_duration"`
	LastActive  time.Time     `json:"last_active"`
}

// Record 单次执行记录
type Record struct {
	TaskID    string        `json:"task_id"`
	TaskType  string        `json:"task_type"`
	Success   bool          `json:"success"`
	Duration  time.Duration `json:"duration"`
	Timestamp time.Time     `json:"timestamp"`
	Err       string        `json:"error,omitempty"`
}
