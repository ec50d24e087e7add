package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// ExecutionResult Worker 执行结果
// Decision 用于投票场景；Value 用于合成场景
type ExecutionResult struct {
	WorkerID string        `json:"worker_id"`
	Success  bool          `json:"success"`
	Value    any           `json:"value,omitempty"`
	Decision string        `json:"decision,omitempty"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"duration"`
}

// VoteKey 返回用于投票计数的规范可比较键。
// 优先级：Decision → Value 的字符串形式 → 整个结果的规范 JSON 序列化。
// 投票键必须是显式的，而不是在计票时从临时字段推断。
func (r *ExecutionResult) VoteKey() string {
	if r.Decision != "" {
		return r.Decision
	}
	if r.Value != nil {
		if s, ok := r.Value.(string); ok {
			return s
		}
		if data, err := json.Marshal(r.Value); err == nil {
			return string(data)
		}
		return fmt.Sprintf("%v", r.Value)
	}
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf("%v", r)
	}
	return string(data)
}

// Success 创建成功结果
func Success(workerID string, value any, duration time.Duration) *ExecutionResult {
	return &ExecutionResult{
		WorkerID: workerID,
		Success:  true,
		Value:    value,
		Duration: duration,
	}
}

// Failure 创建失败结果
func Failure(workerID string, err error, duration time.Duration) *ExecutionResult {
	return &ExecutionResult{
		WorkerID: workerID,
		Success:  false,
		Err:      err,
		Duration: duration,
	}
}
