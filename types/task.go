package types

import "time"

// Task 工作任务
// Payload 对框架是不透明的，由 Worker 自行解释
type Task struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   any            `json:"payload"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTask 创建任务
func NewTask(taskType string, payload any) *Task {
	return &Task{
		Type:      taskType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// WithMetadata 添加元数据
func (t *Task) WithMetadata(key string, value any) *Task {
	if t.Metadata == nil {
		t.Metadata = make(map[string]any)
	}
	t.Metadata[key] = value
	return t
}
