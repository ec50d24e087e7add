package supervision

import (
	"context"
	"time"
)

// Status 节点状态
type Status string

const (
	StatusActive     Status = "active"
	StatusRestarting Status = "restarting"
	StatusFailed     Status = "failed"
	StatusTerminated Status = "terminated"
)

// RestartPolicy 重启策略
type RestartPolicy string

const (
	// OneForOne 只重启失败节点
	OneForOne RestartPolicy = "one_for_one"
	// AllForOne 重启同父下的所有兄弟节点（含自身）
	AllForOne RestartPolicy = "all_for_one"
	// RestForOne 按 startOrder 升序重启失败节点及其后注册的兄弟节点
	RestForOne RestartPolicy = "rest_for_one"
)

// RestartFunc 重启回调。cause 仅在该节点是触发失败的节点时非 nil。
type RestartFunc func(ctx context.Context, agentID string, cause error) error

// TerminateFunc 终止回调，尽力而为，失败只记日志
type TerminateFunc func(ctx context.Context, agentID string) error

// Node 监督树节点
// 不变量：depth(child) = depth(parent)+1；depth ≤ maxDepth；父节点必须先注册
type Node struct {
	AgentID  string `json:"agent_id"`
	ParentID string `json:"parent_id,omitempty"`
	// 子节点 ID，按注册顺序
	Children []string `json:"children"`
	Status   Status   `json:"status"`
	Depth    int      `json:"depth"`
	Policy   RestartPolicy `json:"policy"`
	// 单调递增的注册序号，决定 rest-for-one 的重启顺序
	StartOrder   int64     `json:"start_order"`
	RegisteredAt time.Time `json:"registered_at"`

	OnRestart   RestartFunc   `json:"-"`
	OnTerminate TerminateFunc `json:"-"`
}

// RegisterOptions Register 的选项
type RegisterOptions struct {
	// 父节点 ID，空表示根节点
	ParentID string
	// 重启策略，默认 one_for_one
	Policy      RestartPolicy
	OnRestart   RestartFunc
	OnTerminate TerminateFunc
}
