package supervision

import (
	"fmt"
	"strings"
	"time"
)

// ChainEntry 错误链中的一项
type ChainEntry struct {
	AgentID   string    `json:"agent_id"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// HierarchicalError 层级错误：随失败沿监督树向上传播，携带整个失败子树的
// 错误链与各节点的部分结果。
type HierarchicalError struct {
	AgentID        string                `json:"agent_id"`
	ParentID       string                `json:"parent_id,omitempty"`
	Message        string                `json:"message"`
	Cause          error                 `json:"-"`
	ChildErrors    []*HierarchicalError  `json:"child_errors,omitempty"`
	PartialResults map[string]any        `json:"partial_results,omitempty"`
	Recoverable    bool                  `json:"recoverable"`
	Timestamp      time.Time             `json:"timestamp"`
}

// NewHierarchicalError 为失败节点创建层级错误
func NewHierarchicalError(agentID, parentID string, cause error) *HierarchicalError {
	message := "unknown failure"
	if cause != nil {
		message = cause.Error()
	}
	return &HierarchicalError{
		AgentID:   agentID,
		ParentID:  parentID,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// WrapChild 在上一级包装子错误，延伸错误链
func WrapChild(agentID, parentID string, child *HierarchicalError) *HierarchicalError {
	return &HierarchicalError{
		AgentID:     agentID,
		ParentID:    parentID,
		Message:     fmt.Sprintf("child %s failed: %s", child.AgentID, child.Message),
		Cause:       child,
		ChildErrors: []*HierarchicalError{child},
		Timestamp:   time.Now(),
	}
}

func (e *HierarchicalError) Error() string {
	chain := e.ErrorChain()
	parts := make([]string, 0, len(chain))
	for _, entry := range chain {
		parts = append(parts, fmt.Sprintf("%s: %s", entry.AgentID, entry.Message))
	}
	return strings.Join(parts, " <- ")
}

func (e *HierarchicalError) Unwrap() error { return e.Cause }

// ErrorChain 深度优先展开自身与全部后代的错误链
func (e *HierarchicalError) ErrorChain() []ChainEntry {
	chain := []ChainEntry{{
		AgentID:   e.AgentID,
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}}
	for _, child := range e.ChildErrors {
		chain = append(chain, child.ErrorChain()...)
	}
	return chain
}

// IsRecoverable 自身或任一后代可恢复时为 true：
// 用于判断失败之下是否还有可用的输出
func (e *HierarchicalError) IsRecoverable() bool {
	if e.Recoverable {
		return true
	}
	for _, child := range e.ChildErrors {
		if child.IsRecoverable() {
			return true
		}
	}
	return false
}

// AggregatePartialResults 聚合整个失败子树的部分结果，按 agentID 归并。
// 同一 agentID 以更靠近失败源（更深层）的记录为准。
func (e *HierarchicalError) AggregatePartialResults() map[string]any {
	aggregated := make(map[string]any)
	e.collectPartials(aggregated)
	return aggregated
}

func (e *HierarchicalError) collectPartials(into map[string]any) {
	if len(e.PartialResults) > 0 {
		into[e.AgentID] = e.PartialResults
	}
	for _, child := range e.ChildErrors {
		child.collectPartials(into)
	}
}
