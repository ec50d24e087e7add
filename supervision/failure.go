package supervision

import (
	"context"

	"go.uber.org/zap"
)

// FailureOutcome HandleFailure 的处理结果
type FailureOutcome struct {
	// 失败被某一级的重启策略消化
	Handled bool `json:"handled"`
	// 实际重启的节点，按重启顺序
	Restarted []string `json:"restarted,omitempty"`
	// 向上逐级升级的次数
	Escalations int `json:"escalations"`
	// 根节点耗尽预算时的致命错误
	FatalError *HierarchicalError `json:"fatal_error,omitempty"`
}

// HandleFailure 处理节点失败。
//
// 未知 ID 记日志后忽略。否则：保存部分结果检查点，标记失败，构建携带部分
// 结果与可恢复标志的 HierarchicalError，交给节点的重启策略。重启被拒或
// 回调失败时升级：无条件终止失败节点的整个子树，然后沿父链显式向上循环
// （而非递归，深层级不会压栈），每级重复同样的处理。根节点耗尽预算时返回
// 致命的 HierarchicalError——绝不静默丢弃。
func (t *Tree) HandleFailure(ctx context.Context, agentID string, cause error, partialResults map[string]any) (*FailureOutcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[agentID]
	if !ok {
		t.logger.Warn("failure for unknown node ignored",
			zap.String("agent_id", agentID),
			zap.Error(cause),
		)
		return &FailureOutcome{}, nil
	}

	herr := NewHierarchicalError(agentID, node.ParentID, cause)
	herr.PartialResults = partialResults
	if len(partialResults) > 0 {
		if err := t.checkpoints.Save(ctx, &Checkpoint{
			AgentID:   agentID,
			Data:      partialResults,
			Timestamp: t.now(),
		}); err != nil {
			t.logger.Warn("partial result checkpoint failed",
				zap.String("agent_id", agentID),
				zap.Error(err),
			)
		} else if t.collector != nil {
			t.collector.RecordCheckpointSaved()
		}
	}

	outcome := &FailureOutcome{}
	current := node

	// 升级是沿父链向上的显式循环
	for {
		current.Status = StatusFailed
		eligible := t.restartEligibleLocked(current.AgentID)
		herr.Recoverable = eligible

		if eligible {
			restarted, err := t.applyStrategyLocked(ctx, current, herr)
			if err == nil {
				outcome.Handled = true
				outcome.Restarted = restarted
				if t.collector != nil {
					t.collector.RecordRestart(string(current.Policy), "success")
				}
				t.logger.Info("failure handled",
					zap.String("agent_id", current.AgentID),
					zap.String("strategy", string(current.Policy)),
					zap.Strings("restarted", restarted),
				)
				t.publish(&FailureEvent{
					AgentID_:   current.AgentID,
					Strategy:   current.Policy,
					Restarted:  restarted,
					Err:        herr,
					Kind:       EventFailureHandled,
					Timestamp_: t.now(),
				})
				t.updateActiveGauge()
				return outcome, nil
			}
			if t.collector != nil {
				t.collector.RecordRestart(string(current.Policy), "failure")
				t.collector.RecordEscalation("restart_failed")
			}
			t.logger.Warn("restart failed, escalating",
				zap.String("agent_id", current.AgentID),
				zap.String("strategy", string(current.Policy)),
				zap.Error(err),
			)
		} else {
			if t.collector != nil {
				t.collector.RecordEscalation("restart_exhausted")
			}
			t.logger.Warn("restart budget exhausted, escalating",
				zap.String("agent_id", current.AgentID),
			)
		}

		// 升级前无条件终止失败节点的整个子树
		t.terminateSubtreeLocked(ctx, current)
		outcome.Escalations++

		parent, hasParent := t.nodes[current.ParentID]
		if current.ParentID == "" || !hasParent {
			// 根节点：致命失败，必须到达调用方
			if t.collector != nil {
				t.collector.RecordFatal()
			}
			t.logger.Error("fatal failure at root",
				zap.String("agent_id", current.AgentID),
				zap.Error(herr),
			)
			t.publish(&FailureEvent{
				AgentID_:   current.AgentID,
				Strategy:   current.Policy,
				Err:        herr,
				Kind:       EventFailureFatal,
				Timestamp_: t.now(),
			})
			outcome.FatalError = herr
			t.updateActiveGauge()
			return outcome, herr
		}

		herr = WrapChild(parent.AgentID, parent.ParentID, herr)
		current = parent
	}
}

// applyStrategyLocked 按失败节点的策略执行重启，返回按序重启的节点
func (t *Tree) applyStrategyLocked(ctx context.Context, failing *Node, herr *HierarchicalError) ([]string, error) {
	switch failing.Policy {
	case AllForOne:
		// 同父下全部兄弟（含自身），只有失败者的回调收到触发错误。
		// 已成功重启的兄弟不回滚。
		return t.restartGroupLocked(ctx, t.siblingsLocked(failing), failing.AgentID, herr)

	case RestForOne:
		// startOrder 不小于失败节点的兄弟，升序逐个重启，首个失败即中止
		group := make([]string, 0)
		for _, id := range t.siblingsLocked(failing) {
			if sibling, ok := t.nodes[id]; ok && sibling.StartOrder >= failing.StartOrder {
				group = append(group, id)
			}
		}
		return t.restartGroupLocked(ctx, group, failing.AgentID, herr)

	default: // one_for_one
		if err := t.restartNodeLocked(ctx, failing, herr); err != nil {
			return nil, err
		}
		return []string{failing.AgentID}, nil
	}
}

// siblingsLocked 返回同父下的兄弟集合（根节点的兄弟是根集合），注册顺序
func (t *Tree) siblingsLocked(node *Node) []string {
	if parent, ok := t.nodes[node.ParentID]; ok && node.ParentID != "" {
		return parent.Children
	}
	return t.roots
}

// restartGroupLocked 顺序重启一组节点，首个失败即中止并返回已重启的部分
func (t *Tree) restartGroupLocked(ctx context.Context, group []string, failingID string, herr *HierarchicalError) ([]string, error) {
	restarted := make([]string, 0, len(group))
	for _, id := range append([]string(nil), group...) {
		sibling, ok := t.nodes[id]
		if !ok {
			continue
		}
		var cause error
		if id == failingID {
			cause = herr
		}
		if err := t.restartNodeLocked(ctx, sibling, cause); err != nil {
			return restarted, err
		}
		restarted = append(restarted, id)
	}
	return restarted, nil
}

// restartNodeLocked 记录一次重启并执行回调；回调失败时节点留在 failed
func (t *Tree) restartNodeLocked(ctx context.Context, node *Node, cause error) error {
	t.restartHistory[node.AgentID] = append(t.restartHistory[node.AgentID], t.now())
	t.totalRestarts++

	node.Status = StatusRestarting
	if node.OnRestart != nil {
		if err := node.OnRestart(ctx, node.AgentID, cause); err != nil {
			node.Status = StatusFailed
			return err
		}
	}
	node.Status = StatusActive
	return nil
}
