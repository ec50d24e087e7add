package supervision

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/swarmflow/config"
	"github.com/BaSui01/swarmflow/internal/metrics"
	"github.com/BaSui01/swarmflow/types"
	"go.uber.org/zap"
)

// Tree Erlang 风格监督树：节点注册、失败处理、重启策略、检查点与孤儿清理。
//
// 所有公开方法持有树锁；重启/终止回调在锁内执行，回调内不得再调用树方法。
type Tree struct {
	mu           sync.Mutex
	nodes        map[string]*Node
	roots        []string
	startCounter int64

	// 每个节点的重启时间戳，只在判定时按窗口过滤，不主动裁剪
	restartHistory map[string][]time.Time
	totalRestarts  int64

	checkpoints CheckpointStore
	bus         EventBus
	collector   *metrics.Collector
	logger      *zap.Logger

	maxDepth      int
	maxRestarts   int
	restartWindow time.Duration

	// 可注入时钟，重启窗口测试用
	now func() time.Time
}

// TreeOption 配置 Tree 的可选项
type TreeOption func(*Tree)

// WithCheckpointStore 注入检查点存储（默认内存存储）
func WithCheckpointStore(store CheckpointStore) TreeOption {
	return func(t *Tree) { t.checkpoints = store }
}

// WithEventBus 注入事件总线
func WithEventBus(bus EventBus) TreeOption {
	return func(t *Tree) { t.bus = bus }
}

// WithTreeMetrics 注入 Prometheus 指标收集器
func WithTreeMetrics(c *metrics.Collector) TreeOption {
	return func(t *Tree) { t.collector = c }
}

// NewTree 创建监督树
func NewTree(cfg config.SupervisionConfig, logger *zap.Logger, opts ...TreeOption) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	defaults := config.DefaultSupervisionConfig()
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaults.MaxDepth
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = defaults.MaxRestarts
	}
	if cfg.RestartWindow <= 0 {
		cfg.RestartWindow = defaults.RestartWindow
	}

	t := &Tree{
		nodes:          make(map[string]*Node),
		restartHistory: make(map[string][]time.Time),
		logger:         logger.With(zap.String("component", "supervision_tree")),
		maxDepth:       cfg.MaxDepth,
		maxRestarts:    cfg.MaxRestarts,
		restartWindow:  cfg.RestartWindow,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.checkpoints == nil {
		t.checkpoints = NewMemoryCheckpointStore()
	}
	if t.bus == nil {
		t.bus = NewEventBus(logger)
	}
	return t
}

// Register 注册节点。
// 校验全部通过后才发生任何变更：重复 ID、未注册的父节点、超出 maxDepth
// 都同步报错且不留痕迹。
func (t *Tree) Register(agentID string, opts RegisterOptions) (*Node, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.nodes[agentID]; exists {
		return nil, types.NewError(types.ErrNodeExists, "node already registered: "+agentID)
	}

	depth := 0
	var parent *Node
	if opts.ParentID != "" {
		var ok bool
		parent, ok = t.nodes[opts.ParentID]
		if !ok {
			return nil, types.NewError(types.ErrParentNotFound, "parent not registered: "+opts.ParentID)
		}
		depth = parent.Depth + 1
	}
	if depth > t.maxDepth {
		return nil, types.NewError(types.ErrMaxDepthExceeded, "node depth exceeds max: "+agentID)
	}

	policy := opts.Policy
	if policy == "" {
		policy = OneForOne
	}

	t.startCounter++
	node := &Node{
		AgentID:      agentID,
		ParentID:     opts.ParentID,
		Children:     []string{},
		Status:       StatusActive,
		Depth:        depth,
		Policy:       policy,
		StartOrder:   t.startCounter,
		RegisteredAt: t.now(),
		OnRestart:    opts.OnRestart,
		OnTerminate:  opts.OnTerminate,
	}
	t.nodes[agentID] = node
	if parent != nil {
		parent.Children = append(parent.Children, agentID)
	} else {
		t.roots = append(t.roots, agentID)
	}

	t.logger.Info("node registered",
		zap.String("agent_id", agentID),
		zap.String("parent_id", opts.ParentID),
		zap.Int("depth", depth),
		zap.String("policy", string(policy)),
	)
	t.publish(&NodeEvent{
		AgentID_:   agentID,
		ParentID:   opts.ParentID,
		Depth:      depth,
		Kind:       EventNodeRegistered,
		Timestamp_: t.now(),
	})
	t.updateActiveGauge()
	return node, nil
}

// Unregister 注销节点：后序移除整个子树，清除重启历史与检查点
func (t *Tree) Unregister(ctx context.Context, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[agentID]
	if !ok {
		return types.NewError(types.ErrNodeNotFound, "node not found: "+agentID)
	}

	t.detachLocked(node)
	t.removeSubtreeLocked(ctx, node)
	t.updateActiveGauge()
	return nil
}

// detachLocked 从父节点的子列表或根集合中摘除
func (t *Tree) detachLocked(node *Node) {
	if parent, ok := t.nodes[node.ParentID]; ok && node.ParentID != "" {
		parent.Children = removeID(parent.Children, node.AgentID)
	} else {
		t.roots = removeID(t.roots, node.AgentID)
	}
}

// removeSubtreeLocked 后序移除子树并清除每个节点的历史与检查点
func (t *Tree) removeSubtreeLocked(ctx context.Context, node *Node) {
	for _, childID := range append([]string(nil), node.Children...) {
		if child, ok := t.nodes[childID]; ok {
			t.removeSubtreeLocked(ctx, child)
		}
	}

	delete(t.nodes, node.AgentID)
	delete(t.restartHistory, node.AgentID)
	if err := t.checkpoints.Delete(ctx, node.AgentID); err != nil {
		t.logger.Warn("checkpoint purge failed",
			zap.String("agent_id", node.AgentID),
			zap.Error(err),
		)
	}

	t.logger.Debug("node unregistered", zap.String("agent_id", node.AgentID))
	t.publish(&NodeEvent{
		AgentID_:   node.AgentID,
		ParentID:   node.ParentID,
		Depth:      node.Depth,
		Kind:       EventNodeUnregistered,
		Timestamp_: t.now(),
	})
}

// Terminate 后序终止子树；终止回调尽力而为，失败只记日志。
// 节点保留在注册表中，状态为 terminated。
func (t *Tree) Terminate(ctx context.Context, agentID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	node, ok := t.nodes[agentID]
	if !ok {
		return types.NewError(types.ErrNodeNotFound, "node not found: "+agentID)
	}
	t.terminateSubtreeLocked(ctx, node)
	t.updateActiveGauge()
	return nil
}

func (t *Tree) terminateSubtreeLocked(ctx context.Context, node *Node) {
	if node.Status == StatusTerminated {
		return
	}
	for _, childID := range node.Children {
		if child, ok := t.nodes[childID]; ok {
			t.terminateSubtreeLocked(ctx, child)
		}
	}

	if node.OnTerminate != nil {
		if err := node.OnTerminate(ctx, node.AgentID); err != nil {
			t.logger.Warn("terminate callback failed",
				zap.String("agent_id", node.AgentID),
				zap.Error(err),
			)
		}
	}
	node.Status = StatusTerminated

	t.logger.Info("node terminated", zap.String("agent_id", node.AgentID))
	t.publish(&NodeEvent{
		AgentID_:   node.AgentID,
		ParentID:   node.ParentID,
		Depth:      node.Depth,
		Kind:       EventNodeTerminated,
		Timestamp_: t.now(),
	})
}

// SaveCheckpoint 保存节点检查点，后写覆盖
func (t *Tree) SaveCheckpoint(ctx context.Context, agentID string, data map[string]any) error {
	t.mu.Lock()
	_, ok := t.nodes[agentID]
	t.mu.Unlock()
	if !ok {
		return types.NewError(types.ErrNodeNotFound, "node not found: "+agentID)
	}

	checkpoint := &Checkpoint{
		AgentID:   agentID,
		Data:      data,
		Timestamp: t.now(),
	}
	if err := t.checkpoints.Save(ctx, checkpoint); err != nil {
		return err
	}
	if t.collector != nil {
		t.collector.RecordCheckpointSaved()
	}
	return nil
}

// GetCheckpoint 读取节点检查点
func (t *Tree) GetCheckpoint(ctx context.Context, agentID string) (*Checkpoint, error) {
	return t.checkpoints.Load(ctx, agentID)
}

// DetectOrphans 返回父节点缺失、已终止或已失败的节点 ID，按注册顺序
func (t *Tree) DetectOrphans() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.detectOrphansLocked()
}

func (t *Tree) detectOrphansLocked() []string {
	orphans := make([]*Node, 0)
	for _, node := range t.nodes {
		if node.ParentID == "" {
			continue
		}
		parent, ok := t.nodes[node.ParentID]
		if !ok || parent.Status == StatusTerminated || parent.Status == StatusFailed {
			orphans = append(orphans, node)
		}
	}
	sort.Slice(orphans, func(i, j int) bool {
		return orphans[i].StartOrder < orphans[j].StartOrder
	})

	ids := make([]string, len(orphans))
	for i, n := range orphans {
		ids[i] = n.AgentID
	}
	return ids
}

// CleanupOrphans 终止并注销单次扫描发现的所有孤儿，返回清理数量。
// 清理过程中新产生的级联孤儿不在本次调用内重扫。
func (t *Tree) CleanupOrphans(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	orphans := t.detectOrphansLocked()
	cleaned := 0
	for _, id := range orphans {
		node, ok := t.nodes[id]
		if !ok {
			// 已随先前孤儿的子树一并移除
			continue
		}
		t.terminateSubtreeLocked(ctx, node)
		t.detachLocked(node)
		t.removeSubtreeLocked(ctx, node)
		cleaned++
	}

	if cleaned > 0 {
		t.logger.Info("orphans cleaned", zap.Int("count", cleaned))
		if t.collector != nil {
			t.collector.RecordOrphansCleaned(cleaned)
		}
	}
	t.updateActiveGauge()
	return cleaned
}

// HierarchyNode GetHierarchy 返回的树形视图节点
type HierarchyNode struct {
	AgentID  string           `json:"agent_id"`
	Status   Status           `json:"status"`
	Depth    int              `json:"depth"`
	Policy   RestartPolicy    `json:"policy"`
	Children []*HierarchyNode `json:"children,omitempty"`
}

// GetHierarchy 返回整棵树的层级视图，根节点按注册顺序
func (t *Tree) GetHierarchy() []*HierarchyNode {
	t.mu.Lock()
	defer t.mu.Unlock()

	views := make([]*HierarchyNode, 0, len(t.roots))
	for _, rootID := range t.roots {
		if root, ok := t.nodes[rootID]; ok {
			views = append(views, t.hierarchyLocked(root))
		}
	}
	return views
}

func (t *Tree) hierarchyLocked(node *Node) *HierarchyNode {
	view := &HierarchyNode{
		AgentID: node.AgentID,
		Status:  node.Status,
		Depth:   node.Depth,
		Policy:  node.Policy,
	}
	for _, childID := range node.Children {
		if child, ok := t.nodes[childID]; ok {
			view.Children = append(view.Children, t.hierarchyLocked(child))
		}
	}
	return view
}

// AgentsAtDepth 返回指定深度的节点 ID，按注册顺序
func (t *Tree) AgentsAtDepth(depth int) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	found := make([]*Node, 0)
	for _, node := range t.nodes {
		if node.Depth == depth {
			found = append(found, node)
		}
	}
	sort.Slice(found, func(i, j int) bool {
		return found[i].StartOrder < found[j].StartOrder
	})

	ids := make([]string, len(found))
	for i, n := range found {
		ids[i] = n.AgentID
	}
	return ids
}

// TreeStats 监督树统计
type TreeStats struct {
	Nodes         int   `json:"nodes"`
	Roots         int   `json:"roots"`
	Active        int   `json:"active"`
	Restarting    int   `json:"restarting"`
	Failed        int   `json:"failed"`
	Terminated    int   `json:"terminated"`
	TotalRestarts int64 `json:"total_restarts"`
}

// Stats 返回统计信息
func (t *Tree) Stats() TreeStats {
	t.mu.Lock()
	defer t.mu.Unlock()

	stats := TreeStats{
		Nodes:         len(t.nodes),
		Roots:         len(t.roots),
		TotalRestarts: t.totalRestarts,
	}
	for _, node := range t.nodes {
		switch node.Status {
		case StatusActive:
			stats.Active++
		case StatusRestarting:
			stats.Restarting++
		case StatusFailed:
			stats.Failed++
		case StatusTerminated:
			stats.Terminated++
		}
	}
	return stats
}

// Clear 清空整棵树，清除全部重启历史与检查点
func (t *Tree) Clear(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for agentID := range t.nodes {
		if err := t.checkpoints.Delete(ctx, agentID); err != nil {
			t.logger.Warn("checkpoint purge failed",
				zap.String("agent_id", agentID),
				zap.Error(err),
			)
		}
	}
	t.nodes = make(map[string]*Node)
	t.roots = nil
	t.restartHistory = make(map[string][]time.Time)
	t.startCounter = 0
	t.logger.Info("supervision tree cleared")
	t.updateActiveGauge()
}

// restartEligibleLocked 窗口内的重启次数低于 maxRestarts 才允许重启。
// 时间戳只过滤，不裁剪。
func (t *Tree) restartEligibleLocked(agentID string) bool {
	cutoff := t.now().Add(-t.restartWindow)
	inWindow := 0
	for _, ts := range t.restartHistory[agentID] {
		if ts.After(cutoff) {
			inWindow++
		}
	}
	return inWindow < t.maxRestarts
}

func (t *Tree) publish(event Event) {
	if t.bus != nil {
		t.bus.Publish(event)
	}
}

func (t *Tree) updateActiveGauge() {
	if t.collector == nil {
		return
	}
	active := 0
	for _, node := range t.nodes {
		if node.Status == StatusActive {
			active++
		}
	}
	t.collector.SetActiveNodes(active)
}

// IsCheckpointNotFound 判断是否为"检查点不存在"
func IsCheckpointNotFound(err error) bool {
	return errors.Is(err, ErrCheckpointNotFound)
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}
