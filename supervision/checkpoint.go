package supervision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrCheckpointNotFound 节点没有已保存的检查点
var ErrCheckpointNotFound = errors.New("checkpoint not found")

// Checkpoint 节点失败前保存的最后部分结果，后写覆盖
type Checkpoint struct {
	AgentID   string         `json:"agent_id"`
	Data      map[string]any `json:"data"`
	Timestamp time.Time      `json:"timestamp"`
}

// CheckpointStore 检查点存储接口
// 每个节点至多一份检查点；注销节点时调用 Delete 清除
type CheckpointStore interface {
	// Save 保存检查点（后写覆盖）
	Save(ctx context.Context, checkpoint *Checkpoint) error

	// Load 加载检查点，不存在时返回 ErrCheckpointNotFound
	Load(ctx context.Context, agentID string) (*Checkpoint, error)

	// Delete 删除检查点，不存在时不报错
	Delete(ctx context.Context, agentID string) error
}

// MemoryCheckpointStore 内存检查点存储
type MemoryCheckpointStore struct {
	mu          sync.RWMutex
	checkpoints map[string]*Checkpoint
}

// NewMemoryCheckpointStore 创建内存检查点存储
func NewMemoryCheckpointStore() *MemoryCheckpointStore {
	return &MemoryCheckpointStore{
		checkpoints: make(map[string]*Checkpoint),
	}
}

func (s *MemoryCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.checkpoints[checkpoint.AgentID] = checkpoint
	return nil
}

func (s *MemoryCheckpointStore) Load(ctx context.Context, agentID string) (*Checkpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	checkpoint, ok := s.checkpoints[agentID]
	if !ok {
		return nil, ErrCheckpointNotFound
	}
	return checkpoint, nil
}

func (s *MemoryCheckpointStore) Delete(ctx context.Context, agentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.checkpoints, agentID)
	return nil
}

// RedisCheckpointStore 基于 Redis 的检查点存储，JSON 序列化
type RedisCheckpointStore struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisCheckpointStore 创建 Redis 检查点存储
// ttl 为 0 时检查点不过期
func NewRedisCheckpointStore(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCheckpointStore {
	if prefix == "" {
		prefix = "swarmflow:checkpoint:"
	}
	return &RedisCheckpointStore{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (s *RedisCheckpointStore) key(agentID string) string {
	return s.prefix + agentID
}

func (s *RedisCheckpointStore) Save(ctx context.Context, checkpoint *Checkpoint) error {
	data, err := json.Marshal(checkpoint)
	if err != nil {
		return fmt.Errorf("marshal checkpoint for %s: %w", checkpoint.AgentID, err)
	}
	if err := s.client.Set(ctx, s.key(checkpoint.AgentID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save checkpoint for %s: %w", checkpoint.AgentID, err)
	}
	return nil
}

func (s *RedisCheckpointStore) Load(ctx context.Context, agentID string) (*Checkpoint, error) {
	data, err := s.client.Get(ctx, s.key(agentID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint for %s: %w", agentID, err)
	}
	var checkpoint Checkpoint
	if err := json.Unmarshal(data, &checkpoint); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint for %s: %w", agentID, err)
	}
	return &checkpoint, nil
}

func (s *RedisCheckpointStore) Delete(ctx context.Context, agentID string) error {
	if err := s.client.Del(ctx, s.key(agentID)).Err(); err != nil {
		return fmt.Errorf("delete checkpoint for %s: %w", agentID, err)
	}
	return nil
}
