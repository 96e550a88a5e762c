package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/autoflow/workflow"
)

var _ workflow.ExecutionStore = (*ExecutionCache)(nil)

// Recorder 接收命中率指标，internal/metrics.Collector 实现了它
type Recorder interface {
	RecordCacheHit(cache string)
	RecordCacheMiss(cache string)
}

type nopRecorder struct{}

func (nopRecorder) RecordCacheHit(string)  {}
func (nopRecorder) RecordCacheMiss(string) {}

// ExecutionCacheOption 配置 ExecutionCache
type ExecutionCacheOption func(*ExecutionCache)

// WithRecorder 设置命中率指标接收者
func WithRecorder(r Recorder) ExecutionCacheOption {
	return func(c *ExecutionCache) {
		if r != nil {
			c.metrics = r
		}
	}
}

// ExecutionCache 是 workflow.ExecutionStore 的写穿缓存装饰器。
// 所有写入先落到底层存储，再同步更新 Redis 中的快照；轮询
// GetExecution 优先读缓存。缓存故障只记录日志，不影响存储结果。
type ExecutionCache struct {
	next    workflow.ExecutionStore
	manager *Manager
	ttl     time.Duration
	prefix  string
	logger  *zap.Logger
	metrics Recorder
}

// NewExecutionCache 包装底层执行存储
func NewExecutionCache(next workflow.ExecutionStore, manager *Manager, ttl time.Duration, logger *zap.Logger, opts ...ExecutionCacheOption) *ExecutionCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &ExecutionCache{
		next:    next,
		manager: manager,
		ttl:     ttl,
		prefix:  "autoflow:execution:",
		logger:  logger.With(zap.String("component", "execution_cache")),
		metrics: nopRecorder{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ExecutionCache) key(executionID string) string {
	return c.prefix + executionID
}

// CreateExecution 写入存储后缓存初始快照
func (c *ExecutionCache) CreateExecution(ctx context.Context, snap *workflow.Snapshot) error {
	if err := c.next.CreateExecution(ctx, snap); err != nil {
		return err
	}
	if err := c.manager.SetJSON(ctx, c.key(snap.ID), snap, c.ttl); err != nil {
		c.logger.Warn("cache execution failed", zap.String("execution_id", snap.ID), zap.Error(err))
	}
	return nil
}

// UpdateNode 写入存储后替换缓存快照中的节点
func (c *ExecutionCache) UpdateNode(ctx context.Context, executionID string, state workflow.NodeState) error {
	if err := c.next.UpdateNode(ctx, executionID, state); err != nil {
		return err
	}
	c.patch(ctx, executionID, func(snap *workflow.Snapshot) {
		for i := range snap.Nodes {
			if snap.Nodes[i].NodeID == state.NodeID {
				snap.Nodes[i] = state
				return
			}
		}
		snap.Nodes = append(snap.Nodes, state)
	})
	return nil
}

// FinishExecution 写入存储后更新缓存中的终态
func (c *ExecutionCache) FinishExecution(ctx context.Context, executionID string, status workflow.ExecutionStatus, errMsg string, finishedAt time.Time) error {
	if err := c.next.FinishExecution(ctx, executionID, status, errMsg, finishedAt); err != nil {
		return err
	}
	c.patch(ctx, executionID, func(snap *workflow.Snapshot) {
		snap.Status = status
		snap.Error = errMsg
		t := finishedAt
		snap.FinishedAt = &t
	})
	return nil
}

// GetExecution 优先读缓存，未命中时回源。只回填已终结的快照：
// 运行中的快照可能与并发的 UpdateNode/FinishExecution 交错，回填会覆盖更新的状态。
func (c *ExecutionCache) GetExecution(ctx context.Context, executionID string) (*workflow.Snapshot, error) {
	var snap workflow.Snapshot
	err := c.manager.GetJSON(ctx, c.key(executionID), &snap)
	if err == nil {
		c.metrics.RecordCacheHit("execution")
		return &snap, nil
	}
	c.metrics.RecordCacheMiss("execution")
	if !IsCacheMiss(err) {
		c.logger.Warn("read cached execution failed", zap.String("execution_id", executionID), zap.Error(err))
	}

	fresh, err := c.next.GetExecution(ctx, executionID)
	if err != nil {
		return nil, err
	}
	if !fresh.Status.IsTerminal() {
		return fresh, nil
	}
	if err := c.manager.SetJSON(ctx, c.key(executionID), fresh, c.ttl); err != nil {
		c.logger.Warn("backfill execution cache failed", zap.String("execution_id", executionID), zap.Error(err))
	}
	return fresh, nil
}

// patch 在 WATCH 事务内修改缓存快照。键不存在时跳过，下次读取会回源；
// 修改失败时删除键，避免读到过期状态。
func (c *ExecutionCache) patch(ctx context.Context, executionID string, apply func(*workflow.Snapshot)) {
	key := c.key(executionID)
	err := c.manager.Update(ctx, key, c.ttl, func(old string) (string, error) {
		var snap workflow.Snapshot
		if err := json.Unmarshal([]byte(old), &snap); err != nil {
			return "", err
		}
		apply(&snap)
		data, err := json.Marshal(&snap)
		if err != nil {
			return "", err
		}
		return string(data), nil
	})
	if err == nil || errors.Is(err, ErrCacheMiss) {
		return
	}

	c.logger.Warn("update execution cache failed", zap.String("execution_id", executionID), zap.Error(err))
	if err := c.manager.Delete(ctx, key); err != nil {
		c.logger.Error("evict execution cache failed", zap.String("execution_id", executionID), zap.Error(err))
	}
}
