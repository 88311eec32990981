package bounds

import (
	"context"
	"sync"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrActionsNotCached 表示指定策略的动作列表不在缓存中。
// 缓存只是便利设施：丢失它只会让证明无法重新生成，
// 不影响已签发证明的正确性。
var ErrActionsNotCached = xerrors.New(xerrors.CodeNotFound, "policy actions not cached")

// Cache 保存注册方自留的动作列表，按策略标识索引。
type Cache interface {
	Put(ctx context.Context, policyID common.Hash, actions []ActionBound) error
	Get(ctx context.Context, policyID common.Hash) ([]ActionBound, error)
	Delete(ctx context.Context, policyID common.Hash) error
	Close() error
}

// MemoryCache 以内存方式保存动作列表，主要用于测试与单机运行。
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[common.Hash][]ActionBound
}

// NewMemoryCache 创建 MemoryCache。
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[common.Hash][]ActionBound)}
}

// Put 实现 Cache 接口。
func (c *MemoryCache) Put(_ context.Context, policyID common.Hash, actions []ActionBound) error {
	if len(actions) == 0 {
		return xerrors.New(xerrors.CodeEmptyActionList, "")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[policyID] = append([]ActionBound{}, actions...)
	return nil
}

// Get 实现 Cache 接口。
func (c *MemoryCache) Get(_ context.Context, policyID common.Hash) ([]ActionBound, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	actions, ok := c.entries[policyID]
	if !ok {
		return nil, ErrActionsNotCached
	}
	return append([]ActionBound{}, actions...), nil
}

// Delete 实现 Cache 接口。
func (c *MemoryCache) Delete(_ context.Context, policyID common.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, policyID)
	return nil
}

// Close 对内存缓存无需操作。
func (c *MemoryCache) Close() error {
	return nil
}

var _ Cache = (*MemoryCache)(nil)
