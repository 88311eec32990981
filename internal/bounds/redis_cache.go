package bounds

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"fmt"
	"time"

	xerrors "AgentPact-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
)

// RedisCacheConfig 描述 Redis 缓存的连接参数。
type RedisCacheConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisCache 使用 Redis 保存动作列表，供多进程共享证明生成所需的
// 见证集合。
type RedisCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisCache 创建 RedisCache 实例。
func NewRedisCache(cfg RedisCacheConfig) (*RedisCache, error) {
	if cfg.Address == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "Redis address 不能为空")
	}
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "agentpact:bounds"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 Redis 失败")
	}
	return &RedisCache{client: client, prefix: prefix, ttl: cfg.TTL}, nil
}

// Put 实现 Cache 接口。
func (c *RedisCache) Put(ctx context.Context, policyID common.Hash, actions []ActionBound) error {
	if len(actions) == 0 {
		return xerrors.New(xerrors.CodeEmptyActionList, "")
	}
	payload, err := json.Marshal(actions)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "序列化动作列表失败")
	}
	if err := c.client.Set(ctx, c.key(policyID), payload, c.ttl).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入 Redis 失败")
	}
	return nil
}

// Get 实现 Cache 接口。
func (c *RedisCache) Get(ctx context.Context, policyID common.Hash) ([]ActionBound, error) {
	payload, err := c.client.Get(ctx, c.key(policyID)).Bytes()
	if err != nil {
		if stdErrors.Is(err, redis.Nil) {
			return nil, ErrActionsNotCached
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取 Redis 失败")
	}
	var actions []ActionBound
	if err := json.Unmarshal(payload, &actions); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析动作列表失败")
	}
	return actions, nil
}

// Delete 实现 Cache 接口。
func (c *RedisCache) Delete(ctx context.Context, policyID common.Hash) error {
	if err := c.client.Del(ctx, c.key(policyID)).Err(); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除 Redis 键失败")
	}
	return nil
}

// Close 释放 Redis 连接。
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) key(policyID common.Hash) string {
	return fmt.Sprintf("%s:%s", c.prefix, policyID.Hex())
}

var _ Cache = (*RedisCache)(nil)
