package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisPrefix = "any-offline"

// RedisRegistry 将仓名记录在 <prefix>:stores 集合中，每个仓对应一个
// <prefix>:store:<name> hash，field 为 RequestKey，value 为 JSON 快照。
type RedisRegistry struct {
	client *redis.Client
	prefix string
}

type redisStore struct {
	registry *RedisRegistry
	name     string
}

// NewRedisRegistry 基于已有 client 构建 Registry，prefix 为空时使用默认值。
func NewRedisRegistry(client *redis.Client, prefix string) *RedisRegistry {
	if client == nil {
		panic("redis client cannot be nil")
	}
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisRegistry{client: client, prefix: prefix}
}

// Close 关闭 redis 连接。
func (r *RedisRegistry) Close() error {
	return r.client.Close()
}

func (r *RedisRegistry) storesKey() string {
	return r.prefix + ":stores"
}

func (r *RedisRegistry) storeKey(name string) string {
	return r.prefix + ":store:" + name
}

func (r *RedisRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := r.client.SAdd(ctx, r.storesKey(), name).Err(); err != nil {
		return nil, fmt.Errorf("redis sadd: %w", err)
	}
	return &redisStore{registry: r, name: name}, nil
}

func (r *RedisRegistry) Has(ctx context.Context, name string) (bool, error) {
	ok, err := r.client.SIsMember(ctx, r.storesKey(), name).Result()
	if err != nil {
		return false, fmt.Errorf("redis sismember: %w", err)
	}
	return ok, nil
}

func (r *RedisRegistry) Keys(ctx context.Context) ([]string, error) {
	names, err := r.client.SMembers(ctx, r.storesKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("redis smembers: %w", err)
	}
	sort.Strings(names)
	return names, nil
}

func (r *RedisRegistry) Delete(ctx context.Context, name string) (bool, error) {
	var removed *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.storeKey(name))
		removed = pipe.SRem(ctx, r.storesKey(), name)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis delete store: %w", err)
	}
	return removed.Val() > 0, nil
}

func (s *redisStore) Name() string {
	return s.name
}

func (s *redisStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	data, err := s.registry.client.HGet(ctx, s.registry.storeKey(s.name), key.String()).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis hget: %w", err)
	}
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &resp, nil
}

func (s *redisStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}
	stored := resp.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	_, err = s.registry.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, s.registry.storesKey(), s.name)
		pipe.HSet(ctx, s.registry.storeKey(s.name), key.String(), data)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis put: %w", err)
	}
	return nil
}

func (s *redisStore) Delete(ctx context.Context, key RequestKey) error {
	if err := s.registry.client.HDel(ctx, s.registry.storeKey(s.name), key.String()).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}
