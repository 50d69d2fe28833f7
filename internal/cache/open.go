package cache

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// 支持的存储后端。
const (
	BackendMemory = "memory"
	BackendDisk   = "disk"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Options 描述 Open 需要的后端参数，由 config.GlobalConfig 映射而来。
type Options struct {
	Backend       string
	Path          string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// Open 按 Backend 构建共享 Registry。返回的 io.Closer 在进程退出时调用，
// 对无需释放资源的后端为 no-op。
func Open(opts Options) (Registry, io.Closer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Backend)) {
	case BackendMemory:
		return NewMemoryRegistry(), nopCloser{}, nil
	case "", BackendDisk:
		reg, err := NewDiskRegistry(opts.Path)
		if err != nil {
			return nil, nil, err
		}
		return reg, nopCloser{}, nil
	case BackendSQLite:
		path := opts.Path
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "cache.db")
		}
		if err := ensureDir(filepath.Dir(path)); err != nil {
			return nil, nil, err
		}
		reg, err := NewSQLiteRegistry(path)
		if err != nil {
			return nil, nil, err
		}
		return reg, reg, nil
	case BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     opts.RedisAddr,
			Password: opts.RedisPassword,
			DB:       opts.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		reg := NewRedisRegistry(client, opts.RedisPrefix)
		return reg, reg, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", opts.Backend)
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
