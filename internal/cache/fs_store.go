package cache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// NewDiskRegistry 以 basePath 为根目录构建磁盘缓存。磁盘布局：
//
//	<basePath>/<storeName>/<sha1(method url)>.json
//
// 每个仓是一个目录，整仓删除即删除目录。
func NewDiskRegistry(basePath string) (Registry, error) {
	if basePath == "" {
		return nil, errors.New("storage path required")
	}

	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage path: %w", err)
	}

	return &diskRegistry{
		basePath: abs,
		locks:    make(map[string]*entryLock),
	}, nil
}

// diskRegistry 通过 entryLock 避免同一条目并发写入，同时复用 basePath。
type diskRegistry struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*entryLock
}

type entryLock struct {
	mu   sync.Mutex
	refs int
}

type diskStore struct {
	registry *diskRegistry
	name     string
	dir      string
}

// diskEntry 是落盘格式，保留 key 便于排查。
type diskEntry struct {
	Key      RequestKey `json:"key"`
	Response *Response  `json:"response"`
}

func (r *diskRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	dir := filepath.Join(r.basePath, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create store %s: %w", name, err)
	}
	return &diskStore{registry: r, name: name, dir: dir}, nil
}

func (r *diskRegistry) Has(_ context.Context, name string) (bool, error) {
	if err := validateStoreName(name); err != nil {
		return false, nil
	}
	info, err := os.Stat(filepath.Join(r.basePath, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return info.IsDir(), nil
}

func (r *diskRegistry) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(r.basePath)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() && !strings.HasPrefix(entry.Name(), ".") {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

func (r *diskRegistry) Delete(ctx context.Context, name string) (bool, error) {
	exists, err := r.Has(ctx, name)
	if err != nil || !exists {
		return false, err
	}
	if err := os.RemoveAll(filepath.Join(r.basePath, name)); err != nil {
		return false, err
	}
	return true, nil
}

func (s *diskStore) Name() string {
	return s.name
}

func (s *diskStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(s.entryPath(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var entry diskEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	if entry.Response == nil || entry.Key != key {
		return nil, ErrNotFound
	}
	return entry.Response, nil
}

func (s *diskStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}
	unlock := s.registry.lockEntry(s.name, key)
	defer unlock()

	stored := resp.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	data, err := json.Marshal(diskEntry{Key: key, Response: stored})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	// 仓目录可能已被激活阶段删除，这里按需重建（动态仓本就是惰性创建）。
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tempFile, err := os.CreateTemp(s.dir, ".cache-*")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()

	_, err = tempFile.Write(data)
	closeErr := tempFile.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tempName)
		return err
	}

	if err := os.Rename(tempName, s.entryPath(key)); err != nil {
		os.Remove(tempName)
		return err
	}
	return nil
}

func (s *diskStore) Delete(_ context.Context, key RequestKey) error {
	unlock := s.registry.lockEntry(s.name, key)
	defer unlock()

	if err := os.Remove(s.entryPath(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (s *diskStore) entryPath(key RequestKey) string {
	return filepath.Join(s.dir, hashKey(key)+".json")
}

func (r *diskRegistry) lockEntry(store string, key RequestKey) func() {
	lockKey := store + "::" + hashKey(key)
	r.mu.Lock()
	lock := r.locks[lockKey]
	if lock == nil {
		lock = &entryLock{}
		r.locks[lockKey] = lock
	}
	lock.refs++
	r.mu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		r.mu.Lock()
		lock.refs--
		if lock.refs == 0 {
			delete(r.locks, lockKey)
		}
		r.mu.Unlock()
	}
}

func hashKey(key RequestKey) string {
	sum := sha1.Sum([]byte(key.String()))
	return hex.EncodeToString(sum[:])
}
