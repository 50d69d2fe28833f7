package cache

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemoryRegistry 返回进程内缓存，适合测试或无需持久化的部署。
func NewMemoryRegistry() Registry {
	return &memoryRegistry{stores: make(map[string]*memoryStore)}
}

type memoryRegistry struct {
	mu     sync.RWMutex
	stores map[string]*memoryStore
}

type memoryStore struct {
	name string

	mu      sync.RWMutex
	entries map[string]*Response
}

func (r *memoryRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	store, ok := r.stores[name]
	if !ok {
		store = &memoryStore{name: name, entries: make(map[string]*Response)}
		r.stores[name] = store
	}
	return store, nil
}

func (r *memoryRegistry) Has(_ context.Context, name string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.stores[name]
	return ok, nil
}

func (r *memoryRegistry) Keys(_ context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.stores))
	for name := range r.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (r *memoryRegistry) Delete(_ context.Context, name string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.stores[name]
	delete(r.stores, name)
	return ok, nil
}

func (s *memoryStore) Name() string {
	return s.name
}

func (s *memoryStore) Match(ctx context.Context, key RequestKey) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	resp, ok := s.entries[key.String()]
	if !ok {
		return nil, ErrNotFound
	}
	return resp.Clone(), nil
}

func (s *memoryStore) Put(ctx context.Context, key RequestKey, resp *Response) error {
	if err := checkPut(key, resp); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	stored := resp.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now().UTC()
	}
	s.mu.Lock()
	s.entries[key.String()] = stored
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, key RequestKey) error {
	s.mu.Lock()
	delete(s.entries, key.String())
	s.mu.Unlock()
	return nil
}
