package cache

import (
	"context"
	"strings"
)

const scopeSeparator = "~"

// Scoped 为 base 加上命名空间前缀，多个 App 共享同一后端时互不可见。
// 仓名在底层存储为 <namespace>~<name>。
func Scoped(base Registry, namespace string) Registry {
	if namespace == "" {
		return base
	}
	return &scopedRegistry{base: base, prefix: namespace + scopeSeparator}
}

type scopedRegistry struct {
	base   Registry
	prefix string
}

type scopedStore struct {
	Store
	name string
}

func (s *scopedStore) Name() string {
	return s.name
}

func (r *scopedRegistry) Open(ctx context.Context, name string) (Store, error) {
	if err := validateStoreName(name); err != nil {
		return nil, err
	}
	store, err := r.base.Open(ctx, r.prefix+name)
	if err != nil {
		return nil, err
	}
	return &scopedStore{Store: store, name: name}, nil
}

func (r *scopedRegistry) Has(ctx context.Context, name string) (bool, error) {
	return r.base.Has(ctx, r.prefix+name)
}

func (r *scopedRegistry) Keys(ctx context.Context) ([]string, error) {
	all, err := r.base.Keys(ctx)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range all {
		if strings.HasPrefix(name, r.prefix) {
			names = append(names, strings.TrimPrefix(name, r.prefix))
		}
	}
	return names, nil
}

func (r *scopedRegistry) Delete(ctx context.Context, name string) (bool, error) {
	return r.base.Delete(ctx, r.prefix+name)
}
