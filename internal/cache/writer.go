package cache

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

var (
	// ErrStoreUnavailable 表示当前调用方未注入缓存 Registry。
	ErrStoreUnavailable = errors.New("cache store unavailable")
	// ErrTooLarge 表示响应体超过写入上限，只返回给调用方而不落缓存。
	ErrTooLarge = errors.New("response exceeds cache size limit")
)

// Writer 封装 write-through：按需打开（惰性创建）目标仓，并过滤不可缓存的响应。
type Writer struct {
	registry Registry
	maxBytes int64
}

// NewWriter 构造写入器；maxBytes <= 0 表示不限制正文大小。
func NewWriter(registry Registry, maxBytes int64) Writer {
	return Writer{registry: registry, maxBytes: maxBytes}
}

// Enabled 返回当前是否具备缓存写入能力。
func (w Writer) Enabled() bool {
	return w.registry != nil
}

// Put 将 resp 写入 storeName 仓。只有 GET + 2xx 的响应会被写入。
func (w Writer) Put(ctx context.Context, storeName string, key RequestKey, resp *Response) error {
	if w.registry == nil {
		return ErrStoreUnavailable
	}
	if !key.Cacheable() || !resp.OK() {
		return ErrNotCacheable
	}
	if w.maxBytes > 0 && int64(len(resp.Body)) > w.maxBytes {
		return ErrTooLarge
	}
	store, err := w.registry.Open(ctx, storeName)
	if err != nil {
		return fmt.Errorf("open %s: %w", storeName, err)
	}
	return store.Put(ctx, key, resp)
}

// Snapshot 读取完整正文并关闭 resp.Body，生成可缓存的不可变快照。
func Snapshot(resp *http.Response) (*Response, error) {
	if resp == nil {
		return nil, errors.New("nil response")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return &Response{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UTC(),
	}, nil
}

func ensureDir(dir string) error {
	if dir == "" || dir == "." {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}
