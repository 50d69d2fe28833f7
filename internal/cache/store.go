package cache

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// RequestKey 唯一定位一个可缓存单元：绝对 URL + HTTP 方法。只有 GET 可写入缓存。
type RequestKey struct {
	Method string `json:"method"`
	URL    string `json:"url"`
}

// NewRequestKey 规范化方法名并去掉 fragment，保证同一资源得到同一个 key。
func NewRequestKey(method string, u *url.URL) RequestKey {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		method = http.MethodGet
	}
	if u == nil {
		return RequestKey{Method: method}
	}
	clean := *u
	clean.Fragment = ""
	clean.RawFragment = ""
	return RequestKey{Method: method, URL: clean.String()}
}

// Cacheable 表示该 key 是否允许进入缓存。
func (k RequestKey) Cacheable() bool {
	return k.Method == http.MethodGet && k.URL != ""
}

func (k RequestKey) String() string {
	return k.Method + " " + k.URL
}

// Response 是一次成功响应的不可变快照（状态码、头、正文）。
type Response struct {
	Status   int         `json:"status"`
	Header   http.Header `json:"header"`
	Body     []byte      `json:"body"`
	StoredAt time.Time   `json:"stored_at"`
}

// OK 对应 2xx 状态码。
func (r *Response) OK() bool {
	return r != nil && r.Status >= 200 && r.Status < 300
}

// Clone 深拷贝响应，写入与读出缓存时都应使用副本，避免调用方修改共享数据。
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	cloned := &Response{
		Status:   r.Status,
		Header:   r.Header.Clone(),
		StoredAt: r.StoredAt,
	}
	if cloned.Header == nil {
		cloned.Header = http.Header{}
	}
	if r.Body != nil {
		cloned.Body = append([]byte(nil), r.Body...)
	}
	return cloned
}

// Store 是一个具名、带版本的缓存仓，保存 RequestKey → Response。
// 实现必须保证单 key 的 Put/Match 原子，重复 Put 以最后一次为准。
type Store interface {
	// Name 返回仓名，例如 static-v1。
	Name() string

	// Match 返回缓存快照；不存在时返回 ErrNotFound。
	Match(ctx context.Context, key RequestKey) (*Response, error)

	// Put 覆盖写入 key 对应的响应。非 GET key 返回 ErrNotCacheable。
	Put(ctx context.Context, key RequestKey, resp *Response) error

	// Delete 删除单个条目，不存在时不报错。
	Delete(ctx context.Context, key RequestKey) error
}

// Registry 管理所有具名缓存仓，Open 幂等，首次使用时创建。
type Registry interface {
	Open(ctx context.Context, name string) (Store, error)
	Has(ctx context.Context, name string) (bool, error)
	// Keys 返回按名称排序的现存仓名。
	Keys(ctx context.Context) ([]string, error)
	// Delete 整仓删除，返回该仓此前是否存在。
	Delete(ctx context.Context, name string) (bool, error)
}

var (
	// ErrNotFound 表示缓存不存在。
	ErrNotFound = errors.New("cache entry not found")
	// ErrNotCacheable 表示请求方法不允许缓存（只有 GET 可写）。
	ErrNotCacheable = errors.New("request is not cacheable")
	// ErrInvalidStoreName 表示仓名为空或包含路径分隔符。
	ErrInvalidStoreName = errors.New("invalid store name")
)

func validateStoreName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || trimmed != name {
		return ErrInvalidStoreName
	}
	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return ErrInvalidStoreName
	}
	return nil
}

func checkPut(key RequestKey, resp *Response) error {
	if !key.Cacheable() {
		return ErrNotCacheable
	}
	if resp == nil {
		return errors.New("response required")
	}
	return nil
}
