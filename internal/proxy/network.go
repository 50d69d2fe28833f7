package proxy

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/metrics"
	"github.com/any-hub/any-offline/internal/server"
	"github.com/any-hub/any-offline/internal/traffic"
)

// Fetcher 抽象一次网络请求，返回完整读取后的响应快照。
type Fetcher interface {
	Fetch(ctx context.Context, req *traffic.Request) (*cache.Response, error)
}

// NetworkFetcher 使用共享 http.Client 访问源站，每个请求都有独立的超时。
type NetworkFetcher struct {
	client  *http.Client
	app     string
	timeout time.Duration
}

// NewNetworkFetcher 构造抓取器；timeout <= 0 时仅受 client 自身超时约束。
func NewNetworkFetcher(client *http.Client, app string, timeout time.Duration) *NetworkFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &NetworkFetcher{client: client, app: app, timeout: timeout}
}

// Fetch 发起请求并读取完整正文。非 2xx 状态不视为错误，只有传输层失败才返回 error。
func (f *NetworkFetcher) Fetch(ctx context.Context, req *traffic.Request) (*cache.Response, error) {
	if req == nil || req.URL == nil {
		return nil, fmt.Errorf("fetch: missing request url")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var body *bytes.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	var httpReq *http.Request
	var err error
	if body != nil {
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL.String(), body)
	} else {
		httpReq, err = http.NewRequestWithContext(ctx, method, req.URL.String(), http.NoBody)
	}
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if req.Header != nil {
		server.CopyHeaders(httpReq.Header, req.Header)
	}
	httpReq.Header.Del("Host")
	// 交给 Transport 处理压缩，缓存中只保存解压后的正文。
	httpReq.Header.Del("Accept-Encoding")
	httpReq.Host = req.URL.Host

	started := time.Now()
	resp, err := f.client.Do(httpReq)
	if err != nil {
		metrics.ObserveFetch(f.app, "error", time.Since(started))
		return nil, err
	}
	snapshot, err := cache.Snapshot(resp)
	if err != nil {
		metrics.ObserveFetch(f.app, "error", time.Since(started))
		return nil, err
	}
	metrics.ObserveFetch(f.app, "ok", time.Since(started))

	for key := range snapshot.Header {
		if server.IsHopByHopHeader(key) {
			snapshot.Header.Del(key)
		}
	}
	snapshot.Header.Del("Content-Length")
	return snapshot, nil
}
