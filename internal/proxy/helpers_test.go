package proxy

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/traffic"
)

var errOffline = errors.New("network unreachable")

// switchFetcher 模拟可切换在线/离线的网络。
type switchFetcher struct {
	mu      sync.Mutex
	offline bool
	bodies  map[string]string
	calls   []string
}

func newSwitchFetcher(bodies map[string]string) *switchFetcher {
	return &switchFetcher{bodies: bodies}
}

func (f *switchFetcher) setOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

func (f *switchFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *switchFetcher) Fetch(_ context.Context, req *traffic.Request) (*cache.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := req.URL.String()
	f.calls = append(f.calls, req.Method+" "+target)
	if f.offline {
		return nil, errOffline
	}
	body, ok := f.bodies[target]
	if !ok {
		return &cache.Response{Status: http.StatusNotFound, Header: http.Header{}, Body: []byte("missing")}, nil
	}
	header := http.Header{}
	header.Set("Content-Type", "text/plain")
	return &cache.Response{Status: http.StatusOK, Header: header, Body: []byte(body)}, nil
}

// brokenRegistry 所有操作都失败，用来验证仓错误按未命中处理。
type brokenRegistry struct{}

var errBroken = errors.New("storage offline")

func (brokenRegistry) Open(context.Context, string) (cache.Store, error) { return nil, errBroken }
func (brokenRegistry) Has(context.Context, string) (bool, error)         { return false, errBroken }
func (brokenRegistry) Keys(context.Context) ([]string, error)            { return nil, errBroken }
func (brokenRegistry) Delete(context.Context, string) (bool, error)      { return false, errBroken }

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("parse %s: %v", raw, err)
	}
	return u
}

func getRequest(t *testing.T, raw, destination string) *traffic.Request {
	t.Helper()
	return &traffic.Request{Method: http.MethodGet, URL: mustURL(t, raw), Destination: destination}
}
