package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/config"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/proxy"
	"github.com/any-hub/any-offline/internal/server"
)

func TestBootstrapAppsInstallsConfiguredVersion(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/" {
			_, _ = w.Write([]byte("<shell>"))
			return
		}
		http.NotFound(w, r)
	}))
	defer upstream.Close()

	cfg := &config.Config{
		Global: config.GlobalConfig{ListenPort: 5000, MaxBodyBytes: 1 << 20},
		Apps: []config.AppConfig{{
			Name:     "shop",
			Domain:   "shop.offline.local",
			Origin:   upstream.URL,
			Version:  "v2",
			Precache: []string{"/", "/missing.css"},
		}},
	}
	registry, err := server.NewAppRegistry(cfg)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	stores := cache.NewMemoryRegistry()
	// 上一次运行遗留的旧代际仓应在激活时被清理。
	if _, err := cache.Scoped(stores, "shop").Open(context.Background(), "static-v1"); err != nil {
		t.Fatalf("seed legacy store: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	forwarder := proxy.NewForwarder(nil, logger)
	if err := bootstrapApps(ctx, cfg, registry, stores, upstream.Client(), forwarder, logger); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	defer closeControlChannels(forwarder)

	reg, ok := forwarder.Lookup("shop")
	if !ok || reg.Control == nil {
		t.Fatalf("shop should be registered with a control channel")
	}
	status := reg.Interceptor.Status()
	if status.State != lifecycle.StateActivated || status.Active.Version != "2" {
		t.Fatalf("unexpected lifecycle status: %+v", status)
	}
	names, err := reg.Interceptor.Stores(ctx)
	if err != nil {
		t.Fatalf("stores: %v", err)
	}
	if len(names) != 1 || names[0] != "static-v2" {
		t.Fatalf("expected only static-v2 to remain, got %v", names)
	}
}

func TestBodyLimit(t *testing.T) {
	if bodyLimit(0) != 0 || bodyLimit(-1) != 0 {
		t.Fatalf("non-positive limits should defer to fiber default")
	}
	if bodyLimit(1024) != 1024 {
		t.Fatalf("limit should pass through")
	}
}
