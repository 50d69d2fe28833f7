package proxy

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/control"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/strategy"
	"github.com/any-hub/any-offline/internal/traffic"
)

func newTestInterceptor(t *testing.T, reg cache.Registry, fetcher Fetcher) *Interceptor {
	t.Helper()
	return NewInterceptor(InterceptorOptions{
		App:      "shop",
		Domain:   "shop.local",
		Origin:   mustURL(t, "https://app.local"),
		Manifest: []string{"/"},
		Registry: reg,
		Fetcher:  fetcher,
		Logger:   quietLogger(),
	})
}

func TestInterceptorPassesThroughBeforeActivation(t *testing.T) {
	fetcher := newSwitchFetcher(map[string]string{"https://app.local/": "home"})
	interceptor := newTestInterceptor(t, cache.NewMemoryRegistry(), fetcher)

	result, err := interceptor.Handle(context.Background(), getRequest(t, "https://app.local/", ""))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if result.Source != SourcePassthrough || result.Class != traffic.ClassNavigation {
		t.Fatalf("expected passthrough navigation, got %s %s", result.Source, result.Class)
	}

	fetcher.setOffline(true)
	if _, err := interceptor.Handle(context.Background(), getRequest(t, "https://app.local/", "")); !errors.Is(err, errOffline) {
		t.Fatalf("passthrough should surface network error, got %v", err)
	}
}

func TestInterceptorSkippedRequestSurfacesNetworkError(t *testing.T) {
	ctx := context.Background()
	fetcher := newSwitchFetcher(map[string]string{"https://app.local/": "home"})
	interceptor := newTestInterceptor(t, cache.NewMemoryRegistry(), fetcher)
	if _, err := interceptor.OnInstall(ctx, "1"); err != nil {
		t.Fatalf("install: %v", err)
	}
	fetcher.setOffline(true)

	post := &traffic.Request{Method: http.MethodPost, URL: mustURL(t, "https://app.local/api/items")}
	result, err := interceptor.Handle(ctx, post)
	if err == nil || result.Class != traffic.ClassSkipped {
		t.Fatalf("skipped request should fail with network error, got %v %s", err, result.Class)
	}

	nav, err := interceptor.Handle(ctx, getRequest(t, "https://app.local/orders", "document"))
	if err != nil {
		t.Fatalf("intercepted request must never fail: %v", err)
	}
	if nav.Source != SourceRoot || string(nav.Response.Body) != "home" {
		t.Fatalf("expected precached root, got %s", nav.Source)
	}
}

func TestInterceptorSkipWaitingCutsOver(t *testing.T) {
	ctx := context.Background()
	reg := cache.NewMemoryRegistry()
	fetcher := newSwitchFetcher(map[string]string{
		"https://app.local/":         "home",
		"https://app.local/logo.png": "logo",
	})
	interceptor := newTestInterceptor(t, reg, fetcher)

	if _, err := interceptor.OnInstall(ctx, "1"); err != nil {
		t.Fatalf("install v1: %v", err)
	}
	if _, err := interceptor.Handle(ctx, getRequest(t, "https://app.local/logo.png", traffic.DestinationImage)); err != nil {
		t.Fatalf("warm image: %v", err)
	}
	report, err := interceptor.OnInstall(ctx, "2")
	if err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if report.AutoActivated {
		t.Fatalf("second install must wait")
	}
	if status := interceptor.Status(); status.State != lifecycle.StateWaiting || status.Active.Version != "1" {
		t.Fatalf("unexpected status before skip waiting: %+v", status)
	}

	// 未知命令只记录日志。
	interceptor.OnControlMessage(ctx, control.Command{Type: "RELOAD"})
	if interceptor.Status().State != lifecycle.StateWaiting {
		t.Fatalf("unknown command must not change state")
	}

	interceptor.OnControlMessage(ctx, control.Command{Type: control.TypeSkipWaiting})
	status := interceptor.Status()
	if status.State != lifecycle.StateActivated || status.Active.Version != "2" || status.Waiting != nil {
		t.Fatalf("unexpected status after skip waiting: %+v", status)
	}
	stores, err := interceptor.Stores(ctx)
	if err != nil {
		t.Fatalf("stores: %v", err)
	}
	for _, name := range stores {
		if name == "static-v1" || name == "dynamic-v1" {
			t.Fatalf("v1 stores should be deleted, got %v", stores)
		}
	}

	// 第二次 SKIP_WAITING 没有等待中的代际，保持不变。
	interceptor.OnControlMessage(ctx, control.Command{Type: control.TypeSkipWaiting})
	if interceptor.Status().Active.Version != "2" {
		t.Fatalf("noop skip waiting changed active generation")
	}
}

func TestInterceptorProfilesReflectOverrides(t *testing.T) {
	set, err := strategy.ResolveSet(strategy.Overrides{Image: strategy.KeyCacheOnly})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	interceptor := NewInterceptor(InterceptorOptions{App: "shop", Strategies: set, Logger: quietLogger()})
	profiles := interceptor.Profiles()
	if profiles[traffic.ClassImage].Key != strategy.KeyCacheOnly {
		t.Fatalf("image override not applied: %+v", profiles[traffic.ClassImage])
	}
	if profiles[traffic.ClassNavigation].Key != strategy.KeyNetworkFirstShell {
		t.Fatalf("navigation should keep default: %+v", profiles[traffic.ClassNavigation])
	}
}
