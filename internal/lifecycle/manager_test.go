package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/traffic"
)

type stubFetcher struct {
	mu       sync.Mutex
	bodies   map[string]string
	statuses map[string]int
	calls    []string
}

func (f *stubFetcher) Fetch(_ context.Context, req *traffic.Request) (*cache.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := req.URL.String()
	f.calls = append(f.calls, target)
	if status, ok := f.statuses[target]; ok {
		return &cache.Response{Status: status}, nil
	}
	body, ok := f.bodies[target]
	if !ok {
		return nil, errors.New("network unreachable")
	}
	return &cache.Response{Status: http.StatusOK, Body: []byte(body)}, nil
}

func newTestManager(t *testing.T, reg cache.Registry, fetcher Fetcher, manifest ...string) *Manager {
	t.Helper()
	origin, _ := url.Parse("https://app.local")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return NewManager(Options{
		App:      "shop",
		Origin:   origin,
		Manifest: manifest,
		Registry: reg,
		Fetcher:  fetcher,
		Logger:   logger,
	})
}

func TestNewGenerationNames(t *testing.T) {
	gen := NewGeneration("v2")
	if gen.Version != "2" || gen.Static != "static-v2" || gen.Dynamic != "dynamic-v2" {
		t.Fatalf("unexpected generation: %+v", gen)
	}
	if !gen.Owns("dynamic-v2") || gen.Owns("dynamic-v1") {
		t.Fatalf("owns mismatch")
	}
	if NewGeneration("1.4.0").Static != "static-v1.4.0" {
		t.Fatalf("dotted versions should be kept")
	}
}

func TestFirstInstallActivatesAndPrecaches(t *testing.T) {
	reg := cache.NewMemoryRegistry()
	fetcher := &stubFetcher{bodies: map[string]string{
		"https://app.local/":              "<html>shell</html>",
		"https://app.local/manifest.json": "{}",
	}}
	m := newTestManager(t, reg, fetcher, "/", "/manifest.json", "/missing.css")
	ctx := context.Background()

	if _, ok := m.Current(); ok {
		t.Fatalf("no generation should be active before install")
	}

	report, err := m.Install(ctx, "1")
	if err != nil {
		t.Fatalf("install error: %v", err)
	}
	if !report.AutoActivated {
		t.Fatalf("first install should auto-activate")
	}
	if len(report.Stored) != 2 || len(report.Failed) != 1 {
		t.Fatalf("unexpected precache report: %+v", report)
	}
	if _, ok := report.Failed["/missing.css"]; !ok {
		t.Fatalf("missing asset should be reported: %+v", report.Failed)
	}

	gen, ok := m.Current()
	if !ok || gen.Static != "static-v1" {
		t.Fatalf("expected static-v1 active, got %+v", gen)
	}
	if m.Status().State != StateActivated {
		t.Fatalf("expected activated, got %s", m.Status().State)
	}

	store, _ := reg.Open(ctx, "static-v1")
	u, _ := url.Parse("https://app.local/")
	got, err := store.Match(ctx, cache.NewRequestKey(http.MethodGet, u))
	if err != nil || string(got.Body) != "<html>shell</html>" {
		t.Fatalf("app shell should be precached, got %v %v", got, err)
	}
}

func TestInstallSkipsNonOKAssets(t *testing.T) {
	reg := cache.NewMemoryRegistry()
	fetcher := &stubFetcher{statuses: map[string]int{"https://app.local/": http.StatusInternalServerError}}
	m := newTestManager(t, reg, fetcher, "/")

	report, err := m.Install(context.Background(), "1")
	if err != nil {
		t.Fatalf("install should not fail: %v", err)
	}
	if len(report.Stored) != 0 || len(report.Failed) != 1 {
		t.Fatalf("5xx asset should be reported as failed: %+v", report)
	}
}

func TestSecondInstallWaitsUntilSkipWaiting(t *testing.T) {
	reg := cache.NewMemoryRegistry()
	fetcher := &stubFetcher{bodies: map[string]string{"https://app.local/": "shell"}}
	m := newTestManager(t, reg, fetcher, "/")
	ctx := context.Background()

	if _, err := m.Install(ctx, "1"); err != nil {
		t.Fatalf("install v1: %v", err)
	}
	dyn, _ := reg.Open(ctx, "dynamic-v1")
	u, _ := url.Parse("https://app.local/feed")
	if err := dyn.Put(ctx, cache.NewRequestKey(http.MethodGet, u), &cache.Response{Status: 200}); err != nil {
		t.Fatalf("seed dynamic: %v", err)
	}
	if _, err := reg.Open(ctx, "images-legacy"); err != nil {
		t.Fatalf("seed stray store: %v", err)
	}

	report, err := m.Install(ctx, "2")
	if err != nil {
		t.Fatalf("install v2: %v", err)
	}
	if report.AutoActivated {
		t.Fatalf("second install should wait")
	}
	if gen, _ := m.Current(); gen.Version != "1" {
		t.Fatalf("v1 should stay active while v2 waits, got %+v", gen)
	}
	if waiting, ok := m.Waiting(); !ok || waiting.Version != "2" {
		t.Fatalf("v2 should be waiting, got %+v %v", waiting, ok)
	}
	if m.Status().State != StateWaiting {
		t.Fatalf("expected waiting, got %s", m.Status().State)
	}

	activated, err := m.SkipWaiting(ctx)
	if err != nil {
		t.Fatalf("skip waiting: %v", err)
	}
	sort.Strings(activated.Deleted)
	if fmt.Sprint(activated.Deleted) != fmt.Sprint([]string{"dynamic-v1", "images-legacy", "static-v1"}) {
		t.Fatalf("unexpected deleted stores: %v", activated.Deleted)
	}
	keys, _ := reg.Keys(ctx)
	if fmt.Sprint(keys) != fmt.Sprint([]string{"static-v2"}) {
		t.Fatalf("only current generation should remain, got %v", keys)
	}
	if gen, _ := m.Current(); gen.Version != "2" {
		t.Fatalf("v2 should be active, got %+v", gen)
	}

	if _, err := m.SkipWaiting(ctx); !errors.Is(err, ErrNothingWaiting) {
		t.Fatalf("expected ErrNothingWaiting, got %v", err)
	}
}

func TestActivateIsIdempotent(t *testing.T) {
	reg := cache.NewMemoryRegistry()
	m := newTestManager(t, reg, &stubFetcher{})
	ctx := context.Background()

	if _, err := m.Activate(ctx); !errors.Is(err, ErrNotInstalled) {
		t.Fatalf("expected ErrNotInstalled, got %v", err)
	}
	if _, err := m.Install(ctx, "3"); err != nil {
		t.Fatalf("install: %v", err)
	}
	for i := 0; i < 2; i++ {
		report, err := m.Activate(ctx)
		if err != nil {
			t.Fatalf("activate %d: %v", i, err)
		}
		if len(report.Deleted) != 0 {
			t.Fatalf("nothing should be deleted, got %v", report.Deleted)
		}
		if gen, _ := m.Current(); gen.Version != "3" {
			t.Fatalf("active generation changed: %+v", gen)
		}
	}
}

func TestInstallRejectsEmptyVersion(t *testing.T) {
	m := newTestManager(t, cache.NewMemoryRegistry(), &stubFetcher{})
	if _, err := m.Install(context.Background(), "  "); !errors.Is(err, ErrEmptyVersion) {
		t.Fatalf("expected ErrEmptyVersion, got %v", err)
	}
	if m.Status().State != StateIdle {
		t.Fatalf("state should stay idle")
	}
}

func TestReinstallActiveVersionRefreshesStatic(t *testing.T) {
	reg := cache.NewMemoryRegistry()
	fetcher := &stubFetcher{bodies: map[string]string{"https://app.local/": "old"}}
	m := newTestManager(t, reg, fetcher, "/")
	ctx := context.Background()
	if _, err := m.Install(ctx, "1"); err != nil {
		t.Fatalf("install: %v", err)
	}
	fetcher.mu.Lock()
	fetcher.bodies["https://app.local/"] = "new"
	fetcher.mu.Unlock()

	if _, err := m.Install(ctx, "v1"); err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if _, ok := m.Waiting(); ok {
		t.Fatalf("reinstalling the active version should not park a generation")
	}
	store, _ := reg.Open(ctx, "static-v1")
	u, _ := url.Parse("https://app.local/")
	got, _ := store.Match(ctx, cache.NewRequestKey(http.MethodGet, u))
	if got == nil || string(got.Body) != "new" {
		t.Fatalf("static store should be refreshed, got %v", got)
	}
}

func TestInstallResolvesRelativeEntriesUnderOriginPath(t *testing.T) {
	fetcher := &stubFetcher{bodies: map[string]string{
		"https://host.local/app/":        "shell",
		"https://host.local/app/main.js": "js",
		"https://host.local/favicon.ico": "icon",
	}}
	origin, _ := url.Parse("https://host.local/app")
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	manager := NewManager(Options{
		App:      "shop",
		Origin:   origin,
		Manifest: []string{"./", "main.js", "/favicon.ico"},
		Registry: cache.NewMemoryRegistry(),
		Fetcher:  fetcher,
		Logger:   logger,
	})

	report, err := manager.Install(context.Background(), "1")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if len(report.Failed) != 0 || len(report.Stored) != 3 {
		t.Fatalf("all entries should resolve under the shell: %+v", report)
	}
}
