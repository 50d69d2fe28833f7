package server

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"
)

func TestAppRoutingMiddleware(t *testing.T) {
	cases := []struct {
		name       string
		url        string
		host       string
		appHeader  string
		wantStatus int
		wantApp    string
		wantBody   string
	}{
		{name: "host match", url: "http://shop.offline.local/dashboard", host: "shop.offline.local", wantStatus: fiber.StatusNoContent, wantApp: "shop"},
		{name: "host with port", url: "http://shop.offline.local:5000/", host: "shop.offline.local:5000", wantStatus: fiber.StatusNoContent, wantApp: "shop"},
		{name: "app header fallback", url: "http://cdn.example.net/logo.png", host: "cdn.example.net", appHeader: "shop", wantStatus: fiber.StatusNoContent, wantApp: "shop"},
		{name: "unknown host", url: "http://unknown.local/", host: "unknown.local", wantStatus: fiber.StatusNotFound, wantBody: `"host_unmapped"`},
		{name: "unknown app header", url: "http://unknown.local/", host: "unknown.local", appHeader: "blog", wantStatus: fiber.StatusNotFound, wantBody: `"host_unmapped"`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			app := newRoutingApp(t)

			req := httptest.NewRequest("GET", tc.url, nil)
			req.Host = tc.host
			if tc.appHeader != "" {
				req.Header.Set(HeaderApp, tc.appHeader)
			}

			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test failed: %v", err)
			}
			body, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != tc.wantStatus {
				t.Fatalf("status = %d, want %d (body=%s)", resp.StatusCode, tc.wantStatus, body)
			}
			if app.recorder.routeName != tc.wantApp {
				t.Fatalf("routed app = %q, want %q", app.recorder.routeName, tc.wantApp)
			}
			if tc.wantBody != "" && !strings.Contains(string(body), tc.wantBody) {
				t.Fatalf("body %s missing %s", body, tc.wantBody)
			}
			if resp.Header.Get("X-Request-ID") == "" {
				t.Fatalf("expected X-Request-ID header to be set")
			}
		})
	}
}

func TestAppRoutingExposesRouteAndRequestID(t *testing.T) {
	app := newRoutingApp(t)

	req := httptest.NewRequest("GET", "http://shop.offline.local/", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNoContent {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	if !app.recorder.sawRoute {
		t.Fatalf("RouteFromContext should return the routed app inside the proxy")
	}
	if app.recorder.requestID == "" || app.recorder.requestID != resp.Header.Get("X-Request-ID") {
		t.Fatalf("RequestID mismatch: ctx=%q header=%q", app.recorder.requestID, resp.Header.Get("X-Request-ID"))
	}
}

func TestDiagnosticsPathsBypassAppRouting(t *testing.T) {
	app := newRoutingApp(t)
	app.Get("/-/ping", func(c fiber.Ctx) error {
		return c.SendString("pong")
	})

	resp, err := app.Test(httptest.NewRequest("GET", "http://anything.local/-/ping", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != fiber.StatusOK || string(body) != "pong" {
		t.Fatalf("diagnostics path should bypass app routing, got %d %s", resp.StatusCode, body)
	}

	// 未注册的诊断路径由 Fiber 自身返回 404，不会落到 Proxy。
	resp, err = app.Test(httptest.NewRequest("GET", "http://shop.offline.local/-/missing", nil))
	if err != nil {
		t.Fatalf("app.Test failed: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 for unknown diagnostics path, got %d", resp.StatusCode)
	}
	if app.recorder.routeName != "" {
		t.Fatalf("proxy should not be invoked for diagnostics")
	}
}

func TestIsDiagnosticsPath(t *testing.T) {
	for path, want := range map[string]bool{
		"/-/apps":   true,
		"/-/":       true,
		"/-":        false,
		"/app/-/x":  false,
		"/":         false,
		"/--/stats": false,
	} {
		if got := IsDiagnosticsPath(path); got != want {
			t.Errorf("IsDiagnosticsPath(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestNewAppValidatesOptions(t *testing.T) {
	registry, err := NewAppRegistry(singleAppConfig())
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := logrus.New()
	proxy := ProxyHandlerFunc(func(c fiber.Ctx, _ *AppRoute) error { return nil })

	bad := []AppOptions{
		{Registry: registry, Proxy: proxy, ListenPort: 5000},
		{Logger: logger, Proxy: proxy, ListenPort: 5000},
		{Logger: logger, Registry: registry, ListenPort: 5000},
		{Logger: logger, Registry: registry, Proxy: proxy},
	}
	for i, opts := range bad {
		if _, err := NewApp(opts); err == nil {
			t.Errorf("case %d: expected validation error", i)
		}
	}
}

type routingApp struct {
	*fiber.App
	recorder *proxyRecorder
}

func newRoutingApp(t *testing.T) *routingApp {
	t.Helper()

	cfg := singleAppConfig()
	registry, err := NewAppRegistry(cfg)
	if err != nil {
		t.Fatalf("failed to create registry: %v", err)
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	recorder := &proxyRecorder{}
	app, err := NewApp(AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      recorder,
		ListenPort: cfg.Global.ListenPort,
	})
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	return &routingApp{App: app, recorder: recorder}
}

type proxyRecorder struct {
	routeName string
	sawRoute  bool
	requestID string
}

func (p *proxyRecorder) Handle(c fiber.Ctx, route *AppRoute) error {
	p.routeName = route.Config.Name
	fromCtx, ok := RouteFromContext(c)
	p.sawRoute = ok && fromCtx == route
	p.requestID = RequestID(c)
	return c.SendStatus(fiber.StatusNoContent)
}
