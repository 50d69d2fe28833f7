package proxy

import (
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/valyala/fasthttp"
)

func newFasthttpCtx(t *testing.T, app *fiber.App, method, requestURI string) fiber.Ctx {
	t.Helper()
	fctx := &fasthttp.RequestCtx{}
	fctx.Request.Header.SetMethod(method)
	fctx.Request.SetRequestURI(requestURI)
	fctx.Request.Header.SetHost("shop.local")
	c := app.AcquireCtx(fctx)
	t.Cleanup(func() { app.ReleaseCtx(c) })
	return c
}

func TestBuildRequestMapsOriginForm(t *testing.T) {
	app := fiber.New()
	route := testRoute(t, "https://app.local/base/")
	c := newFasthttpCtx(t, app, fiber.MethodGet, "/dashboard?tab=1")
	c.Request().Header.Set("Accept", "text/html")

	req := buildRequest(c, route)
	if got := req.URL.String(); got != "https://app.local/base/dashboard?tab=1" {
		t.Fatalf("unexpected target url %s", got)
	}
	if req.Destination != "" {
		t.Fatalf("html request should not infer destination, got %q", req.Destination)
	}
	if req.Header.Get("X-Forwarded-Host") != "shop.local" {
		t.Fatalf("forwarded host missing: %v", req.Header)
	}
}

func TestBuildRequestAbsoluteForm(t *testing.T) {
	app := fiber.New()
	route := testRoute(t, "https://app.local")

	cross := buildRequest(newFasthttpCtx(t, app, fiber.MethodGet, "https://cdn.other/logo.png"), route)
	if got := cross.URL.String(); got != "https://cdn.other/logo.png" {
		t.Fatalf("cross origin url should be preserved, got %s", got)
	}
	if cross.Destination != "image" {
		t.Fatalf("image extension should infer destination, got %q", cross.Destination)
	}

	own := buildRequest(newFasthttpCtx(t, app, fiber.MethodGet, "http://shop.local/about"), route)
	if got := own.URL.String(); got != "https://app.local/about" {
		t.Fatalf("own domain should map onto origin, got %s", got)
	}
}
