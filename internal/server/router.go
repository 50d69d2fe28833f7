package server

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/recover"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ProxyHandler 处理已解析出 App 的请求，测试中可注入假实现。
type ProxyHandler interface {
	Handle(fiber.Ctx, *AppRoute) error
}

// ProxyHandlerFunc adapts a function to the ProxyHandler interface.
type ProxyHandlerFunc func(fiber.Ctx, *AppRoute) error

// Handle makes ProxyHandlerFunc satisfy ProxyHandler.
func (f ProxyHandlerFunc) Handle(c fiber.Ctx, route *AppRoute) error {
	return f(c, route)
}

// AppOptions 描述单端口 Fiber 应用的依赖。
type AppOptions struct {
	Logger     *logrus.Logger
	Registry   *AppRegistry
	Proxy      ProxyHandler
	ListenPort int
	// BodyLimit 限制入站请求体大小，<= 0 时使用 Fiber 默认值。
	BodyLimit int
}

const (
	// HeaderApp 允许正向代理客户端在 Host 无法映射时按名称指定 App。
	HeaderApp = "X-Any-Offline-App"
	// DiagnosticsPrefix 下的路径不参与 App 路由，由 routes 包注册的接口处理。
	DiagnosticsPrefix = "/-/"
)

const (
	contextKeyRoute     = "_anyoffline_route"
	contextKeyRequestID = "_anyoffline_request_id"
)

// NewApp 构建 Fiber 应用：每个请求分配 ID，非诊断请求按 App 路由后交给 Proxy。
// 诊断路径继续向后匹配调用方注册的路由。
func NewApp(opts AppOptions) (*fiber.App, error) {
	if opts.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if opts.Registry == nil {
		return nil, errors.New("app registry is required")
	}
	if opts.Proxy == nil {
		return nil, errors.New("proxy handler is required")
	}
	if opts.ListenPort <= 0 {
		return nil, fmt.Errorf("invalid listen port: %d", opts.ListenPort)
	}

	app := fiber.New(fiber.Config{
		CaseSensitive: true,
		BodyLimit:     opts.BodyLimit,
	})
	app.Use(recover.New())
	app.Use(requestIDMiddleware())
	app.Use(appRoutingMiddleware(opts))
	return app, nil
}

func requestIDMiddleware() fiber.Handler {
	return func(c fiber.Ctx) error {
		reqID := uuid.NewString()
		c.Locals(contextKeyRequestID, reqID)
		c.Set("X-Request-ID", reqID)
		return c.Next()
	}
}

// appRoutingMiddleware 终结所有非诊断请求：解析出 App 则交给 Proxy，否则返回 host_unmapped。
func appRoutingMiddleware(opts AppOptions) fiber.Handler {
	return func(c fiber.Ctx) error {
		if IsDiagnosticsPath(string(c.Request().URI().Path())) {
			return c.Next()
		}

		host := requestHost(c)
		appName := strings.TrimSpace(c.Get(HeaderApp))
		route, ok := opts.Registry.Resolve(host, appName)
		if !ok {
			return respondUnmapped(c, opts, host, appName)
		}
		c.Locals(contextKeyRoute, route)
		return opts.Proxy.Handle(c, route)
	}
}

func respondUnmapped(c fiber.Ctx, opts AppOptions, host, appName string) error {
	fields := logrus.Fields{
		"action": "app_lookup",
		"host":   host,
		"port":   opts.ListenPort,
	}
	if appName != "" {
		fields["app_header"] = appName
	}
	opts.Logger.WithFields(fields).Warn("host_unmapped")

	if host != "" {
		c.Set("X-Any-Offline-Host", host)
	}
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "host_unmapped"})
}

func requestHost(c fiber.Ctx) string {
	if raw := c.Request().Header.Peek(fiber.HeaderHost); len(raw) > 0 {
		return strings.TrimSpace(string(raw))
	}
	return c.Hostname()
}

// IsDiagnosticsPath 报告 path 是否位于 DiagnosticsPrefix 之下。
func IsDiagnosticsPath(path string) bool {
	return strings.HasPrefix(path, DiagnosticsPrefix)
}

// RouteFromContext 返回路由中间件解析出的 AppRoute。
func RouteFromContext(c fiber.Ctx) (*AppRoute, bool) {
	route, ok := c.Locals(contextKeyRoute).(*AppRoute)
	return route, ok && route != nil
}

// RequestID 返回当前请求的 ID，未经过中间件时为空。
func RequestID(c fiber.Ctx) string {
	reqID, _ := c.Locals(contextKeyRequestID).(string)
	return reqID
}
