package proxy

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/logging"
	"github.com/any-hub/any-offline/internal/server"
	"github.com/any-hub/any-offline/internal/traffic"
)

// Forwarder 根据 AppRoute 的名称选择对应的 Interceptor，并在 handler panic 时返回兜底响应。
type Forwarder struct {
	handler *Handler
	logger  *logrus.Logger

	mu   sync.RWMutex
	apps map[string]AppRegistration
}

// NewForwarder 创建 Forwarder；handler 为空时使用默认 Handler。
func NewForwarder(handler *Handler, logger *logrus.Logger) *Forwarder {
	if handler == nil {
		handler = NewHandler(logger)
	}
	return &Forwarder{
		handler: handler,
		logger:  logger,
		apps:    make(map[string]AppRegistration),
	}
}

// Register 绑定 App 与拦截器，重复名称返回 ErrAppHandlerExists。
func (f *Forwarder) Register(reg AppRegistration) error {
	if err := reg.Validate(); err != nil {
		return err
	}
	key := normalizeAppKey(reg.Name)

	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.apps[key]; exists {
		return fmt.Errorf("%w: %s", ErrAppHandlerExists, key)
	}
	f.apps[key] = reg
	return nil
}

// MustRegister panics when registration fails; suitable for startup wiring.
func (f *Forwarder) MustRegister(reg AppRegistration) {
	if err := f.Register(reg); err != nil {
		panic(err)
	}
}

// Lookup 返回 App 的注册信息。
func (f *Forwarder) Lookup(name string) (AppRegistration, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	reg, ok := f.apps[normalizeAppKey(name)]
	return reg, ok
}

// List 返回按名称排序的注册信息。
func (f *Forwarder) List() []AppRegistration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]AppRegistration, 0, len(f.apps))
	for _, reg := range f.apps {
		result = append(result, reg)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})
	return result
}

// Handle 实现 server.ProxyHandler。
func (f *Forwarder) Handle(c fiber.Ctx, route *server.AppRoute) error {
	requestID := server.RequestID(c)
	reg, ok := f.lookup(route)
	if !ok {
		return f.respondMissingHandler(c, route, requestID)
	}
	return f.invokeHandler(c, route, reg.Interceptor, requestID)
}

func (f *Forwarder) lookup(route *server.AppRoute) (AppRegistration, bool) {
	if route == nil {
		return AppRegistration{}, false
	}
	return f.Lookup(route.Config.Name)
}

func (f *Forwarder) respondMissingHandler(c fiber.Ctx, route *server.AppRoute, requestID string) error {
	f.logAppError(route, "app_handler_missing", nil, requestID)
	setRequestIDHeader(c, requestID)
	return c.Status(fiber.StatusInternalServerError).
		JSON(fiber.Map{"error": "app_handler_missing"})
}

func (f *Forwarder) invokeHandler(c fiber.Ctx, route *server.AppRoute, interceptor *Interceptor, requestID string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = f.respondHandlerPanic(c, route, interceptor, r, requestID)
		}
	}()
	return f.handler.Serve(c, route, interceptor)
}

// respondHandlerPanic 记录 panic 并返回该请求类别的兜底响应；跳过拦截的请求按导航页处理。
func (f *Forwarder) respondHandlerPanic(c fiber.Ctx, route *server.AppRoute, interceptor *Interceptor, recovered interface{}, requestID string) error {
	f.logAppError(route, "app_handler_panic", fmt.Errorf("panic: %v", recovered), requestID)
	class := interceptor.Classify(buildRequest(c, route))
	if class == traffic.ClassSkipped {
		class = traffic.ClassNavigation
	}
	c.Response().Reset()
	return writeResult(c, Result{
		Response: interceptor.Fallback(class),
		Class:    class,
		Source:   SourceFallback,
	}, requestID)
}

func (f *Forwarder) logAppError(route *server.AppRoute, code string, err error, requestID string) {
	if f.logger == nil {
		return
	}
	fields := f.routeFields(route, requestID)
	fields["action"] = "intercept"
	fields["error"] = code
	if err != nil {
		f.logger.WithFields(fields).Error(err.Error())
		return
	}
	f.logger.WithFields(fields).Error("app handler unavailable")
}

func (f *Forwarder) routeFields(route *server.AppRoute, requestID string) logrus.Fields {
	fields := logging.RequestFields("", "", "", "", false)
	if route != nil {
		fields = logging.RequestFields(route.Config.Name, route.Config.Domain, "", "", false)
	}
	if requestID != "" {
		fields["request_id"] = requestID
	}
	return fields
}

func normalizeAppKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
