package routes

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/any-hub/any-offline/internal/control"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/proxy"
	"github.com/any-hub/any-offline/internal/server"
)

// RegisterAppRoutes 暴露只读的 /-/apps 诊断接口。
func RegisterAppRoutes(app *fiber.App, registry *server.AppRegistry, forwarder *proxy.Forwarder) {
	if app == nil || registry == nil || forwarder == nil {
		return
	}

	app.Get("/-/apps", func(c fiber.Ctx) error {
		routes := registry.List()
		result := make([]appPayload, 0, len(routes))
		for _, route := range routes {
			result = append(result, encodeApp(c, route, forwarder))
		}
		return c.JSON(fiber.Map{"apps": result})
	})

	app.Get("/-/apps/:name", func(c fiber.Ctx) error {
		route, ok := registry.ByName(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "app_not_found"})
		}
		return c.JSON(encodeApp(c, *route, forwarder))
	})
}

type appPayload struct {
	Name       string            `json:"name"`
	Domain     string            `json:"domain"`
	Origin     string            `json:"origin"`
	Version    string            `json:"configured_version"`
	Port       int               `json:"port"`
	Strategies map[string]string `json:"strategies"`
	Lifecycle  *lifecycle.Status `json:"lifecycle,omitempty"`
	Stores     []string          `json:"stores,omitempty"`
	StoreError string            `json:"store_error,omitempty"`
}

func encodeApp(c fiber.Ctx, route server.AppRoute, forwarder *proxy.Forwarder) appPayload {
	payload := appPayload{
		Name:       route.Config.Name,
		Domain:     route.Config.Domain,
		Origin:     route.Config.Origin,
		Version:    route.Config.Version,
		Port:       route.ListenPort,
		Strategies: make(map[string]string),
	}
	reg, ok := forwarder.Lookup(route.Config.Name)
	if !ok {
		return payload
	}
	for class, profile := range reg.Interceptor.Profiles() {
		payload.Strategies[string(class)] = profile.Key
	}
	status := reg.Interceptor.Status()
	payload.Lifecycle = &status
	stores, err := reg.Interceptor.Stores(c.Context())
	if err != nil {
		payload.StoreError = err.Error()
	} else {
		payload.Stores = stores
	}
	return payload
}

// HeaderAdminToken 携带管理令牌，安装与控制接口必须提供。
const HeaderAdminToken = "X-Any-Offline-Admin-Token"

// RegisterAdminRoutes 注册会改变生命周期状态的接口：安装新版本与投递控制命令。
// token 为空时不注册，两个接口不可达。
func RegisterAdminRoutes(app *fiber.App, forwarder *proxy.Forwarder, token string) {
	token = strings.TrimSpace(token)
	if app == nil || forwarder == nil || token == "" {
		return
	}
	admin := requireAdminToken(token)

	app.Post("/-/apps/:name/control", admin, func(c fiber.Ctx) error {
		reg, ok := forwarder.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "app_not_found"})
		}
		if reg.Control == nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "control_channel_missing"})
		}
		cmd, err := control.Parse(c.Body())
		if err != nil {
			if errors.Is(err, control.ErrUnknownCommand) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown_command"})
			}
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_command"})
		}
		if err := reg.Control.Post(cmd); err != nil {
			code := "control_channel_full"
			if errors.Is(err, control.ErrChannelClosed) {
				code = "control_channel_closed"
			}
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": code})
		}
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{"accepted": string(cmd.Type)})
	})

	app.Post("/-/apps/:name/install", admin, func(c fiber.Ctx) error {
		reg, ok := forwarder.Lookup(c.Params("name"))
		if !ok {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "app_not_found"})
		}
		var body struct {
			Version string `json:"version"`
		}
		if raw := c.Body(); len(raw) > 0 {
			if err := json.Unmarshal(raw, &body); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
			}
		}
		report, err := reg.Interceptor.OnInstall(c.Context(), strings.TrimSpace(body.Version))
		if err != nil {
			if errors.Is(err, lifecycle.ErrEmptyVersion) {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "version_required"})
			}
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "install_failed", "detail": err.Error()})
		}
		return c.JSON(report)
	})
}

func requireAdminToken(token string) fiber.Handler {
	expected := []byte(token)
	return func(c fiber.Ctx) error {
		provided := []byte(strings.TrimSpace(c.Get(HeaderAdminToken)))
		if subtle.ConstantTimeCompare(provided, expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "admin_token_invalid"})
		}
		return c.Next()
	}
}
