package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/any-hub/any-offline/internal/strategy"
)

var supportedBackends = map[string]struct{}{
	"memory": {},
	"disk":   {},
	"sqlite": {},
	"redis":  {},
}

const supportedBackendList = "memory|disk|sqlite|redis"

// Validate 针对语义级别做进一步校验，防止非法配置启动服务。
func (c *Config) Validate() error {
	if c == nil {
		return errors.New("配置为空")
	}

	g := c.Global
	if g.ListenPort <= 0 || g.ListenPort > 65535 {
		return newFieldError("Global.ListenPort", "必须在 1-65535")
	}
	backend := strings.ToLower(strings.TrimSpace(g.StorageBackend))
	if _, ok := supportedBackends[backend]; !ok {
		return newFieldError("Global.StorageBackend", "仅支持 "+supportedBackendList)
	}
	if (backend == "disk" || backend == "sqlite") && g.StoragePath == "" {
		return newFieldError("Global.StoragePath", "不能为空")
	}
	if backend == "redis" && strings.TrimSpace(g.RedisAddr) == "" {
		return newFieldError("Global.RedisAddr", "不能为空")
	}
	if g.RedisDB < 0 {
		return newFieldError("Global.RedisDB", "不能为负数")
	}
	if g.FetchTimeout.DurationValue() <= 0 {
		return newFieldError("Global.FetchTimeout", "必须大于 0")
	}
	if g.MaxBodyBytes < 0 {
		return newFieldError("Global.MaxBodyBytes", "不能为负数")
	}

	if len(c.Apps) == 0 {
		return errors.New("至少需要配置一个 App")
	}

	seenNames := map[string]struct{}{}
	for i := range c.Apps {
		app := &c.Apps[i]
		if app.Name == "" {
			return newFieldError("App[].Name", "不能为空")
		}
		if strings.ContainsAny(app.Name, "/~ ") {
			return newFieldError(appField(app.Name, "Name"), "不允许包含 / ~ 或空格")
		}
		if _, exists := seenNames[app.Name]; exists {
			return newFieldError(appField(app.Name, "Name"), "重复")
		}
		seenNames[app.Name] = struct{}{}

		if err := validateDomain(app.Domain); err != nil {
			return fmt.Errorf("%s: %w", appField(app.Name, "Domain"), err)
		}
		if err := validateOrigin(app.Origin); err != nil {
			return fmt.Errorf("%s: %w", appField(app.Name, "Origin"), err)
		}
		if strings.TrimPrefix(app.Version, "v") == "" {
			return newFieldError(appField(app.Name, "Version"), "不能为空")
		}
		if strings.ContainsAny(app.Version, "/ ") {
			return newFieldError(appField(app.Name, "Version"), "不允许包含 / 或空格")
		}

		for field, key := range map[string]string{
			"ImageStrategy":      app.ImageStrategy,
			"APIStrategy":        app.APIStrategy,
			"NavigationStrategy": app.NavigationStrategy,
		} {
			if key == "" {
				continue
			}
			if _, ok := strategy.Resolve(key); !ok {
				return newFieldError(appField(app.Name, field), "未注册策略: "+key+"，可选 "+strings.Join(strategy.Keys(), "|"))
			}
		}
	}

	return nil
}

func validateDomain(domain string) error {
	if domain == "" {
		return errors.New("Domain 不能为空")
	}
	if strings.Contains(domain, "/") {
		return errors.New("Domain 不允许包含路径")
	}
	if strings.Contains(domain, " ") {
		return errors.New("Domain 不允许包含空格")
	}
	if strings.HasPrefix(domain, "http") {
		return errors.New("Domain 不应包含协议头")
	}
	return nil
}

func validateOrigin(raw string) error {
	if raw == "" {
		return errors.New("缺少源站地址")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("仅支持 http/https，源站: %s", raw)
	}
	if parsed.Host == "" {
		return fmt.Errorf("源站缺少 Host: %s", raw)
	}
	return nil
}

// EffectiveFetchTimeout 返回特定 App 生效的抓取超时，未覆盖时回退至全局值。
func (c *Config) EffectiveFetchTimeout(a AppConfig) time.Duration {
	if a.FetchTimeout.DurationValue() > 0 {
		return a.FetchTimeout.DurationValue()
	}
	return c.Global.FetchTimeout.DurationValue()
}
