package server

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/any-offline/internal/config"
	"github.com/any-hub/any-offline/internal/strategy"
)

// AppRoute 将 App 配置与派生属性（源站 URL、抓取超时、策略集合）聚合在一起，
// 供路由/代理层直接复用，避免重复解析配置。
type AppRoute struct {
	// Config 是用户在 config.toml 中声明的 App 字段副本，避免外部修改。
	Config config.AppConfig
	// ListenPort 记录当前 CLI 监听端口，方便日志/转发头输出。
	ListenPort int
	// OriginURL 在构造 Registry 时提前解析完成。
	OriginURL *url.URL
	// FetchTimeout 是对当前 App 生效的单次抓取超时。
	FetchTimeout time.Duration
	// Strategies 代表各类别默认策略与 App 覆盖合并后的结果。
	Strategies strategy.Set
}

// AppRegistry 提供 Host/Host:port 到 AppRoute 的查询能力，所有 App 共享同一个监听端口。
type AppRegistry struct {
	routes  map[string]*AppRoute
	byName  map[string]*AppRoute
	ordered []*AppRoute
}

// NewAppRegistry 根据配置构建 Host 映射。调用方应在启动阶段创建一次并复用。
func NewAppRegistry(cfg *config.Config) (*AppRegistry, error) {
	if cfg == nil {
		return nil, errors.New("config is nil")
	}

	registry := &AppRegistry{
		routes: make(map[string]*AppRoute, len(cfg.Apps)),
		byName: make(map[string]*AppRoute, len(cfg.Apps)),
	}

	for _, app := range cfg.Apps {
		normalizedHost := normalizeDomain(app.Domain)
		if normalizedHost == "" {
			return nil, fmt.Errorf("invalid domain for app %s", app.Name)
		}
		if _, exists := registry.routes[normalizedHost]; exists {
			return nil, fmt.Errorf("duplicate domain mapping detected for %s", normalizedHost)
		}

		runtime, err := config.BuildAppRuntime(cfg, app)
		if err != nil {
			return nil, err
		}
		route := &AppRoute{
			Config:       runtime.Config,
			ListenPort:   cfg.Global.ListenPort,
			OriginURL:    runtime.Origin,
			FetchTimeout: runtime.FetchTimeout,
			Strategies:   runtime.Strategies,
		}

		registry.routes[normalizedHost] = route
		registry.byName[app.Name] = route
		registry.ordered = append(registry.ordered, route)
	}

	return registry, nil
}

// Lookup 根据 Host 或 Host:port 查找 AppRoute。
func (r *AppRegistry) Lookup(host string) (*AppRoute, bool) {
	if r == nil {
		return nil, false
	}

	normalizedHost, _ := normalizeHost(host)
	if normalizedHost == "" {
		return nil, false
	}

	route, ok := r.routes[normalizedHost]
	return route, ok
}

// ByName 根据 App 名称查找 AppRoute，供诊断/控制接口使用。
func (r *AppRegistry) ByName(name string) (*AppRoute, bool) {
	if r == nil {
		return nil, false
	}
	route, ok := r.byName[strings.TrimSpace(name)]
	return route, ok
}

// Resolve 先按 Host 查找；Host 未映射且 appName 非空时再按名称查找（正向代理模式）。
func (r *AppRegistry) Resolve(host, appName string) (*AppRoute, bool) {
	if route, ok := r.Lookup(host); ok {
		return route, true
	}
	if appName == "" {
		return nil, false
	}
	return r.ByName(appName)
}

// List 返回当前注册的 AppRoute 列表（按配置定义的顺序），用于调试或 /-/apps 输出。
func (r *AppRegistry) List() []AppRoute {
	if r == nil || len(r.ordered) == 0 {
		return nil
	}

	result := make([]AppRoute, len(r.ordered))
	for i, route := range r.ordered {
		result[i] = *route
	}
	return result
}

// MatchesDomain 报告 host 是否指向该 App 的对外 Domain（忽略端口与大小写）。
func (r *AppRoute) MatchesDomain(host string) bool {
	if r == nil {
		return false
	}
	normalized, _ := normalizeHost(host)
	return normalized != "" && normalized == normalizeDomain(r.Config.Domain)
}

func normalizeDomain(domain string) string {
	host, _ := normalizeHost(domain)
	return host
}

func normalizeHost(raw string) (string, int) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", 0
	}

	host := raw
	port := 0

	if strings.Contains(raw, ":") {
		if h, p, err := net.SplitHostPort(raw); err == nil {
			host = h
			if parsedPort, err := strconv.Atoi(p); err == nil {
				port = parsedPort
			}
		} else if idx := strings.LastIndex(raw, ":"); idx > -1 && strings.Count(raw[idx+1:], ":") == 0 {
			if parsedPort, err := strconv.Atoi(raw[idx+1:]); err == nil {
				host = raw[:idx]
				port = parsedPort
			}
		}
	}

	host = strings.TrimSuffix(host, ".")
	host = strings.ToLower(host)
	return host, port
}
