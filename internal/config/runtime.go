package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/any-hub/any-offline/internal/strategy"
)

// AppRuntime 将 App 配置与解析后的源站、超时、策略集合并，方便运行时快速取用。
type AppRuntime struct {
	Config       AppConfig
	Origin       *url.URL
	FetchTimeout time.Duration
	Strategies   strategy.Set
}

// BuildAppRuntime 根据 App 配置创建运行时描述，应用最终超时与策略覆盖。
func BuildAppRuntime(cfg *Config, app AppConfig) (AppRuntime, error) {
	origin, err := url.Parse(app.Origin)
	if err != nil {
		return AppRuntime{}, fmt.Errorf("invalid origin for app %s: %w", app.Name, err)
	}
	set, err := strategy.ResolveSet(app.StrategyOverrides())
	if err != nil {
		return AppRuntime{}, fmt.Errorf("app %s: %w", app.Name, err)
	}
	return AppRuntime{
		Config:       app,
		Origin:       origin,
		FetchTimeout: cfg.EffectiveFetchTimeout(app),
		Strategies:   set,
	}, nil
}
