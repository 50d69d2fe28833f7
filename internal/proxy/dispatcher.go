package proxy

import (
	"context"
	"errors"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/fallback"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/metrics"
	"github.com/any-hub/any-offline/internal/strategy"
	"github.com/any-hub/any-offline/internal/traffic"
)

// Source 表示最终响应的来源。
type Source string

const (
	SourceNetwork     Source = "network"
	SourceCache       Source = "cache"
	SourceRoot        Source = "root"
	SourceFallback    Source = "fallback"
	SourcePassthrough Source = "passthrough"
)

// Result 是一次拦截的结果。
type Result struct {
	Response *cache.Response
	Class    traffic.Class
	Source   Source
	Profile  string
}

// CacheHit 报告响应是否来自缓存仓。
func (r Result) CacheHit() bool {
	return r.Source == SourceCache || r.Source == SourceRoot
}

// Dispatcher 按类别 profile 依次执行 cache/network/root-cache/fallback 步骤。
// 仓读写失败只记录日志并按未命中处理；网络失败推进到下一步。Dispatch 总能产出响应。
type Dispatcher struct {
	app        string
	shell      *url.URL
	registry   cache.Registry
	writer     cache.Writer
	fetcher    Fetcher
	synth      *fallback.Synthesizer
	strategies strategy.Set
	logger     *logrus.Logger
}

// DispatcherOptions 描述 Dispatcher 的依赖。
type DispatcherOptions struct {
	App          string
	// Origin 决定 root-cache 步骤查找的外壳页 URL，为空时退回请求主机的根路径。
	Origin       *url.URL
	Registry     cache.Registry
	Fetcher      Fetcher
	Synthesizer  *fallback.Synthesizer
	Strategies   strategy.Set
	MaxBodyBytes int64
	Logger       *logrus.Logger
}

// NewDispatcher 构造 Dispatcher，未提供的策略集与兜底合成器使用默认值。
func NewDispatcher(opts DispatcherOptions) *Dispatcher {
	if opts.Strategies == nil {
		opts.Strategies, _ = strategy.ResolveSet(strategy.Overrides{})
	}
	if opts.Synthesizer == nil {
		opts.Synthesizer = fallback.New(fallback.Options{})
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		app:        opts.App,
		shell:      traffic.ShellURL(opts.Origin),
		registry:   opts.Registry,
		writer:     cache.NewWriter(opts.Registry, opts.MaxBodyBytes),
		fetcher:    opts.Fetcher,
		synth:      opts.Synthesizer,
		strategies: opts.Strategies,
		logger:     opts.Logger,
	}
}

// Dispatch 针对当前代际执行 class 对应的 profile。
func (d *Dispatcher) Dispatch(ctx context.Context, gen lifecycle.Generation, req *traffic.Request, class traffic.Class) Result {
	profile := d.strategies.For(class)
	key := cache.NewRequestKey(req.Method, req.URL)

	for _, step := range profile.Steps {
		switch step {
		case strategy.StepCache:
			if resp, ok := d.lookup(ctx, gen, key); ok {
				return Result{Response: resp, Class: class, Source: SourceCache, Profile: profile.Key}
			}
		case strategy.StepRootCache:
			if resp, ok := d.lookup(ctx, gen, d.rootKey(req.URL)); ok {
				return Result{Response: resp, Class: class, Source: SourceRoot, Profile: profile.Key}
			}
		case strategy.StepNetwork:
			if resp, ok := d.fetch(ctx, gen, req, key, profile.WriteThrough); ok {
				return Result{Response: resp, Class: class, Source: SourceNetwork, Profile: profile.Key}
			}
		case strategy.StepFallback:
			return d.fallback(class, profile.Key)
		}
	}
	return d.fallback(class, profile.Key)
}

// Fallback 直接合成 class 对应的兜底响应。
func (d *Dispatcher) Fallback(class traffic.Class) *cache.Response {
	return d.synth.Synthesize(class)
}

func (d *Dispatcher) fallback(class traffic.Class, profile string) Result {
	return Result{Response: d.synth.Synthesize(class), Class: class, Source: SourceFallback, Profile: profile}
}

// lookup 先查 dynamic 再查 static；dynamic 仓在首次写入前不存在，不能因读取而被创建。
func (d *Dispatcher) lookup(ctx context.Context, gen lifecycle.Generation, key cache.RequestKey) (*cache.Response, bool) {
	if d.registry == nil || !key.Cacheable() {
		return nil, false
	}
	for _, name := range []string{gen.Dynamic, gen.Static} {
		exists, err := d.registry.Has(ctx, name)
		if err != nil {
			d.storeFailed("has", name, key, err)
			continue
		}
		if !exists {
			continue
		}
		store, err := d.registry.Open(ctx, name)
		if err != nil {
			d.storeFailed("open", name, key, err)
			continue
		}
		resp, err := store.Match(ctx, key)
		switch {
		case err == nil:
			return resp, true
		case errors.Is(err, cache.ErrNotFound):
		default:
			d.storeFailed("match", name, key, err)
		}
	}
	return nil, false
}

func (d *Dispatcher) fetch(ctx context.Context, gen lifecycle.Generation, req *traffic.Request, key cache.RequestKey, writeThrough bool) (*cache.Response, bool) {
	if d.fetcher == nil {
		return nil, false
	}
	resp, err := d.fetcher.Fetch(ctx, req)
	if err != nil {
		d.logger.WithError(err).WithFields(logrus.Fields{
			"app": d.app,
			"url": key.URL,
		}).Debug("network_failed")
		return nil, false
	}
	if writeThrough && req.IsGet() && resp.OK() {
		if err := d.writer.Put(ctx, gen.Dynamic, key, resp); err != nil {
			if errors.Is(err, cache.ErrTooLarge) {
				d.logger.WithFields(logrus.Fields{"app": d.app, "url": key.URL, "size": len(resp.Body)}).Debug("cache_put_skipped")
			} else {
				d.storeFailed("put", gen.Dynamic, key, err)
			}
		}
	}
	return resp, true
}

func (d *Dispatcher) storeFailed(op, store string, key cache.RequestKey, err error) {
	metrics.ObserveStoreError(d.app, op)
	d.logger.WithError(err).WithFields(logrus.Fields{
		"app":       d.app,
		"store":     store,
		"operation": op,
		"url":       key.URL,
	}).Warn("cache_" + op + "_failed")
}

// rootKey 返回外壳页的缓存键；未配置源站时使用请求主机的根路径。
func (d *Dispatcher) rootKey(u *url.URL) cache.RequestKey {
	if d.shell != nil {
		return cache.NewRequestKey(http.MethodGet, d.shell)
	}
	if u == nil {
		return cache.RequestKey{}
	}
	return cache.NewRequestKey(http.MethodGet, &url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/"})
}
