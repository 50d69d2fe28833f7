package proxy

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/control"
	"github.com/any-hub/any-offline/internal/fallback"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/logging"
	"github.com/any-hub/any-offline/internal/metrics"
	"github.com/any-hub/any-offline/internal/strategy"
	"github.com/any-hub/any-offline/internal/traffic"
)

// InterceptorOptions 描述单个 App 的拦截器依赖。Registry 应当已经按 App 做了命名空间隔离。
type InterceptorOptions struct {
	App            string
	Domain         string
	Origin         *url.URL
	Manifest       []string
	APIPathMarkers []string
	APIHostMarkers []string
	Strategies     strategy.Set
	Registry       cache.Registry
	Fetcher        Fetcher
	Fallback       fallback.Options
	MaxBodyBytes   int64
	Logger         *logrus.Logger
}

// Interceptor 是单个 App 的拦截入口：分类、按代际分发、处理生命周期事件与控制命令。
// 所有依赖显式注入，不依赖任何全局状态。
type Interceptor struct {
	app        string
	domain     string
	classifier traffic.Classifier
	dispatcher *Dispatcher
	lifecycle  *lifecycle.Manager
	registry   cache.Registry
	strategies strategy.Set
	fetcher    Fetcher
	logger     *logrus.Logger
}

// NewInterceptor 组装分类器、Dispatcher 与生命周期管理器。
func NewInterceptor(opts InterceptorOptions) *Interceptor {
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if opts.Strategies == nil {
		opts.Strategies, _ = strategy.ResolveSet(strategy.Overrides{})
	}
	return &Interceptor{
		app:        opts.App,
		domain:     opts.Domain,
		classifier: traffic.NewClassifier(opts.Origin, opts.APIPathMarkers, opts.APIHostMarkers),
		dispatcher: NewDispatcher(DispatcherOptions{
			App:          opts.App,
			Origin:       opts.Origin,
			Registry:     opts.Registry,
			Fetcher:      opts.Fetcher,
			Synthesizer:  fallback.New(opts.Fallback),
			Strategies:   opts.Strategies,
			MaxBodyBytes: opts.MaxBodyBytes,
			Logger:       logger,
		}),
		lifecycle: lifecycle.NewManager(lifecycle.Options{
			App:      opts.App,
			Origin:   opts.Origin,
			Manifest: opts.Manifest,
			Registry: opts.Registry,
			Fetcher:  opts.Fetcher,
			Logger:   logger,
		}),
		registry:   opts.Registry,
		strategies: opts.Strategies,
		fetcher:    opts.Fetcher,
		logger:     logger,
	}
}

// App 返回拦截器所属的 App 名称。
func (i *Interceptor) App() string {
	return i.app
}

// OnInstall 安装 version 对应的代际并预热清单。
func (i *Interceptor) OnInstall(ctx context.Context, version string) (lifecycle.InstallReport, error) {
	return i.lifecycle.Install(ctx, version)
}

// OnActivate 激活等待中的代际并清理旧仓。
func (i *Interceptor) OnActivate(ctx context.Context) (lifecycle.ActivateReport, error) {
	return i.lifecycle.Activate(ctx)
}

// OnControlMessage 处理控制通道命令，无返回值，结果只体现在日志与指标中。
func (i *Interceptor) OnControlMessage(ctx context.Context, cmd control.Command) {
	metrics.ObserveControl(i.app, string(cmd.Type))
	fields := logrus.Fields{"app": i.app, "command": string(cmd.Type)}

	switch cmd.Type {
	case control.TypeSkipWaiting:
		report, err := i.lifecycle.SkipWaiting(ctx)
		switch {
		case errors.Is(err, lifecycle.ErrNothingWaiting):
			i.logger.WithFields(fields).Info("skip_waiting_noop")
		case err != nil:
			i.logger.WithError(err).WithFields(fields).Warn("skip_waiting_failed")
		default:
			fields["version"] = report.Generation.Version
			fields["deleted"] = report.Deleted
			i.logger.WithFields(fields).Info("skip_waiting_applied")
		}
	default:
		i.logger.WithFields(fields).Warn("control_command_unknown")
	}
}

// Status 返回生命周期快照。
func (i *Interceptor) Status() lifecycle.Status {
	return i.lifecycle.Status()
}

// Stores 列出该 App 现存的仓名，供诊断接口展示。
func (i *Interceptor) Stores(ctx context.Context) ([]string, error) {
	if i.registry == nil {
		return nil, nil
	}
	return i.registry.Keys(ctx)
}

// Profiles 返回各拦截类别实际生效的 profile。
func (i *Interceptor) Profiles() map[traffic.Class]strategy.Profile {
	result := make(map[traffic.Class]strategy.Profile, len(traffic.Classes()))
	for _, class := range traffic.Classes() {
		result[class] = i.strategies.For(class)
	}
	return result
}

// Classify 对请求分类，不产生副作用。
func (i *Interceptor) Classify(req *traffic.Request) traffic.Class {
	return i.classifier.Classify(req)
}

// Fallback 返回 class 对应的兜底响应。
func (i *Interceptor) Fallback(class traffic.Class) *cache.Response {
	return i.dispatcher.Fallback(class)
}

// Handle 处理一次请求。被跳过的请求（以及尚无激活代际时的所有请求）原样转发，
// 只有这类转发的网络失败会以 error 返回；被拦截的请求总能得到响应。
func (i *Interceptor) Handle(ctx context.Context, req *traffic.Request) (Result, error) {
	started := time.Now()
	class := i.classifier.Classify(req)

	gen, active := i.lifecycle.Current()
	if class == traffic.ClassSkipped || !active {
		result, err := i.passthrough(ctx, req, class)
		i.logResult(req, result, started, err)
		return result, err
	}

	result := i.dispatcher.Dispatch(ctx, gen, req, class)
	metrics.ObserveDispatch(i.app, string(class), string(result.Source))
	i.logResult(req, result, started, nil)
	return result, nil
}

func (i *Interceptor) passthrough(ctx context.Context, req *traffic.Request, class traffic.Class) (Result, error) {
	result := Result{Class: class, Source: SourcePassthrough}
	if i.fetcher == nil {
		return result, errors.New("no fetcher configured")
	}
	resp, err := i.fetcher.Fetch(ctx, req)
	if err != nil {
		return result, err
	}
	result.Response = resp
	metrics.ObserveDispatch(i.app, string(class), string(SourcePassthrough))
	return result, nil
}

func (i *Interceptor) logResult(req *traffic.Request, result Result, started time.Time, err error) {
	fields := logging.RequestFields(i.app, i.domain, string(result.Class), string(result.Source), result.CacheHit())
	fields["action"] = "intercept"
	fields["method"] = req.Method
	if req.URL != nil {
		fields["url"] = req.URL.String()
	}
	if result.Profile != "" {
		fields["strategy"] = result.Profile
	}
	if result.Response != nil {
		fields["status"] = result.Response.Status
	}
	fields["elapsed_ms"] = time.Since(started).Milliseconds()
	if err != nil {
		i.logger.WithError(err).WithFields(fields).Error("passthrough_failed")
		return
	}
	i.logger.WithFields(fields).Info("dispatch_complete")
}
