package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/config"
	"github.com/any-hub/any-offline/internal/control"
	"github.com/any-hub/any-offline/internal/fallback"
	"github.com/any-hub/any-offline/internal/lifecycle"
	"github.com/any-hub/any-offline/internal/proxy"
	"github.com/any-hub/any-offline/internal/server"
)

// bootstrapApps 为每个 App 构建拦截器并注册到 forwarder：
// 各 App 的仓通过 cache.Scoped 隔离，启动时安装配置中的版本，随后启动控制通道。
func bootstrapApps(
	ctx context.Context,
	cfg *config.Config,
	registry *server.AppRegistry,
	stores cache.Registry,
	client *http.Client,
	forwarder *proxy.Forwarder,
	logger *logrus.Logger,
) error {
	for _, route := range registry.List() {
		app := route.Config
		interceptor := proxy.NewInterceptor(proxy.InterceptorOptions{
			App:            app.Name,
			Domain:         app.Domain,
			Origin:         route.OriginURL,
			Manifest:       app.Precache,
			APIPathMarkers: app.APIPathMarkers,
			APIHostMarkers: app.APIHostMarkers,
			Strategies:     route.Strategies,
			Registry:       cache.Scoped(stores, app.Name),
			Fetcher:        proxy.NewNetworkFetcher(client, app.Name, route.FetchTimeout),
			Fallback: fallback.Options{
				Title:   app.OfflineTitle,
				Message: app.OfflineMessage,
			},
			MaxBodyBytes: cfg.Global.MaxBodyBytes,
			Logger:       logger,
		})

		if err := installConfiguredVersion(ctx, interceptor, app, logger); err != nil {
			return err
		}

		channel := control.NewChannel(0)
		if err := forwarder.Register(proxy.AppRegistration{
			Name:        app.Name,
			Interceptor: interceptor,
			Control:     channel,
		}); err != nil {
			channel.Close()
			return fmt.Errorf("register app %s: %w", app.Name, err)
		}
		go channel.Run(ctx, interceptor)
	}
	return nil
}

// installConfiguredVersion 安装并激活配置中的版本。预热失败的资源只记录日志，不阻止启动；
// 只有缓存后端本身不可用时才返回错误。
func installConfiguredVersion(ctx context.Context, interceptor *proxy.Interceptor, app config.AppConfig, logger *logrus.Logger) error {
	fields := logrus.Fields{"action": "install", "app": app.Name, "version": app.Version}

	report, err := interceptor.OnInstall(ctx, app.Version)
	if err != nil {
		return fmt.Errorf("install %s@%s: %w", app.Name, app.Version, err)
	}
	fields["stored"] = len(report.Stored)
	fields["failed"] = len(report.Failed)
	fields["auto_activated"] = report.AutoActivated
	if len(report.Failed) > 0 {
		logger.WithFields(fields).Warn("precache_partial")
	} else {
		logger.WithFields(fields).Info("precache_complete")
	}

	if report.AutoActivated {
		return nil
	}
	activated, err := interceptor.OnActivate(ctx)
	if err != nil && !errors.Is(err, lifecycle.ErrNothingWaiting) {
		return fmt.Errorf("activate %s@%s: %w", app.Name, app.Version, err)
	}
	if err == nil {
		logger.WithFields(logrus.Fields{
			"action":  "activate",
			"app":     app.Name,
			"version": activated.Generation.Version,
			"deleted": activated.Deleted,
		}).Info("generation_activated")
	}
	return nil
}

func closeControlChannels(forwarder *proxy.Forwarder) {
	for _, reg := range forwarder.List() {
		if reg.Control != nil {
			reg.Control.Close()
		}
	}
}
