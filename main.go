package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/config"
	"github.com/any-hub/any-offline/internal/logging"
	"github.com/any-hub/any-offline/internal/proxy"
	"github.com/any-hub/any-offline/internal/server"
	"github.com/any-hub/any-offline/internal/server/routes"
	"github.com/any-hub/any-offline/internal/version"
)

// cliOptions 汇总 CLI 标志解析后的结果，便于在测试中注入。
type cliOptions struct {
	configPath  string
	checkOnly   bool
	showVersion bool
}

var (
	stdOut io.Writer = os.Stdout
	stdErr io.Writer = os.Stderr
)

// configEnv 指定配置文件路径的环境变量，优先级低于 --config。
const configEnv = "ANY_OFFLINE_CONFIG"

func main() {
	opts, err := parseCLIFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(stdErr, err.Error())
		os.Exit(2)
	}
	os.Exit(run(opts))
}

// run 根据解析到的 CLI 选项执行业务流程，并返回退出码，方便测试。
func run(opts cliOptions) int {
	if opts.showVersion {
		printVersion()
		return 0
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		fmt.Fprintf(stdErr, "加载配置失败: %v\n", err)
		return 1
	}

	logger, err := logging.InitLogger(cfg.Global)
	if err != nil {
		fmt.Fprintf(stdErr, "初始化日志失败: %v\n", err)
		return 1
	}

	if opts.checkOnly {
		fields := logging.BaseFields("check_config", opts.configPath)
		fields["apps"] = config.Summaries(cfg.Apps)
		fields["storage_backend"] = cfg.Global.StorageBackend
		fields["result"] = "ok"
		logger.WithFields(fields).Info("配置校验通过")
		return 0
	}

	registry, err := server.NewAppRegistry(cfg)
	if err != nil {
		fmt.Fprintf(stdErr, "构建 App 注册表失败: %v\n", err)
		return 1
	}

	// 启动顺序：配置 → AppRegistry → 缓存后端 → 各 App 拦截器（安装并激活配置版本）→ Fiber server。
	stores, closer, err := cache.Open(cache.Options{
		Backend:       cfg.Global.StorageBackend,
		Path:          cfg.Global.StoragePath,
		RedisAddr:     cfg.Global.RedisAddr,
		RedisPassword: cfg.Global.RedisPassword,
		RedisDB:       cfg.Global.RedisDB,
		RedisPrefix:   "any-offline",
	})
	if err != nil {
		fmt.Fprintf(stdErr, "初始化缓存后端失败: %v\n", err)
		return 1
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpClient := server.NewUpstreamClient(cfg)
	forwarder := proxy.NewForwarder(proxy.NewHandler(logger), logger)
	if err := bootstrapApps(ctx, cfg, registry, stores, httpClient, forwarder, logger); err != nil {
		fmt.Fprintf(stdErr, "初始化 App 失败: %v\n", err)
		return 1
	}
	defer closeControlChannels(forwarder)

	fields := logging.BaseFields("startup", opts.configPath)
	fields["apps"] = len(cfg.Apps)
	fields["listen_port"] = cfg.Global.ListenPort
	fields["storage_backend"] = cfg.Global.StorageBackend
	fields["admin_routes"] = cfg.Global.AdminToken != ""
	fields["version"] = version.Full()
	logger.WithFields(fields).Info("配置加载完成")

	if err := startHTTPServer(ctx, cfg, registry, forwarder, logger); err != nil {
		fmt.Fprintf(stdErr, "HTTP 服务启动失败: %v\n", err)
		return 1
	}
	return 0
}

// parseCLIFlags 解析 CLI 参数，并结合环境变量计算最终的配置路径。
func parseCLIFlags(args []string) (cliOptions, error) {
	fs := flag.NewFlagSet("any-offline", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var (
		configFlag string
		checkOnly  bool
		showVer    bool
	)

	fs.StringVar(&configFlag, "config", "", "配置文件路径（默认 ./config.toml，可被 ANY_OFFLINE_CONFIG 覆盖）")
	fs.BoolVar(&checkOnly, "check-config", false, "仅校验配置后退出")
	fs.BoolVar(&showVer, "version", false, "显示版本信息")

	if err := fs.Parse(args); err != nil {
		return cliOptions{}, fmt.Errorf("解析参数失败: %w", err)
	}

	path := os.Getenv(configEnv)
	if configFlag != "" {
		path = configFlag
	}
	if path == "" {
		path = "config.toml"
	}

	return cliOptions{
		configPath:  path,
		checkOnly:   checkOnly,
		showVersion: showVer,
	}, nil
}

func startHTTPServer(ctx context.Context, cfg *config.Config, registry *server.AppRegistry, forwarder *proxy.Forwarder, logger *logrus.Logger) error {
	port := cfg.Global.ListenPort
	app, err := server.NewApp(server.AppOptions{
		Logger:     logger,
		Registry:   registry,
		Proxy:      forwarder,
		ListenPort: port,
		BodyLimit:  bodyLimit(cfg.Global.MaxBodyBytes),
	})
	if err != nil {
		return err
	}
	routes.RegisterAppRoutes(app, registry, forwarder)
	routes.RegisterAdminRoutes(app, forwarder, cfg.Global.AdminToken)
	routes.RegisterStrategyRoutes(app)
	if cfg.Global.MetricsEnabled {
		routes.RegisterMetricsRoute(app)
	}

	go func() {
		<-ctx.Done()
		_ = app.Shutdown()
	}()

	logger.WithFields(logrus.Fields{
		"action": "listen",
		"port":   port,
	}).Info("Fiber 服务启动")

	err = app.Listen(fmt.Sprintf(":%d", port))
	if err != nil && errors.Is(ctx.Err(), context.Canceled) {
		return nil
	}
	return err
}

// bodyLimit 入站请求体上限与缓存写入上限保持一致，超出 int 范围时交给 Fiber 默认值。
func bodyLimit(maxBytes int64) int {
	if maxBytes <= 0 || maxBytes > int64(^uint(0)>>1) {
		return 0
	}
	return int(maxBytes)
}
