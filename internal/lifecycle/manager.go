package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/metrics"
	"github.com/any-hub/any-offline/internal/traffic"
)

var (
	// ErrNothingWaiting 表示没有已安装、待激活的代际。
	ErrNothingWaiting = errors.New("no generation waiting for activation")
	// ErrNotInstalled 表示尚未安装任何代际。
	ErrNotInstalled = errors.New("no generation installed")
	// ErrEmptyVersion 表示安装时未提供版本号。
	ErrEmptyVersion = errors.New("version is required")
)

// Fetcher 是预热时使用的网络抓取接口，由 proxy.NetworkFetcher 实现。
type Fetcher interface {
	Fetch(ctx context.Context, req *traffic.Request) (*cache.Response, error)
}

// Options 描述 Manager 的依赖。
type Options struct {
	App      string
	Origin   *url.URL
	Manifest []string
	Registry cache.Registry
	Fetcher  Fetcher
	Logger   *logrus.Logger
}

// InstallReport 汇总一次安装的预热结果。
type InstallReport struct {
	Generation    Generation        `json:"generation"`
	Stored        []string          `json:"stored"`
	Failed        map[string]string `json:"failed,omitempty"`
	AutoActivated bool              `json:"auto_activated"`
}

// ActivateReport 汇总一次激活删除的旧仓。
type ActivateReport struct {
	Generation Generation        `json:"generation"`
	Deleted    []string          `json:"deleted"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Manager 维护单个 App 的代际状态。Install/Activate 串行执行，
// 代际指针由 RWMutex 保护，请求路径只读取 Current()。
type Manager struct {
	opts Options

	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	active  *Generation
	waiting *Generation
}

// NewManager 构造生命周期管理器，初始状态为 idle。
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	return &Manager{opts: opts, state: StateIdle}
}

// Install 打开 static 仓并预热清单。单个资源失败只记录日志，不影响安装结果。
// 进程内的首次安装会立即激活；之后的安装进入 waiting，等待 Activate 或 SkipWaiting。
func (m *Manager) Install(ctx context.Context, version string) (InstallReport, error) {
	gen := NewGeneration(version)
	if gen.IsZero() {
		return InstallReport{}, ErrEmptyVersion
	}

	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	prevState := m.state
	sameAsActive := m.active != nil && m.active.Version == gen.Version
	if !sameAsActive {
		m.state = StateInstalling
	}
	m.mu.Unlock()
	if !sameAsActive {
		m.observe(StateInstalling)
	}

	report := InstallReport{Generation: gen}
	store, err := m.opts.Registry.Open(ctx, gen.Static)
	if err != nil {
		m.setState(prevState)
		metrics.ObserveStoreError(m.opts.App, "open")
		return report, fmt.Errorf("open %s: %w", gen.Static, err)
	}
	report.Stored, report.Failed = m.precache(ctx, store)

	m.opts.Logger.WithFields(logrus.Fields{
		"app":     m.opts.App,
		"version": gen.Version,
		"stored":  len(report.Stored),
		"failed":  len(report.Failed),
	}).Info("install_complete")

	if sameAsActive {
		return report, nil
	}

	m.mu.Lock()
	first := m.active == nil
	m.waiting = &gen
	m.mu.Unlock()

	if first {
		if _, err := m.activateLocked(ctx); err != nil {
			return report, err
		}
		report.AutoActivated = true
		return report, nil
	}
	m.setState(StateWaiting)
	return report, nil
}

// Activate 提升 waiting 代际（若存在），并删除所有不属于当前代际的仓。重复调用是安全的。
func (m *Manager) Activate(ctx context.Context) (ActivateReport, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()
	return m.activateLocked(ctx)
}

// SkipWaiting 立即激活 waiting 代际；没有 waiting 代际时返回 ErrNothingWaiting。
func (m *Manager) SkipWaiting(ctx context.Context) (ActivateReport, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.RLock()
	hasWaiting := m.waiting != nil
	m.mu.RUnlock()
	if !hasWaiting {
		return ActivateReport{}, ErrNothingWaiting
	}
	return m.activateLocked(ctx)
}

// Current 返回当前激活的代际。
func (m *Manager) Current() (Generation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.active == nil {
		return Generation{}, false
	}
	return *m.active, true
}

// Waiting 返回已安装但尚未激活的代际。
func (m *Manager) Waiting() (Generation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.waiting == nil {
		return Generation{}, false
	}
	return *m.waiting, true
}

// Status 返回状态快照。
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	status := Status{State: m.state}
	if m.active != nil {
		active := *m.active
		status.Active = &active
	}
	if m.waiting != nil {
		waiting := *m.waiting
		status.Waiting = &waiting
	}
	return status
}

func (m *Manager) activateLocked(ctx context.Context) (ActivateReport, error) {
	m.mu.Lock()
	if m.waiting == nil && m.active == nil {
		m.mu.Unlock()
		return ActivateReport{}, ErrNotInstalled
	}
	if m.waiting != nil {
		m.active = m.waiting
		m.waiting = nil
	}
	gen := *m.active
	m.state = StateActivating
	m.mu.Unlock()
	m.observe(StateActivating)

	report := ActivateReport{Generation: gen, Deleted: []string{}}
	names, err := m.opts.Registry.Keys(ctx)
	if err != nil {
		// 代际已经切换，旧仓留到下一次激活再清理。
		metrics.ObserveStoreError(m.opts.App, "keys")
		m.opts.Logger.WithError(err).WithField("app", m.opts.App).Warn("activate_list_stores_failed")
		m.setState(StateActivated)
		return report, nil
	}
	for _, name := range names {
		if gen.Owns(name) {
			continue
		}
		deleted, err := m.opts.Registry.Delete(ctx, name)
		if err != nil {
			if report.Failed == nil {
				report.Failed = make(map[string]string)
			}
			report.Failed[name] = err.Error()
			metrics.ObserveStoreError(m.opts.App, "delete")
			m.opts.Logger.WithError(err).WithFields(logrus.Fields{"app": m.opts.App, "store": name}).Warn("store_delete_failed")
			continue
		}
		if deleted {
			report.Deleted = append(report.Deleted, name)
		}
	}
	metrics.ObserveStoresDeleted(m.opts.App, len(report.Deleted))
	m.setState(StateActivated)

	m.opts.Logger.WithFields(logrus.Fields{
		"app":     m.opts.App,
		"version": gen.Version,
		"deleted": report.Deleted,
	}).Info("activate_complete")
	return report, nil
}

func (m *Manager) precache(ctx context.Context, store cache.Store) ([]string, map[string]string) {
	stored := []string{}
	var failed map[string]string
	fail := func(asset string, err error) {
		if failed == nil {
			failed = make(map[string]string)
		}
		failed[asset] = err.Error()
		metrics.ObservePrecache(m.opts.App, "failed")
		m.opts.Logger.WithError(err).WithFields(logrus.Fields{"app": m.opts.App, "asset": asset}).Warn("precache_failed")
	}

	for _, asset := range m.opts.Manifest {
		target, err := m.resolveAsset(asset)
		if err != nil {
			fail(asset, err)
			continue
		}
		if m.opts.Fetcher == nil {
			fail(asset, errors.New("no fetcher configured"))
			continue
		}
		req := &traffic.Request{Method: http.MethodGet, URL: target, Header: http.Header{}}
		resp, err := m.opts.Fetcher.Fetch(ctx, req)
		if err != nil {
			fail(asset, err)
			continue
		}
		if !resp.OK() {
			fail(asset, fmt.Errorf("unexpected status %d", resp.Status))
			continue
		}
		if err := store.Put(ctx, cache.NewRequestKey(http.MethodGet, target), resp); err != nil {
			metrics.ObserveStoreError(m.opts.App, "put")
			fail(asset, err)
			continue
		}
		stored = append(stored, asset)
		metrics.ObservePrecache(m.opts.App, "stored")
	}
	return stored, failed
}

// resolveAsset 将清单条目解析为绝对 URL：相对条目以外壳页（源站路径目录）为基准，
// 以 "/" 开头的条目相对于源站主机根。
func (m *Manager) resolveAsset(asset string) (*url.URL, error) {
	trimmed := strings.TrimSpace(asset)
	if trimmed == "" {
		return nil, errors.New("empty manifest entry")
	}
	ref, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse manifest entry: %w", err)
	}
	if ref.IsAbs() {
		return ref, nil
	}
	if m.opts.Origin == nil {
		return nil, errors.New("relative manifest entry without origin")
	}
	return traffic.ShellURL(m.opts.Origin).ResolveReference(ref), nil
}

func (m *Manager) setState(state State) {
	m.mu.Lock()
	m.state = state
	m.mu.Unlock()
	m.observe(state)
}

func (m *Manager) observe(state State) {
	metrics.ObserveTransition(m.opts.App, string(state))
}
