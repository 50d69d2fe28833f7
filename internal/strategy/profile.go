package strategy

import (
	"fmt"
	"strings"

	"github.com/any-hub/any-offline/internal/traffic"
)

// Step 是 dispatch 中的单个步骤。
type Step string

const (
	// StepCache 按 RequestKey 查询 dynamic，再查询 static。
	StepCache Step = "cache"
	// StepNetwork 访问源站，成功时按 profile 决定是否写入 dynamic。
	StepNetwork Step = "network"
	// StepRootCache 查询站点根路径 `/` 的缓存，作为导航请求的软兜底。
	StepRootCache Step = "root-cache"
	// StepFallback 合成兜底响应，总是成功。
	StepFallback Step = "fallback"
)

// Profile 描述一个类别的步骤序列。
type Profile struct {
	Key          string
	Description  string
	Steps        []Step
	WriteThrough bool
}

// String 以 `a → b → c` 的形式输出步骤，供日志与诊断端使用。
func (p Profile) String() string {
	parts := make([]string, len(p.Steps))
	for i, step := range p.Steps {
		parts[i] = string(step)
	}
	return strings.Join(parts, " → ")
}

// UsesNetwork 报告 profile 是否包含网络步骤。
func (p Profile) UsesNetwork() bool {
	for _, step := range p.Steps {
		if step == StepNetwork {
			return true
		}
	}
	return false
}

// Overrides 描述来自 App 配置的按类别覆盖。
type Overrides struct {
	Image      string
	API        string
	Navigation string
}

func (o Overrides) forClass(class traffic.Class) string {
	switch class {
	case traffic.ClassImage:
		return o.Image
	case traffic.ClassAPI:
		return o.API
	case traffic.ClassNavigation:
		return o.Navigation
	default:
		return ""
	}
}

// Set 是一个 App 已解析完成的类别 → profile 映射。
type Set map[traffic.Class]Profile

// For 返回类别对应的 profile；未知类别回退到 navigation profile。
func (s Set) For(class traffic.Class) Profile {
	if profile, ok := s[class]; ok {
		return profile
	}
	return s[traffic.ClassNavigation]
}

// DefaultKey 返回类别的内置 profile 键。
func DefaultKey(class traffic.Class) string {
	switch class {
	case traffic.ClassImage:
		return KeyCacheFirst
	case traffic.ClassAPI:
		return KeyNetworkFirst
	default:
		return KeyNetworkFirstShell
	}
}

// ResolveSet 将各类别默认 profile 与 App 级覆盖合并。
func ResolveSet(overrides Overrides) (Set, error) {
	set := make(Set, len(traffic.Classes()))
	for _, class := range traffic.Classes() {
		key := strings.TrimSpace(overrides.forClass(class))
		if key == "" {
			key = DefaultKey(class)
		}
		profile, ok := Resolve(key)
		if !ok {
			return nil, fmt.Errorf("unknown strategy %q for %s traffic", key, class)
		}
		set[class] = normalizeProfile(profile)
	}
	return set, nil
}

// normalizeProfile 截断 fallback 之后的步骤，并在缺失时补上 fallback。
func normalizeProfile(profile Profile) Profile {
	steps := make([]Step, 0, len(profile.Steps)+1)
	for _, step := range profile.Steps {
		steps = append(steps, step)
		if step == StepFallback {
			break
		}
	}
	if len(steps) == 0 || steps[len(steps)-1] != StepFallback {
		steps = append(steps, StepFallback)
	}
	profile.Steps = steps
	return profile
}
