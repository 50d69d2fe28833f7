// Package lifecycle 管理缓存代际（generation）的安装与激活。
//
// 每个版本对应一对仓：static-v<version> 在安装时预热，dynamic-v<version> 在首次写入时惰性创建。
// 激活会删除所有不属于当前代际的仓，这是唯一的淘汰机制，没有逐条过期。
package lifecycle

import "strings"

const (
	RoleStatic  = "static"
	RoleDynamic = "dynamic"
)

// Generation 是某个版本的一对仓名。
type Generation struct {
	Version string `json:"version"`
	Static  string `json:"static"`
	Dynamic string `json:"dynamic"`
}

// NewGeneration 按 `<role>-v<version>` 生成仓名，版本号前导的 v 会被去掉。
func NewGeneration(version string) Generation {
	v := normalizeVersion(version)
	return Generation{
		Version: v,
		Static:  StoreName(RoleStatic, v),
		Dynamic: StoreName(RoleDynamic, v),
	}
}

// StoreName 返回 role 与 version 组合出的仓名。
func StoreName(role, version string) string {
	return role + "-v" + normalizeVersion(version)
}

// Owns 报告 name 是否为该代际的仓。
func (g Generation) Owns(name string) bool {
	return name == g.Static || name == g.Dynamic
}

// IsZero 报告代际是否未设置。
func (g Generation) IsZero() bool {
	return g.Version == ""
}

func normalizeVersion(version string) string {
	v := strings.TrimSpace(version)
	if len(v) > 1 && (v[0] == 'v' || v[0] == 'V') {
		v = v[1:]
	}
	return v
}
