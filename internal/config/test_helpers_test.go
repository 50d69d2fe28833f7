package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// shopApp 是多数加载测试共用的最小 [[App]] 段。
const shopApp = `
[[App]]
Name = "shop"
Domain = "shop.local"
Origin = "https://shop.example.com"
Version = "1"
`

func testConfigPath(name string) string {
	return filepath.Join("testdata", name)
}

// writeConfig 把全局段与若干 [[App]] 段拼接成临时 config.toml 并返回路径。
func writeConfig(t *testing.T, global string, apps ...string) string {
	t.Helper()
	var b strings.Builder
	b.WriteString(strings.TrimSpace(global))
	for _, app := range apps {
		b.WriteString("\n\n")
		b.WriteString(strings.TrimSpace(app))
	}
	b.WriteString("\n")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		t.Fatalf("写入临时配置失败: %v", err)
	}
	return path
}
