package config

import "testing"

func TestLoadFailsWithMissingFields(t *testing.T) {
	if _, err := Load(testConfigPath("missing.toml")); err == nil {
		t.Fatalf("缺失字段的配置应返回错误")
	}
}

func TestLoadRejectsInvalidDuration(t *testing.T) {
	path := writeConfig(t, `
LogLevel = "info"
StoragePath = "./data"
FetchTimeout = "boom"
`, shopApp)
	if _, err := Load(path); err == nil {
		t.Fatalf("无效 Duration 应失败")
	}
}

func TestLoadRejectsAppLevelPort(t *testing.T) {
	path := writeConfig(t, "", shopApp+"Port = 6000\n")
	_, err := Load(path)
	fieldErr, ok := err.(FieldError)
	if !ok || fieldErr.Field != "App[shop].Port" {
		t.Fatalf("App 级端口应被拒绝, got %v", err)
	}
}

func TestLoadParsesIntegerSeconds(t *testing.T) {
	path := writeConfig(t, `
StorageBackend = "Memory"
FetchTimeout = 5
`, shopApp)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.FetchTimeout.DurationValue().Seconds() != 5 {
		t.Fatalf("整数秒应被解析, got %s", loaded.Global.FetchTimeout.DurationValue())
	}
	if loaded.Global.StorageBackend != "memory" {
		t.Fatalf("StorageBackend 应被标准化, got %s", loaded.Global.StorageBackend)
	}
}

func TestLoadTrimsAdminToken(t *testing.T) {
	path := writeConfig(t, `AdminToken = "  s3cret  "`, shopApp)
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.AdminToken != "s3cret" {
		t.Fatalf("AdminToken 应去除空白, got %q", loaded.Global.AdminToken)
	}

	path = writeConfig(t, "", shopApp)
	loaded, err = Load(path)
	if err != nil {
		t.Fatalf("Load 返回错误: %v", err)
	}
	if loaded.Global.AdminToken != "" {
		t.Fatalf("未配置 AdminToken 时应为空, got %q", loaded.Global.AdminToken)
	}
}

func TestLoadRejectsDuplicateAppNames(t *testing.T) {
	blog := `
[[App]]
Name = "shop"
Domain = "blog.local"
Origin = "https://blog.example.com"
Version = "1"
`
	if _, err := Load(writeConfig(t, "", shopApp, blog)); err == nil {
		t.Fatalf("重复 App 名称应失败")
	}
}
