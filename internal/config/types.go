package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/any-hub/any-offline/internal/strategy"
)

// Duration 提供更灵活的反序列化能力，同时兼容纯秒整数与 Go Duration 字符串。
type Duration time.Duration

// UnmarshalText 使 Viper 可以识别诸如 "30s"、"5m" 或纯数字秒值等配置写法。
func (d *Duration) UnmarshalText(text []byte) error {
	raw := strings.TrimSpace(string(text))
	if raw == "" {
		*d = Duration(0)
		return nil
	}

	if parsed, err := time.ParseDuration(raw); err == nil {
		*d = Duration(parsed)
		return nil
	}

	if intVal, err := parseInt(raw); err == nil {
		*d = Duration(time.Duration(intVal) * time.Second)
		return nil
	}

	return fmt.Errorf("invalid duration value: %s", raw)
}

// DurationValue 返回真实的 time.Duration，便于调用方计算。
func (d Duration) DurationValue() time.Duration {
	return time.Duration(d)
}

// parseInt 支持十进制或 0x 前缀的十六进制字符串解析。
func parseInt(value string) (int64, error) {
	if strings.HasPrefix(value, "0x") || strings.HasPrefix(value, "0X") {
		return strconv.ParseInt(value, 0, 64)
	}
	return strconv.ParseInt(value, 10, 64)
}

// GlobalConfig 描述全局运行时行为，所有 App 共享同一份参数。
type GlobalConfig struct {
	ListenPort     int      `mapstructure:"ListenPort"`
	LogLevel       string   `mapstructure:"LogLevel"`
	LogFilePath    string   `mapstructure:"LogFilePath"`
	LogMaxSize     int      `mapstructure:"LogMaxSize"`
	LogMaxBackups  int      `mapstructure:"LogMaxBackups"`
	LogCompress    bool     `mapstructure:"LogCompress"`
	StorageBackend string   `mapstructure:"StorageBackend"`
	StoragePath    string   `mapstructure:"StoragePath"`
	RedisAddr      string   `mapstructure:"RedisAddr"`
	RedisPassword  string   `mapstructure:"RedisPassword"`
	RedisDB        int      `mapstructure:"RedisDB"`
	FetchTimeout   Duration `mapstructure:"FetchTimeout"`
	MaxBodyBytes   int64    `mapstructure:"MaxBodyBytes"`
	MetricsEnabled bool     `mapstructure:"MetricsEnabled"`
	// AdminToken 为空时不注册 /-/apps/:name/install 与 /-/apps/:name/control。
	AdminToken string `mapstructure:"AdminToken"`
}

// AppConfig 描述一个被拦截的应用：对外 Domain、真实源站与缓存代际版本。
type AppConfig struct {
	Name               string   `mapstructure:"Name"`
	Domain             string   `mapstructure:"Domain"`
	Origin             string   `mapstructure:"Origin"`
	Version            string   `mapstructure:"Version"`
	Precache           []string `mapstructure:"Precache"`
	APIPathMarkers     []string `mapstructure:"APIPathMarkers"`
	APIHostMarkers     []string `mapstructure:"APIHostMarkers"`
	FetchTimeout       Duration `mapstructure:"FetchTimeout"`
	OfflineMessage     string   `mapstructure:"OfflineMessage"`
	OfflineTitle       string   `mapstructure:"OfflineTitle"`
	ImageStrategy      string   `mapstructure:"ImageStrategy"`
	APIStrategy        string   `mapstructure:"APIStrategy"`
	NavigationStrategy string   `mapstructure:"NavigationStrategy"`
}

// Config 是 TOML 文件映射的整体结构。
type Config struct {
	Global GlobalConfig `mapstructure:",squash"`
	Apps   []AppConfig  `mapstructure:"App"`
}

// StrategyOverrides 将 App 层的按类别策略配置映射为 strategy 覆盖项。
func (a AppConfig) StrategyOverrides() strategy.Overrides {
	return strategy.Overrides{
		Image:      strings.TrimSpace(a.ImageStrategy),
		API:        strings.TrimSpace(a.APIStrategy),
		Navigation: strings.TrimSpace(a.NavigationStrategy),
	}
}

// Summaries 返回所有 App 的 name:version 摘要，供启动日志使用。
func Summaries(apps []AppConfig) []string {
	if len(apps) == 0 {
		return nil
	}
	result := make([]string, len(apps))
	for i, app := range apps {
		result[i] = fmt.Sprintf("%s:v%s", app.Name, strings.TrimPrefix(app.Version, "v"))
	}
	return result
}
