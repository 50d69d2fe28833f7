// Package traffic sorts outbound requests into traffic classes before a
// fetch/cache strategy is chosen. Classification is pure and total:
// ambiguous requests default to Navigation.
package traffic

import (
	"net/http"
	"net/url"
	"strings"
)

// Class 是请求的流量类别。
type Class string

const (
	ClassImage      Class = "image"
	ClassAPI        Class = "api"
	ClassNavigation Class = "navigation"
	// ClassSkipped 表示不拦截，原样转发到网络。
	ClassSkipped Class = "skipped"
)

// Classes 返回所有可被拦截的类别，顺序固定。
func Classes() []Class {
	return []Class{ClassImage, ClassAPI, ClassNavigation}
}

func (c Class) String() string {
	return string(c)
}

// ParseClass 解析配置或诊断接口里的类别名。
func ParseClass(raw string) (Class, bool) {
	switch Class(strings.ToLower(strings.TrimSpace(raw))) {
	case ClassImage:
		return ClassImage, true
	case ClassAPI:
		return ClassAPI, true
	case ClassNavigation:
		return ClassNavigation, true
	case ClassSkipped:
		return ClassSkipped, true
	default:
		return "", false
	}
}

// DestinationImage 对应浏览器 Request.destination 的 "image"。
const DestinationImage = "image"

// Request 是被拦截请求的最小描述：URL、方法、destination 提示，外加转发所需的头与正文。
type Request struct {
	Method      string
	URL         *url.URL
	Destination string
	Header      http.Header
	Body        []byte
}

// IsGet 报告请求是否为 GET。
func (r *Request) IsGet() bool {
	return r != nil && strings.EqualFold(r.Method, http.MethodGet)
}
