package traffic

import (
	"net/http"
	"net/url"
	"path"
	"strings"
)

// DefaultAPIPathMarkers 是未配置时识别 API 请求的路径片段。
var DefaultAPIPathMarkers = []string{"/api/"}

// Classifier 根据 App 源站与 API 标记对请求分类。零值 Classifier 不识别任何同源请求。
type Classifier struct {
	origin      *url.URL
	pathMarkers []string
	hostMarkers []string
}

// NewClassifier 构造分类器；pathMarkers 为空时使用 DefaultAPIPathMarkers。
func NewClassifier(origin *url.URL, pathMarkers, hostMarkers []string) Classifier {
	if len(pathMarkers) == 0 {
		pathMarkers = DefaultAPIPathMarkers
	}
	return Classifier{
		origin:      origin,
		pathMarkers: normalizeMarkers(pathMarkers),
		hostMarkers: normalizeMarkers(hostMarkers),
	}
}

// Intercepts 是分类前的过滤：非 GET 请求、以及跨域的非图片请求都不拦截。
func (c Classifier) Intercepts(req *Request) bool {
	return c.Classify(req) != ClassSkipped
}

// Classify 按固定顺序给出流量类别：
//  1. 非 GET → Skipped
//  2. 跨域且 destination 不是 image → Skipped
//  3. destination == image → Image
//  4. 路径或主机命中 API 标记 → API
//  5. 其余 → Navigation
func (c Classifier) Classify(req *Request) Class {
	if req == nil || req.URL == nil || !req.IsGet() {
		return ClassSkipped
	}
	isImage := req.Destination == DestinationImage
	if !c.SameOrigin(req.URL) && !isImage {
		return ClassSkipped
	}
	if isImage {
		return ClassImage
	}
	if c.isAPI(req.URL) {
		return ClassAPI
	}
	return ClassNavigation
}

// SameOrigin 比较 scheme + host（含端口）。
func (c Classifier) SameOrigin(u *url.URL) bool {
	if c.origin == nil || u == nil {
		return false
	}
	return strings.EqualFold(u.Scheme, c.origin.Scheme) && strings.EqualFold(hostWithPort(u), hostWithPort(c.origin))
}

// isAPI 对路径与主机都做大小写不敏感匹配，标记在构造时已转为小写。
func (c Classifier) isAPI(u *url.URL) bool {
	p := strings.ToLower(u.EscapedPath())
	for _, marker := range c.pathMarkers {
		if strings.Contains(p, marker) {
			return true
		}
	}
	host := strings.ToLower(u.Host)
	for _, marker := range c.hostMarkers {
		if strings.Contains(host, marker) {
			return true
		}
	}
	return false
}

var imageExtensions = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".webp": {},
	".svg": {}, ".ico": {}, ".avif": {}, ".bmp": {},
}

// DestinationFromHeaders 推断请求的 destination：优先 Sec-Fetch-Dest，
// 其次 Accept: image/*，最后按图片扩展名判断。
func DestinationFromHeaders(header http.Header, u *url.URL) string {
	if dest := strings.ToLower(strings.TrimSpace(header.Get("Sec-Fetch-Dest"))); dest != "" {
		return dest
	}
	if accept := strings.ToLower(header.Get("Accept")); strings.HasPrefix(accept, "image/") {
		return DestinationImage
	}
	if u != nil {
		if _, ok := imageExtensions[strings.ToLower(path.Ext(u.Path))]; ok {
			return DestinationImage
		}
	}
	return ""
}

// ShellURL 返回 App 外壳页的 URL：源站路径补齐结尾的 "/"，
// 例如 https://host/app → https://host/app/。查询串与片段被丢弃。
func ShellURL(origin *url.URL) *url.URL {
	if origin == nil {
		return nil
	}
	shell := &url.URL{Scheme: origin.Scheme, User: origin.User, Host: origin.Host, Path: origin.Path}
	if !strings.HasSuffix(shell.Path, "/") {
		shell.Path += "/"
	}
	return shell
}

func hostWithPort(u *url.URL) string {
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if port == "" {
		switch strings.ToLower(u.Scheme) {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return host + ":" + port
}

func normalizeMarkers(markers []string) []string {
	result := make([]string, 0, len(markers))
	for _, m := range markers {
		if trimmed := strings.TrimSpace(m); trimmed != "" {
			result = append(result, strings.ToLower(trimmed))
		}
	}
	return result
}
