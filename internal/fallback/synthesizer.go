// Package fallback synthesizes the placeholder responses returned when neither
// the network nor any cache store can answer a request. Synthesis is pure and
// every result is marked no-store so it never ends up in a cache.
package fallback

import (
	"encoding/json"
	"html/template"
	"net/http"
	"strings"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/traffic"
)

const (
	DefaultTitle   = "Offline"
	DefaultMessage = "No internet connection available"
)

const placeholderSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="200" viewBox="0 0 200 200">` +
	`<rect width="200" height="200" fill="#f3f4f6"/>` +
	`<path d="M70 130l25-30 20 22 15-18 20 26z" fill="#d1d5db"/>` +
	`<circle cx="80" cy="75" r="12" fill="#d1d5db"/>` +
	`</svg>`

var offlinePage = template.Must(template.New("offline").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body{font-family:system-ui,sans-serif;display:flex;align-items:center;justify-content:center;min-height:100vh;margin:0;background:#f9fafb;color:#111827}
main{text-align:center;padding:2rem}
button{margin-top:1rem;padding:.6rem 1.4rem;border:0;border-radius:6px;background:#2563eb;color:#fff;font-size:1rem;cursor:pointer}
</style>
</head>
<body>
<main>
<h1>{{.Title}}</h1>
<p>{{.Message}}</p>
<button type="button" onclick="location.reload()">Retry</button>
</main>
</body>
</html>
`))

// Options 控制 fallback 的文案，空值使用默认文案。
type Options struct {
	Title   string
	Message string
}

// Synthesizer 负责生成不同流量类别的兜底响应。HTML 与 JSON 正文在构造时预先渲染。
type Synthesizer struct {
	page []byte
	api  []byte
}

// New 预渲染各类别的兜底正文。
func New(opts Options) *Synthesizer {
	title := strings.TrimSpace(opts.Title)
	if title == "" {
		title = DefaultTitle
	}
	message := strings.TrimSpace(opts.Message)
	if message == "" {
		message = DefaultMessage
	}

	var page strings.Builder
	// 模板固定且数据只有字符串，渲染不会失败。
	_ = offlinePage.Execute(&page, struct{ Title, Message string }{title, message})

	api, _ := json.Marshal(struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}{Error: "Offline", Message: message})

	return &Synthesizer{page: []byte(page.String()), api: api}
}

// Synthesize 返回 class 对应的兜底响应，未知类别按导航页处理。
func (s *Synthesizer) Synthesize(class traffic.Class) *cache.Response {
	switch class {
	case traffic.ClassImage:
		return build(http.StatusOK, "image/svg+xml", []byte(placeholderSVG))
	case traffic.ClassAPI:
		return build(http.StatusServiceUnavailable, "application/json", s.api)
	default:
		return build(http.StatusOK, "text/html; charset=utf-8", s.page)
	}
}

func build(status int, contentType string, body []byte) *cache.Response {
	header := http.Header{}
	header.Set("Content-Type", contentType)
	header.Set("Cache-Control", "no-store")
	copied := make([]byte, len(body))
	copy(copied, body)
	return &cache.Response{Status: status, Header: header, Body: copied}
}
