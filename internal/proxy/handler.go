package proxy

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"
	"github.com/sirupsen/logrus"

	"github.com/any-hub/any-offline/internal/cache"
	"github.com/any-hub/any-offline/internal/server"
	"github.com/any-hub/any-offline/internal/traffic"
)

// 响应头：标记拦截类别与响应来源，便于客户端与排障工具识别离线兜底。
const (
	HeaderClass  = "X-Any-Offline-Class"
	HeaderSource = "X-Any-Offline-Source"
)

// Handler 负责 Fiber 请求与 traffic.Request / Result 之间的转换。
type Handler struct {
	logger *logrus.Logger
}

// NewHandler constructs a fiber adapter around interceptors.
func NewHandler(logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{logger: logger}
}

// Serve 将请求交给 interceptor，并写回最终响应。只有跳过拦截的转发失败会返回 502。
func (h *Handler) Serve(c fiber.Ctx, route *server.AppRoute, interceptor *Interceptor) error {
	requestID := server.RequestID(c)
	req := buildRequest(c, route)

	result, err := interceptor.Handle(c.Context(), req)
	if err != nil {
		setRequestIDHeader(c, requestID)
		c.Set(HeaderClass, string(result.Class))
		c.Set(HeaderSource, string(SourcePassthrough))
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "upstream_failed"})
	}
	return writeResult(c, result, requestID)
}

// buildRequest 还原请求的绝对 URL：普通请求映射到 App 源站；
// absolute-form 请求只有 Host 等于 App Domain 时才映射，其余保持原 URL（跨域）。
func buildRequest(c fiber.Ctx, route *server.AppRoute) *traffic.Request {
	target := resolveTargetURL(c, route)
	header := fiberHeadersAsHTTP(c)
	header.Set("X-Forwarded-Host", c.Hostname())
	if ip := c.IP(); ip != "" {
		if prior := header.Get("X-Forwarded-For"); prior != "" {
			header.Set("X-Forwarded-For", prior+", "+ip)
		} else {
			header.Set("X-Forwarded-For", ip)
		}
	}
	header.Set("X-Forwarded-Proto", c.Scheme())
	if route != nil && route.ListenPort > 0 {
		header.Set("X-Forwarded-Port", strconv.Itoa(route.ListenPort))
	}

	var body []byte
	if raw := c.Body(); len(raw) > 0 {
		body = append([]byte(nil), raw...)
	}

	return &traffic.Request{
		Method:      c.Method(),
		URL:         target,
		Destination: traffic.DestinationFromHeaders(header, target),
		Header:      header,
		Body:        body,
	}
}

func resolveTargetURL(c fiber.Ctx, route *server.AppRoute) *url.URL {
	raw := string(c.Request().Header.RequestURI())
	if isAbsoluteForm(raw) {
		if parsed, err := url.Parse(raw); err == nil && parsed.Host != "" {
			if !route.MatchesDomain(parsed.Host) {
				return parsed
			}
			return originURL(route, parsed.Path, parsed.RawQuery)
		}
	}
	return originURL(route, string(c.Request().URI().Path()), string(c.Request().URI().QueryString()))
}

func originURL(route *server.AppRoute, path, rawQuery string) *url.URL {
	target := &url.URL{}
	if route != nil && route.OriginURL != nil {
		*target = *route.OriginURL
	}
	if path == "" {
		path = "/"
	}
	target.Path = strings.TrimSuffix(target.Path, "/") + path
	target.RawPath = ""
	target.RawQuery = rawQuery
	target.Fragment = ""
	return target
}

func isAbsoluteForm(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://")
}

func writeResult(c fiber.Ctx, result Result, requestID string) error {
	resp := result.Response
	if resp == nil {
		resp = &cache.Response{Status: http.StatusNoContent}
	}
	copyResponseHeaders(c, resp.Header)
	c.Set(HeaderClass, string(result.Class))
	c.Set(HeaderSource, string(result.Source))
	setRequestIDHeader(c, requestID)
	c.Status(resp.Status)

	if c.Method() == http.MethodHead {
		return nil
	}
	return c.Send(resp.Body)
}

func fiberHeadersAsHTTP(c fiber.Ctx) http.Header {
	header := http.Header{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		header.Add(string(key), string(value))
	})
	return header
}

func copyResponseHeaders(c fiber.Ctx, headers http.Header) {
	for key, values := range headers {
		if server.IsHopByHopHeader(key) || strings.EqualFold(key, "Content-Length") {
			continue
		}
		for _, value := range values {
			c.Response().Header.Add(key, value)
		}
	}
}

func setRequestIDHeader(c fiber.Ctx, requestID string) {
	if requestID != "" {
		c.Set("X-Request-ID", requestID)
	}
}
