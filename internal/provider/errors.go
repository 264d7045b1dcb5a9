package provider

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound 表示“正常的空结果”：搜索页没有任何结果行，或详情页没有海报。
// 调用方用 errors.Is 分支处理，不应把它当作异常。
var ErrNotFound = errors.New("not found")

// IsNotFound 判断 err 是否为（包装过的）ErrNotFound。
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// TransportError 是所有抓取失败的统一外壳（网络错误、非 2xx、被拦截）。
// 抽取流程只区分 ErrNotFound 与 TransportError 两类，不关心底层细节。
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "transport error"
	}
	return fmt.Sprintf("抓取失败 %s：%v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTransport 判断 err 链上是否存在 *TransportError。
func IsTransport(err error) bool {
	var e *TransportError
	return errors.As(err, &e)
}

// ParseError 表示拿到了页面但无法构造文档树（空 body 等）。
// 单个字段解析失败不会产生它，只会让该字段降级为空值。
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	if e == nil {
		return "parse error"
	}
	return fmt.Sprintf("解析失败 %s：%v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// IsParse 判断 err 链上是否存在 *ParseError。
func IsParse(err error) bool {
	var e *ParseError
	return errors.As(err, &e)
}

// HTTPStatusError 表示站点返回了非 2xx 的 HTTP 状态码。
type HTTPStatusError struct {
	URL        string
	StatusCode int
	Location   string
}

func (e *HTTPStatusError) Error() string {
	if e == nil {
		return "HTTP status error"
	}
	loc := strings.TrimSpace(e.Location)
	if loc == "" {
		return fmt.Sprintf("HTTP %d", e.StatusCode)
	}
	return fmt.Sprintf("HTTP %d location=%s", e.StatusCode, loc)
}

// BlockedError 表示请求被站点引导到了“验证/拦截”页面。
// 不尝试绕过，直接视为抓取失败。
type BlockedError struct {
	URL    string
	Reason string
}

func (e *BlockedError) Error() string {
	if e == nil {
		return "blocked"
	}
	if strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}
