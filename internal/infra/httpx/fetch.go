package httpx

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/John-Robertt/mediameta/internal/provider"
)

const defaultMaxBody = 8 << 20

// blockMarkers 出现在响应体中即视为被引导到了验证/拦截页。
var blockMarkers = [][]byte{
	[]byte("/captcha"),
	[]byte("cf-browser-verification"),
	[]byte("challenges.cloudflare.com"),
}

// Fetcher 是基于 *http.Client 的 provider.Fetcher 实现。
// 所有失败都以 *provider.TransportError 返回。
type Fetcher struct {
	Client *http.Client
	// MaxBody <= 0 时使用 8 MiB。
	MaxBody int64
}

func (f Fetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	b, err := f.fetch(ctx, u)
	if err != nil {
		return nil, &provider.TransportError{URL: u, Err: err}
	}
	return b, nil
}

func (f Fetcher) fetch(ctx context.Context, u string) ([]byte, error) {
	c := f.Client
	if c == nil {
		return nil, errors.New("http client 不能为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")
	req.Header.Set("Accept-Language", "en-US,en;q=0.8")
	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	limit := f.MaxBody
	if limit <= 0 {
		limit = defaultMaxBody
	}
	// 先把 body 读出来：拦截页的判断依赖内容。
	b, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return nil, err
	}

	if resp.Request != nil && resp.Request.URL != nil && strings.Contains(resp.Request.URL.Path, "/captcha") {
		return nil, &provider.BlockedError{URL: resp.Request.URL.String(), Reason: "captcha"}
	}
	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		for _, m := range blockMarkers {
			if bytes.Contains(b, m) {
				return nil, &provider.BlockedError{URL: u, Reason: string(m)}
			}
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode, Location: resp.Header.Get("Location")}
	}
	if len(b) == 0 {
		return nil, errors.New("empty response body")
	}
	return b, nil
}
