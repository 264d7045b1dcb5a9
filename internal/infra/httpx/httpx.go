package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
	"golang.org/x/net/proxy"
	"golang.org/x/time/rate"
)

const (
	defaultTimeout    = 20 * time.Second
	defaultRetryMax   = 2
	defaultRetryDelay = 500 * time.Millisecond
	maxRetryDelay     = 5 * time.Second
)

// Options 是网络策略的全部可调项；零值即默认策略（无代理、不限速、重试 2 次）。
type Options struct {
	// ProxyURL 支持 http / https / socks5 / socks5h。
	ProxyURL string
	// RetryMax 表示最大重试次数（不含首次尝试）。0 使用默认值，负数表示不重试。
	RetryMax   int
	RetryDelay time.Duration
	// RatePerSecond <= 0 表示不限速。
	RatePerSecond float64
	Timeout       time.Duration
}

// Transport 把“UA 池 + 代理 + keep-alive 策略 + 限速 + 有界重试”固化为统一策略。
//
// 抽取逻辑只负责“定位页面 + 解析 HTML”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	ua *uaPool

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	RetryMax   int
	RetryDelay time.Duration

	// Limiter 为 nil 时不限速；每次尝试（含重试）都要先拿到令牌。
	Limiter *rate.Limiter

	// DisableKeepAlives 决定是否对 Request 设置 Close=true（额外保险）。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

// retryableStatus 标记“服务端暂时不可用”的响应，仅在还有重试机会时产生。
type retryableStatus struct{ code int }

func (e retryableStatus) Error() string { return fmt.Sprintf("HTTP %d（可重试）", e.code) }

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}
	delay := t.RetryDelay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	ctx := req.Context()

	attempt := 0
	return retry.DoWithData(
		func() (*http.Response, error) {
			attempt++
			if t.Limiter != nil {
				if err := t.Limiter.Wait(ctx); err != nil {
					return nil, retry.Unrecoverable(err)
				}
			}
			r := req.Clone(ctx)
			if r.Header.Get("User-Agent") == "" {
				r.Header.Set("User-Agent", t.ua.random())
			}
			if t.DisableKeepAlives {
				r.Close = true
			}
			resp, err := t.Base.RoundTrip(r)
			if err != nil {
				return nil, err
			}
			if attempt <= max && (resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500) {
				_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
				_ = resp.Body.Close()
				return nil, retryableStatus{code: resp.StatusCode}
			}
			return resp, nil
		},
		retry.Context(ctx),
		retry.Attempts(uint(max+1)),
		retry.Delay(delay),
		retry.MaxDelay(maxRetryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			// ctx 已取消：不再重试，直接返回最后错误（更可解释）。
			return ctx.Err() == nil
		}),
	)
}

// NewMetaClient 构造用于页面抓取的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 内置 UA 池：每个请求随机 UA
// - 可选限速 + 有界重试（指数退避）+ 总超时
func NewMetaClient(opts Options) (*http.Client, error) {
	opts.ProxyURL = strings.TrimSpace(opts.ProxyURL)
	return newClient(opts, false)
}

// NewImageClient 构造用于海报下载的 HTTP client。
//
// 规则：
// - imageProxy=false：图片直连（忽略 ProxyURL），不限速
// - imageProxy=true：图片走 ProxyURL，且禁用 keep-alive（每请求新连接）
func NewImageClient(opts Options, imageProxy bool) (*http.Client, error) {
	opts.RatePerSecond = 0
	if !imageProxy {
		opts.ProxyURL = ""
		return newClient(opts, false)
	}
	opts.ProxyURL = strings.TrimSpace(opts.ProxyURL)
	if opts.ProxyURL == "" {
		return nil, errors.New("image_proxy=true 但 proxy.url 为空")
	}
	return newClient(opts, false)
}

func newClient(opts Options, disableKeepAlives bool) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		DisableKeepAlives:     disableKeepAlives,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 15 * time.Second,
	}

	if opts.ProxyURL != "" {
		if err := applyProxy(base, opts.ProxyURL); err != nil {
			return nil, err
		}
		// proxy 模式强制每请求新连接（代理池轮换依赖该行为）。
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	retryMax := opts.RetryMax
	if retryMax == 0 {
		retryMax = defaultRetryMax
	}
	if retryMax < 0 {
		retryMax = 0
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	tr := &Transport{
		Base:              base,
		ua:                globalUA,
		RetryMax:          retryMax,
		RetryDelay:        opts.RetryDelay,
		Limiter:           newLimiter(opts.RatePerSecond),
		DisableKeepAlives: disableKeepAlives,
	}
	return &http.Client{
		Transport: tr,
		Timeout:   timeout,
	}, nil
}

func applyProxy(base *http.Transport, raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
		base.Proxy = http.ProxyURL(u)
	case "socks5", "socks5h":
		d, err := proxy.FromURL(u, proxy.Direct)
		if err != nil {
			return fmt.Errorf("构造 socks5 代理失败：%w", err)
		}
		if cd, ok := d.(proxy.ContextDialer); ok {
			base.DialContext = cd.DialContext
		} else {
			base.DialContext = func(_ context.Context, network, addr string) (net.Conn, error) {
				return d.Dial(network, addr)
			}
		}
	default:
		return fmt.Errorf("不支持的代理协议：%q", u.Scheme)
	}
	return nil
}

func newLimiter(perSecond float64) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	burst := int(perSecond)
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

type uaPool struct {
	mu  sync.Mutex
	rnd *rand.Rand
	uas []string
}

func (p *uaPool) random() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.uas[p.rnd.Intn(len(p.uas))]
}

var globalUA = newUAPool()

func newUAPool() *uaPool {
	uas := []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 14_5) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.5 Safari/605.1.15",
		"Mozilla/5.0 (X11; Linux x86_64; rv:127.0) Gecko/20100101 Firefox/127.0",
	}
	return &uaPool{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		uas: uas,
	}
}
