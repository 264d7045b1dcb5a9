// Package imdb 实现 IMDb 页面的搜索解析与详情/剧集/关键词抽取。
//
// 约束：
// - 每个入口都是“抓取 -> 解析”的串行链路，不持有跨调用状态，可被多个 goroutine 并发调用
// - Parse* 函数是纯函数：相同输入 => 相同输出
// - 抓取失败统一为 *provider.TransportError；“没找到”统一为 provider.ErrNotFound
package imdb

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/provider"
)

const DefaultBaseURL = "https://www.imdb.com"

// Client 只保存不可变配置；零值 Layout 使用 DefaultLayout。
type Client struct {
	// BaseURL 允许切换到镜像域名或测试服务器；为空时使用 DefaultBaseURL。
	BaseURL string
	Fetcher provider.Fetcher
	Layout  *Layout
	Log     *zerolog.Logger
}

func (c Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (c Client) layout() Layout {
	if c.Layout == nil {
		return DefaultLayout()
	}
	return *c.Layout
}

func (c Client) log() *zerolog.Logger {
	if c.Log == nil {
		l := zerolog.Nop()
		return &l
	}
	return c.Log
}

// SearchURL: https://www.imdb.com/find?ref_=nv_sr_fn&q=<term>&s=all
func (c Client) SearchURL(term string) string {
	return c.baseURL() + "/find?ref_=nv_sr_fn&q=" + url.QueryEscape(term) + "&s=all"
}

// EpisodesURL: https://www.imdb.com/title/<id>/episodes?season=<n>
func (c Client) EpisodesURL(id domain.ExternalID, season int) string {
	return c.baseURL() + "/title/" + url.PathEscape(string(id)) + "/episodes?season=" + strconv.Itoa(season)
}

// KeywordsURL: https://www.imdb.com/title/<id>/keywords?ref_=tt_stry_kw
func (c Client) KeywordsURL(id domain.ExternalID) string {
	return c.baseURL() + "/title/" + url.PathEscape(string(id)) + "/keywords?ref_=tt_stry_kw"
}

// Lookup 是最常用的入口：搜索词 -> 第一条结果 -> 详情页记录。
func (c Client) Lookup(ctx context.Context, term string) (domain.MediaRecord, error) {
	loc, err := c.Resolve(ctx, term)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	return c.Extract(ctx, loc)
}

func (c Client) fetch(ctx context.Context, u string) ([]byte, error) {
	if c.Fetcher == nil {
		return nil, errors.New("fetcher 不能为空")
	}
	c.log().Debug().Str("url", u).Msg("fetch")
	b, err := c.Fetcher.Fetch(ctx, u)
	if err != nil {
		c.log().Warn().Err(err).Str("url", u).Msg("fetch failed")
		if provider.IsTransport(err) {
			return nil, err
		}
		// 自定义 Fetcher 未包装时在这里补齐，保证调用方只有一种错误纪律。
		return nil, &provider.TransportError{URL: u, Err: err}
	}
	return b, nil
}

func parseDoc(html []byte, pageURL string) (*goquery.Document, error) {
	doc, err := provider.Parse(html)
	if err != nil {
		return nil, &provider.ParseError{URL: pageURL, Err: err}
	}
	return doc, nil
}

func notFound(format string, args ...any) error {
	return fmt.Errorf("%w：%s", provider.ErrNotFound, fmt.Sprintf(format, args...))
}
