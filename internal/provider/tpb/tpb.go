// Package tpb 实现种子索引镜像（The Pirate Bay 风格结果页）的搜索与解析。
//
// 每个镜像是一个 *Index；多个镜像由 provider.Registry 组织并按序回退。
package tpb

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/provider"
)

// Index 是单个镜像；字段在构造后不再修改，可并发使用。
type Index struct {
	name    string
	baseURL string
	fetcher provider.Fetcher
	layout  Layout
	log     zerolog.Logger
}

type Option func(*Index)

func WithLayout(l Layout) Option { return func(i *Index) { i.layout = l } }

func WithLogger(l zerolog.Logger) Option { return func(i *Index) { i.log = l } }

// New 构造镜像；name 用于回退轨迹与 --mirror 选择。
func New(name, baseURL string, f provider.Fetcher, opts ...Option) (*Index, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("镜像名不能为空")
	}
	u, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, errors.New("镜像地址非法：" + baseURL)
	}
	if f == nil {
		return nil, errors.New("fetcher 不能为空")
	}
	idx := &Index{
		name:    name,
		baseURL: strings.TrimRight(u.String(), "/"),
		fetcher: f,
		layout:  DefaultLayout(),
		log:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(idx)
	}
	return idx, nil
}

func (i *Index) Name() string { return i.name }

// SearchURL: <mirror>/search/<term>/1/99/200
func (i *Index) SearchURL(term string) string {
	return i.baseURL + "/search/" + url.PathEscape(term) + "/1/99/200"
}

// Search 抓取第一页结果。没有结果行时返回空切片。
func (i *Index) Search(ctx context.Context, term string) ([]domain.Torrent, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return nil, errors.New("搜索词不能为空")
	}
	u := i.SearchURL(term)
	html, err := i.fetcher.Fetch(ctx, u)
	if err != nil {
		i.log.Warn().Err(err).Str("mirror", i.name).Str("url", u).Msg("fetch failed")
		if provider.IsTransport(err) {
			return nil, err
		}
		return nil, &provider.TransportError{URL: u, Err: err}
	}
	out, err := ParseResults(html, u, i.layout)
	if err != nil {
		return nil, err
	}
	i.log.Debug().Str("mirror", i.name).Str("term", term).Int("results", len(out)).Msg("torrents")
	return out, nil
}

// ParseResults 按页面顺序返回结果；标题为空的行（分页、广告等填充行）被跳过。
// 不排序、不去重，种子数保留原文。
func ParseResults(html []byte, pageURL string, l Layout) ([]domain.Torrent, error) {
	doc, err := provider.Parse(html)
	if err != nil {
		return nil, &provider.ParseError{URL: pageURL, Err: err}
	}
	out := make([]domain.Torrent, 0, 32)
	l.Rows.Each(doc.Selection, func(_ int, row *goquery.Selection) {
		title := l.Title.Text(row)
		if title == "" {
			return
		}
		out = append(out, domain.Torrent{
			Title:      title,
			MagnetLink: l.Magnet.Text(row),
			Seeders:    l.Seeders.Text(row),
			Leechers:   l.Leechers.Text(row),
		})
	})
	return out, nil
}
