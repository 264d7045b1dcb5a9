package imdb

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/John-Robertt/mediameta/internal/domain"
)

// Resolve 把搜索词解析为详情页位置：取搜索结果页文档顺序上的第一条结果。
// 没有任何结果行时返回 provider.ErrNotFound（不是抓取失败）。
func (c Client) Resolve(ctx context.Context, term string) (domain.DetailLocation, error) {
	term = strings.TrimSpace(term)
	if term == "" {
		return domain.DetailLocation{}, errors.New("搜索词不能为空")
	}
	searchURL := c.SearchURL(term)
	html, err := c.fetch(ctx, searchURL)
	if err != nil {
		return domain.DetailLocation{}, err
	}
	loc, err := ParseSearch(html, c.baseURL(), c.layout())
	if err != nil {
		return domain.DetailLocation{}, err
	}
	c.log().Debug().Str("term", term).Str("id", string(loc.ExternalID)).Msg("resolved")
	return loc, nil
}

// ParseSearch 从搜索结果页取第一条结果的链接。
// 外部 id 取自链接路径的第二段（/title/<id>/...）。
func ParseSearch(html []byte, base string, l Layout) (domain.DetailLocation, error) {
	doc, err := parseDoc(html, base)
	if err != nil {
		return domain.DetailLocation{}, err
	}

	href, ok := l.Search.Result.Lookup(doc.Selection)
	if !ok || href == "" {
		return domain.DetailLocation{}, notFound("搜索结果为空")
	}

	id, ok := idFromHref(href)
	if !ok {
		return domain.DetailLocation{}, notFound("搜索结果链接无法解析出 id：%q", href)
	}
	return domain.DetailLocation{
		URL:        resolveURL(base+"/", href),
		ExternalID: id,
	}, nil
}

func idFromHref(href string) (domain.ExternalID, bool) {
	u, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	// "/title/tt0111161/" -> ["", "title", "tt0111161", ""]
	parts := strings.Split(u.Path, "/")
	if len(parts) < 3 {
		return "", false
	}
	return domain.ParseExternalID(parts[2])
}

func resolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "//") {
		return "https:" + href
	}
	if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
		return href
	}
	bu, err := url.Parse(base)
	if err != nil {
		return href
	}
	ru, err := url.Parse(href)
	if err != nil {
		return href
	}
	return bu.ResolveReference(ru).String()
}
