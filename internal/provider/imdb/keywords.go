package imdb

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mediameta/internal/domain"
)

// ListKeywords 返回关键词列表，顺序即页面顺序（页面自身按相关度从高到低排列，这里不重排）。
func (c Client) ListKeywords(ctx context.Context, id domain.ExternalID) ([]string, error) {
	if _, ok := domain.ParseExternalID(string(id)); !ok {
		return nil, fmt.Errorf("非法 id：%q", id)
	}
	u := c.KeywordsURL(id)
	html, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	kws, err := ParseKeywords(html, u, c.layout())
	if err != nil {
		return nil, err
	}
	c.log().Debug().Str("id", string(id)).Int("keywords", len(kws)).Msg("keywords")
	return kws, nil
}

// ParseKeywords 按页面顺序取每个单元格的关键词属性；没有该属性的单元格被跳过。
func ParseKeywords(html []byte, pageURL string, l Layout) ([]string, error) {
	doc, err := parseDoc(html, pageURL)
	if err != nil {
		return nil, err
	}
	k := l.Keywords
	out := make([]string, 0, 32)
	k.Cells.Each(doc.Selection, func(_ int, cell *goquery.Selection) {
		v, ok := k.Keyword.Lookup(cell)
		if !ok || v == "" {
			return
		}
		out = append(out, v)
	})
	return out, nil
}
