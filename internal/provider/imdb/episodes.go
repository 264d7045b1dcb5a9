package imdb

import (
	"context"
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mediameta/internal/domain"
)

// ListEpisodes 抓取某一季的剧集列表。
//
// 抓取失败显式返回错误（调用方需要区分“没有剧集”和“抓取失败”）；
// 单个字段缺失只会让该字段为空串。
func (c Client) ListEpisodes(ctx context.Context, id domain.ExternalID, season int) ([]domain.Episode, error) {
	if _, ok := domain.ParseExternalID(string(id)); !ok {
		return nil, fmt.Errorf("非法 id：%q", id)
	}
	if season < 1 {
		return nil, fmt.Errorf("季号必须 >= 1，实际 %d", season)
	}
	u := c.EpisodesURL(id, season)
	html, err := c.fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	eps, err := ParseEpisodes(html, u, season, c.layout())
	if err != nil {
		return nil, err
	}
	c.log().Debug().Str("id", string(id)).Int("season", season).Int("episodes", len(eps)).Msg("episodes")
	return eps, nil
}

// ParseEpisodes 按文档顺序遍历列表项，Number 取遍历序号（从 1 开始），
// 与页面上印刷的集号无关。
func ParseEpisodes(html []byte, pageURL string, season int, l Layout) ([]domain.Episode, error) {
	doc, err := parseDoc(html, pageURL)
	if err != nil {
		return nil, err
	}
	e := l.Episodes
	out := make([]domain.Episode, 0, 24)
	e.Items.Each(doc.Selection, func(i int, item *goquery.Selection) {
		out = append(out, domain.Episode{
			Name:    e.Name.Text(item),
			Number:  i + 1,
			AirDate: e.AirDate.Text(item),
			Rating:  e.Rating.Text(item),
			Summary: e.Summary.Text(item),
			Season:  season,
		})
	})
	return out, nil
}
