package imdb

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/provider"
)

// Extract 抓取并解析详情页。
func (c Client) Extract(ctx context.Context, loc domain.DetailLocation) (domain.MediaRecord, error) {
	if strings.TrimSpace(loc.URL) == "" {
		return domain.MediaRecord{}, errors.New("详情页 URL 不能为空")
	}
	html, err := c.fetch(ctx, loc.URL)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	rec, err := ParseDetail(html, loc, c.layout())
	if err != nil {
		return domain.MediaRecord{}, err
	}
	c.log().Debug().
		Str("id", string(rec.ExternalID)).
		Str("kind", string(rec.Kind)).
		Int("cast", len(rec.Cast)).
		Msg("extracted")
	return rec, nil
}

// kindStrategy 收敛“按类型分支”的规则，让 movie/series 可以各自独立测试。
type kindStrategy struct {
	castRole func(l DetailLayout) provider.Field
	fill     func(l DetailLayout, doc *goquery.Selection, typeText string, rec *domain.MediaRecord)
}

var strategies = map[domain.SubjectKind]kindStrategy{
	domain.KindMovie: {
		castRole: func(l DetailLayout) provider.Field { return l.CastRoleMovie },
		fill: func(l DetailLayout, _ *goquery.Selection, typeText string, rec *domain.MediaRecord) {
			rec.Movie = &domain.MovieDetails{Runtime: provider.ApplyFilters(typeText, l.Runtime)}
		},
	},
	domain.KindSeries: {
		castRole: func(l DetailLayout) provider.Field { return l.CastRoleSeries },
		fill: func(l DetailLayout, doc *goquery.Selection, _ string, rec *domain.MediaRecord) {
			rec.Series = &domain.SeriesDetails{
				SeasonCount:  firstInt(l.SeasonCount.Text(doc)),
				EpisodeCount: firstInt(l.EpisodeCount.Text(doc)),
			}
		},
	},
}

// ParseDetail 把详情页 HTML 解析为 MediaRecord。
//
// 海报缺失视为“没有匹配的媒体”（provider.ErrNotFound），这是有意保留的约定：
// 非标准布局的页面（例如被重定向到的列表页）同样没有海报。
func ParseDetail(html []byte, loc domain.DetailLocation, l Layout) (domain.MediaRecord, error) {
	doc, err := parseDoc(html, loc.URL)
	if err != nil {
		return domain.MediaRecord{}, err
	}
	root := doc.Selection
	d := l.Detail

	typeText := d.TypeIndicator.Text(root)
	kind := classify(typeText, d.SeriesMarkers)
	st := strategies[kind]

	rec := domain.MediaRecord{
		Kind:       kind,
		ExternalID: loc.ExternalID,
		Title:      d.Title.Text(root),
		Summary:    d.Summary.Text(root),
		Rating:     parseRating(d.Rating.Text(root)),
		Storyline:  d.Storyline.Text(root),
		Cast:       parseCast(root, d.Cast, d.CastActor, st.castRole(d)),
		Website:    strings.TrimSpace(loc.URL),
	}

	src, ok := d.Poster.Lookup(root)
	if !ok {
		return domain.MediaRecord{}, notFound("未找到海报（疑似非详情页）：%s", loc.URL)
	}
	rec.PosterURL = NormalizePosterURL(src)

	st.fill(d, root, typeText, &rec)
	return rec, nil
}

// classify 是唯一的类型判定：规范化类型文本包含任一剧集标记即为 series。
func classify(typeText string, markers []string) domain.SubjectKind {
	for _, m := range markers {
		if m != "" && strings.Contains(typeText, m) {
			return domain.KindSeries
		}
	}
	return domain.KindMovie
}

func parseCast(root *goquery.Selection, rows provider.Rows, actor, role provider.Field) []domain.CastMember {
	cast := make([]domain.CastMember, 0, 16)
	rows.Each(root, func(_ int, row *goquery.Selection) {
		r := role.Text(row)
		if r == "" {
			return
		}
		cast = append(cast, domain.CastMember{Actor: actor.Text(row), Role: r})
	})
	return cast
}

var leadingFloatRE = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)`)

// parseRating 只接受文本开头的小数（"8.5/10" -> 8.5），且必须落在 [0, 10]。
func parseRating(s string) *float64 {
	m := leadingFloatRE.FindString(strings.TrimSpace(s))
	if m == "" {
		return nil
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil || v < 0 || v > 10 {
		return nil
	}
	return &v
}

// firstInt 提取第一段连续数字；没有数字时返回 0。
func firstInt(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(b.String())
	return n
}
