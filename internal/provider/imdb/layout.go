package imdb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/mediameta/internal/provider"
)

// Layout 是 IMDb 各页面的声明式映射表（字段 → 选择器 → 过滤器）。
//
// 页面改版时优先改这里（或通过 LoadLayout 读取 YAML 覆盖），不改抽取逻辑。
type Layout struct {
	Search   SearchLayout   `yaml:"search"`
	Detail   DetailLayout   `yaml:"detail"`
	Episodes EpisodesLayout `yaml:"episodes"`
	Keywords KeywordsLayout `yaml:"keywords"`
}

type SearchLayout struct {
	// Result 是第一条搜索结果的链接（取 href）。
	Result provider.Field `yaml:"result"`
}

type DetailLayout struct {
	// TypeIndicator 是规范化（去空白）后的类型描述文本，既用来判定 kind，也用来取 runtime。
	TypeIndicator provider.Field `yaml:"type_indicator"`
	SeriesMarkers []string       `yaml:"series_markers"`
	// Runtime 作用于 TypeIndicator 的结果（不是文档）。
	Runtime []provider.Filter `yaml:"runtime"`

	Title     provider.Field `yaml:"title"`
	Summary   provider.Field `yaml:"summary"`
	Storyline provider.Field `yaml:"storyline"`
	Rating    provider.Field `yaml:"rating"`
	Poster    provider.Field `yaml:"poster"`

	Cast           provider.Rows  `yaml:"cast"`
	CastActor      provider.Field `yaml:"cast_actor"`
	CastRoleMovie  provider.Field `yaml:"cast_role_movie"`
	CastRoleSeries provider.Field `yaml:"cast_role_series"`

	SeasonCount  provider.Field `yaml:"season_count"`
	EpisodeCount provider.Field `yaml:"episode_count"`
}

type EpisodesLayout struct {
	Items   provider.Rows  `yaml:"items"`
	Name    provider.Field `yaml:"name"`
	AirDate provider.Field `yaml:"air_date"`
	Rating  provider.Field `yaml:"rating"`
	Summary provider.Field `yaml:"summary"`
}

type KeywordsLayout struct {
	Cells   provider.Rows  `yaml:"cells"`
	Keyword provider.Field `yaml:"keyword"`
}

// flt 只是 provider.F 的简写，让映射表更紧凑。
var flt = provider.F

// DefaultLayout 返回内置映射表（每次返回新值，调用方可以安全修改）。
func DefaultLayout() Layout {
	return Layout{
		Search: SearchLayout{
			Result: provider.Field{Selector: "tr.findResult > td.result_text > a", Attr: "href", Filters: []provider.Filter{flt("trim")}},
		},
		Detail: DetailLayout{
			TypeIndicator: provider.Field{Selector: ".subtext", Filters: []provider.Filter{flt("strip_space")}},
			SeriesMarkers: []string{"TVSeries", "TVMini"},
			Runtime:       []provider.Filter{flt("split", "|", "1"), flt("trim")},

			Title: provider.Field{Selector: ".title_wrapper > h1", Filters: []provider.Filter{
				flt("replace", "\u00a0", ""),
				flt("re_replace", `@.*$`, ""),
				flt("trim"),
			}},
			Summary:   provider.Field{Selector: ".summary_text", Filters: []provider.Filter{flt("trim"), flt("escape")}},
			Storyline: provider.Field{Selector: "#titleStoryLine > .inline", Within: "span", Filters: []provider.Filter{flt("trim"), flt("escape")}},
			Rating:    provider.Field{Selector: `span[itemprop="ratingValue"]`, Filters: []provider.Filter{flt("trim")}},
			Poster:    provider.Field{Selector: "div.poster > a > img", Attr: "src", Filters: []provider.Filter{flt("trim")}},

			Cast:           provider.Rows{Selector: "table.cast_list > tbody > tr", Skip: 1},
			CastActor:      provider.Field{Selector: "td", Index: 1, Filters: []provider.Filter{flt("trim"), flt("escape")}},
			CastRoleMovie:  provider.Field{Selector: "td.character", Filters: []provider.Filter{flt("replace", "\n", ""), flt("collapse_space"), flt("escape")}},
			CastRoleSeries: provider.Field{Selector: "td.character > a", Filters: []provider.Filter{flt("trim"), flt("escape")}},

			SeasonCount:  provider.Field{Selector: ".seasons-and-year-nav > div", Index: 2, Child: "a", Filters: []provider.Filter{flt("trim")}},
			EpisodeCount: provider.Field{Selector: ".bp_description > span.bp_sub_heading", Filters: []provider.Filter{flt("digits")}},
		},
		Episodes: EpisodesLayout{
			Items:   provider.Rows{Selector: ".list > .list_item"},
			Name:    provider.Field{Selector: ".info > strong", Filters: []provider.Filter{flt("trim"), flt("strip_quotes")}},
			AirDate: provider.Field{Selector: ".airdate", Filters: []provider.Filter{flt("trim")}},
			Rating:  provider.Field{Selector: "span.ipl-rating-star__rating", Filters: []provider.Filter{flt("trim")}},
			Summary: provider.Field{Selector: ".item_description", Filters: []provider.Filter{flt("trim"), flt("escape")}},
		},
		Keywords: KeywordsLayout{
			// 每行有两列关键词，按单元格遍历才能保持“从左到右、从上到下”的页面顺序。
			Cells:   provider.Rows{Selector: ".dataTable > tbody > tr > td"},
			Keyword: provider.Field{Attr: "data-item-keyword", Filters: []provider.Filter{flt("trim"), flt("escape")}},
		},
	}
}

// Validate 校验全部字段的过滤器与必填选择器。
func (l Layout) Validate() error {
	fields := map[string]provider.Field{
		"search.result":           l.Search.Result,
		"detail.type_indicator":   l.Detail.TypeIndicator,
		"detail.title":            l.Detail.Title,
		"detail.summary":          l.Detail.Summary,
		"detail.storyline":        l.Detail.Storyline,
		"detail.rating":           l.Detail.Rating,
		"detail.poster":           l.Detail.Poster,
		"detail.cast_actor":       l.Detail.CastActor,
		"detail.cast_role_movie":  l.Detail.CastRoleMovie,
		"detail.cast_role_series": l.Detail.CastRoleSeries,
		"detail.season_count":     l.Detail.SeasonCount,
		"detail.episode_count":    l.Detail.EpisodeCount,
		"episodes.name":           l.Episodes.Name,
		"episodes.air_date":       l.Episodes.AirDate,
		"episodes.rating":         l.Episodes.Rating,
		"episodes.summary":        l.Episodes.Summary,
		"keywords.keyword":        l.Keywords.Keyword,
	}
	for name, fd := range fields {
		if err := fd.Validate(); err != nil {
			return fmt.Errorf("layout 字段 %s 无效：%w", name, err)
		}
	}
	if err := (provider.Field{Filters: l.Detail.Runtime}).Validate(); err != nil {
		return fmt.Errorf("layout 字段 detail.runtime 无效：%w", err)
	}
	required := map[string]string{
		"search.result":  l.Search.Result.Selector,
		"detail.poster":  l.Detail.Poster.Selector,
		"detail.cast":    l.Detail.Cast.Selector,
		"episodes.items": l.Episodes.Items.Selector,
		"keywords.cells": l.Keywords.Cells.Selector,
	}
	for name, sel := range required {
		if sel == "" {
			return fmt.Errorf("layout 字段 %s 缺少 selector", name)
		}
	}
	if len(l.Detail.SeriesMarkers) == 0 {
		return fmt.Errorf("layout 字段 detail.series_markers 不能为空")
	}
	return nil
}

// LoadLayout 读取 YAML 覆盖文件：未出现的键保留内置默认值。
// path 为空时直接返回 DefaultLayout()。
func LoadLayout(path string) (Layout, error) {
	l := DefaultLayout()
	if path == "" {
		return l, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return Layout{}, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&l); err != nil && !errors.Is(err, io.EOF) {
		return Layout{}, fmt.Errorf("解析 layout 文件 %q 失败：%w", path, err)
	}
	if err := l.Validate(); err != nil {
		return Layout{}, err
	}
	return l, nil
}
