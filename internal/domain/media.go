package domain

import (
	"errors"
	"regexp"
	"strings"
)

// SubjectKind 区分电影与剧集；所有“按类型分支”的抽取规则都只依赖它。
type SubjectKind string

const (
	KindMovie  SubjectKind = "movie"
	KindSeries SubjectKind = "series"
)

// ExternalID 是详情页 URL 路径中的不透明标识（例如 tt0111161）。
// 剧集列表、关键词列表都以它为寻址键。
type ExternalID string

var externalIDRE = regexp.MustCompile(`^[^/?#\s]+$`)

// ParseExternalID 只做最小校验：非空、且不含路径/查询分隔符与空白。
// 不假设具体站点的 id 格式。
func ParseExternalID(s string) (ExternalID, bool) {
	s = strings.TrimSpace(s)
	if !externalIDRE.MatchString(s) {
		return "", false
	}
	return ExternalID(s), true
}

// DetailLocation 是搜索解析的产物：详情页 URL + 从链接路径中取出的 id。
type DetailLocation struct {
	URL        string     `json:"url"`
	ExternalID ExternalID `json:"external_id"`
}

// CastMember 是演员表的一行；Role 永远非空（空角色的行在抽取时已被丢弃）。
type CastMember struct {
	Actor string `json:"actor"`
	Role  string `json:"role"`
}

// MovieDetails 只在 Kind==KindMovie 时出现。
type MovieDetails struct {
	// Runtime 保留页面上的原始片段（例如 "2h22min"），不做单位换算。
	Runtime string `json:"runtime,omitempty"`
}

// SeriesDetails 只在 Kind==KindSeries 时出现。0 表示页面上没有可解析的数字。
type SeriesDetails struct {
	SeasonCount  int `json:"season_count"`
	EpisodeCount int `json:"episode_count"`
}

// MediaRecord 是详情页抽取得到的结构化元数据。
//
// 约束：
// - Kind 决定 Movie / Series 哪一个非 nil，且二者永不同时出现
// - Summary / Storyline / Cast 均已经过 sanitize.Escape
// - Rating 缺失或不可解析时为 nil（不是错误）
type MediaRecord struct {
	Kind       SubjectKind `json:"kind"`
	ExternalID ExternalID  `json:"external_id"`

	Title     string       `json:"title"`
	Summary   string       `json:"summary"`
	Rating    *float64     `json:"rating,omitempty"`
	Storyline string       `json:"storyline"`
	Cast      []CastMember `json:"cast"`
	PosterURL string       `json:"poster_url"`

	// Website 是最终解析的详情页 URL（来源标记）。
	Website string `json:"website"`

	Movie  *MovieDetails  `json:"movie,omitempty"`
	Series *SeriesDetails `json:"series,omitempty"`
}

// Validate 校验 Kind 与类型专属字段的一致性。
func (m MediaRecord) Validate() error {
	switch m.Kind {
	case KindMovie:
		if m.Series != nil {
			return errors.New("movie 记录不应包含 series 字段")
		}
		if m.Movie == nil {
			return errors.New("movie 记录缺少 movie 字段")
		}
	case KindSeries:
		if m.Movie != nil {
			return errors.New("series 记录不应包含 runtime")
		}
		if m.Series == nil {
			return errors.New("series 记录缺少 series 字段")
		}
	default:
		return errors.New("未知 kind：" + string(m.Kind))
	}
	for _, c := range m.Cast {
		if c.Role == "" {
			return errors.New("cast 中存在空 role：" + c.Actor)
		}
	}
	return nil
}

func (m MediaRecord) Runtime() (string, bool) {
	if m.Kind != KindMovie || m.Movie == nil || m.Movie.Runtime == "" {
		return "", false
	}
	return m.Movie.Runtime, true
}

func (m MediaRecord) SeasonCount() (int, bool) {
	if m.Kind != KindSeries || m.Series == nil {
		return 0, false
	}
	return m.Series.SeasonCount, true
}

func (m MediaRecord) EpisodeCount() (int, bool) {
	if m.Kind != KindSeries || m.Series == nil {
		return 0, false
	}
	return m.Series.EpisodeCount, true
}
