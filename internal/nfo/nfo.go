// Package nfo 把 MediaRecord 编码为 Kodi/Jellyfin/Emby 可读取的 NFO（XML）。
package nfo

import (
	"encoding/xml"
	"regexp"
	"strconv"
	"strings"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/sanitize"
)

// PosterFile 是与 NFO 同目录的本地海报文件名。
const PosterFile = "poster.jpg"

type document struct {
	XMLName xml.Name

	Title   string `xml:"title"`
	Plot    string `xml:"plot,omitempty"`
	Outline string `xml:"outline,omitempty"`
	Runtime int    `xml:"runtime,omitempty"`

	Ratings  *ratings  `xml:"ratings,omitempty"`
	UniqueID *uniqueID `xml:"uniqueid,omitempty"`

	Season  int `xml:"season,omitempty"`
	Episode int `xml:"episode,omitempty"`

	Thumbs []thumb  `xml:"thumb,omitempty"`
	Actors []actor  `xml:"actor,omitempty"`
	Tags   []string `xml:"tag,omitempty"`

	Website string `xml:"website,omitempty"`
}

type ratings struct {
	Rating []rating `xml:"rating"`
}

type rating struct {
	Name    string  `xml:"name,attr"`
	Max     int     `xml:"max,attr"`
	Default bool    `xml:"default,attr"`
	Value   float64 `xml:"value"`
}

type uniqueID struct {
	Type    string `xml:"type,attr"`
	Default bool   `xml:"default,attr"`
	Value   string `xml:",chardata"`
}

type thumb struct {
	Aspect string `xml:"aspect,attr"`
	URL    string `xml:",chardata"`
}

type actor struct {
	Name  string `xml:"name"`
	Role  string `xml:"role,omitempty"`
	Order int    `xml:"order"`
}

// FileName 返回记录对应的 NFO 文件名：movie.nfo 或 tvshow.nfo。
func FileName(kind domain.SubjectKind) string {
	if kind == domain.KindSeries {
		return "tvshow.nfo"
	}
	return "movie.nfo"
}

// Encode 把记录（以及可选的关键词）编码为 NFO。
//
// 规则：
// - 根元素随 Kind 变化：<movie> / <tvshow>
// - 抽取阶段做过的转义在这里撤销一次（NFO 是展示型输出）
// - 关键词输出为 <tag>，去空白、去重、保持输入顺序
// - title 为空时回退到外部 id（避免生成空 title）
func Encode(rec domain.MediaRecord, keywords []string) ([]byte, error) {
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	root := "movie"
	if rec.Kind == domain.KindSeries {
		root = "tvshow"
	}
	title := strings.TrimSpace(rec.Title)
	if title == "" {
		title = string(rec.ExternalID)
	}

	d := document{
		XMLName: xml.Name{Local: root},
		Title:   title,
		Plot:    display(rec.Summary),
		Outline: display(rec.Storyline),
		Website: strings.TrimSpace(rec.Website),
		Tags:    normList(keywords),
	}
	if rt, ok := rec.Runtime(); ok {
		d.Runtime = RuntimeMinutes(rt)
	}
	if n, ok := rec.SeasonCount(); ok {
		d.Season = n
	}
	if n, ok := rec.EpisodeCount(); ok {
		d.Episode = n
	}
	if rec.Rating != nil {
		d.Ratings = &ratings{Rating: []rating{{Name: "imdb", Max: 10, Default: true, Value: *rec.Rating}}}
	}
	if rec.ExternalID != "" {
		d.UniqueID = &uniqueID{Type: "imdb", Default: true, Value: string(rec.ExternalID)}
	}
	if rec.PosterURL != "" {
		d.Thumbs = append(d.Thumbs, thumb{Aspect: "poster", URL: rec.PosterURL})
	}
	for i, c := range rec.Cast {
		d.Actors = append(d.Actors, actor{Name: display(c.Actor), Role: display(c.Role), Order: i})
	}

	b, err := xml.MarshalIndent(d, "", "  ")
	if err != nil {
		return nil, err
	}
	const header = `<?xml version="1.0" encoding="UTF-8" standalone="yes" ?>` + "\n"
	return append([]byte(header), b...), nil
}

var (
	hoursRE   = regexp.MustCompile(`(\d+)\s*h`)
	minutesRE = regexp.MustCompile(`(\d+)\s*min`)
)

// RuntimeMinutes 把 "2h22min" / "2h 22min" / "49min" / "2h" 解析为分钟数；无法解析返回 0。
func RuntimeMinutes(s string) int {
	total := 0
	if m := hoursRE.FindStringSubmatch(s); m != nil {
		h, _ := strconv.Atoi(m[1])
		total += h * 60
	}
	if m := minutesRE.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n
	}
	return total
}

func display(s string) string {
	return strings.TrimSpace(sanitize.Unescape(s))
}

func normList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	m := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = display(s)
		if s == "" {
			continue
		}
		if _, ok := m[s]; ok {
			continue
		}
		m[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
