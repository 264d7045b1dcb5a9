package tpb

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/mediameta/internal/provider"
)

// Layout 是结果页的映射表：行选择器 + 每列字段。
type Layout struct {
	Rows     provider.Rows  `yaml:"rows"`
	Title    provider.Field `yaml:"title"`
	Magnet   provider.Field `yaml:"magnet"`
	Seeders  provider.Field `yaml:"seeders"`
	Leechers provider.Field `yaml:"leechers"`
}

func DefaultLayout() Layout {
	trim := []provider.Filter{provider.F("trim")}
	return Layout{
		Rows:     provider.Rows{Selector: "#searchResult > tbody > tr"},
		Title:    provider.Field{Selector: "a.detLink", Filters: trim},
		Magnet:   provider.Field{Selector: `a[title="Download this torrent using magnet"]`, Attr: "href", Filters: trim},
		Seeders:  provider.Field{Selector: `td[align="right"]`, Index: 0, Filters: trim},
		Leechers: provider.Field{Selector: `td[align="right"]`, Index: 1, Filters: trim},
	}
}

func (l Layout) Validate() error {
	if l.Rows.Selector == "" {
		return errors.New("layout 字段 rows 缺少 selector")
	}
	for name, fd := range map[string]provider.Field{
		"title":    l.Title,
		"magnet":   l.Magnet,
		"seeders":  l.Seeders,
		"leechers": l.Leechers,
	} {
		if err := fd.Validate(); err != nil {
			return fmt.Errorf("layout 字段 %s 无效：%w", name, err)
		}
	}
	return nil
}

// LoadLayout 与 imdb.LoadLayout 规则一致：YAML 只覆盖出现的键。
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
