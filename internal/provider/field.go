package provider

import (
	"bytes"
	"fmt"

	"github.com/PuerkitoBio/goquery"
)

// Field 是“字段 → 查询路径 → 后处理”映射表中的一项。
//
// 定位规则（依次执行）：
// 1) Selector 非空：在上下文中 Find(Selector)；为空则使用上下文本身
// 2) Eq(Index)：取第 Index 个匹配（默认 0，即第一个）
// 3) Child 非空：取该元素第一个匹配 Child 的直接子元素
// 4) Within 非空：在结果内 Find(Within)，文本为全部匹配的拼接
//
// 取值：Attr 非空取属性，否则取文本；然后按顺序应用 Filters。
// 页面布局漂移时只需要改表（或 YAML 覆盖文件），不需要改抽取逻辑。
type Field struct {
	Selector string   `yaml:"selector" json:"selector"`
	Index    int      `yaml:"index,omitempty" json:"index,omitempty"`
	Child    string   `yaml:"child,omitempty" json:"child,omitempty"`
	Within   string   `yaml:"within,omitempty" json:"within,omitempty"`
	Attr     string   `yaml:"attr,omitempty" json:"attr,omitempty"`
	Filters  []Filter `yaml:"filters,omitempty" json:"filters,omitempty"`
}

// Rows 描述“结果行”的定位：Selector 匹配到的每个元素是一行，前 Skip 行被跳过（表头）。
type Rows struct {
	Selector string `yaml:"selector" json:"selector"`
	Skip     int    `yaml:"skip,omitempty" json:"skip,omitempty"`
}

// Parse 把原始 HTML 包装为可查询的文档树。
func Parse(html []byte) (*goquery.Document, error) {
	if len(html) == 0 {
		return nil, fmt.Errorf("html 为空")
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析 HTML 失败：%w", err)
	}
	return doc, nil
}

// Find 返回字段定位到的元素；未命中时返回空 Selection（Length()==0）。
func (f Field) Find(sel *goquery.Selection) *goquery.Selection {
	target := sel
	if f.Selector != "" {
		target = sel.Find(f.Selector)
	}
	target = target.Eq(f.Index)
	if f.Child != "" {
		target = target.ChildrenFiltered(f.Child).First()
	}
	if f.Within != "" {
		target = target.Find(f.Within)
	}
	return target
}

// Lookup 返回字段值以及“元素/属性是否存在”。
// 存在但值为空与不存在是两回事：海报缺失需要区分这两种情况。
func (f Field) Lookup(sel *goquery.Selection) (string, bool) {
	target := f.Find(sel)
	if target.Length() == 0 {
		return "", false
	}
	var v string
	if f.Attr != "" {
		a, ok := target.Attr(f.Attr)
		if !ok {
			return "", false
		}
		v = a
	} else {
		v = target.Text()
	}
	return ApplyFilters(v, f.Filters), true
}

// Text 返回字段值；任何缺失都降级为空串（局部解析失败不向上传播）。
func (f Field) Text(sel *goquery.Selection) string {
	v, _ := f.Lookup(sel)
	return v
}

// Validate 校验字段引用的过滤器都已注册、参数合法。
func (f Field) Validate() error {
	for _, fl := range f.Filters {
		if err := fl.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Each 依次回调每个数据行（已跳过表头），i 为数据行序号（从 0 开始）。
func (r Rows) Each(sel *goquery.Selection, fn func(i int, row *goquery.Selection)) {
	n := 0
	sel.Find(r.Selector).Each(func(i int, row *goquery.Selection) {
		if i < r.Skip {
			return
		}
		fn(n, row)
		n++
	})
}
