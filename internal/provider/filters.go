package provider

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/John-Robertt/mediameta/internal/sanitize"
)

// Filter 是一个具名的字符串变换（参数来自映射表）。
type Filter struct {
	Name string   `yaml:"name" json:"name"`
	Args []string `yaml:"args,omitempty" json:"args,omitempty"`
}

type filterFunc func(value string, args []string) string

// filters 是全部可用过滤器的注册表。
var filters = map[string]filterFunc{
	"trim":           filterTrim,
	"replace":        filterReplace,
	"re_replace":     filterReReplace,
	"split":          filterSplit,
	"strip_space":    filterStripSpace,
	"collapse_space": filterCollapseSpace,
	"digits":         filterDigits,
	"escape":         func(v string, _ []string) string { return sanitize.Escape(v) },
	"strip_quotes":   func(v string, _ []string) string { return sanitize.StripQuotes(v) },
}

// minArgs 记录需要参数的过滤器的最少参数个数。
var minArgs = map[string]int{
	"replace":    2,
	"re_replace": 2,
	"split":      2,
}

// F 构造一个 Filter，便于在 Go 代码里书写映射表。
func F(name string, args ...string) Filter { return Filter{Name: name, Args: args} }

// ApplyFilters 依次应用过滤器；未注册的过滤器被跳过（加载映射表时已校验过）。
func ApplyFilters(value string, list []Filter) string {
	for _, f := range list {
		fn, ok := filters[f.Name]
		if !ok {
			continue
		}
		value = fn(value, f.Args)
	}
	return value
}

func (f Filter) validate() error {
	if _, ok := filters[f.Name]; !ok {
		return fmt.Errorf("未知过滤器：%q", f.Name)
	}
	if n := minArgs[f.Name]; len(f.Args) < n {
		return fmt.Errorf("过滤器 %q 需要 %d 个参数，实际 %d", f.Name, n, len(f.Args))
	}
	switch f.Name {
	case "re_replace":
		if _, err := regexp.Compile(f.Args[0]); err != nil {
			return fmt.Errorf("过滤器 re_replace 正则无效：%w", err)
		}
	case "split":
		if _, err := strconv.Atoi(f.Args[1]); err != nil {
			return fmt.Errorf("过滤器 split 下标无效：%q", f.Args[1])
		}
	}
	return nil
}

func filterTrim(value string, args []string) string {
	if len(args) > 0 {
		return strings.Trim(value, args[0])
	}
	return strings.TrimSpace(value)
}

func filterReplace(value string, args []string) string {
	if len(args) < 2 {
		return value
	}
	return strings.ReplaceAll(value, args[0], args[1])
}

func filterReReplace(value string, args []string) string {
	if len(args) < 2 {
		return value
	}
	re, err := regexp.Compile(args[0])
	if err != nil {
		return value
	}
	return re.ReplaceAllString(value, args[1])
}

// filterSplit 按 sep 切分并取第 idx 段；负数从末尾数；越界返回空串。
func filterSplit(value string, args []string) string {
	if len(args) < 2 {
		return value
	}
	idx, err := strconv.Atoi(args[1])
	if err != nil {
		return value
	}
	parts := strings.Split(value, args[0])
	if idx < 0 {
		idx = len(parts) + idx
	}
	if idx >= 0 && idx < len(parts) {
		return parts[idx]
	}
	return ""
}

func filterStripSpace(value string, _ []string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, value)
}

func filterCollapseSpace(value string, _ []string) string {
	return strings.Join(strings.Fields(value), " ")
}

func filterDigits(value string, _ []string) string {
	return strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, value)
}
