package provider

import (
	"fmt"
	"strings"
)

// Registry 是种子索引镜像的只读注册表（按 name 索引，保留注册顺序用于回退）。
type Registry struct {
	byName map[string]TorrentIndex
	order  []string
}

func NewRegistry(indexes ...TorrentIndex) (Registry, error) {
	byName := make(map[string]TorrentIndex, len(indexes))
	order := make([]string, 0, len(indexes))
	for _, ix := range indexes {
		if ix == nil {
			return Registry{}, fmt.Errorf("torrent index 不能为空")
		}
		name := strings.ToLower(strings.TrimSpace(ix.Name()))
		if name == "" {
			return Registry{}, fmt.Errorf("torrent index 的 Name 不能为空")
		}
		if _, ok := byName[name]; ok {
			return Registry{}, fmt.Errorf("重复的 torrent index：%q", name)
		}
		byName[name] = ix
		order = append(order, name)
	}
	return Registry{byName: byName, order: order}, nil
}

func (r Registry) Get(name string) (TorrentIndex, bool) {
	if r.byName == nil {
		return nil, false
	}
	name = strings.ToLower(strings.TrimSpace(name))
	ix, ok := r.byName[name]
	return ix, ok
}

// Names 按注册顺序返回全部名称。
func (r Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// fallbackOrder：requested 排第一，其余按注册顺序。requested 为空时直接用注册顺序。
func (r Registry) fallbackOrder(requested string) ([]string, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		return r.Names(), nil
	}
	if _, ok := r.byName[requested]; !ok {
		return nil, fmt.Errorf("未知 torrent index：%q", requested)
	}
	out := make([]string, 0, len(r.order))
	out = append(out, requested)
	for _, n := range r.order {
		if n != requested {
			out = append(out, n)
		}
	}
	return out, nil
}
