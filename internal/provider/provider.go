package provider

import (
	"context"

	"github.com/John-Robertt/mediameta/internal/domain"
)

// Fetcher 是抽取核心唯一依赖的网络能力：给定 URL，返回原始 HTML 或失败。
//
// 约束：
// - 失败必须以 *TransportError 返回（实现方负责包装），核心不区分网络细节
// - 重试/限速/缓存都属于 Fetcher 实现，不属于抽取逻辑
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// FetcherFunc 让普通函数满足 Fetcher（测试里常用）。
type FetcherFunc func(ctx context.Context, url string) ([]byte, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) ([]byte, error) { return f(ctx, url) }

// TorrentIndex 把“某个种子索引镜像”的差异限制在其实现包内部。
//
// 约束：
// - Search 只返回页面顺序的结果，不排序、不去重
// - 没有结果是成功（空切片），不是错误
type TorrentIndex interface {
	Name() string
	Search(ctx context.Context, term string) ([]domain.Torrent, error)
}
