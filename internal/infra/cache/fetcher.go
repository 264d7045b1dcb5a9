package cache

import (
	"context"
	"errors"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediameta/internal/provider"
)

// Fetcher 给任意 provider.Fetcher 加上两级缓存：进程内 TTL 缓存 + 磁盘页面缓存。
//
// 命中顺序：内存 -> 磁盘 -> Next。只缓存成功的抓取；磁盘写失败只记日志，不影响结果。
type Fetcher struct {
	next  provider.Fetcher
	store *Store
	memo  *gocache.Cache
	log   zerolog.Logger
}

// NewFetcher 构造缓存装饰器。store 为 nil 时只使用内存层；ttl <= 0 时内存条目不过期。
func NewFetcher(next provider.Fetcher, store *Store, ttl time.Duration, log zerolog.Logger) (*Fetcher, error) {
	if next == nil {
		return nil, errors.New("next fetcher 不能为空")
	}
	exp := gocache.NoExpiration
	cleanup := time.Duration(0)
	if ttl > 0 {
		exp = ttl
		cleanup = 2 * ttl
	}
	return &Fetcher{
		next:  next,
		store: store,
		memo:  gocache.New(exp, cleanup),
		log:   log,
	}, nil
}

func (f *Fetcher) Fetch(ctx context.Context, u string) ([]byte, error) {
	if v, ok := f.memo.Get(u); ok {
		return v.([]byte), nil
	}
	if f.store != nil {
		b, ok, err := f.store.ReadPage(u)
		if err != nil {
			f.log.Warn().Err(err).Str("url", u).Msg("cache read failed")
		}
		if ok {
			f.log.Debug().Str("url", u).Msg("cache hit")
			f.memo.Set(u, b, gocache.DefaultExpiration)
			return b, nil
		}
	}

	b, err := f.next.Fetch(ctx, u)
	if err != nil {
		return nil, err
	}
	f.memo.Set(u, b, gocache.DefaultExpiration)
	if f.store != nil && !f.store.ReadOnly {
		if err := f.store.WritePage(u, b); err != nil {
			f.log.Warn().Err(err).Str("url", u).Msg("cache write failed")
		}
	}
	return b, nil
}

// Len 返回内存层条目数（诊断用）。
func (f *Fetcher) Len() int { return f.memo.ItemCount() }
