package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/John-Robertt/mediameta/internal/domain"
)

// Attempt 记录一次镜像尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Index string // 镜像 name（小写）
	Stage string // "search" / "ok"
	Err   error  // nil when Stage=="ok"
}

// Error 是镜像阶段的可追溯错误。
type Error struct {
	Index string
	Stage string
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("index=%s stage=%s: %v", e.Index, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// SearchTorrentsTrace 按“requested -> 其余镜像”的顺序查询种子，返回第一个成功镜像的结果，
// 以及每个镜像的尝试记录（用于解释回退原因）。
//
// 镜像的任何失败（抓取或解析）都会触发回退，镜像之间布局可能不同；镜像返回 0 行是成功。
// ctx 取消时停止回退，返回包着 ctx.Err() 的 *TransportError。
func SearchTorrentsTrace(ctx context.Context, reg Registry, requested, term string) (torrents []domain.Torrent, used string, attempts []Attempt, err error) {
	if strings.TrimSpace(term) == "" {
		return nil, "", nil, fmt.Errorf("搜索词不能为空")
	}
	order, err := reg.fallbackOrder(requested)
	if err != nil {
		return nil, "", nil, err
	}
	if len(order) == 0 {
		return nil, "", nil, fmt.Errorf("未注册任何 torrent index")
	}

	var lastErr error
	for _, name := range order {
		ix, _ := reg.Get(name)
		if cerr := ctx.Err(); cerr != nil {
			return nil, "", attempts, &TransportError{URL: searchURL(ix, term), Err: cerr}
		}
		res, serr := ix.Search(ctx, term)
		if serr != nil {
			lastErr = &Error{Index: name, Stage: "search", Err: serr}
			attempts = append(attempts, Attempt{Index: name, Stage: "search", Err: serr})
			continue
		}
		attempts = append(attempts, Attempt{Index: name, Stage: "ok"})
		return res, name, attempts, nil
	}
	return nil, "", attempts, lastErr
}

// searchURL 尽量给出镜像的搜索地址，便于错误信息定位；拿不到时退化为镜像名。
func searchURL(ix TorrentIndex, term string) string {
	if u, ok := ix.(interface{ SearchURL(string) string }); ok {
		return u.SearchURL(term)
	}
	return ix.Name()
}
