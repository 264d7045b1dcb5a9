package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/John-Robertt/mediameta/internal/domain"
)

type stubIndex struct {
	name string

	err      error
	torrents []domain.Torrent

	calls int
}

func (p *stubIndex) Name() string { return p.name }

func (p *stubIndex) Search(ctx context.Context, term string) ([]domain.Torrent, error) {
	p.calls++
	if p.err != nil {
		return nil, p.err
	}
	return p.torrents, nil
}

func TestSearchTorrentsTrace_FallbackOnTransportError(t *testing.T) {
	primary := &stubIndex{name: "pirateproxy", err: &TransportError{URL: "https://a.test", Err: errors.New("nope")}}
	mirror := &stubIndex{name: "tpbmirror", torrents: []domain.Torrent{{Title: "x"}}}

	reg, err := NewRegistry(primary, mirror)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, used, _, err := SearchTorrentsTrace(context.Background(), reg, "pirateproxy", "heat")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != "tpbmirror" {
		t.Fatalf("期望 used=tpbmirror，实际=%q", used)
	}
	if len(got) != 1 || got[0].Title != "x" {
		t.Fatalf("结果不符合预期：%+v", got)
	}
}

func TestSearchTorrentsTrace_RecordsFallbackReason(t *testing.T) {
	primary := &stubIndex{name: "pirateproxy", err: errors.New("nope")}
	mirror := &stubIndex{name: "tpbmirror"}

	reg, err := NewRegistry(primary, mirror)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	_, used, attempts, err := SearchTorrentsTrace(context.Background(), reg, "", "heat")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != "tpbmirror" {
		t.Fatalf("期望 used=tpbmirror，实际=%q", used)
	}
	if len(attempts) != 2 {
		t.Fatalf("期望 2 条 attempts，实际 %d: %+v", len(attempts), attempts)
	}
	if attempts[0].Index != "pirateproxy" || attempts[0].Stage != "search" || attempts[0].Err == nil {
		t.Fatalf("attempt[0] 不符合预期：%+v", attempts[0])
	}
	if attempts[1].Index != "tpbmirror" || attempts[1].Stage != "ok" || attempts[1].Err != nil {
		t.Fatalf("attempt[1] 不符合预期：%+v", attempts[1])
	}
}

// 镜像页面布局不同导致的解析失败同样回退到下一个镜像。
func TestSearchTorrentsTrace_FallbackOnParseError(t *testing.T) {
	primary := &stubIndex{name: "pirateproxy", err: &ParseError{URL: "https://a.test", Err: errors.New("no rows table")}}
	mirror := &stubIndex{name: "tpbmirror", torrents: []domain.Torrent{{Title: "x"}}}

	reg, err := NewRegistry(primary, mirror)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, used, attempts, err := SearchTorrentsTrace(context.Background(), reg, "pirateproxy", "heat")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != "tpbmirror" || len(got) != 1 {
		t.Fatalf("期望回退到 tpbmirror，实际 used=%q got=%+v", used, got)
	}
	if len(attempts) != 2 || !IsParse(attempts[0].Err) {
		t.Fatalf("attempt[0] 应记录解析失败：%+v", attempts)
	}
}

func TestSearchTorrentsTrace_CanceledIsTransportError(t *testing.T) {
	primary := &stubIndex{name: "pirateproxy", torrents: []domain.Torrent{{Title: "x"}}}
	reg, err := NewRegistry(primary)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, _, err = SearchTorrentsTrace(ctx, reg, "", "heat")
	if !IsTransport(err) {
		t.Fatalf("取消应以 TransportError 返回，实际：%v", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("错误链上应保留 context.Canceled，实际：%v", err)
	}
	if primary.calls != 0 {
		t.Fatalf("取消后不应再请求镜像，实际 %d 次", primary.calls)
	}
}

// 镜像返回 0 行是成功，不应触发回退。
func TestSearchTorrentsTrace_EmptyResultIsNotFallback(t *testing.T) {
	primary := &stubIndex{name: "pirateproxy"}
	mirror := &stubIndex{name: "tpbmirror", torrents: []domain.Torrent{{Title: "x"}}}

	reg, err := NewRegistry(primary, mirror)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, used, _, err := SearchTorrentsTrace(context.Background(), reg, "pirateproxy", "heat")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != "pirateproxy" || len(got) != 0 {
		t.Fatalf("期望 pirateproxy 的空结果，实际 used=%q got=%+v", used, got)
	}
	if mirror.calls != 0 {
		t.Fatalf("不应请求备用镜像，实际 %d 次", mirror.calls)
	}
}

func TestSearchTorrentsTrace_AllFail(t *testing.T) {
	cause := &TransportError{URL: "https://a.test", Err: errors.New("down")}
	reg, err := NewRegistry(&stubIndex{name: "a", err: cause}, &stubIndex{name: "b", err: cause})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	_, _, _, err = SearchTorrentsTrace(context.Background(), reg, "a", "heat")
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if !IsTransport(err) {
		t.Fatalf("期望错误链上有 TransportError，实际：%v", err)
	}
	var pe *Error
	if !errors.As(err, &pe) || pe.Index != "b" {
		t.Fatalf("期望最后一个镜像的 *Error，实际：%v", err)
	}
}

func TestSearchTorrentsTrace_UnknownIndex(t *testing.T) {
	reg, err := NewRegistry(&stubIndex{name: "a"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, _, _, err := SearchTorrentsTrace(context.Background(), reg, "nope", "heat"); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
}

func TestNewRegistry_RejectsDuplicate(t *testing.T) {
	if _, err := NewRegistry(&stubIndex{name: "a"}, &stubIndex{name: " A "}); err == nil {
		t.Fatalf("期望重复名称报错")
	}
}
