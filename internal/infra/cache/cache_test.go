package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/John-Robertt/mediameta/internal/provider"
)

const pageURL = "https://www.imdb.com/title/tt0111161/?ref_=fn_al_tt_1"

func TestStore_ReadWritePage(t *testing.T) {
	root := t.TempDir()

	s := New(root, false)
	if err := s.WritePage(pageURL, []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadPage(pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != "<html/>" {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.PagePath(pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !strings.HasPrefix(path, filepath.Join(root, "cache", "pages", "www.imdb.com")) {
		t.Fatalf("路径不符合预期：%s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestStore_PageTTL(t *testing.T) {
	s := New(t.TempDir(), false)
	if err := s.WritePage(pageURL, []byte("<html/>")); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	s.TTL = time.Hour
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, err := s.ReadPage(pageURL); err != nil || ok {
		t.Fatalf("过期页面应视为未命中：ok=%v err=%v", ok, err)
	}
	s.now = nil
	if _, ok, err := s.ReadPage(pageURL); err != nil || !ok {
		t.Fatalf("未过期页面应命中：ok=%v err=%v", ok, err)
	}
}

func TestStore_RecordTTL(t *testing.T) {
	s := New(t.TempDir(), false)
	if err := s.WriteRecord("imdb", "tt0111161", []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.ReadRecord("imdb", "tt0111161")
	if err != nil || !ok || string(b) != `{"ok":true}` {
		t.Fatalf("期望命中记录缓存：ok=%v err=%v b=%q", ok, err, b)
	}

	s.TTL = time.Hour
	s.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, ok, err := s.ReadRecord("imdb", "tt0111161"); err != nil || ok {
		t.Fatalf("过期记录应视为未命中：ok=%v err=%v", ok, err)
	}
	if _, ok, err := s.ReadRecord("imdb", "tt0068646"); err != nil || ok {
		t.Fatalf("不存在的记录应视为未命中：ok=%v err=%v", ok, err)
	}
}

func TestStore_ReadOnlyRejectWrite(t *testing.T) {
	s := New(t.TempDir(), true)
	err := s.WriteRecord("imdb", "tt0111161", []byte(`{"ok":true}`))
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, err := s.RecordPath("imdb", "tt0111161")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
	if err := s.WritePage(pageURL, []byte("x")); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}
}

func TestStore_RejectsTraversal(t *testing.T) {
	s := New(t.TempDir(), false)
	if _, err := s.RecordPath("../etc", "tt1"); err == nil {
		t.Fatalf("期望拒绝非法 source")
	}
	if _, err := s.RecordPath("imdb", "../../x"); err == nil {
		t.Fatalf("期望拒绝非法 id")
	}
	if _, err := s.PagePath("/relative/only"); err == nil {
		t.Fatalf("期望拒绝没有 host 的 URL")
	}
}

func TestFetcher_MemoryThenDisk(t *testing.T) {
	root := t.TempDir()
	var calls atomic.Int32
	next := provider.FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
		calls.Add(1)
		return []byte("<html>" + u + "</html>"), nil
	})

	store := New(root, false)
	f, err := NewFetcher(next, &store, time.Minute, zerolog.Nop())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := f.Fetch(ctx, pageURL); err != nil {
			t.Fatalf("不期望错误：%v", err)
		}
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("期望只抓取 1 次，实际 %d", n)
	}

	// 新进程（新的内存层）+ 只读磁盘：仍然命中磁盘，不触网。
	ro := New(root, true)
	f2, err := NewFetcher(next, &ro, 0, zerolog.Nop())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	b, err := f2.Fetch(ctx, pageURL)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if string(b) != "<html>"+pageURL+"</html>" {
		t.Fatalf("内容不一致：%q", string(b))
	}
	if n := calls.Load(); n != 1 {
		t.Fatalf("磁盘命中时不应抓取，实际 %d 次", n)
	}
	if f2.Len() != 1 {
		t.Fatalf("磁盘命中后应回填内存层")
	}
}

func TestFetcher_ErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	next := provider.FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
		calls.Add(1)
		return nil, &provider.TransportError{URL: u, Err: errors.New("boom")}
	})
	f, err := NewFetcher(next, nil, time.Minute, zerolog.Nop())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	for i := 0; i < 2; i++ {
		if _, err := f.Fetch(context.Background(), pageURL); !provider.IsTransport(err) {
			t.Fatalf("期望 TransportError，实际：%v", err)
		}
	}
	if n := calls.Load(); n != 2 {
		t.Fatalf("失败不应被缓存，期望 2 次抓取，实际 %d", n)
	}
	if _, err := NewFetcher(nil, nil, 0, zerolog.Nop()); err == nil {
		t.Fatalf("nil next 期望错误")
	}
}
