package tpb

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/provider"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture %s 失败：%v", name, err)
	}
	return b
}

func TestParseResults_SkipsFillerRows(t *testing.T) {
	got, err := ParseResults(readFixture(t, "search.html"), "https://tpb.example/search/ubuntu/1/99/200", DefaultLayout())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 5 {
		t.Fatalf("期望 5 条结果，实际 %d", len(got))
	}

	want0 := domain.Torrent{
		Title:      "Ubuntu 24.04 LTS Desktop amd64",
		MagnetLink: "magnet:?xt=urn:btih:aaa111&dn=ubuntu",
		Seeders:    "1520",
		Leechers:   "34",
	}
	if diff := cmp.Diff(want0, got[0]); diff != "" {
		t.Fatalf("第一条结果不符合预期 (-want +got):\n%s", diff)
	}
	// 页面顺序保留、重复不去重。
	if diff := cmp.Diff(got[0], got[3]); diff != "" {
		t.Fatalf("重复行应原样保留 (-0 +3):\n%s", diff)
	}
	if got[4].Leechers != "0" {
		t.Fatalf("leechers 不符合预期：%q", got[4].Leechers)
	}
}

func TestParseResults_NoRows(t *testing.T) {
	got, err := ParseResults(readFixture(t, "search_empty.html"), "u", DefaultLayout())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(got) != 0 {
		t.Fatalf("期望空列表，实际 %d", len(got))
	}
}

func TestNew_Validates(t *testing.T) {
	f := provider.FetcherFunc(func(context.Context, string) ([]byte, error) { return nil, nil })
	if _, err := New("", "https://tpb.example", f); err == nil {
		t.Fatalf("空名称期望错误")
	}
	if _, err := New("a", "not a url", f); err == nil {
		t.Fatalf("非法地址期望错误")
	}
	if _, err := New("a", "https://tpb.example", nil); err == nil {
		t.Fatalf("nil fetcher 期望错误")
	}
	idx, err := New("a", "https://tpb.example/", f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if got := idx.SearchURL("the matrix"); got != "https://tpb.example/search/the%20matrix/1/99/200" {
		t.Fatalf("SearchURL 不符合预期：%s", got)
	}
}

func TestSearch_MirrorFallback(t *testing.T) {
	var deadHits atomic.Int32
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		deadHits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer dead.Close()
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/search/ubuntu/") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(readFixture(t, "search.html"))
	}))
	defer live.Close()

	f := provider.FetcherFunc(func(ctx context.Context, u string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, &provider.HTTPStatusError{URL: u, StatusCode: resp.StatusCode}
		}
		return io.ReadAll(resp.Body)
	})

	primary, err := New("primary", dead.URL, f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	backup, err := New("backup", live.URL, f)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	reg, err := provider.NewRegistry(primary, backup)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, used, _, err := provider.SearchTorrentsTrace(context.Background(), reg, "", "ubuntu")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if used != "backup" {
		t.Fatalf("期望回退到 backup，实际 %q", used)
	}
	if len(got) != 5 {
		t.Fatalf("期望 5 条结果，实际 %d", len(got))
	}
	if n := deadHits.Load(); n != 1 {
		t.Fatalf("primary 应只被请求一次，实际 %d", n)
	}
}

func TestLoadLayout_Override(t *testing.T) {
	p := filepath.Join(t.TempDir(), "tpb.yaml")
	body := "rows:\n  selector: \"table.results > tbody > tr\"\n"
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("写入 layout 失败：%v", err)
	}
	l, err := LoadLayout(p)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if l.Rows.Selector != "table.results > tbody > tr" || l.Title.Selector != "a.detLink" {
		t.Fatalf("覆盖结果不符合预期：%+v", l)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("rows:\n  selector: \"\"\n"), 0o644); err != nil {
		t.Fatalf("写入 layout 失败：%v", err)
	}
	if _, err := LoadLayout(bad); err == nil {
		t.Fatalf("空 rows selector 期望错误")
	}
}
