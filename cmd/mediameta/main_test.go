package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/John-Robertt/mediameta/internal/domain"
)

func readFixture(t *testing.T, name string) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}

// newSite 同时模拟详情站、种子镜像与图片服务；未登记的路径返回 500。
// 详情页里的海报地址被改写到同一个服务上。
func newSite(t *testing.T) *httptest.Server {
	t.Helper()
	var srv *httptest.Server
	pages := map[string]string{
		"/find":                     "search.html",
		"/title/tt0111161/":         "movie.html",
		"/title/tt0111161/keywords": "keywords.html",
		"/title/tt0903747/episodes": "episodes.html",
	}
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/images/") {
			w.Header().Set("Content-Type", "image/png")
			_, _ = w.Write(mustPNG(t))
			return
		}
		if r.URL.Path == "/find" && r.URL.Query().Get("q") == "zzqqxx" {
			_, _ = w.Write(readFixture(t, "search_empty.html"))
			return
		}
		if strings.HasPrefix(r.URL.Path, "/search/") {
			_, _ = w.Write(readFixture(t, "torrents.html"))
			return
		}
		name, ok := pages[r.URL.Path]
		if !ok {
			http.Error(w, "boom", http.StatusInternalServerError)
			return
		}
		b := readFixture(t, name)
		b = bytes.ReplaceAll(b, []byte("https://m.media-amazon.com"), []byte(srv.URL))
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func mustPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 6))
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("生成 png 失败：%v", err)
	}
	return buf.Bytes()
}

// writeConfig 写出测试配置：关闭限速与重试，镜像只有一个。
func writeConfig(t *testing.T, dir, site string, extra map[string]any) string {
	t.Helper()
	cfg := map[string]any{
		"imdb_base_url":   site,
		"torrent_mirrors": []map[string]string{{"name": "local", "url": site}},
		"rate_per_second": 0,
		"retry_max":       0,
		"out":             "out",
		"log":             map[string]string{"level": "disabled"},
	}
	for k, v := range extra {
		cfg[k] = v
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	p := filepath.Join(dir, "mediameta.json")
	if err := os.WriteFile(p, b, 0o644); err != nil {
		t.Fatalf("写入配置失败：%v", err)
	}
	return p
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	return runCLIWithInput(t, "", args...)
}

func runCLIWithInput(t *testing.T, stdin string, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(context.Background(), args, strings.NewReader(stdin), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestCLI_Lookup(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	code, stdout, stderr := runCLI(t, "--config", cfg, "lookup", "The", "Shawshank", "Redemption", "--keywords")
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	var out lookupOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v\n%s", err, stdout)
	}
	if out.Record.ExternalID != "tt0111161" || out.Record.Kind != domain.KindMovie {
		t.Fatalf("record 不符合预期：%+v", out.Record)
	}
	if len(out.Keywords) != 4 {
		t.Fatalf("期望 4 个关键词，实际 %v", out.Keywords)
	}
	if out.Torrents != nil {
		t.Fatalf("未要求种子时不应输出 torrents")
	}
}

func TestCLI_LookupWithTorrentTerm(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	code, stdout, stderr := runCLI(t, "--config", cfg, "lookup", "The Shawshank Redemption", "--torrent-term", "shawshank 1994")
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	var out lookupOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v", err)
	}
	if out.Torrents == nil || out.Torrents.Term != "shawshank 1994" || out.Torrents.Mirror != "local" || len(out.Torrents.Torrents) != 5 {
		t.Fatalf("torrents 不符合预期：%+v", out.Torrents)
	}
}

func TestCLI_LookupNotFound(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	code, stdout, _ := runCLI(t, "--config", cfg, "lookup", "zzqqxx")
	if code != exitNotFound {
		t.Fatalf("期望退出码 3，实际 %d", code)
	}
	if stdout != "" {
		t.Fatalf("失败时 stdout 应为空：%q", stdout)
	}
}

func TestCLI_EpisodesAndKeywords(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	code, stdout, stderr := runCLI(t, "--config", cfg, "episodes", "tt0903747", "--season", "5")
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	var eps []domain.Episode
	if err := json.Unmarshal([]byte(stdout), &eps); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v", err)
	}
	if len(eps) != 3 || eps[2].Number != 3 || eps[2].Season != 5 {
		t.Fatalf("episodes 不符合预期：%+v", eps)
	}

	code, stdout, stderr = runCLI(t, "--config", cfg, "keywords", "tt0111161")
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	var kw []string
	if err := json.Unmarshal([]byte(stdout), &kw); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v", err)
	}
	if len(kw) != 4 || kw[0] != "wrongful imprisonment" {
		t.Fatalf("keywords 不符合预期：%v", kw)
	}

	// 站点返回 500：抓取失败 => 1。
	if code, _, _ := runCLI(t, "--config", cfg, "episodes", "tt0111161", "--season", "2"); code != exitFailure {
		t.Fatalf("期望退出码 1，实际 %d", code)
	}
}

func TestCLI_Torrents(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	code, stdout, stderr := runCLI(t, "--config", cfg, "torrents", "ubuntu")
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	var out torrentsOutput
	if err := json.Unmarshal([]byte(stdout), &out); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v", err)
	}
	if out.Mirror != "local" || len(out.Torrents) != 5 || out.Torrents[0].Title != "Ubuntu 24.04 LTS Desktop amd64" {
		t.Fatalf("torrents 不符合预期：%+v", out)
	}

	if code, _, _ := runCLI(t, "--config", cfg, "torrents", "ubuntu", "--mirror", "nope"); code != exitUsage {
		t.Fatalf("未知镜像应返回 2，实际 %d", code)
	}
}

func TestCLI_UsageErrors(t *testing.T) {
	srv := newSite(t)
	cfg := writeConfig(t, t.TempDir(), srv.URL, nil)

	cases := [][]string{
		{"--config", cfg, "lookup"},
		{"--config", cfg, "episodes", "tt0903747", "--season", "0"},
		{"--config", cfg, "keywords", "tt/0"},
		{"--config", cfg, "nosuchcmd"},
		{"--config", filepath.Join(t.TempDir(), "missing.json"), "keywords", "tt0111161"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Fatalf("args=%v 期望退出码 2，实际 %d", args, code)
		}
	}
}

func TestCLI_Run_DryRunStdoutOnlyJSON(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL, map[string]any{"cache_dir": "."})

	terms := filepath.Join(dir, "terms.txt")
	if err := os.WriteFile(terms, []byte("# list\nThe Shawshank Redemption\n\nThe Shawshank Redemption\n"), 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}

	code, stdout, stderr := runCLI(t, "--config", cfg, "run", terms)
	if code != exitOK {
		t.Fatalf("期望退出码 0，实际 %d：%s", code, stderr)
	}
	// stdout 必须是单个 RunReport JSON。
	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法的 RunReport JSON：%v\nstdout=%q", err, stdout)
	}
	if !rr.DryRun || len(rr.Items) != 1 || rr.Summary.Processed != 1 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	if !strings.Contains(stderr, "完成：processed=1") {
		t.Fatalf("stderr 缺少完成摘要：%q", stderr)
	}
	// dry-run 不落盘：out/ 与页面缓存都不应出现。
	for _, p := range []string{filepath.Join(dir, "out"), filepath.Join(dir, "cache")} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Fatalf("dry-run 不应创建 %s，但 Stat err=%v", p, err)
		}
	}
}

func TestCLI_Run_ApplyFromStdin(t *testing.T) {
	srv := newSite(t)
	dir := t.TempDir()
	cfg := writeConfig(t, dir, srv.URL, map[string]any{"cache_dir": "."})

	code, stdout, stderr := runCLIWithInput(t, "The Shawshank Redemption\nzzqqxx\n", "--config", cfg, "run", "--apply", "--no-keywords")
	// 一条未找到、没有失败 => 3。
	if code != exitNotFound {
		t.Fatalf("期望退出码 3，实际 %d：%s", code, stderr)
	}

	var rr domain.RunReport
	if err := json.Unmarshal([]byte(stdout), &rr); err != nil {
		t.Fatalf("stdout 不是合法 JSON：%v\n%s", err, stdout)
	}
	if rr.DryRun || len(rr.Items) != 2 || rr.Summary.Processed != 1 || rr.Summary.NotFound != 1 {
		t.Fatalf("report 不符合预期：%+v", rr)
	}
	for _, name := range []string{"movie.nfo", "poster.jpg", "media.json"} {
		if _, err := os.Stat(filepath.Join(dir, "out", "tt0111161", name)); err != nil {
			t.Fatalf("期望写出 %s：%v", name, err)
		}
	}
	if _, err := os.Stat(filepath.Join(dir, "out", "cache", "report.json")); err != nil {
		t.Fatalf("apply 必须写出 report.json：%v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "cache", "records", "imdb", "tt0111161.json")); err != nil {
		t.Fatalf("apply 应写出记录缓存：%v", err)
	}
	if entries, err := os.ReadDir(filepath.Join(dir, "cache", "pages")); err != nil || len(entries) == 0 {
		t.Fatalf("apply 应写出页面缓存：entries=%d err=%v", len(entries), err)
	}
}
