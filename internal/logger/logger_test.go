package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_JSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "debug", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	defer l.Close()

	log := l.Component("imdb")
	log.Debug().Str("id", "tt0111161").Msg("extracted")

	var m map[string]any
	if err := json.Unmarshal(buf.Bytes(), &m); err != nil {
		t.Fatalf("期望 JSON 行，实际 %q：%v", buf.String(), err)
	}
	if m["component"] != "imdb" || m["id"] != "tt0111161" || m["level"] != "debug" {
		t.Fatalf("字段不符合预期：%v", m)
	}
}

func TestNew_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(Config{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info 不应输出：%q", buf.String())
	}
	l.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn 应输出：%q", buf.String())
	}
}

func TestNew_FileRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "mediameta.log")
	var buf bytes.Buffer
	l, err := New(Config{Level: "info", File: path}, &buf)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	l.Info().Msg("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close 失败：%v", err)
	}

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("读取日志文件失败：%v", err)
	}
	if !strings.Contains(string(b), `"message":"hello"`) {
		t.Fatalf("日志文件应为 JSON 行：%q", string(b))
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Fatalf("console 也应输出：%q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"trace":    zerolog.TraceLevel,
		"debug":    zerolog.DebugLevel,
		"":         zerolog.InfoLevel,
		"warning":  zerolog.WarnLevel,
		"disabled": zerolog.Disabled,
		"loud":     zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q)=%v，期望 %v", in, got, want)
		}
	}
}
