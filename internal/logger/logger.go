// Package logger 构造进程级 zerolog 日志器。
//
// stdout 只留给 JSON 结果；日志写 stderr（以及可选的滚动文件）。
package logger

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type Config struct {
	Level  string
	Format string // "console" 或 "json"
	// File 非空时额外写入滚动日志文件（JSON 行）。
	File string

	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// Logger 持有底层 rotator，进程退出前调用 Close。
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New 构造日志器；out 为 nil 时使用 os.Stderr。
func New(cfg Config, out io.Writer) (*Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	var console io.Writer = out
	if cfg.Format != "json" {
		console = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	output := console
	var rotator *lumberjack.Logger
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, err
		}
		rotator = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 10),
			MaxBackups: orDefault(cfg.MaxBackups, 3),
			MaxAge:     orDefault(cfg.MaxAgeDays, 14),
			LocalTime:  true,
		}
		output = io.MultiWriter(console, rotator)
	}

	l := zerolog.New(output).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Logger()
	return &Logger{Logger: l, rotator: rotator}, nil
}

// Component 返回带 component 字段的子日志器。
func (l *Logger) Component(name string) zerolog.Logger {
	return l.Logger.With().Str("component", name).Logger()
}

func (l *Logger) Close() error {
	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// ParseLevel 未知级别回退到 info。
func ParseLevel(level string) zerolog.Level {
	switch level {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
