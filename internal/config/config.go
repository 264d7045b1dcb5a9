package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// ErrCodeNotFound 表示 --config 显式指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

const (
	// FileName 是工作目录下自动发现的配置文件名。
	FileName = "mediameta.json"
	// EnvPrefix 是环境变量前缀：MEDIAMETA_PROXY_URL 覆盖 proxy.url。
	EnvPrefix = "MEDIAMETA"

	DefaultIMDbBaseURL   = "https://www.imdb.com"
	DefaultConcurrency   = 4
	DefaultCacheTTL      = 24 * time.Hour
	DefaultRatePerSecond = 2.0
	DefaultRetryMax      = 2
	DefaultLogLevel      = "info"
	DefaultLogFormat     = "console"
)

// DefaultMirrors 是未配置 torrent_mirrors 时使用的镜像列表。
var DefaultMirrors = []Mirror{{Name: "pirateproxy", URL: "https://pirateproxy.live"}}

// CLIArgs 保留“是否显式指定”的信息，保证 --apply=false 这类覆盖可实现。
type CLIArgs struct {
	ConfigPath string

	Out    string
	OutSet bool

	Apply    bool
	ApplySet bool

	ProxyURL string
	ProxySet bool

	CacheDir    string
	CacheDirSet bool

	LogLevel    string
	LogLevelSet bool
}

type Mirror struct {
	Name string `mapstructure:"name" json:"name"`
	URL  string `mapstructure:"url" json:"url"`
}

type ProxyConfig struct {
	URL string `mapstructure:"url"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// FileConfig 对应 mediameta.json（以及 MEDIAMETA_* 环境变量）的解析结构。
type FileConfig struct {
	IMDbBaseURL       string        `mapstructure:"imdb_base_url"`
	TorrentMirrors    []Mirror      `mapstructure:"torrent_mirrors"`
	TorrentMirror     string        `mapstructure:"torrent_mirror"`
	Proxy             ProxyConfig   `mapstructure:"proxy"`
	ImageProxy        bool          `mapstructure:"image_proxy"`
	Concurrency       int           `mapstructure:"concurrency"`
	Out               string        `mapstructure:"out"`
	Apply             bool          `mapstructure:"apply"`
	CacheDir          string        `mapstructure:"cache_dir"`
	CacheTTL          time.Duration `mapstructure:"cache_ttl"`
	RatePerSecond     float64       `mapstructure:"rate_per_second"`
	RetryMax          int           `mapstructure:"retry_max"`
	LayoutFile        string        `mapstructure:"layout_file"`
	TorrentLayoutFile string        `mapstructure:"torrent_layout_file"`
	Log               LogConfig     `mapstructure:"log"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigFile 是实际读取的配置文件；没有读取时为空。
	ConfigFile string

	IMDbBaseURL    string
	TorrentMirrors []Mirror
	TorrentMirror  string

	ProxyURL   string
	ImageProxy bool

	Concurrency int
	Out         string
	Apply       bool

	// CacheDir 为空表示不使用磁盘缓存（只保留进程内缓存）。
	CacheDir      string
	CacheTTL      time.Duration
	RatePerSecond float64
	RetryMax      int

	LayoutFile        string
	TorrentLayoutFile string

	LogLevel  string
	LogFormat string
	LogFile   string
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) --config 显式指定：必须存在
// 2) 否则读取 <cwd>/mediameta.json（可选，不存在时全部使用默认值）
//
// 覆盖优先级（固定）：CLI > 环境变量 MEDIAMETA_* > 配置文件 > 内置默认值。
// 相对路径（out / cache_dir / layout_file / log.file）以配置文件所在目录为基准；
// 没有配置文件时以 cwd 为基准。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := ""
	if p := strings.TrimSpace(cli.ConfigPath); p != "" {
		cfgPath = absCleanFrom(cwdAbs, p)
		if _, err := os.Stat(cfgPath); err != nil {
			if os.IsNotExist(err) {
				return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
			}
			return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
		}
	} else {
		p := filepath.Join(cwdAbs, FileName)
		if _, err := os.Stat(p); err == nil {
			cfgPath = p
		}
	}

	fc, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	base := cwdAbs
	if cfgPath != "" {
		base = filepath.Dir(cfgPath)
	}
	return merge(base, cwdAbs, cli, fc, cfgPath)
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetDefault("imdb_base_url", DefaultIMDbBaseURL)
	v.SetDefault("torrent_mirrors", []map[string]any{})
	v.SetDefault("torrent_mirror", "")
	v.SetDefault("proxy.url", "")
	v.SetDefault("image_proxy", false)
	v.SetDefault("concurrency", DefaultConcurrency)
	v.SetDefault("out", ".")
	v.SetDefault("apply", false)
	v.SetDefault("cache_dir", "")
	v.SetDefault("cache_ttl", DefaultCacheTTL)
	v.SetDefault("rate_per_second", DefaultRatePerSecond)
	v.SetDefault("retry_max", DefaultRetryMax)
	v.SetDefault("layout_file", "")
	v.SetDefault("torrent_layout_file", "")
	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
	v.SetDefault("log.file", "")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// readFileConfig 读取配置文件（path 为空时只使用默认值与环境变量）。
func readFileConfig(path string) (FileConfig, error) {
	v := newViper()
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("json")
		if err := v.ReadInConfig(); err != nil {
			return FileConfig{}, err
		}
	}
	var fc FileConfig
	if err := v.Unmarshal(&fc); err != nil {
		return FileConfig{}, err
	}
	return fc, nil
}

func merge(base, cwd string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	imdbBase := strings.TrimSpace(fc.IMDbBaseURL)
	if err := validateHTTPURL(imdbBase); err != nil {
		return EffectiveConfig{}, invalid("imdb_base_url 无效：%w", err)
	}

	mirrors := fc.TorrentMirrors
	if len(mirrors) == 0 {
		mirrors = DefaultMirrors
	}
	seen := make(map[string]struct{}, len(mirrors))
	normMirrors := make([]Mirror, 0, len(mirrors))
	// 镜像名大小写不敏感，统一为小写（与 --mirror 的匹配规则一致）。
	for i, m := range mirrors {
		name := strings.ToLower(strings.TrimSpace(m.Name))
		if name == "" {
			return EffectiveConfig{}, invalid("torrent_mirrors[%d].name 不能为空", i)
		}
		if _, dup := seen[name]; dup {
			return EffectiveConfig{}, invalid("torrent_mirrors 中镜像名重复：%q", name)
		}
		seen[name] = struct{}{}
		u := strings.TrimSpace(m.URL)
		if err := validateHTTPURL(u); err != nil {
			return EffectiveConfig{}, invalid("torrent_mirrors[%d].url 无效：%w", i, err)
		}
		normMirrors = append(normMirrors, Mirror{Name: name, URL: u})
	}
	mirror := strings.ToLower(strings.TrimSpace(fc.TorrentMirror))
	if _, ok := seen[mirror]; mirror != "" && !ok {
		return EffectiveConfig{}, invalid("torrent_mirror %q 不在 torrent_mirrors 中", mirror)
	}

	// proxy：CLI > config
	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if cli.ProxySet {
		proxyURL = strings.TrimSpace(cli.ProxyURL)
	}
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%w", err)
		}
		switch strings.ToLower(u.Scheme) {
		case "http", "https", "socks5", "socks5h":
		default:
			return EffectiveConfig{}, invalid("proxy.url 只支持 http/https/socks5：%q", proxyURL)
		}
	}
	if fc.ImageProxy && proxyURL == "" {
		return EffectiveConfig{}, invalid("image_proxy=true 但 proxy.url 为空")
	}

	// 范围 [1, 16]；超出截断。
	concurrency := fc.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	if concurrency > 16 {
		concurrency = 16
	}

	out := absCleanFrom(base, fc.Out)
	if cli.OutSet {
		out = absCleanFrom(cwd, cli.Out)
	}
	if out == "" {
		return EffectiveConfig{}, invalid("out 不能为空")
	}

	apply := fc.Apply
	if cli.ApplySet {
		apply = cli.Apply
	}

	cacheDir := absCleanFrom(base, fc.CacheDir)
	if cli.CacheDirSet {
		cacheDir = absCleanFrom(cwd, cli.CacheDir)
	}
	if fc.CacheTTL < 0 {
		return EffectiveConfig{}, invalid("cache_ttl 不能为负数")
	}
	if fc.RatePerSecond < 0 {
		return EffectiveConfig{}, invalid("rate_per_second 不能为负数")
	}
	if fc.RetryMax < 0 || fc.RetryMax > 10 {
		return EffectiveConfig{}, invalid("retry_max 必须在 [0, 10] 内，实际 %d", fc.RetryMax)
	}

	level := strings.ToLower(strings.TrimSpace(fc.Log.Level))
	if cli.LogLevelSet {
		level = strings.ToLower(strings.TrimSpace(cli.LogLevel))
	}
	switch level {
	case "trace", "debug", "info", "warn", "error", "disabled":
	default:
		return EffectiveConfig{}, invalid("log.level 无效：%q", level)
	}
	format := strings.ToLower(strings.TrimSpace(fc.Log.Format))
	if format != "console" && format != "json" {
		return EffectiveConfig{}, invalid("log.format 只能是 console 或 json，实际 %q", format)
	}

	return EffectiveConfig{
		ConfigFile:        cfgPath,
		IMDbBaseURL:       strings.TrimRight(imdbBase, "/"),
		TorrentMirrors:    normMirrors,
		TorrentMirror:     mirror,
		ProxyURL:          proxyURL,
		ImageProxy:        fc.ImageProxy,
		Concurrency:       concurrency,
		Out:               out,
		Apply:             apply,
		CacheDir:          cacheDir,
		CacheTTL:          fc.CacheTTL,
		RatePerSecond:     fc.RatePerSecond,
		RetryMax:          fc.RetryMax,
		LayoutFile:        absCleanFrom(base, fc.LayoutFile),
		TorrentLayoutFile: absCleanFrom(base, fc.TorrentLayoutFile),
		LogLevel:          level,
		LogFormat:         format,
		LogFile:           absCleanFrom(base, fc.Log.File),
	}, nil
}

func validateHTTPURL(s string) error {
	u, err := url.Parse(s)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", s)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", s)
	}
	return nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute；p 为空时返回空串。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}
