package main

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mediameta/internal/app/run"
	"github.com/John-Robertt/mediameta/internal/config"
	"github.com/John-Robertt/mediameta/internal/infra/cache"
	"github.com/John-Robertt/mediameta/internal/infra/httpx"
	"github.com/John-Robertt/mediameta/internal/logger"
	"github.com/John-Robertt/mediameta/internal/provider"
	"github.com/John-Robertt/mediameta/internal/provider/imdb"
	"github.com/John-Robertt/mediameta/internal/provider/tpb"
)

// app 是一次命令调用的全部依赖；由 newApp 按 EffectiveConfig 组装。
type app struct {
	eff     config.EffectiveConfig
	log     *logger.Logger
	opts    httpx.Options
	store   *cache.Store
	pages   *cache.Fetcher
	imdb    imdb.Client
	mirrors provider.Registry
}

// appOptions 描述子命令对装配的额外要求。
type appOptions struct {
	cli config.CLIArgs
	// readOnlyCache=true 时磁盘缓存只读（run 的 dry-run 约定不落盘）。
	readOnlyCache bool
}

func newApp(cmd *cobra.Command, g *globalFlags, ao appOptions) (*app, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, &exitError{Code: exitFailure, Msg: fmt.Sprintf("读取当前目录失败：%v", err), Err: err}
	}

	cli := ao.cli
	cli.ConfigPath = g.config
	flags := cmd.Flags()
	if flags.Changed("proxy") {
		cli.ProxyURL, cli.ProxySet = g.proxy, true
	}
	if flags.Changed("cache-dir") {
		cli.CacheDir, cli.CacheDirSet = g.cacheDir, true
	}
	if flags.Changed("log-level") {
		cli.LogLevel, cli.LogLevelSet = g.logLevel, true
	}

	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] %v", config.Code(err), err), Err: err}
	}
	return buildApp(cmd, eff, ao.readOnlyCache)
}

func buildApp(cmd *cobra.Command, eff config.EffectiveConfig, readOnlyCache bool) (*app, error) {
	lg, err := logger.New(logger.Config{
		Level:  eff.LogLevel,
		Format: eff.LogFormat,
		File:   eff.LogFile,
	}, cmd.ErrOrStderr())
	if err != nil {
		return nil, &exitError{Code: exitFailure, Msg: fmt.Sprintf("初始化日志失败：%v", err), Err: err}
	}

	opts := httpx.Options{
		ProxyURL:      eff.ProxyURL,
		RetryMax:      eff.RetryMax,
		RatePerSecond: eff.RatePerSecond,
	}
	// 配置里的 0 表示“不重试”；httpx 的 0 表示默认值。
	if eff.RetryMax == 0 {
		opts.RetryMax = -1
	}
	metaClient, err := httpx.NewMetaClient(opts)
	if err != nil {
		_ = lg.Close()
		return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] proxy.url 无效：%v", config.ErrCodeInvalid, err), Err: err}
	}

	var store *cache.Store
	if strings.TrimSpace(eff.CacheDir) != "" {
		s := cache.New(eff.CacheDir, readOnlyCache)
		s.TTL = eff.CacheTTL
		store = &s
	}
	fetcher, err := cache.NewFetcher(httpx.Fetcher{Client: metaClient}, store, eff.CacheTTL, lg.Component("cache"))
	if err != nil {
		_ = lg.Close()
		return nil, &exitError{Code: exitFailure, Msg: err.Error(), Err: err}
	}

	layout, err := imdb.LoadLayout(eff.LayoutFile)
	if err != nil {
		_ = lg.Close()
		return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] layout_file：%v", config.ErrCodeInvalid, err), Err: err}
	}
	imdbLog := lg.Component("imdb")

	tl, err := tpb.LoadLayout(eff.TorrentLayoutFile)
	if err != nil {
		_ = lg.Close()
		return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] torrent_layout_file：%v", config.ErrCodeInvalid, err), Err: err}
	}
	indexes := make([]provider.TorrentIndex, 0, len(eff.TorrentMirrors))
	for _, m := range eff.TorrentMirrors {
		ix, err := tpb.New(m.Name, m.URL, fetcher, tpb.WithLayout(tl), tpb.WithLogger(lg.Component("tpb")))
		if err != nil {
			_ = lg.Close()
			return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] torrent_mirrors：%v", config.ErrCodeInvalid, err), Err: err}
		}
		indexes = append(indexes, ix)
	}
	reg, err := provider.NewRegistry(indexes...)
	if err != nil {
		_ = lg.Close()
		return nil, &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] torrent_mirrors：%v", config.ErrCodeInvalid, err), Err: err}
	}

	lg.Debug().
		Str("config", eff.ConfigFile).
		Str("imdb", eff.IMDbBaseURL).
		Strs("mirrors", reg.Names()).
		Str("cache_dir", eff.CacheDir).
		Msg("app ready")

	return &app{
		eff:   eff,
		log:   lg,
		opts:  opts,
		store: store,
		pages: fetcher,
		imdb: imdb.Client{
			BaseURL: eff.IMDbBaseURL,
			Fetcher: fetcher,
			Layout:  &layout,
			Log:     &imdbLog,
		},
		mirrors: reg,
	}, nil
}

func (a *app) Close() error {
	a.log.Debug().Int("memo_pages", a.pages.Len()).Msg("app closing")
	return a.log.Close()
}

// imageClient 只在 run --apply 下构造（dry-run 不下载图片）。
func (a *app) imageClient() (*http.Client, error) {
	return httpx.NewImageClient(a.opts, a.eff.ImageProxy)
}

// runDeps 把装配好的依赖交给批量执行层。
func (a *app) runDeps(images *http.Client, skipKeywords bool) run.Deps {
	return run.Deps{
		IMDb:         a.imdb,
		Images:       images,
		Records:      a.store,
		SkipKeywords: skipKeywords,
		Log:          a.log.Component("run"),
	}
}

// providerExit 把抽取错误映射为退出码：没找到 => 3，其余 => 1。
func providerExit(site string, err error) error {
	if provider.IsNotFound(err) {
		return &exitError{Code: exitNotFound, Msg: err.Error(), Err: err}
	}
	return &exitError{Code: exitFailure, Msg: run.HumanizeError(site, err), Err: err}
}
