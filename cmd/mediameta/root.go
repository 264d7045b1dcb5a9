package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// 退出码：stdout 的 JSON 之外，调用方只依赖这几个值。
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotFound = 3
)

// exitError 携带退出码；Msg 已经是面向用户的描述。
type exitError struct {
	Code int
	Msg  string
	Err  error
}

func (e *exitError) Error() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("exit %d", e.Code)
}

func (e *exitError) Unwrap() error { return e.Err }

// globalFlags 是所有子命令共享的持久参数。
type globalFlags struct {
	config   string
	proxy    string
	cacheDir string
	logLevel string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globalFlags{}

	root := &cobra.Command{
		Use:   "mediameta",
		Short: "抓取影视条目元数据、剧集、关键词与种子列表",
		Long: `mediameta 通过搜索词定位影视条目，抽取结构化元数据并以 JSON 输出。

stdout 只输出 JSON 结果；日志与进度写 stderr。
退出码：0 成功，1 失败，2 用法/配置错误，3 没有找到。`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.config, "config", "", "配置文件路径（默认读取当前目录下的 mediameta.json）")
	pf.StringVar(&g.proxy, "proxy", "", "代理地址：http/https/socks5，覆盖 proxy.url")
	pf.StringVar(&g.cacheDir, "cache-dir", "", "磁盘页面缓存目录，覆盖 cache_dir")
	pf.StringVar(&g.logLevel, "log-level", "", "日志级别：trace|debug|info|warn|error|disabled")

	root.AddCommand(
		newLookupCmd(g),
		newEpisodesCmd(g),
		newTorrentsCmd(g),
		newKeywordsCmd(g),
		newRunCmd(g),
	)
	return root
}

// execute 运行 CLI 并返回退出码；main 之外的测试直接调用它。
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(stdout, stderr)
	root.SetIn(stdin)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}

	var ee *exitError
	if errors.As(err, &ee) {
		fmt.Fprintf(stderr, "错误：%s\n", ee.Error())
		return ee.Code
	}
	// cobra 自身的参数/子命令错误。
	fmt.Fprintf(stderr, "参数错误：%v\n\n", err)
	fmt.Fprint(stderr, root.UsageString())
	return exitUsage
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
