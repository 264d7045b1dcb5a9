package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mediameta/internal/app/run"
	"github.com/John-Robertt/mediameta/internal/config"
	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/infra/fsx"
)

func newRunCmd(g *globalFlags) *cobra.Command {
	var (
		apply      bool
		out        string
		noKeywords bool
	)
	cmd := &cobra.Command{
		Use:   "run [terms-file]",
		Short: "批量查询搜索词列表（默认 dry-run）",
		Long: `run 从文件（或 stdin）逐行读取搜索词并发查询。

  - 空行与 # 开头的行被忽略，重复的词只查一次
  - dry-run：只验证抓取与解析，不写任何文件
  - --apply：写出 <out>/<id>/ 下的 NFO、poster.jpg、media.json，以及 <out>/cache/report.json
  - 已存在的文件不会被覆盖

stdout 输出一个 RunReport JSON。`,
		Example: `  mediameta run terms.txt
  cat terms.txt | mediameta run --apply --out ./library`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			cli := config.CLIArgs{
				Out:      out,
				OutSet:   flags.Changed("out"),
				Apply:    apply,
				ApplySet: flags.Changed("apply"),
			}

			src := "-"
			if len(args) == 1 {
				src = args[0]
			}
			terms, err := readTerms(cmd.InOrStdin(), src)
			if err != nil {
				return &exitError{Code: exitUsage, Msg: fmt.Sprintf("读取搜索词失败：%v", err), Err: err}
			}

			// 先拿到 apply 的最终值：dry-run 约定磁盘缓存只读。
			a, err := newApp(cmd, g, appOptions{cli: cli, readOnlyCache: !effectiveApply(cmd, g, cli)})
			if err != nil {
				return err
			}
			defer a.Close()
			eff := a.eff

			deps := a.runDeps(nil, noKeywords)
			if eff.Apply {
				ic, err := a.imageClient()
				if err != nil {
					return &exitError{Code: exitUsage, Msg: fmt.Sprintf("[%s] %v", config.ErrCodeInvalid, err), Err: err}
				}
				deps.Images = ic
			}

			// 进度只在 stderr 是终端时输出。
			stderr := cmd.ErrOrStderr()
			var (
				obs run.Observer
				rr  domain.RunReport
			)
			if isTTY(stderr) {
				obs = newProgressUI(stderr)
				rr = run.ExecuteWithObserver(cmd.Context(), eff, terms, deps, obs)
			} else {
				rr = run.Execute(cmd.Context(), eff, terms, deps)
			}

			// apply：必须写入 <out>/cache/report.json；dry-run 禁止落盘。
			if eff.Apply {
				if err := writeReportFile(eff.Out, rr); err != nil {
					_ = writeJSON(cmd.OutOrStdout(), rr)
					return &exitError{Code: exitFailure, Msg: fmt.Sprintf("写入 report.json 失败：%v", err), Err: err}
				}
			}

			if err := writeJSON(cmd.OutOrStdout(), rr); err != nil {
				return &exitError{Code: exitFailure, Msg: err.Error(), Err: err}
			}
			emitSummary(stderr, rr)
			if obs != nil {
				emitLocations(stderr, eff)
			}
			return runExit(rr)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&apply, "apply", false, "写出 sidecar 文件与 report.json（默认 dry-run）；支持 --apply=false 覆盖配置")
	f.StringVar(&out, "out", "", "输出目录（覆盖配置中的 out）")
	f.BoolVar(&noKeywords, "no-keywords", false, "不抓取关键词页")
	return cmd
}

// effectiveApply 预先合并一次配置，只为决定缓存是否只读；配置错误留给 newApp 报告。
func effectiveApply(cmd *cobra.Command, g *globalFlags, cli config.CLIArgs) bool {
	if cli.ApplySet {
		return cli.Apply
	}
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}
	cli.ConfigPath = g.config
	eff, err := config.LoadEffective(cwd, cli)
	if err != nil {
		return false
	}
	return eff.Apply
}

func readTerms(stdin io.Reader, src string) ([]string, error) {
	if src == "-" {
		return run.ReadTerms(stdin)
	}
	return run.LoadTerms(src)
}

// runExit：有失败 => 1；没有失败但有未找到 => 3；否则 0。
func runExit(rr domain.RunReport) error {
	switch {
	case rr.Summary.Failed > 0:
		return &exitError{Code: exitFailure, Msg: fmt.Sprintf("%d 个搜索词处理失败", rr.Summary.Failed)}
	case rr.Summary.NotFound > 0:
		return &exitError{Code: exitNotFound, Msg: fmt.Sprintf("%d 个搜索词没有找到", rr.Summary.NotFound)}
	default:
		return nil
	}
}

func emitSummary(w io.Writer, rr domain.RunReport) {
	fmt.Fprintf(w, "完成：processed=%d not_found=%d failed=%d\n",
		rr.Summary.Processed, rr.Summary.NotFound, rr.Summary.Failed,
	)
	for _, it := range rr.Items {
		if it.Status == domain.StatusProcessed {
			continue
		}
		fmt.Fprintf(w, "%s %s: %s\n", it.Term, it.ErrorCode, it.ErrorMsg)
	}
}

func writeReportFile(out string, rr domain.RunReport) error {
	b, err := json.MarshalIndent(rr, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	return fsx.WriteFileAtomic(filepath.Join(out, "cache"), "report.json", b)
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func emitLocations(w io.Writer, eff config.EffectiveConfig) {
	// 这两行用于降低“完成后不知道产物在哪”的摩擦，且不影响 stdout JSON 契约。
	if eff.Apply {
		fmt.Fprintf(w, "report: %s\n", filepath.Join(eff.Out, "cache", "report.json"))
	}
	fmt.Fprintf(w, "out: %s\n", strings.TrimSpace(eff.Out))
}
