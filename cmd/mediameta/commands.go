package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/provider"
)

// lookupOutput 是 lookup 的 stdout 结构；关键词与种子只在显式要求时出现。
type lookupOutput struct {
	Record   domain.MediaRecord `json:"record"`
	Keywords []string           `json:"keywords,omitempty"`
	Torrents *torrentsOutput    `json:"torrents,omitempty"`
}

type torrentsOutput struct {
	Term     string           `json:"term"`
	Mirror   string           `json:"mirror"`
	Torrents []domain.Torrent `json:"torrents"`
}

func newLookupCmd(g *globalFlags) *cobra.Command {
	var (
		withKeywords bool
		withTorrents bool
		torrentTerm  string
		mirror       string
	)
	cmd := &cobra.Command{
		Use:   "lookup <term>",
		Short: "按搜索词取第一条结果的详情",
		Example: `  mediameta lookup "The Shawshank Redemption"
  mediameta lookup "Breaking Bad" --keywords --torrents --torrent-term "breaking bad s01"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			term := strings.Join(args, " ")
			a, err := newApp(cmd, g, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()
			ctx := cmd.Context()

			rec, err := a.imdb.Lookup(ctx, term)
			if err != nil {
				return providerExit("imdb", err)
			}
			out := lookupOutput{Record: rec}

			// 附加信息失败只告警：主记录已经拿到。
			if withKeywords {
				kw, err := a.imdb.ListKeywords(ctx, rec.ExternalID)
				if err != nil {
					a.log.Warn().Err(err).Str("id", string(rec.ExternalID)).Msg("keywords unavailable")
				}
				out.Keywords = kw
			}
			if withTorrents || strings.TrimSpace(torrentTerm) != "" {
				tt := strings.TrimSpace(torrentTerm)
				if tt == "" {
					tt = term
				}
				res, err := searchTorrents(cmd, a, mirror, tt)
				if err != nil {
					a.log.Warn().Err(err).Str("term", tt).Msg("torrents unavailable")
				} else {
					out.Torrents = &res
				}
			}
			return writeJSON(cmd.OutOrStdout(), out)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&withKeywords, "keywords", false, "同时抓取关键词")
	f.BoolVar(&withTorrents, "torrents", false, "同时搜索种子（默认使用同一个搜索词）")
	f.StringVar(&torrentTerm, "torrent-term", "", "搜索种子时使用的词（隐含 --torrents）")
	f.StringVar(&mirror, "mirror", "", "首选种子镜像（默认读 torrent_mirror）")
	return cmd
}

func newEpisodesCmd(g *globalFlags) *cobra.Command {
	var season int
	cmd := &cobra.Command{
		Use:     "episodes <id>",
		Short:   "列出剧集某一季的全部分集",
		Example: `  mediameta episodes tt0903747 --season 5`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := domain.ParseExternalID(args[0])
			if !ok {
				return &exitError{Code: exitUsage, Msg: fmt.Sprintf("非法 id：%q", args[0])}
			}
			if season < 1 {
				return &exitError{Code: exitUsage, Msg: fmt.Sprintf("--season 必须 >= 1，实际 %d", season)}
			}
			a, err := newApp(cmd, g, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			eps, err := a.imdb.ListEpisodes(cmd.Context(), id, season)
			if err != nil {
				return providerExit("imdb", err)
			}
			if eps == nil {
				eps = []domain.Episode{}
			}
			return writeJSON(cmd.OutOrStdout(), eps)
		},
	}
	cmd.Flags().IntVar(&season, "season", 1, "季号（从 1 开始）")
	return cmd
}

func newKeywordsCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "keywords <id>",
		Short:   "列出条目的关键词（按页面顺序）",
		Example: `  mediameta keywords tt0111161`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, ok := domain.ParseExternalID(args[0])
			if !ok {
				return &exitError{Code: exitUsage, Msg: fmt.Sprintf("非法 id：%q", args[0])}
			}
			a, err := newApp(cmd, g, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			kw, err := a.imdb.ListKeywords(cmd.Context(), id)
			if err != nil {
				return providerExit("imdb", err)
			}
			if kw == nil {
				kw = []string{}
			}
			return writeJSON(cmd.OutOrStdout(), kw)
		},
	}
}

func newTorrentsCmd(g *globalFlags) *cobra.Command {
	var mirror string
	cmd := &cobra.Command{
		Use:   "torrents <term>",
		Short: "在种子镜像上搜索，失败时按配置顺序回退到其他镜像",
		Example: `  mediameta torrents "The Shawshank Redemption"
  mediameta torrents "heat 1995" --mirror backup`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd, g, appOptions{})
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := searchTorrents(cmd, a, mirror, strings.Join(args, " "))
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), res)
		},
	}
	cmd.Flags().StringVar(&mirror, "mirror", "", "首选种子镜像（默认读 torrent_mirror）")
	return cmd
}

func searchTorrents(cmd *cobra.Command, a *app, mirror, term string) (torrentsOutput, error) {
	requested := strings.TrimSpace(mirror)
	if requested == "" {
		requested = a.eff.TorrentMirror
	}
	if requested != "" {
		if _, ok := a.mirrors.Get(requested); !ok {
			return torrentsOutput{}, &exitError{Code: exitUsage, Msg: fmt.Sprintf("未知镜像 %q，可用：%s", requested, strings.Join(a.mirrors.Names(), ", "))}
		}
	}

	torrents, used, attempts, err := provider.SearchTorrentsTrace(cmd.Context(), a.mirrors, requested, term)
	for _, at := range attempts {
		if at.Err != nil {
			a.log.Warn().Err(at.Err).Str("mirror", at.Index).Msg("mirror failed")
		}
	}
	if err != nil {
		var pe *provider.Error
		if errors.As(err, &pe) {
			return torrentsOutput{}, providerExit(pe.Index, pe.Err)
		}
		return torrentsOutput{}, &exitError{Code: exitFailure, Msg: err.Error(), Err: err}
	}
	if torrents == nil {
		torrents = []domain.Torrent{}
	}
	return torrentsOutput{Term: term, Mirror: used, Torrents: torrents}, nil
}
