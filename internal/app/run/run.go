package run

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/mediameta/internal/config"
	"github.com/John-Robertt/mediameta/internal/domain"
	"github.com/John-Robertt/mediameta/internal/infra/cache"
	"github.com/John-Robertt/mediameta/internal/infra/fsx"
	"github.com/John-Robertt/mediameta/internal/infra/imgx"
	"github.com/John-Robertt/mediameta/internal/nfo"
	"github.com/John-Robertt/mediameta/internal/provider"
	"github.com/John-Robertt/mediameta/internal/provider/imdb"
)

const (
	// RecordFile 是 apply 模式下与 NFO 并列写出的完整记录。
	RecordFile = "media.json"

	maxPosterBytes = 20 << 20
	maxWorkers     = 16
)

// Deps 是一次运行需要的外部协作者，由 CLI 层组装。
type Deps struct {
	IMDb imdb.Client
	// Images 只在 apply 模式下用于下载海报；为 nil 时海报记为失败。
	Images *http.Client
	// Records 非 nil 且可写时，apply 模式会把记录 JSON 写入记录缓存。
	Records *cache.Store
	// SkipKeywords=true 时不抓取关键词页。
	SkipKeywords bool
	Log          zerolog.Logger
}

// mediaFile 是 media.json 的结构：记录本体 + 关键词。
type mediaFile struct {
	domain.MediaRecord
	Keywords []string `json:"keywords"`
}

// Execute 对一组搜索词执行一次 run（dry-run/apply），并返回对外稳定的 RunReport。
// 该函数尽量把错误“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, terms []string, deps Deps) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, terms, deps, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, terms []string, deps Deps, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	prepStarted := time.Now()
	uniq := uniqueTerms(terms)
	if obs != nil {
		obs.OnPhaseDone("terms", map[string]any{
			"terms":      len(terms),
			"unique":     len(uniq),
			"duplicates": len(terms) - len(uniq),
		}, time.Since(prepStarted))
	}

	rr := domain.RunReport{
		Out:       eff.Out,
		DryRun:    !eff.Apply,
		StartedAt: started,
		Items:     make([]domain.ItemResult, 0, len(uniq)),
	}

	// 执行阶段：按搜索词并发，单个词内串行（搜索 -> 详情 -> 关键词 -> 落盘）。
	workers := eff.Concurrency
	if workers < 1 {
		workers = 1
	}
	if workers > maxWorkers {
		workers = maxWorkers
	}

	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers":     workers,
			"total_items": len(uniq),
		}, 0)
	}

	results := make([]domain.ItemResult, len(uniq))
	var (
		mu   sync.Mutex
		done int
	)

	var g errgroup.Group
	g.SetLimit(workers)
	for i, term := range uniq {
		g.Go(func() error {
			oneStarted := time.Now()
			res := execOne(ctx, eff, term, deps)

			mu.Lock()
			results[i] = res
			done++
			idx := done
			mu.Unlock()

			if obs != nil {
				obs.OnItemDone(idx, len(uniq), term, res, time.Since(oneStarted))
			}
			return nil
		})
	}
	// 单条失败已降级为 item 结果，Wait 不会返回错误。
	_ = g.Wait()

	rr.Items = append(rr.Items, results...)
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()

	deps.Log.Info().
		Int("processed", rr.Summary.Processed).
		Int("not_found", rr.Summary.NotFound).
		Int("failed", rr.Summary.Failed).
		Bool("apply", eff.Apply).
		Msg("run finished")
	return rr
}

func execOne(ctx context.Context, eff config.EffectiveConfig, term string, deps Deps) domain.ItemResult {
	log := deps.Log.With().Str("term", term).Logger()

	item := domain.ItemResult{
		Term:   term,
		Status: domain.StatusProcessed, // 失败时覆盖
		Files:  []domain.FileResult{},
	}

	if err := ctx.Err(); err != nil {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeFetchFailed
		item.ErrorMsg = fmt.Sprintf("运行已取消：%v", err)
		return item
	}

	loc, err := deps.IMDb.Resolve(ctx, term)
	if err != nil {
		fillLookupError(&item, err)
		log.Warn().Err(err).Str("code", item.ErrorCode).Msg("lookup failed")
		return item
	}
	// 记录缓存命中时不再抓详情页。
	rec, cached := cachedRecord(deps, loc, log)
	if !cached {
		rec, err = deps.IMDb.Extract(ctx, loc)
		if err != nil {
			fillLookupError(&item, err)
			log.Warn().Err(err).Str("code", item.ErrorCode).Msg("lookup failed")
			return item
		}
	}
	item.ExternalID = string(rec.ExternalID)
	item.Kind = rec.Kind
	item.Title = rec.Title
	item.Website = rec.Website

	// 关键词是附加信息：抓取失败只记日志，不影响条目状态。
	var keywords []string
	if !deps.SkipKeywords {
		kw, err := deps.IMDb.ListKeywords(ctx, rec.ExternalID)
		if err != nil {
			log.Warn().Err(err).Str("id", string(rec.ExternalID)).Msg("keywords unavailable")
		} else {
			keywords = kw
		}
	}
	item.Keywords = len(keywords)

	outDir := filepath.Join(eff.Out, string(rec.ExternalID))
	names := []string{nfo.FileName(rec.Kind), nfo.PosterFile, RecordFile}
	for _, name := range names {
		item.Files = append(item.Files, domain.FileResult{
			Path:   filepath.ToSlash(filepath.Join(string(rec.ExternalID), name)),
			Status: domain.FileStatusPlanned,
		})
	}

	// dry-run：只做抓取+解析验证；不落盘、不下载图片。
	if !eff.Apply {
		return item
	}

	if err := ensureDir(outDir); err != nil {
		failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("创建输出目录失败：%v", err))
		failAllFiles(&item)
		return item
	}

	// 1) NFO
	b, err := nfo.Encode(rec, keywords)
	if err != nil {
		failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("生成 NFO 失败：%v", err))
		item.Files[0].Status = domain.FileStatusFailed
	} else {
		item.Files[0].Status = writeSidecar(&item, outDir, names[0], b)
	}

	// 2) media.json
	if keywords == nil {
		keywords = []string{}
	}
	mb, err := json.MarshalIndent(mediaFile{MediaRecord: rec, Keywords: keywords}, "", "  ")
	if err != nil {
		failItem(&item, domain.ErrCodeIOFailed, fmt.Sprintf("生成 %s 失败：%v", RecordFile, err))
		item.Files[2].Status = domain.FileStatusFailed
	} else {
		mb = append(mb, '\n')
		item.Files[2].Status = writeSidecar(&item, outDir, RecordFile, mb)
		if !cached && deps.Records != nil && !deps.Records.ReadOnly {
			if err := deps.Records.WriteRecord("imdb", rec.ExternalID, mb); err != nil {
				log.Warn().Err(err).Msg("write record cache failed")
			}
		}
	}

	// 3) poster.jpg：已存在就不再下载。
	item.Files[1].Status = writePoster(ctx, &item, deps.Images, outDir, rec)

	if item.Status == domain.StatusProcessed {
		log.Debug().Str("dir", outDir).Msg("sidecars ready")
	}
	return item
}

// cachedRecord 读取记录缓存；缺失、过期、损坏或 id 不一致都视为未命中。
func cachedRecord(deps Deps, loc domain.DetailLocation, log zerolog.Logger) (domain.MediaRecord, bool) {
	if deps.Records == nil {
		return domain.MediaRecord{}, false
	}
	b, ok, err := deps.Records.ReadRecord("imdb", loc.ExternalID)
	if err != nil {
		log.Warn().Err(err).Msg("read record cache failed")
		return domain.MediaRecord{}, false
	}
	if !ok {
		return domain.MediaRecord{}, false
	}
	var mf mediaFile
	if err := json.Unmarshal(b, &mf); err != nil {
		log.Warn().Err(err).Msg("record cache unreadable")
		return domain.MediaRecord{}, false
	}
	if mf.ExternalID != loc.ExternalID || mf.Validate() != nil {
		log.Warn().Str("id", string(loc.ExternalID)).Msg("record cache mismatch")
		return domain.MediaRecord{}, false
	}
	log.Debug().Str("id", string(loc.ExternalID)).Msg("record cache hit")
	return mf.MediaRecord, true
}

func writePoster(ctx context.Context, item *domain.ItemResult, c *http.Client, outDir string, rec domain.MediaRecord) string {
	if _, err := os.Stat(filepath.Join(outDir, nfo.PosterFile)); err == nil {
		return domain.FileStatusExisting
	}
	if strings.TrimSpace(rec.PosterURL) == "" {
		failItem(item, domain.ErrCodeParseFailed, "详情页未提供海报地址，无法下载 poster.jpg")
		return domain.FileStatusFailed
	}
	raw, err := download(ctx, c, rec.PosterURL, rec.Website)
	if err != nil {
		failItem(item, domain.ErrCodeFetchFailed, fmt.Sprintf("下载海报失败：%v", err))
		return domain.FileStatusFailed
	}
	jpg, err := imgx.NormalizeJPEG(raw)
	if err != nil {
		failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("海报转换为 JPEG 失败：%v", err))
		return domain.FileStatusFailed
	}
	return writeSidecar(item, outDir, nfo.PosterFile, jpg)
}

// writeSidecar 原子写入且不覆盖；目标已存在视为满足。
func writeSidecar(item *domain.ItemResult, dir, name string, data []byte) string {
	err := fsx.WriteFileAtomicNoOverwrite(dir, name, data)
	switch {
	case err == nil:
		return domain.FileStatusWritten
	case errors.Is(err, os.ErrExist):
		return domain.FileStatusExisting
	case fsx.IsPathTypeConflict(err):
		failItem(item, domain.ErrCodeIOFailed, err.Error())
		return domain.FileStatusFailed
	default:
		failItem(item, domain.ErrCodeIOFailed, fmt.Sprintf("写入 %s 失败：%v", name, err))
		return domain.FileStatusFailed
	}
}

// failItem 只记录第一处失败：后续文件仍尝试写出，但错误信息以最早的为准。
func failItem(item *domain.ItemResult, code, msg string) {
	if item.Status == domain.StatusFailed {
		return
	}
	item.Status = domain.StatusFailed
	item.ErrorCode = code
	item.ErrorMsg = msg
}

func failAllFiles(item *domain.ItemResult) {
	for i := range item.Files {
		item.Files[i].Status = domain.FileStatusFailed
	}
}

func ensureDir(dir string) error {
	fi, err := os.Stat(dir)
	if err == nil {
		if fi.IsDir() {
			return nil
		}
		return &fsx.PathTypeConflictError{Path: dir, Want: "dir", Got: "file"}
	}
	if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

func download(ctx context.Context, c *http.Client, u string, referer string) ([]byte, error) {
	if c == nil {
		return nil, errors.New("image client 为空")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(referer) != "" {
		req.Header.Set("Referer", referer)
	}
	req.Header.Set("Accept", "image/avif,image/webp,image/*,*/*;q=0.8")

	resp, err := c.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxPosterBytes+1))
	if err != nil {
		return nil, err
	}
	if len(b) > maxPosterBytes {
		return nil, fmt.Errorf("海报超过 %d MiB", maxPosterBytes>>20)
	}
	return b, nil
}

func fillLookupError(item *domain.ItemResult, err error) {
	switch {
	case provider.IsNotFound(err):
		item.Status = domain.StatusNotFound
		item.ErrorCode = domain.ErrCodeNotFound
		item.ErrorMsg = fmt.Sprintf("没有找到匹配的条目（%v）。可以换一个更完整的片名再试。", err)
	case provider.IsParse(err):
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeParseFailed
		item.ErrorMsg = humanizeParseError("imdb", err)
	case provider.IsTransport(err):
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeFetchFailed
		item.ErrorMsg = humanizeFetchError("imdb", err)
	default:
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeFetchFailed
		item.ErrorMsg = err.Error()
	}
}

// HumanizeError 把抽取链路的错误翻译成可操作的提示；单条命令（lookup/episodes/...）也复用它。
func HumanizeError(site string, err error) string {
	switch {
	case err == nil:
		return ""
	case provider.IsParse(err):
		return humanizeParseError(site, err)
	case provider.IsTransport(err):
		return humanizeFetchError(site, err)
	default:
		return err.Error()
	}
}

func humanizeFetchError(site string, err error) string {
	if err == nil {
		return site + " 抓取失败"
	}

	var be *provider.BlockedError
	if errors.As(err, &be) {
		return fmt.Sprintf("%s 被站点引导到验证页（%s）。当前不支持绕过；建议配置 proxy.url、降低 rate_per_second 或稍后重试。", site, be.Reason)
	}

	// HTTP 非 2xx：尽量给出可操作提示（反爬/限流/验证跳转是最常见问题）。
	var hs *provider.HTTPStatusError
	if errors.As(err, &hs) {
		loc := strings.TrimSpace(hs.Location)
		switch hs.StatusCode {
		case 403, 429:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发反爬/限流）。建议降低并发或配置 proxy.url。", site, hs.StatusCode)
		case 404:
			return fmt.Sprintf("%s 返回 HTTP 404（条目不存在或已下架）。", site)
		default:
			if loc != "" {
				return fmt.Sprintf("%s 返回 HTTP %d（重定向）：%s", site, hs.StatusCode, loc)
			}
			return fmt.Sprintf("%s 返回 HTTP %d。", site, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 抓取超时。建议检查网络/代理，或降低并发后重试。", site)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Sprintf("%s 抓取被取消。", site)
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "ssl") {
		return fmt.Sprintf("%s 连接失败（TLS/SSL 握手异常或域名不可达）。可设置 imdb_base_url 指向可用域名，或配置 proxy.url。", site)
	}

	return fmt.Sprintf("%s 抓取失败：%v", site, err)
}

func humanizeParseError(site string, err error) string {
	if err == nil {
		return site + " 解析失败"
	}
	// 解析失败通常意味着站点结构漂移或被返回了非预期页面（例如验证页/空内容）。
	return fmt.Sprintf("%s 解析失败（站点结构可能变化，可用 layout_file 覆盖选择器）：%v", site, err)
}
