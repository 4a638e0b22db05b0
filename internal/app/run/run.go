package run

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/bgmtv/internal/bangumi"
	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/infra/cache"
	"github.com/John-Robertt/bgmtv/internal/infra/httpx"
	"github.com/John-Robertt/bgmtv/internal/provider"
)

// StageCache 标记“由缓存命中”的 attempt。
const StageCache = "cache"

// NewHTTPClient 按生效配置构造共享的 HTTP client（代理/限速/重试/超时）。
// UA 留空：web 抓取走 UA 池，bangumi.Client 会自行设置 UA。
func NewHTTPClient(eff config.EffectiveConfig) (*http.Client, error) {
	return httpx.NewClient(httpx.Options{
		ProxyURL:   eff.ProxyURL,
		RatePerSec: eff.RatePerSec,
		RetryMax:   eff.RetryMax,
		Timeout:    eff.Timeout,
	})
}

// Execute 批量抓取 ids，并返回对外稳定的 FetchReport。
// 错误尽量“降级”为 item 级失败（单条失败不影响其他）。
func Execute(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, ids []uint32) domain.FetchReport {
	return ExecuteWithObserver(ctx, eff, reg, ids, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, ids []uint32, obs Observer) domain.FetchReport {
	ids = dedupe(ids)
	if obs != nil {
		obs.OnStart(eff, len(ids))
	}

	rr := domain.FetchReport{
		Provider:  eff.Provider,
		Mode:      eff.Mode.String(),
		StartedAt: time.Now().UTC(),
	}

	c, err := NewHTTPClient(eff)
	if err != nil {
		rr.Items = append(rr.Items, syntheticFailed(domain.ErrCodeConfigInvalid, fmt.Sprintf("网络配置无效：%v", err)))
		rr.FinishedAt = time.Now().UTC()
		rr.Finalize()
		return rr
	}

	var store *cache.Store
	if eff.CacheDir != "" {
		store = cache.New(eff.CacheDir, !eff.Save, eff.CacheTTL)
	}

	workers := max(eff.Concurrency, 1)
	slog.Debug("fetch start", "items", len(ids), "workers", workers, "provider", eff.Provider, "mode", eff.Mode)

	results := make([]domain.ItemResult, len(ids))
	var (
		mu   sync.Mutex
		done int
		g    errgroup.Group
	)
	g.SetLimit(workers)
	for i, id := range ids {
		g.Go(func() error {
			started := time.Now()
			res := fetchOne(ctx, eff, reg, store, c, id)
			dur := time.Since(started)

			// 在锁内发事件，保证 idx 单调递增。
			mu.Lock()
			defer mu.Unlock()
			results[i] = res
			done++
			if obs != nil {
				obs.OnItemDone(done, len(ids), res, dur)
			}
			return nil
		})
	}
	_ = g.Wait()

	rr.Items = results
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

func dedupe(ids []uint32) []uint32 {
	seen := make(map[uint32]struct{}, len(ids))
	out := make([]uint32, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func syntheticFailed(code, msg string) domain.ItemResult {
	return domain.ItemResult{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  msg,
	}
}

func fetchOne(ctx context.Context, eff config.EffectiveConfig, reg provider.Registry, store *cache.Store, c *http.Client, id uint32) domain.ItemResult {
	item := domain.ItemResult{ID: id, ProviderRequested: eff.Provider}
	if id == 0 {
		item.Status = domain.StatusFailed
		item.ErrorCode = domain.ErrCodeInvalidID
		item.ErrorMsg = "subject id 不能为 0"
		return item
	}
	req := provider.Request{ID: id, Mode: eff.Mode}
	log := slog.Default().With("id", id)

	if store != nil {
		if s, name, ok := readCache(store, reg, eff.Provider, req, log); ok {
			p, _ := reg.Get(name)
			item.Status = domain.StatusCached
			item.ProviderUsed = name
			item.PageURL = p.PageURL(req)
			item.Attempts = []domain.AttemptResult{{Provider: name, Stage: StageCache}}
			item.Subject = domain.Summarize(s)
			return item
		}
	}

	res, err := provider.FetchParse(ctx, reg, eff.Provider, req, c)
	item.Attempts = attemptResults(res.Attempts)
	if err != nil {
		fillProviderError(&item, err)
		return item
	}

	item.Status = domain.StatusOK
	item.ProviderUsed = res.Provider
	item.PageURL = res.PageURL
	item.Subject = domain.Summarize(res.Subject)

	if store != nil && eff.Save {
		p, _ := reg.Get(res.Provider)
		if err := store.Write(res.Provider, req.Key(), p.Ext(), res.Body); err != nil {
			item.Status = domain.StatusFailed
			item.ErrorCode = domain.ErrCodeCacheFailed
			item.ErrorMsg = fmt.Sprintf("写入缓存失败：%v", err)
		}
	}
	return item
}

// readCache 按 fallback 顺序查缓存；命中但解析失败的条目视为未命中（交给网络重新获取）。
func readCache(store *cache.Store, reg provider.Registry, requested string, req provider.Request, log *slog.Logger) (domain.Subject, string, bool) {
	order, err := provider.FallbackOrder(strings.ToLower(strings.TrimSpace(requested)))
	if err != nil {
		return domain.Subject{}, "", false
	}
	for _, name := range order {
		p, ok := reg.Get(name)
		if !ok {
			continue
		}
		body, hit, err := store.Read(name, req.Key(), p.Ext())
		if err != nil {
			log.Warn("cache read failed", "provider", name, "err", err)
			continue
		}
		if !hit {
			continue
		}
		s, err := p.Parse(req, body, p.PageURL(req))
		if err != nil {
			log.Warn("cache entry unusable", "provider", name, "err", err)
			continue
		}
		log.Debug("cache hit", "provider", name)
		return s, name, true
	}
	return domain.Subject{}, "", false
}

func attemptResults(in []provider.Attempt) []domain.AttemptResult {
	out := make([]domain.AttemptResult, 0, len(in))
	for _, a := range in {
		r := domain.AttemptResult{Provider: a.Provider, Stage: a.Stage}
		switch a.Stage {
		case provider.StageFetch:
			r.ErrorCode = domain.ErrCodeFetchFailed
			r.ErrorMsg = humanizeFetchError(a.Provider, a.Err)
		case provider.StageParse:
			r.ErrorCode = domain.ErrCodeParseFailed
			r.ErrorMsg = humanizeParseError(a.Provider, a.Err)
		}
		out = append(out, r)
	}
	return out
}

func fillProviderError(item *domain.ItemResult, err error) {
	item.Status = domain.StatusFailed

	var pe *provider.Error
	if errors.As(err, &pe) {
		switch pe.Stage {
		case provider.StageParse:
			item.ErrorCode = domain.ErrCodeParseFailed
			item.ErrorMsg = humanizeParseError(pe.Provider, pe.Err)
		default:
			item.ErrorCode = domain.ErrCodeFetchFailed
			item.ErrorMsg = humanizeFetchError(pe.Provider, pe.Err)
		}
		return
	}

	item.ErrorCode = domain.ErrCodeFetchFailed
	item.ErrorMsg = err.Error()
}

func humanizeFetchError(providerName string, err error) string {
	if err == nil {
		return providerName + " 抓取失败"
	}

	var be *provider.BlockedError
	if errors.As(err, &be) {
		if be.Reason == "login-required" {
			return fmt.Sprintf("%s 需要登录才能查看该条目（login-required）。当前不支持带登录态抓取；可改用 api provider。", providerName)
		}
		return fmt.Sprintf("%s 被站点拦截（%s）。建议配置 proxy.url 或稍后重试。", providerName, be.Reason)
	}

	var apiErr *bangumi.APIError
	if errors.As(err, &apiErr) {
		if apiErr.Code == http.StatusNotFound {
			return fmt.Sprintf("%s 返回 404（条目不存在或已被删除）。", providerName)
		}
		return fmt.Sprintf("%s 返回错误 code=%d：%s", providerName, apiErr.Code, apiErr.Message)
	}

	var hs *httpx.StatusError
	if errors.As(err, &hs) {
		switch hs.StatusCode {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return fmt.Sprintf("%s 返回 HTTP %d（可能触发限流）。建议降低并发/rate_per_sec 或配置 proxy.url。", providerName, hs.StatusCode)
		case http.StatusNotFound:
			return fmt.Sprintf("%s 返回 HTTP 404（条目不存在或已被删除）。", providerName)
		default:
			if loc := strings.TrimSpace(hs.Location); loc != "" {
				return fmt.Sprintf("%s 返回 HTTP %d（重定向）：%s", providerName, hs.StatusCode, loc)
			}
			return fmt.Sprintf("%s 返回 HTTP %d。", providerName, hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if errors.Is(err, context.DeadlineExceeded) || strings.Contains(low, "timeout") {
		return fmt.Sprintf("%s 抓取超时。建议检查网络/代理，或降低并发后重试。", providerName)
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") {
		return fmt.Sprintf("%s 连接失败（TLS）。建议配置 proxy.url 或稍后重试。", providerName)
	}
	return fmt.Sprintf("%s 抓取失败：%v", providerName, err)
}

func humanizeParseError(providerName string, err error) string {
	if err == nil {
		return providerName + " 解析失败"
	}
	if k := decode.Kind(err); k != "" {
		// 解码错误本身带字段路径，直接给出即可。
		return fmt.Sprintf("%s 响应不符合预期（%s）：%v", providerName, k, err)
	}
	return fmt.Sprintf("%s 解析失败（页面结构可能变化或返回了非条目内容）：%v", providerName, err)
}
