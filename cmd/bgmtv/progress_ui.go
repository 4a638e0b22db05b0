package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/John-Robertt/bgmtv/internal/app/run"
	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是交互终端下的进度输出。
//
// 约束：
// - 只写 w（通常是 stderr），不碰 stdout 的 JSON 输出
// - 长时间没有条目完成时，定期输出一行 keepalive
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	cached  int
	fail    int

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig, total int) {
	now := time.Now()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}
	p.workers = eff.Concurrency
	p.total = total

	fmt.Fprintf(p.w, "[%s] bgmtv fetch\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigPath != "" {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	}
	fmt.Fprintf(p.w, "  provider: %s\n", providerChain(eff.Provider))
	fmt.Fprintf(p.w, "  mode: %s\n", eff.Mode)
	fmt.Fprintf(p.w, "  concurrency: %d\n", eff.Concurrency)
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	switch {
	case eff.CacheDir == "":
		fmt.Fprintln(p.w, "  cache: off")
	case eff.Save:
		fmt.Fprintf(p.w, "  cache: %s (读写)\n", eff.CacheDir)
	default:
		fmt.Fprintf(p.w, "  cache: %s (只读)\n", eff.CacheDir)
	}
	fmt.Fprintf(p.w, "执行: workers=%d total_items=%d\n\n", p.workers, total)

	p.lastPrinted = time.Now()
	if total > 0 && !p.tickerStarted {
		p.startTickerLocked()
	}
}

func (p *progressUI) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.done = idx
	p.total = total

	switch res.Status {
	case domain.StatusOK:
		p.ok++
	case domain.StatusCached:
		p.cached++
	case domain.StatusFailed:
		p.fail++
	}

	switch res.Status {
	case domain.StatusFailed:
		chain := formatAttemptChain(res.Attempts, 1)
		if chain != "" {
			chain = " attempts=" + chain
		}
		fmt.Fprintf(p.w, "[%d/%d] %d FAIL %s: %s%s (%s)\n",
			idx, total, res.ID, res.ErrorCode, truncate(res.ErrorMsg, 160), chain, formatShortDuration(dur),
		)
	default:
		status := "OK"
		if res.Status == domain.StatusCached {
			status = "CACHED"
		}
		name := ""
		if res.Subject != nil {
			name = " " + truncate(res.Subject.Name, 60)
		}
		fmt.Fprintf(p.w, "[%d/%d] %d %s provider=%s%s%s (%s)\n",
			idx, total, res.ID, status, res.ProviderUsed, name, formatFallbackNote(res), formatShortDuration(dur),
		)
	}

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免结束后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true
	stop := p.stopCh

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if time.Since(p.lastPrinted) > threshold {
					active := min(p.workers, p.total-p.done)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d cached=%d fail=%d active=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.cached, p.fail, active, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stop:
				return
			}
		}
	}()
}

func providerChain(requested string) string {
	switch strings.ToLower(strings.TrimSpace(requested)) {
	case "web":
		return "web -> api"
	default:
		return "api -> web"
	}
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

// truncate 按 rune 截断，避免切坏中文。
func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}

// formatFallbackNote 只说明 requested provider 为何失败，成功的 fallback 本身不再赘述。
func formatFallbackNote(res domain.ItemResult) string {
	req := strings.ToLower(strings.TrimSpace(res.ProviderRequested))
	used := strings.ToLower(strings.TrimSpace(res.ProviderUsed))
	if req == "" || used == "" || req == used {
		return ""
	}
	for _, a := range res.Attempts {
		if strings.ToLower(strings.TrimSpace(a.Provider)) != req || a.ErrorCode == "" {
			continue
		}
		msg := a.ErrorCode
		if m := strings.TrimSpace(a.ErrorMsg); m != "" {
			msg += ": " + m
		}
		return " fallback(" + req + " " + truncate(msg, 90) + ")"
	}
	return " fallback(" + req + ")"
}

func formatAttemptChain(attempts []domain.AttemptResult, n int) string {
	if len(attempts) == 0 || n == 0 {
		return ""
	}
	if n < 0 {
		n = len(attempts)
	}
	parts := make([]string, 0, min(n, len(attempts)))
	for _, a := range attempts {
		s := strings.TrimSpace(a.Provider) + ":" + strings.TrimSpace(a.Stage)
		if ec := strings.TrimSpace(a.ErrorCode); ec != "" {
			s += ":" + ec
		}
		if em := strings.TrimSpace(a.ErrorMsg); em != "" {
			s += ":" + truncate(em, 80)
		}
		parts = append(parts, s)
		if len(parts) >= n {
			break
		}
	}
	return strings.Join(parts, ";")
}

func formatShortDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", max(d, 0).Seconds())
}

func formatElapsed(d time.Duration) string {
	sec := int(max(d, 0).Seconds())
	return fmt.Sprintf("%02d:%02d:%02d", sec/3600, (sec%3600)/60, sec%60)
}
