package run

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/infra/httpx"
	"github.com/John-Robertt/bgmtv/internal/provider"
)

type stubProvider struct {
	name     string
	fetchErr error
	parseErr error
	delay    time.Duration

	fetches atomic.Int32
	active  atomic.Int32
	peak    atomic.Int32
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Ext() string { return "txt" }

func (p *stubProvider) PageURL(req provider.Request) string {
	return "https://bgm.test/" + p.name + "/" + strconv.FormatUint(uint64(req.ID), 10)
}

func (p *stubProvider) Fetch(ctx context.Context, req provider.Request, c *http.Client) ([]byte, string, error) {
	p.fetches.Add(1)
	n := p.active.Add(1)
	defer p.active.Add(-1)
	for {
		old := p.peak.Load()
		if n <= old || p.peak.CompareAndSwap(old, n) {
			break
		}
	}
	if p.delay > 0 {
		time.Sleep(p.delay)
	}
	if p.fetchErr != nil {
		return nil, "", p.fetchErr
	}
	return []byte(p.name + "-subject"), p.PageURL(req), nil
}

func (p *stubProvider) Parse(req provider.Request, body []byte, pageURL string) (domain.Subject, error) {
	if p.parseErr != nil {
		return domain.Subject{}, p.parseErr
	}
	n := 12
	return domain.Subject{ID: req.ID, URL: pageURL, Name: string(body), EpisodeCount: &n}, nil
}

type recordObserver struct {
	mu sync.Mutex

	startCalls int
	startTotal int
	idx        []int
	ids        []uint32
}

func (o *recordObserver) OnStart(eff config.EffectiveConfig, total int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.startCalls++
	o.startTotal = total
}

func (o *recordObserver) OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.idx = append(o.idx, idx)
	o.ids = append(o.ids, res.ID)
}

func newReg(t *testing.T, ps ...provider.Provider) provider.Registry {
	t.Helper()
	reg, err := provider.NewRegistry(ps...)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	return reg
}

func baseConfig() config.EffectiveConfig {
	return config.EffectiveConfig{Provider: "api", Mode: decode.ModeSimple, Concurrency: 2, RetryMax: 0}
}

func TestExecute_FallbackAndReport(t *testing.T) {
	api := &stubProvider{name: "api", fetchErr: &httpx.StatusError{StatusCode: http.StatusTooManyRequests}}
	web := &stubProvider{name: "web"}

	rr := Execute(context.Background(), baseConfig(), newReg(t, api, web), []uint32{253, 12})

	if rr.Summary.OK != 2 || rr.Summary.Failed != 0 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}
	if rr.Items[0].ID != 12 || rr.Items[1].ID != 253 {
		t.Fatalf("items 应按 id 排序：%+v", rr.Items)
	}
	it := rr.Items[1]
	if it.ProviderRequested != "api" || it.ProviderUsed != "web" || it.PageURL != "https://bgm.test/web/253" {
		t.Fatalf("provider 信息不符：%+v", it)
	}
	if len(it.Attempts) != 2 || it.Attempts[0].ErrorCode != domain.ErrCodeFetchFailed || it.Attempts[1].Stage != provider.StageOK {
		t.Fatalf("attempts 不符：%+v", it.Attempts)
	}
	if it.Subject == nil || it.Subject.Name != "web-subject" || it.Subject.Episodes != 12 {
		t.Fatalf("subject 摘要不符：%+v", it.Subject)
	}
	if rr.Provider != "api" || rr.Mode != "simple" {
		t.Fatalf("报告头不符：%+v", rr)
	}
}

func TestExecute_AllProvidersFail(t *testing.T) {
	api := &stubProvider{name: "api", fetchErr: errors.New("down")}
	web := &stubProvider{name: "web", parseErr: &decode.DecodeError{Kind: decode.KindMalformed}}

	rr := Execute(context.Background(), baseConfig(), newReg(t, api, web), []uint32{1})
	it := rr.Items[0]
	if it.Status != domain.StatusFailed || it.ErrorCode != domain.ErrCodeParseFailed {
		t.Fatalf("期望 parse_failed，实际 %+v", it)
	}
	if it.Subject != nil || !rr.HasFailures() {
		t.Fatalf("失败项不应带 subject：%+v", it)
	}
}

func TestExecute_InvalidAndDuplicateIDs(t *testing.T) {
	api := &stubProvider{name: "api"}
	rr := Execute(context.Background(), baseConfig(), newReg(t, api), []uint32{5, 0, 5, 5})

	if len(rr.Items) != 2 {
		t.Fatalf("期望去重后 2 项，实际 %d", len(rr.Items))
	}
	if rr.Items[0].ID != 5 || rr.Items[1].ErrorCode != domain.ErrCodeInvalidID {
		t.Fatalf("items 不符：%+v", rr.Items)
	}
	if api.fetches.Load() != 1 {
		t.Fatalf("重复 id 只应抓取一次，实际 %d", api.fetches.Load())
	}
}

func TestExecute_RespectsConcurrency(t *testing.T) {
	api := &stubProvider{name: "api", delay: 20 * time.Millisecond}
	eff := baseConfig()
	eff.Concurrency = 3

	ids := make([]uint32, 12)
	for i := range ids {
		ids[i] = uint32(i + 1)
	}
	rr := Execute(context.Background(), eff, newReg(t, api), ids)
	if rr.Summary.OK != len(ids) {
		t.Fatalf("期望全部成功：%+v", rr.Summary)
	}
	if peak := api.peak.Load(); peak > 3 {
		t.Fatalf("并发超过上限：peak=%d", peak)
	}
}

func TestExecuteWithObserver_Events(t *testing.T) {
	api := &stubProvider{name: "api"}
	obs := &recordObserver{}
	eff := baseConfig()
	eff.Concurrency = 4

	_ = ExecuteWithObserver(context.Background(), eff, newReg(t, api), []uint32{1, 2, 3, 3}, obs)

	if obs.startCalls != 1 || obs.startTotal != 3 {
		t.Fatalf("OnStart 不符：calls=%d total=%d", obs.startCalls, obs.startTotal)
	}
	if len(obs.idx) != 3 {
		t.Fatalf("期望 3 个条目事件，实际 %v", obs.idx)
	}
	for i, n := range obs.idx {
		if n != i+1 {
			t.Fatalf("idx 应严格递增：%v", obs.idx)
		}
	}
}

func TestExecute_CacheReadThrough(t *testing.T) {
	dir := t.TempDir()
	api := &stubProvider{name: "api"}
	reg := newReg(t, api)

	eff := baseConfig()
	eff.CacheDir = dir
	eff.Save = true
	rr := Execute(context.Background(), eff, reg, []uint32{253})
	if rr.Items[0].Status != domain.StatusOK {
		t.Fatalf("首次应联网成功：%+v", rr.Items[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "providers", "api", "253.simple.txt")); err != nil {
		t.Fatalf("期望写入缓存：%v", err)
	}

	// 只读缓存：命中后不再联网。
	eff.Save = false
	rr = Execute(context.Background(), eff, reg, []uint32{253})
	it := rr.Items[0]
	if it.Status != domain.StatusCached || it.ProviderUsed != "api" || it.Subject == nil || it.Subject.Name != "api-subject" {
		t.Fatalf("期望缓存命中：%+v", it)
	}
	if api.fetches.Load() != 1 {
		t.Fatalf("缓存命中不应联网，fetches=%d", api.fetches.Load())
	}
	if rr.Summary.Cached != 1 {
		t.Fatalf("summary 不符：%+v", rr.Summary)
	}

	// 模式不同则键不同，不能命中。
	eff.Mode = decode.ModeDetailed
	rr = Execute(context.Background(), eff, reg, []uint32{253})
	if rr.Items[0].Status != domain.StatusOK || api.fetches.Load() != 2 {
		t.Fatalf("detailed 不应命中 simple 缓存：%+v", rr.Items[0])
	}
}

func TestExecute_ReadOnlyCacheDoesNotWrite(t *testing.T) {
	dir := t.TempDir()
	eff := baseConfig()
	eff.CacheDir = dir

	rr := Execute(context.Background(), eff, newReg(t, &stubProvider{name: "api"}), []uint32{1})
	if rr.Items[0].Status != domain.StatusOK {
		t.Fatalf("不期望失败：%+v", rr.Items[0])
	}
	if _, err := os.Stat(filepath.Join(dir, "providers")); !os.IsNotExist(err) {
		t.Fatalf("未开启 save 时不应写缓存：%v", err)
	}
}

func TestExecute_InvalidNetworkConfig(t *testing.T) {
	eff := baseConfig()
	eff.ProxyURL = "127.0.0.1:8080"

	rr := Execute(context.Background(), eff, newReg(t, &stubProvider{name: "api"}), []uint32{1})
	if len(rr.Items) != 1 || rr.Items[0].ErrorCode != domain.ErrCodeConfigInvalid {
		t.Fatalf("期望 config_invalid 合成项：%+v", rr.Items)
	}
}

func TestExecute_NilObserver_SameResult(t *testing.T) {
	reg := newReg(t, &stubProvider{name: "api"})
	a := Execute(context.Background(), baseConfig(), reg, []uint32{1, 2})
	b := ExecuteWithObserver(context.Background(), baseConfig(), reg, []uint32{1, 2}, &recordObserver{})

	a.StartedAt, a.FinishedAt = time.Time{}, time.Time{}
	b.StartedAt, b.FinishedAt = time.Time{}, time.Time{}
	if len(a.Items) != len(b.Items) || a.Summary != b.Summary {
		t.Fatalf("observer 不应改变结果：\n%+v\n%+v", a, b)
	}
}

func TestHumanizeFetchError(t *testing.T) {
	cases := []error{
		&provider.BlockedError{Reason: "login-required"},
		&decode.APIError{Code: 404, Message: "Not Found"},
		&httpx.StatusError{StatusCode: 429},
		context.DeadlineExceeded,
		errors.New("boom"),
	}
	for _, err := range cases {
		if msg := humanizeFetchError("api", err); msg == "" {
			t.Fatalf("期望非空提示：%v", err)
		}
	}
}
