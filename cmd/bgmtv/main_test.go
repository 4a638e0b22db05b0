package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
)

type testCLI struct {
	*cli
	out, err *bytes.Buffer
	env      map[string]string
}

func newTestCLI(t *testing.T, cwd string) *testCLI {
	t.Helper()
	tc := &testCLI{out: &bytes.Buffer{}, err: &bytes.Buffer{}, env: map[string]string{}}
	tc.cli = &cli{stdout: tc.out, stderr: tc.err, cwd: cwd, getenv: func(k string) string { return tc.env[k] }}
	return tc
}

func (tc *testCLI) exec(args ...string) int {
	tc.out.Reset()
	tc.err.Reset()
	return tc.run(context.Background(), args)
}

// writeConfig 在 cwd 写入 bgmtv.json；网络相关项指向测试服务器，并关闭限速与重试。
func writeConfig(t *testing.T, cwd, baseURL string, extra map[string]any) {
	t.Helper()
	cfg := map[string]any{
		"base_url":     baseURL,
		"web_base_url": baseURL,
		"rate_per_sec": 0,
		"retry_max":    0,
		"app_name":     "bgmtv-test",
	}
	for k, v := range extra {
		cfg[k] = v
	}
	b, err := json.Marshal(cfg)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(cwd, "bgmtv.json"), b, 0o644))
}

func decodeReport(t *testing.T, b []byte) domain.FetchReport {
	t.Helper()
	var rr domain.FetchReport
	require.NoError(t, json.Unmarshal(b, &rr), "stdout 不是合法的 FetchReport JSON：%q", string(b))
	return rr
}

const subject253 = `{"id":253,"url":"http://bgm.tv/subject/253","type":2,"name":"カウボーイビバップ","name_cn":"星际牛仔","eps":26,"rating":{"total":55,"count":[0,0,0,0,1,2,4,8,16,24],"score":8.7},"rank":12}`

// apiServer 只响应 API 形态的请求（带 responseGroup），其余 404。
func apiServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		group := r.URL.Query().Get("responseGroup")
		if r.URL.Path == "/subject/253" && group != "" {
			if hits != nil {
				hits.Add(1)
			}
			if group == "large" {
				_, _ = io.WriteString(w, `{"id":253,"name":"カウボーイビバップ","eps":[{"id":519,"sort":1}]}`)
				return
			}
			_, _ = io.WriteString(w, subject253)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestRun_HelpAndUnknown(t *testing.T) {
	tc := newTestCLI(t, t.TempDir())

	assert.Equal(t, 0, tc.exec())
	assert.Contains(t, tc.out.String(), "fetch")

	assert.Equal(t, 0, tc.exec("fetch", "--help"))
	assert.Contains(t, tc.out.String(), usages["fetch"])

	assert.Equal(t, 2, tc.exec("nope"))
	assert.Contains(t, tc.err.String(), "未知命令")
}

func TestFetch_StdoutIsSingleJSONReport(t *testing.T) {
	cwd := t.TempDir()
	srv := apiServer(t, nil)
	writeConfig(t, cwd, srv.URL, nil)
	tc := newTestCLI(t, cwd)

	require.Equal(t, 0, tc.exec("fetch", "253"), "stderr=%s", tc.err.String())

	rr := decodeReport(t, tc.out.Bytes())
	require.Len(t, rr.Items, 1)
	it := rr.Items[0]
	assert.Equal(t, domain.StatusOK, it.Status)
	assert.Equal(t, "api", it.ProviderUsed)
	require.NotNil(t, it.Subject)
	assert.Equal(t, "星际牛仔", it.Subject.ChineseName)
	assert.Equal(t, 26, it.Subject.Episodes)

	assert.NotContains(t, tc.out.String(), "配置（生效）")
	assert.Contains(t, tc.err.String(), "完成：ok=1 cached=0 failed=0")
}

func TestFetch_FallbackToWeb(t *testing.T) {
	html, err := os.ReadFile(filepath.Join("..", "..", "internal", "provider", "web", "testdata", "subject_253.html"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("responseGroup") != "" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		if r.URL.Path == "/subject/253" {
			_, _ = w.Write(html)
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(srv.Close)

	cwd := t.TempDir()
	writeConfig(t, cwd, srv.URL, nil)
	tc := newTestCLI(t, cwd)

	require.Equal(t, 0, tc.exec("fetch", "253"), "stderr=%s", tc.err.String())
	it := decodeReport(t, tc.out.Bytes()).Items[0]
	assert.Equal(t, "api", it.ProviderRequested)
	assert.Equal(t, "web", it.ProviderUsed)
	assert.Equal(t, srv.URL+"/subject/253", it.PageURL)
	require.Len(t, it.Attempts, 2)
	assert.Equal(t, domain.ErrCodeFetchFailed, it.Attempts[0].ErrorCode)
}

func TestFetch_SaveThenCached(t *testing.T) {
	var hits atomic.Int32
	srv := apiServer(t, &hits)
	cwd := t.TempDir()
	writeConfig(t, cwd, srv.URL, map[string]any{"cache_dir": "cache"})
	tc := newTestCLI(t, cwd)

	require.Equal(t, 0, tc.exec("fetch", "253", "--save"), "stderr=%s", tc.err.String())
	assert.FileExists(t, filepath.Join(cwd, "cache", "providers", "api", "253.simple.json"))

	require.Equal(t, 0, tc.exec("fetch", "253"), "stderr=%s", tc.err.String())
	rr := decodeReport(t, tc.out.Bytes())
	assert.Equal(t, domain.StatusCached, rr.Items[0].Status)
	assert.Equal(t, 1, rr.Summary.Cached)
	assert.Equal(t, int32(1), hits.Load())

	// detailed 的缓存键不同，必须联网。
	require.Equal(t, 0, tc.exec("fetch", "253", "--mode", "detailed"))
	assert.Equal(t, int32(2), hits.Load())
}

func TestFetch_ItemFailuresExitOne(t *testing.T) {
	srv := apiServer(t, nil)
	cwd := t.TempDir()
	writeConfig(t, cwd, srv.URL, nil)
	tc := newTestCLI(t, cwd)

	require.Equal(t, 1, tc.exec("fetch", "253", "0", "404"))
	rr := decodeReport(t, tc.out.Bytes())
	require.Len(t, rr.Items, 3)
	assert.Equal(t, uint32(253), rr.Items[0].ID)
	assert.Equal(t, domain.ErrCodeFetchFailed, rr.Items[1].ErrorCode)
	assert.Equal(t, domain.ErrCodeInvalidID, rr.Items[2].ErrorCode)
	assert.Equal(t, domain.ReportSummary{OK: 1, Failed: 2}, rr.Summary)
}

func TestFetch_ConfigNotFound(t *testing.T) {
	tc := newTestCLI(t, t.TempDir())

	require.Equal(t, 1, tc.exec("fetch", "253", "--config", "missing.json"))
	rr := decodeReport(t, tc.out.Bytes())
	require.Len(t, rr.Items, 1)
	assert.Equal(t, domain.ErrCodeConfigNotFound, rr.Items[0].ErrorCode)
	assert.Equal(t, "api", rr.Provider)
}

func TestFetch_UsageErrors(t *testing.T) {
	tc := newTestCLI(t, t.TempDir())
	for _, args := range [][]string{
		{"fetch"},
		{"fetch", "abc"},
		{"fetch", "1", "--bogus"},
		{"fetch", "1", "--concurrency", "x"},
		{"fetch", "1", "--provider", "javdb"},
		{"fetch", "1", "--save=maybe"},
	} {
		assert.Equal(t, 2, tc.exec(args...), "args=%v", args)
		assert.Empty(t, tc.out.String(), "args=%v", args)
	}
}

func TestSubject_PrintsText(t *testing.T) {
	srv := apiServer(t, nil)
	cwd := t.TempDir()
	writeConfig(t, cwd, srv.URL, nil)
	tc := newTestCLI(t, cwd)

	require.Equal(t, 0, tc.exec("subject", "253"), "stderr=%s", tc.err.String())
	out := tc.out.String()
	assert.Contains(t, out, "星际牛仔")
	assert.Contains(t, out, "8.7 (55 votes)")
	assert.Contains(t, out, "#12")

	assert.Equal(t, 1, tc.exec("subject", "404"))
	assert.Equal(t, 2, tc.exec("subject", "0"))
}

func TestLogin_ThenAuthenticatedCommands(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth":
			if err := r.ParseForm(); err != nil || r.PostForm.Get("password") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"id":1,"username":"sai","nickname":"Sai","auth":"a+b/c","auth_encode":"a%2Bb%2Fc"}`)
		case "/notify/count":
			if r.URL.Query().Get("auth") != "a+b/c" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, `{"count":5}`)
		case "/user/1/collection":
			_, _ = io.WriteString(w, `[{"name":"カウボーイビバップ","subject_id":253,"ep_status":3,"subject":{"id":253,"name_cn":"星际牛仔","eps":26}}]`)
		case "/user/1/progress":
			_, _ = io.WriteString(w, `{"subject_id":253,"eps":[{"id":519,"status":{"id":2}},{"id":999,"status":{"id":3}}]}`)
		case "/subject/253":
			_, _ = io.WriteString(w, `{"id":253,"name":"x","eps":[{"id":519,"sort":1,"name":"Asteroid Blues"},{"id":520,"sort":2}]}`)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	cwd := t.TempDir()
	writeConfig(t, cwd, srv.URL, map[string]any{"provider": "web"})
	tc := newTestCLI(t, cwd)

	// 未登录。
	assert.Equal(t, 1, tc.exec("notify"))
	assert.Contains(t, tc.err.String(), "login")

	assert.Equal(t, 2, tc.exec("login", "sai"), "缺少密码应是参数错误")

	tc.env["BGMTV_PASSWORD"] = "wrong"
	assert.Equal(t, 1, tc.exec("login", "sai"))

	tc.env["BGMTV_PASSWORD"] = "secret"
	require.Equal(t, 0, tc.exec("login", "sai"), "stderr=%s", tc.err.String())
	assert.Contains(t, tc.out.String(), "Sai (id=1)")

	b, err := os.ReadFile(filepath.Join(cwd, "bgmtv.json"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"provider"`, "其余配置应保留")

	require.Equal(t, 0, tc.exec("notify"), "stderr=%s", tc.err.String())
	assert.Equal(t, "未读通知：5\n", tc.out.String())

	require.Equal(t, 0, tc.exec("watching"), "stderr=%s", tc.err.String())
	assert.Contains(t, tc.out.String(), "3/26")
	assert.Contains(t, tc.out.String(), "星际牛仔")

	require.Equal(t, 0, tc.exec("progress", "253"), "stderr=%s", tc.err.String())
	out := tc.out.String()
	assert.Contains(t, out, "Asteroid Blues")
	assert.Contains(t, out, "watched")
	assert.Contains(t, out, "ep#999")
	assert.NotContains(t, out, "ep2 ", "未标记的章节不输出")
}

func TestParseArgs(t *testing.T) {
	ca, err := parseArgs([]string{"1", "--mode=detailed", "--concurrency", "8", "--save", "2", "--config", "x.json"}, "mode", "concurrency", "save")
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2"}, ca.pos)
	assert.True(t, ca.cfg.ModeSet)
	assert.Equal(t, "detailed", ca.cfg.Mode)
	assert.Equal(t, 8, ca.cfg.Concurrency)
	assert.True(t, ca.cfg.SaveSet && ca.cfg.Save)
	assert.Equal(t, "x.json", ca.cfg.ConfigPath)

	ca, err = parseArgs([]string{"--save=false"}, "save")
	require.NoError(t, err)
	assert.True(t, ca.cfg.SaveSet)
	assert.False(t, ca.cfg.Save)

	_, err = parseArgs([]string{"--mode"}, "mode")
	assert.Error(t, err)
	_, err = parseArgs([]string{"--proxy", "x"}, "mode")
	assert.Error(t, err)
	_, err = parseArgs([]string{"-v"})
	assert.Error(t, err)
}

func TestParseID(t *testing.T) {
	id, err := parseID(" 253 ")
	require.NoError(t, err)
	assert.Equal(t, uint32(253), id)

	for _, s := range []string{"0", "-1", "x", "4294967296"} {
		_, err := parseID(s)
		assert.Error(t, err, s)
	}
}

func TestEmitReport_ConfigErrorKey(t *testing.T) {
	tc := newTestCLI(t, t.TempDir())
	rr := reportForConfigError(config.CLIArgs{Provider: "WEB", ProviderSet: true}, assert.AnError)
	tc.emitReport(rr)

	got := decodeReport(t, tc.out.Bytes())
	assert.Equal(t, "web", got.Provider)
	assert.Equal(t, "simple", got.Mode)
	assert.True(t, strings.HasPrefix(tc.err.String(), "完成：ok=0 cached=0 failed=1"))
}
