package web

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/John-Robertt/bgmtv/internal/domain"
	providerx "github.com/John-Robertt/bgmtv/internal/provider"
)

func readFixture(t *testing.T) []byte {
	t.Helper()
	b, err := os.ReadFile(filepath.Join("testdata", "subject_253.html"))
	if err != nil {
		t.Fatalf("读取 fixture 失败：%v", err)
	}
	return b
}

func TestParse_Fixture(t *testing.T) {
	req := providerx.Request{ID: 253}
	s, err := Provider{}.Parse(req, readFixture(t), "https://bgm.tv/subject/253")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	if s.ID != 253 || s.Name != "カウボーイビバップ" || s.ChineseName != "星际牛仔" {
		t.Fatalf("基本信息不符：%+v", s)
	}
	if s.URL != "https://bgm.tv/subject/253" || s.Type != domain.SubjectAnimation {
		t.Fatalf("URL/Type 不符：%q %v", s.URL, s.Type)
	}
	if !strings.HasPrefix(s.Summary, "2071年") {
		t.Fatalf("简介不符：%q", s.Summary)
	}
	if want := time.Date(1998, 10, 23, 0, 0, 0, 0, time.UTC); !s.AirDate.Equal(want) {
		t.Fatalf("放送日期不符：%v", s.AirDate)
	}
	if s.AirWeekday != time.Friday {
		t.Fatalf("期望星期五，实际 %v", s.AirWeekday)
	}
	if s.EpisodeCount == nil || *s.EpisodeCount != 26 || s.Episodes != nil || s.TotalEpisodes != 26 {
		t.Fatalf("章节数不符：count=%v eps=%v", s.EpisodeCount, s.Episodes)
	}
	if s.Rating.Score != 9.1 || s.Rating.Total != 3026 || s.Rank != 3 {
		t.Fatalf("评分不符：%+v rank=%d", s.Rating, s.Rank)
	}
	want := domain.Histogram{6, 4, 6, 10, 20, 40, 120, 400, 900, 1520}
	if s.Rating.Count != want {
		t.Fatalf("评分分布不符：%v", s.Rating.Count)
	}
	if s.Images.Large != "https://lain.bgm.tv/pic/cover/l/c2/0a/253_t3XWt.jpg" ||
		s.Images.Small != "https://lain.bgm.tv/pic/cover/s/c2/0a/253_t3XWt.jpg" {
		t.Fatalf("图片不符：%+v", s.Images)
	}
}

func TestParse_Rejects(t *testing.T) {
	html := string(readFixture(t))
	cases := map[string]struct {
		id   uint32
		html string
	}{
		"empty":       {253, ""},
		"not-subject": {253, "<html><body><p>数据库中没有查询到指定条目</p></body></html>"},
		"id-mismatch": {254, html},
		"bad-weekday": {253, strings.Replace(html, "星期五", "星期八", 1)},
		"bad-chart":   {253, strings.Replace(html, `<span class="label">1</span>`, `<span class="label">10</span>`, 1)},
	}
	for name, tc := range cases {
		if _, err := (Provider{}).Parse(providerx.Request{ID: tc.id}, []byte(tc.html), ""); err == nil {
			t.Fatalf("%s：期望错误，但得到 nil", name)
		}
	}
}

func TestParse_FallsBackToProgressGrid(t *testing.T) {
	html := strings.Replace(string(readFixture(t)), `<li class=""><span class="tip">话数: </span>26</li>`, "", 1)
	s, err := Provider{}.Parse(providerx.Request{ID: 253}, []byte(html), "")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if s.EpisodeCount == nil || *s.EpisodeCount != 2 {
		t.Fatalf("期望按格子数得到 2，实际 %v", s.EpisodeCount)
	}
}

func TestFetch_Blocked(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/subject/1":
			http.Redirect(w, r, "/login", http.StatusFound)
		case "/subject/2":
			_, _ = io.WriteString(w, `<form id="loginForm"></form>`)
		default:
			_, _ = w.Write(readFixture(t))
		}
	}))
	defer srv.Close()

	p := Provider{BaseURL: srv.URL}
	for _, id := range []uint32{1, 2} {
		_, _, err := p.Fetch(context.Background(), providerx.Request{ID: id}, srv.Client())
		var be *providerx.BlockedError
		if !errors.As(err, &be) || be.Reason != "login-required" {
			t.Fatalf("id=%d：期望 login-required，实际 %v", id, err)
		}
	}

	b, pageURL, err := p.Fetch(context.Background(), providerx.Request{ID: 253}, srv.Client())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if pageURL != srv.URL+"/subject/253" || len(b) == 0 {
		t.Fatalf("Fetch 结果不符：%q len=%d", pageURL, len(b))
	}
}
