package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/John-Robertt/bgmtv/internal/bangumi"
	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	providerx "github.com/John-Robertt/bgmtv/internal/provider"
)

func TestProvider_FetchParse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/subject/253" {
			http.NotFound(w, r)
			return
		}
		if r.URL.Query().Get("responseGroup") == "large" {
			_, _ = io.WriteString(w, `{"id":253,"name":"x","eps":[{"id":1,"sort":1}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"id":253,"name":"x","eps":26}`)
	}))
	defer srv.Close()

	p := Provider{Client: &bangumi.Client{BaseURL: srv.URL, HTTP: srv.Client()}}
	reg, err := providerx.NewRegistry(p)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	res, err := providerx.FetchParse(context.Background(), reg, "api", providerx.Request{ID: 253, Mode: decode.ModeSimple}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Subject.EpisodeCount == nil || *res.Subject.EpisodeCount != 26 {
		t.Fatalf("simple 结果不符：%+v", res.Subject)
	}
	if !strings.Contains(res.PageURL, "responseGroup=simple") {
		t.Fatalf("pageURL 不符：%q", res.PageURL)
	}
	if res.PageURL != p.PageURL(providerx.Request{ID: 253, Mode: decode.ModeSimple}) {
		t.Fatalf("PageURL 与 Fetch 返回值不一致")
	}

	res, err = providerx.FetchParse(context.Background(), reg, "api", providerx.Request{ID: 253, Mode: decode.ModeDetailed}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if len(res.Subject.Episodes) != 1 || res.Subject.EpisodeCount != nil {
		t.Fatalf("detailed 结果不符：%+v", res.Subject)
	}
}

func TestProvider_ParseRejects(t *testing.T) {
	req := providerx.Request{ID: 253}
	cases := map[string]string{
		"empty":    ``,
		"envelope": `{"request":"/subject/253","code":404,"error":"Not Found"}`,
		"mismatch": `{"id":1,"eps":1}`,
		"syntax":   `{"id":253,`,
	}
	for name, body := range cases {
		if _, err := (Provider{}).Parse(req, []byte(body), ""); err == nil {
			t.Fatalf("%s：期望错误，但得到 nil", name)
		}
	}
}
