package provider

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/domain"
)

type stubProvider struct {
	name string

	fetchErr error
	parseErr error

	body    []byte
	url     string
	subject domain.Subject

	fetchCalls int
	parseCalls int
}

func (p *stubProvider) Name() string { return p.name }

func (p *stubProvider) Ext() string { return "txt" }

func (p *stubProvider) PageURL(req Request) string { return p.url }

func (p *stubProvider) Fetch(ctx context.Context, req Request, c *http.Client) ([]byte, string, error) {
	p.fetchCalls++
	if p.fetchErr != nil {
		return nil, "", p.fetchErr
	}
	return p.body, p.url, nil
}

func (p *stubProvider) Parse(req Request, body []byte, pageURL string) (domain.Subject, error) {
	p.parseCalls++
	if p.parseErr != nil {
		return domain.Subject{}, p.parseErr
	}
	s := p.subject
	s.ID = req.ID
	s.URL = pageURL
	return s, nil
}

func TestRequest_Key(t *testing.T) {
	if got := (Request{ID: 253, Mode: decode.ModeSimple}).Key(); got != "253.simple" {
		t.Fatalf("期望 253.simple，实际 %q", got)
	}
	if got := (Request{ID: 253, Mode: decode.ModeDetailed}).Key(); got != "253.detailed" {
		t.Fatalf("期望 253.detailed，实际 %q", got)
	}
}

func TestFetchParse_FallbackOnFetchFail(t *testing.T) {
	api := &stubProvider{name: "api", fetchErr: errors.New("nope")}
	web := &stubProvider{name: "web", body: []byte("<html/>"), url: "https://bgm.test/subject/253", subject: domain.Subject{Name: "t"}}

	reg, err := NewRegistry(api, web)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	res, err := FetchParse(context.Background(), reg, "api", Request{ID: 253}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Provider != "web" {
		t.Fatalf("期望 used=web，实际=%q", res.Provider)
	}
	if res.PageURL != web.url || res.Subject.URL != web.url {
		t.Fatalf("期望 pageURL=%q，实际=%q/%q", web.url, res.PageURL, res.Subject.URL)
	}
	if res.Subject.ID != 253 || string(res.Body) != "<html/>" {
		t.Fatalf("结果不符：%+v", res)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("期望 2 条 attempts，实际 %d: %+v", len(res.Attempts), res.Attempts)
	}
	if a := res.Attempts[0]; a.Provider != "api" || a.Stage != StageFetch || a.Err == nil {
		t.Fatalf("attempt[0] 不符合预期：%+v", a)
	}
	if a := res.Attempts[1]; a.Provider != "web" || a.Stage != StageOK || a.Err != nil {
		t.Fatalf("attempt[1] 不符合预期：%+v", a)
	}
}

func TestFetchParse_FallbackOnParseFail(t *testing.T) {
	web := &stubProvider{name: "web", body: []byte("<bad/>"), parseErr: errors.New("parse fail")}
	api := &stubProvider{name: "api", body: []byte("{}"), subject: domain.Subject{Name: "ok"}}

	reg, err := NewRegistry(web, api)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	res, err := FetchParse(context.Background(), reg, "WEB", Request{ID: 1}, nil)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if res.Provider != "api" || res.Subject.Name != "ok" {
		t.Fatalf("期望 api 兜底成功，实际 %+v", res)
	}
	if web.parseCalls != 1 || api.fetchCalls != 1 {
		t.Fatalf("调用次数不符：web.parse=%d api.fetch=%d", web.parseCalls, api.fetchCalls)
	}
}

func TestFetchParse_AllFailReturnsLastStageError(t *testing.T) {
	api := &stubProvider{name: "api", fetchErr: errors.New("down")}
	web := &stubProvider{name: "web", body: []byte("x"), parseErr: errors.New("bad html")}
	reg, _ := NewRegistry(api, web)

	res, err := FetchParse(context.Background(), reg, "api", Request{ID: 1}, nil)
	var pe *Error
	if !errors.As(err, &pe) {
		t.Fatalf("期望 *provider.Error，实际 %T：%v", err, err)
	}
	if pe.Provider != "web" || pe.Stage != StageParse {
		t.Fatalf("最后错误不符：%+v", pe)
	}
	if len(res.Attempts) != 2 {
		t.Fatalf("失败时也应记录 attempts，实际 %+v", res.Attempts)
	}
}

func TestFetchParse_MissingFallbackIsRecorded(t *testing.T) {
	api := &stubProvider{name: "api", fetchErr: errors.New("down")}
	reg, _ := NewRegistry(api)

	res, err := FetchParse(context.Background(), reg, "api", Request{ID: 1}, nil)
	if err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if len(res.Attempts) != 2 || res.Attempts[1].Provider != "web" {
		t.Fatalf("attempts 不符：%+v", res.Attempts)
	}
}

func TestFetchParse_CanceledContext(t *testing.T) {
	api := &stubProvider{name: "api"}
	reg, _ := NewRegistry(api)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := FetchParse(ctx, reg, "api", Request{ID: 1}, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("期望 context.Canceled，实际 %v", err)
	}
	if api.fetchCalls != 0 {
		t.Fatalf("取消后不应发请求")
	}
}

func TestFetchParse_InvalidInput(t *testing.T) {
	reg, err := NewRegistry(&stubProvider{name: "api"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, err := FetchParse(context.Background(), reg, "nope", Request{ID: 1}, nil); err == nil {
		t.Fatalf("未知 provider 期望错误")
	}
	if _, err := FetchParse(context.Background(), reg, "api", Request{}, nil); err == nil {
		t.Fatalf("id=0 期望错误")
	}
}

func TestNewRegistry_Rejects(t *testing.T) {
	if _, err := NewRegistry(&stubProvider{name: "api"}, &stubProvider{name: "API"}); err == nil {
		t.Fatalf("重复 provider 期望错误")
	}
	if _, err := NewRegistry(&stubProvider{name: " "}); err == nil {
		t.Fatalf("空 name 期望错误")
	}
	reg, _ := NewRegistry(&stubProvider{name: "web"}, &stubProvider{name: "api"})
	if got := reg.Names(); len(got) != 2 || got[0] != "api" || got[1] != "web" {
		t.Fatalf("Names 不符：%v", got)
	}
}
