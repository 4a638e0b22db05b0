package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

const (
	StageFetch = "fetch"
	StageParse = "parse"
	StageOK    = "ok"
)

// Attempt 记录一次 provider 尝试（用于解释 fallback/降级原因）。
type Attempt struct {
	Provider string // provider name（小写）
	Stage    string // StageFetch / StageParse / StageOK
	Err      error  // nil when Stage==StageOK
}

// Result 是一次成功的 fetch+parse。
type Result struct {
	Subject  domain.Subject
	Provider string // 最终成功的 provider
	PageURL  string
	Body     []byte // 原始响应（用于 cache）
	Attempts []Attempt
}

// FetchParse 按“requested -> fallback”顺序抓取并解析条目。
// 失败时 Result.Attempts 仍然记录了完整的尝试链路。
func FetchParse(ctx context.Context, reg Registry, requested string, req Request, c *http.Client) (Result, error) {
	requested = strings.ToLower(strings.TrimSpace(requested))
	if requested == "" {
		return Result{}, errors.New("provider_requested 不能为空")
	}
	if req.ID == 0 {
		return Result{}, errors.New("subject id 不能为 0")
	}

	order, err := FallbackOrder(requested)
	if err != nil {
		return Result{}, err
	}

	var (
		attempts []Attempt
		lastErr  error
	)
	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return Result{Attempts: attempts}, err
		}
		p, ok := reg.Get(name)
		if !ok {
			lastErr = fmt.Errorf("provider 未注册：%q", name)
			attempts = append(attempts, Attempt{Provider: name, Stage: StageFetch, Err: lastErr})
			continue
		}

		body, pageURL, ferr := p.Fetch(ctx, req, c)
		if ferr != nil {
			lastErr = &Error{Provider: name, Stage: StageFetch, Err: ferr}
			attempts = append(attempts, Attempt{Provider: name, Stage: StageFetch, Err: ferr})
			continue
		}

		s, perr := p.Parse(req, body, pageURL)
		if perr != nil {
			lastErr = &Error{Provider: name, Stage: StageParse, Err: perr}
			attempts = append(attempts, Attempt{Provider: name, Stage: StageParse, Err: perr})
			continue
		}

		attempts = append(attempts, Attempt{Provider: name, Stage: StageOK})
		return Result{Subject: s, Provider: name, PageURL: pageURL, Body: body, Attempts: attempts}, nil
	}
	if lastErr == nil {
		lastErr = errors.New("无可用 provider")
	}
	return Result{Attempts: attempts}, lastErr
}

// Error 是 provider 阶段的可追溯错误。
// 上层据此把失败归类为 fetch_failed / parse_failed。
type Error struct {
	Provider string
	Stage    string
	Err      error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider=%s stage=%s: %v", e.Provider, e.Stage, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// FallbackOrder 返回 requested 的尝试顺序：先自己，再另一个数据源。
func FallbackOrder(requested string) ([]string, error) {
	switch requested {
	case "api":
		return []string{"api", "web"}, nil
	case "web":
		return []string{"web", "api"}, nil
	default:
		return nil, fmt.Errorf("未知 provider：%q", requested)
	}
}
