package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/John-Robertt/bgmtv/internal/bangumi"
	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/domain"
	providerx "github.com/John-Robertt/bgmtv/internal/provider"
)

// Provider 通过 api.bgm.tv 获取条目 JSON。
//
// 约束：
// - Fetch 只取回原始响应（带 responseGroup），解码留给 Parse
// - Parse 是纯函数：同一 body + mode 得到同一 Subject
type Provider struct {
	Client *bangumi.Client
}

func (Provider) Name() string { return "api" }

func (Provider) Ext() string { return "json" }

func (p Provider) client(c *http.Client) *bangumi.Client {
	if p.Client != nil {
		return p.Client
	}
	return &bangumi.Client{HTTP: c}
}

func (p Provider) PageURL(req providerx.Request) string {
	return p.client(nil).SubjectURL(req.ID, req.Mode)
}

// Fetch 优先使用 p.Client；未配置时用 c 构造一个默认 client。
func (p Provider) Fetch(ctx context.Context, req providerx.Request, c *http.Client) ([]byte, string, error) {
	if req.ID == 0 {
		return nil, "", errors.New("subject id 不能为 0")
	}
	return p.client(c).SubjectRaw(ctx, req.ID, req.Mode)
}

func (Provider) Parse(req providerx.Request, body []byte, pageURL string) (domain.Subject, error) {
	if len(body) == 0 {
		return domain.Subject{}, errors.New("响应为空")
	}
	if apiErr, ok := decode.DecodeAPIError(body); ok {
		return domain.Subject{}, apiErr
	}
	s, err := decode.DecodeSubject(body, req.Mode)
	if err != nil {
		return domain.Subject{}, err
	}
	if req.ID != 0 && s.ID != req.ID {
		return domain.Subject{}, errors.New("条目 ID 不匹配（疑似返回了其它条目）")
	}
	return s, nil
}
