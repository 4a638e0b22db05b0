package provider

import (
	"context"
	"net/http"
	"strconv"

	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/domain"
)

// Request 描述一次条目抓取：条目 ID 与期望的详细程度。
type Request struct {
	ID   uint32
	Mode decode.Mode
}

// Key 是该请求在缓存中的键，例如 "253.simple"。
func (r Request) Key() string {
	return strconv.FormatUint(uint64(r.ID), 10) + "." + r.Mode.String()
}

// Provider 把“数据源差异”限制在 provider 包内部；核心流程只依赖统一接口与稳定的 domain.Subject。
//
// 约束：
// - Fetch 不做缓存、不做重试、不做限速（这些由 httpx/cache 层统一实现）
// - Parse 必须是纯函数：相同输入 => 相同输出
// - Ext 是原始响应在缓存中的扩展名（"json" / "html"）
// - PageURL 不发请求；缓存命中时用它代替 Fetch 返回的 pageURL
type Provider interface {
	Name() string
	Ext() string
	PageURL(req Request) string
	Fetch(ctx context.Context, req Request, c *http.Client) (body []byte, pageURL string, err error)
	Parse(req Request, body []byte, pageURL string) (domain.Subject, error)
}
