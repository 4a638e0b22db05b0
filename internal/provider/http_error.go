package provider

import "strings"

// BlockedError 表示请求被站点引导到了登录/验证页面（例如需要登录才能查看的条目）。
// 不尝试绕过，直接视为 fetch 失败，让上层走 provider 降级。
type BlockedError struct {
	URL    string
	Reason string // 例如 "login-required"
}

func (e *BlockedError) Error() string {
	if e == nil || strings.TrimSpace(e.Reason) == "" {
		return "blocked"
	}
	return "blocked: " + strings.TrimSpace(e.Reason)
}
