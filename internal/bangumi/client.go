package bangumi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/infra/httpx"
)

const (
	DefaultBaseURL = "https://api.bgm.tv"
	DefaultAppName = "bgmtv"
)

// ErrNotAuthenticated 表示调用需要已认证的用户（User.Auth 为空）。
var ErrNotAuthenticated = errors.New("需要已认证的用户（先执行 login）")

// APIError 是 API 以 2xx 状态返回的错误信封。
type APIError = decode.APIError

// Client 是 bangumi.tv 旧版 API 的薄封装：拼 URL、发请求、把响应交给 decode。
//
// 约束：
// - 网络策略（UA/代理/限速/重试）全部由 HTTP（通常来自 httpx.NewClient）决定
// - 相同 URL 的并发 GET 合并为一次请求
// - 零值可用；首次使用后不可复制
type Client struct {
	BaseURL string
	// AppName 作为 source 参数，同时作为请求的 User-Agent。
	AppName string
	HTTP    *http.Client
	Logger  *slog.Logger

	group singleflight.Group
}

func (c *Client) baseURL() string {
	u := strings.TrimSpace(c.BaseURL)
	if u == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (c *Client) appName() string {
	if n := strings.TrimSpace(c.AppName); n != "" {
		return n
	}
	return DefaultAppName
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL() + "/" + strings.TrimLeft(path, "/")
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// SubjectURL 返回条目接口的完整 URL。
func (c *Client) SubjectURL(id uint32, mode decode.Mode) string {
	return c.endpoint("subject/"+strconv.FormatUint(uint64(id), 10), url.Values{"responseGroup": {mode.ResponseGroup()}})
}

// Subject 获取并解码一个条目。mode 同时决定请求的 responseGroup 与 "eps" 的解码方式。
func (c *Client) Subject(ctx context.Context, id uint32, mode decode.Mode) (domain.Subject, error) {
	body, _, err := c.SubjectRaw(ctx, id, mode)
	if err != nil {
		return domain.Subject{}, err
	}
	return decode.DecodeSubject(body, mode)
}

// SubjectRaw 只负责取回响应体（供 provider/cache 使用），不解码。
func (c *Client) SubjectRaw(ctx context.Context, id uint32, mode decode.Mode) ([]byte, string, error) {
	if id == 0 {
		return nil, "", errors.New("subject id 不能为 0")
	}
	u := c.SubjectURL(id, mode)
	body, err := c.get(ctx, u)
	return body, u, err
}

// Authenticate 用用户名与密码换取带 auth 的用户对象。
func (c *Client) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return domain.User{}, errors.New("用户名与密码不能为空")
	}
	form := url.Values{"username": {username}, "password": {password}}
	u := c.endpoint("auth", url.Values{"source": {c.appName()}})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.User{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	body, err := c.do(req)
	if err != nil {
		return domain.User{}, err
	}
	user, err := decode.DecodeUser(body)
	if err != nil {
		return domain.User{}, err
	}
	c.logger().Info("login ok", "user", user.UserName, "id", user.ID)
	return user, nil
}

// User 按 ID 或用户名获取用户。
func (c *Client) User(ctx context.Context, idOrName string) (domain.User, error) {
	idOrName = strings.TrimSpace(idOrName)
	if idOrName == "" {
		return domain.User{}, errors.New("用户 ID 或用户名不能为空")
	}
	body, err := c.get(ctx, c.endpoint("user/"+url.PathEscape(idOrName), nil))
	if err != nil {
		return domain.User{}, err
	}
	return decode.DecodeUser(body)
}

// WatchingCollections 获取用户“在看”的收藏；内嵌条目按 simple 形态解码。
func (c *Client) WatchingCollections(ctx context.Context, u domain.User) ([]domain.Collection, error) {
	q, err := c.authQuery(u)
	if err != nil {
		return nil, err
	}
	q.Set("cat", "watching")
	body, err := c.get(ctx, c.endpoint(userPath(u, "collection"), q))
	if err != nil {
		return nil, err
	}
	return decode.DecodeCollections(body)
}

// NotificationCount 获取未读通知数量。
func (c *Client) NotificationCount(ctx context.Context, u domain.User) (int, error) {
	q, err := c.authQuery(u)
	if err != nil {
		return 0, err
	}
	body, err := c.get(ctx, c.endpoint("notify/count", q))
	if err != nil {
		return 0, err
	}
	return decode.DecodeNotifyCount(body)
}

// SubjectProgress 获取用户在某条目上的逐集观看状态；从未标记过时返回空进度。
func (c *Client) SubjectProgress(ctx context.Context, u domain.User, subjectID uint32) (domain.Progress, error) {
	if subjectID == 0 {
		return domain.Progress{}, errors.New("subject id 不能为 0")
	}
	q, err := c.authQuery(u)
	if err != nil {
		return domain.Progress{}, err
	}
	q.Set("subject_id", strconv.FormatUint(uint64(subjectID), 10))
	body, err := c.get(ctx, c.endpoint(userPath(u, "progress"), q))
	if err != nil {
		return domain.Progress{}, err
	}
	p, err := decode.DecodeProgress(body)
	if err != nil {
		return domain.Progress{}, err
	}
	if p.SubjectID == 0 {
		p.SubjectID = subjectID
	}
	return p, nil
}

func userPath(u domain.User, tail string) string {
	return "user/" + strconv.FormatUint(uint64(u.ID), 10) + "/" + tail
}

// authQuery 生成 source/auth 参数。auth 优先取 Auth；只有编码形态时先解码，避免二次编码。
func (c *Client) authQuery(u domain.User) (url.Values, error) {
	auth := strings.TrimSpace(u.Auth)
	if auth == "" && u.AuthEncoded != "" {
		dec, err := url.QueryUnescape(u.AuthEncoded)
		if err != nil {
			return nil, fmt.Errorf("auth_encode 非法：%w", err)
		}
		auth = dec
	}
	if u.ID == 0 || auth == "" {
		return nil, ErrNotAuthenticated
	}
	return url.Values{"source": {c.appName()}, "auth": {auth}}, nil
}

// get 发送 GET；相同 URL 的并发调用共享一次请求与同一份响应体（只读）。
// 共享请求不跟随任何一个调用方的取消（由 HTTP.Timeout 兜底），每个调用方只等自己的 ctx。
func (c *Client) get(ctx context.Context, u string) ([]byte, error) {
	shared := context.WithoutCancel(ctx)
	ch := c.group.DoChan(u, func() (any, error) {
		req, err := http.NewRequestWithContext(shared, http.MethodGet, u, nil)
		if err != nil {
			return nil, err
		}
		return c.do(req)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			c.logger().Debug("bangumi request shared", "url", u)
		}
		return res.Val.([]byte), nil
	}
}

// do 设置 UA、发送请求、读取响应，并把 2xx 错误信封转为 *APIError。
func (c *Client) do(req *http.Request) ([]byte, error) {
	req.Header.Set("User-Agent", c.appName())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	body, err := httpx.Do(c.httpClient(), req)
	log := c.logger().With("method", req.Method, "url", redact(req.URL), "elapsed", time.Since(start))
	if err != nil {
		log.Warn("bangumi request failed", "err", err)
		return nil, err
	}
	if apiErr, ok := decode.DecodeAPIError(body); ok {
		log.Warn("bangumi api error", "code", apiErr.Code, "err", apiErr.Message)
		return nil, apiErr
	}
	log.Debug("bangumi request ok", "bytes", len(body))
	return body, nil
}

// redact 隐去日志中的 auth 参数。
func redact(u *url.URL) string {
	q := u.Query()
	if q.Get("auth") == "" {
		return u.String()
	}
	q.Set("auth", "***")
	cp := *u
	cp.RawQuery = q.Encode()
	return cp.String()
}
