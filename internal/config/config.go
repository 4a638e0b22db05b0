package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/infra/fsx"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = "config_not_found"
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = "config_invalid"
)

// FileName 是工作目录下默认读取的配置文件名（可选）。
const FileName = "bgmtv.json"

const (
	DefaultProvider    = "api"
	DefaultConcurrency = 4
	DefaultRatePerSec  = 2.0
	DefaultAppName     = "bgmtv"
)

// CLIArgs 是 CLI 暴露的覆盖项，并保留“是否显式指定”的信息。
// 这能保证 --save=false 可以覆盖 config.save=true。
type CLIArgs struct {
	ConfigPath string

	Provider    string
	ProviderSet bool

	Mode    string
	ModeSet bool

	Concurrency    int
	ConcurrencySet bool

	Save    bool
	SaveSet bool

	ProxyURL    string
	ProxyURLSet bool

	CacheDir    string
	CacheDirSet bool
}

// FileConfig 对应 bgmtv.json 的解析结构。
type FileConfig struct {
	Provider    string       `json:"provider"`
	Mode        string       `json:"mode"`
	Concurrency int          `json:"concurrency"`
	Proxy       *ProxyConfig `json:"proxy"`
	RatePerSec  *float64     `json:"rate_per_sec"`
	RetryMax    *int         `json:"retry_max"`
	Timeout     string       `json:"timeout"`
	CacheDir    string       `json:"cache_dir"`
	CacheTTL    string       `json:"cache_ttl"`
	Save        *bool        `json:"save"`
	AppName     string       `json:"app_name"`
	BaseURL     string       `json:"base_url"`
	WebBaseURL  string       `json:"web_base_url"`
	Auth        *AuthConfig  `json:"auth"`
}

type ProxyConfig struct {
	URL string `json:"url"`
}

// AuthConfig 是 login 之后保存下来的凭据。
type AuthConfig struct {
	UserID     uint32 `json:"user_id"`
	Username   string `json:"username"`
	Auth       string `json:"auth"`
	AuthEncode string `json:"auth_encode"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	// ConfigPath 是实际读取（或 login 将写入）的配置文件路径。
	ConfigPath string

	Provider    string
	Mode        decode.Mode
	Concurrency int

	ProxyURL   string
	RatePerSec float64
	// RetryMax < 0 表示使用 httpx 的默认值。
	RetryMax int
	Timeout  time.Duration

	// CacheDir 为空表示不使用缓存。
	CacheDir string
	CacheTTL time.Duration
	Save     bool

	AppName    string
	BaseURL    string
	WebBaseURL string

	// User 只有在配置了 auth 时才非零。
	User domain.User
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：该文件必须存在
// 2) 否则读取 <cwd>/bgmtv.json（可选，不存在时全部取默认值）
//
// 覆盖优先级：CLI > config > 默认；CLI 未暴露的字段只由 config 控制。
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	cfgPath := filepath.Join(cwdAbs, FileName)
	required := false
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
		required = true
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if required && !exists {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	eff, err := merge(cwdAbs, cli, fc)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	eff.ConfigPath = cfgPath
	return eff, nil
}

func merge(cwd string, cli CLIArgs, fc FileConfig) (EffectiveConfig, error) {
	eff := EffectiveConfig{
		Provider:    DefaultProvider,
		Concurrency: DefaultConcurrency,
		RatePerSec:  DefaultRatePerSec,
		RetryMax:    -1,
		AppName:     DefaultAppName,
	}

	// provider：CLI > config > 默认
	if cli.ProviderSet {
		eff.Provider = cli.Provider
	} else if strings.TrimSpace(fc.Provider) != "" {
		eff.Provider = fc.Provider
	}
	eff.Provider = strings.ToLower(strings.TrimSpace(eff.Provider))
	if err := validateProvider(eff.Provider); err != nil {
		return EffectiveConfig{}, err
	}

	mode := fc.Mode
	if cli.ModeSet {
		mode = cli.Mode
	}
	if strings.TrimSpace(mode) != "" {
		m, err := decode.ParseMode(mode)
		if err != nil {
			return EffectiveConfig{}, err
		}
		eff.Mode = m
	}

	if cli.ConcurrencySet {
		eff.Concurrency = cli.Concurrency
	} else if fc.Concurrency != 0 {
		eff.Concurrency = fc.Concurrency
	}
	// 范围 [1, 32]；超出截断。
	eff.Concurrency = min(max(eff.Concurrency, 1), 32)

	if fc.Proxy != nil {
		eff.ProxyURL = strings.TrimSpace(fc.Proxy.URL)
	}
	if cli.ProxyURLSet {
		eff.ProxyURL = strings.TrimSpace(cli.ProxyURL)
	}
	if eff.ProxyURL != "" {
		if err := validateURL("proxy.url", eff.ProxyURL, false); err != nil {
			return EffectiveConfig{}, err
		}
	}

	if fc.RatePerSec != nil {
		if *fc.RatePerSec < 0 {
			return EffectiveConfig{}, fmt.Errorf("rate_per_sec 不能为负：%v", *fc.RatePerSec)
		}
		eff.RatePerSec = *fc.RatePerSec
	}
	if fc.RetryMax != nil {
		eff.RetryMax = *fc.RetryMax
	}

	var err error
	if eff.Timeout, err = parseDuration("timeout", fc.Timeout); err != nil {
		return EffectiveConfig{}, err
	}
	if eff.CacheTTL, err = parseDuration("cache_ttl", fc.CacheTTL); err != nil {
		return EffectiveConfig{}, err
	}

	cacheDir := fc.CacheDir
	if cli.CacheDirSet {
		cacheDir = cli.CacheDir
	}
	if strings.TrimSpace(cacheDir) != "" {
		eff.CacheDir = absCleanFrom(cwd, cacheDir)
	}

	// save：CLI > config > 默认 false
	if cli.SaveSet {
		eff.Save = cli.Save
	} else if fc.Save != nil {
		eff.Save = *fc.Save
	}
	if eff.Save && eff.CacheDir == "" {
		return EffectiveConfig{}, errors.New("save=true 但 cache_dir 为空")
	}

	if n := strings.TrimSpace(fc.AppName); n != "" {
		eff.AppName = n
	}
	for _, u := range []struct {
		field string
		src   string
		dst   *string
	}{
		{"base_url", fc.BaseURL, &eff.BaseURL},
		{"web_base_url", fc.WebBaseURL, &eff.WebBaseURL},
	} {
		v := strings.TrimSpace(u.src)
		if v == "" {
			continue
		}
		if err := validateURL(u.field, v, true); err != nil {
			return EffectiveConfig{}, err
		}
		*u.dst = v
	}

	if a := fc.Auth; a != nil {
		eff.User = domain.User{ID: a.UserID, UserName: a.Username, Auth: a.Auth, AuthEncoded: a.AuthEncode}
	}
	return eff, nil
}

func validateProvider(p string) error {
	switch p {
	case "api", "web":
		return nil
	case "":
		return fmt.Errorf("provider 不能为空")
	default:
		return fmt.Errorf("provider 只能是 api 或 web，实际是 %q", p)
	}
}

func validateURL(field, v string, httpOnly bool) error {
	u, err := url.Parse(v)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s 无效：%q", field, v)
	}
	if httpOnly && u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s 必须是 http/https：%q", field, v)
	}
	return nil
}

func parseDuration(field, v string) (time.Duration, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%s 无效：%q", field, v)
	}
	return d, nil
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = filepath.Clean(strings.TrimSpace(p))
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 JSON 配置文件。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	if err := json.Unmarshal(b, &fc); err != nil {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}

// SaveAuth 把已认证用户写回配置文件的 "auth" 字段，其余字段原样保留。
// 文件不存在时新建。
func SaveAuth(path string, u domain.User) error {
	if !u.Authenticated() {
		return errors.New("用户未认证，无可保存的 auth")
	}
	doc := map[string]json.RawMessage{}
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(b, &doc); err != nil {
			return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
		}
	case !os.IsNotExist(err):
		return &Error{Code: ErrCodeInvalid, Path: path, Err: err}
	}

	auth, err := json.Marshal(AuthConfig{UserID: u.ID, Username: u.UserName, Auth: u.Auth, AuthEncode: u.AuthEncoded})
	if err != nil {
		return err
	}
	doc["auth"] = auth

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	out = append(out, '\n')
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), out)
}
