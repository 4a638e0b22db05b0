package main

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/bgmtv/internal/app/run"
	"github.com/John-Robertt/bgmtv/internal/bangumi"
	"github.com/John-Robertt/bgmtv/internal/bangumi/decode"
	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/provider"
	"github.com/John-Robertt/bgmtv/internal/provider/api"
	"github.com/John-Robertt/bgmtv/internal/provider/web"
)

// env 是一次命令执行所需的全部依赖，由生效配置构造。
type env struct {
	eff    config.EffectiveConfig
	http   *http.Client
	client *bangumi.Client
	reg    provider.Registry
}

func (c *cli) loadEnv(args config.CLIArgs) (*env, error) {
	eff, err := config.LoadEffective(c.cwd, args)
	if err != nil {
		return nil, err
	}
	hc, err := run.NewHTTPClient(eff)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}
	}
	bc := &bangumi.Client{BaseURL: eff.BaseURL, AppName: eff.AppName, HTTP: hc}
	reg, err := provider.NewRegistry(
		api.Provider{Client: bc},
		web.Provider{BaseURL: eff.WebBaseURL},
	)
	if err != nil {
		return nil, err
	}
	return &env{eff: eff, http: hc, client: bc, reg: reg}, nil
}

// fail 输出错误并返回退出码 1。
func (c *cli) fail(format string, a ...any) int {
	fmt.Fprintf(c.stderr, format+"\n", a...)
	return 1
}

func (c *cli) subjectCmd(ctx context.Context, args []string) int {
	ca, err := parseArgs(args, "mode")
	if err != nil {
		return c.usageError("subject", err)
	}
	if len(ca.pos) != 1 {
		return c.usageError("subject", errors.New("需要且只需要一个条目 ID"))
	}
	id, err := parseID(ca.pos[0])
	if err != nil {
		return c.usageError("subject", err)
	}

	e, err := c.loadEnv(ca.cfg)
	if err != nil {
		return c.fail("加载配置失败：%v", err)
	}
	s, err := e.client.Subject(ctx, id, e.eff.Mode)
	if err != nil {
		return c.fail("获取条目 %d 失败：%v", id, err)
	}
	printSubject(c.stdout, s)
	return 0
}

func (c *cli) fetchCmd(ctx context.Context, args []string) int {
	ca, err := parseArgs(args, "provider", "mode", "concurrency", "save", "cache-dir", "proxy")
	if err != nil {
		return c.usageError("fetch", err)
	}
	if len(ca.pos) == 0 {
		return c.usageError("fetch", errors.New("至少需要一个条目 ID"))
	}
	// 0 不在这里拦截：交给 run 层输出 invalid_id 条目。
	ids := make([]uint32, 0, len(ca.pos))
	for _, s := range ca.pos {
		n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
		if err != nil {
			return c.usageError("fetch", fmt.Errorf("非法的条目 ID：%q", s))
		}
		ids = append(ids, uint32(n))
	}

	e, err := c.loadEnv(ca.cfg)
	if err != nil {
		rr := reportForConfigError(ca.cfg, err)
		c.emitReport(rr)
		return 1
	}

	var obs run.Observer
	if w, ok := c.pickProgressWriter(); ok {
		obs = newProgressUI(w)
	}
	rr := run.ExecuteWithObserver(ctx, e.eff, e.reg, ids, obs)
	c.emitReport(rr)
	if rr.HasFailures() {
		return 1
	}
	return 0
}

func (c *cli) userCmd(ctx context.Context, args []string) int {
	ca, err := parseArgs(args)
	if err != nil {
		return c.usageError("user", err)
	}
	if len(ca.pos) != 1 {
		return c.usageError("user", errors.New("需要且只需要一个用户 ID 或用户名"))
	}
	e, err := c.loadEnv(ca.cfg)
	if err != nil {
		return c.fail("加载配置失败：%v", err)
	}
	u, err := e.client.User(ctx, ca.pos[0])
	if err != nil {
		return c.fail("获取用户 %q 失败：%v", ca.pos[0], err)
	}
	printUser(c.stdout, u)
	return 0
}

func (c *cli) loginCmd(ctx context.Context, args []string) int {
	ca, err := parseArgs(args)
	if err != nil {
		return c.usageError("login", err)
	}
	if len(ca.pos) != 1 {
		return c.usageError("login", errors.New("需要且只需要一个用户名"))
	}
	password := c.getenv("BGMTV_PASSWORD")
	if password == "" {
		return c.usageError("login", errors.New("未设置环境变量 BGMTV_PASSWORD"))
	}

	e, err := c.loadEnv(ca.cfg)
	if err != nil {
		return c.fail("加载配置失败：%v", err)
	}
	u, err := e.client.Authenticate(ctx, ca.pos[0], password)
	if err != nil {
		return c.fail("登录失败：%v", err)
	}
	if err := config.SaveAuth(e.eff.ConfigPath, u); err != nil {
		return c.fail("写入配置失败：%v", err)
	}
	fmt.Fprintf(c.stdout, "已登录：%s (id=%d)\nauth 已写入 %s\n", displayName(u), u.ID, e.eff.ConfigPath)
	return 0
}

// authedEnv 加载配置并确认其中带有 login 写入的认证信息。
func (c *cli) authedEnv(name string, args []string) (*env, cmdArgs, int) {
	ca, err := parseArgs(args)
	if err != nil {
		return nil, ca, c.usageError(name, err)
	}
	e, err := c.loadEnv(ca.cfg)
	if err != nil {
		return nil, ca, c.fail("加载配置失败：%v", err)
	}
	if !e.eff.User.Authenticated() {
		return nil, ca, c.fail("%v（配置文件：%s）", bangumi.ErrNotAuthenticated, e.eff.ConfigPath)
	}
	return e, ca, 0
}

func (c *cli) watchingCmd(ctx context.Context, args []string) int {
	e, ca, code := c.authedEnv("watching", args)
	if e == nil {
		return code
	}
	if len(ca.pos) != 0 {
		return c.usageError("watching", fmt.Errorf("多余的参数：%q", ca.pos))
	}
	cs, err := e.client.WatchingCollections(ctx, e.eff.User)
	if err != nil {
		return c.fail("获取在看列表失败：%v", err)
	}
	printCollections(c.stdout, cs)
	return 0
}

func (c *cli) progressCmd(ctx context.Context, args []string) int {
	e, ca, code := c.authedEnv("progress", args)
	if e == nil {
		return code
	}
	if len(ca.pos) != 1 {
		return c.usageError("progress", errors.New("需要且只需要一个条目 ID"))
	}
	id, err := parseID(ca.pos[0])
	if err != nil {
		return c.usageError("progress", err)
	}

	// 进度只给章节 ID；并发取 detailed 条目用来给章节配上集数和标题。
	var (
		prog    domain.Progress
		subject domain.Subject
		g       errgroup.Group
	)
	g.Go(func() error {
		var err error
		prog, err = e.client.SubjectProgress(ctx, e.eff.User, id)
		return err
	})
	g.Go(func() error {
		s, err := e.client.Subject(ctx, id, decode.ModeDetailed)
		if err != nil {
			fmt.Fprintf(c.stderr, "获取条目章节失败，只输出章节 ID：%v\n", err)
			return nil
		}
		subject = s
		return nil
	})
	if err := g.Wait(); err != nil {
		return c.fail("获取观看进度失败：%v", err)
	}
	printProgress(c.stdout, prog, subject.Episodes)
	return 0
}

func (c *cli) notifyCmd(ctx context.Context, args []string) int {
	e, ca, code := c.authedEnv("notify", args)
	if e == nil {
		return code
	}
	if len(ca.pos) != 0 {
		return c.usageError("notify", fmt.Errorf("多余的参数：%q", ca.pos))
	}
	n, err := e.client.NotificationCount(ctx, e.eff.User)
	if err != nil {
		return c.fail("获取通知失败：%v", err)
	}
	fmt.Fprintf(c.stdout, "未读通知：%d\n", n)
	return 0
}

// emitReport 输出抓取报告。
//
// stdout 是终端：摘要写 stdout，失败明细写 stderr。
// stdout 不是终端：stdout 只输出一个 FetchReport JSON，摘要写 stderr。
func (c *cli) emitReport(rr domain.FetchReport) {
	summary := fmt.Sprintf("完成：ok=%d cached=%d failed=%d\n", rr.Summary.OK, rr.Summary.Cached, rr.Summary.Failed)
	if isTTY(c.stdout) {
		io.WriteString(c.stdout, summary)
		for _, it := range rr.Items {
			if it.Status != domain.StatusFailed {
				continue
			}
			key := "<config>"
			if it.ID != 0 || it.ErrorCode == domain.ErrCodeInvalidID {
				key = strconv.FormatUint(uint64(it.ID), 10)
			}
			fmt.Fprintf(c.stderr, "%s %s: %s\n", key, it.ErrorCode, it.ErrorMsg)
		}
		return
	}

	enc := json.NewEncoder(c.stdout)
	_ = enc.Encode(rr)
	io.WriteString(c.stderr, summary)
}

func reportForConfigError(args config.CLIArgs, err error) domain.FetchReport {
	code := config.Code(err)
	if code == "" {
		code = config.ErrCodeInvalid
	}
	now := time.Now()
	rr := domain.FetchReport{
		Provider:   cmp.Or(strings.ToLower(args.Provider), config.DefaultProvider),
		Mode:       cmp.Or(args.Mode, decode.ModeSimple.String()),
		StartedAt:  now,
		FinishedAt: now,
	}
	rr.Items = []domain.ItemResult{{
		Status:    domain.StatusFailed,
		ErrorCode: code,
		ErrorMsg:  err.Error(),
	}}
	rr.Finalize()
	return rr
}

// pickProgressWriter 只在交互终端启用进度；优先 stderr，避免污染 stdout。
func (c *cli) pickProgressWriter() (io.Writer, bool) {
	if isTTY(c.stderr) {
		return c.stderr, true
	}
	if isTTY(c.stdout) {
		return c.stdout, true
	}
	return nil, false
}
