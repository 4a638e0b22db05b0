package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
)

// cli 持有一次命令执行的输入输出；测试可替换为内存 buffer。
type cli struct {
	stdout io.Writer
	stderr io.Writer
	cwd    string
	getenv func(string) string
}

type command struct {
	name    string
	summary string
	run     func(c *cli, ctx context.Context, args []string) int
}

// usages 单独存放，避免 commands 与各命令实现之间形成初始化环。
var usages = map[string]string{
	"subject":  "bgmtv subject <id> [--mode simple|detailed] [--config FILE]",
	"fetch":    "bgmtv fetch <id>... [--provider api|web] [--mode simple|detailed] [--concurrency N] [--save[=true|false]] [--cache-dir DIR] [--proxy URL] [--config FILE]",
	"user":     "bgmtv user <id|username> [--config FILE]",
	"login":    "bgmtv login <username> [--config FILE]（密码取自环境变量 BGMTV_PASSWORD）",
	"watching": "bgmtv watching [--config FILE]",
	"progress": "bgmtv progress <subject-id> [--config FILE]",
	"notify":   "bgmtv notify [--config FILE]",
}

var commands = []command{
	{"subject", "获取并打印一个条目", (*cli).subjectCmd},
	{"fetch", "批量抓取条目并输出报告", (*cli).fetchCmd},
	{"user", "获取用户信息", (*cli).userCmd},
	{"login", "登录并把 auth 写入配置文件", (*cli).loginCmd},
	{"watching", "列出“在看”的条目（需要 auth）", (*cli).watchingCmd},
	{"progress", "打印某条目的逐集观看状态（需要 auth）", (*cli).progressCmd},
	{"notify", "打印未读通知数（需要 auth）", (*cli).notifyCmd},
}

func main() {
	if lv := os.Getenv("BGMTV_LOG"); lv != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(lv)); err == nil {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "读取当前目录失败：%v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	c := &cli{stdout: os.Stdout, stderr: os.Stderr, cwd: cwd, getenv: os.Getenv}
	code := c.run(ctx, os.Args[1:])
	stop()
	if code != 0 {
		os.Exit(code)
	}
}

func (c *cli) run(ctx context.Context, args []string) int {
	if len(args) == 0 || isHelp(args[0]) {
		c.printUsage(c.stdout)
		return 0
	}
	for _, cmd := range commands {
		if cmd.name != args[0] {
			continue
		}
		for _, a := range args[1:] {
			if isHelp(a) {
				fmt.Fprintf(c.stdout, "用法：\n  %s\n", usages[cmd.name])
				return 0
			}
		}
		return cmd.run(c, ctx, args[1:])
	}
	fmt.Fprintf(c.stderr, "未知命令：%q\n\n", args[0])
	c.printUsage(c.stderr)
	return 2
}

func (c *cli) usageError(name string, err error) int {
	fmt.Fprintf(c.stderr, "参数错误：%v\n\n用法：\n  %s\n", err, usages[name])
	return 2
}

func isHelp(s string) bool {
	return s == "-h" || s == "--help" || s == "help"
}

func (c *cli) printUsage(w io.Writer) {
	var b strings.Builder
	b.WriteString("用法：\n  bgmtv <命令> [参数]\n\n命令：\n")
	for _, cmd := range commands {
		fmt.Fprintf(&b, "  %-9s %s\n", cmd.name, cmd.summary)
	}
	b.WriteString("\n全局参数：\n  --config FILE  配置文件（默认读取当前目录的 bgmtv.json，可选）\n")
	b.WriteString("\n使用 \"bgmtv <命令> --help\" 查看详细说明。\n")
	fmt.Fprint(w, b.String())
}

func isTTY(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
