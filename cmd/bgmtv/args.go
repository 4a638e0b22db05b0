package main

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/John-Robertt/bgmtv/internal/config"
)

// cmdArgs 是一条命令解析后的参数：位置参数 + 可覆盖配置的 flag。
type cmdArgs struct {
	pos []string
	cfg config.CLIArgs
}

// parseArgs 手写解析 "--flag value" / "--flag=value"；allowed 之外的 flag 一律报错。
// --config 对所有命令可用。
func parseArgs(args []string, allowed ...string) (cmdArgs, error) {
	var out cmdArgs
	allowed = append(allowed, "config")

	for i := 0; i < len(args); i++ {
		a := args[i]
		if !strings.HasPrefix(a, "--") {
			if strings.HasPrefix(a, "-") && a != "-" {
				return cmdArgs{}, fmt.Errorf("未知参数 %q", a)
			}
			out.pos = append(out.pos, a)
			continue
		}

		name, val, hasVal := strings.Cut(strings.TrimPrefix(a, "--"), "=")
		if !slices.Contains(allowed, name) {
			return cmdArgs{}, fmt.Errorf("未知参数 %q", a)
		}

		// --save 是布尔开关：不带值等于 true，不吞下一个参数。
		if name == "save" {
			v := true
			if hasVal {
				switch val {
				case "true":
				case "false":
					v = false
				default:
					return cmdArgs{}, fmt.Errorf("--save 只能是 true 或 false，实际是 %q", val)
				}
			}
			out.cfg.Save, out.cfg.SaveSet = v, true
			continue
		}

		if !hasVal {
			if i+1 >= len(args) {
				return cmdArgs{}, fmt.Errorf("--%s 需要一个值", name)
			}
			i++
			val = args[i]
		}

		switch name {
		case "config":
			out.cfg.ConfigPath = val
		case "provider":
			switch val {
			case "api", "web":
			case "":
				return cmdArgs{}, fmt.Errorf("--provider 不能为空")
			default:
				return cmdArgs{}, fmt.Errorf("--provider 只能是 api 或 web，实际是 %q", val)
			}
			out.cfg.Provider, out.cfg.ProviderSet = val, true
		case "mode":
			out.cfg.Mode, out.cfg.ModeSet = val, true
		case "concurrency":
			n, err := strconv.Atoi(val)
			if err != nil || n < 1 {
				return cmdArgs{}, fmt.Errorf("--concurrency 必须是正整数，实际是 %q", val)
			}
			out.cfg.Concurrency, out.cfg.ConcurrencySet = n, true
		case "cache-dir":
			out.cfg.CacheDir, out.cfg.CacheDirSet = val, true
		case "proxy":
			out.cfg.ProxyURL, out.cfg.ProxyURLSet = val, true
		}
	}
	return out, nil
}

// parseID 解析正整数条目 ID。
func parseID(s string) (uint32, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("非法的条目 ID：%q", s)
	}
	return uint32(n), nil
}
