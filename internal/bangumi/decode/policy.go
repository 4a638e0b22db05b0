package decode

import (
	"fmt"
	"strings"
)

// Mode 是请求的详细程度。API 在两种模式下用同一个键 "eps" 表达不同的东西：
// simple 下是章节数量，detailed（responseGroup=large）下是完整章节列表。
type Mode int

const (
	ModeSimple Mode = iota
	ModeDetailed
)

const modeCount = 2

func (m Mode) String() string {
	switch m {
	case ModeSimple:
		return "simple"
	case ModeDetailed:
		return "detailed"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ResponseGroup 返回 API 的 responseGroup 参数值。
func (m Mode) ResponseGroup() string {
	if m == ModeDetailed {
		return "large"
	}
	return "simple"
}

// ParseMode 解析 "simple" / "detailed"（"large" 作为 API 原名也接受）。
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "simple":
		return ModeSimple, nil
	case "detailed", "large":
		return ModeDetailed, nil
	default:
		return 0, fmt.Errorf("mode 只能是 simple 或 detailed，实际是 %q", s)
	}
}

type fieldRef struct {
	typ   string
	field string
}

// Policy 决定某个逻辑字段从哪个外部键读取。
//
// 约束：
// - 实例不可变，可被任意多个并发解码共享
// - 绑定只由 Mode 决定，从不根据 JSON 内容推断
type Policy struct {
	mode  Mode
	binds map[fieldRef]string
}

var (
	// SimplePolicy: Subject.EpisodeCount <- "eps"，Subject.Episodes 不绑定。
	SimplePolicy = &Policy{
		mode: ModeSimple,
		binds: map[fieldRef]string{
			{typ: "Subject", field: "EpisodeCount"}: "eps",
		},
	}
	// DetailedPolicy: Subject.Episodes <- "eps"，Subject.EpisodeCount 不绑定。
	DetailedPolicy = &Policy{
		mode: ModeDetailed,
		binds: map[fieldRef]string{
			{typ: "Subject", field: "Episodes"}: "eps",
		},
	}
)

// PolicyFor 返回 mode 对应的共享 Policy。未知 mode 按 simple 处理。
func PolicyFor(m Mode) *Policy {
	if m == ModeDetailed {
		return DetailedPolicy
	}
	return SimplePolicy
}

// Mode 返回该策略对应的模式。
func (p *Policy) Mode() Mode { return p.mode }

// Key 返回字段在当前模式下读取的外部键；declared 为字段声明的默认键。
// 返回空串表示该字段在此模式下不绑定任何键。
func (p *Policy) Key(typ, field, declared string) string {
	if k, ok := p.binds[fieldRef{typ: typ, field: field}]; ok {
		return k
	}
	return declared
}
