package run

import (
	"time"

	"github.com/John-Robertt/bgmtv/internal/config"
	"github.com/John-Robertt/bgmtv/internal/domain"
)

// Observer 用于把“运行进度/条目结果”从核心执行流程中解耦出来。
//
// 约束：
// - run 包只负责发事件，不做任何输出（避免污染 stdout 的 JSON 契约）。
// - Observer 的实现必须并发安全：事件可能来自多个 goroutine。
type Observer interface {
	// OnStart 在开始抓取之前调用一次；total 是去重后的条目数。
	OnStart(eff config.EffectiveConfig, total int)
	// OnItemDone 在某个条目处理完成时调用；idx 从 1 开始且严格递增。
	OnItemDone(idx, total int, res domain.ItemResult, dur time.Duration)
}
