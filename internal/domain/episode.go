package domain

import (
	"fmt"
	"time"
)

// EpisodeKind 是章节类型。
type EpisodeKind int

const (
	EpisodeMain    EpisodeKind = 0 // 本篇
	EpisodeSpecial EpisodeKind = 1 // SP
	EpisodeOpening EpisodeKind = 2
	EpisodeEnding  EpisodeKind = 3
)

func (k EpisodeKind) String() string {
	switch k {
	case EpisodeMain:
		return "main"
	case EpisodeSpecial:
		return "special"
	case EpisodeOpening:
		return "op"
	case EpisodeEnding:
		return "ed"
	default:
		return fmt.Sprintf("EpisodeKind(%d)", int(k))
	}
}

// EpisodeStatus 是章节放送状态。
type EpisodeStatus int

const (
	EpisodeNA    EpisodeStatus = iota // 未放送/未知
	EpisodeAir                        // 已放送
	EpisodeToday                      // 今日放送
)

func (s EpisodeStatus) String() string {
	switch s {
	case EpisodeNA:
		return "NA"
	case EpisodeAir:
		return "Air"
	case EpisodeToday:
		return "Today"
	default:
		return fmt.Sprintf("EpisodeStatus(%d)", int(s))
	}
}

// Episode 是条目下的一集（或一章）。
type Episode struct {
	ID           uint32
	URL          string
	Kind         EpisodeKind
	Sort         float64
	Name         string
	ChineseName  string
	Duration     time.Duration
	AirDate      time.Time
	CommentCount int
	Description  string
	Status       EpisodeStatus
}

// WatchStatus 是用户对单集的观看状态。
type WatchStatus int

const (
	WatchQueue   WatchStatus = 1 // 想看
	WatchWatched WatchStatus = 2 // 看过
	WatchDropped WatchStatus = 3 // 抛弃
)

func (s WatchStatus) String() string {
	switch s {
	case WatchQueue:
		return "queue"
	case WatchWatched:
		return "watched"
	case WatchDropped:
		return "dropped"
	default:
		return fmt.Sprintf("WatchStatus(%d)", int(s))
	}
}

// Progress 是用户在某个条目上的观看进度（键为章节 ID）。
type Progress struct {
	SubjectID uint32
	Episodes  map[uint32]WatchStatus
}
