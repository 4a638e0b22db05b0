package domain

import (
	"fmt"
	"time"
)

// SubjectType 是 bangumi 条目类型（取值与 API 保持一致，5 空缺）。
type SubjectType int

const (
	SubjectBooks     SubjectType = 1 // 漫画、小说
	SubjectAnimation SubjectType = 2
	SubjectMusic     SubjectType = 3
	SubjectGame      SubjectType = 4
	SubjectDrama     SubjectType = 6 // 三次元
)

func (t SubjectType) String() string {
	switch t {
	case SubjectBooks:
		return "books"
	case SubjectAnimation:
		return "animation"
	case SubjectMusic:
		return "music"
	case SubjectGame:
		return "game"
	case SubjectDrama:
		return "drama"
	default:
		return fmt.Sprintf("SubjectType(%d)", int(t))
	}
}

// CollectionStatus 是收藏状态。
type CollectionStatus int

const (
	CollectionWish    CollectionStatus = iota // 想看/想读/想听
	CollectionCollect                         // 看过
	CollectionDoing                           // 在看
	CollectionOnHold                          // 搁置
	CollectionDropped                         // 抛弃
)

func (s CollectionStatus) String() string {
	switch s {
	case CollectionWish:
		return "wish"
	case CollectionCollect:
		return "collect"
	case CollectionDoing:
		return "doing"
	case CollectionOnHold:
		return "on_hold"
	case CollectionDropped:
		return "dropped"
	default:
		return fmt.Sprintf("CollectionStatus(%d)", int(s))
	}
}

// HistogramSize 是评分分布的桶数（1 分到 10 分）。
const HistogramSize = 10

// Histogram 是评分分布：按 API 给出的顺序存放，下标 0 对应 1 分。
type Histogram [HistogramSize]uint32

// Sum 返回各桶人数之和。
func (h Histogram) Sum() uint64 {
	var n uint64
	for _, c := range h {
		n += uint64(c)
	}
	return n
}

// Rating 是条目的评分信息。
type Rating struct {
	Total uint32
	Score float64
	Count Histogram
}

// ImageSource 是同一张图片的多个分辨率地址，缺失的尺寸为空串。
type ImageSource struct {
	Large  string
	Common string
	Medium string
	Small  string
	Grid   string
}

// Subject 是 bangumi 条目。
//
// 约束：
// - EpisodeCount 与 Episodes 只会有一个被填充，由请求模式决定（simple -> EpisodeCount，detailed -> Episodes）
// - Characters/Staff 以实体 ID 作为键
type Subject struct {
	ID          uint32
	URL         string
	Type        SubjectType
	Name        string
	ChineseName string
	Summary     string

	AirDate    time.Time
	AirWeekday time.Weekday

	Rating Rating
	Rank   uint32
	Images ImageSource

	CollectionStats map[CollectionStatus]uint32

	EpisodeCount  *int
	Episodes      []Episode
	TotalEpisodes int

	Characters AttrMap[Character, []Person]
	Staff      AttrMap[Person, []string]

	Topics []Topic
	Blogs  []Blog
}

// Topic 是条目讨论版中的帖子。
type Topic struct {
	ID         uint32
	URL        string
	Title      string
	MainID     uint32
	Timestamp  time.Time
	LastPost   time.Time
	ReplyCount int
	User       *User
}

// Blog 是条目下的长评。
type Blog struct {
	ID         uint32
	URL        string
	Title      string
	Summary    string
	ThumbImage string
	ReplyCount int
	Timestamp  time.Time
	User       *User
}
