package domain

import (
	"encoding/json"
	"sort"
	"time"
)

const (
	StatusOK     = "ok"
	StatusCached = "cached"
	StatusFailed = "failed"
)

const (
	ErrCodeInvalidID      = "invalid_id"
	ErrCodeFetchFailed    = "fetch_failed"
	ErrCodeParseFailed    = "parse_failed"
	ErrCodeCacheFailed    = "cache_failed"
	ErrCodeConfigNotFound = "config_not_found"
	ErrCodeConfigInvalid  = "config_invalid"
)

// FetchReport 是批量抓取对外稳定输出（stdout JSON）的结构。
type FetchReport struct {
	Provider string `json:"provider"`
	Mode     string `json:"mode"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Items   []ItemResult  `json:"items"`
}

type ReportSummary struct {
	OK     int `json:"ok"`
	Cached int `json:"cached"`
	Failed int `json:"failed"`
}

type ItemResult struct {
	ID                uint32 `json:"id"`
	ProviderRequested string `json:"provider_requested"`
	ProviderUsed      string `json:"provider_used"`
	PageURL           string `json:"page_url"`

	Status    string `json:"status"`
	ErrorCode string `json:"error_code"`
	ErrorMsg  string `json:"error_msg"`

	Attempts []AttemptResult `json:"attempts"`
	Subject  *SubjectSummary `json:"subject,omitempty"`
}

// AttemptResult 是一次 provider 尝试的可序列化形式。
type AttemptResult struct {
	Provider  string `json:"provider"`
	Stage     string `json:"stage"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// SubjectSummary 是报告里展示的条目摘要，不是条目的完整序列化。
type SubjectSummary struct {
	Name        string  `json:"name"`
	ChineseName string  `json:"name_cn"`
	Type        string  `json:"type"`
	AirDate     string  `json:"air_date,omitempty"`
	AirWeekday  string  `json:"air_weekday,omitempty"`
	Episodes    int     `json:"episodes"`
	Score       float64 `json:"score"`
	Votes       uint32  `json:"votes"`
	Rank        uint32  `json:"rank"`
}

// Summarize 从 Subject 提取报告摘要；Episodes 取当前模式下填充的那一项。
func Summarize(s Subject) *SubjectSummary {
	out := &SubjectSummary{
		Name:        s.Name,
		ChineseName: s.ChineseName,
		Type:        s.Type.String(),
		Score:       s.Rating.Score,
		Votes:       s.Rating.Total,
		Rank:        s.Rank,
	}
	if !s.AirDate.IsZero() {
		out.AirDate = s.AirDate.Format("2006-01-02")
		out.AirWeekday = s.AirWeekday.String()
	}
	switch {
	case s.EpisodeCount != nil:
		out.Episodes = *s.EpisodeCount
	case s.Episodes != nil:
		out.Episodes = len(s.Episodes)
	}
	return out
}

// Finalize 做三件事：
// 1) 时间统一为 UTC（确保 JSON 为 RFC3339 且后缀 Z）
// 2) items 稳定排序：按 id 升序；id==0 的合成项排在最后
// 3) summary 由 items 计算得出
func (r *FetchReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()

	sort.SliceStable(r.Items, func(i, j int) bool {
		a, b := r.Items[i].ID, r.Items[j].ID
		if a == 0 {
			return false
		}
		if b == 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, it := range r.Items {
		switch it.Status {
		case StatusOK:
			s.OK++
		case StatusCached:
			s.Cached++
		case StatusFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// HasFailures 报告中存在失败项时为 true（CLI 据此决定退出码）。
func (r FetchReport) HasFailures() bool {
	for _, it := range r.Items {
		if it.Status == StatusFailed {
			return true
		}
	}
	return false
}

// MarshalJSON 集中约束输出的稳定性：nil 切片输出为 []。
func (r FetchReport) MarshalJSON() ([]byte, error) {
	type Alias FetchReport
	a := Alias(r)
	if a.Items == nil {
		a.Items = []ItemResult{}
	}
	for i := range a.Items {
		if a.Items[i].Attempts == nil {
			a.Items[i].Attempts = []AttemptResult{}
		}
	}
	return json.Marshal(a)
}
