package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/John-Robertt/bgmtv/internal/domain"
	"github.com/John-Robertt/bgmtv/internal/infra/httpx"
	providerx "github.com/John-Robertt/bgmtv/internal/provider"
)

const defaultBaseURL = "https://bgm.tv"

// Provider 抓取 bgm.tv 的条目页面并解析。
//
// 约束：
// - 页面上没有完整的章节列表，结果始终是 simple 形态（只填 EpisodeCount）
// - 需要登录才能查看的条目视为 BlockedError，不尝试绕过
// - Parse 是纯函数（依赖输入 html + pageURL）
type Provider struct {
	// BaseURL 允许换成镜像域名（例如 https://bangumi.tv）。
	BaseURL string
}

func (Provider) Name() string { return "web" }

func (Provider) Ext() string { return "html" }

func (p Provider) baseURL() string {
	u := strings.TrimSpace(p.BaseURL)
	if u == "" {
		return defaultBaseURL
	}
	return strings.TrimRight(u, "/")
}

func (p Provider) PageURL(req providerx.Request) string {
	return p.baseURL() + "/subject/" + strconv.FormatUint(uint64(req.ID), 10)
}

// Fetch 请求 https://bgm.tv/subject/<id>。
func (p Provider) Fetch(ctx context.Context, req providerx.Request, c *http.Client) ([]byte, string, error) {
	if c == nil {
		return nil, "", errors.New("http client 不能为空")
	}
	if req.ID == 0 {
		return nil, "", errors.New("subject id 不能为 0")
	}
	pageURL := p.PageURL(req)

	// 禁用重定向：受限条目会 302 到 /login，自动跟随只会拿到登录页。
	c2 := *c
	c2.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	b, err := httpx.Get(ctx, &c2, pageURL)
	if err != nil {
		var se *httpx.StatusError
		if errors.As(err, &se) && se.StatusCode >= 300 && se.StatusCode < 400 && strings.Contains(se.Location, "/login") {
			return nil, "", &providerx.BlockedError{URL: se.Location, Reason: "login-required"}
		}
		return nil, "", err
	}
	if len(b) == 0 {
		return nil, "", errors.New("empty response body")
	}
	if bytes.Contains(b, []byte(`id="loginForm"`)) {
		return nil, "", &providerx.BlockedError{URL: pageURL, Reason: "login-required"}
	}
	return b, pageURL, nil
}

// Parse 把条目页 HTML 解析为 simple 形态的 Subject。
func (Provider) Parse(req providerx.Request, html []byte, pageURL string) (domain.Subject, error) {
	if req.ID == 0 {
		return domain.Subject{}, errors.New("subject id 不能为 0")
	}
	if len(html) == 0 {
		return domain.Subject{}, errors.New("html 为空")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return domain.Subject{}, err
	}

	// 先确认是条目详情页，避免把“条目不存在”之类的提示页当成功。
	title := doc.Find("h1.nameSingle a").First()
	name := normSpace(title.Text())
	if name == "" {
		return domain.Subject{}, errors.New("未找到条目名（疑似返回了非条目页内容）")
	}
	if href, ok := title.Attr("href"); ok {
		if id := lastPathID(href); id != 0 && id != req.ID {
			return domain.Subject{}, fmt.Errorf("条目 ID 不匹配：页面=%d 请求=%d", id, req.ID)
		}
	}

	s := domain.Subject{
		ID:          req.ID,
		URL:         strings.TrimSpace(pageURL),
		Name:        name,
		ChineseName: normSpace(title.AttrOr("title", "")),
		Summary:     strings.TrimSpace(doc.Find("#subject_summary").First().Text()),
		Type:        subjectType(doc),
	}

	info := infobox(doc)
	if cn := info["中文名"]; cn != "" {
		s.ChineseName = cn
	}
	if v := firstOf(info, "放送开始", "上映年度", "发售日", "开始", "发行日期"); v != "" {
		s.AirDate = parseDate(v)
	}
	if v := info["放送星期"]; v != "" {
		wd, ok := weekdays[v]
		if !ok {
			return domain.Subject{}, fmt.Errorf("无法识别的放送星期：%q", v)
		}
		s.AirWeekday = wd
	}

	n, ok := episodeCount(doc, info)
	if ok {
		s.EpisodeCount = &n
		s.TotalEpisodes = n
	}

	if err := parseRating(doc, &s.Rating); err != nil {
		return domain.Subject{}, err
	}
	s.Rank = uint32(firstInt(doc.Find(".global_score small.alarm").First().Text()))
	s.Images = coverImages(doc)
	return s, nil
}

// weekdays 是页面上“放送星期”的取值。
var weekdays = map[string]time.Weekday{
	"星期一": time.Monday,
	"星期二": time.Tuesday,
	"星期三": time.Wednesday,
	"星期四": time.Thursday,
	"星期五": time.Friday,
	"星期六": time.Saturday,
	"星期日": time.Sunday,
	"星期天": time.Sunday,
}

// infobox 收集 #infobox 中的“标签: 值”；同名标签只保留第一个。
func infobox(doc *goquery.Document) map[string]string {
	out := map[string]string{}
	doc.Find("#infobox li").Each(func(_ int, li *goquery.Selection) {
		tip := li.Find("span.tip").First()
		key := normHeader(tip.Text())
		if key == "" {
			return
		}
		val := normSpace(strings.TrimPrefix(normSpace(li.Text()), normSpace(tip.Text())))
		if _, ok := out[key]; !ok && val != "" {
			out[key] = val
		}
	})
	return out
}

func subjectType(doc *goquery.Document) domain.SubjectType {
	href := strings.TrimSpace(doc.Find("#navMenuNeue a.focus").First().AttrOr("href", ""))
	switch strings.Trim(href, "/") {
	case "book":
		return domain.SubjectBooks
	case "anime":
		return domain.SubjectAnimation
	case "music":
		return domain.SubjectMusic
	case "game":
		return domain.SubjectGame
	case "real":
		return domain.SubjectDrama
	default:
		return 0
	}
}

// episodeCount 优先取 infobox 的“话数”；缺失时退回进度格子的数量。
func episodeCount(doc *goquery.Document, info map[string]string) (int, bool) {
	if v := info["话数"]; v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n, true
		}
	}
	n := doc.Find("ul.prg_list a.load-epinfo").Length()
	return n, n > 0
}

// parseRating 解析评分。柱状图在页面上按 10..1 排列，这里按 label 放回 1..10 的下标。
func parseRating(doc *goquery.Document, r *domain.Rating) error {
	if v := strings.TrimSpace(doc.Find(".global_score span.number").First().Text()); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("评分非法：%q", v)
		}
		r.Score = f
	}
	r.Total = uint32(firstInt(doc.Find("span[property='v:votes']").First().Text()))

	bars := doc.Find("#ChartWarpper ul.horizontalChart li")
	if bars.Length() == 0 {
		return nil
	}
	if bars.Length() != domain.HistogramSize {
		return fmt.Errorf("评分分布应有 %d 档，实际 %d", domain.HistogramSize, bars.Length())
	}
	var (
		err  error
		seen [domain.HistogramSize]bool
	)
	bars.EachWithBreak(func(_ int, li *goquery.Selection) bool {
		label, aerr := strconv.Atoi(strings.TrimSpace(li.Find("span.label").First().Text()))
		if aerr != nil || label < 1 || label > domain.HistogramSize || seen[label-1] {
			err = fmt.Errorf("评分分布档位非法：%q", li.Find("span.label").First().Text())
			return false
		}
		seen[label-1] = true
		r.Count[label-1] = uint32(firstInt(li.Find("span.count").First().Text()))
		return true
	})
	return err
}

// coverImages 从大图地址推出其余尺寸（/pic/cover/l/ -> c/m/s/g）。
func coverImages(doc *goquery.Document) domain.ImageSource {
	href := strings.TrimSpace(doc.Find("#bangumiInfo a.cover").First().AttrOr("href", ""))
	if href == "" {
		return domain.ImageSource{}
	}
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	if !strings.Contains(href, "/l/") {
		return domain.ImageSource{Large: href}
	}
	size := func(s string) string { return strings.Replace(href, "/l/", "/"+s+"/", 1) }
	return domain.ImageSource{
		Large:  href,
		Common: size("c"),
		Medium: size("m"),
		Small:  size("s"),
		Grid:   size("g"),
	}
}

func parseDate(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{"2006年1月2日", "2006-01-02", "2006年1月", "2006-01", "2006年", "2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func firstOf(m map[string]string, keys ...string) string {
	for _, k := range keys {
		if v := m[k]; v != "" {
			return v
		}
	}
	return ""
}

func lastPathID(href string) uint32 {
	href = strings.TrimRight(strings.TrimSpace(href), "/")
	i := strings.LastIndexByte(href, '/')
	n, err := strconv.ParseUint(href[i+1:], 10, 32)
	if err != nil {
		return 0
	}
	return uint32(n)
}

func normSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func normHeader(s string) string {
	s = normSpace(s)
	s = strings.TrimSuffix(s, ":")
	s = strings.TrimSuffix(s, "：")
	return strings.TrimSpace(s)
}

func firstInt(s string) int {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
			continue
		}
		if b.Len() > 0 {
			break
		}
	}
	if b.Len() == 0 {
		return 0
	}
	n, _ := strconv.Atoi(b.String())
	return n
}
