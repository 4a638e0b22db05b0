package main

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/John-Robertt/bgmtv/internal/domain"
)

func printSubject(w io.Writer, s domain.Subject) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(tw, "%s\t%s\n", k, v)
		}
	}
	row("id", strconv.FormatUint(uint64(s.ID), 10))
	row("name", s.Name)
	row("name_cn", s.ChineseName)
	if s.Type != 0 {
		row("type", s.Type.String())
	}
	row("url", s.URL)
	if !s.AirDate.IsZero() {
		row("air_date", s.AirDate.Format("2006-01-02"))
	}
	// 周日与“未给出”同为零值：没有放送日期时不输出周日。
	if !s.AirDate.IsZero() || s.AirWeekday != 0 {
		row("air_weekday", s.AirWeekday.String())
	}
	switch {
	case s.EpisodeCount != nil:
		row("episodes", strconv.Itoa(*s.EpisodeCount))
	case len(s.Episodes) > 0:
		row("episodes", strconv.Itoa(len(s.Episodes)))
	}
	if s.Rating.Total > 0 {
		row("score", fmt.Sprintf("%.1f (%d votes)", s.Rating.Score, s.Rating.Total))
	}
	if s.Rank > 0 {
		row("rank", "#"+strconv.FormatUint(uint64(s.Rank), 10))
	}
	if len(s.CollectionStats) > 0 {
		parts := make([]string, 0, len(s.CollectionStats))
		for st := domain.CollectionWish; st <= domain.CollectionDropped; st++ {
			if n, ok := s.CollectionStats[st]; ok {
				parts = append(parts, fmt.Sprintf("%s=%d", st, n))
			}
		}
		row("collection", strings.Join(parts, " "))
	}
	if n := s.Characters.Len(); n > 0 {
		row("characters", strconv.Itoa(n))
	}
	if n := s.Staff.Len(); n > 0 {
		row("staff", strconv.Itoa(n))
	}
	_ = tw.Flush()

	if sum := strings.TrimSpace(s.Summary); sum != "" {
		fmt.Fprintf(w, "\n%s\n", sum)
	}
	if len(s.Episodes) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		for _, ep := range s.Episodes {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", episodeLabel(ep), ep.Status, episodeTitle(ep), formatDate(ep))
		}
		_ = tw.Flush()
	}
}

func printUser(w io.Writer, u domain.User) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "id\t%d\n", u.ID)
	fmt.Fprintf(tw, "username\t%s\n", u.UserName)
	if u.NickName != "" {
		fmt.Fprintf(tw, "nickname\t%s\n", u.NickName)
	}
	if u.URL != "" {
		fmt.Fprintf(tw, "url\t%s\n", u.URL)
	}
	if sign := strings.TrimSpace(u.Sign); sign != "" {
		fmt.Fprintf(tw, "sign\t%s\n", sign)
	}
	_ = tw.Flush()
}

func printCollections(w io.Writer, cs []domain.Collection) {
	if len(cs) == 0 {
		fmt.Fprintln(w, "（没有在看的条目）")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, c := range cs {
		name := c.Name
		total := 0
		if c.Subject != nil {
			if c.Subject.ChineseName != "" {
				name = c.Subject.ChineseName
			} else if name == "" {
				name = c.Subject.Name
			}
			total = c.Subject.TotalEpisodes
			if c.Subject.EpisodeCount != nil {
				total = *c.Subject.EpisodeCount
			}
		}
		ep := "-"
		if c.EpStatus != nil {
			ep = strconv.Itoa(*c.EpStatus)
			if total > 0 {
				ep += "/" + strconv.Itoa(total)
			}
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", c.SubjectID, ep, name)
	}
	_ = tw.Flush()
}

// printProgress 按章节输出观看状态；eps 为空时只能按章节 ID 输出。
func printProgress(w io.Writer, p domain.Progress, eps []domain.Episode) {
	if len(p.Episodes) == 0 {
		fmt.Fprintf(w, "条目 %d 没有观看记录\n", p.SubjectID)
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if len(eps) > 0 {
		seen := make(map[uint32]bool, len(eps))
		for _, ep := range eps {
			seen[ep.ID] = true
			st, ok := p.Episodes[ep.ID]
			if !ok {
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\n", episodeLabel(ep), st, episodeTitle(ep))
		}
		// 章节列表里找不到的（例如已被删除）仍然输出。
		for _, id := range sortedIDs(p.Episodes) {
			if !seen[id] {
				fmt.Fprintf(tw, "ep#%d\t%s\t\n", id, p.Episodes[id])
			}
		}
	} else {
		for _, id := range sortedIDs(p.Episodes) {
			fmt.Fprintf(tw, "ep#%d\t%s\n", id, p.Episodes[id])
		}
	}
	_ = tw.Flush()
}

func sortedIDs(m map[uint32]domain.WatchStatus) []uint32 {
	ids := make([]uint32, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func episodeLabel(ep domain.Episode) string {
	n := strconv.FormatFloat(ep.Sort, 'f', -1, 64)
	switch ep.Kind {
	case domain.EpisodeMain:
		return "ep" + n
	default:
		return ep.Kind.String() + n
	}
}

func episodeTitle(ep domain.Episode) string {
	if ep.ChineseName != "" {
		return ep.ChineseName
	}
	return ep.Name
}

func formatDate(ep domain.Episode) string {
	if ep.AirDate.IsZero() {
		return ""
	}
	return ep.AirDate.Format("2006-01-02")
}

func displayName(u domain.User) string {
	if u.NickName != "" {
		return u.NickName
	}
	return u.UserName
}
