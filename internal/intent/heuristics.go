// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package intent

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const dateLayout = "2006-01-02"

var isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

var spaces = regexp.MustCompile(`\s+`)

// Phrase lists are matched against the lower-cased user text.
var (
	last24hPhrases = []string{"过去24小时", "近24小时", "24小时内", "last 24 hours", "past 24 hours"}
	last7dPhrases  = []string{"过去一周", "最近一周", "近一周", "7天", "近7天", "本周", "上周", "past week", "last week", "this week"}

	// ResearchThenReportPhrases mark a request that wants research before the report.
	ResearchThenReportPhrases = []string{
		"先研究", "研究并", "研究后出报告", "研究+报告", "先研究后报告", "先研究再报告",
		"research then report", "research and report", "research and then report",
	}

	reportTaskPhrases = []string{"报告任务", "生成报告", "写报告", "出一份报告", "write a report", "generate a report"}

	researchPhrases = []string{
		"深度研究", "深度搜索", "资料检索", "舆情", "新闻", "给出处", "查证", "事实核查",
		"deep research", "deep search", "fact-check", "fact check", "news",
	}

	// sourcePhrases force research with required citations.
	sourcePhrases = []string{
		"给出处", "参考链接", "来源链接", "事实核查", "查证", "新闻", "最新",
		"过去24小时", "过去一周", "近一周", "7天", "本周",
		"sources", "references", "fact-check", "fact check", "latest news",
	}

	wantSourcesPhrases = []string{"给出处", "参考链接", "来源链接", "查证", "事实核查", "sources", "references", "fact-check"}
	timeSignals        = []string{"最新", "过去24小时", "近24小时", "过去一周", "最近一周", "近一周", "7天", "近7天", "本周", "上周", "latest", "past week", "last week", "today"}
	newsTerms          = []string{"新闻", "报道", "资讯", "舆情", "媒体", "文章链接", "news", "headlines", "coverage"}
)

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// WantsResearchThenReport reports whether text asks for research before a report.
func WantsResearchThenReport(text string) bool {
	return containsAny(strings.ToLower(text), ResearchThenReportPhrases)
}

// GuessTask classifies text by phrase lists: research-then-report phrases
// win, then explicit report phrases, then research signals, else chat.
func GuessTask(text string) types.TaskKind {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, ResearchThenReportPhrases):
		return types.TaskResearch
	case containsAny(t, reportTaskPhrases):
		return types.TaskReport
	case containsAny(t, researchPhrases):
		return types.TaskResearch
	}
	return types.TaskChat
}

// ShouldResearch is the heuristic research signal: explicit source
// requests, a time signal next to a news term, or an ISO date next to a
// news term. Pure report requests never qualify.
func ShouldResearch(text string) bool {
	t := strings.ToLower(text)
	if containsAny(t, reportTaskPhrases) && !containsAny(t, ResearchThenReportPhrases) {
		return false
	}
	if containsAny(t, wantSourcesPhrases) {
		return true
	}
	if containsAny(t, newsTerms) && (containsAny(t, timeSignals) || isoDate.MatchString(t)) {
		return true
	}
	return false
}

// window is a time window with its date bounds.
type window struct {
	kind     types.TimeWindow
	from, to string
}

// ParseTimeWindow derives a time window from phrases or explicit ISO dates
// in text. Relative windows are anchored on today.
func ParseTimeWindow(text string, today time.Time) (types.TimeWindow, string, string) {
	w := parseWindow(text, today)
	return w.kind, w.from, w.to
}

func parseWindow(text string, today time.Time) window {
	t := strings.ToLower(text)
	end := today.Format(dateLayout)
	switch {
	case containsAny(t, last24hPhrases):
		return window{types.WindowLast24h, today.AddDate(0, 0, -1).Format(dateLayout), end}
	case containsAny(t, last7dPhrases):
		return window{types.WindowLast7d, today.AddDate(0, 0, -7).Format(dateLayout), end}
	}

	dates := isoDate.FindAllString(t, -1)
	if len(dates) >= 2 {
		sort.Strings(dates)
		return window{types.WindowDateRange, dates[0], dates[len(dates)-1]}
	}
	return window{kind: types.WindowAllTime}
}

// normalizeQuery collapses whitespace.
func normalizeQuery(s string) string {
	return strings.TrimSpace(spaces.ReplaceAllString(s, " "))
}

// cleanQueries normalizes, de-duplicates and truncates to three entries.
func cleanQueries(qs []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, q := range qs {
		q = normalizeQuery(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == 3 {
			break
		}
	}
	return out
}

func validDate(s string) bool {
	_, err := time.Parse(dateLayout, s)
	return err == nil
}
