// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package pipeline

import (
	"regexp"
	"strings"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Branch names the path a turn takes through the pipeline.
type Branch string

const (
	BranchChat   Branch = "chat"
	BranchQuery  Branch = "query"
	BranchReport Branch = "report"
	BranchCombo  Branch = "combo"
)

// Combo signals, in evaluation order.
const (
	SignalFlag    = "flag"
	SignalIntent  = "intent"
	SignalKeyword = "keyword"
)

var (
	comboTriggers = []string{
		"研究并生成报告", "先研究后报告", "研究后出报告", "深度研究并输出报告",
		"研究+报告", "一键联动", "qe+re", "先研究再报告", "research then report",
	}

	researchKeywords = []string{
		"深度搜索", "深度研究", "深度检索", "资料检索", "查证", "事实核查", "舆情", "给出处",
		"sources", "references", "deep search",
	}
	researchTimeSignals = []string{
		"最新", "过去24小时", "近24小时", "24小时内", "过去一周", "最近一周", "近一周",
		"7天", "近7天", "本周", "上周", "最近", "latest", "past week", "last week",
	}
	researchNewsTerms = []string{"新闻", "报道", "资讯", "快讯", "舆情", "媒体", "news", "headlines"}
	reportTerms       = []string{"报告", "report"}

	comboFormats = map[string]bool{"html": true, "report": true, "docx": true, "pdf": true}

	isoDate = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
)

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// comboSignal returns the first signal asking for research followed by a
// report, or "" when none fires.
func comboSignal(st *types.PipelineState) string {
	if st.Intent.Task == types.TaskReport {
		return ""
	}
	switch {
	case st.ForceCombo:
		return SignalFlag
	case st.Intent.ShouldUseQE && comboFormats[strings.ToLower(st.Intent.Output.Format)]:
		return SignalIntent
	case containsAny(strings.ToLower(st.UserInput), comboTriggers):
		return SignalKeyword
	}
	return ""
}

// researchHint is the keyword fallback for research-only turns. A turn
// that mentions a report prefers the report path and never qualifies.
func researchHint(text string) bool {
	t := strings.ToLower(strings.TrimSpace(text))
	switch {
	case t == "", containsAny(t, reportTerms):
		return false
	case containsAny(t, researchKeywords):
		return true
	case containsAny(t, researchNewsTerms):
		return containsAny(t, researchTimeSignals) || isoDate.MatchString(t)
	}
	return false
}

// decide picks the branch for a turn. The order is fixed: a forced
// report, combo, research only, report only, then chat.
func decide(st *types.PipelineState) (Branch, string) {
	if st.ForceReport && !st.ForceCombo && !st.ForceQuery {
		return BranchReport, ""
	}
	if sig := comboSignal(st); sig != "" {
		return BranchCombo, sig
	}
	wantsQE := st.Intent.Task != types.TaskReport && st.Intent.ShouldUseQE
	if st.ForceQuery || wantsQE || researchHint(st.UserInput) {
		return BranchQuery, ""
	}
	if st.ForceReport || st.Intent.Task == types.TaskReport {
		return BranchReport, ""
	}
	return BranchChat, ""
}

// templateHint maps the turn text to a report template name, or "auto".
func templateHint(text string) string {
	t := strings.ToLower(text)
	switch {
	case containsAny(t, []string{"舆情", "sentiment", "public opinion"}):
		return "sentiment_monitoring"
	case containsAny(t, []string{"竞争", "行业", "competition", "industry"}):
		return "competition_analysis"
	case containsAny(t, []string{"金融科技", "趋势", "技术", "fintech", "trend", "technology"}):
		return "fintech_trends"
	}
	return "auto"
}
