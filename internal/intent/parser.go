// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package intent turns free-text user input into a structured routing
// record. One LLM call proposes the intent; a phrase heuristic stands in
// when the call fails or its output cannot be used. Parse never fails.
package intent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/jsonx"
	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// Parser produces an Intent per user turn.
type Parser struct {
	llm  llm.Invoker
	cfg  *types.PipelineConfig
	now  func() time.Time
	log  zerolog.Logger
	zone *time.Location
}

// New returns a Parser. inv may be nil, in which case every turn takes the
// heuristic path.
func New(inv llm.Invoker, cfg *types.PipelineConfig) *Parser {
	zone := time.UTC
	if cfg.Intent.Timezone != "" {
		if loc, err := time.LoadLocation(cfg.Intent.Timezone); err == nil {
			zone = loc
		}
	}
	return &Parser{llm: inv, cfg: cfg, now: time.Now, log: logx.With("intent"), zone: zone}
}

// Parse returns a best-effort Intent for text.
func (p *Parser) Parse(ctx context.Context, text string) types.Intent {
	today := p.now().In(p.zone)

	if strings.TrimSpace(text) == "" || p.llm == nil {
		return p.finalize(p.fallback(text, today), text)
	}

	user, err := renderUserPrompt(strings.TrimSpace(text), routingContext{
		Now:      today.Format(time.RFC3339),
		Timezone: p.zone.String(),
		Locale:   p.cfg.Intent.Locale,
	})
	if err != nil {
		p.log.Warn().Err(err).Msg("rendering intent prompt, using heuristic")
		return p.finalize(p.fallback(text, today), text)
	}

	temp := p.cfg.Intent.Temperature
	if temp <= 0 {
		temp = 0.1
	}
	raw, err := p.llm.Invoke(ctx, systemPrompt, user, llm.WithTemperature(temp))
	if err != nil {
		p.log.Warn().Err(err).Msg("intent call failed, using heuristic")
		return p.finalize(p.fallback(text, today), text)
	}

	in, err := fromModel(raw, text, today)
	if err != nil {
		p.log.Warn().Err(err).Msg("intent output unusable, using heuristic")
		return p.finalize(p.fallback(text, today), text)
	}
	return p.finalize(in, text)
}

// fallback builds an Intent from phrase heuristics alone.
func (p *Parser) fallback(text string, today time.Time) types.Intent {
	w := parseWindow(text, today)
	research := ShouldResearch(text)
	return types.Intent{
		Task:          GuessTask(text),
		ShouldUseQE:   research,
		NeedsBrowsing: research,
		Queries:       []string{normalizeQuery(text)},
		TimeWindow:    w.kind,
		DateFrom:      w.from,
		DateTo:        w.to,
		Fallback:      true,
	}
}

// finalize fills defaults and applies the rules that hold on both paths.
func (p *Parser) finalize(in types.Intent, text string) types.Intent {
	lower := strings.ToLower(text)

	if !in.Task.Valid() {
		in.Task = GuessTask(text)
	}
	if !in.TimeWindow.Valid() {
		in.TimeWindow = types.WindowAllTime
	}
	if in.TimeWindow == types.WindowDateRange && (in.DateFrom == "" || in.DateTo == "") {
		in.TimeWindow, in.DateFrom, in.DateTo = types.WindowAllTime, "", ""
	}
	if len(in.Sources) == 0 {
		in.Sources = []string{"news"}
	}
	if in.Region == "" {
		in.Region = "CN"
	}
	if in.Output.Format == "" {
		in.Output.Format = "markdown"
	}
	if in.Output.Length == "" {
		in.Output.Length = "medium"
	}
	if in.Output.Citations != types.CitationsRequired {
		in.Output.Citations = types.CitationsOptional
	}
	if in.Constraints.Language == "" {
		in.Constraints.Language = "zh"
		in.Constraints.Dedupe = true
	}
	if in.Constraints.MaxLinks <= 0 {
		in.Constraints.MaxLinks = 10
	}

	if containsAny(lower, sourcePhrases) {
		in.ShouldUseQE = true
		in.Output.Citations = types.CitationsRequired
	}

	// A pure report request skips research and defaults to the report format.
	if in.Task == types.TaskReport && !containsAny(lower, ResearchThenReportPhrases) {
		in.ShouldUseQE = false
		if in.Output.Format == "" || in.Output.Format == "markdown" {
			in.Output.Format = string(p.reportFormat())
		}
	}

	in.Queries = cleanQueries(in.Queries)
	if len(in.Queries) == 0 {
		if q := normalizeQuery(text); q != "" {
			in.Queries = []string{q}
		} else {
			in.Queries = []string{}
		}
	}
	in.Notes = sanitizeNotes(in.Notes)
	return in
}

func (p *Parser) reportFormat() types.OutputFormat {
	if p.cfg.Report.OutputFormat != "" {
		return p.cfg.Report.OutputFormat
	}
	return types.OutputHTML
}

// answerMarkers identify notes that try to answer the user instead of routing.
var answerMarkers = []string{"告诉用户", "无法回答", "无法确定", "tell the user", "cannot answer", "unable to answer"}

func sanitizeNotes(notes string) string {
	notes = strings.TrimSpace(notes)
	if containsAny(strings.ToLower(notes), answerMarkers) {
		return ""
	}
	if r := []rune(notes); len(r) > 300 {
		return string(r[:300])
	}
	return notes
}

// fromModel converts the model's JSON into an Intent. It fails when no
// object is found or when neither task nor should_use_qe is present.
func fromModel(raw, text string, today time.Time) (types.Intent, error) {
	m, err := jsonx.Object(raw)
	if err != nil {
		return types.Intent{}, err
	}
	_, hasTask := m["task"]
	_, hasQE := m["should_use_qe"]
	if !hasTask && !hasQE {
		return types.Intent{}, fmt.Errorf("intent JSON lacks task and should_use_qe")
	}

	in := types.Intent{
		Task:          types.TaskKind(strings.ToLower(jsonx.String(m, "task"))),
		ShouldUseQE:   boolValue(m["should_use_qe"]),
		NeedsBrowsing: boolValue(m["needs_browsing"]),
		Queries:       stringList(m["queries"]),
		Sources:       stringList(m["sources"]),
		Region:        jsonx.String(m, "region"),
		Notes:         jsonx.String(m, "notes"),
	}

	w := modelWindow(strings.ToLower(jsonx.String(m, "time_window")),
		jsonx.String(m, "date_from"), jsonx.String(m, "date_to"), text, today)
	in.TimeWindow, in.DateFrom, in.DateTo = w.kind, w.from, w.to

	if out, ok := m["output"].(map[string]any); ok {
		in.Output.Format = strings.ToLower(jsonx.String(out, "format"))
		in.Output.Length = jsonx.String(out, "length", "max_length")
		switch v := out["citations"].(type) {
		case bool:
			if v {
				in.Output.Citations = types.CitationsRequired
			}
		case string:
			if strings.EqualFold(v, types.CitationsRequired) || strings.EqualFold(v, "true") {
				in.Output.Citations = types.CitationsRequired
			}
		}
	}

	if c, ok := m["constraints"].(map[string]any); ok {
		in.Constraints.Language = jsonx.String(c, "language")
		in.Constraints.Style = jsonx.String(c, "style")
		in.Constraints.Avoid = stringList(firstPresent(c, "avoid", "avoid_topics"))
		if n, ok := c["max_links"].(float64); ok {
			in.Constraints.MaxLinks = int(n)
		}
		in.Constraints.Dedupe = true
		if d, ok := c["dedupe"].(bool); ok {
			in.Constraints.Dedupe = d
		}
	}
	return in, nil
}

// modelWindow maps the model's time window vocabulary onto TimeWindow.
// Unknown or incomplete values defer to the phrase heuristic.
func modelWindow(kind, from, to, text string, today time.Time) window {
	end := today.Format(dateLayout)
	daysBack := func(n int) string { return today.AddDate(0, 0, -n).Format(dateLayout) }
	keep := func(k types.TimeWindow, n int) window {
		if validDate(from) && validDate(to) {
			return window{k, from, to}
		}
		return window{k, daysBack(n), end}
	}

	switch kind {
	case "all", "all_time":
		return window{kind: types.WindowAllTime}
	case "last_1d", "last_24h":
		return keep(types.WindowLast24h, 1)
	case "last_7d":
		return keep(types.WindowLast7d, 7)
	case "last_30d":
		return window{types.WindowDateRange, daysBack(30), end}
	case "last_90d":
		return window{types.WindowDateRange, daysBack(90), end}
	case "last_1y":
		return window{types.WindowDateRange, daysBack(365), end}
	case "date_range", "custom":
		if validDate(from) && validDate(to) {
			if from > to {
				from, to = to, from
			}
			return window{types.WindowDateRange, from, to}
		}
	}

	w := parseWindow(text, today)
	if kind == "auto" && w.kind == types.WindowAllTime {
		return window{kind: types.WindowAuto}
	}
	return w
}

func firstPresent(m map[string]any, keys ...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

func boolValue(v any) bool {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		return strings.EqualFold(b, "true") || b == "1" || strings.EqualFold(b, "yes")
	case float64:
		return b != 0
	}
	return false
}

func stringList(v any) []string {
	switch list := v.(type) {
	case string:
		if strings.TrimSpace(list) == "" {
			return nil
		}
		return []string{list}
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
