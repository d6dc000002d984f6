// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TaskKind classifies what the user asked for.
type TaskKind string

const (
	TaskResearch    TaskKind = "research"
	TaskQuickAnswer TaskKind = "quick_answer"
	TaskReport      TaskKind = "report"
	TaskCoding      TaskKind = "coding"
	TaskChat        TaskKind = "chat"
)

// Valid reports whether k is one of the known task kinds.
func (k TaskKind) Valid() bool {
	switch k {
	case TaskResearch, TaskQuickAnswer, TaskReport, TaskCoding, TaskChat:
		return true
	}
	return false
}

// TimeWindow is the recency constraint applied to searches.
type TimeWindow string

const (
	WindowAuto      TimeWindow = "auto"
	WindowAllTime   TimeWindow = "all_time"
	WindowLast24h   TimeWindow = "last_24h"
	WindowLast7d    TimeWindow = "last_7d"
	WindowDateRange TimeWindow = "date_range"
)

// Valid reports whether w is one of the known time windows.
func (w TimeWindow) Valid() bool {
	switch w {
	case WindowAuto, WindowAllTime, WindowLast24h, WindowLast7d, WindowDateRange:
		return true
	}
	return false
}

// Citation requirement levels for OutputPrefs.Citations.
const (
	CitationsOptional = "optional"
	CitationsRequired = "required"
)

// OutputPrefs carries the user's output preferences.
type OutputPrefs struct {
	// Format is the desired output: markdown, html, docx, pdf, ...
	Format string `json:"format" yaml:"format"`

	// Length is short, medium, or long.
	Length string `json:"length" yaml:"length"`

	// Citations is optional or required.
	Citations string `json:"citations" yaml:"citations"`
}

// Constraints carries language and style constraints.
type Constraints struct {
	Language string   `json:"language" yaml:"language"`
	Style    string   `json:"style,omitempty" yaml:"style,omitempty"`
	Avoid    []string `json:"avoid,omitempty" yaml:"avoid,omitempty"`
	MaxLinks int      `json:"max_links" yaml:"max_links"`
	Dedupe   bool     `json:"dedupe" yaml:"dedupe"`
}

// Intent is the structured routing record produced for one user turn.
// It is never persisted.
type Intent struct {
	Task          TaskKind    `json:"task" yaml:"task"`
	ShouldUseQE   bool        `json:"should_use_qe" yaml:"should_use_qe"`
	NeedsBrowsing bool        `json:"needs_browsing" yaml:"needs_browsing"`
	Queries       []string    `json:"queries" yaml:"queries"`
	TimeWindow    TimeWindow  `json:"time_window" yaml:"time_window"`
	DateFrom      string      `json:"date_from,omitempty" yaml:"date_from,omitempty"`
	DateTo        string      `json:"date_to,omitempty" yaml:"date_to,omitempty"`
	Sources       []string    `json:"sources" yaml:"sources"`
	Region        string      `json:"region" yaml:"region"`
	Output        OutputPrefs `json:"output" yaml:"output"`
	Constraints   Constraints `json:"constraints" yaml:"constraints"`

	// Notes holds routing rationale only, never an answer to the user.
	Notes string `json:"notes,omitempty" yaml:"notes,omitempty"`

	// Fallback is true when the heuristic path produced the intent.
	Fallback bool `json:"fallback" yaml:"fallback"`
}

// PrimaryQuery returns the first query or an empty string.
func (i Intent) PrimaryQuery() string {
	if len(i.Queries) == 0 {
		return ""
	}
	return i.Queries[0]
}

// QEInputs is the deterministic hand-off from an Intent to the research engine.
type QEInputs struct {
	ShouldUseQE bool   `json:"should_use_qe"`
	SearchTool  string `json:"search_tool"`
	Query       string `json:"query"`
	StartDate   string `json:"start_date,omitempty"`
	EndDate     string `json:"end_date,omitempty"`
}
