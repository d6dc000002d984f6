// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// SearchRecord is one executed search in a paragraph's history.
type SearchRecord struct {
	// Query is the search string sent to the tool.
	Query string `json:"query" yaml:"query"`

	// Tool is the search tool used.
	Tool string `json:"tool,omitempty" yaml:"tool,omitempty"`

	// URL is set on records that carry a single source link instead of results.
	URL string `json:"url,omitempty" yaml:"url,omitempty"`

	// Results are the ranked results returned for Query.
	Results []SearchResult `json:"results,omitempty" yaml:"results,omitempty"`

	// Reflection is true for searches issued by a reflection pass.
	Reflection bool `json:"reflection,omitempty" yaml:"reflection,omitempty"`
}

// URLs returns the record's own URL followed by its results' URLs.
func (r SearchRecord) URLs() []string {
	var urls []string
	if r.URL != "" {
		urls = append(urls, r.URL)
	}
	for _, res := range r.Results {
		if res.URL != "" {
			urls = append(urls, res.URL)
		}
	}
	return urls
}

// ResearchRecord is a paragraph's running research state.
type ResearchRecord struct {
	// LatestSummary is overwritten by every summarization pass.
	LatestSummary string `json:"latest_summary" yaml:"latest_summary"`

	// SearchHistory is append-only.
	SearchHistory []SearchRecord `json:"search_history" yaml:"search_history"`

	// ReflectionCount is the number of completed reflection passes.
	ReflectionCount int `json:"reflection_count" yaml:"reflection_count"`
}

// Paragraph is one section of a research report.
type Paragraph struct {
	Title    string         `json:"title" yaml:"title"`
	Content  string         `json:"content" yaml:"content"`
	Research ResearchRecord `json:"research" yaml:"research"`
}

// ResearchState is the working document for one research run.
type ResearchState struct {
	Query       string      `json:"query" yaml:"query"`
	ReportTitle string      `json:"report_title" yaml:"report_title"`
	Paragraphs  []Paragraph `json:"paragraphs" yaml:"paragraphs"`
	FinalReport string      `json:"final_report" yaml:"final_report"`
	Completed   bool        `json:"is_completed" yaml:"is_completed"`
	UpdatedAt   time.Time   `json:"last_updated" yaml:"last_updated"`
}

// Touch marks the state as modified now.
func (s *ResearchState) Touch() {
	s.UpdatedAt = time.Now()
}

// ArtifactHandle is the typed hand-off between the research and report stages.
type ArtifactHandle struct {
	DraftPath  string `json:"draft_path,omitempty" yaml:"draft_path,omitempty"`
	StatePath  string `json:"state_path,omitempty" yaml:"state_path,omitempty"`
	ReportPath string `json:"report_path,omitempty" yaml:"report_path,omitempty"`
}

// Empty reports whether neither the draft nor the state is available.
func (h ArtifactHandle) Empty() bool {
	return h.DraftPath == "" && h.StatePath == ""
}
