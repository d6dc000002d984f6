// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// Search tool names accepted by the research engine and the tool endpoint.
const (
	ToolBasicSearch  = "basic_search_news"
	ToolDeepSearch   = "deep_search_news"
	ToolLast24Hours  = "search_news_last_24_hours"
	ToolLastWeek     = "search_news_last_week"
	ToolImages       = "search_images_for_news"
	ToolSearchByDate = "search_news_by_date"
)

// SearchTools is the allow-list of search tools, in display order.
var SearchTools = []string{
	ToolBasicSearch,
	ToolDeepSearch,
	ToolLast24Hours,
	ToolLastWeek,
	ToolImages,
	ToolSearchByDate,
}

// SearchResult is one ranked web result.
type SearchResult struct {
	// Title is the page title.
	Title string `json:"title" yaml:"title"`

	// URL is the canonical link to the result.
	URL string `json:"url" yaml:"url"`

	// Content is the snippet or extracted text, truncated to the configured limit.
	Content string `json:"content" yaml:"content"`

	// Score is the provider relevance score; higher is better.
	Score float64 `json:"score" yaml:"score"`

	// RawContent is the full page text when the provider returns it.
	RawContent string `json:"raw_content,omitempty" yaml:"raw_content,omitempty"`

	// PublishedDate is the provider-reported publication date, if any.
	PublishedDate string `json:"published_date,omitempty" yaml:"published_date,omitempty"`
}

// SearchRequest is the argument to a search tool.
type SearchRequest struct {
	// Tool names one of SearchTools.
	Tool string `json:"tool" yaml:"tool"`

	Query string `json:"query" yaml:"query"`

	// StartDate and EndDate (YYYY-MM-DD) are read only by search_news_by_date.
	StartDate string `json:"start_date,omitempty" yaml:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty" yaml:"end_date,omitempty"`

	// MaxResults overrides the tool's default result count when positive.
	MaxResults int `json:"max_results,omitempty" yaml:"max_results,omitempty"`
}

// IsSearchTool reports whether name is on the SearchTools allow-list.
func IsSearchTool(name string) bool {
	for _, t := range SearchTools {
		if t == name {
			return true
		}
	}
	return false
}
