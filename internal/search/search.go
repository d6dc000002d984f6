// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package search is the web search capability used by the research engine
// and the tool endpoints. Every backend implements Tool; results come back
// deduplicated by URL, ranked by score, and trimmed to the configured
// content length.
package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// ErrUnknownTool is returned when a request names a tool outside
// types.SearchTools.
var ErrUnknownTool = errors.New("unknown search tool")

// DefaultMaxContentLength is the per-result content limit in runes.
const DefaultMaxContentLength = 4000

// Tool is the single capability every search adapter implements. The
// request's Tool field selects the operation.
type Tool interface {
	Name() string
	Call(ctx context.Context, req types.SearchRequest) (Response, error)
}

// Image is one image hit returned by the image tool.
type Image struct {
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// Response is the result of one tool call.
type Response struct {
	Tool         string               `json:"tool"`
	Query        string               `json:"query"`
	Answer       string               `json:"answer,omitempty"`
	Results      []types.SearchResult `json:"results"`
	Images       []Image              `json:"images,omitempty"`
	ResponseTime float64              `json:"response_time,omitempty"`

	// DupsRemoved counts results merged into an earlier one with the same URL.
	DupsRemoved int `json:"dups_removed,omitempty"`
}

var isoDate = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)

// ValidDate reports whether s is a real calendar date in YYYY-MM-DD form.
func ValidDate(s string) bool {
	if !isoDate.MatchString(s) {
		return false
	}
	_, err := time.Parse("2006-01-02", s)
	return err == nil
}

// Normalize checks req against the allow-list and downgrades a by-date
// request without two valid dates to a basic search. The returned bool is
// true when a downgrade happened.
func Normalize(req types.SearchRequest) (types.SearchRequest, bool, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return req, false, fmt.Errorf("search query is empty")
	}
	if req.Tool == "" {
		req.Tool = types.ToolBasicSearch
	}
	if !types.IsSearchTool(req.Tool) {
		return req, false, fmt.Errorf("%w: %q", ErrUnknownTool, req.Tool)
	}
	if req.Tool != types.ToolSearchByDate {
		return req, false, nil
	}
	if !ValidDate(req.StartDate) || !ValidDate(req.EndDate) {
		req.Tool = types.ToolBasicSearch
		req.StartDate, req.EndDate = "", ""
		return req, true, nil
	}
	if req.StartDate > req.EndDate {
		req.StartDate, req.EndDate = req.EndDate, req.StartDate
	}
	return req, false, nil
}

// finish deduplicates, ranks, trims content and caps the result count.
func finish(results []types.SearchResult, maxResults, maxContent int) ([]types.SearchResult, int) {
	deduped, removed := deduplicate(results)
	sort.SliceStable(deduped, func(i, j int) bool {
		return deduped[i].Score > deduped[j].Score
	})
	if maxResults > 0 && len(deduped) > maxResults {
		deduped = deduped[:maxResults]
	}
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	for i := range deduped {
		deduped[i].Content = truncate(deduped[i].Content, maxContent)
	}
	return deduped, removed
}

// deduplicate merges results sharing a normalized URL, falling back to the
// normalized title for results without one.
func deduplicate(results []types.SearchResult) ([]types.SearchResult, int) {
	seen := make(map[string]int)
	var deduped []types.SearchResult
	removed := 0

	for _, r := range results {
		key := dedupKey(r)
		if key == "" {
			deduped = append(deduped, r)
			continue
		}
		if idx, ok := seen[key]; ok {
			mergeInto(&deduped[idx], r)
			removed++
			continue
		}
		seen[key] = len(deduped)
		deduped = append(deduped, r)
	}
	return deduped, removed
}

func dedupKey(r types.SearchResult) string {
	if u := normalizeURL(r.URL); u != "" {
		return "url:" + u
	}
	if t := normalizeTitle(r.Title); t != "" {
		return "title:" + t
	}
	return ""
}

// mergeInto fills empty fields of dst from src and keeps the higher score.
func mergeInto(dst *types.SearchResult, src types.SearchResult) {
	if dst.Title == "" {
		dst.Title = src.Title
	}
	if len(src.Content) > len(dst.Content) {
		dst.Content = src.Content
	}
	if dst.RawContent == "" {
		dst.RawContent = src.RawContent
	}
	if dst.PublishedDate == "" {
		dst.PublishedDate = src.PublishedDate
	}
	if src.Score > dst.Score {
		dst.Score = src.Score
	}
}

// normalizeURL lowercases scheme and host and drops the fragment and a
// trailing slash, so trivially different links collapse.
func normalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(strings.TrimRight(raw, "/"))
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.TrimPrefix(strings.ToLower(u.Host), "www.")
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// normalizeTitle returns a lowercased, punctuation-stripped version of the title.
func normalizeTitle(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(title) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// FormatTable writes results as a human-readable table to w.
func FormatTable(resp Response, w io.Writer) {
	if len(resp.Results) == 0 && len(resp.Images) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	if len(resp.Results) > 0 {
		fmt.Fprintf(w, "%-4s  %-60s  %-10s  %-6s  %s\n", "Rank", "Title", "Published", "Score", "URL")
		fmt.Fprintln(w, strings.Repeat("-", 110))
		for i, r := range resp.Results {
			published := r.PublishedDate
			if len(published) > 10 {
				published = published[:10]
			}
			fmt.Fprintf(w, "%-4d  %-60s  %-10s  %-6.2f  %s\n",
				i+1, truncate(oneLine(r.Title), 60), published, r.Score, r.URL)
		}
	}
	for i, img := range resp.Images {
		fmt.Fprintf(w, "img %d  %s  %s\n", i+1, img.URL, truncate(oneLine(img.Description), 60))
	}

	fmt.Fprintf(w, "\n%d results via %s", len(resp.Results), resp.Tool)
	if resp.DupsRemoved > 0 {
		fmt.Fprintf(w, " (%d duplicates removed)", resp.DupsRemoved)
	}
	fmt.Fprintln(w)
}

// FormatJSON writes the response as indented JSON to w.
func FormatJSON(resp Response, w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}

// FormatForPrompt renders results as numbered blocks for a summarization
// prompt, each content body limited to maxContent runes.
func FormatForPrompt(results []types.SearchResult, maxContent int) string {
	if len(results) == 0 {
		return "(no search results)"
	}
	if maxContent <= 0 {
		maxContent = DefaultMaxContentLength
	}
	var b strings.Builder
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] %s\nURL: %s\n", i+1, oneLine(r.Title), r.URL)
		if r.PublishedDate != "" {
			fmt.Fprintf(&b, "Published: %s\n", r.PublishedDate)
		}
		b.WriteString(truncate(strings.TrimSpace(r.Content), maxContent))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func oneLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// truncate limits s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
