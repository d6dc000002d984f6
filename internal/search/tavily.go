// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/httputil"
	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// tavilyURL is the search endpoint. Tests point it at an httptest server.
var tavilyURL = "https://api.tavily.com/search"

const tavilyErrorBodyLimit = 2048

// Tavily implements Tool over the Tavily search API. Each news tool maps
// to a fixed set of request parameters.
type Tavily struct {
	apiKey     string
	endpoint   string
	userAgent  string
	maxContent int
	client     *http.Client
	log        zerolog.Logger
}

// NewTavily builds the adapter from cfg. An empty cfg.BaseURL uses the
// public endpoint.
func NewTavily(cfg types.SearchConfig) *Tavily {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	endpoint := cfg.BaseURL
	if endpoint == "" {
		endpoint = tavilyURL
	}
	return &Tavily{
		apiKey:     cfg.APIKey,
		endpoint:   endpoint,
		userAgent:  cfg.UserAgent,
		maxContent: cfg.MaxContentLength,
		client:     &http.Client{Timeout: timeout},
		log:        logx.With("search"),
	}
}

// Name returns "tavily".
func (t *Tavily) Name() string { return "tavily" }

// tavilyParams is the request body shared by every tool.
type tavilyParams struct {
	Query                    string `json:"query"`
	Topic                    string `json:"topic,omitempty"`
	SearchDepth              string `json:"search_depth,omitempty"`
	MaxResults               int    `json:"max_results,omitempty"`
	TimeRange                string `json:"time_range,omitempty"`
	StartDate                string `json:"start_date,omitempty"`
	EndDate                  string `json:"end_date,omitempty"`
	IncludeAnswer            bool   `json:"include_answer,omitempty"`
	IncludeRawContent        bool   `json:"include_raw_content,omitempty"`
	IncludeImages            bool   `json:"include_images,omitempty"`
	IncludeImageDescriptions bool   `json:"include_image_descriptions,omitempty"`
}

// paramsFor maps a normalized request to Tavily parameters.
func paramsFor(req types.SearchRequest) tavilyParams {
	p := tavilyParams{Query: req.Query, Topic: "news", SearchDepth: "basic", MaxResults: 7}
	switch req.Tool {
	case types.ToolDeepSearch:
		p.SearchDepth = "advanced"
		p.MaxResults = 20
		p.IncludeAnswer = true
	case types.ToolLast24Hours:
		p.TimeRange = "day"
		p.MaxResults = 10
	case types.ToolLastWeek:
		p.TimeRange = "week"
		p.MaxResults = 10
	case types.ToolImages:
		p.Topic = "general"
		p.MaxResults = 5
		p.IncludeImages = true
		p.IncludeImageDescriptions = true
	case types.ToolSearchByDate:
		p.SearchDepth = "advanced"
		p.MaxResults = 15
		p.StartDate = req.StartDate
		p.EndDate = req.EndDate
	}
	if req.MaxResults > 0 {
		p.MaxResults = req.MaxResults
	}
	return p
}

// Call runs one news tool. A by-date request without two valid dates runs
// as a basic search instead.
func (t *Tavily) Call(ctx context.Context, req types.SearchRequest) (Response, error) {
	req, downgraded, err := Normalize(req)
	if err != nil {
		return Response{}, err
	}
	if downgraded {
		t.log.Warn().Str("query", req.Query).Msg("search_news_by_date without valid dates, using basic search")
	}

	resp, err := t.do(ctx, paramsFor(req))
	if err != nil {
		metrics.SearchCalls.WithLabelValues(req.Tool, metrics.Error).Inc()
		return Response{}, fmt.Errorf("%s: %w", req.Tool, err)
	}
	metrics.SearchCalls.WithLabelValues(req.Tool, metrics.OK).Inc()

	results, removed := finish(resp.results(), 0, t.maxContent)
	return Response{
		Tool:         req.Tool,
		Query:        req.Query,
		Answer:       resp.Answer,
		Results:      results,
		Images:       resp.images(),
		ResponseTime: resp.ResponseTime,
		DupsRemoved:  removed,
	}, nil
}

// tavilyResponse mirrors the fields we read from the API.
type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title         string  `json:"title"`
		URL           string  `json:"url"`
		Content       string  `json:"content"`
		Score         float64 `json:"score"`
		RawContent    string  `json:"raw_content"`
		PublishedDate string  `json:"published_date"`
	} `json:"results"`
	// Images are plain URLs, or objects when descriptions were requested.
	Images       []json.RawMessage `json:"images"`
	ResponseTime float64           `json:"response_time"`
}

func (r tavilyResponse) results() []types.SearchResult {
	out := make([]types.SearchResult, 0, len(r.Results))
	for _, res := range r.Results {
		out = append(out, types.SearchResult{
			Title:         strings.TrimSpace(res.Title),
			URL:           strings.TrimSpace(res.URL),
			Content:       res.Content,
			Score:         res.Score,
			RawContent:    res.RawContent,
			PublishedDate: res.PublishedDate,
		})
	}
	return out
}

func (r tavilyResponse) images() []Image {
	var out []Image
	for _, raw := range r.Images {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s != "" {
				out = append(out, Image{URL: s})
			}
			continue
		}
		var img Image
		if err := json.Unmarshal(raw, &img); err == nil && img.URL != "" {
			out = append(out, img)
		}
	}
	return out
}

func (t *Tavily) do(ctx context.Context, params tavilyParams) (tavilyResponse, error) {
	if strings.TrimSpace(t.apiKey) == "" {
		return tavilyResponse{}, errors.New("tavily: API key is missing")
	}
	payload, err := json.Marshal(params)
	if err != nil {
		return tavilyResponse{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(payload))
	if err != nil {
		return tavilyResponse{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	if t.userAgent != "" {
		req.Header.Set("User-Agent", t.userAgent)
	}

	resp, err := httputil.DoWithRetry(ctx, t.client, req, 0)
	if err != nil {
		return tavilyResponse{}, fmt.Errorf("tavily request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return tavilyResponse{}, fmt.Errorf("tavily http %d: %s",
			resp.StatusCode, strings.TrimSpace(httputil.ReadLimited(resp.Body, tavilyErrorBodyLimit)))
	}

	var out tavilyResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return tavilyResponse{}, fmt.Errorf("decoding tavily response: %w", err)
	}
	return out, nil
}
