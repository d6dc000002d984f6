// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/pdiddy/research-orchestrator/internal/httputil"
)

// anthropicAPIURL is the Messages API endpoint. Package-level var for test substitution.
var anthropicAPIURL = "https://api.anthropic.com/v1/messages"

// AnthropicProvider calls the Anthropic Messages API.
type AnthropicProvider struct {
	ProviderName string
	APIKey       string
	Model        string
	UserAgent    string
	Client       *http.Client
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature"`
	Messages    []anthropicMessage `json:"messages"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Name returns the configured provider name.
func (p *AnthropicProvider) Name() string {
	if p.ProviderName == "" {
		return "anthropic"
	}
	return p.ProviderName
}

// Complete sends one Messages API request and returns the first text block.
func (p *AnthropicProvider) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       p.Model,
		MaxTokens:   maxTokens,
		System:      req.System,
		Temperature: req.Temperature,
		Messages:    []anthropicMessage{{Role: "user", Content: req.User}},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, anthropicAPIURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.APIKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")
	if p.UserAgent != "" {
		httpReq.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, p.Name(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// 529 is Anthropic's "overloaded" status.
		pe := classify(p.Name(), resp.StatusCode, httputil.ReadLimited(resp.Body, errorBodyLimit))
		if resp.StatusCode == 529 && pe.Kind == KindFatal {
			pe.Kind = KindRetriable
		}
		return "", pe
	}

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: p.Name(), Kind: KindFatal, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decoding response: %w", err)}
	}

	if out.StopReason == "refusal" {
		return "", &ProviderError{Provider: p.Name(), Kind: KindSafetyBlocked, StatusCode: resp.StatusCode,
			Err: errors.New("stop_reason refusal")}
	}

	for _, block := range out.Content {
		if block.Type == "text" {
			return strings.TrimSpace(block.Text), nil
		}
	}
	return "", &ProviderError{Provider: p.Name(), Kind: KindFatal, StatusCode: resp.StatusCode,
		Err: errors.New("no text content in response")}
}
