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

// defaultBaseURLs are the OpenAI-compatible endpoints known by provider name.
var defaultBaseURLs = map[string]string{
	"openai":      "https://api.openai.com/v1",
	"zhipu":       "https://open.bigmodel.cn/api/paas/v4",
	"siliconflow": "https://api.siliconflow.cn/v1",
	"deepseek":    "https://api.deepseek.com/v1",
}

// defaultModels are used when a provider entry has no model.
var defaultModels = map[string]string{
	"openai":      "gpt-4o-mini",
	"zhipu":       "glm-4-plus",
	"siliconflow": "Qwen/Qwen3-8B",
	"deepseek":    "deepseek-chat",
	"anthropic":   "claude-sonnet-4-20250514",
	"gemini":      "gemini-2.5-flash",
}

const errorBodyLimit = 4096

// OpenAIProvider calls any chat-completions API that speaks the OpenAI wire
// format (OpenAI, Zhipu, SiliconFlow, DeepSeek).
type OpenAIProvider struct {
	ProviderName string
	BaseURL      string
	APIKey       string
	Model        string
	UserAgent    string
	Client       *http.Client
}

type openAIRequest struct {
	Model       string          `json:"model"`
	Messages    []openAIMessage `json:"messages"`
	Temperature float64         `json:"temperature"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openAIResponse struct {
	Choices []struct {
		Message      openAIMessage `json:"message"`
		FinishReason string        `json:"finish_reason"`
	} `json:"choices"`
}

// Name returns the configured provider name.
func (p *OpenAIProvider) Name() string {
	return p.ProviderName
}

// Complete sends one chat-completions request.
func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	var messages []openAIMessage
	if strings.TrimSpace(req.System) != "" {
		messages = append(messages, openAIMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, openAIMessage{Role: "user", Content: req.User})

	body, err := json.Marshal(openAIRequest{
		Model:       p.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := strings.TrimRight(p.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.APIKey)
	if p.UserAgent != "" {
		httpReq.Header.Set("User-Agent", p.UserAgent)
	}

	client := p.Client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(httpReq)
	if err != nil {
		return "", transportError(ctx, p.ProviderName, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", classify(p.ProviderName, resp.StatusCode, httputil.ReadLimited(resp.Body, errorBodyLimit))
	}

	var out openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &ProviderError{Provider: p.ProviderName, Kind: KindFatal, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("decoding response: %w", err)}
	}
	if len(out.Choices) == 0 {
		return "", &ProviderError{Provider: p.ProviderName, Kind: KindFatal, StatusCode: resp.StatusCode,
			Err: errors.New("response has no choices")}
	}

	choice := out.Choices[0]
	if choice.FinishReason == "content_filter" || choice.FinishReason == "sensitive" {
		return "", &ProviderError{Provider: p.ProviderName, Kind: KindSafetyBlocked, StatusCode: resp.StatusCode,
			Err: fmt.Errorf("finish_reason %s", choice.FinishReason)}
	}

	return strings.TrimSpace(choice.Message.Content), nil
}
