// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// GeminiProvider calls the Gemini API through the genai SDK.
type GeminiProvider struct {
	providerName string
	model        string
	client       *genai.Client
}

// NewGeminiProvider creates a genai client for the Gemini API backend.
// baseURL is optional and used by tests.
func NewGeminiProvider(ctx context.Context, name, apiKey, model, baseURL string) (*GeminiProvider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating Gemini client: %w", err)
	}
	return &GeminiProvider{providerName: name, model: model, client: client}, nil
}

// Name returns the configured provider name.
func (p *GeminiProvider) Name() string {
	return p.providerName
}

// Complete sends one GenerateContent request.
func (p *GeminiProvider) Complete(ctx context.Context, req Request) (string, error) {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.model, genai.Text(req.User), cfg)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return "", classify(p.providerName, apiErr.Code, apiErr.Message)
		}
		return "", &ProviderError{Provider: p.providerName, Kind: KindRetriable, Err: err}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" &&
		resp.PromptFeedback.BlockReason != genai.BlockedReasonUnspecified {
		return "", &ProviderError{Provider: p.providerName, Kind: KindSafetyBlocked,
			Err: fmt.Errorf("prompt blocked: %s", resp.PromptFeedback.BlockReason)}
	}
	for _, c := range resp.Candidates {
		if c.FinishReason == genai.FinishReasonSafety || c.FinishReason == genai.FinishReasonProhibitedContent {
			return "", &ProviderError{Provider: p.providerName, Kind: KindSafetyBlocked,
				Err: fmt.Errorf("candidate finished with %s", c.FinishReason)}
		}
	}

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", &ProviderError{Provider: p.providerName, Kind: KindFatal, Err: errors.New("empty response")}
	}
	return text, nil
}
