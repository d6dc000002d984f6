// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// KeySource looks up a provider credential by provider name.
// secrets.Secrets implements it.
type KeySource interface {
	APIKey(provider string) string
}

// Resolve builds a Client from cfg. The primary is the first provider in
// cfg.Preference that has a credential; fallbacks without a credential, and
// fallbacks equal to the primary, are skipped. Every provider is wrapped
// with the retry policy.
func Resolve(ctx context.Context, cfg types.LLMConfig, keys KeySource) (*Client, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	build := func(name string) (Provider, bool) {
		pc := cfg.Providers[name]
		key := pc.APIKey
		if key == "" && keys != nil {
			key = keys.APIKey(name)
		}
		if key == "" {
			return nil, false
		}
		p, err := newProvider(ctx, name, pc, key, cfg.UserAgent, httpClient)
		if err != nil {
			logx.Warn().Err(err).Str("provider", name).Msg("skipping provider")
			return nil, false
		}
		return WithRetry(p, cfg.Retry), true
	}

	var primary Provider
	primaryName := ""
	for _, name := range cfg.Preference {
		if p, ok := build(name); ok {
			primary, primaryName = p, name
			break
		}
	}
	if primary == nil {
		return nil, ErrNoProvider
	}

	fallbacks := func(names []string) []Provider {
		var out []Provider
		for _, name := range names {
			if name == primaryName {
				continue
			}
			if p, ok := build(name); ok {
				out = append(out, p)
			}
		}
		return out
	}

	client := NewClient(primary, fallbacks(cfg.GeneralFallbacks), fallbacks(cfg.SensitiveFallbacks), cfg)
	logx.Info().Strs("providers", client.Model()).Msg("LLM client resolved")
	return client, nil
}

// kindFor infers the wire protocol for a provider name when the config
// entry does not set one.
func kindFor(name string, pc types.ProviderConfig) types.ProviderKind {
	if pc.Kind != "" {
		return pc.Kind
	}
	switch name {
	case "anthropic", "claude":
		return types.ProviderAnthropic
	case "gemini", "google":
		return types.ProviderGemini
	}
	return types.ProviderOpenAI
}

func newProvider(ctx context.Context, name string, pc types.ProviderConfig, key, userAgent string, httpClient *http.Client) (Provider, error) {
	model := pc.Model
	if model == "" {
		model = defaultModels[name]
	}

	switch kindFor(name, pc) {
	case types.ProviderAnthropic:
		if model == "" {
			model = defaultModels["anthropic"]
		}
		return &AnthropicProvider{ProviderName: name, APIKey: key, Model: model, UserAgent: userAgent, Client: httpClient}, nil
	case types.ProviderGemini:
		if model == "" {
			model = defaultModels["gemini"]
		}
		return NewGeminiProvider(ctx, name, key, model, pc.BaseURL)
	case types.ProviderOpenAI:
		base := pc.BaseURL
		if base == "" {
			base = defaultBaseURLs[name]
		}
		if base == "" {
			return nil, fmt.Errorf("provider %s has no base_url", name)
		}
		if model == "" {
			return nil, fmt.Errorf("provider %s has no model", name)
		}
		return &OpenAIProvider{ProviderName: name, BaseURL: base, APIKey: key, Model: model, UserAgent: userAgent, Client: httpClient}, nil
	}
	return nil, fmt.Errorf("provider %s: unknown kind %q", name, pc.Kind)
}
