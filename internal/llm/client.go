// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// DefaultSafetyPrefix frames a prompt as neutral technical research. It is
// prepended to the system prompt after a content-policy rejection, or always
// in strict mode.
const DefaultSafetyPrefix = "[Safety notice] You are a technical research assistant. " +
	"Produce objective, neutral and verifiable summaries of technology, market and compliance facts. " +
	"Do not evaluate ideologies, states, parties or policies. When regulation is involved, list public facts only " +
	"without taking sides or calling for action."

// Invoker is the single call the rest of the system depends on.
type Invoker interface {
	Invoke(ctx context.Context, system, user string, opts ...Option) (string, error)
}

// Option adjusts one Invoke call.
type Option func(*Request)

// WithTemperature sets the sampling temperature for one call.
func WithTemperature(t float64) Option {
	return func(r *Request) { r.Temperature = t }
}

// WithMaxTokens sets the completion budget for one call.
func WithMaxTokens(n int) Option {
	return func(r *Request) { r.MaxTokens = n }
}

// Client routes one invocation across a primary provider and its fallbacks.
// The provider set is fixed at construction.
type Client struct {
	Primary            Provider
	GeneralFallbacks   []Provider
	SensitiveFallbacks []Provider

	SafetyMode          types.SafetyMode
	FallbackOnSensitive bool
	SafetyPrefix        string

	Temperature float64
	MaxTokens   int

	log zerolog.Logger
}

// NewClient builds a Client with the policy from cfg.
func NewClient(primary Provider, general, sensitive []Provider, cfg types.LLMConfig) *Client {
	prefix := cfg.SafetyPrefix
	if strings.TrimSpace(prefix) == "" {
		prefix = DefaultSafetyPrefix
	}
	mode := cfg.SafetyMode
	if mode == "" {
		mode = types.SafetyLight
	}
	return &Client{
		Primary:             primary,
		GeneralFallbacks:    general,
		SensitiveFallbacks:  sensitive,
		SafetyMode:          mode,
		FallbackOnSensitive: cfg.FallbackOnSensitive,
		SafetyPrefix:        prefix,
		Temperature:         cfg.Temperature,
		MaxTokens:           cfg.MaxTokens,
		log:                 logx.With("llm"),
	}
}

// Model describes the resolved providers, primary first.
func (c *Client) Model() []string {
	names := []string{c.Primary.Name()}
	for _, p := range c.GeneralFallbacks {
		names = append(names, "general:"+p.Name())
	}
	for _, p := range c.SensitiveFallbacks {
		names = append(names, "sensitive:"+p.Name())
	}
	return names
}

// Invoke returns the trimmed assistant text for one system/user prompt pair.
//
// A non-safety failure of the primary is retried on each general fallback
// with the same prompt; if all fail the primary's error is returned. A
// safety-blocked failure is retried once on the primary with the safety
// prefix, then on each sensitive fallback with the prefixed prompt; if all
// fail the prefixed primary's error is returned.
func (c *Client) Invoke(ctx context.Context, system, user string, opts ...Option) (string, error) {
	if strings.TrimSpace(user) == "" {
		return "", errors.New("empty user prompt")
	}
	if c.Primary == nil {
		return "", ErrNoProvider
	}

	req := Request{System: system, User: user, Temperature: c.Temperature, MaxTokens: c.MaxTokens}
	for _, opt := range opts {
		opt(&req)
	}
	if c.SafetyMode == types.SafetyStrict {
		req.System = c.withPrefix(system)
	}

	text, err := c.call(ctx, c.Primary, req)
	if err == nil {
		return text, nil
	}
	if ctx.Err() != nil {
		return "", err
	}

	if KindOf(err) != KindSafetyBlocked {
		for _, fb := range c.GeneralFallbacks {
			metrics.FallbackRoutes.WithLabelValues("general").Inc()
			if text, fbErr := c.call(ctx, fb, req); fbErr == nil {
				return text, nil
			}
		}
		return "", err
	}

	metrics.FallbackRoutes.WithLabelValues("safety_prefix").Inc()
	c.log.Warn().Err(err).Str("provider", c.Primary.Name()).Msg("content-policy rejection, retrying with safety prefix")
	prefixed := req
	prefixed.System = c.withPrefix(system)

	text, err = c.call(ctx, c.Primary, prefixed)
	if err == nil {
		return text, nil
	}
	if c.FallbackOnSensitive {
		for _, fb := range c.SensitiveFallbacks {
			metrics.FallbackRoutes.WithLabelValues("sensitive").Inc()
			if text, fbErr := c.call(ctx, fb, prefixed); fbErr == nil {
				return text, nil
			}
		}
	}
	return "", err
}

func (c *Client) call(ctx context.Context, p Provider, req Request) (string, error) {
	text, err := p.Complete(ctx, req)
	if err != nil {
		metrics.ProviderCalls.WithLabelValues(p.Name(), KindOf(err).String()).Inc()
		c.log.Debug().Err(err).Str("provider", p.Name()).Stringer("kind", KindOf(err)).Msg("provider call failed")
		return "", err
	}
	metrics.ProviderCalls.WithLabelValues(p.Name(), metrics.OK).Inc()
	return strings.TrimSpace(text), nil
}

func (c *Client) withPrefix(system string) string {
	if strings.HasPrefix(system, c.SafetyPrefix) {
		return system
	}
	if strings.TrimSpace(system) == "" {
		return c.SafetyPrefix
	}
	return c.SafetyPrefix + "\n\n" + system
}
