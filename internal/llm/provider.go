// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package llm presents one Invoke call over a set of chat-completion
// providers. It hides provider selection, per-provider retry, and the
// content-policy fallback route.
//
// Provider adapters never return bare errors for remote failures: they
// return *ProviderError with a Kind so the client routes on KindOf(err)
// rather than on message text.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Request is one chat-completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Provider abstracts a chat-completion API so tests can supply a mock.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// ErrNoProvider is returned when no configured provider has a credential.
var ErrNoProvider = errors.New("no LLM provider with a credential is configured")

// Kind classifies a provider failure.
type Kind int

const (
	// KindFatal is any failure that is neither transient nor a content-policy rejection.
	KindFatal Kind = iota
	// KindRetriable is a rate-limit or transient server failure.
	KindRetriable
	// KindSafetyBlocked is a content-policy rejection.
	KindSafetyBlocked
)

func (k Kind) String() string {
	switch k {
	case KindRetriable:
		return "retriable"
	case KindSafetyBlocked:
		return "safety_blocked"
	}
	return "fatal"
}

// ProviderError is the classified outcome of a failed provider call.
type ProviderError struct {
	Provider   string
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (%s, HTTP %d): %v", e.Provider, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s (%s): %v", e.Provider, e.Kind, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// KindOf returns the classification carried by err. Unclassified errors,
// including context cancellation, are fatal.
func KindOf(err error) Kind {
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFatal
}

// safetySignals are substrings that mark a content-policy rejection in a
// provider error body or message.
var safetySignals = []string{
	"contentFilter",
	"content_filter",
	"1301",
	"不安全或敏感",
	"content policy",
}

var rateLimitSignals = []string{
	"rate limit",
	"rate_limit",
	"too many requests",
	"overloaded",
}

// classify builds a ProviderError from an HTTP status and the response body
// or error message.
func classify(provider string, status int, detail string) *ProviderError {
	kind := KindFatal
	lower := strings.ToLower(detail)
	switch {
	case containsAny(detail, safetySignals):
		kind = KindSafetyBlocked
	case status == http.StatusTooManyRequests,
		status == http.StatusInternalServerError,
		status == http.StatusBadGateway,
		status == http.StatusServiceUnavailable,
		status == http.StatusGatewayTimeout,
		containsAny(lower, rateLimitSignals):
		kind = KindRetriable
	}
	return &ProviderError{
		Provider:   provider,
		Kind:       kind,
		StatusCode: status,
		Err:        errors.New(strings.TrimSpace(detail)),
	}
}

// transportError classifies an error returned before any HTTP status was seen.
func transportError(ctx context.Context, provider string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return &ProviderError{Provider: provider, Kind: KindRetriable, Err: err}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
