// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package memory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

const (
	defaultTimeout = 5 * time.Second
	snippetRunes   = 400
)

// Gateway is the pipeline's view of long-term memory. A Gateway with a nil
// store is disabled: Query returns "" and AddConversation returns false.
type Gateway struct {
	store      Store
	timeout    time.Duration
	maxResults int
	profile    string
	log        zerolog.Logger
}

// NewGateway wraps store with the limits in cfg.
func NewGateway(store Store, cfg types.MemoryConfig) *Gateway {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 5
	}
	profile := cfg.Profile
	if profile == "" {
		profile = "default"
	}
	return &Gateway{store: store, timeout: timeout, maxResults: maxResults, profile: profile, log: logx.With("memory")}
}

// Enabled reports whether a store is attached.
func (g *Gateway) Enabled() bool {
	return g != nil && g.store != nil
}

// Query returns remembered context relevant to text, or "" when nothing
// matches, the store fails, or the bounded wait expires.
func (g *Gateway) Query(ctx context.Context, profile, text string) string {
	if !g.Enabled() || strings.TrimSpace(text) == "" {
		return ""
	}
	profile = g.profileOr(profile)

	turns, err := bounded(ctx, g.timeout, func(ctx context.Context) ([]Turn, error) {
		return g.store.Search(ctx, profile, text, g.maxResults)
	})
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("query", metrics.Error).Inc()
		g.log.Warn().Err(err).Str("profile", profile).Msg("memory query failed")
		return ""
	}
	metrics.MemoryOperations.WithLabelValues("query", metrics.OK).Inc()
	return FormatContext(turns)
}

// AddConversation records one exchange. Failures are logged and reported
// as false; they never propagate.
func (g *Gateway) AddConversation(ctx context.Context, profile, user, reply string) bool {
	if !g.Enabled() || strings.TrimSpace(user) == "" || strings.TrimSpace(reply) == "" {
		return false
	}
	profile = g.profileOr(profile)

	_, err := bounded(ctx, g.timeout, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.store.Add(ctx, Turn{Profile: profile, User: user, Reply: reply})
	})
	if err != nil {
		metrics.MemoryOperations.WithLabelValues("add", metrics.Error).Inc()
		g.log.Warn().Err(err).Str("profile", profile).Msg("memory write failed")
		return false
	}
	metrics.MemoryOperations.WithLabelValues("add", metrics.OK).Inc()
	return true
}

// Store exposes the backend for export and CLI use.
func (g *Gateway) Store() Store {
	return g.store
}

func (g *Gateway) profileOr(profile string) string {
	if strings.TrimSpace(profile) == "" {
		return g.profile
	}
	return profile
}

// bounded runs fn with a deadline and stops waiting once it passes, even
// if fn ignores its context. The result channel is buffered so a late fn
// can still finish and exit.
func bounded[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("memory call abandoned: %w", ctx.Err())
	}
}

// FormatContext renders remembered turns as a prompt block.
func FormatContext(turns []Turn) string {
	if len(turns) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Relevant memory from earlier conversations:\n")
	for _, t := range turns {
		date := ""
		if !t.CreatedAt.IsZero() {
			date = "[" + t.CreatedAt.Format("2006-01-02") + "] "
		}
		fmt.Fprintf(&b, "- %sUser: %s\n  Assistant: %s\n", date, clip(t.User), clip(t.Reply))
	}
	return strings.TrimRight(b.String(), "\n")
}

func clip(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > snippetRunes {
		return string(r[:snippetRunes]) + "..."
	}
	return s
}
