// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package memory is the long-term conversation memory behind the pipeline.
// The Gateway is best-effort: reads are bounded by a timeout, and every
// failure is logged and swallowed so memory never blocks a turn.
package memory

import (
	"context"
	"strings"
	"time"
	"unicode"
)

// Turn is one remembered exchange.
type Turn struct {
	ID        string    `json:"id" yaml:"id"`
	Profile   string    `json:"profile" yaml:"profile"`
	User      string    `json:"user" yaml:"user"`
	Reply     string    `json:"reply" yaml:"reply"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
}

// Store abstracts the memory backend so tests can supply a mock.
type Store interface {
	// Add records one turn.
	Add(ctx context.Context, turn Turn) error

	// Search returns up to limit turns for profile ranked by relevance to query.
	Search(ctx context.Context, profile, query string, limit int) ([]Turn, error)

	// All returns every turn for profile, oldest first. An empty profile means all profiles.
	All(ctx context.Context, profile string) ([]Turn, error)

	Close() error
}

// searchTerms splits text into search terms. Words of letters and digits
// are kept whole; runs of CJK characters, which carry no spaces, become
// overlapping three-character windows.
func searchTerms(text string, maxTerms int) []string {
	seen := make(map[string]bool)
	var terms []string
	add := func(t string) bool {
		t = strings.ToLower(t)
		if len([]rune(t)) < 2 || seen[t] {
			return len(terms) < maxTerms
		}
		seen[t] = true
		terms = append(terms, t)
		return len(terms) < maxTerms
	}

	var word, cjk []rune
	flushWord := func() bool {
		ok := true
		if len(word) > 0 {
			ok = add(string(word))
			word = word[:0]
		}
		return ok
	}
	flushCJK := func() bool {
		ok := true
		switch {
		case len(cjk) == 0:
		case len(cjk) <= 3:
			ok = add(string(cjk))
		default:
			for i := 0; i+3 <= len(cjk) && ok; i++ {
				ok = add(string(cjk[i : i+3]))
			}
		}
		cjk = cjk[:0]
		return ok
	}

	for _, r := range text {
		switch {
		case isCJK(r):
			if !flushWord() {
				return terms
			}
			cjk = append(cjk, r)
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if !flushCJK() {
				return terms
			}
			word = append(word, r)
		default:
			if !flushWord() || !flushCJK() {
				return terms
			}
		}
	}
	flushWord()
	flushCJK()
	return terms
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r) || unicode.Is(unicode.Hiragana, r) ||
		unicode.Is(unicode.Katakana, r) || unicode.Is(unicode.Hangul, r)
}
