// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package jsonx recovers JSON values from free-form model output.
//
// Find applies a fixed priority of strategies and stops at the first that
// yields valid JSON:
//
//  1. direct parse of the cleaned text (reasoning blocks and code fences removed)
//  2. the first balanced {...} or [...] block, string-aware
//  3. truncation repair: drop dangling commas, close open strings and brackets
//
// When all strategies fail Find returns ErrNoJSON.
package jsonx

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no strategy recovers a JSON value.
var ErrNoJSON = errors.New("no JSON value found")

var (
	thinkPattern         = regexp.MustCompile(`(?is)<think>.*?</think>`)
	reasoningPattern     = regexp.MustCompile(`(?is)<reasoning>.*?</reasoning>`)
	fencePattern         = regexp.MustCompile("(?s)```(?:json|JSON)?\\s*(.*?)\\s*```")
	trailingCommaPattern = regexp.MustCompile(`,\s*([}\]])`)
)

// Clean removes reasoning blocks and unwraps the first fenced code block.
// Text without fences is returned trimmed.
func Clean(text string) string {
	s := thinkPattern.ReplaceAllString(text, "")
	s = reasoningPattern.ReplaceAllString(s, "")
	if m := fencePattern.FindStringSubmatch(s); m != nil {
		return strings.TrimSpace(m[1])
	}
	return strings.TrimSpace(s)
}

// Find returns the first JSON value recoverable from text.
func Find(text string) (json.RawMessage, error) {
	cleaned := Clean(text)
	if cleaned == "" {
		return nil, ErrNoJSON
	}

	if json.Valid([]byte(cleaned)) && isContainer(cleaned) {
		return json.RawMessage(cleaned), nil
	}

	// Fences sometimes wrap prose; retry on the raw text as well.
	for _, candidate := range []string{cleaned, text} {
		if block, ok := balancedBlock(candidate); ok {
			if json.Valid([]byte(block)) {
				return json.RawMessage(block), nil
			}
			if fixed := trailingCommaPattern.ReplaceAllString(block, "$1"); json.Valid([]byte(fixed)) {
				return json.RawMessage(fixed), nil
			}
		}
	}

	if repaired, ok := Repair(cleaned); ok {
		return json.RawMessage(repaired), nil
	}
	return nil, ErrNoJSON
}

// Decode finds a JSON value in text and unmarshals it into v.
func Decode(text string, v any) error {
	raw, err := Find(text)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}

// Object finds a JSON object in text. A top-level array is rejected.
func Object(text string) (map[string]any, error) {
	var m map[string]any
	if err := Decode(text, &m); err != nil {
		return nil, err
	}
	if m == nil {
		return nil, ErrNoJSON
	}
	return m, nil
}

// String returns the first non-empty string value among keys.
func String(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func isContainer(s string) bool {
	return strings.HasPrefix(s, "{") || strings.HasPrefix(s, "[")
}

// balancedBlock returns the first complete {...} or [...] block in s.
func balancedBlock(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}

	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) == 0 {
				return "", false
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

// Repair closes a JSON value cut off mid-stream. When closing the text as-is
// does not parse (for example a key without a value), trailing members are
// dropped one comma at a time. It returns false when nothing parses.
func Repair(s string) (string, bool) {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return "", false
	}
	prefix := strings.TrimRight(s[start:], " \t\r\n")

	for attempt := 0; attempt < 8 && prefix != ""; attempt++ {
		candidate := closeOpen(prefix)
		if json.Valid([]byte(candidate)) {
			return candidate, true
		}
		cut := strings.LastIndex(prefix, ",")
		if cut <= 0 {
			break
		}
		prefix = prefix[:cut]
	}
	return "", false
}

// closeOpen appends whatever quotes and brackets are needed to balance s.
func closeOpen(s string) string {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, c)
		case '}', ']':
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		}
	}

	out := s
	if escaped {
		out = out[:len(out)-1]
	}
	if inString {
		out += `"`
	}
	out = strings.TrimRight(out, " \t\r\n")
	out = strings.TrimSuffix(out, ",")
	out = strings.TrimSuffix(out, ":")
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == '{' {
			out += "}"
		} else {
			out += "]"
		}
	}
	return trailingCommaPattern.ReplaceAllString(out, "$1")
}
