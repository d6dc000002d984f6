// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"regexp"
	"strings"
)

const maxTitleRunes = 120

var (
	primaryQueryLine = regexp.MustCompile(`(?mi)^\s*primary_query\s*[:：]\s*(.+)$`)
	scaffoldHead     = regexp.MustCompile(`(?i)^#\s*(关于|about\b)`)
	scaffoldTail     = regexp.MustCompile(`(?i)(深度研究报告|deep[- ]research report)`)
	titleQuotes      = strings.NewReplacer(`"`, "", "'", "", "“", "", "”", "", "‘", "", "’", "", "「", "", "」", "", "《", "", "》", "")
)

// cleanTitle flattens whitespace and strips quote marks.
func cleanTitle(s string) string {
	return strings.TrimSpace(titleQuotes.Replace(strings.Join(strings.Fields(s), " ")))
}

// deriveTitle picks the document title from a query that may carry
// upstream scaffolding: an explicit primary_query line wins, then the
// first line under a [User request] block, then the first non-empty line.
func deriveTitle(query string) string {
	if m := primaryQueryLine.FindStringSubmatch(query); m != nil {
		if t := cleanTitle(m[1]); t != "" {
			return clipRunes(t, maxTitleRunes)
		}
	}

	lines := strings.Split(query, "\n")
	for i, l := range lines {
		if strings.TrimSpace(l) != "[User request]" {
			continue
		}
		for _, next := range lines[i+1:] {
			if t := cleanTitle(next); t != "" {
				return clipRunes(t, maxTitleRunes)
			}
		}
	}
	for _, l := range lines {
		t := strings.TrimSpace(strings.TrimLeft(cleanTitle(l), "#"))
		if t != "" && !strings.HasPrefix(t, "[") {
			return clipRunes(t, maxTitleRunes)
		}
	}
	return "Research report"
}

// normalizeDraft replaces a scaffold head such as
//
//	# About X
//	- point
//	- point
//	X deep research report
//
// with a single "# title: deep research report" line. Drafts without that
// head are returned unchanged.
func normalizeDraft(title, draft string) string {
	lines := strings.Split(draft, "\n")
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start == len(lines) || !scaffoldHead.MatchString(strings.TrimSpace(lines[start])) {
		return draft
	}

	end := start + 1
	if !scaffoldTail.MatchString(lines[start]) {
		j := start + 1
		for j < len(lines) {
			l := strings.TrimSpace(lines[j])
			if l == "" || strings.HasPrefix(l, "- ") {
				j++
				continue
			}
			break
		}
		if j == len(lines) || !scaffoldTail.MatchString(lines[j]) {
			return draft
		}
		end = j + 1
	}

	head := "# " + title + ": deep research report"
	rest := strings.TrimLeft(strings.Join(lines[end:], "\n"), "\n")
	if rest == "" {
		return head + "\n"
	}
	return head + "\n\n" + rest
}
