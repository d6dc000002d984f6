// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	xhtml "golang.org/x/net/html"

	"github.com/pdiddy/research-orchestrator/internal/llm"
	"github.com/pdiddy/research-orchestrator/internal/metrics"
)

// Fallback reasons reported in Result.Fallback and the report fallback metric.
const (
	FallbackForceLocal = "force_local"
	FallbackEmptyInput = "empty_input"
	FallbackTimeout    = "timeout"
	FallbackLLMError   = "llm_error"
)

// PlaceholderText fills a section heading that has no body.
const PlaceholderText = "This section is awaiting content: no supporting material was collected for it."

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

var (
	markdownSyntax = regexp.MustCompile(`(?m)^(#{1,6}\s|[-*+]\s|\d+\.\s|` + "```" + `)|\[[^\]\n]+\]\([^)\n]+\)|\*\*[^*\n]+\*\*`)
	htmlFragment   = regexp.MustCompile(`(?i)<(h[1-6]|p|div|section|article|ul|ol|table)\b`)
	openFence      = regexp.MustCompile("^```[A-Za-z]*[ \t]*\n?")
	closeFence     = regexp.MustCompile("\n?```\\s*$")
	outlineHeading = regexp.MustCompile(`(?m)^(#{1,3})[ \t]+(.+?)[ \t]*#*[ \t]*$`)
)

// renderHTML produces the HTML document and, when a local path was taken
// instead of the model's answer, the fallback reason.
func (e *Engine) renderHTML(ctx context.Context, query, title string, sel Selection, src Sources) (string, string) {
	var doc, reason string
	switch {
	case src.empty():
		doc, reason = skeletonHTML(title, sel.Content), FallbackEmptyInput
	case e.cfg.ForceLocal || e.llm == nil:
		doc, reason = localHTML(query, title, src), FallbackForceLocal
	default:
		out, err := e.generate(ctx, firstNonEmpty(query, title), sel.Content, src)
		if err != nil {
			reason = FallbackLLMError
			if errors.Is(err, context.DeadlineExceeded) {
				reason = FallbackTimeout
			}
			e.log.Warn().Err(err).Str("reason", reason).Msg("html generation failed, using plain-text fallback")
			doc = preHTML(query, title, src.best(""))
		} else {
			doc = classify(out, title)
		}
	}
	if reason != "" {
		metrics.ReportFallbacks.WithLabelValues(reason).Inc()
	}
	return ensureNonEmptySections(doc), reason
}

// generate calls the model under the hard timeout. The call runs in its
// own goroutine so a provider that ignores cancellation cannot hold the
// turn past the deadline.
func (e *Engine) generate(ctx context.Context, query, outline string, src Sources) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.Timeout)
	defer cancel()

	type answer struct {
		text string
		err  error
	}
	ch := make(chan answer, 1)
	user := htmlUser(query, outline, src)
	go func() {
		text, err := e.llm.Invoke(ctx, htmlSystem, user, llm.WithMaxTokens(htmlMaxTokens))
		ch <- answer{text, err}
	}()

	select {
	case a := <-ch:
		if a.err != nil {
			return "", a.err
		}
		if strings.TrimSpace(a.text) == "" {
			return "", fmt.Errorf("model returned an empty document")
		}
		return a.text, nil
	case <-ctx.Done():
		return "", fmt.Errorf("html generation: %w", ctx.Err())
	}
}

// classify turns the model's answer into a full document: HTML is kept,
// fragments are wrapped, Markdown is converted and anything else is shown
// preformatted.
func classify(out, title string) string {
	clean := stripFences(out)
	switch {
	case looksLikeHTML(clean):
		return clean
	case htmlFragment.MatchString(clean) && !markdownSyntax.MatchString(clean):
		return wrapHTML(clean, title)
	case looksLikeMarkdown(clean):
		return wrapHTML(markdownToHTML(clean), title)
	default:
		return wrapHTML("<pre>"+xhtml.EscapeString(clean)+"</pre>", title)
	}
}

// stripFences unwraps an answer that is entirely one fenced block.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !openFence.MatchString(s) {
		return s
	}
	s = openFence.ReplaceAllString(s, "")
	return strings.TrimSpace(closeFence.ReplaceAllString(s, ""))
}

func looksLikeHTML(s string) bool {
	l := strings.ToLower(s)
	return strings.Contains(l, "<html") && strings.Contains(l, "</html>")
}

func looksLikeMarkdown(s string) bool {
	return s != "" && markdownSyntax.MatchString(s)
}

// markdownToHTML renders Markdown with GitHub extensions (tables,
// strikethrough, autolinks).
func markdownToHTML(md string) string {
	var buf bytes.Buffer
	if err := markdown.Convert([]byte(md), &buf); err != nil {
		return "<pre>" + xhtml.EscapeString(md) + "</pre>"
	}
	return buf.String()
}

// localHTML renders the best material without the model.
func localHTML(query, title string, src Sources) string {
	text := src.best("")
	if looksLikeMarkdown(text) {
		return wrapHTML(markdownToHTML(text), title)
	}
	return preHTML(query, title, text)
}

// preHTML is the minimal fallback document. The topic line carries the
// raw query, falling back to the title, even when material is present.
func preHTML(query, title, text string) string {
	body := "topic: " + firstNonEmpty(query, title)
	if t := strings.TrimSpace(text); t != "" && t != body {
		body += "\n\n" + t
	}
	return wrapHTML(
		"<h1>"+xhtml.EscapeString(title)+"</h1>\n<pre style=\"white-space:pre-wrap\">"+xhtml.EscapeString(body)+"</pre>",
		title,
	)
}

// skeletonHTML lays out the template's headings under the title when there
// is no material at all.
func skeletonHTML(title, outline string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<h1>%s</h1>\n", xhtml.EscapeString(title))
	headings := outlineHeading.FindAllStringSubmatch(outline, -1)
	if len(headings) == 0 {
		headings = outlineHeading.FindAllStringSubmatch(GenericOutline, -1)
	}
	for i, h := range headings {
		level := len(h[1])
		if level == 1 && i == 0 {
			continue
		}
		tag := "h2"
		if level == 3 {
			tag = "h3"
		}
		fmt.Fprintf(&b, "<%s>%s</%s>\n<p class=\"placeholder\">%s</p>\n", tag, xhtml.EscapeString(h[2]), tag, PlaceholderText)
	}
	return wrapHTML(b.String(), title)
}

const pageStyle = `body{font-family:-apple-system,"Segoe UI","Noto Sans CJK SC","Microsoft YaHei",sans-serif;max-width:960px;margin:2rem auto;padding:0 1rem;line-height:1.7;color:#222}
h1{font-size:1.9rem;border-bottom:2px solid #eee;padding-bottom:.4rem}
h2{font-size:1.4rem;margin-top:2rem;border-bottom:1px solid #f0f0f0}
h3{font-size:1.15rem}
table{border-collapse:collapse;width:100%}
th,td{border:1px solid #ddd;padding:.4rem .6rem;text-align:left}
pre,code{background:#f7f7f7;border-radius:4px}
pre{padding:.8rem;overflow:auto}
.placeholder{color:#888;font-style:italic}`

// wrapHTML embeds body in a self-contained UTF-8 document.
func wrapHTML(body, title string) string {
	return "<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n<title>" + xhtml.EscapeString(title) +
		"</title>\n<style>\n" + pageStyle + "\n</style>\n</head>\n<body>\n" + body + "\n</body>\n</html>\n"
}

// ensureNonEmptySections puts a placeholder paragraph under every <h2>
// that has no text before the next h1/h2 or the end of its container.
// Documents that need no change are returned as given.
func ensureNonEmptySections(doc string) string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return doc
	}
	changed := false
	d.Find("h2").Each(func(_ int, s *goquery.Selection) {
		if hasBody(s.Nodes[0]) {
			return
		}
		s.AfterHtml(`<p class="placeholder">` + PlaceholderText + `</p>`)
		changed = true
	})
	if !changed {
		return doc
	}
	out, err := d.Html()
	if err != nil {
		return doc
	}
	return out
}

func hasBody(n *xhtml.Node) bool {
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		switch sib.Type {
		case xhtml.TextNode:
			if strings.TrimSpace(sib.Data) != "" {
				return true
			}
		case xhtml.ElementNode:
			if sib.Data == "h1" || sib.Data == "h2" {
				return false
			}
			if sib.Data == "img" || sib.Data == "table" || strings.TrimSpace(nodeText(sib)) != "" {
				return true
			}
		}
	}
	return false
}

func nodeText(n *xhtml.Node) string {
	if n.Type == xhtml.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
	}
	return b.String()
}

// Outline returns the text of every <h2> in doc.
func Outline(doc string) []string {
	d, err := goquery.NewDocumentFromReader(strings.NewReader(doc))
	if err != nil {
		return nil
	}
	var out []string
	d.Find("h2").Each(func(_ int, s *goquery.Selection) {
		if t := strings.TrimSpace(s.Text()); t != "" {
			out = append(out, t)
		}
	})
	return out
}
