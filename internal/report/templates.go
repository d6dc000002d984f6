// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-orchestrator/internal/jsonx"
)

//go:embed templates
var builtinTemplates embed.FS

const catalogFile = "templates.yaml"

// FreeForm names the selection used when no template matched.
const FreeForm = "free_form"

// GenericOutline replaces a selected template whose content is blank.
const GenericOutline = `# Research Report

## Summary
## Background
## Evidence
## Risks
## Recommendations
## References
`

// Template is one Markdown report outline.
type Template struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Content     string `yaml:"-"`
}

// Catalog is the set of templates available for selection, ordered by name.
type Catalog struct {
	templates []Template
}

type catalogMeta struct {
	Templates []Template `yaml:"templates"`
}

// LoadCatalog reads every .md file in fsys plus the optional templates.yaml
// descriptions. Templates without a description get one derived from their
// name.
func LoadCatalog(fsys fs.FS) (*Catalog, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("reading template directory: %w", err)
	}

	descriptions := make(map[string]string)
	if data, err := fs.ReadFile(fsys, catalogFile); err == nil {
		var meta catalogMeta
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", catalogFile, err)
		}
		for _, t := range meta.Templates {
			descriptions[t.Name] = t.Description
		}
	}

	c := &Catalog{}
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".md" {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading template %s: %w", e.Name(), err)
		}
		name := strings.TrimSuffix(e.Name(), ".md")
		desc := descriptions[name]
		if desc == "" {
			desc = "Report template for " + strings.NewReplacer("_", " ", "-", " ").Replace(name)
		}
		c.templates = append(c.templates, Template{Name: name, Description: desc, Content: string(data)})
	}
	sort.Slice(c.templates, func(i, j int) bool { return c.templates[i].Name < c.templates[j].Name })
	return c, nil
}

// BuiltinCatalog returns the templates compiled into the binary.
func BuiltinCatalog() *Catalog {
	sub, err := fs.Sub(builtinTemplates, "templates")
	if err != nil {
		panic(err)
	}
	c, err := LoadCatalog(sub)
	if err != nil {
		panic(err)
	}
	return c
}

// CatalogFor loads dir when it is set, else the built-in catalog.
func CatalogFor(dir string) (*Catalog, error) {
	if dir == "" {
		return BuiltinCatalog(), nil
	}
	return LoadCatalog(os.DirFS(dir))
}

// Templates returns the catalog entries.
func (c *Catalog) Templates() []Template {
	return c.templates
}

// Get returns the template called name.
func (c *Catalog) Get(name string) (Template, bool) {
	for _, t := range c.templates {
		if t.Name == name {
			return t, true
		}
	}
	return Template{}, false
}

// Selection is the outcome of template selection.
type Selection struct {
	Name    string `json:"name"`
	Content string `json:"-"`
	Reason  string `json:"reason"`
}

var (
	fintechTerm  = regexp.MustCompile(`(?i)(金融科技|fintech|金融)`)
	trendTerm    = regexp.MustCompile(`(?i)(技术|发展|趋势|路线|roadmap|trend)`)
	techRouteExp = regexp.MustCompile(`(?i)(技术|tech).*(发展|趋势|路线|roadmap|trend)`)
)

const (
	fintechTemplate   = "fintech_trends"
	techRouteTemplate = "technology_route"
)

// selectTemplate walks the selection chain: hinted name, keyword rules, an
// LLM choice, then the free-form template. A blank result is replaced by
// GenericOutline so the document always has section structure.
func (e *Engine) selectTemplate(ctx context.Context, query, materials, hint string) Selection {
	sel, ok := e.byHint(hint)
	if !ok {
		sel, ok = e.byKeyword(query)
	}
	if !ok && e.llm != nil {
		sel, ok = e.byLLM(ctx, query, materials)
	}
	if !ok {
		sel = Selection{Name: FreeForm, Reason: "no template matched"}
	}

	if strings.TrimSpace(sel.Content) == "" {
		e.log.Info().Str("template", sel.Name).Msg("template content empty, using generic outline")
		sel.Content = GenericOutline
		sel.Reason = "template content empty, using generic outline"
	}
	return sel
}

func (e *Engine) byHint(hint string) (Selection, bool) {
	h := normalizeName(hint)
	if h == "" || h == "auto" {
		return Selection{}, false
	}
	for _, t := range e.catalog.Templates() {
		n := normalizeName(t.Name)
		if n == h || strings.Contains(n, h) || strings.Contains(h, n) {
			return Selection{Name: t.Name, Content: t.Content, Reason: "matched hint " + hint}, true
		}
	}
	return Selection{}, false
}

func (e *Engine) byKeyword(query string) (Selection, bool) {
	var name string
	switch {
	case fintechTerm.MatchString(query) && trendTerm.MatchString(query):
		name = fintechTemplate
	case techRouteExp.MatchString(query):
		name = techRouteTemplate
	default:
		return Selection{}, false
	}
	t, ok := e.catalog.Get(name)
	if !ok {
		return Selection{}, false
	}
	return Selection{Name: t.Name, Content: t.Content, Reason: "keyword rule"}, true
}

func (e *Engine) byLLM(ctx context.Context, query, materials string) (Selection, bool) {
	templates := e.catalog.Templates()
	if len(templates) == 0 {
		return Selection{}, false
	}
	raw, err := e.llm.Invoke(ctx, selectionSystem(templates), selectionUser(query, materials))
	if err != nil {
		e.log.Warn().Err(err).Msg("template selection call failed")
		return Selection{}, false
	}

	if m, err := jsonx.Object(jsonx.Clean(raw)); err == nil {
		name := jsonx.String(m, "template_name", "template", "name")
		if t, ok := e.catalog.Get(name); ok {
			return Selection{Name: t.Name, Content: t.Content, Reason: jsonx.String(m, "selection_reason", "reason")}, true
		}
	}
	for _, t := range templates {
		if strings.Contains(raw, t.Name) {
			return Selection{Name: t.Name, Content: t.Content, Reason: "named in model answer"}, true
		}
	}
	e.log.Warn().Str("answer", clipRunes(raw, 200)).Msg("template selection answer named no known template")
	return Selection{}, false
}

func normalizeName(s string) string {
	return strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.ToLower(strings.TrimSpace(s)))
}
