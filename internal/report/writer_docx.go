// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"strings"

	docx "github.com/fumiama/go-docx"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// DOCXWriter writes a Word document. East Asian runs use the first
// available family from Fonts.
type DOCXWriter struct {
	Fonts []Font
}

// Run sizes in half-points.
const (
	docxTitleSize    = "40"
	docxSubtitleSize = "28"
	docxHeadingSize  = "32"
	docxBodySize     = "22"
)

const docxLatinFont = "Calibri"

// Write renders doc to path.
func (w DOCXWriter) Write(doc *types.ReportDocumentModel, path string) (int64, error) {
	d := docxDoc{file: docx.New().WithDefaultTheme(), eastAsia: eastAsiaFamily(w.Fonts)}

	d.text(doc.Meta.Title, docxTitleSize).Bold()
	if doc.Meta.Subtitle != "" {
		d.text(doc.Meta.Subtitle, docxSubtitleSize)
	}
	if line := joinNonEmpty(" · ", doc.Meta.Author, doc.Meta.Date); line != "" {
		d.text(line, docxBodySize).Italic()
	}

	for _, s := range doc.Sections {
		d.text(s.Title, docxHeadingSize).Bold()
		for _, p := range s.Paragraphs {
			d.text(p, docxBodySize)
		}
		for _, item := range s.Bullets {
			d.text("• "+item, docxBodySize)
		}
		for _, t := range s.Tables {
			d.table(t)
		}
		for _, f := range s.Figures {
			d.text("[Figure] "+firstNonEmpty(f.Caption, f.Path), docxBodySize).Italic()
		}
	}

	if len(doc.References) > 0 {
		d.text("References", docxHeadingSize).Bold()
		for i, r := range doc.References {
			d.text(fmt.Sprintf("[%d] %s", i+1, r), docxBodySize)
		}
	}
	d.file.WithA4Page()

	var buf bytes.Buffer
	if _, err := d.file.WriteTo(&buf); err != nil {
		return 0, fmt.Errorf("packing docx: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

type docxDoc struct {
	file     *docx.Docx
	eastAsia string
}

// text adds one paragraph holding a single run.
func (d docxDoc) text(s, size string) *docx.Run {
	return d.run(d.file.AddParagraph(), s, size)
}

func (d docxDoc) run(p *docx.Paragraph, s, size string) *docx.Run {
	return p.AddText(s).Size(size).Font(docxLatinFont, d.eastAsia, docxLatinFont, "eastAsia")
}

// table adds t with a bold header row, then an empty spacer paragraph.
func (d docxDoc) table(t types.TableData) {
	rows := t.Rows
	if len(t.Headers) > 0 {
		rows = append([][]string{t.Headers}, rows...)
	}
	cols := 0
	for _, r := range rows {
		cols = max(cols, len(r))
	}
	if cols == 0 {
		return
	}

	tbl := d.file.AddTable(len(rows), cols, 0, nil)
	for i, r := range rows {
		for j, cell := range tbl.TableRows[i].TableCells {
			text := ""
			if j < len(r) {
				text = strings.TrimSpace(r[j])
			}
			run := d.run(cell.AddParagraph(), text, docxBodySize)
			if i == 0 && len(t.Headers) > 0 {
				run.Bold()
			}
		}
	}
	d.file.AddParagraph()
}
