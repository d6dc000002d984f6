// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/go-pdf/fpdf"

	"github.com/pdiddy/research-orchestrator/internal/logx"
	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// PDFWriter lays out an A4 document. It embeds the first font in Fonts
// that loads and falls back to the Helvetica core font, which covers
// Latin-1 only.
type PDFWriter struct {
	Fonts []Font
}

const (
	pdfFamily    = "body"
	pdfCoreFont  = "Helvetica"
	pdfMargin    = 18.0
	pdfLine      = 6.0
	maxCellRunes = 60
)

// Write renders doc to path.
func (w PDFWriter) Write(doc *types.ReportDocumentModel, path string) (int64, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMargin, pdfMargin, pdfMargin)
	pdf.SetAutoPageBreak(true, pdfMargin)
	pdf.SetTitle(doc.Meta.Title, true)
	pdf.SetAuthor(doc.Meta.Author, true)
	pdf.SetCreator("research-orchestrator", true)

	family, tr := loadFont(pdf, w.Fonts)
	pdf.AddPage()
	pageW, _ := pdf.GetPageSize()
	width := pageW - 2*pdfMargin

	pdf.SetFont(family, "B", 20)
	pdf.MultiCell(width, 10, tr(doc.Meta.Title), "", "L", false)
	if doc.Meta.Subtitle != "" {
		pdf.SetFont(family, "", 14)
		pdf.MultiCell(width, 8, tr(doc.Meta.Subtitle), "", "L", false)
	}
	if line := joinNonEmpty(" - ", doc.Meta.Author, doc.Meta.Date); line != "" {
		pdf.SetFont(family, "", 10)
		pdf.MultiCell(width, pdfLine, tr(line), "", "L", false)
	}
	pdf.Ln(4)

	for _, s := range doc.Sections {
		pdf.SetFont(family, "B", 15)
		pdf.MultiCell(width, 9, tr(s.Title), "", "L", false)
		pdf.SetFont(family, "", 11)
		for _, p := range s.Paragraphs {
			pdf.MultiCell(width, pdfLine, tr(p), "", "L", false)
			pdf.Ln(2)
		}
		for _, item := range s.Bullets {
			pdf.SetX(pdfMargin + 4)
			pdf.MultiCell(width-4, pdfLine, tr("- "+item), "", "L", false)
		}
		for _, t := range s.Tables {
			pdfTable(pdf, t, width, family, tr)
		}
		for _, f := range s.Figures {
			pdfFigure(pdf, f, width, tr)
		}
		pdf.Ln(3)
	}

	if len(doc.References) > 0 {
		pdf.AddPage()
		pdf.SetFont(family, "B", 15)
		pdf.MultiCell(width, 9, tr("References"), "", "L", false)
		pdf.SetFont(family, "", 10)
		for i, r := range doc.References {
			pdf.MultiCell(width, pdfLine, tr(fmt.Sprintf("[%d] %s", i+1, r)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return 0, fmt.Errorf("rendering pdf: %w", err)
	}
	return writeFile(path, buf.Bytes())
}

// loadFont registers the first usable font of chain and returns its
// family with a text translator. Unusable files are skipped.
func loadFont(pdf *fpdf.Fpdf, chain []Font) (string, func(string) string) {
	log := logx.With("report")
	for _, f := range chain {
		if !strings.EqualFold(filepath.Ext(f.Path), ".ttf") || !fileExists(f.Path) {
			continue
		}
		pdf.AddUTF8Font(pdfFamily, "", f.Path)
		pdf.AddUTF8Font(pdfFamily, "B", f.Path)
		if pdf.Ok() {
			log.Debug().Str("font", f.Path).Msg("pdf font loaded")
			return pdfFamily, func(s string) string { return s }
		}
		log.Warn().Err(pdf.Error()).Str("font", f.Path).Msg("pdf font unusable")
		pdf.ClearError()
	}
	log.Warn().Msg("no CJK font found, using core font; non-Latin text will not render")
	return pdfCoreFont, pdf.UnicodeTranslatorFromDescriptor("")
}

func pdfTable(pdf *fpdf.Fpdf, t types.TableData, width float64, family string, tr func(string) string) {
	cols := len(t.Headers)
	for _, r := range t.Rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return
	}
	cw := width / float64(cols)
	row := func(cells []string, header bool) {
		style := ""
		if header {
			style = "B"
		}
		pdf.SetFont(family, style, 10)
		for i := 0; i < cols; i++ {
			text := ""
			if i < len(cells) {
				text = clipRunes(cells[i], maxCellRunes)
			}
			pdf.CellFormat(cw, 7, tr(text), "1", 0, "L", header, 0, "")
		}
		pdf.Ln(-1)
	}
	if len(t.Headers) > 0 {
		pdf.SetFillColor(240, 240, 240)
		row(t.Headers, true)
	}
	for _, r := range t.Rows {
		row(r, false)
	}
	pdf.SetFont(family, "", 11)
	pdf.Ln(3)
}

func pdfFigure(pdf *fpdf.Fpdf, f types.Figure, width float64, tr func(string) string) {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(f.Path), "."))
	if !fileExists(f.Path) || (ext != "png" && ext != "jpg" && ext != "jpeg") {
		pdf.MultiCell(width, pdfLine, tr("[Figure] "+firstNonEmpty(f.Caption, f.Path)), "", "L", false)
		return
	}
	w := width
	if f.WidthPx > 0 {
		// 96 dpi
		w = min(width, float64(f.WidthPx)*25.4/96)
	}
	pdf.ImageOptions(f.Path, pdfMargin, pdf.GetY(), w, 0, true, fpdf.ImageOptions{ReadDpi: true}, 0, "")
	if f.Caption != "" {
		pdf.MultiCell(width, pdfLine, tr(f.Caption), "", "C", false)
	}
}
