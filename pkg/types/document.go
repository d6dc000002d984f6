// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// OutputFormat selects the report output family.
type OutputFormat string

const (
	OutputHTML OutputFormat = "html"
	OutputDOCX OutputFormat = "docx"
	OutputPDF  OutputFormat = "pdf"
)

// ParseOutputFormat maps a free-form value to a known format, defaulting to HTML.
func ParseOutputFormat(s string) OutputFormat {
	switch OutputFormat(s) {
	case OutputDOCX, OutputPDF:
		return OutputFormat(s)
	}
	return OutputHTML
}

// Ext returns the file extension for the format, including the dot.
func (f OutputFormat) Ext() string {
	switch f {
	case OutputDOCX:
		return ".docx"
	case OutputPDF:
		return ".pdf"
	}
	return ".html"
}

// DocumentMeta is the document header.
type DocumentMeta struct {
	Title    string `json:"title" yaml:"title"`
	Subtitle string `json:"subtitle,omitempty" yaml:"subtitle,omitempty"`
	Author   string `json:"author,omitempty" yaml:"author,omitempty"`
	Date     string `json:"date,omitempty" yaml:"date,omitempty"`
}

// TableData is a simple header + rows table.
type TableData struct {
	Headers []string   `json:"headers" yaml:"headers"`
	Rows    [][]string `json:"rows" yaml:"rows"`
}

// Figure references an image on disk.
type Figure struct {
	Path    string `json:"path" yaml:"path"`
	Caption string `json:"caption,omitempty" yaml:"caption,omitempty"`
	WidthPx int    `json:"width_px,omitempty" yaml:"width_px,omitempty"`
}

// Section is one titled block of a document.
type Section struct {
	Title      string      `json:"title" yaml:"title"`
	Paragraphs []string    `json:"paragraphs,omitempty" yaml:"paragraphs,omitempty"`
	Bullets    []string    `json:"bullets,omitempty" yaml:"bullets,omitempty"`
	Tables     []TableData `json:"tables,omitempty" yaml:"tables,omitempty"`
	Figures    []Figure    `json:"figures,omitempty" yaml:"figures,omitempty"`
}

// ReportDocumentModel is the structured input to document writers.
type ReportDocumentModel struct {
	Meta       DocumentMeta `json:"meta" yaml:"meta"`
	Sections   []Section    `json:"sections" yaml:"sections"`
	References []string     `json:"references,omitempty" yaml:"references,omitempty"`
}
