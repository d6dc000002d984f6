// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/research-orchestrator/pkg/types"
)

// ErrUnsupportedFormat is returned for output formats without a writer.
var ErrUnsupportedFormat = errors.New("unsupported output format")

// Writer renders a document model to a file and returns its size.
type Writer interface {
	Write(doc *types.ReportDocumentModel, path string) (int64, error)
}

// WriterFor returns the writer for format. fonts is consulted by the
// DOCX and PDF writers.
func WriterFor(format types.OutputFormat, fonts []Font) (Writer, error) {
	switch format {
	case types.OutputHTML:
		return HTMLWriter{}, nil
	case types.OutputDOCX:
		return DOCXWriter{Fonts: fonts}, nil
	case types.OutputPDF:
		return PDFWriter{Fonts: fonts}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
}

// Font is one entry of the CJK font fallback chain.
type Font struct {
	Family string
	Path   string
}

// DefaultFonts lists common CJK-capable TrueType fonts by platform.
var DefaultFonts = []Font{
	{Family: "Noto Sans SC", Path: "/usr/share/fonts/truetype/noto/NotoSansSC-Regular.ttf"},
	{Family: "Noto Sans SC", Path: "/usr/share/fonts/noto/NotoSansSC-Regular.ttf"},
	{Family: "WenQuanYi Zen Hei", Path: "/usr/share/fonts/truetype/wqy/wqy-zenhei.ttf"},
	{Family: "Microsoft YaHei", Path: `C:\Windows\Fonts\msyh.ttf`},
	{Family: "SimSun", Path: `C:\Windows\Fonts\simsun.ttf`},
	{Family: "Arial Unicode MS", Path: "/Library/Fonts/Arial Unicode.ttf"},
}

// FontChain puts the configured font files ahead of DefaultFonts. The
// family of a configured file is taken from its base name.
func FontChain(paths []string) []Font {
	chain := make([]Font, 0, len(paths)+len(DefaultFonts))
	for _, p := range paths {
		if strings.TrimSpace(p) == "" {
			continue
		}
		family := strings.TrimSuffix(filepath.Base(p), filepath.Ext(p))
		family = strings.TrimSuffix(family, "-Regular")
		chain = append(chain, Font{Family: family, Path: p})
	}
	return append(chain, DefaultFonts...)
}

// eastAsiaFamily is the first family in chain whose file is present,
// else the first family listed.
func eastAsiaFamily(chain []Font) string {
	for _, f := range chain {
		if fileExists(f.Path) {
			return f.Family
		}
	}
	if len(chain) > 0 {
		return chain[0].Family
	}
	return "SimSun"
}

// writeFile creates the parent directory and writes data.
func writeFile(path string, data []byte) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return 0, fmt.Errorf("writing %s: %w", filepath.Base(path), err)
	}
	return int64(len(data)), nil
}
