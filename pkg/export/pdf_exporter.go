package export

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/jung-kurt/gofpdf"
)

const (
	pdfCoreFont   = "Arial"
	pdfUTF8Font   = "Body"
	pdfPageWidth  = 277.0 // A4 landscape minus margins
	pdfLabelWidth = 18.0
)

// PDFExporter renders a weekly grid followed by the course list.
type PDFExporter struct {
	fontPath string
}

// NewPDFExporter constructs a PDF exporter. fontPath names a TTF with Hangul glyphs; without it the
// core font is used and non-Latin text is not rendered.
func NewPDFExporter(fontPath string) *PDFExporter {
	return &PDFExporter{fontPath: fontPath}
}

// Render creates a landscape PDF with an optional weekly grid and the dataset as a table.
func (e *PDFExporter) Render(data Dataset, grid *Grid) ([]byte, error) {
	if len(data.Headers) == 0 {
		return nil, fmt.Errorf("pdf requires at least one header")
	}
	pdf := gofpdf.New("L", "mm", "A4", "")
	pdf.SetMargins(10, 12, 10)
	family := pdfCoreFont
	if e.fontPath != "" {
		pdf.AddUTF8Font(pdfUTF8Font, "", e.fontPath)
		family = pdfUTF8Font
	}
	bold := "B"
	if family == pdfUTF8Font {
		bold = ""
	}
	pdf.AddPage()

	if data.Title != "" {
		pdf.SetFont(family, bold, 14)
		pdf.CellFormat(0, 10, data.Title, "", 1, "C", false, 0, "")
		pdf.Ln(3)
	}

	if grid != nil && len(grid.Columns) > 0 {
		colWidth := (pdfPageWidth - pdfLabelWidth) / float64(len(grid.Columns))
		pdf.SetFont(family, bold, 9)
		pdf.CellFormat(pdfLabelWidth, 7, "", "1", 0, "C", false, 0, "")
		for _, col := range grid.Columns {
			pdf.CellFormat(colWidth, 7, col, "1", 0, "C", false, 0, "")
		}
		pdf.Ln(-1)

		pdf.SetFont(family, "", 7)
		for r, label := range grid.Rows {
			pdf.CellFormat(pdfLabelWidth, 9, label, "1", 0, "C", false, 0, "")
			for c := range grid.Columns {
				text := strings.ReplaceAll(grid.At(r, c), "\n", " / ")
				pdf.CellFormat(colWidth, 9, text, "1", 0, "C", false, 0, "")
			}
			pdf.Ln(-1)
		}
		pdf.Ln(6)
	}

	pdf.SetFont(family, bold, 9)
	colWidth := pdfPageWidth / float64(len(data.Headers))
	for _, header := range data.Headers {
		pdf.CellFormat(colWidth, 8, header, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont(family, "", 8)
	for _, row := range data.Rows {
		for _, header := range data.Headers {
			pdf.CellFormat(colWidth, 7, row[header], "1", 0, "", false, 0, "")
		}
		pdf.Ln(-1)
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
