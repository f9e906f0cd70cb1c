package export

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// Field is one labelled block of a report document.
type Field struct {
	Label string
	Value string
}

// Document describes a single-column report such as a lesson summary.
type Document struct {
	Title    string
	Subtitle string
	Meta     []Field
	Sections []Field
	Footer   string
}

// PDFExporter renders report documents with gofpdf.
type PDFExporter struct{}

// NewPDFExporter constructs a PDF exporter.
func NewPDFExporter() *PDFExporter {
	return &PDFExporter{}
}

// Render lays out the title, a two-column metadata table and free-text sections.
func (e *PDFExporter) Render(doc Document) ([]byte, error) {
	if doc.Title == "" {
		return nil, fmt.Errorf("pdf requires a title")
	}
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(doc.Title), "", 1, "C", false, 0, "")
	if doc.Subtitle != "" {
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, tr(doc.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 10)
	for _, meta := range doc.Meta {
		pdf.SetFont("Arial", "B", 10)
		pdf.CellFormat(45, 7, tr(meta.Label), "1", 0, "", false, 0, "")
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 7, tr(meta.Value), "1", 1, "", false, 0, "")
	}
	if len(doc.Meta) > 0 {
		pdf.Ln(4)
	}

	for _, section := range doc.Sections {
		if section.Value == "" {
			continue
		}
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(0, 8, tr(section.Label), "B", 1, "", false, 0, "")
		pdf.Ln(1)
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(section.Value), "", "", false)
		pdf.Ln(3)
	}

	if doc.Footer != "" {
		pdf.Ln(4)
		pdf.SetFont("Arial", "I", 8)
		pdf.CellFormat(0, 5, tr(doc.Footer), "", 1, "R", false, 0, "")
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
