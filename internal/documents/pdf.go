package documents

import (
	"bytes"
	"fmt"

	"github.com/jung-kurt/gofpdf"
)

// renderPDF produces the printable form of an issued document.
func renderPDF(doc *Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 12, doc.Title, "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	pdf.MultiCell(0, 6, doc.Content, "", "L", false)
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "I", 9)
	pdf.CellFormat(0, 5, fmt.Sprintf("Document ID: %s", doc.ID), "", 1, "L", false, 0, "")
	pdf.CellFormat(0, 5, fmt.Sprintf("Status: %s", doc.Status), "", 1, "L", false, 0, "")
	if doc.IssuedDate != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Issued: %s", doc.IssuedDate.Format("2006-01-02")), "", 1, "L", false, 0, "")
	}
	if doc.ValidUntil != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Valid until: %s", doc.ValidUntil.Format("2006-01-02")), "", 1, "L", false, 0, "")
	}
	if doc.LedgerTxID != nil {
		pdf.CellFormat(0, 5, fmt.Sprintf("Ledger attestation: %s", *doc.LedgerTxID), "", 1, "L", false, 0, "")
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render pdf: %w", err)
	}
	return buf.Bytes(), nil
}
