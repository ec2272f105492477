package infra

// Trace report generation using go-pdf/fpdf. One A4 page per report:
//   - batch header (number, product, quantity, holder)
//   - the stage story, farthest tier first
//   - verified claims with their coverage
// The document is written to the caller's writer; nothing is stored.

import (
	"fmt"
	"io"
	"strings"
	"time"

	"fairtrace/internal/trace"

	"github.com/go-pdf/fpdf"
)

// TraceReport is the content of a printable trace.
type TraceReport struct {
	BatchNumber int64
	ProductName string
	Quantity    string
	Unit        string
	HolderName  string
	ThemeName   string
	Stages      []trace.Stage
	Claims      []trace.ClaimRecord
	GeneratedAt time.Time
}

// GenerateTraceReport renders r as PDF into w.
func GenerateTraceReport(w io.Writer, r TraceReport) error {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	// ── Header ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 16)
	title := "Product trace"
	if r.ThemeName != "" {
		title = r.ThemeName
	}
	pdf.CellFormat(contentW, 9, tr(title), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(contentW, 6, tr(fmt.Sprintf("Batch #%d  %s  %s %s", r.BatchNumber, r.ProductName, r.Quantity, r.Unit)), "", 1, "L", false, 0, "")
	if r.HolderName != "" {
		pdf.CellFormat(contentW, 6, tr("Held by "+r.HolderName), "", 1, "L", false, 0, "")
	}
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(contentW, 5, r.GeneratedAt.UTC().Format("2006-01-02 15:04 UTC"), "", 1, "L", false, 0, "")
	pdf.Ln(3)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(4)

	// ── Stages ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, "Journey", "", 1, "L", false, 0, "")

	colStage := contentW * 0.28
	colActor := contentW * 0.32
	colProducts := contentW * 0.25
	colDate := contentW * 0.15

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colStage, 6, "Stage", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colActor, 6, "Actor", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colProducts, 6, "Products", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colDate, 6, "Date", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	if len(r.Stages) == 0 {
		pdf.CellFormat(contentW, 6, "No upstream activity recorded.", "", 1, "L", false, 0, "")
	}
	for _, st := range r.Stages {
		names := make([]string, 0, len(st.StageProducts))
		for _, p := range st.StageProducts {
			names = append(names, p.Name)
		}
		date := ""
		if st.Date != nil {
			date = st.Date.Format("2006-01-02")
		}
		pdf.CellFormat(colStage, 6, tr(truncate(st.Title, 30)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colActor, 6, tr(truncate(st.ActorName, 34)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colProducts, 6, tr(truncate(strings.Join(names, ", "), 28)), "", 0, "L", false, 0, "")
		pdf.CellFormat(colDate, 6, date, "", 1, "R", false, 0, "")
	}
	pdf.Ln(4)

	// ── Claims ───────────────────────────────────────────────────────────────
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(contentW, 7, "Claims", "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	if len(r.Claims) == 0 {
		pdf.CellFormat(contentW, 6, "No claims attached.", "", 1, "L", false, 0, "")
	}
	for _, c := range r.Claims {
		line := fmt.Sprintf("%s (%s, %.2f%%, %s %s)", c.Name, c.Status, c.VerificationPercentage,
			c.TransactionData.Quantity.StringFixed(2), c.TransactionData.Unit)
		pdf.CellFormat(contentW, 6, tr(line), "", 1, "L", false, 0, "")
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("pdf: render trace report: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
