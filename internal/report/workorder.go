package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf/v2"

	"github.com/garnizeh/medequip/pkg/models"
)

// WorkOrderPDF renders a failure report as a one-page work order for the
// assigned technician. eq may be nil when the equipment no longer exists.
func WorkOrderPDF(r *models.FailureReport, eq *models.Equipment, generated time.Time) ([]byte, error) {
	if r == nil {
		return nil, fmt.Errorf("work order: nil failure report")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(10, 10, 10)
	pdf.SetTitle("Work order "+r.FailureID, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(190, 10, "Maintenance Work Order", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(190, 6, "Generated "+generated.UTC().Format(dateLayout)+" UTC", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section := func(title string) {
		pdf.SetFillColor(240, 240, 240)
		pdf.SetFont("Arial", "B", 12)
		pdf.CellFormat(190, 8, title, "1", 1, "L", true, 0, "")
		pdf.SetFont("Arial", "", 10)
	}
	pair := func(k1, v1, k2, v2 string) {
		pdf.CellFormat(95, 7, tr(k1+": "+v1), "LB", 0, "L", false, 0, "")
		pdf.CellFormat(95, 7, tr(k2+": "+v2), "RB", 1, "L", false, 0, "")
	}

	section("Failure Report " + r.FailureID)
	pair("Status", string(r.Status), "Severity", string(r.Severity))
	pair("Priority", fmt.Sprintf("%d", r.Priority), "Reported", r.ReportedDate.UTC().Format(dateLayout))
	pair("Reported by", r.ReportedBy, "Technician", orDash(r.AssignedTechnician))
	pair("Estimated repair", timeOrDash(r.EstimatedRepairTime), "Started", timeOrDash(r.ActualStartTime))
	pdf.CellFormat(190, 7, tr("Issue: "+r.Issue), "LRB", 1, "L", false, 0, "")
	pdf.MultiCell(190, 6, tr("Description: "+r.Description), "LRB", "L", false)
	pdf.Ln(4)

	section("Equipment " + r.Equipment)
	if eq != nil {
		pair("Type", string(eq.Type), "Serial", eq.SerialNo)
		pair("Manufacturer", eq.Manufacturer, "Model", eq.ModelType)
		pair("Location", eq.Location, "Status", string(eq.Status))
		pair("Operating hours", fmt.Sprintf("%.1f", eq.OperatingHours), "Last maintenance", timeOrDash(eq.LastMaintenanceDate))
	} else {
		pdf.CellFormat(190, 7, "Equipment record not found", "LRB", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	if len(r.Notes) > 0 {
		section("Notes")
		for _, n := range r.Notes {
			pdf.MultiCell(190, 6, tr(fmt.Sprintf("%s  %s: %s", n.AddedAt.UTC().Format(dateLayout), n.AddedBy, n.Note)), "LRB", "L", false)
		}
		pdf.Ln(4)
	}

	section("Completion")
	for _, label := range []string{"Resolution", "Technician signature", "Date"} {
		pdf.CellFormat(50, 12, label, "1", 0, "L", false, 0, "")
		pdf.CellFormat(140, 12, "", "1", 1, "L", false, 0, "")
	}

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("render work order: %w", err)
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write work order: %w", err)
	}
	return buf.Bytes(), nil
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func timeOrDash(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(dateLayout)
}
