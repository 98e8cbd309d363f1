package service_test

import (
	"math"
	"testing"
	"time"

	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
)

func report(equipment string, status models.ReportStatus, sev models.Severity, reported time.Time, updated time.Time) models.FailureReport {
	return models.FailureReport{Equipment: equipment, Status: status, Severity: sev, ReportedDate: reported, UpdatedAt: updated}
}

func TestFailureStatistics_SyntheticDataset(t *testing.T) {
	day := 24 * time.Hour
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	types := map[string]taxonomy.EquipmentType{
		"DEF_1": taxonomy.Defibrillator,
		"DEF_2": taxonomy.Defibrillator,
		"INF_1": taxonomy.InfusionPump,
	}

	reports := []models.FailureReport{
		report("DEF_1", models.ReportResolved, models.SeverityCritical, t0, t0.Add(2*day)),
		report("DEF_2", models.ReportResolved, models.SeverityCritical, t0, t0.Add(4*day)),
		report("DEF_1", models.ReportResolved, models.SeverityLow, t0, t0.Add(36*time.Hour)),
		report("DEF_2", models.ReportReported, models.SeverityCritical, t0, t0.Add(9*day)),
		report("INF_1", models.ReportInProgress, models.SeverityHigh, t0, t0.Add(day)),
		report("INF_1", models.ReportInProgress, models.SeverityHigh, t0, t0.Add(day)),
		report("GONE_1", models.ReportResolved, models.SeverityLow, t0, t0.Add(day)),
	}

	stats := service.FailureStatistics(reports, types, "")
	if len(stats) != 2 {
		t.Fatalf("expected 2 types, got %+v", stats)
	}

	def := stats[0]
	if def.EquipmentType != "Defibrillator" || def.TotalReports != 4 {
		t.Fatalf("unexpected defibrillator group: %+v", def)
	}
	want := []struct {
		status models.ReportStatus
		sev    models.Severity
		count  int
		avg    float64
	}{
		{models.ReportReported, models.SeverityCritical, 1, -1},
		{models.ReportResolved, models.SeverityLow, 1, 1.5},
		{models.ReportResolved, models.SeverityCritical, 2, 3},
	}
	if len(def.StatusBreakdown) != len(want) {
		t.Fatalf("breakdown = %+v", def.StatusBreakdown)
	}
	for i, w := range want {
		b := def.StatusBreakdown[i]
		if b.Status != w.status || b.Severity != w.sev || b.Count != w.count {
			t.Fatalf("breakdown[%d] = %+v, want %+v", i, b, w)
		}
		switch {
		case w.avg < 0 && b.AvgResolutionTime != nil:
			t.Fatalf("breakdown[%d] should have no average", i)
		case w.avg >= 0 && (b.AvgResolutionTime == nil || math.Abs(*b.AvgResolutionTime-w.avg) > 1e-9):
			t.Fatalf("breakdown[%d] average = %v, want %v", i, b.AvgResolutionTime, w.avg)
		}
	}

	pump := stats[1]
	if pump.EquipmentType != "Infusion pump" || pump.TotalReports != 2 || len(pump.StatusBreakdown) != 1 || pump.StatusBreakdown[0].Count != 2 {
		t.Fatalf("unexpected pump group: %+v", pump)
	}

	only := service.FailureStatistics(reports, types, taxonomy.InfusionPump)
	if len(only) != 1 || only[0].EquipmentType != "Infusion pump" {
		t.Fatalf("type filter: %+v", only)
	}
}

func TestMaintenanceStatistics_OrdersByFrequency(t *testing.T) {
	types := map[string]taxonomy.EquipmentType{"SUC_1": taxonomy.SuctionMachine, "PAT_1": taxonomy.PatientMonitor}
	entries := []models.MaintenanceRecord{
		{Equipment: "SUC_1", Issue: "Canister Leak"},
		{Equipment: "SUC_1", Issue: "Motor Overheating"},
		{Equipment: "SUC_1", Issue: "Motor Overheating"},
		{Equipment: "PAT_1", Issue: "Inaccurate Readings"},
		{Equipment: "MISSING", Issue: "Inaccurate Readings"},
	}

	stats := service.MaintenanceStatistics(entries, types)
	if len(stats) != 2 || stats[0].EquipmentType != "Suction machine" || stats[0].Total != 3 || stats[1].Total != 1 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	if stats[0].Issues[0] != (models.IssueCount{Issue: "Motor Overheating", Count: 2}) {
		t.Fatalf("unexpected issue order: %+v", stats[0].Issues)
	}
}
