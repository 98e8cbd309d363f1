package models_test

import (
	"testing"

	"github.com/garnizeh/medequip/internal/models"
	pm "github.com/garnizeh/medequip/pkg/models"
)

func TestCanUpdateStatus(t *testing.T) {
	open := []pm.ReportStatus{pm.ReportReported, pm.ReportInProgress, pm.ReportPendingParts, pm.ReportAwaitingTechnician}

	for _, from := range open {
		for _, to := range open {
			if !models.CanUpdateStatus(from, to) {
				t.Fatalf("expected %q -> %q to be allowed", from, to)
			}
		}
		if models.CanUpdateStatus(from, pm.ReportResolved) {
			t.Fatalf("update must not reach Resolved from %q", from)
		}
	}
	for _, to := range pm.ReportStatuses {
		if models.CanUpdateStatus(pm.ReportResolved, to) {
			t.Fatalf("Resolved must be terminal, got transition to %q", to)
		}
	}
	if models.CanUpdateStatus("Closed", pm.ReportReported) {
		t.Fatalf("unknown status must have no transitions")
	}
}

func TestCanResolveAndDelete(t *testing.T) {
	if models.CanResolve(pm.ReportResolved) {
		t.Fatalf("resolved report must not be resolvable again")
	}
	if !models.CanResolve(pm.ReportPendingParts) {
		t.Fatalf("open report must be resolvable")
	}
	if models.CanDelete(pm.ReportResolved) {
		t.Fatalf("resolved report must not be deletable")
	}
	if !models.CanDelete(pm.ReportReported) {
		t.Fatalf("open report must be deletable")
	}
}

func TestNextEquipmentStatus(t *testing.T) {
	cases := []struct {
		ev    models.EquipmentEvent
		sev   pm.Severity
		want  pm.EquipmentStatus
		stamp bool
	}{
		{models.EventIssueReported, "", pm.StatusUnderMaintenance, true},
		{models.EventFailureReported, pm.SeverityCritical, pm.StatusOutOfOrder, false},
		{models.EventFailureReported, pm.SeverityHigh, pm.StatusUnderMaintenance, false},
		{models.EventFailureReported, pm.SeverityLow, pm.StatusUnderMaintenance, false},
		{models.EventRepaired, "", pm.StatusOperational, true},
	}
	for _, c := range cases {
		got, err := models.NextEquipmentStatus(c.ev, c.sev)
		if err != nil {
			t.Fatalf("%s: %v", c.ev, err)
		}
		if got.Status != c.want || got.StampMaintenance != c.stamp {
			t.Fatalf("%s/%s: got %+v", c.ev, c.sev, got)
		}
	}

	if _, err := models.NextEquipmentStatus(models.EquipmentEvent(99), ""); err == nil {
		t.Fatalf("expected error for unknown event")
	}
}
