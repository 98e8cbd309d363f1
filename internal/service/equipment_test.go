package service_test

import (
	"context"
	"regexp"
	"testing"

	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/pkg/models"
)

var equipmentIDPattern = regexp.MustCompile(`^[A-Z]+_\d{6}$`)

func TestEquipment_CreateGeneratesID(t *testing.T) {
	s := newServices(t)

	tests := []struct {
		typ    string
		prefix string
	}{
		{"Defibrillator", "DEF_"},
		{"infusion  PUMP", "INF_"},
		{"Patient monitor", "PAT_"},
		{"suction machine", "SUC_"},
	}
	for i, tt := range tests {
		e := mustCreateEquipment(t, s, tt.typ, "SN-"+string(rune('A'+i)))
		if !equipmentIDPattern.MatchString(e.ID) || e.ID[:4] != tt.prefix {
			t.Fatalf("%s: id %q does not match %s<6 digits>", tt.typ, e.ID, tt.prefix)
		}
		if e.Name != e.ID {
			t.Fatalf("name %q should equal id %q", e.Name, e.ID)
		}
	}

	got, err := s.equipment.Get(context.Background(), "INF_000000")
	if err == nil || !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v %v", got, err)
	}
}

func TestEquipment_CreateRetriesOnIDCollision(t *testing.T) {
	d := newDeps(t, newStore(t))
	draws := []int{0, 0, 1}
	d.IntN = func(n int) int {
		v := draws[0]
		if len(draws) > 1 {
			draws = draws[1:]
		}
		return v % n
	}
	s := newServicesWith(t, d)

	first := mustCreateEquipment(t, s, "Defibrillator", "SN-1")
	second := mustCreateEquipment(t, s, "Defibrillator", "SN-2")
	if first.ID != "DEF_100000" || second.ID != "DEF_100001" {
		t.Fatalf("ids = %s, %s", first.ID, second.ID)
	}
}

func TestEquipment_CreateValidation(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	mustCreateEquipment(t, s, "Defibrillator", "SN-1")

	tests := []struct {
		name  string
		edit  func(in *service.CreateEquipmentInput)
		field string
	}{
		{"unknown type", func(in *service.CreateEquipmentInput) { in.Type = "Toaster" }, "type"},
		{"missing serial", func(in *service.CreateEquipmentInput) { in.SerialNo = "" }, "serialNo"},
		{"bad status", func(in *service.CreateEquipmentInput) { in.Status = "Broken" }, "status"},
		{"bad manual link", func(in *service.CreateEquipmentInput) { in.ManualLink = "ftp://x" }, "manualLink"},
		{"negative hours", func(in *service.CreateEquipmentInput) { in.OperatingHours = ptr(-1.0) }, "operatingHours"},
		{"no installation date", func(in *service.CreateEquipmentInput) { in.InstallationDate = nil }, "installationDate"},
		{"duplicate serial", func(in *service.CreateEquipmentInput) { in.SerialNo = "SN-1" }, "serialNo"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := equipmentInput("Defibrillator", "SN-NEW")
			tt.edit(&in)
			_, err := s.equipment.Create(ctx, in)
			e, ok := errs.As(err)
			if !ok || e.Kind != errs.KindValidation || e.Field != tt.field {
				t.Fatalf("expected validation error on %s, got %v", tt.field, err)
			}
		})
	}
}

func TestEquipment_ListByType(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	mustCreateEquipment(t, s, "Defibrillator", "SN-1")
	mustCreateEquipment(t, s, "Suction machine", "SN-2")

	list, err := s.equipment.ListByType(ctx, "DEFIBRILLATOR")
	if err != nil {
		t.Fatalf("ListByType: %v", err)
	}
	if len(list) != 1 || list[0].SerialNo != "SN-1" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := s.equipment.ListByType(ctx, "Toaster"); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	all, err := s.equipment.List(ctx)
	if err != nil || len(all) != 2 {
		t.Fatalf("List = %d, %v", len(all), err)
	}
}

func TestEquipment_Update(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	e := mustCreateEquipment(t, s, "Defibrillator", "SN-1")
	mustCreateEquipment(t, s, "Defibrillator", "SN-2")

	got, err := s.equipment.Update(ctx, e.ID, service.UpdateEquipmentInput{
		Location: ptr("ICU"),
		SerialNo: ptr("SN-1"),
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Location != "ICU" || got.ID != e.ID || got.Name != e.ID {
		t.Fatalf("unexpected update result: %+v", got)
	}

	if _, err := s.equipment.Update(ctx, e.ID, service.UpdateEquipmentInput{SerialNo: ptr("SN-2")}); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected serial collision, got %v", err)
	}
	if _, err := s.equipment.Update(ctx, e.ID, service.UpdateEquipmentInput{Type: ptr("defibrillator")}); err != nil {
		t.Fatalf("restating the current type should be accepted: %v", err)
	}
	_, err = s.equipment.Update(ctx, e.ID, service.UpdateEquipmentInput{Type: ptr("Suction machine")})
	if ve, _ := errs.As(err); ve == nil || ve.Kind != errs.KindValidation || ve.Field != "type" {
		t.Fatalf("expected type change to be rejected on type, got %v", err)
	}
	if got, _ := s.equipment.Get(ctx, e.ID); got.Type != e.Type {
		t.Fatalf("type changed to %q", got.Type)
	}
	if _, err := s.equipment.Update(ctx, "DEF_999999", service.UpdateEquipmentInput{}); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEquipment_AddOperatingHours(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	e := mustCreateEquipment(t, s, "Defibrillator", "SN-1")

	for range 3 {
		if _, err := s.equipment.AddOperatingHours(ctx, e.ID, service.OperatingHoursInput{Hours: ptr(1.5)}); err != nil {
			t.Fatalf("AddOperatingHours: %v", err)
		}
	}
	got, _ := s.equipment.Get(ctx, e.ID)
	if got.OperatingHours != 4.5 {
		t.Fatalf("operatingHours = %v, want 4.5", got.OperatingHours)
	}

	if _, err := s.equipment.AddOperatingHours(ctx, e.ID, service.OperatingHoursInput{}); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected validation error for missing hours, got %v", err)
	}
	if _, err := s.equipment.AddOperatingHours(ctx, e.ID, service.OperatingHoursInput{Hours: ptr(-2.0)}); !errs.Is(err, errs.KindValidation) {
		t.Fatalf("expected validation error for negative hours, got %v", err)
	}
}

func TestEquipment_ReportIssue(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	e := mustCreateEquipment(t, s, "Defibrillator", "SN-1")

	out, err := s.equipment.ReportIssue(ctx, e.ID, service.ReportIssueInput{Issue: "battery failure", Technician: "J. Doe"})
	if err != nil {
		t.Fatalf("ReportIssue: %v", err)
	}
	if out.UpdatedEquipment.Status != models.StatusUnderMaintenance || out.UpdatedEquipment.LastMaintenanceDate == nil {
		t.Fatalf("unexpected equipment: %+v", out.UpdatedEquipment)
	}
	if out.MaintenanceHistory.Issue != "Battery Failure" || out.MaintenanceHistory.Resolution != "Unknown" {
		t.Fatalf("unexpected ledger entry: %+v", out.MaintenanceHistory)
	}

	_, err = s.equipment.ReportIssue(ctx, e.ID, service.ReportIssueInput{Issue: "Occlusion Detected", Technician: "J. Doe"})
	if fe, ok := errs.As(err); !ok || fe.Kind != errs.KindValidation || fe.Field != "issue" {
		t.Fatalf("expected issue validation error, got %v", err)
	}
}

func TestEquipment_DeleteCascadesToLedger(t *testing.T) {
	s := newServices(t)
	ctx := context.Background()
	e := mustCreateEquipment(t, s, "Defibrillator", "SN-1")
	other := mustCreateEquipment(t, s, "Defibrillator", "SN-2")

	for _, id := range []string{e.ID, e.ID, other.ID} {
		if _, err := s.equipment.ReportIssue(ctx, id, service.ReportIssueInput{Issue: "Software Error", Technician: "T"}); err != nil {
			t.Fatalf("ReportIssue: %v", err)
		}
	}

	removed, err := s.equipment.Delete(ctx, e.ID)
	if err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	left, err := s.maintenance.ListByEquipment(ctx, e.ID)
	if err != nil || len(left) != 0 {
		t.Fatalf("ListByEquipment after delete = %v, %v", left, err)
	}
	kept, _ := s.maintenance.ListByEquipment(ctx, other.ID)
	if len(kept) != 1 {
		t.Fatalf("other equipment's ledger should be untouched, got %d", len(kept))
	}

	if _, err := s.equipment.Delete(ctx, e.ID); !errs.Is(err, errs.KindNotFound) {
		t.Fatalf("expected not found on second delete, got %v", err)
	}
}
