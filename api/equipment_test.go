package api_test

import (
	"net/http"
	"strings"
	"testing"
)

type equipmentDTO struct {
	ID             string  `json:"id"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	OperatingHours float64 `json:"operatingHours"`
}

func TestEquipmentRoutes_Lifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	id := env.createEquipment(t, "Defibrillator", "SN-1")
	if !strings.HasPrefix(id, "DEF_") {
		t.Fatalf("expected DEF_ id, got %q", id)
	}
	env.createEquipment(t, "Infusion pump", "SN-2")

	list := env.do(t, http.MethodGet, "/api/equipment", nil).expect(t, http.StatusOK)
	if n := count(t, list); n != 2 {
		t.Fatalf("expected 2 equipment, got %d", n)
	}
	byType := env.do(t, http.MethodGet, "/api/equipment/type/defibrillator", nil).expect(t, http.StatusOK)
	if n := count(t, byType); n != 1 {
		t.Fatalf("expected 1 defibrillator, got %d", n)
	}

	hours := env.do(t, http.MethodPatch, "/api/equipment/"+id+"/operating-hours", map[string]any{"hours": 2.5}).expect(t, http.StatusOK)
	if eq := data[equipmentDTO](t, hours); eq.OperatingHours != 2.5 {
		t.Fatalf("expected 2.5 operating hours, got %v", eq.OperatingHours)
	}

	updated := env.do(t, http.MethodPut, "/api/equipment/"+id, map[string]any{"location": "ICU"}).expect(t, http.StatusOK)
	if updated.env.Message == "" {
		t.Fatalf("expected a message on update: %s", updated.raw)
	}

	issue := env.do(t, http.MethodPost, "/api/equipment/"+id+"/report-issue", map[string]any{
		"issue":      "battery failure",
		"technician": "Tech B",
	}).expect(t, http.StatusCreated)
	reported := data[struct {
		MaintenanceHistory struct {
			Issue string `json:"issue"`
		} `json:"maintenanceHistory"`
		UpdatedEquipment equipmentDTO `json:"updatedEquipment"`
	}](t, issue)
	if reported.MaintenanceHistory.Issue != "Battery Failure" {
		t.Fatalf("expected canonical issue, got %q", reported.MaintenanceHistory.Issue)
	}
	if reported.UpdatedEquipment.Status != "Under maintenance" {
		t.Fatalf("expected Under maintenance, got %q", reported.UpdatedEquipment.Status)
	}

	history := env.do(t, http.MethodGet, "/api/maintenance-history/equipment/"+id, nil).expect(t, http.StatusOK)
	if n := count(t, history); n != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", n)
	}

	del := env.do(t, http.MethodDelete, "/api/equipment/"+id, nil).expect(t, http.StatusOK)
	if del.env.Message != "Equipment and 1 maintenance records deleted" {
		t.Fatalf("unexpected delete message %q", del.env.Message)
	}
	env.do(t, http.MethodGet, "/api/equipment/"+id, nil).expectError(t, http.StatusNotFound, "not_found")
}

func TestEquipmentRoutes_Rejects(t *testing.T) {
	env := newTestEnv(t, nil)
	env.createEquipment(t, "Defibrillator", "SN-1")

	tests := []struct {
		name   string
		body   any
		status int
		kind   string
		field  string
	}{
		{"empty body", nil, http.StatusBadRequest, "validation", ""},
		{"malformed json", `{"type":`, http.StatusBadRequest, "validation", ""},
		{"wrong json type", map[string]any{"type": "Defibrillator", "operatingHours": "lots"}, http.StatusBadRequest, "validation", "operatingHours"},
		{"unknown type", equipmentBody("Toaster", "SN-9"), http.StatusBadRequest, "validation", "type"},
		{"duplicate serial", equipmentBody("Defibrillator", "SN-1"), http.StatusBadRequest, "validation", "serialNo"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := env.do(t, http.MethodPost, "/api/equipment", tt.body).expectError(t, tt.status, tt.kind)
			if tt.field != "" && e.Field != tt.field {
				t.Fatalf("expected field %q, got %q", tt.field, e.Field)
			}
		})
	}
}
