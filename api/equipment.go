package api

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/medequip/internal/service"
)

type EquipmentHandler struct {
	svc *service.EquipmentService
}

func NewEquipmentHandler(svc *service.EquipmentService) *EquipmentHandler {
	return &EquipmentHandler{svc: svc}
}

func (h *EquipmentHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *EquipmentHandler) ListByType(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListByType(r.Context(), mux.Vars(r)["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *EquipmentHandler) Get(w http.ResponseWriter, r *http.Request) {
	eq, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, eq, "")
}

func (h *EquipmentHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateEquipmentInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	eq, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, eq, "Equipment created successfully")
}

func (h *EquipmentHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateEquipmentInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	eq, err := h.svc.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, eq, "Equipment updated successfully")
}

func (h *EquipmentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	removed, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"id": id, "maintenanceRecordsDeleted": removed},
		fmt.Sprintf("Equipment and %d maintenance records deleted", removed))
}

func (h *EquipmentHandler) ReportIssue(w http.ResponseWriter, r *http.Request) {
	var in service.ReportIssueInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.svc.ReportIssue(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, res, "Issue reported successfully")
}

func (h *EquipmentHandler) AddOperatingHours(w http.ResponseWriter, r *http.Request) {
	var in service.OperatingHoursInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	eq, err := h.svc.AddOperatingHours(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, eq, "Operating hours updated")
}
