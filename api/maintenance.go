package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/medequip/internal/report"
	"github.com/garnizeh/medequip/internal/service"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type MaintenanceHandler struct {
	svc *service.MaintenanceService
	now func() time.Time
}

func NewMaintenanceHandler(svc *service.MaintenanceService, now func() time.Time) *MaintenanceHandler {
	if now == nil {
		now = time.Now
	}
	return &MaintenanceHandler{svc: svc, now: now}
}

func (h *MaintenanceHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *MaintenanceHandler) ListByEquipment(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.ListByEquipment(r.Context(), mux.Vars(r)["equipmentId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *MaintenanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.svc.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec, "")
}

func (h *MaintenanceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMaintenanceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	h.create(w, r, in)
}

// CreateForEquipment takes the equipment id from the path instead of the
// body.
func (h *MaintenanceHandler) CreateForEquipment(w http.ResponseWriter, r *http.Request) {
	var in service.CreateMaintenanceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	in.Equipment = mux.Vars(r)["equipmentId"]
	h.create(w, r, in)
}

func (h *MaintenanceHandler) create(w http.ResponseWriter, r *http.Request, in service.CreateMaintenanceInput) {
	rec, err := h.svc.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rec, "Maintenance record created successfully")
}

func (h *MaintenanceHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateMaintenanceInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	rec, err := h.svc.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rec, "Maintenance record updated successfully")
}

func (h *MaintenanceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.svc.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id}, "Maintenance record deleted successfully")
}

func (h *MaintenanceHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, stats)
}

// Export streams the whole ledger and its statistics as a workbook.
func (h *MaintenanceHandler) Export(w http.ResponseWriter, r *http.Request) {
	entries, err := h.svc.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	stats, err := h.svc.Statistics(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	now := h.now().UTC()
	buf, err := report.MaintenanceWorkbook(entries, stats, now)
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="maintenance-history-%s.xlsx"`, now.Format("20060102")))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *MaintenanceHandler) AllIssues(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, h.svc.AllIssues(), "")
}

func (h *MaintenanceHandler) IssuesForType(w http.ResponseWriter, r *http.Request) {
	typ, issues, err := h.svc.IssuesForType(mux.Vars(r)["type"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"equipmentType": typ, "validIssues": issues}, "")
}

func (h *MaintenanceHandler) IssuesForEquipment(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.IssuesForEquipment(r.Context(), mux.Vars(r)["equipmentId"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "")
}
