package api

import (
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/mux"

	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/internal/report"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/pkg/models"
)

type FailureReportsHandler struct {
	reports   *service.FailureReportService
	equipment *service.EquipmentService
	now       func() time.Time
}

func NewFailureReportsHandler(reports *service.FailureReportService, equipment *service.EquipmentService, now func() time.Time) *FailureReportsHandler {
	if now == nil {
		now = time.Now
	}
	return &FailureReportsHandler{reports: reports, equipment: equipment, now: now}
}

func (h *FailureReportsHandler) List(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	items, err := h.reports.List(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, items)
}

func (h *FailureReportsHandler) Get(w http.ResponseWriter, r *http.Request) {
	fr, err := h.reports.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, fr, "")
}

func (h *FailureReportsHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in service.CreateFailureReportInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	fr, err := h.reports.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, fr, "Failure report created successfully")
}

func (h *FailureReportsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var in service.UpdateFailureReportInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	fr, err := h.reports.Update(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, fr, "Failure report updated successfully")
}

func (h *FailureReportsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.reports.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"id": id}, "Failure report deleted successfully")
}

func (h *FailureReportsHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var in service.ResolveInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	res, err := h.reports.Resolve(r.Context(), mux.Vars(r)["id"], in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, res, "Failure report resolved and maintenance record created")
}

func (h *FailureReportsHandler) Statistics(w http.ResponseWriter, r *http.Request) {
	q, err := parseReportQuery(r.URL.Query())
	if err != nil {
		writeError(w, r, err)
		return
	}

	stats, err := h.reports.Statistics(r.Context(), q)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeList(w, stats)
}

// WorkOrder renders the report as a printable PDF. A report whose equipment
// has since been deleted still prints.
func (h *FailureReportsHandler) WorkOrder(w http.ResponseWriter, r *http.Request) {
	fr, err := h.reports.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, r, err)
		return
	}

	var eq *models.Equipment
	switch found, err := h.equipment.Get(r.Context(), fr.Equipment); {
	case err == nil:
		eq = found
	case !errs.Is(err, errs.KindNotFound):
		writeError(w, r, err)
		return
	}

	pdf, err := report.WorkOrderPDF(fr, eq, h.now().UTC())
	if err != nil {
		writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="work-order-%s.pdf"`, fr.FailureID))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(pdf)
}

func parseReportQuery(v url.Values) (service.ReportQuery, error) {
	q := service.ReportQuery{
		Status:             v.Get("status"),
		Severity:           v.Get("severity"),
		AssignedTechnician: v.Get("assignedTechnician"),
		EquipmentType:      v.Get("equipmentType"),
	}

	var err error
	if q.StartDate, err = parseDateParam(v, "startDate"); err != nil {
		return q, err
	}
	if q.EndDate, err = parseDateParam(v, "endDate"); err != nil {
		return q, err
	}
	if q.StartDate != nil && q.EndDate != nil && q.EndDate.Before(*q.StartDate) {
		return q, errs.Validation("endDate", "endDate must not be before startDate")
	}
	return q, nil
}

// parseDateParam accepts RFC 3339 timestamps or plain dates, the latter as
// midnight UTC.
func parseDateParam(v url.Values, name string) (*time.Time, error) {
	s := v.Get(name)
	if s == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t, nil
		}
	}
	return nil, errs.Validation(name, "%s must be a date (YYYY-MM-DD) or RFC 3339 timestamp", name)
}
