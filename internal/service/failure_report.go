package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/errs"
	imodels "github.com/garnizeh/medequip/internal/models"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

type ImageInput struct {
	URL         string `json:"url" validate:"required,http_url"`
	Description string `json:"description"`
}

type NoteInput struct {
	Note    string     `json:"note" validate:"required"`
	AddedBy string     `json:"addedBy" validate:"required"`
	AddedAt *time.Time `json:"addedAt"`
}

type CreateFailureReportInput struct {
	Equipment           string     `json:"equipment" validate:"required"`
	Issue               string     `json:"issue" validate:"required"`
	Description         string     `json:"description" validate:"required"`
	ReportedBy          string     `json:"reportedBy" validate:"required"`
	ReportedDate        *time.Time `json:"reportedDate"`
	Severity            string     `json:"severity" validate:"omitempty,severity"`
	AssignedTechnician  string     `json:"assignedTechnician"`
	EstimatedRepairTime *time.Time `json:"estimatedRepairTime"`
	Priority            *int       `json:"priority" validate:"omitnil,min=1,max=5"`
	// Notes, when set, becomes the first note, authored by the reporter.
	Notes  string       `json:"notes"`
	Images []ImageInput `json:"images" validate:"omitempty,dive"`
}

// UpdateFailureReportInput patches an open report. Notes replaces the whole
// list when present; AddNote appends one note when both its text and author
// are given.
type UpdateFailureReportInput struct {
	Status              *string     `json:"status" validate:"omitnil,report_status"`
	AssignedTechnician  *string     `json:"assignedTechnician"`
	EstimatedRepairTime *time.Time  `json:"estimatedRepairTime"`
	ActualStartTime     *time.Time  `json:"actualStartTime"`
	Priority            *int        `json:"priority" validate:"omitnil,min=1,max=5"`
	Severity            *string     `json:"severity" validate:"omitnil,severity"`
	Notes               []NoteInput `json:"notes" validate:"omitempty,dive"`
	AddNote             *NoteInput  `json:"addNote" validate:"-"`
}

type ResolveInput struct {
	Resolution     string     `json:"resolution" validate:"required"`
	Technician     string     `json:"technician" validate:"required"`
	ResolutionDate *time.Time `json:"resolutionDate"`
}

// Resolution is the outcome of resolving a report.
type Resolution struct {
	FailureReport     *models.FailureReport     `json:"failureReport"`
	MaintenanceRecord *models.MaintenanceRecord `json:"maintenanceRecord"`
}

// ReportQuery filters report listings and statistics. The date range only
// applies when both ends are set.
type ReportQuery struct {
	Status             string     `json:"status" validate:"omitempty,report_status"`
	Severity           string     `json:"severity" validate:"omitempty,severity"`
	AssignedTechnician string     `json:"assignedTechnician"`
	EquipmentType      string     `json:"equipmentType"`
	StartDate          *time.Time `json:"startDate"`
	EndDate            *time.Time `json:"endDate"`
}

type FailureReportService struct {
	base
}

func NewFailureReportService(d Deps) *FailureReportService {
	return &FailureReportService{base: newBase(d)}
}

// Create files a report and moves the equipment to the status its severity
// calls for.
func (s *FailureReportService) Create(ctx context.Context, in CreateFailureReportInput) (*models.FailureReport, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out *models.FailureReport
	err := s.unitOfWork(ctx, "create failure report", func(ctx context.Context, tx repository.Store, comp *compensations) error {
		eq, err := tx.GetEquipment(ctx, in.Equipment)
		if err != nil {
			return storeErr("get equipment", "equipment", in.Equipment, err)
		}
		issue, err := s.validIssue(eq.Type, in.Issue)
		if err != nil {
			return err
		}

		now := s.clock()
		r := &models.FailureReport{
			Equipment:           eq.ID,
			Issue:               issue,
			Description:         in.Description,
			ReportedBy:          in.ReportedBy,
			ReportedDate:        now,
			Severity:            models.SeverityMedium,
			Status:              models.ReportReported,
			AssignedTechnician:  in.AssignedTechnician,
			EstimatedRepairTime: msPtr(in.EstimatedRepairTime),
			Priority:            models.DefaultPriority,
			Notes:               []models.Note{},
			Images:              make([]models.Image, 0, len(in.Images)),
			CreatedAt:           now,
			UpdatedAt:           now,
		}
		if in.ReportedDate != nil {
			r.ReportedDate = ms(*in.ReportedDate)
		}
		if in.Severity != "" {
			r.Severity = models.Severity(in.Severity)
		}
		if in.Priority != nil {
			r.Priority = *in.Priority
		}
		if note := strings.TrimSpace(in.Notes); note != "" {
			r.Notes = append(r.Notes, models.Note{Note: note, AddedBy: in.ReportedBy, AddedAt: now})
		}
		for _, img := range in.Images {
			r.Images = append(r.Images, models.Image{URL: img.URL, Description: img.Description, UploadedAt: now})
		}

		for range maxIDAttempts {
			r.FailureID = s.failureID(now)
			if err = s.checkDoc(ctx, schema.FailureReport, r); err != nil {
				return err
			}
			err = tx.CreateFailureReport(ctx, r)
			if !isIDCollision(err, "failureId") {
				break
			}
		}
		if err != nil {
			return storeErr("create failure report", "failure report", r.FailureID, err)
		}
		comp.add("delete failure report", func(ctx context.Context) error {
			return tx.DeleteFailureReport(ctx, r.FailureID)
		})

		updated, err := s.transitionEquipment(ctx, tx, comp, eq.ID, imodels.EventFailureReported, r.Severity, now)
		if err != nil {
			return err
		}
		r.EquipmentDetails = updated.Summary()
		out = r
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.FailureReported(string(out.Severity))
	s.logger.Info("failure report created",
		zap.String("id", out.FailureID),
		zap.String("equipment", out.Equipment),
		zap.String("severity", string(out.Severity)))
	return out, nil
}

func (s *FailureReportService) Get(ctx context.Context, id string) (*models.FailureReport, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.store.GetFailureReport(ctx, id)
	if err != nil {
		return nil, storeErr("get failure report", "failure report", id, err)
	}
	eq, err := s.lookupEquipment(ctx, equipmentCache{}, r.Equipment)
	if err != nil {
		return nil, err
	}
	r.EquipmentDetails = eq.Summary()
	return r, nil
}

// List returns reports newest first. The equipment type filter is applied
// after the equipment of each report has been looked up.
func (s *FailureReportService) List(ctx context.Context, q ReportQuery) ([]models.FailureReport, error) {
	if err := s.validate.Struct(q); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.store.ListFailureReports(ctx, repository.FailureReportFilter{
		Status:             models.ReportStatus(q.Status),
		Severity:           models.Severity(q.Severity),
		AssignedTechnician: q.AssignedTechnician,
		From:               q.StartDate,
		To:                 q.EndDate,
	})
	if err != nil {
		return nil, storeErr("list failure reports", "failure report", "", err)
	}

	only := s.equipmentTypeFilter(q.EquipmentType)
	cache := equipmentCache{}
	out := make([]models.FailureReport, 0, len(list))
	for _, r := range list {
		eq, err := s.lookupEquipment(ctx, cache, r.Equipment)
		if err != nil {
			return nil, err
		}
		if only != "" && (eq == nil || eq.Type != only) {
			continue
		}
		r.EquipmentDetails = eq.Summary()
		out = append(out, r)
	}
	return out, nil
}

// Update patches an open report. Resolved reports are final.
func (s *FailureReportService) Update(ctx context.Context, id string, in UpdateFailureReportInput) (*models.FailureReport, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.store.GetFailureReport(ctx, id)
	if err != nil {
		return nil, storeErr("get failure report", "failure report", id, err)
	}
	if r.Status == models.ReportResolved {
		return nil, errs.Conflict("failure report %q is resolved and can no longer be modified", id)
	}

	now := s.clock()
	if in.Status != nil {
		to := models.ReportStatus(*in.Status)
		if !imodels.CanUpdateStatus(r.Status, to) {
			if to == models.ReportResolved {
				return nil, errs.Conflict("failure reports are closed through resolve, not update")
			}
			return nil, errs.Conflict("cannot move failure report from %q to %q", r.Status, to)
		}
		r.Status = to
	}
	if in.AssignedTechnician != nil {
		r.AssignedTechnician = *in.AssignedTechnician
	}
	if in.EstimatedRepairTime != nil {
		r.EstimatedRepairTime = msPtr(in.EstimatedRepairTime)
	}
	if in.ActualStartTime != nil {
		r.ActualStartTime = msPtr(in.ActualStartTime)
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.Severity != nil {
		r.Severity = models.Severity(*in.Severity)
	}
	if n := in.AddNote; n != nil && strings.TrimSpace(n.Note) != "" && strings.TrimSpace(n.AddedBy) != "" {
		r.Notes = append(r.Notes, models.Note{Note: n.Note, AddedBy: n.AddedBy, AddedAt: now})
	}
	if in.Notes != nil {
		notes := make([]models.Note, 0, len(in.Notes))
		for _, n := range in.Notes {
			at := now
			if n.AddedAt != nil {
				at = ms(*n.AddedAt)
			}
			notes = append(notes, models.Note{Note: n.Note, AddedBy: n.AddedBy, AddedAt: at})
		}
		r.Notes = notes
	}
	if in.Status != nil && r.Status == models.ReportInProgress && r.ActualStartTime == nil {
		r.ActualStartTime = &now
	}
	r.UpdatedAt = now

	if err := s.checkDoc(ctx, schema.FailureReport, r); err != nil {
		return nil, err
	}
	if err := s.store.UpdateFailureReport(ctx, r); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return nil, errs.Conflict("failure report %q is resolved and can no longer be modified", id)
		}
		return nil, storeErr("update failure report", "failure report", id, err)
	}

	eq, err := s.lookupEquipment(ctx, equipmentCache{}, r.Equipment)
	if err != nil {
		return nil, err
	}
	r.EquipmentDetails = eq.Summary()
	return r, nil
}

// Resolve closes a report. Marking it resolved, writing the ledger entry and
// returning the equipment to service happen as one unit of work; a second
// resolve of the same report is a conflict.
func (s *FailureReportService) Resolve(ctx context.Context, id string, in ResolveInput) (*Resolution, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out Resolution
	err := s.unitOfWork(ctx, "resolve failure report", func(ctx context.Context, tx repository.Store, comp *compensations) error {
		prev, err := tx.GetFailureReport(ctx, id)
		if err != nil {
			return storeErr("get failure report", "failure report", id, err)
		}
		if !imodels.CanResolve(prev.Status) {
			return errs.Conflict("failure report %q is already resolved", id)
		}

		now := s.clock()
		if err := tx.MarkResolved(ctx, id, now); err != nil {
			if errors.Is(err, repository.ErrStale) {
				return errs.Conflict("failure report %q is already resolved", id)
			}
			return storeErr("resolve failure report", "failure report", id, err)
		}
		comp.add("reopen failure report", func(ctx context.Context) error {
			return tx.RestoreFailureReport(ctx, prev)
		})

		date := now
		if in.ResolutionDate != nil {
			date = ms(*in.ResolutionDate)
		}
		m := &models.MaintenanceRecord{
			Equipment:       prev.Equipment,
			Issue:           prev.Issue,
			Description:     prev.Description,
			Resolution:      in.Resolution,
			Technician:      in.Technician,
			MaintenanceDate: date,
			FailureID:       prev.FailureID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.insertMaintenance(ctx, tx, m); err != nil {
			return err
		}
		comp.add("delete maintenance entry", func(ctx context.Context) error {
			return tx.DeleteMaintenance(ctx, m.MaintenanceID)
		})

		eq, err := s.transitionEquipment(ctx, tx, comp, prev.Equipment, imodels.EventRepaired, prev.Severity, now)
		if err != nil {
			return err
		}

		resolved := *prev
		resolved.Status = models.ReportResolved
		resolved.ResolvedAt = &now
		resolved.UpdatedAt = now
		resolved.EquipmentDetails = eq.Summary()
		m.EquipmentDetails = eq.Summary()
		out = Resolution{FailureReport: &resolved, MaintenanceRecord: m}
		return nil
	})
	if err != nil {
		if errs.Is(err, errs.KindConflict) {
			s.metrics.Resolution("conflict")
		} else {
			s.metrics.Resolution("error")
		}
		return nil, err
	}

	s.metrics.Resolution("ok")
	s.logger.Info("failure report resolved",
		zap.String("id", id),
		zap.String("maintenance", out.MaintenanceRecord.MaintenanceID))
	return &out, nil
}

// Delete removes an open report. Resolved reports are kept as history.
func (s *FailureReportService) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	r, err := s.store.GetFailureReport(ctx, id)
	if err != nil {
		return storeErr("get failure report", "failure report", id, err)
	}
	if !imodels.CanDelete(r.Status) {
		return errs.Conflict("cannot delete resolved failure reports; they are kept as maintenance records")
	}
	if err := s.store.DeleteFailureReport(ctx, id); err != nil {
		if errors.Is(err, repository.ErrStale) {
			return errs.Conflict("cannot delete resolved failure reports; they are kept as maintenance records")
		}
		return storeErr("delete failure report", "failure report", id, err)
	}
	return nil
}

// Statistics aggregates reports in the optional date range.
func (s *FailureReportService) Statistics(ctx context.Context, q ReportQuery) ([]models.FailureStatistics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	reports, err := s.store.ListFailureReports(ctx, repository.FailureReportFilter{From: q.StartDate, To: q.EndDate})
	if err != nil {
		return nil, storeErr("list failure reports", "failure report", "", err)
	}
	equipment, err := s.store.ListEquipment(ctx, "")
	if err != nil {
		return nil, storeErr("list equipment", "equipment", "", err)
	}

	types := make(map[string]taxonomy.EquipmentType, len(equipment))
	for _, e := range equipment {
		types[e.ID] = e.Type
	}
	return FailureStatistics(reports, types, s.equipmentTypeFilter(q.EquipmentType)), nil
}

// equipmentTypeFilter resolves a filter value to its canonical type. Values
// outside the taxonomy are kept as given and simply match nothing known.
func (s *FailureReportService) equipmentTypeFilter(v string) taxonomy.EquipmentType {
	if v == "" {
		return ""
	}
	if typ, ok := s.tax.ParseType(v); ok {
		return typ
	}
	return taxonomy.EquipmentType(v)
}
