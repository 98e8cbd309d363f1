package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

var failureReportColumns = []string{
	"failure_id", "equipment_id", "issue", "description", "reported_by", "reported_date", "severity", "status",
	"assigned_technician", "estimated_repair_time", "actual_start_time", "notes", "images", "priority",
	"resolved_at", "created_at", "updated_at",
}

func scanFailureReport(s interface{ Scan(...any) error }) (*models.FailureReport, error) {
	var (
		f                           models.FailureReport
		severity, status            string
		reported, created, updated  int64
		estimated, started, resolve sql.NullInt64
		notes, images               string
	)
	if err := s.Scan(&f.FailureID, &f.Equipment, &f.Issue, &f.Description, &f.ReportedBy, &reported, &severity, &status,
		&f.AssignedTechnician, &estimated, &started, &notes, &images, &f.Priority,
		&resolve, &created, &updated); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(notes), &f.Notes); err != nil {
		return nil, fmt.Errorf("decode notes for %s: %w", f.FailureID, err)
	}
	if err := json.Unmarshal([]byte(images), &f.Images); err != nil {
		return nil, fmt.Errorf("decode images for %s: %w", f.FailureID, err)
	}
	if f.Notes == nil {
		f.Notes = []models.Note{}
	}
	if f.Images == nil {
		f.Images = []models.Image{}
	}
	f.Severity = models.Severity(severity)
	f.Status = models.ReportStatus(status)
	f.ReportedDate = fromMillis(reported)
	f.EstimatedRepairTime = timePtr(estimated)
	f.ActualStartTime = timePtr(started)
	f.ResolvedAt = timePtr(resolve)
	f.CreatedAt = fromMillis(created)
	f.UpdatedAt = fromMillis(updated)
	return &f, nil
}

func encodeLists(f *models.FailureReport) (notes, images string, err error) {
	n := f.Notes
	if n == nil {
		n = []models.Note{}
	}
	im := f.Images
	if im == nil {
		im = []models.Image{}
	}
	nb, err := json.Marshal(n)
	if err != nil {
		return "", "", err
	}
	ib, err := json.Marshal(im)
	if err != nil {
		return "", "", err
	}
	return string(nb), string(ib), nil
}

func (r *SQLiteRepo) CreateFailureReport(ctx context.Context, f *models.FailureReport) error {
	if f == nil {
		return fmt.Errorf("failure report is nil")
	}
	notes, images, err := encodeLists(f)
	if err != nil {
		return err
	}

	_, err = r.exec(ctx, sq.Insert("failure_reports").Columns(failureReportColumns...).Values(
		f.FailureID, f.Equipment, f.Issue, f.Description, f.ReportedBy, millis(f.ReportedDate), string(f.Severity), string(f.Status),
		f.AssignedTechnician, nullMillis(f.EstimatedRepairTime), nullMillis(f.ActualStartTime), notes, images, f.Priority,
		nullMillis(f.ResolvedAt), millis(f.CreatedAt), millis(f.UpdatedAt),
	))
	return mapErr(err)
}

func (r *SQLiteRepo) GetFailureReport(ctx context.Context, id string) (*models.FailureReport, error) {
	row, err := r.queryRow(ctx, sq.Select(failureReportColumns...).From("failure_reports").Where(sq.Eq{"failure_id": id}))
	if err != nil {
		return nil, err
	}
	f, err := scanFailureReport(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return f, nil
}

func (r *SQLiteRepo) ListFailureReports(ctx context.Context, filter repository.FailureReportFilter) ([]models.FailureReport, error) {
	b := sq.Select(failureReportColumns...).From("failure_reports").OrderBy("reported_date DESC", "seq DESC")
	if filter.Status != "" {
		b = b.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Severity != "" {
		b = b.Where(sq.Eq{"severity": string(filter.Severity)})
	}
	if filter.AssignedTechnician != "" {
		b = b.Where(sq.Eq{"assigned_technician": filter.AssignedTechnician})
	}
	if filter.From != nil && filter.To != nil {
		b = b.Where(sq.GtOrEq{"reported_date": millis(*filter.From)}).Where(sq.LtOrEq{"reported_date": millis(*filter.To)})
	}

	rows, err := r.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.FailureReport{}
	for rows.Next() {
		f, err := scanFailureReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateFailureReport(ctx context.Context, f *models.FailureReport) error {
	return r.writeFailureReport(ctx, f, true)
}

func (r *SQLiteRepo) RestoreFailureReport(ctx context.Context, f *models.FailureReport) error {
	return r.writeFailureReport(ctx, f, false)
}

// writeFailureReport replaces the mutable columns of a report. With openOnly
// set, a report that is already Resolved is not touched.
func (r *SQLiteRepo) writeFailureReport(ctx context.Context, f *models.FailureReport, openOnly bool) error {
	if f == nil {
		return fmt.Errorf("failure report is nil")
	}
	notes, images, err := encodeLists(f)
	if err != nil {
		return err
	}

	b := sq.Update("failure_reports").SetMap(map[string]any{
		"issue":                 f.Issue,
		"description":           f.Description,
		"severity":              string(f.Severity),
		"status":                string(f.Status),
		"assigned_technician":   f.AssignedTechnician,
		"estimated_repair_time": nullMillis(f.EstimatedRepairTime),
		"actual_start_time":     nullMillis(f.ActualStartTime),
		"notes":                 notes,
		"images":                images,
		"priority":              f.Priority,
		"resolved_at":           nullMillis(f.ResolvedAt),
		"updated_at":            millis(f.UpdatedAt),
	}).Where(sq.Eq{"failure_id": f.FailureID})
	if openOnly {
		b = b.Where(sq.NotEq{"status": string(models.ReportResolved)})
	}

	res, err := r.exec(ctx, b)
	if err != nil {
		return err
	}
	if !openOnly {
		return requireRow(res)
	}
	return r.guarded(ctx, res, f.FailureID)
}

func (r *SQLiteRepo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	res, err := r.exec(ctx, sq.Update("failure_reports").
		Set("status", string(models.ReportResolved)).
		Set("resolved_at", millis(at)).
		Set("updated_at", millis(at)).
		Where(sq.Eq{"failure_id": id}).
		Where(sq.NotEq{"status": string(models.ReportResolved)}))
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

func (r *SQLiteRepo) DeleteFailureReport(ctx context.Context, id string) error {
	res, err := r.exec(ctx, sq.Delete("failure_reports").
		Where(sq.Eq{"failure_id": id}).
		Where(sq.NotEq{"status": string(models.ReportResolved)}))
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, id)
}

// guarded interprets the result of a write conditioned on the report not
// being Resolved. No affected row means either a missing report or a
// resolved one.
func (r *SQLiteRepo) guarded(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	if _, err := r.GetFailureReport(ctx, id); err != nil {
		return err
	}
	return repository.ErrStale
}

var _ repository.FailureReportRepo = (*SQLiteRepo)(nil)
