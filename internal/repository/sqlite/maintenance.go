package sqlite

import (
	"context"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

var maintenanceColumns = []string{
	"maintenance_id", "equipment_id", "issue", "description", "resolution", "technician",
	"maintenance_date", "failure_id", "created_at", "updated_at",
}

func scanMaintenance(s interface{ Scan(...any) error }) (*models.MaintenanceRecord, error) {
	var (
		m                      models.MaintenanceRecord
		date, created, updated int64
	)
	if err := s.Scan(&m.MaintenanceID, &m.Equipment, &m.Issue, &m.Description, &m.Resolution, &m.Technician,
		&date, &m.FailureID, &created, &updated); err != nil {
		return nil, err
	}
	m.MaintenanceDate = fromMillis(date)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)
	return &m, nil
}

func (r *SQLiteRepo) CreateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error {
	if m == nil {
		return fmt.Errorf("maintenance record is nil")
	}

	_, err := r.exec(ctx, sq.Insert("maintenance_history").Columns(maintenanceColumns...).Values(
		m.MaintenanceID, m.Equipment, m.Issue, m.Description, m.Resolution, m.Technician,
		millis(m.MaintenanceDate), m.FailureID, millis(m.CreatedAt), millis(m.UpdatedAt),
	))
	return mapErr(err)
}

func (r *SQLiteRepo) GetMaintenance(ctx context.Context, id string) (*models.MaintenanceRecord, error) {
	row, err := r.queryRow(ctx, sq.Select(maintenanceColumns...).From("maintenance_history").Where(sq.Eq{"maintenance_id": id}))
	if err != nil {
		return nil, err
	}
	m, err := scanMaintenance(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return m, nil
}

func (r *SQLiteRepo) ListMaintenance(ctx context.Context, equipmentID string) ([]models.MaintenanceRecord, error) {
	b := sq.Select(maintenanceColumns...).From("maintenance_history").OrderBy("maintenance_date DESC", "seq DESC")
	if equipmentID != "" {
		b = b.Where(sq.Eq{"equipment_id": equipmentID})
	}

	rows, err := r.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.MaintenanceRecord{}
	for rows.Next() {
		m, err := scanMaintenance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error {
	if m == nil {
		return fmt.Errorf("maintenance record is nil")
	}

	res, err := r.exec(ctx, sq.Update("maintenance_history").SetMap(map[string]any{
		"issue":            m.Issue,
		"description":      m.Description,
		"resolution":       m.Resolution,
		"technician":       m.Technician,
		"maintenance_date": millis(m.MaintenanceDate),
		"updated_at":       millis(m.UpdatedAt),
	}).Where(sq.Eq{"maintenance_id": m.MaintenanceID}))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLiteRepo) DeleteMaintenance(ctx context.Context, id string) error {
	res, err := r.exec(ctx, sq.Delete("maintenance_history").Where(sq.Eq{"maintenance_id": id}))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLiteRepo) DeleteMaintenanceByEquipment(ctx context.Context, equipmentID string) (int64, error) {
	res, err := r.exec(ctx, sq.Delete("maintenance_history").Where(sq.Eq{"equipment_id": equipmentID}))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

var _ repository.MaintenanceRepo = (*SQLiteRepo)(nil)
