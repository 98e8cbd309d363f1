package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

var equipmentColumns = []string{
	"id", "type", "name", "serial_no", "location", "status", "manual_link", "image_link",
	"installation_date", "manufacturer", "model_type", "operating_hours", "last_maintenance_date", "created_at",
}

func scanEquipment(s interface{ Scan(...any) error }) (*models.Equipment, error) {
	var (
		e           models.Equipment
		typ, status string
		installed   int64
		lastMaint   sql.NullInt64
		created     int64
	)
	if err := s.Scan(&e.ID, &typ, &e.Name, &e.SerialNo, &e.Location, &status, &e.ManualLink, &e.ImageLink,
		&installed, &e.Manufacturer, &e.ModelType, &e.OperatingHours, &lastMaint, &created); err != nil {
		return nil, err
	}
	e.Type = taxonomy.EquipmentType(typ)
	e.Status = models.EquipmentStatus(status)
	e.InstallationDate = fromMillis(installed)
	e.LastMaintenanceDate = timePtr(lastMaint)
	e.CreatedAt = fromMillis(created)
	return &e, nil
}

func (r *SQLiteRepo) CreateEquipment(ctx context.Context, e *models.Equipment) error {
	if e == nil {
		return fmt.Errorf("equipment is nil")
	}

	_, err := r.exec(ctx, sq.Insert("equipment").Columns(equipmentColumns...).Values(
		e.ID, string(e.Type), e.Name, e.SerialNo, e.Location, string(e.Status), e.ManualLink, e.ImageLink,
		millis(e.InstallationDate), e.Manufacturer, e.ModelType, e.OperatingHours, nullMillis(e.LastMaintenanceDate), millis(e.CreatedAt),
	))
	return mapErr(err)
}

func (r *SQLiteRepo) getEquipmentWhere(ctx context.Context, pred sq.Eq) (*models.Equipment, error) {
	row, err := r.queryRow(ctx, sq.Select(equipmentColumns...).From("equipment").Where(pred))
	if err != nil {
		return nil, err
	}
	e, err := scanEquipment(row)
	if err != nil {
		return nil, mapErr(err)
	}
	return e, nil
}

func (r *SQLiteRepo) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	return r.getEquipmentWhere(ctx, sq.Eq{"id": id})
}

func (r *SQLiteRepo) GetEquipmentBySerial(ctx context.Context, serialNo string) (*models.Equipment, error) {
	return r.getEquipmentWhere(ctx, sq.Eq{"serial_no": serialNo})
}

func (r *SQLiteRepo) ListEquipment(ctx context.Context, typ taxonomy.EquipmentType) ([]models.Equipment, error) {
	b := sq.Select(equipmentColumns...).From("equipment").OrderBy("created_at DESC", "seq DESC")
	if typ != "" {
		b = b.Where(sq.Eq{"type": string(typ)})
	}

	rows, err := r.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Equipment{}
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}

	return out, rows.Err()
}

func (r *SQLiteRepo) UpdateEquipment(ctx context.Context, e *models.Equipment) error {
	if e == nil {
		return fmt.Errorf("equipment is nil")
	}

	res, err := r.exec(ctx, sq.Update("equipment").SetMap(map[string]any{
		"type":                  string(e.Type),
		"serial_no":             e.SerialNo,
		"location":              e.Location,
		"status":                string(e.Status),
		"manual_link":           e.ManualLink,
		"image_link":            e.ImageLink,
		"installation_date":     millis(e.InstallationDate),
		"manufacturer":          e.Manufacturer,
		"model_type":            e.ModelType,
		"operating_hours":       e.OperatingHours,
		"last_maintenance_date": nullMillis(e.LastMaintenanceDate),
	}).Where(sq.Eq{"id": e.ID}))
	if err != nil {
		return mapErr(err)
	}
	return requireRow(res)
}

func (r *SQLiteRepo) DeleteEquipment(ctx context.Context, id string) error {
	res, err := r.exec(ctx, sq.Delete("equipment").Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return requireRow(res)
}

func (r *SQLiteRepo) IncrementOperatingHours(ctx context.Context, id string, hours float64) (*models.Equipment, error) {
	res, err := r.exec(ctx, sq.Update("equipment").
		Set("operating_hours", sq.Expr("operating_hours + ?", hours)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, mapErr(err)
	}
	if err := requireRow(res); err != nil {
		return nil, err
	}
	return r.GetEquipment(ctx, id)
}

func (r *SQLiteRepo) SetEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, lastMaintenance *time.Time) error {
	res, err := r.exec(ctx, sq.Update("equipment").
		Set("status", string(status)).
		Set("last_maintenance_date", nullMillis(lastMaintenance)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return err
	}
	return requireRow(res)
}

var _ repository.EquipmentRepo = (*SQLiteRepo)(nil)
