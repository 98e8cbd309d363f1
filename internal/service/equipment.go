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
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

type CreateEquipmentInput struct {
	Type                string     `json:"type" validate:"required,equipment_type"`
	SerialNo            string     `json:"serialNo" validate:"required"`
	Location            string     `json:"location" validate:"required"`
	Status              string     `json:"status" validate:"required,equipment_status"`
	ManualLink          string     `json:"manualLink" validate:"omitempty,http_url"`
	ImageLink           string     `json:"imageLink" validate:"omitempty,http_url"`
	InstallationDate    *time.Time `json:"installationDate" validate:"required"`
	Manufacturer        string     `json:"manufacturer" validate:"required"`
	ModelType           string     `json:"modelType" validate:"required"`
	OperatingHours      *float64   `json:"operatingHours" validate:"omitnil,gte=0"`
	LastMaintenanceDate *time.Time `json:"lastMaintenanceDate"`
}

// UpdateEquipmentInput is a partial update. id and name are not part of it
// and are ignored when a caller sends them. Type may only repeat the current
// type.
type UpdateEquipmentInput struct {
	Type                *string    `json:"type" validate:"omitnil,equipment_type"`
	SerialNo            *string    `json:"serialNo" validate:"omitnil,min=1"`
	Location            *string    `json:"location" validate:"omitnil,min=1"`
	Status              *string    `json:"status" validate:"omitnil,equipment_status"`
	ManualLink          *string    `json:"manualLink" validate:"omitempty,http_url"`
	ImageLink           *string    `json:"imageLink" validate:"omitempty,http_url"`
	InstallationDate    *time.Time `json:"installationDate"`
	Manufacturer        *string    `json:"manufacturer" validate:"omitnil,min=1"`
	ModelType           *string    `json:"modelType" validate:"omitnil,min=1"`
	OperatingHours      *float64   `json:"operatingHours" validate:"omitnil,gte=0"`
	LastMaintenanceDate *time.Time `json:"lastMaintenanceDate"`
}

type OperatingHoursInput struct {
	Hours *float64 `json:"hours" validate:"required,gte=0"`
}

type ReportIssueInput struct {
	Issue       string `json:"issue" validate:"required"`
	Technician  string `json:"technician" validate:"required"`
	Description string `json:"description"`
}

// IssueReport is the outcome of a report-issue call.
type IssueReport struct {
	MaintenanceHistory *models.MaintenanceRecord `json:"maintenanceHistory"`
	UpdatedEquipment   *models.Equipment         `json:"updatedEquipment"`
}

// reportIssueResolution marks ledger entries opened by a report-issue call
// whose fix is not known yet.
const reportIssueResolution = "Unknown"

type EquipmentService struct {
	base
}

func NewEquipmentService(d Deps) *EquipmentService {
	return &EquipmentService{base: newBase(d)}
}

func (s *EquipmentService) List(ctx context.Context) ([]models.Equipment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.store.ListEquipment(ctx, "")
	if err != nil {
		return nil, storeErr("list equipment", "equipment", "", err)
	}
	return list, nil
}

// ListByType accepts any spelling of a known type.
func (s *EquipmentService) ListByType(ctx context.Context, typ string) ([]models.Equipment, error) {
	canonical, ok := s.tax.ParseType(typ)
	if !ok {
		return nil, errs.Validation("type", "invalid equipment type %q", typ)
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.store.ListEquipment(ctx, canonical)
	if err != nil {
		return nil, storeErr("list equipment", "equipment", "", err)
	}
	return list, nil
}

func (s *EquipmentService) Get(ctx context.Context, id string) (*models.Equipment, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return nil, storeErr("get equipment", "equipment", id, err)
	}
	return e, nil
}

func (s *EquipmentService) Create(ctx context.Context, in CreateEquipmentInput) (*models.Equipment, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}
	typ, _ := s.tax.ParseType(in.Type)

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	serial := strings.TrimSpace(in.SerialNo)
	if err := s.ensureSerialFree(ctx, serial, ""); err != nil {
		return nil, err
	}

	e := &models.Equipment{
		Type:                typ,
		SerialNo:            serial,
		Location:            in.Location,
		Status:              models.EquipmentStatus(in.Status),
		ManualLink:          in.ManualLink,
		ImageLink:           in.ImageLink,
		InstallationDate:    ms(*in.InstallationDate),
		Manufacturer:        in.Manufacturer,
		ModelType:           in.ModelType,
		LastMaintenanceDate: msPtr(in.LastMaintenanceDate),
		CreatedAt:           s.clock(),
	}
	if in.OperatingHours != nil {
		e.OperatingHours = *in.OperatingHours
	}

	var err error
	for range maxIDAttempts {
		e.ID = s.equipmentID(typ)
		e.Name = e.ID
		if err = s.checkDoc(ctx, schema.Equipment, e); err != nil {
			return nil, err
		}
		err = s.store.CreateEquipment(ctx, e)
		if !isIDCollision(err, "id") {
			break
		}
		s.logger.Debug("equipment id collision, regenerating", zap.String("id", e.ID))
	}
	if err != nil {
		return nil, storeErr("create equipment", "equipment", e.ID, err)
	}

	s.logger.Info("equipment registered", zap.String("id", e.ID), zap.String("type", string(typ)))
	return e, nil
}

func (s *EquipmentService) Update(ctx context.Context, id string, in UpdateEquipmentInput) (*models.Equipment, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.store.GetEquipment(ctx, id)
	if err != nil {
		return nil, storeErr("get equipment", "equipment", id, err)
	}

	var patch models.EquipmentPatch
	// the id prefix and the ledger's issues follow the type, so it is fixed
	// at registration
	if in.Type != nil {
		if typ, _ := s.tax.ParseType(*in.Type); typ != e.Type {
			return nil, errs.Validation("type", "equipment type cannot be changed from %q", e.Type)
		}
	}
	if in.SerialNo != nil {
		serial := strings.TrimSpace(*in.SerialNo)
		if serial != e.SerialNo {
			if err := s.ensureSerialFree(ctx, serial, e.ID); err != nil {
				return nil, err
			}
		}
		patch.SerialNo = &serial
	}
	if in.Status != nil {
		st := models.EquipmentStatus(*in.Status)
		patch.Status = &st
	}
	patch.Location = in.Location
	patch.ManualLink = in.ManualLink
	patch.ImageLink = in.ImageLink
	patch.InstallationDate = msPtr(in.InstallationDate)
	patch.Manufacturer = in.Manufacturer
	patch.ModelType = in.ModelType
	patch.OperatingHours = in.OperatingHours
	patch.LastMaintenanceDate = msPtr(in.LastMaintenanceDate)
	patch.Apply(e)

	if err := s.checkDoc(ctx, schema.Equipment, e); err != nil {
		return nil, err
	}
	if err := s.store.UpdateEquipment(ctx, e); err != nil {
		return nil, storeErr("update equipment", "equipment", id, err)
	}
	return e, nil
}

// Delete removes the equipment and its maintenance history. It returns the
// number of ledger entries removed with it.
func (s *EquipmentService) Delete(ctx context.Context, id string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var removed int64
	err := s.unitOfWork(ctx, "delete equipment", func(ctx context.Context, tx repository.Store, comp *compensations) error {
		if _, err := tx.GetEquipment(ctx, id); err != nil {
			return storeErr("get equipment", "equipment", id, err)
		}

		history, err := tx.ListMaintenance(ctx, id)
		if err != nil {
			return storeErr("list maintenance", "maintenance record", "", err)
		}
		n, err := tx.DeleteMaintenanceByEquipment(ctx, id)
		if err != nil {
			return storeErr("delete maintenance", "maintenance record", "", err)
		}
		comp.add("restore maintenance history", func(ctx context.Context) error {
			var errList []error
			for i := range history {
				errList = append(errList, tx.CreateMaintenance(ctx, &history[i]))
			}
			return errors.Join(errList...)
		})

		if err := tx.DeleteEquipment(ctx, id); err != nil {
			return storeErr("delete equipment", "equipment", id, err)
		}
		removed = n
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("equipment deleted", zap.String("id", id), zap.Int64("maintenance_removed", removed))
	return removed, nil
}

// AddOperatingHours increments the cumulative operating hours atomically.
func (s *EquipmentService) AddOperatingHours(ctx context.Context, id string, in OperatingHoursInput) (*models.Equipment, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	e, err := s.store.IncrementOperatingHours(ctx, id, *in.Hours)
	if err != nil {
		return nil, storeErr("increment operating hours", "equipment", id, err)
	}
	return e, nil
}

// ReportIssue logs an issue against the equipment with an unknown
// resolution and puts the equipment under maintenance.
func (s *EquipmentService) ReportIssue(ctx context.Context, id string, in ReportIssueInput) (*IssueReport, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out IssueReport
	err := s.unitOfWork(ctx, "report issue", func(ctx context.Context, tx repository.Store, comp *compensations) error {
		eq, err := tx.GetEquipment(ctx, id)
		if err != nil {
			return storeErr("get equipment", "equipment", id, err)
		}
		issue, err := s.validIssue(eq.Type, in.Issue)
		if err != nil {
			return err
		}

		now := s.clock()
		m := &models.MaintenanceRecord{
			Equipment:       eq.ID,
			Issue:           issue,
			Description:     in.Description,
			Resolution:      reportIssueResolution,
			Technician:      in.Technician,
			MaintenanceDate: now,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		if err := s.insertMaintenance(ctx, tx, m); err != nil {
			return err
		}
		comp.add("delete maintenance entry", func(ctx context.Context) error {
			return tx.DeleteMaintenance(ctx, m.MaintenanceID)
		})

		updated, err := s.transitionEquipment(ctx, tx, comp, eq.ID, imodels.EventIssueReported, "", now)
		if err != nil {
			return err
		}

		m.EquipmentDetails = updated.Summary()
		out = IssueReport{MaintenanceHistory: m, UpdatedEquipment: updated}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ensureSerialFree rejects serial when another record than self holds it.
func (s *EquipmentService) ensureSerialFree(ctx context.Context, serial, self string) error {
	other, err := s.store.GetEquipmentBySerial(ctx, serial)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return nil
	case err != nil:
		return storeErr("get equipment by serial", "equipment", serial, err)
	case other.ID != self:
		return errs.Validation("serialNo", "equipment with this serial number already exists")
	}
	return nil
}
