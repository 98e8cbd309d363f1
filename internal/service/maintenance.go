package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/errs"
	imodels "github.com/garnizeh/medequip/internal/models"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

type CreateMaintenanceInput struct {
	Equipment       string     `json:"equipment" validate:"required"`
	Issue           string     `json:"issue" validate:"required"`
	Description     string     `json:"description"`
	Resolution      string     `json:"resolution" validate:"required"`
	Technician      string     `json:"technician" validate:"required"`
	MaintenanceDate *time.Time `json:"maintenanceDate"`
}

// UpdateMaintenanceInput is an administrative correction of a ledger entry.
type UpdateMaintenanceInput struct {
	Issue           *string    `json:"issue" validate:"omitnil,min=1"`
	Description     *string    `json:"description"`
	Resolution      *string    `json:"resolution"`
	Technician      *string    `json:"technician" validate:"omitnil,min=1"`
	MaintenanceDate *time.Time `json:"maintenanceDate"`
}

// EquipmentIssues lists the issues permitted for one equipment.
type EquipmentIssues struct {
	EquipmentID   string                 `json:"equipmentId"`
	EquipmentType taxonomy.EquipmentType `json:"equipmentType"`
	ValidIssues   []string               `json:"validIssues"`
}

type MaintenanceService struct {
	base
}

func NewMaintenanceService(d Deps) *MaintenanceService {
	return &MaintenanceService{base: newBase(d)}
}

// List returns every ledger entry, newest maintenance date first.
func (s *MaintenanceService) List(ctx context.Context) ([]models.MaintenanceRecord, error) {
	return s.list(ctx, "")
}

// ListByEquipment returns the entries of one equipment. Unknown equipment
// simply has no entries.
func (s *MaintenanceService) ListByEquipment(ctx context.Context, equipmentID string) ([]models.MaintenanceRecord, error) {
	return s.list(ctx, equipmentID)
}

func (s *MaintenanceService) list(ctx context.Context, equipmentID string) ([]models.MaintenanceRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	list, err := s.store.ListMaintenance(ctx, equipmentID)
	if err != nil {
		return nil, storeErr("list maintenance", "maintenance record", "", err)
	}

	cache := equipmentCache{}
	for i := range list {
		eq, err := s.lookupEquipment(ctx, cache, list[i].Equipment)
		if err != nil {
			return nil, err
		}
		list[i].EquipmentDetails = eq.Summary()
	}
	return list, nil
}

func (s *MaintenanceService) Get(ctx context.Context, id string) (*models.MaintenanceRecord, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.store.GetMaintenance(ctx, id)
	if err != nil {
		return nil, storeErr("get maintenance", "maintenance record", id, err)
	}
	eq, err := s.lookupEquipment(ctx, equipmentCache{}, m.Equipment)
	if err != nil {
		return nil, err
	}
	m.EquipmentDetails = eq.Summary()
	return m, nil
}

// Create writes a ledger entry and puts the equipment under maintenance in
// one unit of work.
func (s *MaintenanceService) Create(ctx context.Context, in CreateMaintenanceInput) (*models.MaintenanceRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var out *models.MaintenanceRecord
	err := s.unitOfWork(ctx, "create maintenance", func(ctx context.Context, tx repository.Store, comp *compensations) error {
		eq, err := tx.GetEquipment(ctx, in.Equipment)
		if err != nil {
			return storeErr("get equipment", "equipment", in.Equipment, err)
		}
		issue, err := s.validIssue(eq.Type, in.Issue)
		if err != nil {
			return err
		}

		now := s.clock()
		date := now
		if in.MaintenanceDate != nil {
			date = ms(*in.MaintenanceDate)
		}
		m := &models.MaintenanceRecord{
			Equipment:       eq.ID,
			Issue:           issue,
			Description:     in.Description,
			Resolution:      in.Resolution,
			Technician:      in.Technician,
			MaintenanceDate: date,
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
		out = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("maintenance logged", zap.String("id", out.MaintenanceID), zap.String("equipment", out.Equipment))
	return out, nil
}

// Update patches a ledger entry. A changed issue is checked again against
// the taxonomy of the equipment's type.
func (s *MaintenanceService) Update(ctx context.Context, id string, in UpdateMaintenanceInput) (*models.MaintenanceRecord, error) {
	if err := s.validate.Struct(in); err != nil {
		return nil, err
	}

	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	m, err := s.store.GetMaintenance(ctx, id)
	if err != nil {
		return nil, storeErr("get maintenance", "maintenance record", id, err)
	}
	eq, err := s.lookupEquipment(ctx, equipmentCache{}, m.Equipment)
	if err != nil {
		return nil, err
	}

	if in.Issue != nil {
		issue := *in.Issue
		if eq != nil {
			if issue, err = s.validIssue(eq.Type, issue); err != nil {
				return nil, err
			}
		}
		m.Issue = issue
	}
	if in.Description != nil {
		m.Description = *in.Description
	}
	if in.Resolution != nil {
		m.Resolution = *in.Resolution
	}
	if in.Technician != nil {
		m.Technician = *in.Technician
	}
	if in.MaintenanceDate != nil {
		m.MaintenanceDate = ms(*in.MaintenanceDate)
	}
	m.UpdatedAt = s.clock()

	if err := s.checkDoc(ctx, schema.Maintenance, m); err != nil {
		return nil, err
	}
	if err := s.store.UpdateMaintenance(ctx, m); err != nil {
		return nil, storeErr("update maintenance", "maintenance record", id, err)
	}
	m.EquipmentDetails = eq.Summary()
	return m, nil
}

func (s *MaintenanceService) Delete(ctx context.Context, id string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.store.DeleteMaintenance(ctx, id); err != nil {
		return storeErr("delete maintenance", "maintenance record", id, err)
	}
	return nil
}

// Statistics counts issue occurrences per equipment type. Entries whose
// equipment no longer exists are left out.
func (s *MaintenanceService) Statistics(ctx context.Context) ([]models.MaintenanceStatistics, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	entries, err := s.store.ListMaintenance(ctx, "")
	if err != nil {
		return nil, storeErr("list maintenance", "maintenance record", "", err)
	}
	equipment, err := s.store.ListEquipment(ctx, "")
	if err != nil {
		return nil, storeErr("list equipment", "equipment", "", err)
	}

	types := make(map[string]taxonomy.EquipmentType, len(equipment))
	for _, e := range equipment {
		types[e.ID] = e.Type
	}
	return MaintenanceStatistics(entries, types), nil
}

// AllIssues returns the whole taxonomy.
func (s *MaintenanceService) AllIssues() map[taxonomy.EquipmentType][]string {
	return s.tax.All()
}

// IssuesForType returns the permitted issues of a type in any spelling.
func (s *MaintenanceService) IssuesForType(typ string) (taxonomy.EquipmentType, []string, error) {
	canonical, ok := s.tax.ParseType(typ)
	if !ok {
		return "", nil, errs.Validation("type", "invalid equipment type %q", typ)
	}
	issues, _ := s.tax.Issues(canonical)
	return canonical, issues, nil
}

// IssuesForEquipment returns the permitted issues of the equipment's type.
func (s *MaintenanceService) IssuesForEquipment(ctx context.Context, equipmentID string) (*EquipmentIssues, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	eq, err := s.store.GetEquipment(ctx, equipmentID)
	if err != nil {
		return nil, storeErr("get equipment", "equipment", equipmentID, err)
	}
	issues, ok := s.tax.Issues(eq.Type)
	if !ok {
		issues = []string{}
	}
	return &EquipmentIssues{EquipmentID: eq.ID, EquipmentType: eq.Type, ValidIssues: issues}, nil
}
