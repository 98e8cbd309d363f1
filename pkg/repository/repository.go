package repository

import (
	"context"
	"errors"
	"time"

	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
)

// Repository interfaces for domain entities. These are the public contracts
// consumers should depend on; concrete implementations live under internal/.

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate key")
	// ErrStale is returned by conditional writes whose precondition no
	// longer holds.
	ErrStale = errors.New("stale write")
)

// DuplicateError names the unique field that was violated. It matches
// ErrDuplicate with errors.Is.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string { return "duplicate key: " + e.Field }

func (e *DuplicateError) Is(target error) bool { return target == ErrDuplicate }

type EquipmentRepo interface {
	CreateEquipment(ctx context.Context, e *models.Equipment) error
	GetEquipment(ctx context.Context, id string) (*models.Equipment, error)
	GetEquipmentBySerial(ctx context.Context, serialNo string) (*models.Equipment, error)
	// ListEquipment returns all equipment, newest first. An empty typ lists every type.
	ListEquipment(ctx context.Context, typ taxonomy.EquipmentType) ([]models.Equipment, error)
	UpdateEquipment(ctx context.Context, e *models.Equipment) error
	DeleteEquipment(ctx context.Context, id string) error
	IncrementOperatingHours(ctx context.Context, id string, hours float64) (*models.Equipment, error)
	// SetEquipmentStatus writes status and lastMaintenanceDate exactly as given.
	SetEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, lastMaintenance *time.Time) error
}

type MaintenanceRepo interface {
	CreateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error
	GetMaintenance(ctx context.Context, id string) (*models.MaintenanceRecord, error)
	// ListMaintenance returns entries newest maintenance date first. An empty
	// equipmentID lists every entry.
	ListMaintenance(ctx context.Context, equipmentID string) ([]models.MaintenanceRecord, error)
	UpdateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error
	DeleteMaintenance(ctx context.Context, id string) error
	DeleteMaintenanceByEquipment(ctx context.Context, equipmentID string) (int64, error)
}

// FailureReportFilter narrows ListFailureReports. Zero values match all.
// The date range applies only when both bounds are set.
type FailureReportFilter struct {
	Status             models.ReportStatus
	Severity           models.Severity
	AssignedTechnician string
	From               *time.Time
	To                 *time.Time
}

type FailureReportRepo interface {
	CreateFailureReport(ctx context.Context, r *models.FailureReport) error
	GetFailureReport(ctx context.Context, id string) (*models.FailureReport, error)
	// ListFailureReports returns reports newest reported date first.
	ListFailureReports(ctx context.Context, f FailureReportFilter) ([]models.FailureReport, error)
	// UpdateFailureReport overwrites an open report. A report that is
	// Resolved by the time the write lands is left alone and ErrStale is
	// returned.
	UpdateFailureReport(ctx context.Context, r *models.FailureReport) error
	// RestoreFailureReport overwrites a report whatever its current status.
	// It exists to undo a resolution that could not be completed.
	RestoreFailureReport(ctx context.Context, r *models.FailureReport) error
	// MarkResolved moves a report to Resolved unless it already is, in which
	// case it returns ErrStale.
	MarkResolved(ctx context.Context, id string, at time.Time) error
	// DeleteFailureReport removes an open report. Resolved reports are kept
	// and ErrStale is returned.
	DeleteFailureReport(ctx context.Context, id string) error
}

// Store groups the repositories that share a backend.
type Store interface {
	EquipmentRepo
	MaintenanceRepo
	FailureReportRepo

	// WithinTx runs fn against a Store scoped to one unit of work. When
	// Transactional reports false the writes made by fn are not atomic and
	// callers must compensate on failure.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
	Transactional() bool
	Ping(ctx context.Context) error
}

type SessionRepo interface {
	SaveSession(ctx context.Context, s *models.ChatSession, ttl time.Duration) error
	GetSession(ctx context.Context, id string) (*models.ChatSession, error)
	DeleteSession(ctx context.Context, id string) error
}
