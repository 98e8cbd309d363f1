// Package mock provides store decorators for exercising failure paths in
// tests.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

// FailingStore wraps a real Store and makes selected write methods fail.
// Fail is keyed by method name, e.g. "SetEquipmentStatus". With
// NonTransactional set the store reports itself as non-transactional and
// WithinTx runs fn directly, so callers fall back to compensation.
type FailingStore struct {
	repository.Store

	Fail             map[string]error
	NonTransactional bool

	root  *FailingStore
	mu    sync.Mutex
	calls []string
}

func NewFailingStore(s repository.Store) *FailingStore {
	return &FailingStore{Store: s, Fail: map[string]error{}}
}

// Calls lists the intercepted write methods in call order.
func (f *FailingStore) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

func (f *FailingStore) hit(method string) error {
	if f.root != nil {
		return f.root.hit(method)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, method)
	return f.Fail[method]
}

func (f *FailingStore) Transactional() bool {
	return !f.NonTransactional && f.Store.Transactional()
}

func (f *FailingStore) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if f.NonTransactional {
		return fn(ctx, f)
	}
	return f.Store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, &FailingStore{Store: tx, Fail: f.Fail, root: f})
	})
}

func (f *FailingStore) CreateEquipment(ctx context.Context, e *models.Equipment) error {
	if err := f.hit("CreateEquipment"); err != nil {
		return err
	}
	return f.Store.CreateEquipment(ctx, e)
}

func (f *FailingStore) DeleteEquipment(ctx context.Context, id string) error {
	if err := f.hit("DeleteEquipment"); err != nil {
		return err
	}
	return f.Store.DeleteEquipment(ctx, id)
}

func (f *FailingStore) SetEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, lastMaintenance *time.Time) error {
	if err := f.hit("SetEquipmentStatus"); err != nil {
		return err
	}
	return f.Store.SetEquipmentStatus(ctx, id, status, lastMaintenance)
}

func (f *FailingStore) CreateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error {
	if err := f.hit("CreateMaintenance"); err != nil {
		return err
	}
	return f.Store.CreateMaintenance(ctx, m)
}

func (f *FailingStore) DeleteMaintenanceByEquipment(ctx context.Context, equipmentID string) (int64, error) {
	if err := f.hit("DeleteMaintenanceByEquipment"); err != nil {
		return 0, err
	}
	return f.Store.DeleteMaintenanceByEquipment(ctx, equipmentID)
}

func (f *FailingStore) CreateFailureReport(ctx context.Context, r *models.FailureReport) error {
	if err := f.hit("CreateFailureReport"); err != nil {
		return err
	}
	return f.Store.CreateFailureReport(ctx, r)
}

func (f *FailingStore) UpdateFailureReport(ctx context.Context, r *models.FailureReport) error {
	if err := f.hit("UpdateFailureReport"); err != nil {
		return err
	}
	return f.Store.UpdateFailureReport(ctx, r)
}

func (f *FailingStore) RestoreFailureReport(ctx context.Context, r *models.FailureReport) error {
	if err := f.hit("RestoreFailureReport"); err != nil {
		return err
	}
	return f.Store.RestoreFailureReport(ctx, r)
}

func (f *FailingStore) MarkResolved(ctx context.Context, id string, at time.Time) error {
	if err := f.hit("MarkResolved"); err != nil {
		return err
	}
	return f.Store.MarkResolved(ctx, id, at)
}
