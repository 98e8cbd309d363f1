package service_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	dbfs "github.com/garnizeh/medequip/db"
	dbpkg "github.com/garnizeh/medequip/internal/db"
	sqlite "github.com/garnizeh/medequip/internal/repository/sqlite"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

var testStart = time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

// stepClock advances one second on every reading so records get distinct,
// ordered timestamps.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newStore(t *testing.T) *sqlite.SQLiteRepo {
	t.Helper()
	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	d, err := dbpkg.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	if err := dbpkg.Migrate(ctx, d, dbfs.Migrations(), nil); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return sqlite.New(d, nil)
}

func newDeps(t *testing.T, store repository.Store) service.Deps {
	t.Helper()
	schemas, err := schema.NewValidator(dbfs.Schemas, "schemas")
	if err != nil {
		t.Fatalf("schemas: %v", err)
	}
	clock := &stepClock{t: testStart}
	return service.Deps{
		Store:    store,
		Taxonomy: taxonomy.Default(),
		Schemas:  schemas,
		Now:      clock.Now,
	}
}

type services struct {
	equipment   *service.EquipmentService
	maintenance *service.MaintenanceService
	reports     *service.FailureReportService
	store       repository.Store
}

func newServices(t *testing.T) *services {
	t.Helper()
	return newServicesWith(t, newDeps(t, newStore(t)))
}

func newServicesWith(t *testing.T, d service.Deps) *services {
	t.Helper()
	return &services{
		equipment:   service.NewEquipmentService(d),
		maintenance: service.NewMaintenanceService(d),
		reports:     service.NewFailureReportService(d),
		store:       d.Store,
	}
}

func ptr[T any](v T) *T { return &v }

func equipmentInput(typ, serial string) service.CreateEquipmentInput {
	return service.CreateEquipmentInput{
		Type:             typ,
		SerialNo:         serial,
		Location:         "Emergency Room",
		Status:           string(models.StatusOperational),
		InstallationDate: ptr(time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)),
		Manufacturer:     "Zoll",
		ModelType:        "R Series",
	}
}

func mustCreateEquipment(t *testing.T, s *services, typ, serial string) *models.Equipment {
	t.Helper()
	e, err := s.equipment.Create(context.Background(), equipmentInput(typ, serial))
	if err != nil {
		t.Fatalf("create equipment: %v", err)
	}
	return e
}

func mustCreateReport(t *testing.T, s *services, equipmentID, issue string, sev models.Severity) *models.FailureReport {
	t.Helper()
	r, err := s.reports.Create(context.Background(), service.CreateFailureReportInput{
		Equipment:   equipmentID,
		Issue:       issue,
		Description: "reported during rounds",
		ReportedBy:  "Nurse A",
		Severity:    string(sev),
	})
	if err != nil {
		t.Fatalf("create failure report: %v", err)
	}
	return r
}
