// Package service implements the equipment registry, the maintenance ledger,
// the failure report tracker and the assistant on top of a repository.Store.
package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garnizeh/medequip/internal/errs"
	"github.com/garnizeh/medequip/internal/metrics"
	imodels "github.com/garnizeh/medequip/internal/models"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

const (
	defaultStoreTimeout = 5 * time.Second
	// maxIDAttempts bounds regeneration of a random id after a collision.
	maxIDAttempts = 5
)

// Deps are the collaborators shared by every service. Store and Taxonomy are
// required; the rest fall back to no-op or default implementations.
type Deps struct {
	Store    repository.Store
	Taxonomy *taxonomy.Taxonomy
	Schemas  *schema.Validator
	Metrics  *metrics.Metrics
	Logger   *zap.Logger
	// Timeout bounds every store call made on behalf of one operation.
	Timeout time.Duration
	Now     func() time.Time
	// IntN returns a random int in [0, n). Tests replace it to force id
	// collisions.
	IntN func(n int) int
}

type base struct {
	store    repository.Store
	tax      *taxonomy.Taxonomy
	schemas  *schema.Validator
	metrics  *metrics.Metrics
	logger   *zap.Logger
	timeout  time.Duration
	now      func() time.Time
	intn     func(n int) int
	validate *inputValidator
}

func newBase(d Deps) base {
	b := base{
		store:   d.Store,
		tax:     d.Taxonomy,
		schemas: d.Schemas,
		metrics: d.Metrics,
		logger:  d.Logger,
		timeout: d.Timeout,
		now:     d.Now,
		intn:    d.IntN,
	}
	if b.tax == nil {
		b.tax = taxonomy.Default()
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	if b.timeout <= 0 {
		b.timeout = defaultStoreTimeout
	}
	if b.now == nil {
		b.now = func() time.Time { return time.Now().UTC() }
	}
	if b.intn == nil {
		b.intn = rand.IntN
	}
	b.validate = newInputValidator(b.tax)
	return b
}

func (b *base) clock() time.Time {
	return b.now().UTC().Truncate(time.Millisecond)
}

func (b *base) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.timeout)
}

// checkDoc validates a document against its JSON schema before it is written.
func (b *base) checkDoc(ctx context.Context, name string, doc any) error {
	if b.schemas == nil {
		return nil
	}
	return b.schemas.Validate(ctx, name, doc)
}

// storeErr classifies an error returned by the store. entity and id name
// the record for not-found errors.
func storeErr(op, entity, id string, err error) error {
	if err == nil {
		return nil
	}
	var dup *repository.DuplicateError
	switch {
	case errors.As(err, &dup):
		return errs.Validation(dup.Field, "%s with this %s already exists", entity, dup.Field)
	case errors.Is(err, repository.ErrNotFound):
		return errs.NotFound(entity, id)
	case errors.Is(err, repository.ErrStale):
		return errs.Conflict("%s %q was modified concurrently", entity, id)
	}
	return errs.Wrap(op, err)
}

func isIDCollision(err error, field string) bool {
	var dup *repository.DuplicateError
	return errors.As(err, &dup) && dup.Field == field
}

// ID generation

const idAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func (b *base) equipmentID(typ taxonomy.EquipmentType) string {
	return fmt.Sprintf("%s_%06d", b.tax.Prefix(typ), 100000+b.intn(900000))
}

func (b *base) failureID(at time.Time) string {
	return fmt.Sprintf("FR-%s-%05d", at.UTC().Format("20060102"), 10000+b.intn(90000))
}

func (b *base) maintenanceID(at time.Time) string {
	var sb strings.Builder
	for range 5 {
		sb.WriteByte(idAlphabet[b.intn(len(idAlphabet))])
	}
	return fmt.Sprintf("MNT-%d-%s", at.UnixMilli(), sb.String())
}

// insertMaintenance writes m, drawing a fresh id whenever the generated one
// is already taken.
func (b *base) insertMaintenance(ctx context.Context, tx repository.Store, m *models.MaintenanceRecord) error {
	var err error
	for range maxIDAttempts {
		m.MaintenanceID = b.maintenanceID(m.CreatedAt)
		if err = b.checkDoc(ctx, schema.Maintenance, m); err != nil {
			return err
		}
		err = tx.CreateMaintenance(ctx, m)
		if !isIDCollision(err, "maintenanceId") {
			break
		}
	}
	if err != nil {
		return storeErr("create maintenance", "maintenance record", m.MaintenanceID, err)
	}
	b.metrics.MaintenanceLogged()
	return nil
}

// Units of work

// compensations collects the undo steps of a unit of work that runs
// without a store transaction.
type compensations struct {
	steps []compensation
}

type compensation struct {
	name string
	undo func(ctx context.Context) error
}

func (c *compensations) add(name string, undo func(ctx context.Context) error) {
	c.steps = append(c.steps, compensation{name: name, undo: undo})
}

// unitOfWork runs fn inside a store transaction. On a store without
// transactions fn registers an undo step after each write, and those steps
// are replayed in reverse when fn fails.
func (b *base) unitOfWork(ctx context.Context, op string, fn func(ctx context.Context, tx repository.Store, comp *compensations) error) error {
	comp := &compensations{}
	err := b.store.WithinTx(ctx, func(ctx context.Context, tx repository.Store) error {
		return fn(ctx, tx, comp)
	})
	if err == nil || b.store.Transactional() {
		return err
	}
	b.compensate(ctx, op, comp)
	return err
}

func (b *base) compensate(ctx context.Context, op string, comp *compensations) {
	// Undo must run even when the caller's context is already done.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), b.timeout)
	defer cancel()

	for i := len(comp.steps) - 1; i >= 0; i-- {
		step := comp.steps[i]
		if err := step.undo(ctx); err != nil {
			b.logger.Error("compensation failed",
				zap.String("op", op),
				zap.String("step", step.name),
				zap.Error(err))
			continue
		}
		b.logger.Warn("compensation applied", zap.String("op", op), zap.String("step", step.name))
	}
}

// transitionEquipment applies the status change an event implies and
// registers the undo step restoring the previous status.
func (b *base) transitionEquipment(ctx context.Context, tx repository.Store, comp *compensations, id string, ev imodels.EquipmentEvent, sev models.Severity, at time.Time) (*models.Equipment, error) {
	next, err := imodels.NextEquipmentStatus(ev, sev)
	if err != nil {
		return nil, err
	}

	eq, err := tx.GetEquipment(ctx, id)
	if err != nil {
		return nil, storeErr("get equipment", "equipment", id, err)
	}
	prevStatus, prevStamp := eq.Status, eq.LastMaintenanceDate

	stamp := prevStamp
	if next.StampMaintenance {
		stamp = &at
	}
	if err := tx.SetEquipmentStatus(ctx, id, next.Status, stamp); err != nil {
		return nil, storeErr("set equipment status", "equipment", id, err)
	}
	comp.add("restore equipment status", func(ctx context.Context) error {
		return tx.SetEquipmentStatus(ctx, id, prevStatus, prevStamp)
	})

	b.logger.Debug("equipment status changed",
		zap.String("equipment", id),
		zap.Stringer("event", ev),
		zap.String("from", string(prevStatus)),
		zap.String("to", string(next.Status)))

	eq.Status = next.Status
	eq.LastMaintenanceDate = stamp
	return eq, nil
}

// equipmentCache memoises equipment lookups while decorating a list of
// records. Missing equipment is cached as nil.
type equipmentCache map[string]*models.Equipment

func (b *base) lookupEquipment(ctx context.Context, cache equipmentCache, id string) (*models.Equipment, error) {
	if e, ok := cache[id]; ok {
		return e, nil
	}
	e, err := b.store.GetEquipment(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		cache[id] = nil
		return nil, nil
	}
	if err != nil {
		return nil, storeErr("get equipment", "equipment", id, err)
	}
	cache[id] = e
	return e, nil
}

// validIssue checks issue against the taxonomy for typ and returns its
// canonical spelling. Types without a taxonomy entry accept any issue.
func (b *base) validIssue(typ taxonomy.EquipmentType, issue string) (string, error) {
	canonical, permitted, known := b.tax.CanonicalIssue(typ, issue)
	switch {
	case !known:
		return strings.TrimSpace(issue), nil
	case !permitted:
		valid, _ := b.tax.Issues(typ)
		return "", errs.Validation("issue", "invalid issue for %s. Valid issues: %s", typ, strings.Join(valid, ", "))
	}
	return canonical, nil
}

func ms(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

func msPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := ms(*t)
	return &v
}
