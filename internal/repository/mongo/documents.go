package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/models"
	"github.com/garnizeh/medequip/pkg/repository"
)

// Each document carries the storage ObjectID next to the generated
// human-readable code the API uses.

type equipmentDoc struct {
	OID              primitive.ObjectID `bson:"_id,omitempty"`
	models.Equipment `bson:",inline"`
}

type maintenanceDoc struct {
	OID                      primitive.ObjectID `bson:"_id,omitempty"`
	models.MaintenanceRecord `bson:",inline"`
}

type failureReportDoc struct {
	OID                  primitive.ObjectID `bson:"_id,omitempty"`
	models.FailureReport `bson:",inline"`
}

// Equipment

func (r *Repo) CreateEquipment(ctx context.Context, e *models.Equipment) error {
	if e == nil {
		return fmt.Errorf("equipment is nil")
	}
	_, err := r.equipment.InsertOne(ctx, equipmentDoc{Equipment: *e})
	return mapErr(err)
}

func (r *Repo) findEquipment(ctx context.Context, filter bson.M) (*models.Equipment, error) {
	var doc equipmentDoc
	if err := r.equipment.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	e := normalizeEquipment(doc.Equipment)
	return &e, nil
}

func (r *Repo) GetEquipment(ctx context.Context, id string) (*models.Equipment, error) {
	return r.findEquipment(ctx, bson.M{"id": id})
}

func (r *Repo) GetEquipmentBySerial(ctx context.Context, serialNo string) (*models.Equipment, error) {
	return r.findEquipment(ctx, bson.M{"serialNo": serialNo})
}

func (r *Repo) ListEquipment(ctx context.Context, typ taxonomy.EquipmentType) ([]models.Equipment, error) {
	filter := bson.M{}
	if typ != "" {
		filter["type"] = string(typ)
	}
	cur, err := r.equipment.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}))
	if err != nil {
		return nil, err
	}

	var docs []equipmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.Equipment, 0, len(docs))
	for _, d := range docs {
		out = append(out, normalizeEquipment(d.Equipment))
	}
	return out, nil
}

func (r *Repo) UpdateEquipment(ctx context.Context, e *models.Equipment) error {
	if e == nil {
		return fmt.Errorf("equipment is nil")
	}
	res, err := r.equipment.ReplaceOne(ctx, bson.M{"id": e.ID}, e)
	if err != nil {
		return mapErr(err)
	}
	return matched(res)
}

func (r *Repo) DeleteEquipment(ctx context.Context, id string) error {
	res, err := r.equipment.DeleteOne(ctx, bson.M{"id": id})
	if err != nil {
		return err
	}
	return deleted(res)
}

func (r *Repo) IncrementOperatingHours(ctx context.Context, id string, hours float64) (*models.Equipment, error) {
	var doc equipmentDoc
	err := r.equipment.FindOneAndUpdate(ctx,
		bson.M{"id": id},
		bson.M{"$inc": bson.M{"operatingHours": hours}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return nil, mapErr(err)
	}
	e := normalizeEquipment(doc.Equipment)
	return &e, nil
}

func (r *Repo) SetEquipmentStatus(ctx context.Context, id string, status models.EquipmentStatus, lastMaintenance *time.Time) error {
	update := bson.M{"$set": bson.M{"status": string(status)}}
	if lastMaintenance != nil {
		update["$set"] = bson.M{"status": string(status), "lastMaintenanceDate": utc(*lastMaintenance)}
	} else {
		update["$unset"] = bson.M{"lastMaintenanceDate": ""}
	}

	res, err := r.equipment.UpdateOne(ctx, bson.M{"id": id}, update)
	if err != nil {
		return err
	}
	return matched(res)
}

// Maintenance history

func (r *Repo) CreateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error {
	if m == nil {
		return fmt.Errorf("maintenance record is nil")
	}
	_, err := r.maintenance.InsertOne(ctx, maintenanceDoc{MaintenanceRecord: *m})
	return mapErr(err)
}

func (r *Repo) GetMaintenance(ctx context.Context, id string) (*models.MaintenanceRecord, error) {
	var doc maintenanceDoc
	if err := r.maintenance.FindOne(ctx, bson.M{"maintenanceId": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	m := normalizeMaintenance(doc.MaintenanceRecord)
	return &m, nil
}

func (r *Repo) ListMaintenance(ctx context.Context, equipmentID string) ([]models.MaintenanceRecord, error) {
	filter := bson.M{}
	if equipmentID != "" {
		filter["equipment"] = equipmentID
	}
	cur, err := r.maintenance.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "maintenanceDate", Value: -1}}))
	if err != nil {
		return nil, err
	}

	var docs []maintenanceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.MaintenanceRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, normalizeMaintenance(d.MaintenanceRecord))
	}
	return out, nil
}

func (r *Repo) UpdateMaintenance(ctx context.Context, m *models.MaintenanceRecord) error {
	if m == nil {
		return fmt.Errorf("maintenance record is nil")
	}
	res, err := r.maintenance.ReplaceOne(ctx, bson.M{"maintenanceId": m.MaintenanceID}, m)
	if err != nil {
		return mapErr(err)
	}
	return matched(res)
}

func (r *Repo) DeleteMaintenance(ctx context.Context, id string) error {
	res, err := r.maintenance.DeleteOne(ctx, bson.M{"maintenanceId": id})
	if err != nil {
		return err
	}
	return deleted(res)
}

func (r *Repo) DeleteMaintenanceByEquipment(ctx context.Context, equipmentID string) (int64, error) {
	res, err := r.maintenance.DeleteMany(ctx, bson.M{"equipment": equipmentID})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// Failure reports

func (r *Repo) CreateFailureReport(ctx context.Context, f *models.FailureReport) error {
	if f == nil {
		return fmt.Errorf("failure report is nil")
	}
	_, err := r.reports.InsertOne(ctx, failureReportDoc{FailureReport: withLists(*f)})
	return mapErr(err)
}

func (r *Repo) GetFailureReport(ctx context.Context, id string) (*models.FailureReport, error) {
	var doc failureReportDoc
	if err := r.reports.FindOne(ctx, bson.M{"failureId": id}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	f := normalizeReport(doc.FailureReport)
	return &f, nil
}

func (r *Repo) ListFailureReports(ctx context.Context, filter repository.FailureReportFilter) ([]models.FailureReport, error) {
	q := bson.M{}
	if filter.Status != "" {
		q["status"] = string(filter.Status)
	}
	if filter.Severity != "" {
		q["severity"] = string(filter.Severity)
	}
	if filter.AssignedTechnician != "" {
		q["assignedTechnician"] = filter.AssignedTechnician
	}
	if filter.From != nil && filter.To != nil {
		q["reportedDate"] = bson.M{"$gte": utc(*filter.From), "$lte": utc(*filter.To)}
	}

	cur, err := r.reports.Find(ctx, q, options.Find().SetSort(bson.D{{Key: "reportedDate", Value: -1}}))
	if err != nil {
		return nil, err
	}

	var docs []failureReportDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]models.FailureReport, 0, len(docs))
	for _, d := range docs {
		out = append(out, normalizeReport(d.FailureReport))
	}
	return out, nil
}

func (r *Repo) UpdateFailureReport(ctx context.Context, f *models.FailureReport) error {
	if f == nil {
		return fmt.Errorf("failure report is nil")
	}
	res, err := r.reports.ReplaceOne(ctx, openReport(f.FailureID), withLists(*f))
	if err != nil {
		return mapErr(err)
	}
	return r.guarded(ctx, res.MatchedCount, f.FailureID)
}

func (r *Repo) RestoreFailureReport(ctx context.Context, f *models.FailureReport) error {
	if f == nil {
		return fmt.Errorf("failure report is nil")
	}
	res, err := r.reports.ReplaceOne(ctx, bson.M{"failureId": f.FailureID}, withLists(*f))
	if err != nil {
		return mapErr(err)
	}
	return matched(res)
}

func (r *Repo) MarkResolved(ctx context.Context, id string, at time.Time) error {
	res, err := r.reports.UpdateOne(ctx, openReport(id),
		bson.M{"$set": bson.M{
			"status":     string(models.ReportResolved),
			"resolvedAt": utc(at),
			"updatedAt":  utc(at),
		}},
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res.MatchedCount, id)
}

func (r *Repo) DeleteFailureReport(ctx context.Context, id string) error {
	res, err := r.reports.DeleteOne(ctx, openReport(id))
	if err != nil {
		return err
	}
	return r.guarded(ctx, res.DeletedCount, id)
}

// openReport matches the report only while it is not Resolved.
func openReport(id string) bson.M {
	return bson.M{"failureId": id, "status": bson.M{"$ne": string(models.ReportResolved)}}
}

// guarded tells a missing report from a resolved one when a write filtered
// by openReport matched nothing.
func (r *Repo) guarded(ctx context.Context, n int64, id string) error {
	if n > 0 {
		return nil
	}
	if _, err := r.GetFailureReport(ctx, id); err != nil {
		return err
	}
	return repository.ErrStale
}

// BSON dates decode in the local zone; the API works in UTC.

func normalizeEquipment(e models.Equipment) models.Equipment {
	e.InstallationDate = utc(e.InstallationDate)
	e.CreatedAt = utc(e.CreatedAt)
	if e.LastMaintenanceDate != nil {
		t := utc(*e.LastMaintenanceDate)
		e.LastMaintenanceDate = &t
	}
	return e
}

func normalizeMaintenance(m models.MaintenanceRecord) models.MaintenanceRecord {
	m.MaintenanceDate = utc(m.MaintenanceDate)
	m.CreatedAt = utc(m.CreatedAt)
	m.UpdatedAt = utc(m.UpdatedAt)
	return m
}

func normalizeReport(f models.FailureReport) models.FailureReport {
	f = withLists(f)
	f.ReportedDate = utc(f.ReportedDate)
	f.CreatedAt = utc(f.CreatedAt)
	f.UpdatedAt = utc(f.UpdatedAt)
	for _, p := range []**time.Time{&f.EstimatedRepairTime, &f.ActualStartTime, &f.ResolvedAt} {
		if *p != nil {
			t := utc(**p)
			*p = &t
		}
	}
	return f
}

func withLists(f models.FailureReport) models.FailureReport {
	if f.Notes == nil {
		f.Notes = []models.Note{}
	}
	if f.Images == nil {
		f.Images = []models.Image{}
	}
	return f
}
