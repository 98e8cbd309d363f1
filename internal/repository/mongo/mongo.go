// Package mongo stores equipment, maintenance history and failure reports as
// MongoDB documents, one collection per entity.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.uber.org/zap"

	"github.com/garnizeh/medequip/pkg/repository"
)

const (
	equipmentCollection      = "equipment"
	maintenanceCollection    = "maintenancehistories"
	failureReportsCollection = "failurereports"
)

type Config struct {
	URI      string
	Database string
	// Transactions enables multi-document transactions. It requires a
	// replica set or sharded cluster.
	Transactions bool
}

// Repo implements repository.Store on MongoDB.
type Repo struct {
	client *mongo.Client
	db     *mongo.Database
	cfg    Config
	logger *zap.Logger

	equipment   *mongo.Collection
	maintenance *mongo.Collection
	reports     *mongo.Collection
}

var _ repository.Store = (*Repo)(nil)

// Connect opens a client, verifies it with a ping and ensures indexes.
func Connect(ctx context.Context, cfg Config, logger *zap.Logger) (*Repo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Database == "" {
		return nil, fmt.Errorf("mongo: database name is required")
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(cfg.Database)
	r := &Repo{
		client:      client,
		db:          db,
		cfg:         cfg,
		logger:      logger,
		equipment:   db.Collection(equipmentCollection),
		maintenance: db.Collection(maintenanceCollection),
		reports:     db.Collection(failureReportsCollection),
	}
	if err := r.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logger.Info("mongo connected", zap.String("database", cfg.Database), zap.Bool("transactions", cfg.Transactions))
	return r, nil
}

func (r *Repo) ensureIndexes(ctx context.Context) error {
	unique := func(field string) mongo.IndexModel {
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: options.Index().SetUnique(true)}
	}
	plain := func(keys bson.D) mongo.IndexModel {
		return mongo.IndexModel{Keys: keys}
	}

	specs := map[*mongo.Collection][]mongo.IndexModel{
		r.equipment: {
			unique("id"),
			unique("serialNo"),
			plain(bson.D{{Key: "type", Value: 1}}),
		},
		r.maintenance: {
			unique("maintenanceId"),
			plain(bson.D{{Key: "equipment", Value: 1}, {Key: "maintenanceDate", Value: -1}}),
		},
		r.reports: {
			unique("failureId"),
			plain(bson.D{{Key: "status", Value: 1}}),
			plain(bson.D{{Key: "reportedDate", Value: -1}}),
		},
	}
	for coll, idx := range specs {
		if _, err := coll.Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("mongo indexes on %s: %w", coll.Name(), err)
		}
	}
	return nil
}

func (r *Repo) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

func (r *Repo) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, readpref.Primary())
}

func (r *Repo) Transactional() bool { return r.cfg.Transactions }

// WithinTx runs fn in a multi-document transaction when transactions are
// enabled. Calls made while a session is already attached to ctx join it.
func (r *Repo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if !r.cfg.Transactions || mongo.SessionFromContext(ctx) != nil {
		return fn(ctx, r)
	}

	sess, err := r.client.StartSession()
	if err != nil {
		return fmt.Errorf("mongo start session: %w", err)
	}
	defer sess.EndSession(context.Background())

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		return nil, fn(sc, r)
	})
	return err
}

var dupFields = []string{"serialNo", "maintenanceId", "failureId", "id"}

func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, mongo.ErrNoDocuments) {
		return repository.ErrNotFound
	}
	if mongo.IsDuplicateKeyError(err) {
		msg := err.Error()
		for _, f := range dupFields {
			// E11000 duplicate key error ... index: serialNo_1 dup key: ...
			if strings.Contains(msg, "index: "+f+"_") {
				return &repository.DuplicateError{Field: f}
			}
		}
		return &repository.DuplicateError{Field: "id"}
	}
	return err
}

func matched(res *mongo.UpdateResult) error {
	if res.MatchedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func deleted(res *mongo.DeleteResult) error {
	if res.DeletedCount == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func utc(t time.Time) time.Time { return t.UTC() }
