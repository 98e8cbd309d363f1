package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	dbfs "github.com/garnizeh/medequip/db"
	"github.com/garnizeh/medequip/internal/config"
	"github.com/garnizeh/medequip/internal/db"
	"github.com/garnizeh/medequip/internal/metrics"
	"github.com/garnizeh/medequip/internal/repository/mongo"
	"github.com/garnizeh/medequip/internal/repository/sqlite"
	"github.com/garnizeh/medequip/internal/schema"
	"github.com/garnizeh/medequip/internal/service"
	"github.com/garnizeh/medequip/internal/session"
	"github.com/garnizeh/medequip/internal/taxonomy"
	"github.com/garnizeh/medequip/pkg/repository"
)

var errNotSQLite = errors.New("this command needs the sqlite store driver")

// storeHandle is an open store. conn is set only for the sqlite driver.
type storeHandle struct {
	store repository.Store
	conn  *db.DB
	close func(ctx context.Context) error
}

func sqliteDSN(path string) string {
	return "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
}

func openSQLite(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*db.DB, error) {
	conn, err := db.New(ctx, sqliteDSN(cfg.SQLitePath))
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx, conn, dbfs.Migrations(), logger); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// openStore connects the configured driver. SQLite databases are migrated
// on open; the mongo driver ensures its indexes.
func openStore(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*storeHandle, error) {
	switch cfg.Driver {
	case "mongo":
		repo, err := mongo.Connect(ctx, mongo.Config{
			URI:          cfg.MongoURI,
			Database:     cfg.MongoDatabase,
			Transactions: cfg.MongoTransactions,
		}, logger)
		if err != nil {
			return nil, err
		}
		return &storeHandle{store: repo, close: repo.Close}, nil
	default:
		conn, err := openSQLite(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &storeHandle{
			store: sqlite.New(conn, logger),
			conn:  conn,
			close: func(context.Context) error { return conn.Close() },
		}, nil
	}
}

// openSessions returns the redis-backed chat session store when an address
// is configured and an in-memory one otherwise.
func openSessions(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (repository.SessionRepo, func() error, error) {
	if cfg.Addr == "" {
		logger.Info("chat sessions kept in memory")
		return session.NewMemoryStore(), func() error { return nil }, nil
	}
	rdb, err := session.Dial(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return session.NewRedisStore(rdb), rdb.Close, nil
}

func loadTaxonomy(path string) (*taxonomy.Taxonomy, error) {
	if path == "" {
		return taxonomy.Default(), nil
	}
	t, err := taxonomy.Load(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}
	return t, nil
}

func (c *cli) serviceDeps(store repository.Store, m *metrics.Metrics) (service.Deps, error) {
	tax, err := loadTaxonomy(c.cfg.TaxonomyPath)
	if err != nil {
		return service.Deps{}, err
	}
	schemas, err := schema.NewValidator(dbfs.Schemas, "schemas")
	if err != nil {
		return service.Deps{}, fmt.Errorf("load schemas: %w", err)
	}
	return service.Deps{
		Store:    store,
		Taxonomy: tax,
		Schemas:  schemas,
		Metrics:  m,
		Logger:   c.logger,
		Timeout:  c.cfg.Store.Timeout,
	}, nil
}
