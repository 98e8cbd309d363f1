package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"go.uber.org/zap"
	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/garnizeh/medequip/internal/db"
	"github.com/garnizeh/medequip/pkg/repository"
)

// SQLiteRepo implements repository.Store on top of the internal DB wrapper.
// A repo returned by WithinTx shares the enclosing transaction.
type SQLiteRepo struct {
	conn   *db.DB
	q      db.Querier
	inTx   bool
	logger *zap.Logger
}

// Ensure SQLiteRepo implements the public interfaces.
var _ repository.Store = (*SQLiteRepo)(nil)

func New(conn *db.DB, logger *zap.Logger) *SQLiteRepo {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SQLiteRepo{conn: conn, q: conn.GetConn(), logger: logger}
}

func (r *SQLiteRepo) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Store) error) error {
	if r.inTx {
		return fn(ctx, r)
	}
	return r.conn.WithTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &SQLiteRepo{conn: r.conn, q: tx, inTx: true, logger: r.logger})
	})
}

func (r *SQLiteRepo) Transactional() bool { return true }

func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.conn.Ping(ctx)
}

func (r *SQLiteRepo) exec(ctx context.Context, b sq.Sqlizer) (sql.Result, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.q.ExecContext(ctx, query, args...)
}

func (r *SQLiteRepo) query(ctx context.Context, b sq.Sqlizer) (*sql.Rows, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.q.QueryContext(ctx, query, args...)
}

func (r *SQLiteRepo) queryRow(ctx context.Context, b sq.Sqlizer) (*sql.Row, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return nil, err
	}
	return r.q.QueryRowContext(ctx, query, args...), nil
}

// requireRow turns a zero-rows update or delete into ErrNotFound.
func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// columnFields maps unique columns to their wire names.
var columnFields = map[string]string{
	"id":             "id",
	"serial_no":      "serialNo",
	"maintenance_id": "maintenanceId",
	"failure_id":     "failureId",
}

// mapErr converts driver errors into repository errors.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}

	var se *msqlite.Error
	if errors.As(err, &se) && (se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE || se.Code() == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY) {
		// "UNIQUE constraint failed: equipment.serial_no"
		msg := se.Error()
		field := "id"
		if i := strings.LastIndex(msg, "."); i >= 0 {
			col := strings.TrimSpace(msg[i+1:])
			if end := strings.IndexAny(col, " )"); end >= 0 {
				col = col[:end]
			}
			if f, ok := columnFields[col]; ok {
				field = f
			}
		}
		return &repository.DuplicateError{Field: field}
	}

	return err
}

func millis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

func nullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: millis(*t), Valid: true}
}

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
