// ABOUTME: Driver is the default syncx.StorageDriver, backed by
// ABOUTME: modernc.org/sqlite with squirrel building dynamic statements.
package sqlitestore

import (
	"context"
	"database/sql"
	"sync"

	sq "github.com/Masterminds/squirrel"
	_ "modernc.org/sqlite"

	"github.com/mirasync/syncengine/syncx"
)

// querier is satisfied by both *sql.DB and *sql.Tx, letting every driver
// method run against whichever is active without duplicating itself.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Driver implements syncx.StorageDriver over a single SQLite file, in the
// style of the teacher's store_sqlite.go: open, migrate, typed helpers.
type Driver struct {
	path string

	mu sync.RWMutex
	db *sql.DB
	tx *sql.Tx // set only while a Transaction call is in flight
}

// New returns a Driver for path; call Initialize before use. path may be
// ":memory:" for an ephemeral database, as the tests do.
func New(path string) *Driver {
	return &Driver{path: path}
}

func (d *Driver) Initialize(ctx context.Context) error {
	db, err := sql.Open("sqlite", d.path)
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}
	// SQLite only allows one writer at a time; serialize through a single
	// connection so CREATE TABLE races during RegisterEntity don't deadlock.
	db.SetMaxOpenConns(1)

	d.mu.Lock()
	d.db = db
	d.mu.Unlock()
	return nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.db == nil {
		return nil
	}
	return d.db.Close()
}

// conn returns the active transaction if one is in flight, else the pooled
// *sql.DB. Since Transaction holds the single connection for its duration,
// ordinary driver methods called from within fn must route through the
// same *sql.Tx rather than back through the pool, which would deadlock.
func (d *Driver) conn() querier {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.tx != nil {
		return d.tx
	}
	return d.db
}

func (d *Driver) CreateTable(ctx context.Context, ddl string) error {
	_, err := d.conn().ExecContext(ctx, ddl)
	return err
}

func (d *Driver) Insert(ctx context.Context, table string, values syncx.Values) (string, error) {
	builder := sq.Insert(table)
	cols, args := sortedColumns(values)
	builder = builder.Columns(cols...).Values(args...)

	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return "", err
	}
	if _, err := d.conn().ExecContext(ctx, sqlStr, sqlArgs...); err != nil {
		return "", err
	}
	id, _ := values["id"].(string)
	return id, nil
}

func (d *Driver) Update(ctx context.Context, table string, values syncx.Values, where string, whereArgs []any) (int64, error) {
	builder := sq.Update(table)
	for _, col := range sortedKeys(values) {
		builder = builder.Set(col, values[col])
	}
	if where != "" {
		builder = builder.Where(sq.Expr(where, whereArgs...))
	}

	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := d.conn().ExecContext(ctx, sqlStr, sqlArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Driver) Delete(ctx context.Context, table string, where string, whereArgs []any) (int64, error) {
	builder := sq.Delete(table)
	if where != "" {
		builder = builder.Where(sq.Expr(where, whereArgs...))
	}
	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	res, err := d.conn().ExecContext(ctx, sqlStr, sqlArgs...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (d *Driver) Query(ctx context.Context, table string, where string, whereArgs []any, orderBy string, limit int) ([]syncx.Values, error) {
	builder := sq.Select("*").From(table)
	if where != "" {
		builder = builder.Where(sq.Expr(where, whereArgs...))
	}
	if orderBy != "" {
		builder = builder.OrderBy(orderBy)
	}
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	sqlStr, sqlArgs, err := builder.ToSql()
	if err != nil {
		return nil, err
	}
	return d.rawQuery(ctx, sqlStr, sqlArgs)
}

func (d *Driver) RawQuery(ctx context.Context, sqlStr string, args []any) ([]syncx.Values, error) {
	return d.rawQuery(ctx, sqlStr, args)
}

func (d *Driver) rawQuery(ctx context.Context, sqlStr string, args []any) ([]syncx.Values, error) {
	rows, err := d.conn().QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []syncx.Values
	for rows.Next() {
		scanTargets := make([]any, len(cols))
		scanVals := make([]any, len(cols))
		for i := range scanVals {
			scanTargets[i] = &scanVals[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, err
		}
		row := make(syncx.Values, len(cols))
		for i, col := range cols {
			row[col] = normalizeScanned(scanVals[i])
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (d *Driver) RawExecute(ctx context.Context, sqlStr string, args []any) (int64, error) {
	res, err := d.conn().ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Transaction is not safe for concurrent/nested use on the same Driver:
// it is the sole writer of d.tx for its duration, matching LocalStore's
// contract that a single goroutine drives sync at a time.
func (d *Driver) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	d.mu.Lock()
	db := d.db
	d.mu.Unlock()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.tx = tx
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.tx = nil
		d.mu.Unlock()
	}()

	if err := fn(ctx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func normalizeScanned(v any) any {
	switch t := v.(type) {
	case []byte:
		return string(t)
	default:
		return t
	}
}

func sortedKeys(values syncx.Values) []string {
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	// Deterministic order keeps generated SQL stable across runs.
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j] < keys[j-1]; j-- {
			keys[j], keys[j-1] = keys[j-1], keys[j]
		}
	}
	return keys
}

func sortedColumns(values syncx.Values) ([]string, []any) {
	keys := sortedKeys(values)
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = values[k]
	}
	return keys, args
}
