// ABOUTME: StorageDriver is the external collaborator contract the local
// ABOUTME: store is built on (spec section 6); not implemented by this package.
package syncx

import "context"

// Values is a string-keyed map of primitive scalars, the wire shape the
// storage driver's insert/update calls accept.
type Values map[string]any

// StorageDriver is the row-oriented persistence API the local store is
// built on. It is an external collaborator: this package only depends on
// the interface. internal/sqlitestore provides a concrete implementation.
type StorageDriver interface {
	Initialize(ctx context.Context) error
	Close() error

	// CreateTable executes a CREATE TABLE IF NOT EXISTS statement (or any
	// other idempotent DDL); safe to call repeatedly.
	CreateTable(ctx context.Context, sql string) error

	Insert(ctx context.Context, table string, values Values) (string, error)
	Update(ctx context.Context, table string, values Values, where string, whereArgs []any) (int64, error)
	Delete(ctx context.Context, table string, where string, whereArgs []any) (int64, error)
	Query(ctx context.Context, table string, where string, whereArgs []any, orderBy string, limit int) ([]Values, error)

	RawQuery(ctx context.Context, sqlStr string, args []any) ([]Values, error)
	RawExecute(ctx context.Context, sqlStr string, args []any) (int64, error)

	// Transaction runs fn within a driver-native transaction; fn's error
	// (if any) rolls back the transaction and is returned unchanged.
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}
