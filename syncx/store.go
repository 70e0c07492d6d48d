// ABOUTME: LocalStore is the per-row sync-state persistence layer: schema
// ABOUTME: bootstrap, typed row CRUD, and table registration (spec 4.2/4.3).
package syncx

import (
	"context"
	"fmt"
	"sync"
)

const (
	sqlCreateMetadata = `CREATE TABLE IF NOT EXISTS sync_metadata (
	table_name TEXT PRIMARY KEY,
	last_sync_at INTEGER,
	pending_count INTEGER NOT NULL DEFAULT 0,
	failed_count INTEGER NOT NULL DEFAULT 0
)`

	sqlCreateConflicts = `CREATE TABLE IF NOT EXISTS sync_conflicts (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	local_data TEXT NOT NULL,
	remote_data TEXT NOT NULL,
	conflict_type TEXT NOT NULL,
	detected_at INTEGER NOT NULL,
	is_resolved INTEGER NOT NULL DEFAULT 0,
	resolved_at INTEGER,
	resolution_strategy TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`

	sqlCreateQueue = `CREATE TABLE IF NOT EXISTS sync_queue (
	id TEXT PRIMARY KEY,
	entity_id TEXT NOT NULL,
	table_name TEXT NOT NULL,
	endpoint TEXT NOT NULL,
	operation TEXT NOT NULL DEFAULT 'push',
	payload TEXT NOT NULL,
	retry_count INTEGER NOT NULL DEFAULT 0,
	max_retries INTEGER NOT NULL DEFAULT 3,
	next_retry_at INTEGER,
	last_error TEXT,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL
)`
)

// entityTableDDL generates the standard entity-table schema described in
// spec section 4.3, with indexes on the four timestamp/status columns.
func entityTableDDL(table string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
	id TEXT PRIMARY KEY,
	payload TEXT NOT NULL DEFAULT '',
	sync_status TEXT,
	version INTEGER NOT NULL DEFAULT 1,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	synced_at INTEGER,
	deleted_at INTEGER,
	metadata TEXT,
	last_error TEXT
);
CREATE INDEX IF NOT EXISTS idx_%[1]s_created_at ON %[1]s(created_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_updated_at ON %[1]s(updated_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_synced_at ON %[1]s(synced_at);
CREATE INDEX IF NOT EXISTS idx_%[1]s_sync_status ON %[1]s(sync_status);`, table)
}

// LocalStore bootstraps the schema and exposes typed CRUD over a
// StorageDriver (spec section 4.2). It is the sole writer of entity,
// queue, and conflict tables; the engine holds the same handle the facade
// does. The facade only writes rows as 'pending'; the engine writes every
// other sync_status and the sync_queue/sync_conflicts tables.
type LocalStore struct {
	driver StorageDriver

	mu          sync.RWMutex
	initialized bool
	tables      map[string]TableRegistration
}

// NewLocalStore wraps driver; call Initialize before any other operation.
func NewLocalStore(driver StorageDriver) *LocalStore {
	return &LocalStore{driver: driver, tables: make(map[string]TableRegistration)}
}

// RegisterEntity records the factory used by Materialize for table. If the
// store is already initialized the table is created immediately
// (spec section 4.2's "lazy" registration).
func (s *LocalStore) RegisterEntity(ctx context.Context, reg TableRegistration) error {
	if reg.CreateSQL == "" {
		reg.CreateSQL = entityTableDDL(reg.Table)
	}

	s.mu.Lock()
	s.tables[reg.Table] = reg
	initialized := s.initialized
	s.mu.Unlock()

	if initialized {
		return s.driver.CreateTable(ctx, reg.CreateSQL)
	}
	return nil
}

// Initialize opens the underlying storage and creates sync_metadata,
// sync_conflicts, sync_queue, and every table registered so far. Idempotent.
func (s *LocalStore) Initialize(ctx context.Context) error {
	if err := s.driver.Initialize(ctx); err != nil {
		return newError("store.initialize", KindStorageFailure, err)
	}
	for _, ddl := range []string{sqlCreateMetadata, sqlCreateConflicts, sqlCreateQueue} {
		if err := s.driver.CreateTable(ctx, ddl); err != nil {
			return newError("store.initialize", KindStorageFailure, err)
		}
	}

	s.mu.RLock()
	regs := make([]TableRegistration, 0, len(s.tables))
	for _, r := range s.tables {
		regs = append(regs, r)
	}
	s.mu.RUnlock()

	for _, r := range regs {
		if err := s.driver.CreateTable(ctx, r.CreateSQL); err != nil {
			return newError("store.initialize", KindStorageFailure, err)
		}
	}

	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
	return nil
}

func (s *LocalStore) requireInitialized() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.initialized {
		return newError("store", KindNotInitialized, ErrNotInitialized)
	}
	return nil
}

// factoryFor returns the factory registered for table, if any.
func (s *LocalStore) factoryFor(table string) Factory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tables[table].Factory
}

// Registrations returns every registered table in registration-independent
// (map) order; callers needing a stable order should track it themselves.
// The engine tracks its own ordered list instead of relying on this.
func (s *LocalStore) Registrations() map[string]TableRegistration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]TableRegistration, len(s.tables))
	for k, v := range s.tables {
		out[k] = v
	}
	return out
}

func rowToValues(r Row) Values {
	v := Values{
		"id":          r.ID,
		"payload":     r.Payload,
		"sync_status": string(r.SyncStatus),
		"version":     r.Version,
		"is_deleted":  boolToInt(r.IsDeleted),
		"created_at":  r.CreatedAt,
		"updated_at":  r.UpdatedAt,
		"metadata":    r.Metadata,
	}
	if r.SyncedAt != nil {
		v["synced_at"] = *r.SyncedAt
	} else {
		v["synced_at"] = nil
	}
	if r.DeletedAt != nil {
		v["deleted_at"] = *r.DeletedAt
	} else {
		v["deleted_at"] = nil
	}
	if r.LastError != nil {
		v["last_error"] = *r.LastError
	} else {
		v["last_error"] = nil
	}
	return v
}

func valuesToRow(v Values) Row {
	r := Row{
		ID:         asString(v["id"]),
		Payload:    asString(v["payload"]),
		SyncStatus: SyncStatus(asString(v["sync_status"])),
		Version:    asInt64(v["version"]),
		IsDeleted:  asInt64(v["is_deleted"]) != 0,
		CreatedAt:  asInt64(v["created_at"]),
		UpdatedAt:  asInt64(v["updated_at"]),
		Metadata:   asString(v["metadata"]),
	}
	if v["synced_at"] != nil {
		ms := asInt64(v["synced_at"])
		r.SyncedAt = &ms
	}
	if v["deleted_at"] != nil {
		ms := asInt64(v["deleted_at"])
		r.DeletedAt = &ms
	}
	if v["last_error"] != nil {
		le := asString(v["last_error"])
		r.LastError = &le
	}
	return r
}

// Insert stamps created_at/updated_at if absent and writes a new row.
func (s *LocalStore) Insert(ctx context.Context, table string, r Row, now int64) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if r.CreatedAt == 0 {
		r.CreatedAt = now
	}
	if r.UpdatedAt == 0 {
		r.UpdatedAt = now
	}
	_, err := s.driver.Insert(ctx, table, rowToValues(r))
	if err != nil {
		return newError("store.insert", KindStorageFailure, err)
	}
	return nil
}

// Update stamps updated_at and overwrites the row at r.ID.
func (s *LocalStore) Update(ctx context.Context, table string, r Row, now int64) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	r.UpdatedAt = now
	_, err := s.driver.Update(ctx, table, rowToValues(r), "id = ?", []any{r.ID})
	if err != nil {
		return newError("store.update", KindStorageFailure, err)
	}
	return nil
}

// Delete hard-deletes the row, permanently removing it.
func (s *LocalStore) Delete(ctx context.Context, table, id string) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	_, err := s.driver.Delete(ctx, table, "id = ?", []any{id})
	if err != nil {
		return newError("store.delete", KindStorageFailure, err)
	}
	return nil
}

// SoftDelete tombstones the row: is_deleted=1, deleted_at=now,
// sync_status=pending, synced_at=NULL (spec section 4.2).
func (s *LocalStore) SoftDelete(ctx context.Context, table, id string, now int64) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	values := Values{
		"is_deleted":  1,
		"deleted_at":  now,
		"updated_at":  now,
		"sync_status": string(StatusPending),
		"synced_at":   nil,
	}
	_, err := s.driver.Update(ctx, table, values, "id = ?", []any{id})
	if err != nil {
		return newError("store.soft_delete", KindStorageFailure, err)
	}
	return nil
}

// FindByID returns the row for id, or ok=false if it doesn't exist.
func (s *LocalStore) FindByID(ctx context.Context, table, id string) (Row, bool, error) {
	if err := s.requireInitialized(); err != nil {
		return Row{}, false, err
	}
	rows, err := s.driver.Query(ctx, table, "id = ?", []any{id}, "", 1)
	if err != nil {
		return Row{}, false, newError("store.find_by_id", KindStorageFailure, err)
	}
	if len(rows) == 0 {
		return Row{}, false, nil
	}
	return valuesToRow(rows[0]), true, nil
}

// FindAll returns every row in table, ordered by created_at.
func (s *LocalStore) FindAll(ctx context.Context, table string) ([]Row, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	rows, err := s.driver.Query(ctx, table, "", nil, "created_at ASC", 0)
	if err != nil {
		return nil, newError("store.find_all", KindStorageFailure, err)
	}
	out := make([]Row, 0, len(rows))
	for _, v := range rows {
		out = append(out, valuesToRow(v))
	}
	return out, nil
}

// FindUnsynced returns rows where sync_status != 'synced' OR sync_status
// IS NULL (spec section 4.2).
func (s *LocalStore) FindUnsynced(ctx context.Context, table string) ([]Row, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	rows, err := s.driver.Query(ctx, table, "sync_status IS NULL OR sync_status != ?", []any{string(StatusSynced)}, "created_at ASC", 0)
	if err != nil {
		return nil, newError("store.find_unsynced", KindStorageFailure, err)
	}
	out := make([]Row, 0, len(rows))
	for _, v := range rows {
		out = append(out, valuesToRow(v))
	}
	return out, nil
}

// Count returns the number of rows in table.
func (s *LocalStore) Count(ctx context.Context, table string) (int, error) {
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}
	results, err := s.driver.RawQuery(ctx, fmt.Sprintf("SELECT COUNT(*) AS n FROM %s", table), nil)
	if err != nil {
		return 0, newError("store.count", KindStorageFailure, err)
	}
	if len(results) == 0 {
		return 0, nil
	}
	return int(asInt64(results[0]["n"])), nil
}

// RawQuery passes an arbitrary SELECT through to the driver.
func (s *LocalStore) RawQuery(ctx context.Context, sqlStr string, args []any) ([]Values, error) {
	if err := s.requireInitialized(); err != nil {
		return nil, err
	}
	rows, err := s.driver.RawQuery(ctx, sqlStr, args)
	if err != nil {
		return nil, newError("store.raw_query", KindStorageFailure, err)
	}
	return rows, nil
}

// RawExecute passes an arbitrary statement through to the driver.
func (s *LocalStore) RawExecute(ctx context.Context, sqlStr string, args []any) (int64, error) {
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}
	n, err := s.driver.RawExecute(ctx, sqlStr, args)
	if err != nil {
		return 0, newError("store.raw_execute", KindStorageFailure, err)
	}
	return n, nil
}

// Transaction passes through to the driver's native transaction.
func (s *LocalStore) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := s.requireInitialized(); err != nil {
		return err
	}
	if err := s.driver.Transaction(ctx, fn); err != nil {
		return newError("store.transaction", KindStorageFailure, err)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
