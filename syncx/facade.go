// ABOUTME: Facade is the single entry point: wires store+network+engine
// ABOUTME: and routes high-level CRUD + sync calls (spec section 4.6).
package syncx

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Facade is the composition root applications talk to. Initialize brings
// up the local store and then starts the sync engine; it does not call the
// network adapter's Initialize, which the caller does. The facade writes
// rows only with sync_status 'pending' (Save, Update, SoftDelete); every
// other status and the sync_queue/sync_conflicts tables are the Engine's.
type Facade struct {
	store  *LocalStore
	engine *Engine
}

// NewFacade wires dependencies in the order spec section 4.6 requires.
// network and connectivity may be nil for store-only (no sync) usage.
func NewFacade(driver StorageDriver, network NetworkAdapter, connectivity ConnectivityDetector, cfg EngineConfig, logger zerolog.Logger) *Facade {
	store := NewLocalStore(driver)
	engine := NewEngine(store, network, connectivity, cfg, logger)
	return &Facade{store: store, engine: engine}
}

// Initialize opens the store, bootstraps schema, and starts the engine's
// connectivity/auto-sync loop.
func (f *Facade) Initialize(ctx context.Context) error {
	if err := f.store.Initialize(ctx); err != nil {
		return err
	}
	f.engine.Start(ctx)
	return nil
}

// Close stops the engine and closes its status channel. It does not close
// the underlying storage driver — callers own that handle's lifetime.
func (f *Facade) Close() {
	f.engine.Dispose()
}

// Engine exposes the underlying engine for configuration/subscription.
func (f *Facade) Engine() *Engine { return f.engine }

// RegisterEntity registers table/endpoint/factory with both the store and
// engine (spec section 4.6).
func (f *Facade) RegisterEntity(ctx context.Context, table, endpoint, createSQL string, factory Factory) error {
	return f.engine.RegisterTable(ctx, TableRegistration{Table: table, Endpoint: endpoint, CreateSQL: createSQL, Factory: factory}, endpoint)
}

// RegisterConflictResolver adds a resolver to the engine's chain.
func (f *Facade) RegisterConflictResolver(r Resolver) { f.engine.RegisterResolver(r) }

// Save serializes e as a new pending row (spec section 4.6): updated_at is
// stamped to now, synced_at cleared, sync_status set to pending.
func (f *Facade) Save(ctx context.Context, e Entity) error {
	now := nowMS()
	if m, ok := e.(Mutable); ok {
		Touch(m, now)
	}
	row, err := SerializeForStorage(e, StatusPending, nil)
	if err != nil {
		return err
	}
	return f.store.Insert(ctx, e.TableName(), row, now)
}

// Update re-serializes e, stamping updated_at=now, clearing synced_at, and
// marking the row pending (spec section 4.6).
func (f *Facade) Update(ctx context.Context, e Entity) error {
	now := nowMS()
	if m, ok := e.(Mutable); ok {
		Touch(m, now)
	}
	row, err := SerializeForStorage(e, StatusPending, nil)
	if err != nil {
		return err
	}
	return f.store.Update(ctx, e.TableName(), row, now)
}

// Delete hard-deletes a row.
func (f *Facade) Delete(ctx context.Context, table, id string) error {
	return f.store.Delete(ctx, table, id)
}

// SoftDelete tombstones a row for later propagation (spec section 4.2).
func (f *Facade) SoftDelete(ctx context.Context, table, id string) error {
	return f.store.SoftDelete(ctx, table, id, nowMS())
}

// FindByID materializes the row at id using table's registered factory.
func (f *Facade) FindByID(ctx context.Context, table, id string) (Entity, bool, error) {
	row, ok, err := f.store.FindByID(ctx, table, id)
	if err != nil || !ok {
		return nil, ok, err
	}
	e, err := Materialize(table, row, f.store.factoryFor(table))
	return e, true, err
}

// FindAll materializes every row in table.
func (f *Facade) FindAll(ctx context.Context, table string) ([]Entity, error) {
	rows, err := f.store.FindAll(ctx, table)
	if err != nil {
		return nil, err
	}
	factory := f.store.factoryFor(table)
	out := make([]Entity, 0, len(rows))
	for _, row := range rows {
		e, err := Materialize(table, row, factory)
		if err != nil {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// Count returns the row count for table.
func (f *Facade) Count(ctx context.Context, table string) (int, error) {
	return f.store.Count(ctx, table)
}

// RawQuery passes a SELECT through to the storage driver.
func (f *Facade) RawQuery(ctx context.Context, sqlStr string, args []any) ([]Values, error) {
	return f.store.RawQuery(ctx, sqlStr, args)
}

// RawExecute passes a statement through to the storage driver.
func (f *Facade) RawExecute(ctx context.Context, sqlStr string, args []any) (int64, error) {
	return f.store.RawExecute(ctx, sqlStr, args)
}

// Transaction passes through to the storage driver's native transaction.
func (f *Facade) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return f.store.Transaction(ctx, fn)
}

// Sync runs a full sync_all pass (spec section 4.4).
func (f *Facade) Sync(ctx context.Context) error {
	return f.engine.SyncAll(ctx)
}

func nowMS() int64 { return time.Now().UnixMilli() }
