// ABOUTME: Engine is the full sync protocol: push, pull, conflict
// ABOUTME: arbitration, retry-queue draining, auto-sync, status updates.
package syncx

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

// Engine runs the protocol described in spec section 4.4. It is the sole
// writer of sync_queue and sync_conflicts, and of every sync_status value
// other than 'pending'; the facade shares the same LocalStore handle and
// writes rows only as 'pending' (Save, Update, SoftDelete).
type Engine struct {
	store        *LocalStore
	network      NetworkAdapter
	connectivity ConnectivityDetector
	logger       zerolog.Logger

	cfgMu sync.RWMutex
	cfg   EngineConfig

	resolverMu sync.Mutex
	resolvers  resolverChain

	bindMu   sync.RWMutex
	order    []string
	endpoint map[string]string

	broadcaster *Broadcaster
	syncing     atomic.Bool

	stopCh    chan struct{}
	stoppedWG sync.WaitGroup

	// now is overridable for deterministic tests.
	now func() int64
}

// NewEngine wires an engine around store/network/connectivity. The default
// resolver (UseLatest) is registered automatically under the name
// "default" at priority 0, per spec section 4.4.4; callers may remove it
// with RemoveResolver("default").
func NewEngine(store *LocalStore, network NetworkAdapter, connectivity ConnectivityDetector, cfg EngineConfig, logger zerolog.Logger) *Engine {
	e := &Engine{
		store:        store,
		network:      network,
		connectivity: connectivity,
		logger:       logger,
		cfg:          cfg.Normalize(),
		endpoint:     make(map[string]string),
		now:          func() int64 { return time.Now().UnixMilli() },
	}
	e.broadcaster = NewBroadcaster(Status{SyncMode: ModeManual})
	e.resolvers.register(NewDefaultResolver(StrategyUseLatest))
	return e
}

// Config returns the current engine configuration.
func (e *Engine) Config() EngineConfig {
	e.cfgMu.RLock()
	defer e.cfgMu.RUnlock()
	return e.cfg
}

// SetConfig replaces the engine configuration (normalized per spec
// section 4.4.1's batch-size clamp).
func (e *Engine) SetConfig(cfg EngineConfig) {
	e.cfgMu.Lock()
	defer e.cfgMu.Unlock()
	e.cfg = cfg.Normalize()
}

// RegisterTable binds table to endpoint and registers its schema/factory
// with the local store, in registration order (spec sections 4.2 and 4.4).
func (e *Engine) RegisterTable(ctx context.Context, reg TableRegistration, endpoint string) error {
	if err := e.store.RegisterEntity(ctx, reg); err != nil {
		return err
	}
	e.bindMu.Lock()
	defer e.bindMu.Unlock()
	if _, exists := e.endpoint[reg.Table]; !exists {
		e.order = append(e.order, reg.Table)
	}
	e.endpoint[reg.Table] = endpoint
	return nil
}

// RegisterResolver adds a conflict resolver to the chain (spec section
// 4.4.4), re-sorted by descending priority.
func (e *Engine) RegisterResolver(r Resolver) {
	e.resolverMu.Lock()
	defer e.resolverMu.Unlock()
	e.resolvers.register(r)
}

// RemoveResolver removes a resolver by name, e.g. "default".
func (e *Engine) RemoveResolver(name string) {
	e.resolverMu.Lock()
	defer e.resolverMu.Unlock()
	e.resolvers.remove(name)
}

// Status returns the current broadcast snapshot.
func (e *Engine) Status() Status { return e.broadcaster.Current() }

// Subscribe returns a channel receiving the current Status and later ones
// (a snapshot published while the channel's buffer is full is dropped for
// it), and an unsubscribe function (spec section 4.5).
func (e *Engine) Subscribe() (<-chan Status, func()) { return e.broadcaster.Subscribe() }

// SetOnline updates the last-observed connectivity flag used as SyncAll's
// precondition. Engines built with Start wire this to the
// ConnectivityDetector automatically; callers driving connectivity
// manually (as in tests) call this directly.
func (e *Engine) SetOnline(online bool) {
	e.broadcaster.Publish(e.broadcaster.Current().withOnline(online))
}

func (s Status) withOnline(online bool) Status { c := s; c.IsOnline = online; return c }

// Start begins observing the ConnectivityDetector and, if AutoSyncEnabled,
// the periodic timer (spec section 4.4.5). Safe to call once; a second
// call is a no-op.
func (e *Engine) Start(ctx context.Context) {
	if e.stopCh != nil {
		return
	}
	e.stopCh = make(chan struct{})
	if e.connectivity != nil {
		e.SetOnline(e.connectivity.IsOnline())
	}

	e.stoppedWG.Add(1)
	go e.run(ctx)
}

// Stop cancels the auto-sync timer and connectivity observation. An
// in-flight SyncAll is allowed to complete (spec section 5's dispose()
// semantics); it does not close the status broadcaster — call Dispose for
// that.
func (e *Engine) Stop() {
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	e.stoppedWG.Wait()
	e.stopCh = nil
}

// Dispose cancels the auto-sync timer and closes the status channel (spec
// section 5).
func (e *Engine) Dispose() {
	e.Stop()
	e.broadcaster.Close()
}

func (e *Engine) run(ctx context.Context) {
	defer e.stoppedWG.Done()

	var connCh <-chan bool
	if e.connectivity != nil {
		connCh = e.connectivity.Changes()
	}

	ticker := time.NewTicker(e.tickerInterval())
	defer ticker.Stop()
	wasOnline := e.Status().IsOnline

	for {
		select {
		case <-e.stopCh:
			return
		case <-ctx.Done():
			return
		case online, ok := <-connCh:
			if !ok {
				connCh = nil
				continue
			}
			e.SetOnline(online)
			if online && !wasOnline && e.Config().AutoSyncEnabled {
				e.logger.Info().Msg("connectivity regained, triggering sync")
				go func() { _ = e.SyncAll(ctx) }()
			}
			wasOnline = online
		case <-ticker.C:
			ticker.Reset(e.tickerInterval())
			if e.Config().AutoSyncEnabled && e.Status().IsOnline && !e.syncing.Load() {
				go func() { _ = e.SyncAll(ctx) }()
			}
		}
	}
}

func (e *Engine) tickerInterval() time.Duration {
	d := e.Config().AutoSyncInterval
	if d <= 0 {
		d = DefaultEngineConfig().AutoSyncInterval
	}
	return d
}

// SyncAll is the public entry point (spec section 4.4). It returns
// immediately, without error, if a sync is already in flight or the
// engine's last-observed connectivity is offline.
func (e *Engine) SyncAll(ctx context.Context) error {
	if !e.Status().IsOnline {
		e.logger.Debug().Msg("sync_all skipped: offline")
		return nil
	}
	if !e.syncing.CompareAndSwap(false, true) {
		e.logger.Debug().Msg("sync_all skipped: already syncing")
		return nil
	}
	defer e.syncing.Store(false)

	e.broadcaster.Publish(e.Status().withSyncing(true).withProgress(0))

	if err := e.processSyncQueue(ctx); err != nil {
		e.logger.Error().Err(err).Msg("process_sync_queue failed")
		msg := err.Error()
		e.broadcaster.Publish(e.Status().withSyncing(false).WithLastError(&msg))
		return err
	}

	e.bindMu.RLock()
	order := append([]string(nil), e.order...)
	endpoints := make(map[string]string, len(e.endpoint))
	for k, v := range e.endpoint {
		endpoints[k] = v
	}
	e.bindMu.RUnlock()

	failedCount := 0
	now := e.now()
	for i, table := range order {
		endpoint := endpoints[table]
		err := e.syncTable(ctx, table, endpoint)
		if err != nil {
			failedCount++
			e.logger.Warn().Str("table", table).Err(err).Msg("sync_table failed")
		}
		progress := float64(i+1) / float64(len(order))
		e.broadcaster.Publish(e.Status().withProgress(progress))

		pending, _ := e.store.CountUnsynced(ctx, table)
		_ = e.store.UpsertTableMetadata(ctx, table, now, pending, boolToFailed(err != nil))
	}

	pendingTotal := 0
	for _, table := range order {
		n, err := e.store.CountUnsynced(ctx, table)
		if err == nil {
			pendingTotal += n
		}
	}

	final := e.Status().
		withSyncing(false).
		withProgress(1.0).
		WithLastError(nil).
		WithLastSyncAt(now)
	final.PendingCount = pendingTotal
	final.FailedCount = failedCount
	e.broadcaster.Publish(final)
	return nil
}

func boolToFailed(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s Status) withSyncing(v bool) Status  { c := s; c.IsSyncing = v; return c }
func (s Status) withProgress(p float64) Status { c := s; c.SyncProgress = p; return c }

// processSyncQueue drains due sync_queue entries (spec section 4.4 step 2).
func (e *Engine) processSyncQueue(ctx context.Context) error {
	now := e.now()
	items, err := e.store.DueRetries(ctx, now)
	if err != nil {
		return err
	}
	cfg := e.Config()

	for _, item := range items {
		row := Row{ID: item.EntityID, Payload: item.Payload, SyncStatus: StatusQueued}
		_, perr := e.pushEntity(ctx, item.Table, item.Endpoint, row, false)
		if perr == nil {
			if derr := e.store.DeleteQueueItem(ctx, item.ID); derr != nil {
				return derr
			}
			continue
		}

		newRetryCount := item.RetryCount + 1
		msg := perr.Error()
		if newRetryCount >= item.MaxRetries {
			if serr := e.store.MarkStatus(ctx, item.Table, item.EntityID, StatusError, &msg); serr != nil {
				return serr
			}
			if derr := e.store.DeleteQueueItem(ctx, item.ID); derr != nil {
				return derr
			}
			continue
		}

		next := now + int64(newRetryCount)*cfg.QueueRetryBase.Milliseconds()
		if uerr := e.store.UpdateRetry(ctx, item.ID, newRetryCount, msg, next, now); uerr != nil {
			return uerr
		}
	}
	return nil
}

// syncTable runs push, then pull, then stored-conflict resolution, in that
// order (spec section 4.4).
func (e *Engine) syncTable(ctx context.Context, table, endpoint string) error {
	if err := e.pushPhase(ctx, table, endpoint); err != nil {
		return err
	}
	if err := e.pullPhase(ctx, table, endpoint); err != nil {
		return err
	}
	return e.retryStoredConflicts(ctx, table)
}

// pushPhase pushes every unsynced row in batches (spec section 4.4.1).
func (e *Engine) pushPhase(ctx context.Context, table, endpoint string) error {
	rows, err := e.store.FindUnsynced(ctx, table)
	if err != nil {
		return err
	}

	for _, batch := range Chunk(rows, e.Config().BatchSize) {
		for _, row := range batch {
			if _, err := e.pushEntity(ctx, table, endpoint, row, true); err != nil {
				e.logger.Warn().Str("table", table).Str("id", row.ID).Err(err).Msg("push failed")
			}
		}
	}
	return nil
}

// pushEntity posts row.Payload to endpoint, retrying up to MaxRetries
// times with linear backoff (attempt*PushRetryBase, spec section 4.4.1).
// On success the row is marked synced. On exhaustion: if queueOnFailure,
// the row is marked error then re-marked queued once a sync_queue entry is
// appended; if not (this is already a queued retry), the row's status is
// left for the caller (processSyncQueue) to decide.
func (e *Engine) pushEntity(ctx context.Context, table, endpoint string, row Row, queueOnFailure bool) (Row, error) {
	cfg := e.Config()
	attempts := cfg.MaxRetries
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		resp, err := e.network.Post(ctx, endpoint, json.RawMessage(row.Payload))
		if err == nil && (resp.StatusCode == 200 || resp.StatusCode == 201) {
			now := e.now()
			if merr := e.store.MarkSynced(ctx, table, row.ID, now); merr != nil {
				return row, merr
			}
			row.SyncStatus = StatusSynced
			row.SyncedAt = &now
			row.LastError = nil
			return row, nil
		}
		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("push failed: status %d", resp.StatusCode)
		}

		if attempt == attempts {
			break
		}
		wait := time.Duration(attempt) * cfg.PushRetryBase
		select {
		case <-ctx.Done():
			return row, ctx.Err()
		case <-time.After(wait):
		}
	}

	pushErr := &Error{Op: "push", Kind: KindNetworkFailure, Err: lastErr, Retries: attempts, Table: table, EntityID: row.ID}
	if !queueOnFailure {
		return row, pushErr
	}

	now := e.now()
	msg := lastErr.Error()
	if merr := e.store.MarkStatus(ctx, table, row.ID, StatusError, &msg); merr != nil {
		return row, merr
	}

	next := now + cfg.QueueInitialDelay.Milliseconds()
	qerr := e.store.EnqueueRetry(ctx, QueueItem{
		ID:          ulid.Make().String(),
		EntityID:    row.ID,
		Table:       table,
		Endpoint:    endpoint,
		Operation:   "push",
		Payload:     row.Payload,
		RetryCount:  0,
		MaxRetries:  cfg.MaxRetries,
		NextRetryAt: &next,
		LastError:   &msg,
	}, now)
	if qerr != nil {
		return row, qerr
	}
	if merr := e.store.MarkStatus(ctx, table, row.ID, StatusQueued, &msg); merr != nil {
		return row, merr
	}
	row.SyncStatus = StatusQueued
	row.LastError = &msg
	return row, pushErr
}

// pullPhase fetches endpoint and reconciles each element (spec section
// 4.4.2). Non-2xx responses and per-element failures are logged, not
// propagated, matching "no engine-level failure" for pull.
func (e *Engine) pullPhase(ctx context.Context, table, endpoint string) error {
	resp, err := e.getWithRetry(ctx, endpoint)
	if err != nil {
		e.logger.Warn().Str("table", table).Err(err).Msg("pull exhausted retries")
		return nil
	}

	items, ok := resp.Data.([]any)
	if !ok {
		e.logger.Warn().Str("table", table).Msg("pull response was not a JSON array")
		return nil
	}

	for _, batch := range Chunk(items, e.Config().BatchSize) {
		for _, raw := range batch {
			obj, ok := raw.(map[string]any)
			if !ok {
				e.logger.Warn().Str("table", table).Msg("skipping non-object pull element")
				continue
			}
			if err := e.applyRemoteItem(ctx, table, obj); err != nil {
				e.logger.Warn().Str("table", table).Err(err).Msg("failed to apply pulled item")
			}
		}
	}
	return nil
}

func (e *Engine) getWithRetry(ctx context.Context, endpoint string) (Response, error) {
	cfg := e.Config()
	return WithRetry(ctx, RetryConfig{MaxAttempts: cfg.MaxRetries, InitialWait: cfg.PushRetryBase, Multiplier: 1}, "pull", func(attempt int) (Response, error) {
		resp, err := e.network.Get(ctx, endpoint)
		if err != nil {
			return Response{}, &Error{Kind: KindNetworkFailure, Err: err}
		}
		if resp.StatusCode != 200 {
			return Response{}, &Error{Kind: KindNetworkFailure, Err: fmt.Errorf("pull failed: status %d", resp.StatusCode)}
		}
		return resp, nil
	})
}

// applyRemoteItem materializes a pulled object, looks up the local row by
// id, and either inserts, overwrites, or routes into conflict handling
// (spec section 4.4.2).
func (e *Engine) applyRemoteItem(ctx context.Context, table string, obj map[string]any) error {
	id := FieldString(obj, "id")
	if id == "" {
		return fmt.Errorf("pulled item missing id")
	}
	now := e.now()

	payloadBytes, err := json.Marshal(obj)
	if err != nil {
		return err
	}
	remoteRow := Row{
		ID:        id,
		Payload:   string(payloadBytes),
		UpdatedAt: FieldInt64(obj, "updated_at"),
		IsDeleted: FieldBool(obj, "is_deleted"),
		Version:   FieldInt64(obj, "version"),
		CreatedAt: FieldInt64(obj, "created_at"),
	}
	remoteRow.SyncedAt = &now

	factory := e.store.factoryFor(table)
	remoteEntity, err := Materialize(table, remoteRow, factory)
	if err != nil {
		// No registered factory (or a broken one) shouldn't drop the pulled
		// row on the floor; fall back to the raw payload so conflict
		// detection and storage still see something.
		remoteEntity = newRawEntityFromRow(table, remoteRow)
	}

	localRow, exists, err := e.store.FindByID(ctx, table, id)
	if err != nil {
		return err
	}
	if !exists {
		remoteRow.SyncStatus = StatusSynced
		return e.store.Insert(ctx, table, remoteRow, now)
	}

	localEntity, err := Materialize(table, localRow, factory)
	if err != nil {
		localEntity = newRawEntityFromRow(table, localRow)
	}

	if !HasConflict(localEntity, remoteEntity) {
		remoteRow.SyncStatus = StatusSynced
		remoteRow.LastError = nil
		return e.store.Update(ctx, table, remoteRow, now)
	}

	conflict := Conflict{
		EntityID:   id,
		EntityType: table,
		Local:      localEntity,
		Remote:     remoteEntity,
		Kind:       classifyConflict(localEntity, remoteEntity),
		DetectedAt: now,
	}
	return e.resolveAndApply(ctx, table, conflict)
}

// classifyConflict refines BothModified into the deletion-aware kinds from
// spec section 4.4.4 when one side is tombstoned.
func classifyConflict(local, remote Entity) ConflictKind {
	switch {
	case local.IsDeleted() && remote.IsDeleted():
		return ConflictBothDeleted
	case local.IsDeleted() && !remote.IsDeleted():
		return ConflictLocalDeletedRemoteModified
	case !local.IsDeleted() && remote.IsDeleted():
		return ConflictLocalModifiedRemoteDeleted
	case local.Version() != remote.Version() && local.UpdatedAt() == remote.UpdatedAt():
		return ConflictVersionMismatch
	default:
		return ConflictBothModified
	}
}

// resolveAndApply runs the resolver chain; on success the winner is
// written back synced, otherwise the conflict is persisted and the row
// marked 'conflict' (spec section 4.4.3).
func (e *Engine) resolveAndApply(ctx context.Context, table string, conflict Conflict) error {
	e.resolverMu.Lock()
	winner, ok, err := e.resolvers.resolve(ctx, conflict)
	e.resolverMu.Unlock()
	if err != nil {
		return err
	}

	now := e.now()
	if ok {
		winnerRow, serr := SerializeForStorage(winner, StatusSynced, nil)
		if serr != nil {
			return serr
		}
		winnerRow.SyncedAt = &now
		return e.store.Update(ctx, table, winnerRow, now)
	}

	localJSON, _ := json.Marshal(conflict.Local)
	remoteJSON, _ := json.Marshal(conflict.Remote)
	rec := ConflictRecord{
		EntityID:     conflict.EntityID,
		EntityType:   table,
		LocalData:    string(localJSON),
		RemoteData:   string(remoteJSON),
		ConflictType: conflict.Kind,
		DetectedAt:   now,
	}
	if err := e.store.PersistConflict(ctx, rec, now); err != nil {
		return err
	}
	msg := "Conflict requires manual resolution"
	return e.store.MarkStatus(ctx, table, conflict.EntityID, StatusConflict, &msg)
}

// retryStoredConflicts re-feeds every unresolved sync_conflicts row for
// table through the resolver chain (spec section 4.4.3).
func (e *Engine) retryStoredConflicts(ctx context.Context, table string) error {
	recs, err := e.store.UnresolvedConflicts(ctx, table)
	if err != nil {
		return err
	}
	factory := e.store.factoryFor(table)

	for _, rec := range recs {
		localEntity, lerr := Materialize(table, Row{ID: rec.EntityID, Payload: rec.LocalData}, factory)
		remoteEntity, rerr := Materialize(table, Row{ID: rec.EntityID, Payload: rec.RemoteData}, factory)
		if lerr != nil || rerr != nil {
			continue
		}

		conflict := Conflict{
			ID:         rec.ID,
			EntityID:   rec.EntityID,
			EntityType: table,
			Local:      localEntity,
			Remote:     remoteEntity,
			Kind:       rec.ConflictType,
			DetectedAt: rec.DetectedAt,
		}

		e.resolverMu.Lock()
		winner, ok, rerr2 := e.resolvers.resolve(ctx, conflict)
		e.resolverMu.Unlock()
		if rerr2 != nil || !ok {
			continue
		}

		now := e.now()
		winnerRow, serr := SerializeForStorage(winner, StatusSynced, nil)
		if serr != nil {
			continue
		}
		winnerRow.SyncedAt = &now
		if err := e.store.Update(ctx, table, winnerRow, now); err != nil {
			continue
		}
		strategy := StrategyUseLatest
		_ = e.store.ResolveConflict(ctx, rec.ID, strategy, now)
	}
	return nil
}
