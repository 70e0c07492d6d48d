// ABOUTME: QueueItem/ConflictRecord persistence over sync_queue and
// ABOUTME: sync_conflicts, the durable outbox and conflict ledger (spec 3).
package syncx

import (
	"context"

	"github.com/oklog/ulid/v2"
)

// QueueItem is a durable retry-queue row (spec section 3).
type QueueItem struct {
	ID          string
	EntityID    string
	Table       string
	Endpoint    string
	Operation   string // currently only "push"
	Payload     string // JSON-encoded entity
	RetryCount  int
	MaxRetries  int
	NextRetryAt *int64
	LastError   *string
	CreatedAt   int64
	UpdatedAt   int64
}

// EnqueueRetry appends a sync_queue entry with the item's own retry_count
// and next_retry_at (a nil NextRetryAt makes it due at once). pushEntity
// passes retry_count=0 and next_retry_at = now + QueueInitialDelay.
func (s *LocalStore) EnqueueRetry(ctx context.Context, item QueueItem, now int64) error {
	if item.ID == "" {
		item.ID = ulid.Make().String()
	}
	item.CreatedAt, item.UpdatedAt = now, now
	_, err := s.driver.RawExecute(ctx, `
INSERT INTO sync_queue(id, entity_id, table_name, endpoint, operation, payload, retry_count, max_retries, next_retry_at, last_error, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?)`,
		[]any{item.ID, item.EntityID, item.Table, item.Endpoint, item.Operation, item.Payload,
			item.RetryCount, item.MaxRetries, item.NextRetryAt, item.LastError, item.CreatedAt, item.UpdatedAt})
	if err != nil {
		return newError("queue.enqueue", KindStorageFailure, err)
	}
	return nil
}

// DueRetries returns sync_queue rows whose next_retry_at is unset or has
// passed (spec section 4.4 step 2).
func (s *LocalStore) DueRetries(ctx context.Context, now int64) ([]QueueItem, error) {
	rows, err := s.driver.RawQuery(ctx, `
SELECT id, entity_id, table_name, endpoint, operation, payload, retry_count, max_retries, next_retry_at, last_error, created_at, updated_at
FROM sync_queue WHERE next_retry_at IS NULL OR next_retry_at <= ? ORDER BY created_at ASC`, []any{now})
	if err != nil {
		return nil, newError("queue.due_retries", KindStorageFailure, err)
	}
	out := make([]QueueItem, 0, len(rows))
	for _, v := range rows {
		out = append(out, queueItemFromValues(v))
	}
	return out, nil
}

func queueItemFromValues(v Values) QueueItem {
	item := QueueItem{
		ID:         asString(v["id"]),
		EntityID:   asString(v["entity_id"]),
		Table:      asString(v["table_name"]),
		Endpoint:   asString(v["endpoint"]),
		Operation:  asString(v["operation"]),
		Payload:    asString(v["payload"]),
		RetryCount: int(asInt64(v["retry_count"])),
		MaxRetries: int(asInt64(v["max_retries"])),
		CreatedAt:  asInt64(v["created_at"]),
		UpdatedAt:  asInt64(v["updated_at"]),
	}
	if v["next_retry_at"] != nil {
		n := asInt64(v["next_retry_at"])
		item.NextRetryAt = &n
	}
	if v["last_error"] != nil {
		e := asString(v["last_error"])
		item.LastError = &e
	}
	return item
}

// UpdateRetry writes the given retry_count, last_error, and next_retry_at;
// processSyncQueue computes them (spec section 4.4 step 2).
func (s *LocalStore) UpdateRetry(ctx context.Context, id string, retryCount int, lastError string, nextRetryAt int64, now int64) error {
	_, err := s.driver.RawExecute(ctx, `
UPDATE sync_queue SET retry_count = ?, last_error = ?, next_retry_at = ?, updated_at = ? WHERE id = ?`,
		[]any{retryCount, lastError, nextRetryAt, now, id})
	if err != nil {
		return newError("queue.update_retry", KindStorageFailure, err)
	}
	return nil
}

// DeleteQueueItem removes a sync_queue row (on success, or after exhausting
// retries per spec section 4.4 step 2).
func (s *LocalStore) DeleteQueueItem(ctx context.Context, id string) error {
	_, err := s.driver.RawExecute(ctx, `DELETE FROM sync_queue WHERE id = ?`, []any{id})
	if err != nil {
		return newError("queue.delete", KindStorageFailure, err)
	}
	return nil
}

// QueueItemForEntity returns the sync_queue row for entityID in table, if
// any — used by tests asserting invariant 4 (spec section 8).
func (s *LocalStore) QueueItemForEntity(ctx context.Context, table, entityID string) (QueueItem, bool, error) {
	rows, err := s.driver.RawQuery(ctx, `
SELECT id, entity_id, table_name, endpoint, operation, payload, retry_count, max_retries, next_retry_at, last_error, created_at, updated_at
FROM sync_queue WHERE table_name = ? AND entity_id = ?`, []any{table, entityID})
	if err != nil {
		return QueueItem{}, false, newError("queue.for_entity", KindStorageFailure, err)
	}
	if len(rows) == 0 {
		return QueueItem{}, false, nil
	}
	return queueItemFromValues(rows[0]), true, nil
}

// ConflictRecord is a persisted sync_conflicts row (spec section 3).
type ConflictRecord struct {
	ID                 string
	EntityID           string
	EntityType         string
	LocalData          string
	RemoteData         string
	ConflictType       ConflictKind
	DetectedAt         int64
	IsResolved         bool
	ResolvedAt         *int64
	ResolutionStrategy *Strategy
	CreatedAt          int64
	UpdatedAt          int64
}

// PersistConflict inserts an unresolved conflict row.
func (s *LocalStore) PersistConflict(ctx context.Context, rec ConflictRecord, now int64) error {
	if rec.ID == "" {
		rec.ID = ulid.Make().String()
	}
	rec.CreatedAt, rec.UpdatedAt = now, now
	_, err := s.driver.RawExecute(ctx, `
INSERT INTO sync_conflicts(id, entity_id, entity_type, local_data, remote_data, conflict_type, detected_at, is_resolved, resolved_at, resolution_strategy, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,0,NULL,NULL,?,?)`,
		[]any{rec.ID, rec.EntityID, rec.EntityType, rec.LocalData, rec.RemoteData, string(rec.ConflictType), rec.DetectedAt, rec.CreatedAt, rec.UpdatedAt})
	if err != nil {
		return newError("conflicts.persist", KindStorageFailure, err)
	}
	return nil
}

// UnresolvedConflicts returns every unresolved sync_conflicts row for table
// (spec section 4.4.3 — "retried at the end of each sync_table").
func (s *LocalStore) UnresolvedConflicts(ctx context.Context, table string) ([]ConflictRecord, error) {
	rows, err := s.driver.RawQuery(ctx, `
SELECT id, entity_id, entity_type, local_data, remote_data, conflict_type, detected_at, is_resolved, resolved_at, resolution_strategy, created_at, updated_at
FROM sync_conflicts WHERE entity_type = ? AND is_resolved = 0`, []any{table})
	if err != nil {
		return nil, newError("conflicts.unresolved", KindStorageFailure, err)
	}
	out := make([]ConflictRecord, 0, len(rows))
	for _, v := range rows {
		out = append(out, conflictRecordFromValues(v))
	}
	return out, nil
}

func conflictRecordFromValues(v Values) ConflictRecord {
	rec := ConflictRecord{
		ID:           asString(v["id"]),
		EntityID:     asString(v["entity_id"]),
		EntityType:   asString(v["entity_type"]),
		LocalData:    asString(v["local_data"]),
		RemoteData:   asString(v["remote_data"]),
		ConflictType: ConflictKind(asString(v["conflict_type"])),
		DetectedAt:   asInt64(v["detected_at"]),
		IsResolved:   asInt64(v["is_resolved"]) != 0,
		CreatedAt:    asInt64(v["created_at"]),
		UpdatedAt:    asInt64(v["updated_at"]),
	}
	if v["resolved_at"] != nil {
		n := asInt64(v["resolved_at"])
		rec.ResolvedAt = &n
	}
	if v["resolution_strategy"] != nil {
		strat := Strategy(asString(v["resolution_strategy"]))
		rec.ResolutionStrategy = &strat
	}
	return rec
}

// ResolveConflict marks a sync_conflicts row resolved.
func (s *LocalStore) ResolveConflict(ctx context.Context, id string, strategy Strategy, now int64) error {
	_, err := s.driver.RawExecute(ctx, `
UPDATE sync_conflicts SET is_resolved = 1, resolved_at = ?, resolution_strategy = ?, updated_at = ? WHERE id = ?`,
		[]any{now, string(strategy), now, id})
	if err != nil {
		return newError("conflicts.resolve", KindStorageFailure, err)
	}
	return nil
}

// UpsertTableMetadata writes the sync_metadata summary row for table (spec
// section 3's "reserved per-table summary row").
func (s *LocalStore) UpsertTableMetadata(ctx context.Context, table string, lastSyncAt int64, pending, failed int) error {
	_, err := s.driver.RawExecute(ctx, `
INSERT INTO sync_metadata(table_name, last_sync_at, pending_count, failed_count) VALUES(?,?,?,?)
ON CONFLICT(table_name) DO UPDATE SET last_sync_at=excluded.last_sync_at, pending_count=excluded.pending_count, failed_count=excluded.failed_count`,
		[]any{table, lastSyncAt, pending, failed})
	if err != nil {
		return newError("metadata.upsert", KindStorageFailure, err)
	}
	return nil
}
