// ABOUTME: Narrow row-status mutators the engine uses instead of rewriting
// ABOUTME: a full Row, plus the unsynced counter used for pending_count.
package syncx

import "context"

// MarkSynced sets sync_status='synced', synced_at=now, last_error=NULL for
// the row at id (spec section 3's invariant: synced implies no last_error).
func (s *LocalStore) MarkSynced(ctx context.Context, table, id string, now int64) error {
	values := Values{
		"sync_status": string(StatusSynced),
		"synced_at":   now,
		"last_error":  nil,
	}
	_, err := s.driver.Update(ctx, table, values, "id = ?", []any{id})
	if err != nil {
		return newError("store.mark_synced", KindStorageFailure, err)
	}
	return nil
}

// MarkStatus sets sync_status and last_error for the row at id without
// touching any other column. In particular it never bumps updated_at:
// that column is reserved for domain edits (spec section 3), so a row
// that merely failed to push or got queued/conflicted must not look
// more recently modified than it actually is.
func (s *LocalStore) MarkStatus(ctx context.Context, table, id string, status SyncStatus, lastError *string) error {
	values := Values{
		"sync_status": string(status),
	}
	if lastError != nil {
		values["last_error"] = *lastError
	} else {
		values["last_error"] = nil
	}
	_, err := s.driver.Update(ctx, table, values, "id = ?", []any{id})
	if err != nil {
		return newError("store.mark_status", KindStorageFailure, err)
	}
	return nil
}

// CountUnsynced counts rows where sync_status != 'synced' OR sync_status
// IS NULL, the same predicate FindUnsynced uses (spec section 4.2).
func (s *LocalStore) CountUnsynced(ctx context.Context, table string) (int, error) {
	if err := s.requireInitialized(); err != nil {
		return 0, err
	}
	rows, err := s.driver.RawQuery(ctx, "SELECT COUNT(*) AS n FROM "+table+" WHERE sync_status IS NULL OR sync_status != ?", []any{string(StatusSynced)})
	if err != nil {
		return 0, newError("store.count_unsynced", KindStorageFailure, err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return int(asInt64(rows[0]["n"])), nil
}
