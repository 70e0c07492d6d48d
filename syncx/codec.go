// ABOUTME: Codec translates between domain entities and storage rows.
// ABOUTME: payload carries the JSON entity; control columns mirror it for querying.
package syncx

import (
	"encoding/json"
)

// SyncStatus is the canonical wire string for a row's sync state (spec
// section 3, design note on serialization).
type SyncStatus string

const (
	StatusPending  SyncStatus = "pending"
	StatusQueued   SyncStatus = "queued"
	StatusSynced   SyncStatus = "synced"
	StatusConflict SyncStatus = "conflict"
	StatusError    SyncStatus = "error"
)

// Row is the persisted shape of an entity table row (spec section 3).
type Row struct {
	ID         string
	Payload    string // JSON-encoded entity
	SyncStatus SyncStatus
	Version    int64
	IsDeleted  bool
	CreatedAt  int64
	UpdatedAt  int64
	SyncedAt   *int64
	DeletedAt  *int64
	Metadata   string // JSON-encoded Metadata
	LastError  *string
}

// Factory reconstructs a concrete Entity from a decoded payload map. One is
// registered per table via LocalStore.RegisterEntity.
type Factory func(table string, fields map[string]any) (Entity, error)

// SerializeForStorage produces the storage row for e. lastError is stored
// verbatim (nil clears it). The payload always carries the "id" key:
// Materialize's control-column overlay sets fields["id"] from row.ID
// regardless, so a caller-suppressible id in the payload would have no
// observable effect on the reconstructed entity.
func SerializeForStorage(e Entity, status SyncStatus, lastError *string) (Row, error) {
	payload := map[string]any{
		"id":         e.ID(),
		"created_at": e.CreatedAt(),
		"updated_at": e.UpdatedAt(),
		"version":    e.Version(),
		"is_deleted": e.IsDeleted(),
	}
	if ms, ok := e.SyncedAt(); ok {
		payload["synced_at"] = ms
	}
	if md := e.Metadata(); md != nil {
		payload["metadata"] = md
	}

	// Let concrete entity fields (JSON struct tags) win over the generic
	// bookkeeping keys above so domain fields always survive round-trips.
	domainBytes, err := json.Marshal(e)
	if err == nil {
		var domainFields map[string]any
		if err := json.Unmarshal(domainBytes, &domainFields); err == nil {
			for k, v := range domainFields {
				payload[k] = v
			}
		}
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return Row{}, err
	}

	metaBytes, err := json.Marshal(e.Metadata())
	if err != nil {
		return Row{}, err
	}

	row := Row{
		ID:         e.ID(),
		Payload:    string(payloadBytes),
		SyncStatus: status,
		Version:    e.Version(),
		IsDeleted:  e.IsDeleted(),
		CreatedAt:  e.CreatedAt(),
		UpdatedAt:  e.UpdatedAt(),
		Metadata:   string(metaBytes),
		LastError:  lastError,
	}
	if ms, ok := e.SyncedAt(); ok {
		v := ms
		row.SyncedAt = &v
	}
	return row, nil
}

// Materialize decodes row.Payload into a field map, overlays authoritative
// control columns, and invokes the factory registered for table (spec
// section 4.1). A missing or malformed payload degrades to an empty map
// rather than failing, so the overlay alone can still produce a valid
// entity. created_at and version are taken from the payload; their columns
// are used only when the payload lacks them.
func Materialize(table string, row Row, factory Factory) (Entity, error) {
	fields := map[string]any{}
	if row.Payload != "" {
		_ = json.Unmarshal([]byte(row.Payload), &fields) // best-effort; overlay below is authoritative
	}

	fields["id"] = row.ID
	fields["updated_at"] = row.UpdatedAt
	fields["is_deleted"] = row.IsDeleted
	fields["sync_status"] = string(row.SyncStatus)
	if row.SyncedAt != nil {
		fields["synced_at"] = *row.SyncedAt
	} else {
		delete(fields, "synced_at")
	}
	if row.DeletedAt != nil {
		fields["deleted_at"] = *row.DeletedAt
	}
	if row.LastError != nil {
		fields["last_error"] = *row.LastError
	}
	if _, ok := fields["created_at"]; !ok {
		fields["created_at"] = row.CreatedAt
	}
	if _, ok := fields["version"]; !ok {
		fields["version"] = row.Version
	}

	if factory == nil {
		return nil, &Error{Op: "materialize", Kind: KindValidation, Err: ErrValidation, Table: table, EntityID: row.ID}
	}
	return factory(table, fields)
}
