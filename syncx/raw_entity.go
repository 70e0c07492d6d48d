// ABOUTME: rawEntity is the minimal fallback used when a table's factory is
// ABOUTME: missing or fails, so a pulled row still reaches conflict detection.
package syncx

// rawEntity satisfies Entity using only a storage row's control columns,
// carrying the raw payload through untouched. applyRemoteItem uses it for
// the local or remote side of a pull when Materialize fails; the push path
// posts the stored payload directly and never builds one.
type rawEntity struct {
	id        string
	table     string
	createdAt int64
	updatedAt int64
	syncedAt  *int64
	version   int64
	deleted   bool
	payload   string
}

func newRawEntityFromRow(table string, r Row) *rawEntity {
	return &rawEntity{
		id:        r.ID,
		table:     table,
		createdAt: r.CreatedAt,
		updatedAt: r.UpdatedAt,
		syncedAt:  r.SyncedAt,
		version:   r.Version,
		deleted:   r.IsDeleted,
		payload:   r.Payload,
	}
}

func (e *rawEntity) ID() string        { return e.id }
func (e *rawEntity) TableName() string { return e.table }
func (e *rawEntity) CreatedAt() int64  { return e.createdAt }
func (e *rawEntity) UpdatedAt() int64  { return e.updatedAt }
func (e *rawEntity) Version() int64    { return e.version }
func (e *rawEntity) IsDeleted() bool   { return e.deleted }
func (e *rawEntity) Metadata() Metadata { return nil }

func (e *rawEntity) SyncedAt() (int64, bool) {
	if e.syncedAt == nil {
		return 0, false
	}
	return *e.syncedAt, true
}

// MarshalJSON makes rawEntity serialize as its stored payload verbatim
// rather than a JSON encoding of its own fields.
func (e *rawEntity) MarshalJSON() ([]byte, error) {
	if e.payload == "" {
		return []byte("{}"), nil
	}
	return []byte(e.payload), nil
}
