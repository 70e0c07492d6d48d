// ABOUTME: Entity is the shape every syncable record exposes to the engine.
// ABOUTME: BaseEntity is the struct applications embed to satisfy it cheaply.
package syncx

// Metadata is an opaque string-keyed bag passed through verbatim by the
// engine. The engine never inspects its contents.
type Metadata map[string]any

// Entity is satisfied by every domain record the engine can sync. The
// engine never reasons about domain fields directly; it only reads these
// control attributes and defers to a registered Factory to reconstruct the
// concrete type from a decoded payload.
type Entity interface {
	ID() string
	TableName() string
	CreatedAt() int64
	UpdatedAt() int64
	// SyncedAt returns the millisecond timestamp of the last successful
	// push/pull for this row, and ok=false if the row has never synced.
	SyncedAt() (ms int64, ok bool)
	Version() int64
	IsDeleted() bool
	Metadata() Metadata
}

// Mutable is implemented by entities whose bookkeeping fields the engine
// needs to update in place (clearing SyncedAt, bumping UpdatedAt, stamping
// the version). Entities that only round-trip through the codec (e.g. the
// internal fallback entity) need not implement it.
type Mutable interface {
	Entity
	SetUpdatedAt(ms int64)
	SetSyncedAt(ms int64, ok bool)
	SetVersion(v int64)
	SetDeleted(bool)
}

// BaseEntity is embedded by application entity types to satisfy Entity and
// Mutable with the standard bookkeeping fields from spec section 3.
type BaseEntity struct {
	IDValue        string   `json:"id"`
	Table          string   `json:"-"`
	CreatedAtMS    int64    `json:"created_at"`
	UpdatedAtMS    int64    `json:"updated_at"`
	SyncedAtMS     *int64   `json:"synced_at,omitempty"`
	VersionValue   int64    `json:"version"`
	Deleted        bool     `json:"is_deleted"`
	MetadataValue  Metadata `json:"metadata,omitempty"`
}

// NewBaseEntity stamps CreatedAt/UpdatedAt to now and Version to 1, the
// defaults every freshly-saved entity carries (spec section 4.3).
func NewBaseEntity(id, table string, now int64) BaseEntity {
	return BaseEntity{
		IDValue:      id,
		Table:        table,
		CreatedAtMS:  now,
		UpdatedAtMS:  now,
		VersionValue: 1,
	}
}

func (b BaseEntity) ID() string        { return b.IDValue }
func (b BaseEntity) TableName() string { return b.Table }
func (b BaseEntity) CreatedAt() int64  { return b.CreatedAtMS }
func (b BaseEntity) UpdatedAt() int64  { return b.UpdatedAtMS }
func (b BaseEntity) Version() int64    { return b.VersionValue }
func (b BaseEntity) IsDeleted() bool   { return b.Deleted }
func (b BaseEntity) Metadata() Metadata {
	return b.MetadataValue
}

func (b BaseEntity) SyncedAt() (int64, bool) {
	if b.SyncedAtMS == nil {
		return 0, false
	}
	return *b.SyncedAtMS, true
}

func (b *BaseEntity) SetUpdatedAt(ms int64) { b.UpdatedAtMS = ms }

func (b *BaseEntity) SetSyncedAt(ms int64, ok bool) {
	if !ok {
		b.SyncedAtMS = nil
		return
	}
	v := ms
	b.SyncedAtMS = &v
}

func (b *BaseEntity) SetVersion(v int64) { b.VersionValue = v }
func (b *BaseEntity) SetDeleted(d bool)  { b.Deleted = d }

// Touch bumps UpdatedAt to now and clears SyncedAt, the mutation every
// save/update performs per spec section 3's invariants.
func Touch(e Mutable, now int64) {
	e.SetUpdatedAt(now)
	e.SetSyncedAt(0, false)
}
