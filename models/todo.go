// ABOUTME: TodoItem is a reference entity demonstrating how an application
// ABOUTME: embeds syncx.BaseEntity to satisfy Entity/Mutable cheaply.
package models

import "github.com/mirasync/syncengine/syncx"

const TodoTable = "todos"

// TodoItem mirrors the teacher's todo CLI domain: free-form text plus a
// completion flag, synced through the generic engine.
type TodoItem struct {
	syncx.BaseEntity
	Text string `json:"text"`
	Done bool   `json:"done"`
}

// NewTodoItem builds a pending TodoItem stamped with now.
func NewTodoItem(id, text string, now int64) *TodoItem {
	return &TodoItem{
		BaseEntity: syncx.NewBaseEntity(id, TodoTable, now),
		Text:       text,
	}
}

// TodoFactory reconstructs a *TodoItem from a materialized field map; pass
// it to Facade.RegisterEntity / Engine.RegisterTable for TodoTable.
func TodoFactory(table string, fields map[string]any) (syncx.Entity, error) {
	item := &TodoItem{
		BaseEntity: syncx.BaseEntity{
			IDValue:      syncx.FieldString(fields, "id"),
			Table:        table,
			CreatedAtMS:  syncx.FieldInt64(fields, "created_at"),
			UpdatedAtMS:  syncx.FieldInt64(fields, "updated_at"),
			VersionValue: syncx.FieldInt64(fields, "version"),
			Deleted:      syncx.FieldBool(fields, "is_deleted"),
			MetadataValue: syncx.FieldMetadata(fields, "metadata"),
		},
		Text: syncx.FieldString(fields, "text"),
		Done: syncx.FieldBool(fields, "done"),
	}
	if ms, ok := syncx.FieldOptionalInt64(fields, "synced_at"); ok {
		item.SetSyncedAt(ms, true)
	}
	return item, nil
}
