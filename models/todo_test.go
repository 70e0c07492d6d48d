package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mirasync/syncengine/syncx"
)

func TestNewTodoItemDefaults(t *testing.T) {
	item := NewTodoItem("t1", "buy milk", 1000)

	assert.Equal(t, "t1", item.ID())
	assert.Equal(t, TodoTable, item.TableName())
	assert.Equal(t, "buy milk", item.Text)
	assert.False(t, item.Done)
	assert.False(t, item.IsDeleted())
}

func TestTodoFactoryReconstructsFromFields(t *testing.T) {
	fields := map[string]any{
		"id":         "t1",
		"created_at": int64(1000),
		"updated_at": int64(2000),
		"version":    int64(3),
		"is_deleted": false,
		"text":       "buy milk",
		"done":       true,
		"synced_at":  int64(1500),
	}

	entity, err := TodoFactory(TodoTable, fields)
	require.NoError(t, err)

	item, ok := entity.(*TodoItem)
	require.True(t, ok)
	assert.Equal(t, "t1", item.ID())
	assert.Equal(t, int64(3), item.Version())
	assert.True(t, item.Done)

	syncedAt, ok := item.SyncedAt()
	require.True(t, ok)
	assert.Equal(t, int64(1500), syncedAt)
}

func TestTodoFactoryWithoutSyncedAt(t *testing.T) {
	entity, err := TodoFactory(TodoTable, map[string]any{
		"id": "t2", "created_at": int64(1), "updated_at": int64(1),
		"version": int64(1), "is_deleted": false, "text": "x", "done": false,
	})
	require.NoError(t, err)

	item := entity.(*TodoItem)
	_, ok := item.SyncedAt()
	assert.False(t, ok)
}

var _ syncx.Entity = (*TodoItem)(nil)
