package sqlitestore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/mirasync/syncengine/syncx"
)

func openTestDriver(t *testing.T) *Driver {
	t.Helper()
	dir := t.TempDir()
	d := New(filepath.Join(dir, "test.db"))
	if err := d.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDriverInsertQueryUpdateDelete(t *testing.T) {
	ctx := context.Background()
	d := openTestDriver(t)

	if err := d.CreateTable(ctx, `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY, name TEXT, qty INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}

	id, err := d.Insert(ctx, "widgets", syncx.Values{"id": "w1", "name": "gizmo", "qty": 3})
	if err != nil {
		t.Fatalf("insert: %v", err)
	}
	if id != "w1" {
		t.Fatalf("expected id w1, got %q", id)
	}

	rows, err := d.Query(ctx, "widgets", "id = ?", []any{"w1"}, "", 1)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 1 || rows[0]["name"] != "gizmo" {
		t.Fatalf("unexpected rows: %+v", rows)
	}

	n, err := d.Update(ctx, "widgets", syncx.Values{"qty": 5}, "id = ?", []any{"w1"})
	if err != nil || n != 1 {
		t.Fatalf("update: n=%d err=%v", n, err)
	}

	rows, err = d.Query(ctx, "widgets", "id = ?", []any{"w1"}, "", 1)
	if err != nil {
		t.Fatalf("query after update: %v", err)
	}
	if qty := rows[0]["qty"]; qty != int64(5) {
		t.Fatalf("expected qty=5, got %v (%T)", qty, qty)
	}

	n, err = d.Delete(ctx, "widgets", "id = ?", []any{"w1"})
	if err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}

	rows, err = d.Query(ctx, "widgets", "id = ?", []any{"w1"}, "", 1)
	if err != nil {
		t.Fatalf("query after delete: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected no rows after delete, got %d", len(rows))
	}
}

func TestDriverQueryOrderByAndLimit(t *testing.T) {
	ctx := context.Background()
	d := openTestDriver(t)
	_ = d.CreateTable(ctx, `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY, rank INTEGER)`)

	for i, id := range []string{"a", "b", "c"} {
		if _, err := d.Insert(ctx, "widgets", syncx.Values{"id": id, "rank": i}); err != nil {
			t.Fatalf("insert %s: %v", id, err)
		}
	}

	rows, err := d.Query(ctx, "widgets", "", nil, "rank DESC", 2)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(rows) != 2 || rows[0]["id"] != "c" {
		t.Fatalf("expected top-2 by rank desc starting with c, got %+v", rows)
	}
}

func TestDriverRawQueryAndExecute(t *testing.T) {
	ctx := context.Background()
	d := openTestDriver(t)
	_ = d.CreateTable(ctx, `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY, qty INTEGER)`)
	_, _ = d.Insert(ctx, "widgets", syncx.Values{"id": "w1", "qty": 1})

	n, err := d.RawExecute(ctx, "UPDATE widgets SET qty = qty + 1 WHERE id = ?", []any{"w1"})
	if err != nil || n != 1 {
		t.Fatalf("raw execute: n=%d err=%v", n, err)
	}

	rows, err := d.RawQuery(ctx, "SELECT qty FROM widgets WHERE id = ?", []any{"w1"})
	if err != nil {
		t.Fatalf("raw query: %v", err)
	}
	if rows[0]["qty"] != int64(2) {
		t.Fatalf("expected qty=2, got %v", rows[0]["qty"])
	}
}

func TestDriverTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	d := openTestDriver(t)
	_ = d.CreateTable(ctx, `CREATE TABLE IF NOT EXISTS widgets (id TEXT PRIMARY KEY)`)

	sentinel := errTest("boom")
	err := d.Transaction(ctx, func(ctx context.Context) error {
		if _, err := d.Insert(ctx, "widgets", syncx.Values{"id": "w1"}); err != nil {
			return err
		}
		return sentinel
	})
	if err != sentinel {
		t.Fatalf("expected sentinel error, got %v", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
