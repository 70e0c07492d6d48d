package syncx_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mirasync/syncengine/internal/sqlitestore"
	"github.com/mirasync/syncengine/syncx"
)

func newTestFacade(t *testing.T, network syncx.NetworkAdapter) *syncx.Facade {
	t.Helper()
	driver := sqlitestore.New(":memory:")
	t.Cleanup(func() { _ = driver.Close() })

	facade := syncx.NewFacade(driver, network, newFakeConnectivity(true), syncx.DefaultEngineConfig(), zerolog.Nop())
	if err := facade.RegisterEntity(context.Background(), "items", "/v1/items", "", itemFactory); err != nil {
		t.Fatalf("register entity: %v", err)
	}
	if err := facade.Initialize(context.Background()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	t.Cleanup(facade.Close)
	return facade
}

func TestFacadeSaveAndFindByID(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t, newFakeNetwork())

	it := &item{BaseEntity: syncx.NewBaseEntity("i1", "items", 1000), Name: "one"}
	if err := facade.Save(ctx, it); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := facade.FindByID(ctx, "items", "i1")
	if err != nil || !ok {
		t.Fatalf("find: ok=%v err=%v", ok, err)
	}
	if got.(*item).Name != "one" {
		t.Fatalf("unexpected entity: %+v", got)
	}
}

func TestFacadeUpdateClearsSyncedAt(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t, newFakeNetwork())

	it := &item{BaseEntity: syncx.NewBaseEntity("i1", "items", 1000), Name: "one"}
	_ = facade.Save(ctx, it)

	it.Name = "two"
	if err := facade.Update(ctx, it); err != nil {
		t.Fatalf("update: %v", err)
	}

	got, _, err := facade.FindByID(ctx, "items", "i1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	updated := got.(*item)
	if updated.Name != "two" {
		t.Fatalf("expected updated name, got %q", updated.Name)
	}
	if _, ok := updated.SyncedAt(); ok {
		t.Fatal("expected synced_at cleared after update")
	}
}

func TestFacadeFindAllAndCount(t *testing.T) {
	ctx := context.Background()
	facade := newTestFacade(t, newFakeNetwork())

	_ = facade.Save(ctx, &item{BaseEntity: syncx.NewBaseEntity("i1", "items", 1000), Name: "a"})
	_ = facade.Save(ctx, &item{BaseEntity: syncx.NewBaseEntity("i2", "items", 1000), Name: "b"})

	n, err := facade.Count(ctx, "items")
	if err != nil || n != 2 {
		t.Fatalf("expected count=2, got n=%d err=%v", n, err)
	}

	all, err := facade.FindAll(ctx, "items")
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 entities, got %d err=%v", len(all), err)
	}
}

func TestFacadeSoftDeleteThenSync(t *testing.T) {
	ctx := context.Background()
	net := newFakeNetwork()
	net.queue("/v1/items", syncx.Response{StatusCode: 200}, nil)
	facade := newTestFacade(t, net)

	it := &item{BaseEntity: syncx.NewBaseEntity("i1", "items", 1000), Name: "one"}
	_ = facade.Save(ctx, it)

	if err := facade.SoftDelete(ctx, "items", "i1"); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	if err := facade.Sync(ctx); err != nil {
		t.Fatalf("sync: %v", err)
	}

	got, _, err := facade.FindByID(ctx, "items", "i1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if !got.IsDeleted() {
		t.Fatal("expected deleted entity to survive sync")
	}
}
