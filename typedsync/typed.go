// ABOUTME: Typed is a generic convenience wrapper over syncx.Facade that
// ABOUTME: saves a type assertion at every call site for a single table.
package typedsync

import (
	"context"

	"github.com/mirasync/syncengine/syncx"
)

// Typed scopes a syncx.Facade to one table and one concrete entity type T,
// so callers get T back from reads instead of the syncx.Entity interface.
type Typed[T syncx.Entity] struct {
	facade *syncx.Facade
	table  string
}

// For wraps facade for table; T must match the concrete type the table's
// registered Factory produces.
func For[T syncx.Entity](facade *syncx.Facade, table string) Typed[T] {
	return Typed[T]{facade: facade, table: table}
}

func (t Typed[T]) Save(ctx context.Context, e T) error {
	return t.facade.Save(ctx, e)
}

func (t Typed[T]) Update(ctx context.Context, e T) error {
	return t.facade.Update(ctx, e)
}

func (t Typed[T]) Delete(ctx context.Context, id string) error {
	return t.facade.Delete(ctx, t.table, id)
}

func (t Typed[T]) SoftDelete(ctx context.Context, id string) error {
	return t.facade.SoftDelete(ctx, t.table, id)
}

// FindByID returns the zero value of T and ok=false if the row doesn't
// exist, or if the table's factory produced a different concrete type.
func (t Typed[T]) FindByID(ctx context.Context, id string) (T, bool, error) {
	var zero T
	e, ok, err := t.facade.FindByID(ctx, t.table, id)
	if err != nil || !ok {
		return zero, ok, err
	}
	typed, match := e.(T)
	if !match {
		return zero, false, nil
	}
	return typed, true, nil
}

func (t Typed[T]) FindAll(ctx context.Context) ([]T, error) {
	entities, err := t.facade.FindAll(ctx, t.table)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(entities))
	for _, e := range entities {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out, nil
}

func (t Typed[T]) Count(ctx context.Context) (int, error) {
	return t.facade.Count(ctx, t.table)
}
