package sqlitestore

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/mirasync/syncengine/syncx"
)

func newMockDriver(t *testing.T) (*Driver, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	d := &Driver{db: db}
	t.Cleanup(func() { _ = db.Close() })
	return d, mock
}

func TestDriverInsertPropagatesDriverError(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectExec("INSERT INTO widgets").WillReturnError(errors.New("disk I/O error"))

	_, err := d.Insert(context.Background(), "widgets", syncx.Values{"id": "w1"})
	if err == nil {
		t.Fatal("expected insert to surface the driver error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDriverQueryPropagatesDriverError(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectQuery("SELECT (.+) FROM widgets").WillReturnError(errors.New("database is locked"))

	_, err := d.Query(context.Background(), "widgets", "", nil, "", 0)
	if err == nil {
		t.Fatal("expected query to surface the driver error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDriverTransactionBeginFailurePropagates(t *testing.T) {
	d, mock := newMockDriver(t)
	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	err := d.Transaction(context.Background(), func(ctx context.Context) error {
		t.Fatal("fn should not run when BeginTx fails")
		return nil
	})
	if err == nil {
		t.Fatal("expected transaction begin failure to propagate")
	}
}
