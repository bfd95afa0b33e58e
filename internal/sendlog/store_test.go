package sendlog

import (
	"context"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
)

func TestCreateInsertsPendingRow(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("INSERT INTO send_log").
		WithArgs(sqlmock.AnyArg(), "jane@example.com", "Jane Roe", "Hello", "<p>hi</p>", "camp-1", false, StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	id, err := store.Create(context.Background(), CreateParams{
		Recipient:  "jane@example.com",
		Name:       "Jane Roe",
		Subject:    "Hello",
		Content:    "<p>hi</p>",
		CampaignID: "camp-1",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if id == uuid.Nil {
		t.Error("Create returned nil id")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestCreateNullCampaignID(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	mock.ExpectExec("INSERT INTO send_log").
		WithArgs(sqlmock.AnyArg(), "jane@example.com", "Jane", "S", "C", nil, true, StatusPending).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	if _, err := store.Create(context.Background(), CreateParams{
		Recipient: "jane@example.com", Name: "Jane", Subject: "S", Content: "C", IsTest: true,
	}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkSent(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE send_log").
		WithArgs(id, StatusSent, "prov-msg-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	if err := store.MarkSent(context.Background(), id, "prov-msg-1"); err != nil {
		t.Fatalf("MarkSent: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkFailedTruncatesError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	id := uuid.New()
	long := strings.Repeat("x", maxErrorLen+200)
	mock.ExpectExec("UPDATE send_log").
		WithArgs(id, StatusFailed, long[:maxErrorLen], sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := New(db)
	if err := store.MarkFailed(context.Background(), id, long); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestMarkSentMissingRow(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	id := uuid.New()
	mock.ExpectExec("UPDATE send_log").
		WithArgs(id, StatusSent, "m", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := New(db)
	if err := store.MarkSent(context.Background(), id, "m"); err == nil {
		t.Error("expected error for missing row")
	}
}
