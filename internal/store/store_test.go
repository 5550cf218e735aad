package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v4"
)

func TestInsertMessage_Member_Persists(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select exists")).
		WithArgs("cht_1", "usr_1").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(regexp.QuoteMeta("insert into messages")).
		WithArgs(pgxmock.AnyArg(), "cht_1", "usr_1", "hello there", "text", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(regexp.QuoteMeta("update chats set last_message_at")).
		WithArgs("cht_1", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	s := New(mock)
	msg, err := s.InsertMessage(context.Background(), InsertMessageInput{
		ChatID: "cht_1", SenderID: "usr_1", Content: "hello there", MessageType: "text",
	})
	if err != nil {
		t.Fatalf("InsertMessage returned err: %v", err)
	}
	if msg.ID == "" || msg.ChatID != "cht_1" || msg.SenderID != "usr_1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.CreatedAt.IsZero() {
		t.Fatal("expected created_at to be set")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestInsertMessage_NonMember_Rejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("select exists")).
		WithArgs("cht_1", "usr_intruder").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectRollback()

	s := New(mock)
	_, err = s.InsertMessage(context.Background(), InsertMessageInput{
		ChatID: "cht_1", SenderID: "usr_intruder", Content: "hi", MessageType: "text",
	})
	if !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListChatMemberIDs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectQuery(regexp.QuoteMeta("select user_id")).
		WithArgs("cht_1").
		WillReturnRows(pgxmock.NewRows([]string{"user_id"}).AddRow("usr_1").AddRow("usr_2"))

	s := New(mock)
	ids, err := s.ListChatMemberIDs(context.Background(), "cht_1")
	if err != nil {
		t.Fatalf("ListChatMemberIDs returned err: %v", err)
	}
	if len(ids) != 2 || ids[0] != "usr_1" || ids[1] != "usr_2" {
		t.Fatalf("unexpected members: %v", ids)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestMarkChatRead_NonMember_Rejected(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("update chat_members")).
		WithArgs("cht_1", "usr_ghost").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	s := New(mock)
	if err := s.MarkChatRead(context.Background(), "cht_1", "usr_ghost"); !errors.Is(err, ErrNotMember) {
		t.Fatalf("expected ErrNotMember, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPruneTranslationLogs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock pool: %v", err)
	}
	defer mock.Close()

	mock.ExpectExec(regexp.QuoteMeta("delete from translation_logs")).
		WithArgs(pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("DELETE", 7))

	s := New(mock)
	n, err := s.PruneTranslationLogs(context.Background(), 30*24*time.Hour)
	if err != nil {
		t.Fatalf("PruneTranslationLogs returned err: %v", err)
	}
	if n != 7 {
		t.Fatalf("expected 7 rows pruned, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
