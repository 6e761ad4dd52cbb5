package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/secondhand-market/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Error(err)
		}
		db.Close()
	})
	return db, mock
}

func TestTranslate(t *testing.T) {
	other := errors.New("connection reset")
	deadlock := &mysql.MySQLError{Number: 1213}
	cases := []struct {
		in, want error
	}{
		{nil, nil},
		{sql.ErrNoRows, ErrNotFound},
		{fmt.Errorf("scan: %w", sql.ErrNoRows), ErrNotFound},
		{&mysql.MySQLError{Number: mysqlDuplicateEntry}, ErrDuplicate},
		{&mysql.MySQLError{Number: mysqlNoReferencedRow}, ErrNotFound},
		{deadlock, deadlock},
		{other, other},
	}
	for _, tc := range cases {
		if got := translate(tc.in); got != tc.want {
			t.Errorf("translate(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestCountUnreadSpansSoftDeletedConversations(t *testing.T) {
	if strings.Contains(countUnreadSQL, "_deleted") {
		t.Fatal("unread count must not filter on delete flags")
	}
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(countUnreadSQL)).
		WithArgs(7, 7, 7).
		WillReturnRows(sqlmock.NewRows([]string{"COUNT(*)"}).AddRow(3))

	n, err := NewMessageRepo(db).CountUnread(context.Background(), 7)
	if err != nil || n != 3 {
		t.Fatalf("CountUnread = %d, %v", n, err)
	}
}

func TestListingGetByID(t *testing.T) {
	db, mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "seller_id", "status", "rejection_reason", "hidden_reason", "buyer_id",
		"title", "price_cents", "description", "category", "sub_category", "item_condition",
		"images", "meetup_area", "show_contact", "created_at", "updated_at"}
	query := regexp.QuoteMeta("FROM listings WHERE id = ?")
	mock.ExpectQuery(query).WithArgs(5).WillReturnRows(sqlmock.NewRows(cols).
		AddRow(5, 2, "sold", nil, nil, 3, "Road bike", 12000, "Barely used", "sports", "cycling", "good",
			[]byte(`["a.jpg","b.jpg"]`), "Campus gate", true, now, now))
	mock.ExpectQuery(query).WithArgs(6).WillReturnRows(sqlmock.NewRows(cols))

	repo := NewListingRepo(db)
	l, err := repo.GetByID(context.Background(), 5)
	if err != nil {
		t.Fatal(err)
	}
	if l.Status != model.ListingSold || l.BuyerID == nil || *l.BuyerID != 3 {
		t.Fatalf("status %q buyer %v", l.Status, l.BuyerID)
	}
	if l.RejectionReason != nil || l.HiddenReason != nil {
		t.Fatal("null reasons must stay nil")
	}
	if len(l.Images) != 2 || l.Images[1] != "b.jpg" {
		t.Fatalf("images = %v", l.Images)
	}

	if _, err := repo.GetByID(context.Background(), 6); !errors.Is(err, ErrNotFound) {
		t.Fatalf("missing row: err = %v", err)
	}
}

func TestConversationCreateDuplicate(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO conversations")).
		WithArgs(5, 3, 2).
		WillReturnError(&mysql.MySQLError{Number: mysqlDuplicateEntry, Message: "Duplicate entry"})

	err := NewConversationRepo(db).Create(context.Background(), &model.Conversation{ListingID: 5, BuyerID: 3, SellerID: 2})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("err = %v, want ErrDuplicate", err)
	}
}
