package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"crewdock.io/internal/crew"
	"crewdock.io/internal/scope"
)

var accountRowColumns = []string{
	"id", "seafarer_id", "full_name", "rank", "company_id", "ship_id", "status", "role",
	"username", "password_hash", "password_enc", "reset_token_hash", "reset_expires_at",
	"created_at", "updated_at",
}

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db), mock
}

func accountRow(id string) *sqlmock.Rows {
	now := time.Now().UTC()
	return sqlmock.NewRows(accountRowColumns).AddRow(
		id, "SF-"+id, "Seafarer "+id, "AB", "c1", "s1", "Onboard", "crew",
		"sf1abcd", "hash", "enc", nil, nil, now, now)
}

func TestCreateMapsUniqueViolation(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("insert into accounts").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_seafarer_id_key"})

	err := store.Create(context.Background(), &crew.Account{
		ID: "a1", SeafarerID: "SF-a1", FullName: "Dup", CompanyID: "c1",
	})
	if !errors.Is(err, crew.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetScansNullableColumns(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	rows := sqlmock.NewRows(accountRowColumns).AddRow(
		"a1", "SF-a1", "No Creds", "", "c1", nil, "Offboard", "admin",
		nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery("select (.+) from accounts where id =").
		WithArgs("a1").WillReturnRows(rows)

	a, err := store.Get(context.Background(), "a1")
	if err != nil {
		t.Fatal(err)
	}
	if a.ShipID != "" || a.Username != "" || a.PasswordHash != "" {
		t.Fatalf("null columns must scan to empty strings: %+v", a)
	}
	if a.RoleName != "admin" {
		t.Fatalf("role round trip failed: %q", a.RoleName)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestGetNotFound(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select (.+) from accounts where id =").
		WithArgs("ghost").WillReturnRows(sqlmock.NewRows(accountRowColumns))

	_, err := store.Get(context.Background(), "ghost")
	if !errors.Is(err, crew.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUsernameExists(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectQuery("select exists").
		WithArgs("sf1abcd").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := store.UsernameExists(context.Background(), "sf1abcd")
	if err != nil || !exists {
		t.Fatalf("got %v %v", exists, err)
	}
}

func TestUpdateWritesOnlyProvidedFields(t *testing.T) {
	store, mock := newMockStore(t)
	name := "Renamed Mariner"
	role := scope.RoleSubAdmin
	now := time.Now().UTC()
	rows := sqlmock.NewRows(accountRowColumns).AddRow(
		"a1", "SF-a1", name, "AB", "c1", "s1", "Onboard", "subadmin",
		"sf1abcd", "hash", "enc", nil, nil, now, now)
	mock.ExpectQuery("update accounts set").
		WithArgs("a1", name, nil, nil, nil, "subadmin").
		WillReturnRows(rows)

	a, err := store.Update(context.Background(), "a1", crew.AccountUpdate{FullName: &name, Role: &role})
	if err != nil {
		t.Fatal(err)
	}
	if a.FullName != name || a.RoleName != "subadmin" {
		t.Fatalf("update round trip failed: %+v", a)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithAccountsLockedAppliesWritesAndCommits(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from accounts where id in (.+) order by id for update").
		WithArgs("a1").WillReturnRows(accountRow("a1"))
	mock.ExpectExec("update accounts set").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status := "Offboard"
	err := store.WithAccountsLocked(context.Background(), []string{"a1"}, func(accounts []*crew.Account) ([]crew.AccountWrite, error) {
		if len(accounts) != 1 || accounts[0].ID != "a1" {
			t.Fatalf("unexpected locked rows: %+v", accounts)
		}
		return []crew.AccountWrite{{
			ID:     "a1",
			Update: crew.AccountUpdate{Status: &status},
		}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithAccountsLockedRollsBackOnCallbackError(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("select (.+) from accounts where id in (.+) order by id for update").
		WithArgs("a1").WillReturnRows(accountRow("a1"))
	mock.ExpectRollback()

	boom := errors.New("batch rejected")
	err := store.WithAccountsLocked(context.Background(), []string{"a1"}, func([]*crew.Account) ([]crew.AccountWrite, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("callback error must surface, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestWithAccountsLockedCredentialClear(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectQuery("for update").WithArgs("a1").WillReturnRows(accountRow("a1"))
	mock.ExpectExec("username = null, password_hash = null, password_enc = null").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	status := "Offboard"
	err := store.WithAccountsLocked(context.Background(), []string{"a1"}, func([]*crew.Account) ([]crew.AccountWrite, error) {
		return []crew.AccountWrite{{
			ID:          "a1",
			Update:      crew.AccountUpdate{Status: &status},
			Credentials: &crew.CredentialWrite{Clear: true},
		}}, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestDeleteMissingRow(t *testing.T) {
	store, mock := newMockStore(t)
	mock.ExpectExec("delete from accounts").
		WithArgs("ghost").WillReturnResult(sqlmock.NewResult(0, 0))

	if err := store.Delete(context.Background(), "ghost"); !errors.Is(err, crew.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
