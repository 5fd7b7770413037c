package migrate

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestSplitStatements(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  []string
	}{
		{
			name:  "two statements",
			input: "create table a (id text);\ncreate table b (id text);",
			want:  []string{"create table a (id text)", "create table b (id text)"},
		},
		{
			name:  "semicolon inside string literal",
			input: "insert into t values ('a;b');",
			want:  []string{"insert into t values ('a;b')"},
		},
		{
			name:  "semicolon inside line comment",
			input: "-- setup; not a statement\ncreate table a (id text);",
			want:  []string{"-- setup; not a statement\ncreate table a (id text)"},
		},
		{
			name:  "trailing statement without semicolon",
			input: "create table a (id text)",
			want:  []string{"create table a (id text)"},
		},
		{
			name:  "blank input",
			input: "  \n\t ",
			want:  nil,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := splitStatements(tc.input)
			if len(got) != len(tc.want) {
				t.Fatalf("got %d statements, want %d: %q", len(got), len(tc.want), got)
			}
			for i := range got {
				if got[i] != tc.want[i] {
					t.Fatalf("statement %d mismatch:\n got %q\nwant %q", i, got[i], tc.want[i])
				}
			}
		})
	}
}

func TestCollectSQLOrdersAndFilters(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"0002_later.up.sql",
		"0001_init.up.sql",
		"0001_init.down.sql",
		"notes.txt",
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("select 1;"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ups, err := collectSQL(dir, upSuffix)
	if err != nil {
		t.Fatal(err)
	}
	if len(ups) != 2 || ups[0].Base != "0001_init.up.sql" || ups[1].Base != "0002_later.up.sql" {
		t.Fatalf("unexpected up files: %+v", ups)
	}

	// Seed collection must not pick up migration pairs.
	seeds, err := collectSQL(dir, ".sql")
	if err != nil {
		t.Fatal(err)
	}
	if len(seeds) != 0 {
		t.Fatalf("migration pairs leaked into seed collection: %+v", seeds)
	}
}

func TestCollectSQLMissingDir(t *testing.T) {
	files, err := collectSQL(filepath.Join(t.TempDir(), "absent"), upSuffix)
	if err != nil || files != nil {
		t.Fatalf("missing dir should be empty, got %v %v", files, err)
	}
}

func TestUpAppliesPendingOnce(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001_init.up.sql")
	if err := os.WriteFile(path, []byte("create table a (id text);"), 0o644); err != nil {
		t.Fatal(err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name, checksum, applied_at from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum", "applied_at"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").WillReturnResult(sqlmock.NewResult(0, 1))

	mgr := NewManager(db, dir, "")
	n, err := mgr.Up(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected 1 applied, got %d", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatal(err)
	}
}

func TestUpDetectsChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "0001_init.up.sql")
	if err := os.WriteFile(path, []byte("create table a (id text);"), 0o644); err != nil {
		t.Fatal(err)
	}

	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()

	mock.ExpectExec("create table if not exists schema_migrations").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("select name, checksum, applied_at from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name", "checksum", "applied_at"}).
			AddRow("0001_init.up.sql", "stale-checksum", time.Now()))

	mgr := NewManager(db, dir, "")
	if _, err := mgr.Up(context.Background()); !errors.Is(err, ErrChecksumMismatch) {
		t.Fatalf("expected ErrChecksumMismatch, got %v", err)
	}
}

func TestFileChecksumStable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "f.sql")
	if err := os.WriteFile(path, []byte("select 1;"), 0o644); err != nil {
		t.Fatal(err)
	}
	a, err := fileChecksum(path)
	if err != nil {
		t.Fatal(err)
	}
	b, err := fileChecksum(path)
	if err != nil {
		t.Fatal(err)
	}
	if a != b || len(a) != 64 {
		t.Fatalf("checksum not stable hex sha256: %q %q", a, b)
	}
}
