// Package migrate applies filesystem SQL migrations and seed data.
// Migrations are numbered *.up.sql / *.down.sql pairs; seeds are plain
// *.sql files applied once. Bookkeeping lives in two tables that record a
// checksum of each applied file so silent edits to history are detected.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	defaultMigrationsTable = "schema_migrations"
	defaultSeedsTable      = "schema_seeds"

	upSuffix   = ".up.sql"
	downSuffix = ".down.sql"
)

// ErrChecksumMismatch means an already-applied migration file changed on
// disk after it was applied.
var ErrChecksumMismatch = errors.New("migrate: applied file changed on disk")

// Manager applies migrations and seeds against one database.
type Manager struct {
	db              *sql.DB
	migrationsDir   string
	seedsDir        string
	migrationsTable string
	seedsTable      string
	now             func() time.Time
}

// Option configures Manager.
type Option func(*Manager)

// WithMigrationsTable overrides the migrations bookkeeping table.
func WithMigrationsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.migrationsTable = name
		}
	}
}

// WithSeedsTable overrides the seeds bookkeeping table.
func WithSeedsTable(name string) Option {
	return func(m *Manager) {
		if name != "" {
			m.seedsTable = name
		}
	}
}

// WithClock overrides the time source.
func WithClock(fn func() time.Time) Option {
	return func(m *Manager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewManager constructs a Manager over an open pool.
func NewManager(db *sql.DB, migrationsDir, seedsDir string, opts ...Option) *Manager {
	m := &Manager{
		db:              db,
		migrationsDir:   migrationsDir,
		seedsDir:        seedsDir,
		migrationsTable: defaultMigrationsTable,
		seedsTable:      defaultSeedsTable,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Record is one applied-file bookkeeping row.
type Record struct {
	Name      string
	Checksum  string
	AppliedAt time.Time
}

// Status describes applied and pending migrations in order.
type Status struct {
	Applied []Record
	Pending []string
}

// Up applies every pending migration in name order. Each file runs in its
// own transaction. Already-applied files are checksum-verified.
func (m *Manager) Up(ctx context.Context) (int, error) {
	if err := m.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedRecords(ctx, m.migrationsTable)
	if err != nil {
		return 0, err
	}
	files, err := collectSQL(m.migrationsDir, upSuffix)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		sum, err := fileChecksum(f.Path)
		if err != nil {
			return n, err
		}
		if rec, ok := applied[f.Base]; ok {
			if rec.Checksum != sum {
				return n, fmt.Errorf("%w: %s", ErrChecksumMismatch, f.Base)
			}
			continue
		}
		if err := m.execFile(ctx, f.Path); err != nil {
			return n, fmt.Errorf("apply %s: %w", f.Base, err)
		}
		if err := m.record(ctx, m.migrationsTable, f.Base, sum); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Down rolls back the most recently applied migration using its .down.sql
// counterpart.
func (m *Manager) Down(ctx context.Context) (string, error) {
	if err := m.ensureTables(ctx); err != nil {
		return "", err
	}
	history, err := m.history(ctx, m.migrationsTable)
	if err != nil {
		return "", err
	}
	if len(history) == 0 {
		return "", errors.New("migrate: nothing applied")
	}
	last := history[len(history)-1].Name
	downPath := filepath.Join(m.migrationsDir, strings.TrimSuffix(last, upSuffix)+downSuffix)
	if _, err := os.Stat(downPath); err != nil {
		return "", fmt.Errorf("migrate: no down file for %s", last)
	}
	if err := m.execFile(ctx, downPath); err != nil {
		return "", fmt.Errorf("rollback %s: %w", last, err)
	}
	_, err = m.db.ExecContext(ctx,
		fmt.Sprintf(`delete from %s where name = $1`, m.migrationsTable), last)
	return last, err
}

// State reports applied history and pending file names.
func (m *Manager) State(ctx context.Context) (Status, error) {
	if err := m.ensureTables(ctx); err != nil {
		return Status{}, err
	}
	history, err := m.history(ctx, m.migrationsTable)
	if err != nil {
		return Status{}, err
	}
	files, err := collectSQL(m.migrationsDir, upSuffix)
	if err != nil {
		return Status{}, err
	}
	appliedSet := make(map[string]bool, len(history))
	for _, rec := range history {
		appliedSet[rec.Name] = true
	}
	st := Status{Applied: history}
	for _, f := range files {
		if !appliedSet[f.Base] {
			st.Pending = append(st.Pending, f.Base)
		}
	}
	return st, nil
}

// Seed applies seed files once each, in name order.
func (m *Manager) Seed(ctx context.Context) (int, error) {
	if err := m.ensureTables(ctx); err != nil {
		return 0, err
	}
	applied, err := m.appliedRecords(ctx, m.seedsTable)
	if err != nil {
		return 0, err
	}
	files, err := collectSQL(m.seedsDir, ".sql")
	if err != nil {
		return 0, err
	}
	n := 0
	for _, f := range files {
		if _, ok := applied[f.Base]; ok {
			continue
		}
		sum, err := fileChecksum(f.Path)
		if err != nil {
			return n, err
		}
		if err := m.execFile(ctx, f.Path); err != nil {
			return n, fmt.Errorf("seed %s: %w", f.Base, err)
		}
		if err := m.record(ctx, m.seedsTable, f.Base, sum); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (m *Manager) ensureTables(ctx context.Context) error {
	for _, table := range []string{m.migrationsTable, m.seedsTable} {
		ddl := fmt.Sprintf(`
			create table if not exists %s (
				name text primary key,
				checksum text not null default '',
				applied_at timestamptz not null default now()
			)`, table)
		if _, err := m.db.ExecContext(ctx, ddl); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) execFile(ctx context.Context, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, stmt := range splitStatements(string(raw)) {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (m *Manager) record(ctx context.Context, table, name, checksum string) error {
	_, err := m.db.ExecContext(ctx,
		fmt.Sprintf(`insert into %s (name, checksum, applied_at) values ($1, $2, $3)`, table),
		name, checksum, m.now().UTC())
	return err
}

func (m *Manager) appliedRecords(ctx context.Context, table string) (map[string]Record, error) {
	history, err := m.history(ctx, table)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Record, len(history))
	for _, rec := range history {
		out[rec.Name] = rec
	}
	return out, nil
}

func (m *Manager) history(ctx context.Context, table string) ([]Record, error) {
	rows, err := m.db.QueryContext(ctx,
		fmt.Sprintf(`select name, checksum, applied_at from %s order by applied_at, name`, table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.Name, &rec.Checksum, &rec.AppliedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type sqlFile struct {
	Base string
	Path string
}

func collectSQL(dir, suffix string) ([]sqlFile, error) {
	if dir == "" {
		return nil, nil
	}
	var files []sqlFile
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), suffix) {
			return nil
		}
		// Down files also end in .sql; keep seed collection from
		// double-counting migration pairs.
		if suffix == ".sql" && (strings.HasSuffix(d.Name(), upSuffix) || strings.HasSuffix(d.Name(), downSuffix)) {
			return nil
		}
		files = append(files, sqlFile{Base: d.Name(), Path: path})
		return nil
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Base < files[j].Base })
	return files, nil
}

func fileChecksum(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

// splitStatements breaks a file into executable statements on semicolons,
// skipping string literals and line comments. It does not handle
// dollar-quoted bodies; migration files here do not use them.
func splitStatements(input string) []string {
	var (
		stmts     []string
		current   strings.Builder
		inString  bool
		inComment bool
	)
	runes := []rune(input)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		switch {
		case inComment:
			current.WriteRune(r)
			if r == '\n' {
				inComment = false
			}
		case inString:
			current.WriteRune(r)
			if r == '\'' {
				inString = false
			}
		case r == '\'':
			current.WriteRune(r)
			inString = true
		case r == '-' && i+1 < len(runes) && runes[i+1] == '-':
			current.WriteRune(r)
			inComment = true
		case r == ';':
			if s := strings.TrimSpace(current.String()); s != "" {
				stmts = append(stmts, s)
			}
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		stmts = append(stmts, s)
	}
	return stmts
}
