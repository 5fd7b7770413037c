package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crewdock.io/internal/crew"
	"crewdock.io/internal/scope"
)

var _ crew.Store = (*Store)(nil)

const accountColumnsSQL = `id, seafarer_id, full_name, rank, company_id, ship_id, status, role,
	username, password_hash, password_enc, reset_token_hash, reset_expires_at, created_at, updated_at`

func (s *Store) Create(ctx context.Context, a *crew.Account) error {
	_, err := s.db.ExecContext(ctx, `
		insert into accounts (id, seafarer_id, full_name, rank, company_id, ship_id, status, role,
			username, password_hash, password_enc)
		values ($1, $2, $3, $4, $5, nullif($6, ''), $7, $8, nullif($9, ''), nullif($10, ''), nullif($11, ''))
	`, a.ID, a.SeafarerID, a.FullName, a.Rank, a.CompanyID, a.ShipID, a.Status, a.Role.String(),
		a.Username, a.PasswordHash, a.PasswordEnc)
	if err != nil {
		if isUniqueViolation(err) {
			return crew.ErrConflict
		}
		return err
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*crew.Account, error) {
	return s.getAccountBy(ctx, "id", id)
}

func (s *Store) GetByUsername(ctx context.Context, username string) (*crew.Account, error) {
	return s.getAccountBy(ctx, "username", username)
}

func (s *Store) GetBySeafarerID(ctx context.Context, seafarerID string) (*crew.Account, error) {
	return s.getAccountBy(ctx, "seafarer_id", seafarerID)
}

func (s *Store) GetByResetTokenHash(ctx context.Context, hash string) (*crew.Account, error) {
	return s.getAccountBy(ctx, "reset_token_hash", hash)
}

func (s *Store) getAccountBy(ctx context.Context, column, value string) (*crew.Account, error) {
	row := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`select %s from accounts where %s = $1`, accountColumnsSQL, column), value)
	return scanAccount(row)
}

func (s *Store) List(ctx context.Context, p scope.Predicate) ([]*crew.Account, error) {
	clause, args, err := compilePredicate(p, accountColumns, 0)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`select %s from accounts where %s order by created_at`, accountColumnsSQL, clause), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var accounts []*crew.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}
	return accounts, rows.Err()
}

func (s *Store) Update(ctx context.Context, id string, upd crew.AccountUpdate) (*crew.Account, error) {
	var roleName *string
	if upd.Role != nil {
		name := upd.Role.String()
		roleName = &name
	}
	row := s.db.QueryRowContext(ctx, `
		update accounts set
			full_name = coalesce($2, full_name),
			rank = coalesce($3, rank),
			ship_id = coalesce($4, ship_id),
			status = coalesce($5, status),
			role = coalesce($6, role),
			updated_at = now()
		where id = $1
		returning `+accountColumnsSQL,
		id, upd.FullName, upd.Rank, upd.ShipID, upd.Status, roleName)
	return scanAccount(row)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `delete from accounts where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, crew.ErrNotFound)
}

func (s *Store) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`select exists(select 1 from accounts where username = $1)`, username).Scan(&exists)
	return exists, err
}

// WithAccountsLocked reads the identified rows FOR UPDATE in stable id
// order inside one transaction, passes them to fn, and applies the
// returned writes before committing. Concurrent batches over overlapping
// ids serialize on these row locks.
func (s *Store) WithAccountsLocked(ctx context.Context, ids []string, fn func(accounts []*crew.Account) ([]crew.AccountWrite, error)) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(
		`select %s from accounts where id in (%s) order by id for update`,
		accountColumnsSQL, placeholders(len(ids), 0)), args...)
	if err != nil {
		return err
	}
	var accounts []*crew.Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			rows.Close()
			return err
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	writes, err := fn(accounts)
	if err != nil {
		return err
	}
	for _, w := range writes {
		if err := applyAccountWrite(ctx, tx, w); err != nil {
			if isUniqueViolation(err) {
				return crew.ErrConflict
			}
			return err
		}
	}
	return tx.Commit()
}

func applyAccountWrite(ctx context.Context, tx *sql.Tx, w crew.AccountWrite) error {
	var roleName *string
	if w.Update.Role != nil {
		name := w.Update.Role.String()
		roleName = &name
	}
	credClause := ""
	args := []any{w.ID, w.Update.FullName, w.Update.Rank, w.Update.ShipID, w.Update.Status, roleName}
	if w.Credentials != nil {
		if w.Credentials.Clear {
			credClause = `, username = null, password_hash = null, password_enc = null`
		} else {
			credClause = `, username = $7, password_hash = $8, password_enc = $9`
			args = append(args, w.Credentials.Username, w.Credentials.PasswordHash, w.Credentials.PasswordEnc)
		}
	}
	res, err := tx.ExecContext(ctx, `
		update accounts set
			full_name = coalesce($2, full_name),
			rank = coalesce($3, rank),
			ship_id = coalesce($4, ship_id),
			status = coalesce($5, status),
			role = coalesce($6, role),
			updated_at = now()`+credClause+`
		where id = $1`, args...)
	if err != nil {
		return err
	}
	return requireAffected(res, crew.ErrNotFound)
}

func (s *Store) SetPassword(ctx context.Context, id, passwordHash, passwordEnc string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts set password_hash = $2, password_enc = $3, updated_at = now()
		where id = $1`, id, passwordHash, passwordEnc)
	if err != nil {
		return err
	}
	return requireAffected(res, crew.ErrNotFound)
}

func (s *Store) SetResetToken(ctx context.Context, id, tokenHash string, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts set reset_token_hash = $2, reset_expires_at = $3, updated_at = now()
		where id = $1`, id, tokenHash, expiresAt.UTC())
	if err != nil {
		return err
	}
	return requireAffected(res, crew.ErrNotFound)
}

func (s *Store) ClearResetToken(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		update accounts set reset_token_hash = null, reset_expires_at = null, updated_at = now()
		where id = $1`, id)
	if err != nil {
		return err
	}
	return requireAffected(res, crew.ErrNotFound)
}

func scanAccount(row interface{ Scan(...any) error }) (*crew.Account, error) {
	var (
		a         crew.Account
		roleName  string
		shipID    sql.NullString
		username  sql.NullString
		hash      sql.NullString
		enc       sql.NullString
		resetHash sql.NullString
		resetExp  sql.NullTime
	)
	err := row.Scan(&a.ID, &a.SeafarerID, &a.FullName, &a.Rank, &a.CompanyID, &shipID, &a.Status,
		&roleName, &username, &hash, &enc, &resetHash, &resetExp, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, crew.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	role, err := scope.ParseRole(roleName)
	if err != nil {
		return nil, fmt.Errorf("account %s: %w", a.ID, err)
	}
	a.Role = role
	a.RoleName = role.String()
	a.ShipID = shipID.String
	a.Username = username.String
	a.PasswordHash = hash.String
	a.PasswordEnc = enc.String
	a.ResetTokenHash = resetHash.String
	a.ResetExpiresAt = resetExp.Time
	return &a, nil
}

func requireAffected(res sql.Result, missing error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return missing
	}
	return nil
}
