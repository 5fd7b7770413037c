package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"crewdock.io/internal/session"
)

var _ session.Store = (*Store)(nil)

func (s *Store) CreateSession(ctx context.Context, rec *session.Session) error {
	_, err := s.db.ExecContext(ctx, `
		insert into refresh_sessions (id, user_id, token_hash, expires_at, created_at)
		values ($1, $2, $3, $4, $5)
	`, rec.ID, rec.UserID, rec.TokenHash, rec.ExpiresAt, rec.CreatedAt)
	return err
}

func (s *Store) FindSession(ctx context.Context, id string) (*session.Session, error) {
	var (
		rec     session.Session
		revoked sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		select id, user_id, token_hash, expires_at, created_at, revoked_at
		from refresh_sessions where id = $1`, id).
		Scan(&rec.ID, &rec.UserID, &rec.TokenHash, &rec.ExpiresAt, &rec.CreatedAt, &revoked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, session.ErrInvalidToken
	}
	if err != nil {
		return nil, err
	}
	if revoked.Valid {
		t := revoked.Time
		rec.RevokedAt = &t
	}
	return &rec, nil
}

func (s *Store) RevokeSession(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_sessions set revoked_at = now()
		where id = $1 and revoked_at is null`, id)
	return err
}

func (s *Store) RevokeAllForUser(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `
		update refresh_sessions set revoked_at = now()
		where user_id = $1 and revoked_at is null`, userID)
	return err
}

// PurgeExpiredSessions deletes refresh sessions that expired before the
// cutoff. Run periodically from the server loop.
func (s *Store) PurgeExpiredSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		delete from refresh_sessions where expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
