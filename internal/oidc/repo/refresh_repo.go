package repo

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// RefreshSession is a persisted opaque refresh token.
type RefreshSession struct {
	ID        int64     `db:"id"`
	UserID    int64     `db:"user_id"`
	ClientID  string    `db:"client_id"`
	ExpiresAt time.Time `db:"expires_at"`
}

type RefreshRepo struct {
	db *sqlx.DB
}

func NewRefreshRepo(db *sqlx.DB) *RefreshRepo {
	return &RefreshRepo{db: db}
}

// EnsureTable creates the refresh session table if not exists (idempotent).
func (r *RefreshRepo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS refresh_sessions (
  token TEXT PRIMARY KEY,
  id BIGSERIAL,
  user_id BIGINT NOT NULL,
  client_id TEXT NOT NULL DEFAULT '',
  expires_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_refresh_sessions_user ON refresh_sessions(user_id);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *RefreshRepo) Save(ctx context.Context, token string, userID int64, clientID string, expiresAt time.Time) (int64, error) {
	query := `INSERT INTO refresh_sessions (token, user_id, client_id, expires_at) VALUES ($1, $2, $3, $4) RETURNING id`
	var id int64
	if err := r.db.QueryRowxContext(ctx, query, token, userID, clientID, expiresAt).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (r *RefreshRepo) Get(ctx context.Context, token string) (*RefreshSession, error) {
	var rs RefreshSession
	query := `SELECT id, user_id, client_id, expires_at FROM refresh_sessions WHERE token = $1`
	if err := r.db.GetContext(ctx, &rs, query, token); err != nil {
		return nil, err
	}
	return &rs, nil
}

func (r *RefreshRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE token = $1`, token)
	return err
}

// DeleteExpired drops sessions past their expiry and returns how many went.
func (r *RefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM refresh_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
