package repo

import (
	"context"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-processo-console/internal/processo/entity"
)

// Repo is the processo repository backed by PostgreSQL.
type Repo struct {
	db *sqlx.DB
}

func NewRepo(db *sqlx.DB) *Repo {
	return &Repo{db: db}
}

// EnsureTable creates the processos table and its indexes if missing.
func (r *Repo) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS processos (
  id BIGINT PRIMARY KEY,
  numero VARCHAR(64) NOT NULL,
  assunto TEXT NOT NULL,
  interessado TEXT NOT NULL DEFAULT '',
  status VARCHAR(32) NOT NULL DEFAULT 'Recebido',
  prioridade VARCHAR(16) NOT NULL DEFAULT 'Média',
  atualizado_em TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_processos_numero ON processos (numero);
CREATE INDEX IF NOT EXISTS idx_processos_status ON processos (status);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

const columns = `id, numero, assunto, interessado, status, prioridade, atualizado_em`

// List returns processos ordered by id.
func (r *Repo) List(ctx context.Context, limit, offset int) ([]entity.Processo, error) {
	out := []entity.Processo{}
	q := `SELECT ` + columns + ` FROM processos ORDER BY id LIMIT $1 OFFSET $2`
	if err := r.db.SelectContext(ctx, &out, q, limit, offset); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByID returns sql.ErrNoRows when the id is unknown.
func (r *Repo) GetByID(ctx context.Context, id int64) (*entity.Processo, error) {
	var p entity.Processo
	if err := r.db.GetContext(ctx, &p, `SELECT `+columns+` FROM processos WHERE id=$1`, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *Repo) Create(ctx context.Context, p *entity.Processo) error {
	const q = `INSERT INTO processos (` + columns + `)
		VALUES (:id, :numero, :assunto, :interessado, :status, :prioridade, :atualizado_em)`
	_, err := r.db.NamedExecContext(ctx, q, p)
	return err
}

// Update returns the number of affected rows.
func (r *Repo) Update(ctx context.Context, p *entity.Processo) (int64, error) {
	const q = `UPDATE processos SET numero=:numero, assunto=:assunto, interessado=:interessado,
		status=:status, prioridade=:prioridade, atualizado_em=:atualizado_em WHERE id=:id`
	res, err := r.db.NamedExecContext(ctx, q, p)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete returns the number of affected rows.
func (r *Repo) Delete(ctx context.Context, id int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM processos WHERE id=$1`, id)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// IsUniqueViolation reports a duplicate numero.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
