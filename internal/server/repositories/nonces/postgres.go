// Package nonces stores the single-use nonces of pending OAuth logins.
package nonces

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, nonce string, expiresAt time.Time) error {
	query := `INSERT INTO oauth_nonces (nonce, expires_at) VALUES ($1, $2)`
	if _, err := r.db.ExecContext(ctx, query, nonce, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Consume deletes the nonce and succeeds only if it existed and had not
// expired at now. A second Consume of the same nonce returns
// common.ErrorNotFound.
func (r *PostgresRepository) Consume(ctx context.Context, nonce string, now time.Time) error {
	query :=
		`DELETE FROM oauth_nonces WHERE nonce = $1
		 RETURNING expires_at`

	var expiresAt time.Time
	err := r.db.QueryRowContext(ctx, query, nonce).Scan(&expiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	if !now.Before(expiresAt) {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM oauth_nonces WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return res.RowsAffected()
}
