// Package entries provides PostgreSQL-backed storage for password entries and
// their trash lifecycle.
package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/models"
)

const entryColumns = `id, user_id, name, username, password, url, notes, in_trash, created_at, updated_at, moved_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an Active entry.
func (r *PostgresRepository) Create(ctx context.Context, userID string, e models.NewEntry) (*models.PasswordEntry, error) {
	query := `
		INSERT INTO password_entries (user_id, name, username, password, url, notes)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + entryColumns

	entry, err := scanEntry(r.db.QueryRowContext(ctx, query, userID, e.Name, e.Username, e.Password, e.URL, e.Notes))
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

// Get returns the entry in either state.
func (r *PostgresRepository) Get(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM password_entries WHERE id = $1 AND user_id = $2`
	return readEntry(r.db.QueryRowContext(ctx, query, id, userID))
}

// List returns one window of the user's Active (inTrash=false) or Trashed
// entries in insertion order.
func (r *PostgresRepository) List(ctx context.Context, userID string, inTrash bool, limit, offset int) ([]*models.PasswordEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM password_entries
		WHERE user_id = $1 AND in_trash = $2
		ORDER BY id ASC
		LIMIT $3 OFFSET $4`
	return r.selectEntries(ctx, query, userID, inTrash, limit, offset)
}

// ListAll returns every entry of the user, Active and Trashed.
func (r *PostgresRepository) ListAll(ctx context.Context, userID string) ([]*models.PasswordEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM password_entries WHERE user_id = $1 ORDER BY id ASC`
	return r.selectEntries(ctx, query, userID)
}

// Update applies the non-nil fields of p to an Active entry and stamps
// updated_at. Trashed entries are not matched.
func (r *PostgresRepository) Update(ctx context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error) {
	query := `
		UPDATE password_entries SET
			name = COALESCE($3, name),
			username = COALESCE($4, username),
			password = COALESCE($5, password),
			url = COALESCE($6, url),
			notes = COALESCE($7, notes),
			updated_at = now()
		WHERE id = $1 AND user_id = $2 AND in_trash = FALSE
		RETURNING ` + entryColumns

	return readEntry(r.db.QueryRowContext(ctx, query, id, userID, p.Name, p.Username, p.Password, p.URL, p.Notes))
}

// MoveToTrash moves an Active entry to the trash and stamps moved_at.
func (r *PostgresRepository) MoveToTrash(ctx context.Context, userID string, id int64) error {
	query := `
		UPDATE password_entries SET in_trash = TRUE, moved_at = now()
		WHERE id = $1 AND user_id = $2 AND in_trash = FALSE`
	return r.execOne(ctx, query, id, userID)
}

// Restore brings a Trashed entry back, clearing moved_at and stamping
// updated_at.
func (r *PostgresRepository) Restore(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	query := `
		UPDATE password_entries SET in_trash = FALSE, moved_at = NULL, updated_at = now()
		WHERE id = $1 AND user_id = $2 AND in_trash = TRUE
		RETURNING ` + entryColumns
	return readEntry(r.db.QueryRowContext(ctx, query, id, userID))
}

// Purge permanently removes a Trashed entry.
func (r *PostgresRepository) Purge(ctx context.Context, userID string, id int64) error {
	query := `DELETE FROM password_entries WHERE id = $1 AND user_id = $2 AND in_trash = TRUE`
	return r.execOne(ctx, query, id, userID)
}

// PurgeTrashed removes every Trashed entry of the user and reports how many
// rows went away.
func (r *PostgresRepository) PurgeTrashed(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM password_entries WHERE user_id = $1 AND in_trash = TRUE`, userID)
}

// DeleteByUser removes all entries of the user regardless of state.
func (r *PostgresRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	return r.execCount(ctx, `DELETE FROM password_entries WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) selectEntries(ctx context.Context, query string, args ...any) ([]*models.PasswordEntry, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	result := make([]*models.PasswordEntry, 0)
	for rows.Next() {
		item, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) execOne(ctx context.Context, query string, args ...any) error {
	n, err := r.execCount(ctx, query, args...)
	if err != nil {
		return err
	}
	switch n {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
}

func (r *PostgresRepository) execCount(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected error: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func readEntry(row *sql.Row) (*models.PasswordEntry, error) {
	entry, err := scanEntry(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return entry, nil
}

func scanEntry(s scanner) (*models.PasswordEntry, error) {
	var (
		e                  models.PasswordEntry
		url, notes         sql.NullString
		updatedAt, movedAt sql.NullTime
	)
	if err := s.Scan(&e.ID, &e.UserID, &e.Name, &e.Username, &e.Password, &url, &notes,
		&e.InTrash, &e.CreatedAt, &updatedAt, &movedAt); err != nil {
		return nil, err
	}
	if url.Valid {
		e.URL = &url.String
	}
	if notes.Valid {
		e.Notes = &notes.String
	}
	if updatedAt.Valid {
		e.UpdatedAt = &updatedAt.Time
	}
	if movedAt.Valid {
		e.MovedAt = &movedAt.Time
	}
	return &e, nil
}
