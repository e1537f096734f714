// Package users provides the PostgreSQL-backed user directory storage.
package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/google/uuid"
)

const (
	emailConstraint    = "users_email_key"
	usernameConstraint = "users_username_key"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts user, assigning a fresh UUID when ID is empty. A clash on
// the email constraint yields common.ErrDuplicateEmail, any other unique
// clash common.ErrConflict.
func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	if user.ID == "" {
		user.ID = uuid.NewString()
	}

	query :=
		`INSERT INTO users (id, email, username, hashed_master_password, ek_salt)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING created_at, updated_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ID, user.Email, user.Username, user.HashedMasterPassword, user.EKSalt).
		Scan(&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, mapWriteError(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, email, username, hashed_master_password, ek_salt, created_at, updated_at FROM users
		 WHERE email = $1
		 `
	return readUser(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, username, hashed_master_password, ek_salt, created_at, updated_at FROM users
		 WHERE id = $1
		 `
	return readUser(r.db.QueryRowContext(ctx, query, id))
}

// UpdateProfile applies the non-nil fields of upd and bumps updated_at.
func (r *PostgresRepository) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	query :=
		`UPDATE users SET
			email = COALESCE($2, email),
			username = COALESCE($3, username),
			updated_at = now()
		 WHERE id = $1
		 RETURNING id, email, username, hashed_master_password, ek_salt, created_at, updated_at
		 `

	u, err := scanUser(r.db.QueryRowContext(ctx, query, id, upd.Email, upd.Username))
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, mapWriteError(err)
	}
	return u, nil
}

// Delete removes the user row only. Owned rows are removed by the caller in
// the same transaction; see services.UserService.Delete.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func readUser(row *sql.Row) (*models.User, error) {
	u, err := scanUser(row)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return u, err
}

// scanUser maps sql.ErrNoRows to common.ErrorNotFound and returns any other
// error unwrapped.
func scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var username sql.NullString

	err := row.Scan(&user.ID, &user.Email, &username, &user.HashedMasterPassword, &user.EKSalt,
		&user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, err
	}
	if username.Valid {
		user.Username = &username.String
	}
	return user, nil
}

func mapWriteError(err error) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		switch constraint {
		case emailConstraint:
			return common.ErrDuplicateEmail
		case usernameConstraint:
			return fmt.Errorf("%w: username already taken", common.ErrConflict)
		default:
			return fmt.Errorf("%w: %s", common.ErrConflict, constraint)
		}
	}
	return fmt.Errorf("db error: %w", err)
}
