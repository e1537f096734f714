package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/auth"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
)

// SessionRevoker drops every session a user holds. It lets the user
// directory clear sessions that do not live in the database.
type SessionRevoker interface {
	InvalidateUser(ctx context.Context, userID string) error
}

// Registration is the input of UserService.Register.
type Registration struct {
	Email    string
	Password string
	Username *string
	EKSalt   string
}

type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	hasher      auth.Hasher
	revoker     SessionRevoker
}

func NewUserService(db *sql.DB, m repomanager.RepositoryManager, hasher auth.Hasher, revoker SessionRevoker) *UserService {
	return &UserService{
		db:          db,
		repomanager: m,
		hasher:      hasher,
		revoker:     revoker,
	}
}

// Register creates a user. The email is checked inside the same transaction
// as the insert; the unique index catches whatever races past the check.
func (s *UserService) Register(ctx context.Context, r Registration) (*models.User, error) {
	email := strings.TrimSpace(r.Email)
	if email == "" || r.Password == "" || r.EKSalt == "" {
		return nil, fmt.Errorf("%w: email, password and ek_salt are required", common.ErrValidation)
	}
	username := normalizeUsername(r.Username)
	if err := checkLen("email", email, maxEmailLen); err != nil {
		return nil, err
	}
	if err := checkOptionalLen("username", username, maxUsernameLen); err != nil {
		return nil, err
	}
	if err := checkMasterPassword(r.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(r.Password)
	if err != nil {
		return nil, fmt.Errorf("error hashing password: %w", err)
	}

	user := &models.User{
		Email:                email,
		Username:             username,
		HashedMasterPassword: digest,
		EKSalt:               r.EKSalt,
	}

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.User, error) {
		repo := s.repomanager.Users(tx)

		_, err := repo.GetByEmail(ctx, email)
		switch {
		case err == nil:
			return nil, common.ErrDuplicateEmail
		case !errors.Is(err, common.ErrorNotFound):
			return nil, err
		}

		return repo.Create(ctx, user)
	})
}

func (s *UserService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByEmail(ctx, strings.TrimSpace(email))
}

func (s *UserService) FindByID(ctx context.Context, id string) (*models.User, error) {
	return s.repomanager.Users(s.db).GetByID(ctx, id)
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	if upd.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}
	if upd.Email != nil {
		email := strings.TrimSpace(*upd.Email)
		if email == "" {
			return nil, fmt.Errorf("%w: email must not be empty", common.ErrValidation)
		}
		upd.Email = &email
	}
	if upd.Username != nil && strings.TrimSpace(*upd.Username) == "" {
		return nil, fmt.Errorf("%w: username must not be empty", common.ErrValidation)
	}
	if upd.Email != nil {
		if err := checkLen("email", *upd.Email, maxEmailLen); err != nil {
			return nil, err
		}
	}
	if err := checkOptionalLen("username", upd.Username, maxUsernameLen); err != nil {
		return nil, err
	}

	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.User, error) {
		return s.repomanager.Users(tx).UpdateProfile(ctx, id, upd)
	})
}

// Delete removes the user's entries, sessions and the user row in one
// transaction.
func (s *UserService) Delete(ctx context.Context, id string) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := s.repomanager.Entries(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		if _, err := s.repomanager.Sessions(tx).DeleteByUser(ctx, id); err != nil {
			return err
		}
		return s.repomanager.Users(tx).Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	if s.revoker != nil {
		if err := s.revoker.InvalidateUser(ctx, id); err != nil {
			return fmt.Errorf("error revoking sessions: %w", err)
		}
	}
	return nil
}

func normalizeUsername(u *string) *string {
	if u == nil {
		return nil
	}
	v := strings.TrimSpace(*u)
	if v == "" {
		return nil
	}
	return &v
}
