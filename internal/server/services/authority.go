package services

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/auth"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/sessionstore"
)

// publicPaths are reachable without a session.
var publicPaths = map[string]struct{}{
	"/":           {},
	"/login":      {},
	"/logout":     {},
	"/signup":     {},
	"/check-auth": {},
	"/google":     {},
	"/callback":   {},
}

// UserFinder is the part of the user directory the session authority needs.
type UserFinder interface {
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// SessionAuthority issues and checks login sessions and decides which
// requests may reach protected handlers.
type SessionAuthority struct {
	store           sessionstore.Store
	users           UserFinder
	hasher          auth.Hasher
	idleTimeout     time.Duration
	absoluteTimeout time.Duration
	now             func() time.Time
}

// NewSessionAuthority builds the authority. A zero timeout disables that
// kind of expiry.
func NewSessionAuthority(store sessionstore.Store, users UserFinder, hasher auth.Hasher, idle, absolute time.Duration) *SessionAuthority {
	return &SessionAuthority{
		store:           store,
		users:           users,
		hasher:          hasher,
		idleTimeout:     idle,
		absoluteTimeout: absolute,
		now:             time.Now,
	}
}

func (a *SessionAuthority) IsPublic(path string) bool {
	_, ok := publicPaths[path]
	return ok
}

// Authorize decides whether a request may proceed and, when it carries a
// live session, who made it. Pre-flight requests pass without a lookup.
// Public paths never fail; protected paths fail with common.ErrorUnauthorized
// when there is no live session.
func (a *SessionAuthority) Authorize(ctx context.Context, method, path, sessionID string) (string, error) {
	if method == http.MethodOptions {
		return "", nil
	}

	userID, err := a.CurrentUserID(ctx, sessionID)
	if a.IsPublic(path) {
		if err != nil {
			return "", nil
		}
		return userID, nil
	}
	if err != nil {
		return "", err
	}
	return userID, nil
}

// Login checks the credentials and opens a session. Unknown email and wrong
// password both fail with common.ErrInvalidCredentials after a bcrypt
// comparison, so neither the error nor the timing tells them apart.
func (a *SessionAuthority) Login(ctx context.Context, email, password string) (*models.Session, error) {
	user, err := a.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			a.hasher.Verify(password, auth.DummyDigest)
			return nil, common.ErrInvalidCredentials
		}
		return nil, err
	}

	if !a.hasher.Verify(password, user.HashedMasterPassword) {
		return nil, common.ErrInvalidCredentials
	}

	return a.Establish(ctx, user.ID)
}

// Establish opens a session for a user that is already authenticated, e.g.
// by the identity provider.
func (a *SessionAuthority) Establish(ctx context.Context, userID string) (*models.Session, error) {
	return a.store.Create(ctx, userID)
}

// Logout drops the session. Unknown or empty ids are not an error.
func (a *SessionAuthority) Logout(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return nil
	}
	return a.store.Invalidate(ctx, sessionID)
}

// CurrentUserID resolves a session id to its user. Expired sessions are
// invalidated here, on first use after expiry, and reported as
// common.ErrorUnauthorized like unknown ones. A live session is touched.
func (a *SessionAuthority) CurrentUserID(ctx context.Context, sessionID string) (string, error) {
	if sessionID == "" {
		return "", common.ErrorUnauthorized
	}

	sess, err := a.store.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", err
	}

	if a.expired(sess) {
		if err := a.store.Invalidate(ctx, sessionID); err != nil {
			return "", err
		}
		return "", common.ErrorUnauthorized
	}

	if err := a.store.Touch(ctx, sessionID); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", common.ErrorUnauthorized
		}
		return "", err
	}
	return sess.UserID, nil
}

func (a *SessionAuthority) expired(s *models.Session) bool {
	now := a.now()
	if a.idleTimeout > 0 && now.Sub(s.LastSeenAt) > a.idleTimeout {
		return true
	}
	if a.absoluteTimeout > 0 && now.Sub(s.CreatedAt) > a.absoluteTimeout {
		return true
	}
	return false
}
