// Package sessionstore keeps server-side login sessions. The Store interface
// is what the session authority depends on; PostgresStore and MemoryStore are
// interchangeable backends.
package sessionstore

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/models"
)

// sessionIDBytes is the entropy of a session id before hex encoding.
const sessionIDBytes = 32

// Store issues, looks up, refreshes and revokes sessions. Get returns
// common.ErrorNotFound for unknown ids; Invalidate of an unknown id is a
// no-op. Expiry policy is left to the caller.
type Store interface {
	Create(ctx context.Context, userID string) (*models.Session, error)
	Get(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string) error
	Invalidate(ctx context.Context, id string) error
	InvalidateUser(ctx context.Context, userID string) error
}

func newSession(userID string, now time.Time) (*models.Session, error) {
	id, err := common.MakeRandHexString(sessionIDBytes)
	if err != nil {
		return nil, err
	}
	return &models.Session{ID: id, UserID: userID, CreatedAt: now, LastSeenAt: now}, nil
}
