package sessionstore

import (
	"context"
	"database/sql"
	"time"

	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
)

// PostgresStore keeps sessions in the user_sessions table, so they survive
// restarts and are shared by every server instance.
type PostgresStore struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	now         func() time.Time
}

func NewPostgresStore(db *sql.DB, m repomanager.RepositoryManager) *PostgresStore {
	return &PostgresStore{db: db, repomanager: m, now: time.Now}
}

func (s *PostgresStore) Create(ctx context.Context, userID string) (*models.Session, error) {
	sess, err := newSession(userID, s.now().UTC())
	if err != nil {
		return nil, err
	}
	if err := s.repomanager.Sessions(s.db).Create(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.Session, error) {
	return s.repomanager.Sessions(s.db).Get(ctx, id)
}

func (s *PostgresStore) Touch(ctx context.Context, id string) error {
	return s.repomanager.Sessions(s.db).Touch(ctx, id, s.now().UTC())
}

func (s *PostgresStore) Invalidate(ctx context.Context, id string) error {
	return s.repomanager.Sessions(s.db).Delete(ctx, id)
}

func (s *PostgresStore) InvalidateUser(ctx context.Context, userID string) error {
	_, err := s.repomanager.Sessions(s.db).DeleteByUser(ctx, userID)
	return err
}
