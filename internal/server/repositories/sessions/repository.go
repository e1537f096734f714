package sessions

import (
	"context"
	"time"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, s *models.Session) error
	Get(ctx context.Context, id string) (*models.Session, error)
	Touch(ctx context.Context, id string, at time.Time) error
	Delete(ctx context.Context, id string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
