package users

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	Delete(ctx context.Context, id string) error
}
