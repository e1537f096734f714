package entries

import (
	"context"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

// Repository stores password entries. Every method that addresses a single
// entry takes the owner's id and folds it into the row predicate, so an entry
// belonging to someone else behaves exactly like a missing one.
type Repository interface {
	Create(ctx context.Context, userID string, e models.NewEntry) (*models.PasswordEntry, error)
	Get(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error)
	List(ctx context.Context, userID string, inTrash bool, limit, offset int) ([]*models.PasswordEntry, error)
	ListAll(ctx context.Context, userID string) ([]*models.PasswordEntry, error)
	Update(ctx context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error)
	MoveToTrash(ctx context.Context, userID string, id int64) error
	Restore(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error)
	Purge(ctx context.Context, userID string, id int64) error
	PurgeTrashed(ctx context.Context, userID string) (int64, error)
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}
