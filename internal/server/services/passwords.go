package services

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
)

// SecretSealer protects entry passwords at rest.
type SecretSealer interface {
	Seal(plaintext string) (string, error)
	Open(stored string) (string, error)
}

// PasswordService runs the password entry lifecycle: Active entries can be
// edited and trashed, Trashed entries can be restored or purged. Every
// mutation is one transaction and every lookup is scoped by owner.
type PasswordService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	sealer      SecretSealer
}

func NewPasswordService(db *sql.DB, m repomanager.RepositoryManager, sealer SecretSealer) *PasswordService {
	return &PasswordService{
		db:          db,
		repomanager: m,
		sealer:      sealer,
	}
}

func (s *PasswordService) Create(ctx context.Context, userID string, in models.NewEntry) (*models.PasswordEntry, error) {
	if err := validateNewEntry(in); err != nil {
		return nil, err
	}

	sealed, err := s.sealer.Seal(in.Password)
	if err != nil {
		return nil, fmt.Errorf("error sealing password: %w", err)
	}
	plain := in.Password
	in.Password = sealed

	e, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.PasswordEntry, error) {
		return s.repomanager.Entries(tx).Create(ctx, userID, in)
	})
	if err != nil {
		return nil, err
	}
	e.Password = plain
	return e, nil
}

// Get returns an entry of the user whether it is Active or Trashed.
func (s *PasswordService) Get(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	e, err := s.repomanager.Entries(s.db).Get(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.open(e)
}

// List pages through the user's Active entries.
func (s *PasswordService) List(ctx context.Context, userID string, page, perPage int) (*models.Page, error) {
	return s.list(ctx, userID, false, page, perPage)
}

// ListTrash pages through the user's Trashed entries.
func (s *PasswordService) ListTrash(ctx context.Context, userID string, page, perPage int) (*models.Page, error) {
	return s.list(ctx, userID, true, page, perPage)
}

// ListAll returns every entry the user owns, opened, for export.
func (s *PasswordService) ListAll(ctx context.Context, userID string) ([]*models.PasswordEntry, error) {
	list, err := s.repomanager.Entries(s.db).ListAll(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, e := range list {
		if _, err := s.open(e); err != nil {
			return nil, err
		}
	}
	return list, nil
}

func (s *PasswordService) list(ctx context.Context, userID string, inTrash bool, page, perPage int) (*models.Page, error) {
	page, perPage = normalizePaging(page, perPage)
	if page-1 > math.MaxInt/perPage {
		// the offset would not fit in an int; nothing can live that far out
		return &models.Page{Page: page, PerPage: perPage, HasPrev: true}, nil
	}

	// one extra row tells whether a next page exists
	list, err := s.repomanager.Entries(s.db).List(ctx, userID, inTrash, perPage+1, (page-1)*perPage)
	if err != nil {
		return nil, err
	}

	hasNext := len(list) > perPage
	if hasNext {
		list = list[:perPage]
	}
	for _, e := range list {
		if _, err := s.open(e); err != nil {
			return nil, err
		}
	}

	return &models.Page{
		Entries: list,
		Page:    page,
		PerPage: perPage,
		HasNext: hasNext,
		HasPrev: page > 1,
	}, nil
}

// Update changes the given fields of an Active entry. Trashed entries are
// reported as not found.
func (s *PasswordService) Update(ctx context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error) {
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}
	if (p.Name != nil && strings.TrimSpace(*p.Name) == "") ||
		(p.Username != nil && strings.TrimSpace(*p.Username) == "") ||
		(p.Password != nil && *p.Password == "") {
		return nil, fmt.Errorf("%w: name, username and password must not be empty", common.ErrValidation)
	}
	if err := checkEntryLimits(p.Name, p.Username, p.URL, p.Notes); err != nil {
		return nil, err
	}

	if p.Password != nil {
		sealed, err := s.sealer.Seal(*p.Password)
		if err != nil {
			return nil, fmt.Errorf("error sealing password: %w", err)
		}
		p.Password = &sealed
	}

	e, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.PasswordEntry, error) {
		return s.repomanager.Entries(tx).Update(ctx, userID, id, p)
	})
	if err != nil {
		return nil, err
	}
	return s.open(e)
}

func (s *PasswordService) MoveToTrash(ctx context.Context, userID string, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Entries(tx).MoveToTrash(ctx, userID, id)
	})
}

func (s *PasswordService) Restore(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	e, err := dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (*models.PasswordEntry, error) {
		return s.repomanager.Entries(tx).Restore(ctx, userID, id)
	})
	if err != nil {
		return nil, err
	}
	return s.open(e)
}

// Purge permanently deletes a Trashed entry. Active entries are reported as
// not found.
func (s *PasswordService) Purge(ctx context.Context, userID string, id int64) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Entries(tx).Purge(ctx, userID, id)
	})
}

// PurgeAllTrashed empties the user's trash and reports how many entries went.
func (s *PasswordService) PurgeAllTrashed(ctx context.Context, userID string) (int64, error) {
	return dbx.WithTxValue(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) (int64, error) {
		n, err := s.repomanager.Entries(tx).PurgeTrashed(ctx, userID)
		if err != nil {
			return 0, err
		}
		if n == 0 {
			return 0, common.ErrNothingToDelete
		}
		return n, nil
	})
}

// CreateMany stores all entries as Active in a single transaction. Nothing is
// stored when any entry is invalid.
func (s *PasswordService) CreateMany(ctx context.Context, userID string, in []models.NewEntry) (int, error) {
	sealed := make([]models.NewEntry, len(in))
	for i, e := range in {
		if err := validateNewEntry(e); err != nil {
			return 0, fmt.Errorf("entry %d: %w", i+1, err)
		}
		v, err := s.sealer.Seal(e.Password)
		if err != nil {
			return 0, fmt.Errorf("error sealing password: %w", err)
		}
		e.Password = v
		sealed[i] = e
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Entries(tx)
		for _, e := range sealed {
			if _, err := repo.Create(ctx, userID, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(sealed), nil
}

func (s *PasswordService) open(e *models.PasswordEntry) (*models.PasswordEntry, error) {
	plain, err := s.sealer.Open(e.Password)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", e.ID, err)
	}
	e.Password = plain
	return e, nil
}

func validateNewEntry(e models.NewEntry) error {
	if strings.TrimSpace(e.Name) == "" || strings.TrimSpace(e.Username) == "" || e.Password == "" {
		return fmt.Errorf("%w: name, username and password are required", common.ErrValidation)
	}
	return checkEntryLimits(&e.Name, &e.Username, e.URL, e.Notes)
}

func checkEntryLimits(name, username, url, notes *string) error {
	if err := checkOptionalLen("name", name, maxEntryNameLen); err != nil {
		return err
	}
	if err := checkOptionalLen("username", username, maxEntryUsernameLen); err != nil {
		return err
	}
	if err := checkOptionalLen("url", url, maxEntryURLLen); err != nil {
		return err
	}
	return checkOptionalLen("notes", notes, maxEntryNotesLen)
}

func normalizePaging(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return page, perPage
}
