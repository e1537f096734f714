package services

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/entries"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/users"
	"github.com/google/uuid"
)

// --- helpers ---

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func expectTx(mock sqlmock.Sqlmock, commit bool) {
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}

func ptr[T any](v T) *T { return &v }

// --- repository manager ---

type fakeRepoManager struct {
	users    *fakeUsersRepo
	entries  *fakeEntriesRepo
	sessions *fakeSessionsRepo
	nonces   *fakeNoncesRepo
}

func newFakeRepoManager() *fakeRepoManager {
	return &fakeRepoManager{
		users:    newFakeUsersRepo(),
		entries:  newFakeEntriesRepo(),
		sessions: &fakeSessionsRepo{},
		nonces:   newFakeNoncesRepo(),
	}
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository              { return m.users }
func (m *fakeRepoManager) Entries(dbx.DBTX) entries.Repository          { return m.entries }
func (m *fakeRepoManager) Sessions(dbx.DBTX) sessions.Repository        { return m.sessions }
func (m *fakeRepoManager) Nonces(dbx.DBTX) nonces.Repository            { return m.nonces }

// --- users ---

type fakeUsersRepo struct {
	byID      map[string]*models.User
	createErr error
	deleted   []string
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[string]*models.User{}}
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrDuplicateEmail
		}
	}
	c := *u
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	f.byID[c.ID] = &c
	out := c
	return &out, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f.byID {
		if u.Email == email {
			c := *u
			return &c, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id string) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (f *fakeUsersRepo) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	if upd.Email != nil {
		u.Email = *upd.Email
	}
	if upd.Username != nil {
		u.Username = upd.Username
	}
	u.UpdatedAt = time.Now()
	c := *u
	return &c, nil
}

func (f *fakeUsersRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

// --- entries ---

// fakeEntriesRepo keeps the same ownership and state predicates as the SQL
// repository.
type fakeEntriesRepo struct {
	mu      sync.Mutex
	nextID  int64
	rows    map[int64]*models.PasswordEntry
	err     error
	offsets []int
}

func newFakeEntriesRepo() *fakeEntriesRepo {
	return &fakeEntriesRepo{rows: map[int64]*models.PasswordEntry{}}
}

func (f *fakeEntriesRepo) find(userID string, id int64, inTrash *bool) (*models.PasswordEntry, bool) {
	e, ok := f.rows[id]
	if !ok || e.UserID != userID {
		return nil, false
	}
	if inTrash != nil && e.InTrash != *inTrash {
		return nil, false
	}
	return e, true
}

func clone(e *models.PasswordEntry) *models.PasswordEntry {
	c := *e
	return &c
}

func (f *fakeEntriesRepo) Create(_ context.Context, userID string, in models.NewEntry) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	e := &models.PasswordEntry{
		ID:        f.nextID,
		UserID:    userID,
		Name:      in.Name,
		Username:  in.Username,
		Password:  in.Password,
		URL:       in.URL,
		Notes:     in.Notes,
		CreatedAt: time.Now(),
	}
	f.rows[e.ID] = e
	return clone(e), nil
}

func (f *fakeEntriesRepo) Get(_ context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id, nil)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clone(e), nil
}

func (f *fakeEntriesRepo) sorted(userID string, inTrash *bool) []*models.PasswordEntry {
	var out []*models.PasswordEntry
	for _, e := range f.rows {
		if e.UserID == userID && (inTrash == nil || e.InTrash == *inTrash) {
			out = append(out, clone(e))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (f *fakeEntriesRepo) List(_ context.Context, userID string, inTrash bool, limit, offset int) ([]*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offsets = append(f.offsets, offset)
	if offset < 0 {
		return nil, errors.New("db error: OFFSET must not be negative")
	}
	all := f.sorted(userID, &inTrash)
	if offset >= len(all) {
		return nil, nil
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end], nil
}

func (f *fakeEntriesRepo) ListAll(_ context.Context, userID string) ([]*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sorted(userID, nil), nil
}

func (f *fakeEntriesRepo) Update(_ context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id, ptr(false))
	if !ok {
		return nil, common.ErrorNotFound
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Username != nil {
		e.Username = *p.Username
	}
	if p.Password != nil {
		e.Password = *p.Password
	}
	if p.URL != nil {
		e.URL = p.URL
	}
	if p.Notes != nil {
		e.Notes = p.Notes
	}
	e.UpdatedAt = ptr(time.Now())
	return clone(e), nil
}

func (f *fakeEntriesRepo) MoveToTrash(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id, ptr(false))
	if !ok {
		return common.ErrorNotFound
	}
	e.InTrash = true
	e.MovedAt = ptr(time.Now())
	return nil
}

func (f *fakeEntriesRepo) Restore(_ context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id, ptr(true))
	if !ok {
		return nil, common.ErrorNotFound
	}
	e.InTrash = false
	e.MovedAt = nil
	e.UpdatedAt = ptr(time.Now())
	return clone(e), nil
}

func (f *fakeEntriesRepo) Purge(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.find(userID, id, ptr(true)); !ok {
		return common.ErrorNotFound
	}
	delete(f.rows, id)
	return nil
}

func (f *fakeEntriesRepo) PurgeTrashed(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.rows {
		if e.UserID == userID && e.InTrash {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

func (f *fakeEntriesRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.rows {
		if e.UserID == userID {
			delete(f.rows, id)
			n++
		}
	}
	return n, nil
}

// --- sessions ---

type fakeSessionsRepo struct {
	deletedForUser []string
}

func (f *fakeSessionsRepo) Create(context.Context, *models.Session) error        { return nil }
func (f *fakeSessionsRepo) Get(context.Context, string) (*models.Session, error) { return nil, common.ErrorNotFound }
func (f *fakeSessionsRepo) Touch(context.Context, string, time.Time) error       { return nil }
func (f *fakeSessionsRepo) Delete(context.Context, string) error                 { return nil }
func (f *fakeSessionsRepo) DeleteByUser(_ context.Context, userID string) (int64, error) {
	f.deletedForUser = append(f.deletedForUser, userID)
	return 1, nil
}

// --- nonces ---

type fakeNoncesRepo struct {
	expires map[string]time.Time
	swept   int
}

func newFakeNoncesRepo() *fakeNoncesRepo {
	return &fakeNoncesRepo{expires: map[string]time.Time{}}
}

func (f *fakeNoncesRepo) Create(_ context.Context, nonce string, expiresAt time.Time) error {
	f.expires[nonce] = expiresAt
	return nil
}

func (f *fakeNoncesRepo) Consume(_ context.Context, nonce string, now time.Time) error {
	exp, ok := f.expires[nonce]
	delete(f.expires, nonce)
	if !ok || !now.Before(exp) {
		return common.ErrorNotFound
	}
	return nil
}

func (f *fakeNoncesRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	f.swept++
	var n int64
	for k, exp := range f.expires {
		if !now.Before(exp) {
			delete(f.expires, k)
			n++
		}
	}
	return n, nil
}

// --- collaborators ---

// prefixSealer marks sealed values so tests can tell them apart.
type prefixSealer struct{}

func (prefixSealer) Seal(p string) (string, error) { return "sealed:" + p, nil }
func (prefixSealer) Open(s string) (string, error) { return strings.TrimPrefix(s, "sealed:"), nil }

// plainHasher avoids bcrypt cost in tests that do not exercise hashing.
type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Verify(p, d string) bool       { return d == "h:"+p }

type fakeRevoker struct {
	users []string
	err   error
}

func (f *fakeRevoker) InvalidateUser(_ context.Context, userID string) error {
	f.users = append(f.users, userID)
	return f.err
}
