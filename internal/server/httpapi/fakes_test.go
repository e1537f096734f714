package httpapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/services"
	"github.com/dmitrijs2005/passvault/internal/server/sessionstore"
	"github.com/stretchr/testify/require"
)

const (
	testClientAddress = "http://client.test"
	testInternalToken = "internal-secret"
)

type nopLogger struct{}

func (n nopLogger) Debug(context.Context, string, ...any) {}
func (n nopLogger) Info(context.Context, string, ...any)  {}
func (n nopLogger) Warn(context.Context, string, ...any)  {}
func (n nopLogger) Error(context.Context, string, ...any) {}
func (n nopLogger) With(...any) logging.Logger            { return n }

type plainHasher struct{}

func (plainHasher) Hash(p string) (string, error) { return "h:" + p, nil }
func (plainHasher) Verify(p, d string) bool       { return "h:"+p == d }

// fakeUsers is an in-memory user directory.
type fakeUsers struct {
	mu      sync.Mutex
	nextID  int
	byID    map[string]*models.User
	store   sessionstore.Store
	failAll error
}

func newFakeUsers(store sessionstore.Store) *fakeUsers {
	return &fakeUsers{byID: map[string]*models.User{}, store: store}
}

func (f *fakeUsers) Register(_ context.Context, r services.Registration) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll != nil {
		return nil, f.failAll
	}
	email := strings.TrimSpace(r.Email)
	for _, u := range f.byID {
		if u.Email == email {
			return nil, common.ErrDuplicateEmail
		}
	}
	f.nextID++
	u := &models.User{
		ID:                   fmt.Sprintf("user-%d", f.nextID),
		Email:                email,
		Username:             r.Username,
		HashedMasterPassword: "h:" + r.Password,
		EKSalt:               r.EKSalt,
	}
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsers) FindByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == strings.TrimSpace(email) {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (f *fakeUsers) FindByID(_ context.Context, id string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return u, nil
}

func (f *fakeUsers) UpdateProfile(_ context.Context, id string, upd models.ProfileUpdate) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if upd.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}
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
	return u, nil
}

func (f *fakeUsers) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	_, ok := f.byID[id]
	delete(f.byID, id)
	f.mu.Unlock()
	if !ok {
		return common.ErrorNotFound
	}
	return f.store.InvalidateUser(ctx, id)
}

// fakePasswords keeps entries in memory and follows the same lifecycle
// rules as the real store: operations on the wrong state look like missing
// entries.
type fakePasswords struct {
	mu      sync.Mutex
	nextID  int64
	entries map[int64]*models.PasswordEntry
}

func newFakePasswords() *fakePasswords {
	return &fakePasswords{entries: map[int64]*models.PasswordEntry{}}
}

func (f *fakePasswords) find(userID string, id int64) (*models.PasswordEntry, bool) {
	e, ok := f.entries[id]
	if !ok || e.UserID != userID {
		return nil, false
	}
	return e, true
}

func (f *fakePasswords) Create(_ context.Context, userID string, in models.NewEntry) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if in.Name == "" || in.Username == "" || in.Password == "" {
		return nil, fmt.Errorf("%w: name, username and password are required", common.ErrValidation)
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
		CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	f.entries[e.ID] = e
	return e, nil
}

func (f *fakePasswords) Get(_ context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id)
	if !ok {
		return nil, common.ErrorNotFound
	}
	return e, nil
}

func (f *fakePasswords) page(userID string, inTrash bool, page, perPage int) *models.Page {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = services.DefaultPerPage
	}
	var ids []int64
	for id, e := range f.entries {
		if e.UserID == userID && e.InTrash == inTrash {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	p := &models.Page{Page: page, PerPage: perPage, HasPrev: page > 1}
	start := (page - 1) * perPage
	for i := start; i < len(ids) && i < start+perPage; i++ {
		p.Entries = append(p.Entries, f.entries[ids[i]])
	}
	p.HasNext = len(ids) > start+perPage
	return p
}

func (f *fakePasswords) List(_ context.Context, userID string, page, perPage int) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page(userID, false, page, perPage), nil
}

func (f *fakePasswords) ListTrash(_ context.Context, userID string, page, perPage int) (*models.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.page(userID, true, page, perPage), nil
}

func (f *fakePasswords) Update(_ context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p.Empty() {
		return nil, fmt.Errorf("%w: nothing to update", common.ErrValidation)
	}
	e, ok := f.find(userID, id)
	if !ok || e.InTrash {
		return nil, common.ErrorNotFound
	}
	if p.Name != nil {
		e.Name = *p.Name
	}
	if p.Password != nil {
		e.Password = *p.Password
	}
	return e, nil
}

func (f *fakePasswords) MoveToTrash(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id)
	if !ok || e.InTrash {
		return common.ErrorNotFound
	}
	now := time.Now()
	e.InTrash = true
	e.MovedAt = &now
	return nil
}

func (f *fakePasswords) Restore(_ context.Context, userID string, id int64) (*models.PasswordEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id)
	if !ok || !e.InTrash {
		return nil, common.ErrorNotFound
	}
	e.InTrash = false
	e.MovedAt = nil
	return e, nil
}

func (f *fakePasswords) Purge(_ context.Context, userID string, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.find(userID, id)
	if !ok || !e.InTrash {
		return common.ErrorNotFound
	}
	delete(f.entries, id)
	return nil
}

func (f *fakePasswords) PurgeAllTrashed(_ context.Context, userID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for id, e := range f.entries {
		if e.UserID == userID && e.InTrash {
			delete(f.entries, id)
			n++
		}
	}
	if n == 0 {
		return 0, common.ErrNothingToDelete
	}
	return n, nil
}

type fakeFederation struct {
	redirectURL string
	nonce       string
	beginErr    error

	result      *services.FederationResult
	completeErr error

	gotParams services.CallbackParams
	gotNonce  string
}

func (f *fakeFederation) BeginLogin(context.Context) (string, string, error) {
	return f.redirectURL, f.nonce, f.beginErr
}

func (f *fakeFederation) CompleteLogin(_ context.Context, p services.CallbackParams, expected string) (*services.FederationResult, error) {
	f.gotParams = p
	f.gotNonce = expected
	return f.result, f.completeErr
}

type fakeTransfers struct {
	exported []byte
	err      error

	imported  int
	gotType   services.FileType
	gotUpload string

	key, url string
}

func (f *fakeTransfers) Export(_ context.Context, _ string, ft services.FileType) ([]byte, error) {
	f.gotType = ft
	return f.exported, f.err
}

func (f *fakeTransfers) Import(_ context.Context, _ string, ft services.FileType, r io.Reader) (int, error) {
	f.gotType = ft
	b, err := io.ReadAll(r)
	if err != nil {
		return 0, err
	}
	f.gotUpload = string(b)
	return f.imported, f.err
}

func (f *fakeTransfers) Archive(_ context.Context, _ string, ft services.FileType) (string, string, error) {
	f.gotType = ft
	return f.key, f.url, f.err
}

// fixture wires the real session authority over a memory store to in-memory
// services and serves the router over a real listener.
type fixture struct {
	store      *sessionstore.MemoryStore
	users      *fakeUsers
	passwords  *fakePasswords
	federation *fakeFederation
	transfers  *fakeTransfers
	api        *API
	srv        *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		store:      sessionstore.NewMemoryStore(),
		passwords:  newFakePasswords(),
		federation: &fakeFederation{},
		transfers:  &fakeTransfers{},
	}
	f.users = newFakeUsers(f.store)
	authority := services.NewSessionAuthority(f.store, f.users, plainHasher{}, time.Hour, 24*time.Hour)

	f.api = NewAPI(nopLogger{}, Options{
		ClientAddress:    testClientAddress,
		InternalAPIToken: testInternalToken,
		SessionMaxAge:    24 * time.Hour,
		NonceTTL:         10 * time.Minute,
		MaxImportBytes:   1 << 20,
	}, authority, f.users, f.passwords, f.federation, f.transfers)

	f.srv = httptest.NewServer(f.api.Router())
	t.Cleanup(f.srv.Close)
	return f
}

// client returns an http.Client with its own cookie jar that does not
// follow redirects.
func (f *fixture) client(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{
		Jar: jar,
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// signupAndLogin registers email and logs the client in.
func (f *fixture) signupAndLogin(t *testing.T, c *http.Client, email string) string {
	t.Helper()
	resp := doJSON(t, c, http.MethodPost, f.srv.URL+"/signup", map[string]any{
		"email": email, "password": "master", "ek_salt": "salt",
	})
	require.Equal(t, http.StatusCreated, resp.status)

	resp = doJSON(t, c, http.MethodPost, f.srv.URL+"/login", map[string]any{
		"email": email, "password": "master",
	})
	require.Equal(t, http.StatusOK, resp.status)
	return resp.body["user_id"].(string)
}

func (f *fakeUsers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byID)
}
