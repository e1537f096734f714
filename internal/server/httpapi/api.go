// Package httpapi is the JSON-over-HTTP surface of the vault: a chi router,
// the session gate that guards it and the handlers behind it.
package httpapi

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/services"
)

const nonceCookieName = "passvault_oauth_nonce"

type Authority interface {
	Authorize(ctx context.Context, method, path, sessionID string) (string, error)
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context, sessionID string) error
}

type Users interface {
	Register(ctx context.Context, r services.Registration) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (*models.User, error)
	Delete(ctx context.Context, id string) error
}

type Passwords interface {
	Create(ctx context.Context, userID string, in models.NewEntry) (*models.PasswordEntry, error)
	Get(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error)
	List(ctx context.Context, userID string, page, perPage int) (*models.Page, error)
	ListTrash(ctx context.Context, userID string, page, perPage int) (*models.Page, error)
	Update(ctx context.Context, userID string, id int64, p models.EntryPatch) (*models.PasswordEntry, error)
	MoveToTrash(ctx context.Context, userID string, id int64) error
	Restore(ctx context.Context, userID string, id int64) (*models.PasswordEntry, error)
	Purge(ctx context.Context, userID string, id int64) error
	PurgeAllTrashed(ctx context.Context, userID string) (int64, error)
}

type Federation interface {
	BeginLogin(ctx context.Context) (redirectURL, nonce string, err error)
	CompleteLogin(ctx context.Context, p services.CallbackParams, expectedNonce string) (*services.FederationResult, error)
}

type Transfers interface {
	Export(ctx context.Context, userID string, ft services.FileType) ([]byte, error)
	Import(ctx context.Context, userID string, ft services.FileType, r io.Reader) (int, error)
	Archive(ctx context.Context, userID string, ft services.FileType) (key, url string, err error)
}

// Options are the HTTP-level settings of the API.
type Options struct {
	ClientAddress    string
	InternalAPIToken string
	CookieName       string
	CookieSecure     bool
	SessionMaxAge    time.Duration
	NonceTTL         time.Duration
	MaxImportBytes   int64
}

// API holds the collaborators the handlers call into.
type API struct {
	authority  Authority
	users      Users
	passwords  Passwords
	federation Federation
	transfers  Transfers
	logger     logging.Logger
	opts       Options
}

func NewAPI(l logging.Logger, opts Options, authority Authority, users Users, passwords Passwords,
	federation Federation, transfers Transfers) *API {
	if opts.CookieName == "" {
		opts.CookieName = "passvault_session"
	}
	if opts.MaxImportBytes <= 0 {
		opts.MaxImportBytes = 5 << 20
	}
	return &API{
		authority:  authority,
		users:      users,
		passwords:  passwords,
		federation: federation,
		transfers:  transfers,
		logger:     l.With("module", "http_api"),
		opts:       opts,
	}
}

func (a *API) setSessionCookie(w http.ResponseWriter, sessionID string) {
	c := &http.Cookie{
		Name:     a.opts.CookieName,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if a.opts.SessionMaxAge > 0 {
		c.MaxAge = int(a.opts.SessionMaxAge.Seconds())
	}
	http.SetCookie(w, c)
}

func (a *API) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (a *API) sessionID(r *http.Request) string {
	c, err := r.Cookie(a.opts.CookieName)
	if err != nil {
		return ""
	}
	return c.Value
}
