package services

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/federation"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
)

// nonceBytes is the entropy of an OAuth nonce before encoding.
const nonceBytes = 16

type FederationOutcome int

const (
	// OutcomeMatchedExisting means the identity belongs to a known user and a
	// session was opened.
	OutcomeMatchedExisting FederationOutcome = iota + 1
	// OutcomeNeedsCompletion means no user has this email yet. No account is
	// created; the caller has to collect a master password and ek_salt and
	// register the user explicitly.
	OutcomeNeedsCompletion
)

func (o FederationOutcome) String() string {
	switch o {
	case OutcomeMatchedExisting:
		return "MATCHED_EXISTING"
	case OutcomeNeedsCompletion:
		return "NEEDS_COMPLETION"
	default:
		return fmt.Sprintf("FederationOutcome(%d)", int(o))
	}
}

// CallbackParams are the query parameters the provider redirects back with.
type CallbackParams struct {
	State string
	Code  string
	Error string
}

type FederationResult struct {
	Outcome  FederationOutcome
	Identity *models.FederatedIdentity
	User     *models.User
	Session  *models.Session
}

// SessionEstablisher opens a session for an already authenticated user.
type SessionEstablisher interface {
	Establish(ctx context.Context, userID string) (*models.Session, error)
}

type FederationService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	provider    federation.Provider
	users       UserFinder
	sessions    SessionEstablisher
	nonceTTL    time.Duration
	now         func() time.Time
}

func NewFederationService(db *sql.DB, m repomanager.RepositoryManager, provider federation.Provider,
	users UserFinder, sessions SessionEstablisher, nonceTTL time.Duration) *FederationService {
	return &FederationService{
		db:          db,
		repomanager: m,
		provider:    provider,
		users:       users,
		sessions:    sessions,
		nonceTTL:    nonceTTL,
		now:         time.Now,
	}
}

// BeginLogin issues a single-use nonce, records it with a bounded lifetime
// and returns the provider URL carrying it.
func (s *FederationService) BeginLogin(ctx context.Context) (redirectURL, nonce string, err error) {
	nonce, err = common.MakeRandURLToken(nonceBytes)
	if err != nil {
		return "", "", fmt.Errorf("error generating nonce: %w", err)
	}

	now := s.now().UTC()
	repo := s.repomanager.Nonces(s.db)
	if _, err := repo.DeleteExpired(ctx, now); err != nil {
		return "", "", err
	}
	if err := repo.Create(ctx, nonce, now.Add(s.nonceTTL)); err != nil {
		return "", "", err
	}

	return s.provider.AuthCodeURL(nonce), nonce, nil
}

// CompleteLogin finishes the flow started by BeginLogin. expectedNonce is the
// nonce bound to the browser; it is consumed whatever the outcome, so a
// callback can be completed at most once.
func (s *FederationService) CompleteLogin(ctx context.Context, p CallbackParams, expectedNonce string) (*FederationResult, error) {
	if expectedNonce == "" {
		return nil, common.ErrNonceMissing
	}

	consumeErr := s.repomanager.Nonces(s.db).Consume(ctx, expectedNonce, s.now().UTC())
	if subtle.ConstantTimeCompare([]byte(p.State), []byte(expectedNonce)) != 1 {
		return nil, common.ErrNonceMismatch
	}
	if consumeErr != nil {
		if errors.Is(consumeErr, common.ErrorNotFound) {
			return nil, fmt.Errorf("%w: nonce expired or already used", common.ErrNonceMismatch)
		}
		return nil, consumeErr
	}

	if p.Error != "" {
		return nil, fmt.Errorf("%w: %s", common.ErrProvider, p.Error)
	}
	if p.Code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", common.ErrProvider)
	}

	ident, err := s.provider.Exchange(ctx, p.Code, expectedNonce)
	if err != nil {
		return nil, err
	}

	user, err := s.users.FindByEmail(ctx, ident.Email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return &FederationResult{Outcome: OutcomeNeedsCompletion, Identity: ident}, nil
		}
		return nil, err
	}

	sess, err := s.sessions.Establish(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	return &FederationResult{
		Outcome:  OutcomeMatchedExisting,
		Identity: ident,
		User:     user,
		Session:  sess,
	}, nil
}
