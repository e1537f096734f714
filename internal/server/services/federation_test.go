package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProvider struct {
	ident     *models.FederatedIdentity
	err       error
	exchanged []string
}

func (p *fakeProvider) AuthCodeURL(nonce string) string {
	return "https://accounts.example/auth?state=" + nonce
}

func (p *fakeProvider) Exchange(_ context.Context, code, expectedNonce string) (*models.FederatedIdentity, error) {
	p.exchanged = append(p.exchanged, code+"/"+expectedNonce)
	if p.err != nil {
		return nil, p.err
	}
	return p.ident, nil
}

type federationFixture struct {
	svc      *FederationService
	rm       *fakeRepoManager
	provider *fakeProvider
	finder   *fakeFinder
	store    *fakeStore
}

func newFederationFixture(t *testing.T) *federationFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)
	rm := newFakeRepoManager()
	provider := &fakeProvider{ident: &models.FederatedIdentity{Subject: "g-1", Email: "a@x.com", DisplayName: "Alice"}}
	finder := &fakeFinder{users: map[string]*models.User{}}
	store := newFakeStore()
	authority := NewSessionAuthority(store, finder, plainHasher{}, time.Hour, time.Hour)

	return &federationFixture{
		svc:      NewFederationService(db, rm, provider, finder, authority, 10*time.Minute),
		rm:       rm,
		provider: provider,
		finder:   finder,
		store:    store,
	}
}

func (f *federationFixture) begin(t *testing.T) string {
	t.Helper()
	url, nonce, err := f.svc.BeginLogin(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, nonce)
	assert.Contains(t, url, "state="+nonce)
	return nonce
}

func TestFederationService_BeginLogin(t *testing.T) {
	f := newFederationFixture(t)
	f.rm.nonces.expires["old"] = time.Now().Add(-time.Minute)

	n1 := f.begin(t)
	n2 := f.begin(t)

	assert.NotEqual(t, n1, n2)
	assert.Len(t, n1, 22)
	assert.Equal(t, 2, f.rm.nonces.swept)
	assert.NotContains(t, f.rm.nonces.expires, "old")

	exp := f.rm.nonces.expires[n1]
	assert.WithinDuration(t, time.Now().Add(10*time.Minute), exp, 5*time.Second)
}

func TestFederationService_MatchedExisting(t *testing.T) {
	f := newFederationFixture(t)
	f.finder.users["a@x.com"] = &models.User{ID: "u1", Email: "a@x.com"}
	nonce := f.begin(t)

	res, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatchedExisting, res.Outcome)
	assert.Equal(t, "MATCHED_EXISTING", res.Outcome.String())
	assert.Equal(t, "u1", res.User.ID)
	require.NotNil(t, res.Session)
	assert.Equal(t, "u1", f.store.sessions[res.Session.ID].UserID)
	assert.Equal(t, []string{"c/" + nonce}, f.provider.exchanged)
}

func TestFederationService_NeedsCompletion(t *testing.T) {
	f := newFederationFixture(t)
	nonce := f.begin(t)

	res, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	require.NoError(t, err)
	assert.Equal(t, OutcomeNeedsCompletion, res.Outcome)
	assert.Equal(t, "NEEDS_COMPLETION", res.Outcome.String())
	assert.Equal(t, "a@x.com", res.Identity.Email)
	assert.Equal(t, "Alice", res.Identity.DisplayName)
	assert.Nil(t, res.User)
	assert.Nil(t, res.Session)
	assert.Empty(t, f.store.sessions)
	assert.Empty(t, f.rm.users.byID)
}

func TestFederationService_FailsClosed(t *testing.T) {
	tests := []struct {
		name     string
		params   func(nonce string) CallbackParams
		expected func(nonce string) string
		wantErr  error
	}{
		{
			name:     "nonce missing from browser",
			params:   func(n string) CallbackParams { return CallbackParams{State: n, Code: "c"} },
			expected: func(string) string { return "" },
			wantErr:  common.ErrNonceMissing,
		},
		{
			name:     "state differs",
			params:   func(string) CallbackParams { return CallbackParams{State: "forged", Code: "c"} },
			expected: func(n string) string { return n },
			wantErr:  common.ErrNonceMismatch,
		},
		{
			name:     "state missing",
			params:   func(string) CallbackParams { return CallbackParams{Code: "c"} },
			expected: func(n string) string { return n },
			wantErr:  common.ErrNonceMismatch,
		},
		{
			name:     "nonce never issued",
			params:   func(string) CallbackParams { return CallbackParams{State: "made-up", Code: "c"} },
			expected: func(string) string { return "made-up" },
			wantErr:  common.ErrNonceMismatch,
		},
		{
			name:     "provider reported error",
			params:   func(n string) CallbackParams { return CallbackParams{State: n, Error: "access_denied"} },
			expected: func(n string) string { return n },
			wantErr:  common.ErrProvider,
		},
		{
			name:     "no code",
			params:   func(n string) CallbackParams { return CallbackParams{State: n} },
			expected: func(n string) string { return n },
			wantErr:  common.ErrProvider,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFederationFixture(t)
			f.finder.users["a@x.com"] = &models.User{ID: "u1", Email: "a@x.com"}
			nonce := f.begin(t)

			res, err := f.svc.CompleteLogin(context.Background(), tt.params(nonce), tt.expected(nonce))
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
			assert.Empty(t, f.provider.exchanged)
			assert.Empty(t, f.store.sessions)
		})
	}
}

func TestFederationService_NonceIsSingleUse(t *testing.T) {
	f := newFederationFixture(t)
	f.finder.users["a@x.com"] = &models.User{ID: "u1", Email: "a@x.com"}
	nonce := f.begin(t)
	params := CallbackParams{State: nonce, Code: "c"}

	_, err := f.svc.CompleteLogin(context.Background(), params, nonce)
	require.NoError(t, err)

	_, err = f.svc.CompleteLogin(context.Background(), params, nonce)
	assert.ErrorIs(t, err, common.ErrNonceMismatch)
	assert.Len(t, f.provider.exchanged, 1)
}

func TestFederationService_MismatchBurnsNonce(t *testing.T) {
	f := newFederationFixture(t)
	nonce := f.begin(t)

	_, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: "forged", Code: "c"}, nonce)
	require.ErrorIs(t, err, common.ErrNonceMismatch)

	_, err = f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	assert.ErrorIs(t, err, common.ErrNonceMismatch)
}

func TestFederationService_ExpiredNonce(t *testing.T) {
	f := newFederationFixture(t)
	nonce := f.begin(t)
	f.svc.now = func() time.Time { return time.Now().Add(11 * time.Minute) }

	_, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	assert.ErrorIs(t, err, common.ErrNonceMismatch)
}

func TestFederationService_ProviderFailure(t *testing.T) {
	f := newFederationFixture(t)
	f.provider.err = fmt.Errorf("%w: token exchange: 400", common.ErrProvider)
	nonce := f.begin(t)

	_, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	assert.ErrorIs(t, err, common.ErrProvider)
	assert.Empty(t, f.store.sessions)
}

func TestFederationService_ProviderNonceMismatch(t *testing.T) {
	f := newFederationFixture(t)
	f.provider.err = common.ErrNonceMismatch
	nonce := f.begin(t)

	_, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	assert.ErrorIs(t, err, common.ErrNonceMismatch)
}

func TestFederationService_LookupError(t *testing.T) {
	f := newFederationFixture(t)
	f.finder.err = errors.New("db error: down")
	nonce := f.begin(t)

	_, err := f.svc.CompleteLogin(context.Background(), CallbackParams{State: nonce, Code: "c"}, nonce)
	assert.EqualError(t, err, "db error: down")
}

func TestFederationOutcome_String(t *testing.T) {
	assert.Equal(t, "FederationOutcome(7)", FederationOutcome(7).String())
}
