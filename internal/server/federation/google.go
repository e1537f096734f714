// Package federation talks to the external OAuth/OpenID Connect provider
// (Google) and turns a successful callback into a verified identity.
package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/models"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	defaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	maxUserInfoBytes   = 1 << 20
)

var defaultScopes = []string{"openid", "email", "profile"}

// Provider is the capability the login flow needs from an identity provider.
type Provider interface {
	// AuthCodeURL is where the browser is sent to log in. nonce travels as
	// both the OAuth state and the OpenID nonce.
	AuthCodeURL(nonce string) string
	// Exchange redeems the authorization code and returns the identity the
	// provider vouches for. The ID token must carry expectedNonce.
	Exchange(ctx context.Context, code, expectedNonce string) (*models.FederatedIdentity, error)
}

// GoogleConfig configures GoogleProvider. Empty endpoint fields fall back to
// Google's production endpoints.
type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	AuthURL      string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
}

type GoogleProvider struct {
	oauth       *oauth2.Config
	userInfoURL string
	httpClient  *http.Client
	now         func() time.Time
}

func NewGoogleProvider(cfg GoogleConfig) *GoogleProvider {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = defaultUserInfoURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}

	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint:     endpoint,
			Scopes:       defaultScopes,
		},
		userInfoURL: userInfoURL,
		httpClient:  httpClient,
		now:         time.Now,
	}
}

func (p *GoogleProvider) AuthCodeURL(nonce string) string {
	return p.oauth.AuthCodeURL(nonce,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

func (p *GoogleProvider) Exchange(ctx context.Context, code, expectedNonce string) (*models.FederatedIdentity, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	tok, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: token exchange: %v", common.ErrProvider, err)
	}

	rawIDToken, _ := tok.Extra("id_token").(string)
	if rawIDToken == "" {
		return nil, fmt.Errorf("%w: token response has no id_token", common.ErrProvider)
	}
	claims, err := parseIDToken(rawIDToken, p.oauth.ClientID, p.now())
	if err != nil {
		return nil, err
	}
	if claims.Nonce == "" || claims.Nonce != expectedNonce {
		return nil, common.ErrNonceMismatch
	}

	ident := &models.FederatedIdentity{
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: claims.Name,
	}
	if ident.Email == "" || !claims.EmailVerified {
		info, err := p.fetchUserInfo(ctx, tok)
		if err != nil {
			return nil, err
		}
		if !info.EmailVerified {
			return nil, fmt.Errorf("%w: email not verified", common.ErrProvider)
		}
		ident.Email = info.Email
		if ident.DisplayName == "" {
			ident.DisplayName = info.Name
		}
	}
	if ident.Email == "" {
		return nil, fmt.Errorf("%w: no email in profile", common.ErrProvider)
	}
	if ident.DisplayName == "" {
		ident.DisplayName, _, _ = strings.Cut(ident.Email, "@")
	}
	return ident, nil
}

type userInfo struct {
	Sub           string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
}

func (p *GoogleProvider) fetchUserInfo(ctx context.Context, tok *oauth2.Token) (*userInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := p.oauth.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", common.ErrProvider, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxUserInfoBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", common.ErrProvider, err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: userinfo status %d", common.ErrProvider, resp.StatusCode)
	}

	var info userInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("%w: userinfo: %v", common.ErrProvider, err)
	}
	return &info, nil
}
