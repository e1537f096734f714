package httpapi

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/server/services"
)

// completionPath is where the web client collects a master password for a
// federated identity that has no account yet.
const completionPath = "/external-auth-password-creation"

func (a *API) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	redirectURL, nonce, err := a.federation.BeginLogin(r.Context())
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	c := &http.Cookie{
		Name:     nonceCookieName,
		Value:    nonce,
		Path:     "/",
		HttpOnly: true,
		Secure:   a.opts.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
	if a.opts.NonceTTL > 0 {
		c.MaxAge = int(a.opts.NonceTTL.Seconds())
	}
	http.SetCookie(w, c)
	http.Redirect(w, r, redirectURL, http.StatusFound)
}

func (a *API) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	var expected string
	if c, err := r.Cookie(nonceCookieName); err == nil {
		expected = c.Value
	}
	// the nonce is single use whatever the outcome
	a.clearCookie(w, nonceCookieName)

	if expected == "" {
		a.writeError(w, r, common.ErrNonceMissing, "")
		return
	}

	q := r.URL.Query()
	res, err := a.federation.CompleteLogin(r.Context(), services.CallbackParams{
		State: q.Get("state"),
		Code:  q.Get("code"),
		Error: q.Get("error"),
	}, expected)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	l := a.loggerFor(r)
	switch res.Outcome {
	case services.OutcomeMatchedExisting:
		a.setSessionCookie(w, res.Session.ID)
		l.Info(r.Context(), "federated login", "user_id", res.User.ID)
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "Login successful",
			"user_id": res.User.ID,
		})
	case services.OutcomeNeedsCompletion:
		target, err := a.completionURL(res)
		if err != nil {
			a.writeError(w, r, err, "")
			return
		}
		l.Info(r.Context(), "federated identity needs completion")
		http.Redirect(w, r, target, http.StatusFound)
	default:
		a.writeError(w, r, common.ErrProvider, "")
	}
}

func (a *API) completionURL(res *services.FederationResult) (string, error) {
	info, err := json.Marshal(map[string]string{
		"email":    res.Identity.Email,
		"username": res.Identity.DisplayName,
	})
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(a.opts.ClientAddress, "/")
	return base + completionPath + "?user_info=" + url.QueryEscape(string(info)), nil
}
