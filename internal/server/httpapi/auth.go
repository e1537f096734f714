package httpapi

import (
	"net/http"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/server/services"
)

type SignupRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Username *string `json:"username"`
	EKSalt   string  `json:"ek_salt"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (a *API) Index(w http.ResponseWriter, r *http.Request) {
	writeMessage(w, http.StatusOK, "Welcome to the API!")
}

func (a *API) Signup(w http.ResponseWriter, r *http.Request) {
	var req SignupRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" || req.EKSalt == "" {
		writeErrorMsg(w, http.StatusBadRequest, "Email, password, and ek_salt are required")
		return
	}

	user, err := a.users.Register(r.Context(), services.Registration{
		Email:    req.Email,
		Password: req.Password,
		Username: req.Username,
		EKSalt:   req.EKSalt,
	})
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "User created successfully",
		"user_id": user.ID,
	})
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !readJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeErrorMsg(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	sess, err := a.authority.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	// a login always starts a fresh session
	if old := a.sessionID(r); old != "" && old != sess.ID {
		_ = a.authority.Logout(r.Context(), old)
	}
	a.setSessionCookie(w, sess.ID)

	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Login successful",
		"user_id": sess.UserID,
	})
}

// Logout never fails from the client's point of view.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if err := a.authority.Logout(r.Context(), a.sessionID(r)); err != nil {
		a.loggerFor(r).Warn(r.Context(), "logout failed", "error", err)
	}
	a.clearCookie(w, a.opts.CookieName)
	writeMessage(w, http.StatusOK, "Logged out successfully")
}

func (a *API) CheckAuth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{"authenticated": false}
	if userID, ok := UserIDFromContext(r.Context()); ok {
		resp["authenticated"] = true
		resp["user_id"] = userID
	}
	writeJSON(w, http.StatusOK, resp)
}
