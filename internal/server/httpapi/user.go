package httpapi

import (
	"net/http"

	"github.com/dmitrijs2005/passvault/internal/server/models"
)

type UserResponse struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type UpdateUserRequest struct {
	Username *string `json:"username"`
	Email    *string `json:"email"`
}

func toUserResponse(u *models.User) UserResponse {
	resp := UserResponse{Email: u.Email}
	if u.Username != nil {
		resp.Name = *u.Username
	}
	return resp
}

func (a *API) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	user, err := a.users.FindByID(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(user))
}

func (a *API) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req UpdateUserRequest
	if !readJSON(w, r, &req) {
		return
	}

	user, err := a.users.UpdateProfile(r.Context(), userID, models.ProfileUpdate{
		Email:    req.Email,
		Username: req.Username,
	})
	if err != nil {
		a.writeError(w, r, err, "User not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "User updated successfully",
		"user":    toUserResponse(user),
	})
}

func (a *API) DeleteUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	if err := a.users.Delete(r.Context(), userID); err != nil {
		a.writeError(w, r, err, "User not found")
		return
	}

	a.clearCookie(w, a.opts.CookieName)
	writeMessage(w, http.StatusOK, "User deleted successfully")
}

// GetEKSalt serves the encryption-key salt of the session's user to trusted
// internal callers.
func (a *API) GetEKSalt(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	user, err := a.users.FindByID(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"ek_salt": user.EKSalt,
		"email":   user.Email,
	})
}
