package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/logging"
)

// maxJSONBody bounds request bodies of the JSON endpoints.
const maxJSONBody = 64 << 10

// readJSON decodes the request body into v. On failure it writes the error
// response and returns false.
func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMsg(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return false
		}
		writeErrorMsg(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}

func writeErrorMsg(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeError maps a service error onto a status code and a client-safe
// message. Anything unrecognised is logged and reported as a generic 500;
// store error text never reaches the client.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error, notFoundMsg string) {
	switch {
	case errors.Is(err, common.ErrValidation):
		writeErrorMsg(w, http.StatusBadRequest, validationMessage(err))
	case errors.Is(err, common.ErrInvalidCredentials):
		writeErrorMsg(w, http.StatusUnauthorized, "Invalid credentials")
	case errors.Is(err, common.ErrorUnauthorized):
		writeErrorMsg(w, http.StatusUnauthorized, "Unauthorized")
	case errors.Is(err, common.ErrDuplicateEmail):
		writeErrorMsg(w, http.StatusConflict, "Email is already registered")
	case errors.Is(err, common.ErrConflict):
		writeErrorMsg(w, http.StatusConflict, "Conflict")
	case errors.Is(err, common.ErrorNotFound):
		writeErrorMsg(w, http.StatusNotFound, notFoundMsg)
	case errors.Is(err, common.ErrNothingToDelete):
		writeErrorMsg(w, http.StatusNotFound, "No passwords to delete")
	case errors.Is(err, common.ErrNonceMissing):
		writeErrorMsg(w, http.StatusBadRequest, "Nonce not found in session")
	case errors.Is(err, common.ErrNonceMismatch):
		writeErrorMsg(w, http.StatusBadRequest, "Invalid or expired login attempt")
	case errors.Is(err, common.ErrProvider):
		a.loggerFor(r).Error(r.Context(), "identity provider failure", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "Authentication failed")
	default:
		a.loggerFor(r).Error(r.Context(), "request failed", "error", err)
		writeErrorMsg(w, http.StatusInternalServerError, "Internal server error")
	}
}

// validationMessage drops the sentinel text from a wrapped validation error,
// keeping the detail the service attached.
func validationMessage(err error) string {
	before, after, ok := strings.Cut(err.Error(), common.ErrValidation.Error()+": ")
	if !ok {
		return "Invalid request"
	}
	return before + after
}

func (a *API) loggerFor(r *http.Request) logging.Logger {
	return logging.FromContext(r.Context(), a.logger)
}
