package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/dmitrijs2005/passvault/internal/server/models"
	"github.com/go-chi/chi/v5"
)

const entryNotFound = "Password not found"

type EntryRequest struct {
	Name     *string `json:"name"`
	Username *string `json:"username"`
	Password *string `json:"password"`
	URL      *string `json:"url"`
	Notes    *string `json:"notes"`
}

type EntryResponse struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Username  string     `json:"username"`
	Password  string     `json:"password"`
	URL       *string    `json:"url"`
	Notes     *string    `json:"notes"`
	InTrash   bool       `json:"in_trash"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at"`
	MovedAt   *time.Time `json:"moved_at"`
}

type PageResponse struct {
	Passwords []EntryResponse `json:"passwords"`
	Page      int             `json:"page"`
	PerPage   int             `json:"per_page"`
	HasNext   bool            `json:"has_next"`
	HasPrev   bool            `json:"has_prev"`
}

func toEntryResponse(e *models.PasswordEntry) EntryResponse {
	return EntryResponse{
		ID:        e.ID,
		Name:      e.Name,
		Username:  e.Username,
		Password:  e.Password,
		URL:       e.URL,
		Notes:     e.Notes,
		InTrash:   e.InTrash,
		CreatedAt: e.CreatedAt,
		UpdatedAt: e.UpdatedAt,
		MovedAt:   e.MovedAt,
	}
}

func toPageResponse(p *models.Page) PageResponse {
	out := PageResponse{
		Passwords: make([]EntryResponse, 0, len(p.Entries)),
		Page:      p.Page,
		PerPage:   p.PerPage,
		HasNext:   p.HasNext,
		HasPrev:   p.HasPrev,
	}
	for _, e := range p.Entries {
		out.Passwords = append(out.Passwords, toEntryResponse(e))
	}
	return out
}

// entryID parses the {id} URL parameter. Ids that cannot exist are answered
// like missing entries.
func entryID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeErrorMsg(w, http.StatusNotFound, entryNotFound)
		return 0, false
	}
	return id, true
}

// pageParams reads page and per_page. Malformed values fall back to the
// defaults.
func pageParams(r *http.Request) (int, int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	return page, perPage
}

func (a *API) CreatePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	var req EntryRequest
	if !readJSON(w, r, &req) {
		return
	}
	if req.Name == nil || req.Username == nil || req.Password == nil {
		writeErrorMsg(w, http.StatusBadRequest, "Missing required fields")
		return
	}

	e, err := a.passwords.Create(r.Context(), userID, models.NewEntry{
		Name:     *req.Name,
		Username: *req.Username,
		Password: *req.Password,
		URL:      req.URL,
		Notes:    req.Notes,
	})
	if err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Password entry created successfully",
		"id":      e.ID,
	})
}

func (a *API) GetPassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	e, err := a.passwords.Get(r.Context(), userID, id)
	if err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"password": toEntryResponse(e)})
}

func (a *API) ListPasswords(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, perPage := pageParams(r)

	p, err := a.passwords.List(r.Context(), userID, page, perPage)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p))
}

func (a *API) ListTrash(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	page, perPage := pageParams(r)

	p, err := a.passwords.ListTrash(r.Context(), userID, page, perPage)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, toPageResponse(p))
}

func (a *API) UpdatePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	var req EntryRequest
	if !readJSON(w, r, &req) {
		return
	}

	e, err := a.passwords.Update(r.Context(), userID, id, models.EntryPatch{
		Name:     req.Name,
		Username: req.Username,
		Password: req.Password,
		URL:      req.URL,
		Notes:    req.Notes,
	})
	if err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Password entry updated successfully",
		"password": toEntryResponse(e),
	})
}

func (a *API) TrashPassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	if err := a.passwords.MoveToTrash(r.Context(), userID, id); err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Password moved to trash successfully")
}

func (a *API) RestorePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	e, err := a.passwords.Restore(r.Context(), userID, id)
	if err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Password restored successfully",
		"password": toEntryResponse(e),
	})
}

func (a *API) PurgePassword(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())
	id, ok := entryID(w, r)
	if !ok {
		return
	}

	if err := a.passwords.Purge(r.Context(), userID, id); err != nil {
		a.writeError(w, r, err, entryNotFound)
		return
	}
	writeMessage(w, http.StatusOK, "Password deleted permanently")
}

func (a *API) PurgeTrash(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	n, err := a.passwords.PurgeAllTrashed(r.Context(), userID)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All passwords deleted successfully",
		"deleted": n,
	})
}
