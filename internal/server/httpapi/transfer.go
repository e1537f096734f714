package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/dmitrijs2005/passvault/internal/server/services"
)

func (a *API) Export(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	ft, err := services.ParseFileType(r.URL.Query().Get("fileType"))
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	data, err := a.transfers.Export(r.Context(), userID, ft)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	name := fmt.Sprintf("passwords-%s.%s", time.Now().UTC().Format("20060102"), ft.Ext())
	w.Header().Set("Content-Type", ft.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (a *API) ExportArchive(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	ft, err := services.ParseFileType(r.URL.Query().Get("fileType"))
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	key, link, err := a.transfers.Archive(r.Context(), userID, ft)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": link})
}

func (a *API) Import(w http.ResponseWriter, r *http.Request) {
	userID, _ := UserIDFromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, a.opts.MaxImportBytes)
	if err := r.ParseMultipartForm(a.opts.MaxImportBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeErrorMsg(w, http.StatusRequestEntityTooLarge, "File too large")
			return
		}
		writeErrorMsg(w, http.StatusBadRequest, "Invalid multipart form")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeErrorMsg(w, http.StatusBadRequest, "No file part")
		return
	}
	defer file.Close()

	ft, err := services.ParseFileType(r.FormValue("fileType"))
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}

	n, err := a.transfers.Import(r.Context(), userID, ft, file)
	if err != nil {
		a.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":  "Passwords imported successfully",
		"imported": n,
	})
}
