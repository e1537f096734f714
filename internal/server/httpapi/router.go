package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (a *API) Router() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestLogger(&logFormatter{logger: a.logger}))
	r.Use(middleware.Recoverer)
	r.Use(a.cors())
	r.Use(a.withRequestLogger)
	r.Use(a.sessionGate)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMsg(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeErrorMsg(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	// Public
	r.Get("/", a.Index)
	r.Post("/signup", a.Signup)
	r.Post("/login", a.Login)
	r.Post("/logout", a.Logout)
	r.Get("/check-auth", a.CheckAuth)
	r.Get("/google", a.GoogleLogin)
	r.Get("/callback", a.GoogleCallback)

	// Session required
	r.Route("/user", func(r chi.Router) {
		r.Get("/", a.GetUser)
		r.Patch("/", a.UpdateUser)
		r.Delete("/", a.DeleteUser)
	})

	r.Post("/password", a.CreatePassword)
	r.Route("/password/{id}", func(r chi.Router) {
		r.Get("/", a.GetPassword)
		r.Patch("/", a.UpdatePassword)
		r.Delete("/", a.PurgePassword)
		r.Delete("/trash", a.TrashPassword)
		r.Patch("/restore", a.RestorePassword)
	})
	r.Get("/passwords", a.ListPasswords)
	r.Delete("/passwords", a.PurgeTrash)
	r.Get("/trash", a.ListTrash)

	r.Get("/export", a.Export)
	r.Post("/export/archive", a.ExportArchive)
	r.Post("/import", a.Import)

	r.Route("/internal", func(r chi.Router) {
		r.Use(a.requireInternalToken)
		r.Get("/get-ek-salt", a.GetEKSalt)
	})

	return r
}
