package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/passvault/internal/common"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type ctxKey string

const userIDKey ctxKey = "userID"

// UserIDFromContext returns the id the session gate resolved for this
// request, if any.
func UserIDFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(userIDKey).(string)
	return id, ok && id != ""
}

// sessionGate runs once per request before routing. Public paths and
// pre-flight requests always pass; everything else needs a live session.
func (a *API) sessionGate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := a.authority.Authorize(r.Context(), r.Method, r.URL.Path, a.sessionID(r))
		if err != nil {
			if errors.Is(err, common.ErrorUnauthorized) {
				writeErrorMsg(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			a.writeError(w, r, err, "")
			return
		}

		if userID != "" {
			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = logging.WithContext(ctx, logging.FromContext(ctx, a.logger).With("user_id", userID))
			r = r.WithContext(ctx)
		}
		next.ServeHTTP(w, r)
	})
}

// requireInternalToken guards service-to-service routes with a static bearer
// token. It is checked in addition to the session.
func (a *API) requireInternalToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || a.opts.InternalAPIToken == "" ||
			subtle.ConstantTimeCompare([]byte(token), []byte(a.opts.InternalAPIToken)) != 1 {
			writeErrorMsg(w, http.StatusForbidden, "Forbidden")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRequestLogger puts a request-scoped logger carrying the chi request id
// into the context.
func (a *API) withRequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		l := a.logger.With("request_id", middleware.GetReqID(r.Context()))
		next.ServeHTTP(w, r.WithContext(logging.WithContext(r.Context(), l)))
	})
}

func (a *API) cors() func(http.Handler) http.Handler {
	return cors.Handler(cors.Options{
		AllowedOrigins:   []string{a.opts.ClientAddress},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	})
}

// logFormatter feeds chi's request logging into the structured logger.
type logFormatter struct {
	logger logging.Logger
}

func (f *logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return &logEntry{
		ctx: r.Context(),
		logger: f.logger.With(
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote", r.RemoteAddr,
		),
	}
}

type logEntry struct {
	ctx    context.Context
	logger logging.Logger
}

func (e *logEntry) Write(status, bytes int, _ http.Header, elapsed time.Duration, _ any) {
	args := []any{"status", status, "bytes", bytes, "elapsed", elapsed}
	if status >= http.StatusInternalServerError {
		e.logger.Warn(e.ctx, "request served", args...)
		return
	}
	e.logger.Info(e.ctx, "request served", args...)
}

func (e *logEntry) Panic(v any, stack []byte) {
	e.logger.Error(e.ctx, "request panicked", "panic", v, "stack", string(stack))
}
