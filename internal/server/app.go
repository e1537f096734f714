// Package server wires the passvault backend together: storage, the session
// backend, the services and the HTTP API, and runs it until a shutdown
// signal arrives.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/passvault/internal/cryptox"
	"github.com/dmitrijs2005/passvault/internal/logging"
	"github.com/dmitrijs2005/passvault/internal/server/auth"
	"github.com/dmitrijs2005/passvault/internal/server/config"
	"github.com/dmitrijs2005/passvault/internal/server/federation"
	"github.com/dmitrijs2005/passvault/internal/server/httpapi"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/passvault/internal/server/services"
	"github.com/dmitrijs2005/passvault/internal/server/sessionstore"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	api    *httpapi.API
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	db, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	sealer, err := cryptox.NewSealer(c.VaultSecret)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("vault secret: %w", err)
	}

	store, err := newSessionStore(c.SessionBackend, db, rm)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	hasher := auth.NewBcryptHasher(0)
	us := services.NewUserService(db, rm, hasher, store)
	sa := services.NewSessionAuthority(store, us, hasher, c.SessionIdleTimeout, c.SessionAbsoluteTimeout)
	ps := services.NewPasswordService(db, rm, sealer)
	ts := services.NewTransferService(ps, c)

	provider := federation.NewGoogleProvider(federation.GoogleConfig{
		ClientID:     c.GoogleClientID,
		ClientSecret: c.GoogleClientSecret,
		RedirectURL:  c.GoogleRedirectURL,
	})
	fs := services.NewFederationService(db, rm, provider, us, sa, c.OAuthNonceTTL)

	api := httpapi.NewAPI(logger, httpapi.Options{
		ClientAddress:    c.ClientAddress,
		InternalAPIToken: c.InternalAPIToken,
		CookieName:       c.SessionCookieName,
		CookieSecure:     c.SessionCookieSecure,
		SessionMaxAge:    c.SessionAbsoluteTimeout,
		NonceTTL:         c.OAuthNonceTTL,
	}, sa, us, ps, fs, ts)

	logger.Info(ctx, "App initialized", "session_backend", c.SessionBackend)

	return &App{config: c, logger: logger, db: db, api: api}, nil
}

func newSessionStore(backend string, db *sql.DB, rm repomanager.RepositoryManager) (sessionstore.Store, error) {
	switch backend {
	case "", "postgres":
		return sessionstore.NewPostgresStore(db, rm), nil
	case "memory":
		return sessionstore.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown session backend %q", backend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpapi.NewHTTPServer(app.config.EndpointAddrHTTP, app.logger, app.api.Router())
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}
