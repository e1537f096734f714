package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/passvault/internal/dbx"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/entries"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/nonces"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/passvault/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DB handle, so services can
// use the same repository against *sql.DB or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Entries(db dbx.DBTX) entries.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Nonces(db dbx.DBTX) nonces.Repository
}
