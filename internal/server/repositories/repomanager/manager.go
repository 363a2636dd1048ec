package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/vaultsync/internal/dbx"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/chunks"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/sessions"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/settings"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/users"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/vaults"
	"github.com/dmitrijs2005/vaultsync/internal/server/repositories/versions"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Vaults(db dbx.DBTX) vaults.Repository
	Versions(db dbx.DBTX) versions.Repository
	Chunks(db dbx.DBTX) chunks.Repository
	Settings(db dbx.DBTX) settings.Repository
}
