package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/listkeeper/internal/dbx"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/connections"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/subscribers"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/synchistory"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Connections(db dbx.DBTX) connections.Repository
	Subscribers(db dbx.DBTX) subscribers.Repository
	SyncHistory(db dbx.DBTX) synchistory.Repository
}
