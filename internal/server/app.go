// Package server initializes and runs the sync worker application.
// It opens the database, runs migrations, builds the credential vault,
// connector registry, token refresher and sync orchestrator, and then
// consumes sync-trigger jobs until shutdown.
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

	"github.com/dmitrijs2005/listkeeper/internal/cryptox"
	"github.com/dmitrijs2005/listkeeper/internal/logging"
	"github.com/dmitrijs2005/listkeeper/internal/server/cache"
	"github.com/dmitrijs2005/listkeeper/internal/server/config"
	"github.com/dmitrijs2005/listkeeper/internal/server/models"
	"github.com/dmitrijs2005/listkeeper/internal/server/oauth"
	"github.com/dmitrijs2005/listkeeper/internal/server/providers"
	"github.com/dmitrijs2005/listkeeper/internal/server/queue"
	"github.com/dmitrijs2005/listkeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/listkeeper/internal/server/services"
	"github.com/dmitrijs2005/listkeeper/internal/server/snapshot"
)

type App struct {
	config *config.Config
	logger logging.Logger
	db     *sql.DB
	repos  repomanager.RepositoryManager
	vault  *cryptox.Vault
}

func NewApp(c *config.Config) (*App, error) {

	slog := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(slog)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	vault, err := cryptox.NewVault(c.MasterSecret)
	if err != nil {
		return nil, fmt.Errorf("vault init error: %w", err)
	}

	return &App{
		config: c,
		logger: logger,
		db:     db,
		repos:  repomanager.NewPostgresRepositoryManager(),
		vault:  vault,
	}, nil
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

// oauthEndpoints converts the config map into the refresher's typed form.
func (app *App) oauthEndpoints() map[models.ProviderType]oauth.Endpoint {
	endpoints := make(map[models.ProviderType]oauth.Endpoint, len(app.config.OAuth))
	for provider, ep := range app.config.OAuth {
		endpoints[models.ProviderType(provider)] = oauth.Endpoint{
			TokenURL:     ep.TokenURL,
			ClientID:     ep.ClientID,
			ClientSecret: ep.ClientSecret,
		}
	}
	return endpoints
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	defer func() { _ = app.db.Close() }()

	if err := app.repos.RunMigrations(ctx, app.db); err != nil {
		app.logger.Error(ctx, "migrations failed", "error", err.Error())
		return
	}

	registry := providers.NewRegistry()
	refresher := oauth.NewRefresher(app.oauthEndpoints(), app.vault, app.repos.Connections(app.db), app.logger)

	snapshots, err := snapshot.NewS3Archiver(ctx,
		app.config.S3RootUser, app.config.S3RootPassword,
		app.config.S3Bucket, app.config.S3Region, app.config.S3BaseEndpoint)
	if err != nil {
		app.logger.Error(ctx, "snapshot archiver init failed", "error", err.Error())
		return
	}

	counts := cache.NewCounts(app.config.RedisAddr, app.config.RedisPassword, app.config.RedisDB)
	defer func() { _ = counts.Close() }()

	syncService := services.NewSyncService(
		app.db, app.repos, app.vault, registry, refresher, snapshots, counts, app.logger)

	consumer := queue.NewConsumer(
		app.config.AMQPURL,
		app.config.WorkerCount,
		app.config.MaxSyncAttempts,
		app.config.RetryBaseDelay,
		syncService,
		app.logger,
	)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			app.logger.Error(ctx, "consumer stopped", "error", err.Error())
			cancelFunc()
		}
	}()

	wg.Wait()

	app.logger.Info(ctx, "App stopped")
}
