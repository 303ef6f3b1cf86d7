package app

import (
	"context"
	"net/http"

	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"github.com/hoangvu/atelierdesk/internal/adapters/httpserver"
	"github.com/hoangvu/atelierdesk/internal/adapters/mailer"
	"github.com/hoangvu/atelierdesk/internal/adapters/repo/postgres"
	"github.com/hoangvu/atelierdesk/internal/reconcile"
	"github.com/hoangvu/atelierdesk/internal/usecase"
)

type App struct {
	DB         *gorm.DB
	Store      *postgres.OrderStore
	Dirs       *postgres.DirectoryRepo
	OrderUC    *usecase.OrderUC
	Reconciler *reconcile.Reconciler
	Mail       *mailer.Mailer
}

func NewApp(db *gorm.DB, rdb *redis.Client) *App {
	store := postgres.NewOrderStore(db, rdb)
	dirs := postgres.NewDirectoryRepo(db)
	return &App{
		DB:         db,
		Store:      store,
		Dirs:       dirs,
		OrderUC:    &usecase.OrderUC{Store: store, Dirs: dirs},
		Reconciler: reconcile.New(store),
		Mail:       mailer.FromEnv(),
	}
}

func (a *App) MigrateAndSeed(ctx context.Context) error {
	if err := a.Store.Migrate(); err != nil {
		return err
	}
	if err := a.Dirs.Migrate(); err != nil {
		return err
	}
	return a.Dirs.Seed(ctx)
}

func (a *App) HTTPHandler() http.Handler {
	return httpserver.New(a.OrderUC, a.Reconciler, a.Store, a.Dirs, a.Mail)
}
