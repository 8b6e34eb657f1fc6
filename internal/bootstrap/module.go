package bootstrap

import (
	"context"
	"log/slog"

	"go.uber.org/fx"
	"gorm.io/gorm"

	"crms/internal/bootstrap/config"
	"crms/internal/bootstrap/database"
	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	cacheinfra "crms/internal/infrastructure/cache"
	"crms/internal/infrastructure/notify"
	sqliterepo "crms/internal/infrastructure/persistence/sqlite/repository"
	sqliteuow "crms/internal/infrastructure/persistence/sqlite/uow"
	"crms/internal/ports"
	"crms/internal/usecase/refdata"
	"crms/internal/usecase/requests"
)

var Module = fx.Options(
	fx.Provide(provideConfig),
	fx.Provide(provideDatabase),
	fx.Provide(provideApp),
	fx.Provide(provideNotifier),
	fx.Provide(provideDocumentStore),
	fx.Provide(
		fx.Annotate(
			sqliteuow.NewUnitOfWork,
			fx.As(new(ports.UnitOfWork)),
		),
	),
	fx.Provide(
		fx.Annotate(
			cacheinfra.NewSQLiteCache,
			fx.As(new(ports.Cache)),
		),
	),
	fx.Provide(requests.NewLookupCache),
	fx.Provide(requests.NewService),
	fx.Provide(refdata.NewImporter),
)

type configParams struct {
	fx.In

	Ctx        context.Context
	ConfigFile string `name:"configFile"`
}

func provideConfig(p configParams) (config.Config, error) {
	ctx := logging.WithAttrs(p.Ctx, slog.String("component", "bootstrap.fx"))
	return config.Load(ctx, p.ConfigFile)
}

func provideDatabase(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (*gorm.DB, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	db, err := database.Open(logCtx, cfg.Database)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})

	return db, nil
}

func provideApp(cfg config.Config, db *gorm.DB) *App {
	return &App{
		Config: cfg,
		DB:     db,
	}
}

type closableNotifier interface {
	ports.ChangeNotifier
	Close() error
}

// provideNotifier picks the change-signal transport. The memory notifier only
// reaches subscribers in this process; polling covers other writers.
func provideNotifier(lc fx.Lifecycle, ctx context.Context, cfg config.Config) (ports.ChangeNotifier, error) {
	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.fx"))

	var notifier closableNotifier
	switch cfg.Notifier.Driver {
	case config.NotifierNATS:
		conn, err := notify.DialNATS(cfg.Notifier.NATSURL, cfg.Notifier.SubjectPrefix)
		if err != nil {
			return nil, errs.Wrapf(err, "connect nats %s", cfg.Notifier.NATSURL)
		}
		notifier = conn
	default:
		notifier = notify.NewMemory()
	}
	logging.Info(logCtx, "change notifier ready", slog.String("driver", cfg.Notifier.Driver))

	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			return notifier.Close()
		},
	})
	return notifier, nil
}

func provideDocumentStore(db *gorm.DB, notifier ports.ChangeNotifier, cfg config.Config) ports.DocumentStore {
	return sqliterepo.NewDocumentStore(db, notifier, sqliterepo.WithPollInterval(cfg.Store.PollInterval))
}
