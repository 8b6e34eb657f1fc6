package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"gorm.io/gorm"

	"crms/internal/bootstrap/config"
	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/infrastructure/persistence/schema"
	"crms/internal/infrastructure/persistence/sqlite/model"
)

type App struct {
	Config config.Config
	DB     *gorm.DB
}

func (a *App) InitSchema(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	logCtx := logging.WithAttrs(ctx, slog.String("component", "bootstrap.app"))
	logging.Info(logCtx, "start schema migration")

	if err := a.DB.WithContext(ctx).AutoMigrate(
		&model.Document{},
		&model.KV{},
		&schema.Meta{},
	); err != nil {
		return errs.Wrap(err, "auto migrate schema")
	}
	if err := schema.StampVersion(ctx, a.DB); err != nil {
		return errs.Wrap(err, "stamp schema version")
	}

	logging.Info(logCtx, "schema migration completed", slog.String("schema_version", schema.Version))
	return nil
}
