package cmd

import (
	"context"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"crms/internal/bootstrap"
	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/ports"
	"crms/internal/usecase/refdata"
	"crms/internal/usecase/requests"
)

// appDeps is what commands receive from the fx graph.
type appDeps struct {
	App      *bootstrap.App
	Requests *requests.Service
	Store    ports.DocumentStore
	Cache    ports.Cache
	Importer *refdata.Importer
}

func withApp(run func(cmd *cobra.Command, deps appDeps) error) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := logging.WithAttrs(
			cmd.Context(),
			slog.String("command", cmd.CommandPath()),
			slog.String("config_file", cfgFile),
		)

		var deps appDeps
		fxApp := fx.New(
			bootstrap.Module,
			fx.NopLogger,
			fx.Provide(func() context.Context { return ctx }),
			fx.Provide(
				fx.Annotate(
					func() string { return cfgFile },
					fx.ResultTags(`name:"configFile"`),
				),
			),
			fx.Populate(&deps.App, &deps.Requests, &deps.Store, &deps.Cache, &deps.Importer),
		)

		startCtx, cancelStart := context.WithTimeout(ctx, 10*time.Second)
		defer cancelStart()
		if err := fxApp.Start(startCtx); err != nil {
			logging.Error(ctx, "bootstrap application failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "start fx application")
		}

		defer func() {
			stopCtx, cancelStop := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancelStop()
			if err := fxApp.Stop(stopCtx); err != nil {
				logging.Error(ctx, "fx application stop failed", slog.Any("err", errs.Loggable(err)))
			}
		}()

		if err := run(cmd, deps); err != nil {
			return errs.Wrap(err, "run command")
		}
		return nil
	}
}

// technicianFlag reads --technician and falls back to identity.technician_id.
func technicianFlag(cmd *cobra.Command, deps appDeps) string {
	tech, _ := cmd.Flags().GetString("technician")
	if tech != "" {
		return tech
	}
	return deps.App.Config.Identity.TechnicianID
}
