package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
)

var (
	cfgFile  string
	logLevel string
)

var rootCmd = &cobra.Command{
	Use:          "crms",
	Short:        "Campus maintenance requests for technicians",
	Long:         "Technician console, HTTP API and admin commands for campus maintenance requests (Cobra + Viper + GORM/SQLite).",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		cmd.SetContext(logging.WithLogger(cmd.Context(), logging.NewTextLogger(cmd.ErrOrStderr(), level)))
		return nil
	},
}

// Execute runs the root command. It is called once by main.
func Execute(ctx context.Context) error {
	if ctx == nil {
		return errors.New("context is required")
	}

	ctx = logging.WithLogger(ctx, logging.NewTextLogger(rootCmd.ErrOrStderr(), slog.LevelInfo))
	ctx = logging.WithAttrs(ctx, slog.String("app", "crms"))

	rootCmd.SetContext(ctx)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logging.Error(ctx, "command execution failed", slog.Any("err", errs.Loggable(err)))
		return errs.Wrap(err, "execute root command")
	}

	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "Config file path")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug|info|warn|error)")
}
