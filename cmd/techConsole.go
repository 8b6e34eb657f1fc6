package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"crms/internal/bootstrap/logging"
	"crms/internal/errs"
	"crms/internal/usecase/requests"
	"crms/internal/usecase/techconsole"
)

var consoleTechCmd = &cobra.Command{
	Use:   "tech",
	Short: "Start the technician console (live request list)",
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		technicianID := technicianFlag(cmd, deps)
		if technicianID == "" {
			return errors.New("technician id is required: pass --technician or set identity.technician_id")
		}

		// The alt screen owns the terminal, so logs go to a file.
		logFile := deps.App.Config.Console.LogFile
		if override, _ := cmd.Flags().GetString("log-file"); override != "" {
			logFile = override
		}
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			return errs.Wrap(err, "create log directory")
		}
		out, err := os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return errs.Wrapf(err, "open log file %s", logFile)
		}
		defer out.Close()

		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		ctx := logging.WithLogger(cmd.Context(), logging.NewTextLogger(out, level))
		ctx = logging.WithAttrs(ctx,
			slog.String("command", cmd.CommandPath()),
			slog.String("technician_id", technicianID),
		)

		lookups := deps.Requests.Lookups()
		handle, err := lookups.Subscribe(ctx)
		if err != nil {
			return errs.Wrap(err, "subscribe lookup tables")
		}
		defer lookups.Unsubscribe(handle)

		coordinator := requests.NewCoordinator(lookups, deps.Store)
		if err := coordinator.Start(ctx, technicianID); err != nil {
			return errs.Wrap(err, "start request list")
		}
		defer coordinator.Stop()

		interval, _ := cmd.Flags().GetDuration("auto-status-interval")
		if interval <= 0 {
			interval = deps.App.Config.Console.AutoStatusInterval
		}

		model := techconsole.NewTechModel(ctx, deps.Requests, coordinator.Updates(), techconsole.TechOptions{
			TechnicianID:       technicianID,
			AutoStatusInterval: interval,
			Cache:              deps.Cache,
		})

		program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := program.Run(); err != nil {
			return errs.Wrap(err, "run technician console")
		}
		return nil
	}),
}

func init() {
	consoleCmd.AddCommand(consoleTechCmd)
	consoleTechCmd.Flags().String("technician", "", "Technician id (defaults to identity.technician_id)")
	consoleTechCmd.Flags().Duration("auto-status-interval", 0, "How often an open request re-evaluates its schedule (defaults to console.auto_status_interval)")
	consoleTechCmd.Flags().String("log-file", "", "Log file while the console runs (defaults to console.log_file)")
}
