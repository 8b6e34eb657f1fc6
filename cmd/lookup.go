package cmd

import (
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"crms/internal/bootstrap/logging"
	"crms/internal/domain/request"
	"crms/internal/errs"
	"crms/internal/usecase/refdata"
)

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Manage building, room and category tables",
}

var lookupImportCmd = &cobra.Command{
	Use:   "import <catalog.toml>",
	Short: "Import lookup tables from a TOML catalog",
	Args:  cobra.ExactArgs(1),
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		path := cmd.Flags().Arg(0)
		deactivate, _ := cmd.Flags().GetBool("deactivate-missing")
		watch, _ := cmd.Flags().GetBool("watch")
		opts := refdata.ImportOptions{Deactivate: deactivate}

		result, err := deps.Importer.ImportFile(ctx, path, opts)
		if err != nil {
			logging.Error(ctx, "import catalog failed", slog.Any("err", errs.Loggable(err)))
			return errs.Wrap(err, "import catalog")
		}
		if err := printImport(cmd, result, nil); err != nil {
			return err
		}
		if !watch {
			return nil
		}

		watchCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return deps.Importer.Watch(watchCtx, path, opts, func(result refdata.ImportResult, err error) {
			_ = printImport(cmd, result, err)
		})
	}),
}

var lookupListCmd = &cobra.Command{
	Use:       "list <building|room|category>",
	Short:     "List the active entries of one lookup table",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{string(request.LookupBuilding), string(request.LookupRoom), string(request.LookupCategory)},
	RunE: withApp(func(cmd *cobra.Command, deps appDeps) error {
		ctx := logging.WithAttrs(cmd.Context(), slog.String("command", cmd.CommandPath()))

		kind, err := request.ParseLookupKind(cmd.Flags().Arg(0))
		if err != nil {
			return err
		}

		lookups := deps.Requests.Lookups()
		if err := lookups.Refresh(ctx); err != nil {
			return errs.Wrap(err, "read lookup tables")
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tNAME\tPARENT")
		for _, entry := range lookups.Entries(kind) {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", entry.ID, entry.DisplayName, entry.ParentID)
		}
		return tw.Flush()
	}),
}

func init() {
	rootCmd.AddCommand(lookupCmd)
	lookupCmd.AddCommand(lookupImportCmd, lookupListCmd)

	lookupImportCmd.Flags().Bool("deactivate-missing", false, "Mark stored entries that are not in the catalog as inactive")
	lookupImportCmd.Flags().Bool("watch", false, "Keep running and re-import when the catalog changes")
}

func printImport(cmd *cobra.Command, result refdata.ImportResult, err error) error {
	if err != nil {
		_, werr := fmt.Fprintf(cmd.ErrOrStderr(), "import failed: %v\n", err)
		return werr
	}
	if _, err := fmt.Fprintf(cmd.OutOrStdout(), "imported buildings=%d rooms=%d categories=%d deactivated=%d\n",
		result.Buildings, result.Rooms, result.Categories, result.Deactivated); err != nil {
		return errs.Wrap(err, "write import output")
	}
	return nil
}

